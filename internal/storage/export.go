package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/jointctl/internal/loop"
)

type ExportData struct {
	Meta    RunMetadata   `json:"meta"`
	Records []loop.Record `json:"records"`
}

func ExportJSON(w io.Writer, meta RunMetadata, records []loop.Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ExportData{Meta: meta, Records: records})
}

func ExportJSONFile(path string, meta RunMetadata, records []loop.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ExportJSON(f, meta, records)
}

// Package storage keeps completed runs on disk, one directory per run with
// metadata.json and a per-tick ticks.csv.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/jointctl/internal/loop"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Robot      string             `json:"robot"`
	Preset     string             `json:"preset,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
	Seed       int64              `json:"seed"`
	Dt         float64            `json:"dt"`
	Ticks      uint64             `json:"ticks"`
	Skipped    uint64             `json:"skipped"`
	Joints     int                `json:"joints"`
	Controller string             `json:"controller"`
	Filter     string             `json:"filter"` // torque_filter_params form
	Metrics    map[string]float64 `json:"metrics"`
}

const (
	metaFile  = "metadata.json"
	ticksFile = "ticks.csv"
)

// Save writes a run and returns its ID. meta.ID, Timestamp, Ticks and
// Skipped are filled from the result.
func (s *Store) Save(meta RunMetadata, result *loop.Result) (string, error) {
	now := time.Now()
	meta.ID = fmt.Sprintf("%s_%d", meta.Robot, now.UnixNano())
	meta.Timestamp = now
	meta.Ticks = result.Ticks
	meta.Skipped = result.Skipped
	meta.Metrics = result.Metrics

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, metaFile), meta); err != nil {
		return "", err
	}
	if err := writeTicks(filepath.Join(runDir, ticksFile), meta.Joints, result.Records); err != nil {
		return "", err
	}
	return meta.ID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func header(joints int) []string {
	h := []string{"tick", "time"}
	for _, prefix := range []string{"raw", "filtered", "command"} {
		for i := 0; i < joints; i++ {
			h = append(h, fmt.Sprintf("%s%d", prefix, i))
		}
	}
	return append(h, "accel_angle", "angle", "current", "target", "u", "held")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}

// appendJoints writes exactly joints values; held ticks may carry raw
// vectors of another length, padded or cut to fit.
func appendJoints(row []string, vals []float64, joints int) []string {
	for i := 0; i < joints; i++ {
		if i < len(vals) {
			row = append(row, formatFloat(vals[i]))
		} else {
			row = append(row, "")
		}
	}
	return row
}

func writeTicks(path string, joints int, records []loop.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header(joints)); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{strconv.FormatUint(r.Tick, 10), formatFloat(r.Time)}
		row = appendJoints(row, r.Raw, joints)
		row = appendJoints(row, r.Filtered, joints)
		row = appendJoints(row, r.Command, joints)
		row = append(row,
			formatFloat(r.AccelAngle),
			formatFloat(r.Angle),
			formatFloat(r.Current),
			formatFloat(r.Target),
			formatFloat(r.U),
			strconv.FormatBool(r.Held),
		)
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns stored runs, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metaFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Latest returns the ID of the newest run.
func (s *Store) Latest() (string, error) {
	runs, err := s.List()
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("no runs in %s", s.baseDir)
	}
	return runs[0].ID, nil
}

// LoadRecords reads ticks.csv back into records. Empty joint cells load as
// shorter vectors.
func (s *Store) LoadRecords(runID string) ([]loop.Record, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, ticksFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 1 {
		return []loop.Record{}, nil
	}

	col := make(map[string]int, len(rows[0]))
	joints := 0
	for i, name := range rows[0] {
		col[name] = i
		if strings.HasPrefix(name, "raw") {
			joints++
		}
	}

	records := make([]loop.Record, 0, len(rows)-1)
	for line, row := range rows[1:] {
		rec, err := parseRow(row, col, joints)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", ticksFile, line+2, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(row []string, col map[string]int, joints int) (loop.Record, error) {
	var rec loop.Record
	var err error

	num := func(name string) float64 {
		if err != nil {
			return 0
		}
		var v float64
		v, err = strconv.ParseFloat(row[col[name]], 64)
		return v
	}
	vec := func(prefix string) []float64 {
		out := make([]float64, 0, joints)
		for i := 0; i < joints && err == nil; i++ {
			cell := row[col[fmt.Sprintf("%s%d", prefix, i)]]
			if cell == "" {
				break
			}
			var v float64
			v, err = strconv.ParseFloat(cell, 64)
			out = append(out, v)
		}
		return out
	}

	rec.Tick, err = strconv.ParseUint(row[col["tick"]], 10, 64)
	rec.Time = num("time")
	rec.Raw = vec("raw")
	rec.Filtered = vec("filtered")
	rec.Command = vec("command")
	rec.AccelAngle = num("accel_angle")
	rec.Angle = num("angle")
	rec.Current = num("current")
	rec.Target = num("target")
	rec.U = num("u")
	if err == nil {
		rec.Held, err = strconv.ParseBool(row[col["held"]])
	}
	return rec, err
}

// Column extracts one named series from records: time, accel_angle, angle,
// current, target, u, or raw/filtered/command followed by a joint index.
func Column(records []loop.Record, name string) ([]float64, error) {
	pick, err := picker(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = pick(r)
	}
	return out, nil
}

func picker(name string) (func(loop.Record) float64, error) {
	switch name {
	case "time":
		return func(r loop.Record) float64 { return r.Time }, nil
	case "accel_angle":
		return func(r loop.Record) float64 { return r.AccelAngle }, nil
	case "angle":
		return func(r loop.Record) float64 { return r.Angle }, nil
	case "current":
		return func(r loop.Record) float64 { return r.Current }, nil
	case "target":
		return func(r loop.Record) float64 { return r.Target }, nil
	case "u":
		return func(r loop.Record) float64 { return r.U }, nil
	}

	for _, prefix := range []string{"raw", "filtered", "command"} {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		j, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
		if err != nil || j < 0 {
			return nil, fmt.Errorf("bad joint index in %q", name)
		}
		return func(r loop.Record) float64 {
			var v []float64
			switch prefix {
			case "raw":
				v = r.Raw
			case "filtered":
				v = r.Filtered
			default:
				v = r.Command
			}
			if j >= len(v) {
				return 0
			}
			return v[j]
		}, nil
	}
	return nil, fmt.Errorf("unknown column %q", name)
}

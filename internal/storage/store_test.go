package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/jointctl/internal/loop"
)

func sampleResult() *loop.Result {
	return &loop.Result{
		Records: []loop.Record{
			{Tick: 0, Time: 0, Raw: []float64{1, 2}, Filtered: []float64{0.5, 1}, Command: []float64{0.4, 0.9}, Angle: 0.1, Target: 1, U: 0.2},
			{Tick: 1, Time: 0.005, Raw: []float64{3}, Filtered: []float64{0.5, 1}, Command: []float64{0.4, 0.9}, Angle: 0.12, Target: 1, U: 0.3, Held: true},
		},
		Metrics: map[string]float64{"control_effort": 0.25},
		Ticks:   2,
		Skipped: 1,
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save(RunMetadata{Robot: "arm2", Seed: 42, Dt: 0.005, Joints: 2}, sampleResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Error("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Robot != "arm2" || meta.Seed != 42 {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if meta.Ticks != 2 || meta.Skipped != 1 {
		t.Errorf("expected 2 ticks 1 skipped, got %d %d", meta.Ticks, meta.Skipped)
	}
	if meta.Metrics["control_effort"] != 0.25 {
		t.Errorf("expected control_effort 0.25, got %f", meta.Metrics["control_effort"])
	}

	recs, err := st.LoadRecords(runID)
	if err != nil {
		t.Fatalf("load records failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Raw[1] != 2 || recs[0].Command[0] != 0.4 || recs[0].U != 0.2 {
		t.Errorf("first record mismatch: %+v", recs[0])
	}
	if !recs[1].Held || len(recs[1].Raw) != 1 || recs[1].Tick != 1 {
		t.Errorf("held record mismatch: %+v", recs[1])
	}
}

func TestStoreList(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)

	runs, err := st.List()
	if err != nil || len(runs) != 0 {
		t.Fatalf("expected empty list, got %v, %v", runs, err)
	}
	if _, err := st.Latest(); err == nil {
		t.Error("expected error for empty store")
	}

	first, _ := st.Save(RunMetadata{Robot: "a", Joints: 2}, sampleResult())
	second, _ := st.Save(RunMetadata{Robot: "b", Joints: 2}, sampleResult())
	if err := os.MkdirAll(filepath.Join(dir, "junk"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	latest, _ := st.Latest()
	if latest != second || runs[1].ID != first {
		t.Errorf("expected newest first, got %s then %s", runs[0].ID, runs[1].ID)
	}
}

func TestColumn(t *testing.T) {
	recs := sampleResult().Records

	tests := []struct {
		name     string
		expected []float64
	}{
		{"u", []float64{0.2, 0.3}},
		{"raw1", []float64{2, 0}},
		{"command0", []float64{0.4, 0.4}},
		{"angle", []float64{0.1, 0.12}},
	}
	for _, tt := range tests {
		got, err := Column(recs, tt.name)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		for i := range tt.expected {
			if got[i] != tt.expected[i] {
				t.Errorf("%s[%d] = %v, want %v", tt.name, i, got[i], tt.expected[i])
			}
		}
	}

	for _, bad := range []string{"velocity", "rawx", "command-1"} {
		if _, err := Column(recs, bad); err == nil {
			t.Errorf("expected error for column %q", bad)
		}
	}
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	meta := RunMetadata{ID: "run", Robot: "arm2"}
	if err := ExportJSON(&buf, meta, sampleResult().Records); err != nil {
		t.Fatal(err)
	}

	var got ExportData
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Meta.ID != "run" || len(got.Records) != 2 {
		t.Errorf("unexpected export %+v", got)
	}
}

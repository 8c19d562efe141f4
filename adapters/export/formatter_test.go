package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"urnlab/domain/core"
	"urnlab/domain/experiment"
)

func snapshot(jar experiment.JarColor, p float64, samples []experiment.Outcome, estimates, confidences []float64) experiment.StageSnapshot {
	black := 0
	for _, s := range samples {
		if s == experiment.OutcomeBlack {
			black++
		}
	}
	return experiment.StageSnapshot{
		JarColor:        jar,
		Samples:         samples,
		Estimates:       estimates,
		Confidences:     confidences,
		CumulativeBlack: black,
		TrialCount:      len(samples),
		TrueProbability: p,
		Complete:        true,
	}
}

// makeRecord builds a small consistent record: stage 3 strictly extends
// stage 1's history against the same jar.
func makeRecord() *experiment.ExperimentRecord {
	b, w := experiment.OutcomeBlack, experiment.OutcomeWhite

	stage1 := snapshot(experiment.JarRed, 0.7,
		[]experiment.Outcome{b, w, b},
		[]float64{60, 55, 70},
		[]float64{5, 5, 6})
	stage2 := snapshot(experiment.JarGreen, 0.3,
		[]experiment.Outcome{w, w},
		[]float64{30, 25},
		[]float64{4, 6})
	stage3 := snapshot(experiment.JarRed, 0.7,
		[]experiment.Outcome{b, w, b, b, w},
		[]float64{60, 55, 70, 72, 68},
		[]float64{5, 5, 6, 7, 7})

	return &experiment.ExperimentRecord{
		ParticipantID: core.ParticipantID("P1"),
		Timestamp:     core.NewTimestamp(time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)),
		TrainingTrials: []experiment.TrainingResult{
			{Trial: 1, Result: experiment.ResultCorrect},
			{Trial: 2, Result: experiment.ResultIncorrect},
		},
		Stage1: stage1,
		Stage2: stage2,
		Stage3: stage3,
	}
}

func TestFormatCSVShape(t *testing.T) {
	bundle, err := NewFormatter().Format(makeRecord())
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	rows := bundle.CSVRows
	if !reflect.DeepEqual(rows[0], csvHeader) {
		t.Fatalf("header = %v", rows[0])
	}
	// 3 stage-1 trials + 2 stage-2 trials + 5 stage-3 trials
	if len(rows) != 1+3+2+5 {
		t.Fatalf("row count = %d, want 11", len(rows))
	}

	first := rows[1]
	want := []string{"P1", "1", "red", "1", "black", "1", "1", "60", "5", "0.7"}
	if !reflect.DeepEqual(first, want) {
		t.Errorf("first trial row = %v, want %v", first, want)
	}

	// Stage 2 rows restart trial numbering and carry the green jar
	stage2First := rows[1+3]
	if stage2First[1] != "2" || stage2First[2] != "green" || stage2First[3] != "1" || stage2First[9] != "0.3" {
		t.Errorf("stage 2 first row = %v", stage2First)
	}

	// Stage 3 rows carry jar A's probability throughout
	for i := 1 + 3 + 2; i < len(rows); i++ {
		if rows[i][2] != "red" || rows[i][9] != "0.7" {
			t.Errorf("stage 3 row %v has wrong jar/probability", rows[i])
		}
	}

	// cumulative_total always equals the 1-based trial index
	for _, row := range rows[1:] {
		if row[6] != row[3] {
			t.Errorf("row %v: cumulative_total %s != trial %s", row, row[6], row[3])
		}
	}
}

func TestFormatIdempotent(t *testing.T) {
	formatter := NewFormatter()
	record := makeRecord()

	a, err := formatter.Format(record)
	if err != nil {
		t.Fatalf("first Format: %v", err)
	}
	b, err := formatter.Format(record)
	if err != nil {
		t.Fatalf("second Format: %v", err)
	}

	if !bytes.Equal(a.JSON, b.JSON) {
		t.Error("JSON content differs between exports of an unmodified record")
	}
	if !reflect.DeepEqual(a.CSVRows, b.CSVRows) {
		t.Error("CSV rows differ between exports of an unmodified record")
	}
}

func TestFormatJSONBlob(t *testing.T) {
	bundle, err := NewFormatter().Format(makeRecord())
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(bundle.JSON, &doc); err != nil {
		t.Fatalf("export JSON does not parse: %v", err)
	}
	for _, key := range []string{
		"participant_id", "timestamp", "training_trials",
		"stage1_jarA", "stage2_jarB", "stage3_jarA_return",
		"summaries", "fingerprint",
	} {
		if _, ok := doc[key]; !ok {
			t.Errorf("export JSON missing key %q", key)
		}
	}

	var stage3 struct {
		Samples         []string `json:"samples"`
		TrueProbability float64  `json:"true_probability"`
	}
	if err := json.Unmarshal(doc["stage3_jarA_return"], &stage3); err != nil {
		t.Fatalf("stage3 blob: %v", err)
	}
	if len(stage3.Samples) != 5 || stage3.TrueProbability != 0.7 {
		t.Errorf("stage3 blob = %d samples, p=%g", len(stage3.Samples), stage3.TrueProbability)
	}
}

func TestFormatRejectsInconsistentRecord(t *testing.T) {
	record := makeRecord()
	record.Stage3.TrueProbability = 0.5

	if _, err := NewFormatter().Format(record); err == nil {
		t.Fatal("Format accepted a record whose return stage changed probability")
	}
}

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()
	paths, err := NewFormatter().WriteFiles(dir, makeRecord())
	if err != nil {
		t.Fatalf("WriteFiles: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("wrote %d files, want 3", len(paths))
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", p)
		}
		base := filepath.Base(p)
		if want := "participant_P1_20260301_093000"; base[:len(want)] != want {
			t.Errorf("file name %s does not follow naming scheme", base)
		}
	}
}

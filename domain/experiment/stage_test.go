package experiment

import (
	"errors"
	"math/rand"
	"testing"

	"urnlab/domain/core"
)

func newTestStage(t *testing.T, trials int) *StageState {
	t.Helper()
	stage, err := NewStage(JarRed, 0.7, trials, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("NewStage: %v", err)
	}
	return stage
}

// completeTrials runs n full draw+response cycles with fixed responses
func completeTrials(t *testing.T, stage *StageState, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		outcome, err := stage.DrawNext()
		if err != nil {
			t.Fatalf("DrawNext trial %d: %v", i+1, err)
		}
		if _, err := stage.SubmitResponse(outcome, 50, 5); err != nil {
			t.Fatalf("SubmitResponse trial %d: %v", i+1, err)
		}
	}
}

func TestStageSequencing(t *testing.T) {
	stage := newTestStage(t, 5)

	// Submitting before any draw is a protocol error
	if _, err := stage.SubmitResponse(OutcomeBlack, 50, 5); !errors.Is(err, core.ErrOutOfSequence) {
		t.Errorf("submit before draw = %v, want ErrOutOfSequence", err)
	}

	outcome, err := stage.DrawNext()
	if err != nil {
		t.Fatalf("DrawNext: %v", err)
	}
	if outcome != OutcomeBlack && outcome != OutcomeWhite {
		t.Fatalf("DrawNext returned %q", outcome)
	}

	// A second draw before the response is a protocol error
	if _, err := stage.DrawNext(); !errors.Is(err, core.ErrOutOfSequence) {
		t.Errorf("double draw = %v, want ErrOutOfSequence", err)
	}

	pending, ok := stage.PendingOutcome()
	if !ok || pending != outcome {
		t.Errorf("PendingOutcome = %q, %v; want %q, true", pending, ok, outcome)
	}

	if _, err := stage.SubmitResponse(outcome, 75, 8); err != nil {
		t.Fatalf("SubmitResponse: %v", err)
	}
	if stage.Len() != 1 {
		t.Errorf("Len = %d, want 1", stage.Len())
	}
	if stage.AwaitingResponse() {
		t.Error("stage still awaiting response after submit")
	}
}

func TestStageResponseValidation(t *testing.T) {
	tests := []struct {
		name       string
		estimate   float64
		confidence float64
		expectErr  bool
	}{
		{"both at lower bound", 0, 0, false},
		{"both at upper bound", 100, 10, false},
		{"mid values", 62.5, 7, false},
		{"estimate just above range", 100.01, 5, true},
		{"estimate negative", -0.5, 5, true},
		{"confidence just above range", 50, 10.1, true},
		{"confidence negative", 50, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage := newTestStage(t, 3)
			outcome, err := stage.DrawNext()
			if err != nil {
				t.Fatalf("DrawNext: %v", err)
			}

			_, err = stage.SubmitResponse(outcome, tt.estimate, tt.confidence)
			if tt.expectErr {
				if !core.IsValidationError(err) {
					t.Errorf("SubmitResponse = %v, want validation error", err)
				}
				// The rejected response leaves the draw pending for re-prompt
				if !stage.AwaitingResponse() {
					t.Error("rejected response consumed the pending draw")
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestStageCompletion(t *testing.T) {
	stage := newTestStage(t, 4)

	for i := 0; i < 4; i++ {
		if stage.IsComplete() {
			t.Fatalf("stage complete after %d of 4 trials", i)
		}
		completeTrials(t, stage, 1)
	}

	if !stage.IsComplete() {
		t.Fatal("stage not complete after 4 trials")
	}
	if _, err := stage.DrawNext(); !errors.Is(err, core.ErrStageComplete) {
		t.Errorf("draw on complete stage = %v, want ErrStageComplete", err)
	}
}

func TestInitialEstimate(t *testing.T) {
	stage := newTestStage(t, 3)

	// Out-of-range initial estimate is user-correctable
	if err := stage.RecordInitialEstimate(101); !core.IsValidationError(err) {
		t.Errorf("out-of-range initial estimate = %v, want validation error", err)
	}

	if err := stage.RecordInitialEstimate(40); err != nil {
		t.Fatalf("RecordInitialEstimate: %v", err)
	}
	if v, ok := stage.InitialEstimate(); !ok || v != 40 {
		t.Errorf("InitialEstimate = %g, %v; want 40, true", v, ok)
	}

	// Only one initial estimate per stage
	if err := stage.RecordInitialEstimate(45); !errors.Is(err, core.ErrOutOfSequence) {
		t.Errorf("second initial estimate = %v, want ErrOutOfSequence", err)
	}

	// Not allowed once records exist
	fresh := newTestStage(t, 3)
	completeTrials(t, fresh, 1)
	if err := fresh.RecordInitialEstimate(40); !errors.Is(err, core.ErrOutOfSequence) {
		t.Errorf("initial estimate after records = %v, want ErrOutOfSequence", err)
	}
}

func TestResumeStage(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	stage1, err := NewStage(JarRed, 0.7, 40, rng)
	if err != nil {
		t.Fatalf("NewStage: %v", err)
	}
	if err := stage1.RecordInitialEstimate(50); err != nil {
		t.Fatalf("RecordInitialEstimate: %v", err)
	}
	completeTrials(t, stage1, 40)
	if !stage1.IsComplete() {
		t.Fatal("stage 1 not complete after 40 trials")
	}

	stage3, err := ResumeStage(JarRed, 0.7, 30, stage1, rng)
	if err != nil {
		t.Fatalf("ResumeStage: %v", err)
	}

	// Full prior history carried over
	if stage3.InheritedCount() != 40 {
		t.Errorf("InheritedCount = %d, want 40", stage3.InheritedCount())
	}
	prior := stage1.Records()
	resumed := stage3.Records()
	if len(resumed) != 40 {
		t.Fatalf("resumed history length = %d, want 40", len(resumed))
	}
	for i := range prior {
		if resumed[i] != prior[i] {
			t.Fatalf("resumed record %d differs from stage 1", i+1)
		}
	}

	// Inherited initial estimate, but no new one allowed
	if v, ok := stage3.InitialEstimate(); !ok || v != 50 {
		t.Errorf("resumed InitialEstimate = %g, %v; want 50, true", v, ok)
	}
	if err := stage3.RecordInitialEstimate(60); !errors.Is(err, core.ErrOutOfSequence) {
		t.Errorf("initial estimate on resumed stage = %v, want ErrOutOfSequence", err)
	}

	// Own budget of 30 on top of the inherited 40
	if stage3.IsComplete() {
		t.Fatal("resumed stage complete before its own trials")
	}
	completeTrials(t, stage3, 29)
	if stage3.IsComplete() {
		t.Fatal("resumed stage complete at 69 combined records")
	}
	completeTrials(t, stage3, 1)
	if !stage3.IsComplete() {
		t.Fatal("resumed stage not complete at 70 combined records")
	}
	if stage3.Len() != 70 {
		t.Errorf("combined record count = %d, want 70", stage3.Len())
	}

	// The first 40 records are still stage 1's, untouched
	final := stage3.Records()
	for i := range prior {
		if final[i] != prior[i] {
			t.Fatalf("record %d rewritten during resumed trials", i+1)
		}
	}
	if stage1.Len() != 40 {
		t.Errorf("stage 1 history mutated: len = %d", stage1.Len())
	}
}

func TestResumeStageProbabilityMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	stage1, _ := NewStage(JarRed, 0.7, 2, rng)

	if _, err := ResumeStage(JarRed, 0.3, 30, stage1, rng); !errors.Is(err, core.ErrStageMismatch) {
		t.Errorf("ResumeStage with mismatched probability = %v, want ErrStageMismatch", err)
	}
}

func TestStageSnapshot(t *testing.T) {
	stage := newTestStage(t, 5)
	if err := stage.RecordInitialEstimate(30); err != nil {
		t.Fatalf("RecordInitialEstimate: %v", err)
	}
	completeTrials(t, stage, 3)

	snap := stage.Snapshot()
	if snap.JarColor != JarRed {
		t.Errorf("JarColor = %s, want red", snap.JarColor)
	}
	if snap.TrialCount != 3 || len(snap.Samples) != 3 || len(snap.Estimates) != 3 || len(snap.Confidences) != 3 {
		t.Errorf("snapshot lengths = %d/%d/%d/%d, want 3 each",
			snap.TrialCount, len(snap.Samples), len(snap.Estimates), len(snap.Confidences))
	}
	if snap.TrueProbability != 0.7 {
		t.Errorf("TrueProbability = %g, want 0.7", snap.TrueProbability)
	}
	if snap.InitialEstimate == nil || *snap.InitialEstimate != 30 {
		t.Error("snapshot missing initial estimate")
	}
	if snap.Complete {
		t.Error("snapshot reports complete at 3 of 5")
	}

	black := 0
	for _, o := range snap.Samples {
		if o == OutcomeBlack {
			black++
		}
	}
	if snap.CumulativeBlack != black {
		t.Errorf("CumulativeBlack = %d, want %d", snap.CumulativeBlack, black)
	}
}

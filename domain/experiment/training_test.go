package experiment

import (
	"errors"
	"math/rand"
	"testing"

	"urnlab/domain/core"
)

func TestNewTrainingTrial(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	onGrid := func(p float64) bool {
		for _, g := range TrainingGrid {
			if g == p {
				return true
			}
		}
		return false
	}

	// Without-replacement selection never pairs an urn with itself
	for i := 0; i < 500; i++ {
		trial := NewTrainingTrial(rng)

		if trial.ProbabilityA() == trial.ProbabilityB() {
			t.Fatalf("iteration %d: both candidates have probability %g",
				i, trial.ProbabilityA())
		}
		if !onGrid(trial.ProbabilityA()) || !onGrid(trial.ProbabilityB()) {
			t.Fatalf("iteration %d: candidate off grid: %g, %g",
				i, trial.ProbabilityA(), trial.ProbabilityB())
		}
		if len(trial.Sample) < TrainingSampleMin || len(trial.Sample) > TrainingSampleMax {
			t.Fatalf("iteration %d: sample size %d outside [%d, %d]",
				i, len(trial.Sample), TrainingSampleMin, TrainingSampleMax)
		}
	}
}

func TestTrainingTrialScore(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	trial := NewTrainingTrial(rng)

	correct := trial.Score(trial.trueChoice)
	if correct.Result != ResultCorrect {
		t.Errorf("scoring the true choice = %s, want correct", correct.Result)
	}

	wrong := ChoiceA
	if trial.trueChoice == ChoiceA {
		wrong = ChoiceB
	}
	incorrect := trial.Score(wrong)
	if incorrect.Result != ResultIncorrect {
		t.Errorf("scoring the wrong choice = %s, want incorrect", incorrect.Result)
	}
	if incorrect.CorrectChoice != trial.trueChoice {
		t.Errorf("feedback names %s as correct, want %s", incorrect.CorrectChoice, trial.trueChoice)
	}
}

func TestTrainingSessionFlow(t *testing.T) {
	session := NewTrainingSession(rand.New(rand.NewSource(5)))

	// Answering with no outstanding trial is a protocol error
	if _, err := session.SubmitChoice(ChoiceA); !errors.Is(err, core.ErrOutOfSequence) {
		t.Errorf("choice with no trial = %v, want ErrOutOfSequence", err)
	}

	for i := 1; i <= TrainingTrialCount; i++ {
		if session.IsComplete() {
			t.Fatalf("session complete after %d trials", i-1)
		}
		if _, err := session.NextTrial(); err != nil {
			t.Fatalf("NextTrial %d: %v", i, err)
		}
		// A second trial before the answer is a protocol error
		if _, err := session.NextTrial(); !errors.Is(err, core.ErrOutOfSequence) {
			t.Fatalf("double NextTrial = %v, want ErrOutOfSequence", err)
		}
		if _, err := session.SubmitChoice(ChoiceB); err != nil {
			t.Fatalf("SubmitChoice %d: %v", i, err)
		}
	}

	if !session.IsComplete() {
		t.Fatal("session not complete after all trials")
	}
	if _, err := session.NextTrial(); !errors.Is(err, core.ErrTrainingComplete) {
		t.Errorf("NextTrial after completion = %v, want ErrTrainingComplete", err)
	}

	results := session.Results()
	if len(results) != TrainingTrialCount {
		t.Fatalf("result count = %d, want %d", len(results), TrainingTrialCount)
	}
	for i, r := range results {
		if r.Trial != i+1 {
			t.Errorf("result %d has trial number %d", i, r.Trial)
		}
		if r.Result != ResultCorrect && r.Result != ResultIncorrect {
			t.Errorf("result %d has value %q", i, r.Result)
		}
	}
}

func TestTrainingLogResult(t *testing.T) {
	session := NewTrainingSession(rand.New(rand.NewSource(6)))

	// Client-scored results must arrive in trial order
	if err := session.LogResult(2, ResultCorrect); !errors.Is(err, core.ErrOutOfSequence) {
		t.Errorf("out-of-order trial number = %v, want ErrOutOfSequence", err)
	}
	if err := session.LogResult(1, "almost"); !core.IsValidationError(err) {
		t.Errorf("bad result value = %v, want validation error", err)
	}

	for i := 1; i <= TrainingTrialCount; i++ {
		result := ResultCorrect
		if i%3 == 0 {
			result = ResultIncorrect
		}
		if err := session.LogResult(i, result); err != nil {
			t.Fatalf("LogResult %d: %v", i, err)
		}
	}

	if err := session.LogResult(11, ResultCorrect); !errors.Is(err, core.ErrTrainingComplete) {
		t.Errorf("LogResult after completion = %v, want ErrTrainingComplete", err)
	}
}

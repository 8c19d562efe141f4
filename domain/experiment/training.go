package experiment

import (
	"fmt"
	"math/rand"

	"urnlab/domain/core"
)

// Training parameters. Candidate urns come from a fixed 11-value
// probability ladder; sample sizes are drawn uniformly from the inclusive
// 5..10 range.
const (
	TrainingTrialCount = 10
	TrainingSampleMin  = 5
	TrainingSampleMax  = 10
)

// TrainingGrid is the fixed discrete probability grid candidate urns are
// drawn from, without replacement within a trial.
var TrainingGrid = []float64{0.0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0}

// UrnChoice is the participant's forced-choice answer
type UrnChoice string

const (
	ChoiceA UrnChoice = "A"
	ChoiceB UrnChoice = "B"
)

// ParseUrnChoice validates a wire-level choice string
func ParseUrnChoice(s string) (UrnChoice, error) {
	switch UrnChoice(s) {
	case ChoiceA, ChoiceB:
		return UrnChoice(s), nil
	}
	return "", fmt.Errorf("%w: choice must be A or B", core.ErrValidation)
}

// TrialResult scores one training trial
type TrialResult string

const (
	ResultCorrect   TrialResult = "correct"
	ResultIncorrect TrialResult = "incorrect"
)

// ParseTrialResult validates a wire-level result string
func ParseTrialResult(s string) (TrialResult, error) {
	switch TrialResult(s) {
	case ResultCorrect, ResultIncorrect:
		return TrialResult(s), nil
	}
	return "", fmt.Errorf("%w: result must be correct or incorrect", core.ErrValidation)
}

// TrainingTrial is one two-alternative source-identification task: two
// candidate urns with distinct grid probabilities, a sample drawn from the
// true one, and a single forced choice. The trial is discarded after scoring
// except for its (trial, result) pair.
type TrainingTrial struct {
	urnA       *Urn
	urnB       *Urn
	trueChoice UrnChoice
	Sample     []Outcome
}

// NewTrainingTrial builds a trial: two distinct grid probabilities without
// replacement, a uniformly chosen true source, and a 5-10 ball sample.
func NewTrainingTrial(rng *rand.Rand) *TrainingTrial {
	perm := rng.Perm(len(TrainingGrid))
	// Grid values are static and in range; urn construction cannot fail.
	urnA, _ := NewUrn(TrainingGrid[perm[0]], rng)
	urnB, _ := NewUrn(TrainingGrid[perm[1]], rng)

	trueChoice := ChoiceA
	trueUrn := urnA
	if rng.Intn(2) == 1 {
		trueChoice = ChoiceB
		trueUrn = urnB
	}

	sampleSize := TrainingSampleMin + rng.Intn(TrainingSampleMax-TrainingSampleMin+1)
	sample := make([]Outcome, sampleSize)
	for i := range sample {
		sample[i] = trueUrn.Draw()
	}

	return &TrainingTrial{
		urnA:       urnA,
		urnB:       urnB,
		trueChoice: trueChoice,
		Sample:     sample,
	}
}

// ProbabilityA returns candidate A's probability (shown to the participant)
func (t *TrainingTrial) ProbabilityA() float64 { return t.urnA.Probability() }

// ProbabilityB returns candidate B's probability (shown to the participant)
func (t *TrainingTrial) ProbabilityB() float64 { return t.urnB.Probability() }

// TrainingFeedback is returned after scoring a choice so the presentation
// layer can show "Correct!" or name the right answer.
type TrainingFeedback struct {
	Result        TrialResult `json:"result"`
	CorrectChoice UrnChoice   `json:"correct_choice"`
}

// Score compares the participant's choice against the true source
func (t *TrainingTrial) Score(choice UrnChoice) TrainingFeedback {
	result := ResultIncorrect
	if choice == t.trueChoice {
		result = ResultCorrect
	}
	return TrainingFeedback{Result: result, CorrectChoice: t.trueChoice}
}

// TrainingResult is the only data retained per training trial
type TrainingResult struct {
	Trial  int         `json:"trial"`
	Result TrialResult `json:"result"`
}

// TrainingSession runs the fixed sequence of independent training trials.
// It keeps no main-experiment state and no resumption.
type TrainingSession struct {
	rng     *rand.Rand
	current *TrainingTrial
	results []TrainingResult
}

// NewTrainingSession creates a session with the standard trial count
func NewTrainingSession(rng *rand.Rand) *TrainingSession {
	return &TrainingSession{
		rng:     rng,
		results: make([]TrainingResult, 0, TrainingTrialCount),
	}
}

// NextTrial generates the next trial. The previous trial must have been
// answered first.
func (s *TrainingSession) NextTrial() (*TrainingTrial, error) {
	if s.IsComplete() {
		return nil, core.ErrTrainingComplete
	}
	if s.current != nil {
		return nil, core.ErrOutOfSequence
	}
	s.current = NewTrainingTrial(s.rng)
	return s.current, nil
}

// SubmitChoice scores the outstanding trial and logs its result
func (s *TrainingSession) SubmitChoice(choice UrnChoice) (TrainingFeedback, error) {
	if s.current == nil {
		return TrainingFeedback{}, core.ErrOutOfSequence
	}
	if _, err := ParseUrnChoice(string(choice)); err != nil {
		return TrainingFeedback{}, err
	}
	feedback := s.current.Score(choice)
	s.results = append(s.results, TrainingResult{
		Trial:  len(s.results) + 1,
		Result: feedback.Result,
	})
	s.current = nil
	return feedback, nil
}

// LogResult records a result scored by the presentation layer itself. The
// browser variant runs training trials client-side and reports only the
// (trial, result) pair; trial numbers must arrive in order.
func (s *TrainingSession) LogResult(trialNum int, result TrialResult) error {
	if s.IsComplete() {
		return core.ErrTrainingComplete
	}
	if _, err := ParseTrialResult(string(result)); err != nil {
		return err
	}
	if trialNum != len(s.results)+1 {
		return core.ErrOutOfSequence
	}
	s.results = append(s.results, TrainingResult{Trial: trialNum, Result: result})
	return nil
}

// IsComplete reports whether all training trials have been scored
func (s *TrainingSession) IsComplete() bool {
	return len(s.results) >= TrainingTrialCount
}

// Completed returns the number of scored trials
func (s *TrainingSession) Completed() int {
	return len(s.results)
}

// Results returns a copy of the scored results in trial order
func (s *TrainingSession) Results() []TrainingResult {
	out := make([]TrainingResult, len(s.results))
	copy(out, s.results)
	return out
}

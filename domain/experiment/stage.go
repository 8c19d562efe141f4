package experiment

import (
	"math/rand"

	"urnlab/domain/core"
)

// JarColor labels the jar a stage draws from, as shown to the participant
type JarColor string

const (
	JarRed   JarColor = "red"
	JarGreen JarColor = "green"
)

// stageStep is the per-stage two-state machine. A new draw is permitted only
// once the prior draw's response has been submitted.
type stageStep int

const (
	stepAwaitingDraw stageStep = iota
	stepAwaitingResponse
)

// StageState holds the ordered draw/estimate/confidence history for one
// jar visit. A stage visiting a previously-used jar is built with
// ResumeStage and continues appending to the inherited history; prior
// entries are never truncated or rewritten.
type StageState struct {
	jarColor        JarColor
	urn             *Urn
	trialBudget     int // trials this visit adds on top of any inherited history
	baseCount       int // records inherited from a previous visit
	records         []TrialRecord
	initialEstimate *float64
	step            stageStep
	pending         Outcome
}

// NewStage starts a fresh stage against a new urn with the given hidden
// probability and trial budget.
func NewStage(jar JarColor, probability float64, trials int, rng *rand.Rand) (*StageState, error) {
	urn, err := NewUrn(probability, rng)
	if err != nil {
		return nil, err
	}
	return &StageState{
		jarColor:    jar,
		urn:         urn,
		trialBudget: trials,
		records:     make([]TrialRecord, 0, trials),
	}, nil
}

// ResumeStage continues a previously-visited jar. The full record history of
// the previous stage is carried over and the completion target becomes the
// inherited count plus this stage's own budget. The hidden probability must
// match the previous visit; a mismatch means the session was wired wrong.
// The urn is reconstructed with fresh randomness - history is replayed from
// the stored records, never regenerated from a seed.
func ResumeStage(jar JarColor, probability float64, trials int, previous *StageState, rng *rand.Rand) (*StageState, error) {
	if previous == nil {
		return NewStage(jar, probability, trials, rng)
	}
	if previous.urn.Probability() != probability {
		return nil, core.ErrStageMismatch
	}
	urn, err := NewUrn(probability, rng)
	if err != nil {
		return nil, err
	}
	inherited := previous.Records()
	s := &StageState{
		jarColor:    jar,
		urn:         urn,
		trialBudget: trials,
		baseCount:   len(inherited),
		records:     inherited,
	}
	if previous.initialEstimate != nil {
		v := *previous.initialEstimate
		s.initialEstimate = &v
	}
	return s, nil
}

// RecordInitialEstimate stores the estimate given before any draw. It has no
// associated outcome, so it lives outside the record sequence. Only a fresh
// stage with no history may take one, and only once.
func (s *StageState) RecordInitialEstimate(estimate float64) error {
	if len(s.records) > 0 || s.initialEstimate != nil || s.step != stepAwaitingDraw {
		return core.ErrOutOfSequence
	}
	if err := ValidateEstimate(estimate); err != nil {
		return err
	}
	v := estimate
	s.initialEstimate = &v
	return nil
}

// DrawNext samples a ball from the stage's urn. The record is not appended
// yet - the estimate and confidence for this draw are still pending.
func (s *StageState) DrawNext() (Outcome, error) {
	if s.IsComplete() {
		return "", core.ErrStageComplete
	}
	if s.step != stepAwaitingDraw {
		return "", core.ErrOutOfSequence
	}
	outcome := s.urn.Draw()
	s.pending = outcome
	s.step = stepAwaitingResponse
	return outcome, nil
}

// SubmitResponse completes the pending draw with the participant's estimate
// and confidence, appending an immutable record.
func (s *StageState) SubmitResponse(outcome Outcome, estimate, confidence float64) (TrialRecord, error) {
	if s.step != stepAwaitingResponse {
		return TrialRecord{}, core.ErrOutOfSequence
	}
	if s.IsComplete() {
		return TrialRecord{}, core.ErrStageComplete
	}
	record, err := NewTrialRecord(outcome, estimate, confidence)
	if err != nil {
		return TrialRecord{}, err
	}
	s.records = append(s.records, record)
	s.pending = ""
	s.step = stepAwaitingDraw
	return record, nil
}

// IsComplete reports whether the combined history has reached this visit's
// target (inherited records plus this stage's own budget).
func (s *StageState) IsComplete() bool {
	return len(s.records) >= s.baseCount+s.trialBudget
}

// AwaitingResponse reports whether a draw is pending its response
func (s *StageState) AwaitingResponse() bool {
	return s.step == stepAwaitingResponse
}

// PendingOutcome returns the drawn-but-unanswered ball, if any
func (s *StageState) PendingOutcome() (Outcome, bool) {
	if s.step != stepAwaitingResponse {
		return "", false
	}
	return s.pending, true
}

// JarColor returns the stage's jar label
func (s *StageState) JarColor() JarColor {
	return s.jarColor
}

// Probability returns the hidden ground-truth black probability
func (s *StageState) Probability() float64 {
	return s.urn.Probability()
}

// TrialBudget returns the number of trials this visit adds
func (s *StageState) TrialBudget() int {
	return s.trialBudget
}

// TotalBudget returns the combined completion target
func (s *StageState) TotalBudget() int {
	return s.baseCount + s.trialBudget
}

// InheritedCount returns the number of records carried over from a
// previous visit (zero for a fresh stage).
func (s *StageState) InheritedCount() int {
	return s.baseCount
}

// Len returns the combined record count
func (s *StageState) Len() int {
	return len(s.records)
}

// BlackCount returns the cumulative number of black draws in the history
func (s *StageState) BlackCount() int {
	n := 0
	for _, r := range s.records {
		if r.Outcome == OutcomeBlack {
			n++
		}
	}
	return n
}

// Records returns a copy of the record history in draw order
func (s *StageState) Records() []TrialRecord {
	out := make([]TrialRecord, len(s.records))
	copy(out, s.records)
	return out
}

// InitialEstimate returns the pre-draw estimate, if one was recorded
func (s *StageState) InitialEstimate() (float64, bool) {
	if s.initialEstimate == nil {
		return 0, false
	}
	return *s.initialEstimate, true
}

// StageSnapshot is the read-only view handed to presentation and export
// collaborators. Parallel slices keep draw order.
type StageSnapshot struct {
	JarColor        JarColor  `json:"jar_color"`
	Samples         []Outcome `json:"samples"`
	Estimates       []float64 `json:"estimates"`
	Confidences     []float64 `json:"confidences"`
	InitialEstimate *float64  `json:"initial_estimate,omitempty"`
	CumulativeBlack int       `json:"cumulative_black"`
	TrialCount      int       `json:"trial_count"`
	TrialBudget     int       `json:"trial_budget"`
	Complete        bool      `json:"complete"`
	TrueProbability float64   `json:"true_probability"`
}

// Snapshot builds the current read-only view of the stage
func (s *StageState) Snapshot() StageSnapshot {
	snap := StageSnapshot{
		JarColor:        s.jarColor,
		Samples:         make([]Outcome, 0, len(s.records)),
		Estimates:       make([]float64, 0, len(s.records)),
		Confidences:     make([]float64, 0, len(s.records)),
		CumulativeBlack: s.BlackCount(),
		TrialCount:      len(s.records),
		TrialBudget:     s.baseCount + s.trialBudget,
		Complete:        s.IsComplete(),
		TrueProbability: s.urn.Probability(),
	}
	for _, r := range s.records {
		snap.Samples = append(snap.Samples, r.Outcome)
		snap.Estimates = append(snap.Estimates, r.Estimate)
		snap.Confidences = append(snap.Confidences, r.Confidence)
	}
	if s.initialEstimate != nil {
		v := *s.initialEstimate
		snap.InitialEstimate = &v
	}
	return snap
}

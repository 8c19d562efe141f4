package experiment

import (
	"math/rand"

	"urnlab/domain/core"
)

// Session is the per-participant experiment controller. It owns the phase
// machine, the training session, and the three main-stage states, and is the
// only thing allowed to mutate them. All methods are phase-gated: calling an
// operation outside its phase is a protocol error, not a user error.
//
// A session is not safe for concurrent use; callers serialize access
// (the service layer holds one mutex per session).
type Session struct {
	ID          core.SessionID
	Participant core.ParticipantID
	StartedAt   core.Timestamp

	rng   *rand.Rand
	phase Phase

	consentGiven bool
	exported     bool

	// Both jar probabilities are fixed at session start; stage 3 reuses
	// jar A's through resumption rather than rereading this field.
	jarAProbability float64
	jarBProbability float64

	training *TrainingSession
	stage1   *StageState
	stage2   *StageState
	stage3   *StageState
}

// NewSession starts a session with both hidden jar probabilities drawn
// uniformly from [0,1].
func NewSession(participant core.ParticipantID, rng *rand.Rand, startedAt core.Timestamp) (*Session, error) {
	return NewSessionWithJars(participant, rng.Float64(), rng.Float64(), rng, startedAt)
}

// NewSessionWithJars starts a session with explicit jar probabilities.
// Used by deterministic test fixtures and scripted study configurations.
func NewSessionWithJars(participant core.ParticipantID, jarA, jarB float64, rng *rand.Rand, startedAt core.Timestamp) (*Session, error) {
	if participant.String() == "" {
		return nil, core.ErrValidation
	}
	if jarA < 0 || jarA > 1 || jarB < 0 || jarB > 1 {
		return nil, core.ErrInvalidProbability
	}
	return &Session{
		ID:              core.SessionID(core.NewID()),
		Participant:     participant,
		StartedAt:       startedAt,
		rng:             rng,
		phase:           PhaseConsent,
		jarAProbability: jarA,
		jarBProbability: jarB,
	}, nil
}

// Phase returns the current session phase
func (s *Session) Phase() Phase {
	return s.phase
}

// GiveConsent records informed consent. The consent phase then reports
// completion and Advance moves the session into training.
func (s *Session) GiveConsent() error {
	if s.phase != PhaseConsent {
		return core.NewPhaseError("consent", s.phase.String())
	}
	s.consentGiven = true
	return nil
}

// DeclineConsent terminates the session before any data collection. This is
// an expected outcome, not an error; no export will be produced.
func (s *Session) DeclineConsent() error {
	if s.phase != PhaseConsent {
		return core.NewPhaseError("decline_consent", s.phase.String())
	}
	s.phase = PhaseDeclined
	return nil
}

// Declined reports whether the participant declined consent
func (s *Session) Declined() bool {
	return s.phase == PhaseDeclined
}

// phaseComplete reports whether the current phase has met its completion
// condition and the session may advance.
func (s *Session) phaseComplete() bool {
	switch s.phase {
	case PhaseConsent:
		return s.consentGiven
	case PhaseTraining:
		return s.training != nil && s.training.IsComplete()
	case PhaseStage1JarA:
		return s.stage1.IsComplete()
	case PhaseStage2JarB:
		return s.stage2.IsComplete()
	case PhaseStage3JarAReturn:
		return s.stage3.IsComplete()
	case PhaseExport:
		return s.exported
	default:
		return false
	}
}

// Advance moves to the next phase, constructing the state the new phase
// needs. It refuses to advance a phase that has not reported completion.
func (s *Session) Advance() error {
	if s.phase.Terminal() {
		return core.NewPhaseError("advance", s.phase.String())
	}
	if !s.phaseComplete() {
		return core.NewPhaseError("advance", s.phase.String())
	}

	switch s.phase {
	case PhaseConsent:
		s.training = NewTrainingSession(s.rng)
		s.phase = PhaseTraining
	case PhaseTraining:
		stage, err := NewStage(JarRed, s.jarAProbability, Stage1TrialCount, s.rng)
		if err != nil {
			return err
		}
		s.stage1 = stage
		s.phase = PhaseStage1JarA
	case PhaseStage1JarA:
		stage, err := NewStage(JarGreen, s.jarBProbability, Stage2TrialCount, s.rng)
		if err != nil {
			return err
		}
		s.stage2 = stage
		s.phase = PhaseStage2JarB
	case PhaseStage2JarB:
		// Returning to jar A: same hidden probability, full stage-1 history
		// carried over, 30 further trials on top of it.
		stage, err := ResumeStage(JarRed, s.stage1.Probability(), Stage3TrialCount, s.stage1, s.rng)
		if err != nil {
			return err
		}
		s.stage3 = stage
		s.phase = PhaseStage3JarAReturn
	case PhaseStage3JarAReturn:
		s.phase = PhaseExport
	case PhaseExport:
		s.phase = PhaseDone
	}
	return nil
}

// currentStage returns the stage owned by the current phase
func (s *Session) currentStage() (*StageState, StageKey, error) {
	switch s.phase {
	case PhaseStage1JarA:
		return s.stage1, StageKey1, nil
	case PhaseStage2JarB:
		return s.stage2, StageKey2, nil
	case PhaseStage3JarAReturn:
		return s.stage3, StageKey3, nil
	}
	return nil, "", core.NewPhaseError("stage operation", s.phase.String())
}

// CurrentStageKey returns the key of the running stage, if any
func (s *Session) CurrentStageKey() (StageKey, bool) {
	_, key, err := s.currentStage()
	if err != nil {
		return "", false
	}
	return key, true
}

// RecordInitialEstimate stores the pre-draw estimate for the running stage
func (s *Session) RecordInitialEstimate(estimate float64) error {
	stage, _, err := s.currentStage()
	if err != nil {
		return err
	}
	return stage.RecordInitialEstimate(estimate)
}

// Draw samples a ball from the running stage's jar. The jar label must name
// the jar the current phase is drawing from.
func (s *Session) Draw(jar JarColor) (Outcome, error) {
	stage, _, err := s.currentStage()
	if err != nil {
		return "", err
	}
	if stage.JarColor() != jar {
		return "", core.NewPhaseError("draw from "+string(jar)+" jar", s.phase.String())
	}
	return stage.DrawNext()
}

// SubmitTrial completes the pending draw on the named stage. The stage key
// must match the running phase.
func (s *Session) SubmitTrial(key StageKey, outcome Outcome, estimate, confidence float64) (TrialRecord, error) {
	stage, current, err := s.currentStage()
	if err != nil {
		return TrialRecord{}, err
	}
	if key != current {
		return TrialRecord{}, core.NewPhaseError("submit to "+string(key), s.phase.String())
	}
	return stage.SubmitResponse(outcome, estimate, confidence)
}

// TrainingNextTrial generates the next training trial
func (s *Session) TrainingNextTrial() (*TrainingTrial, error) {
	if s.phase != PhaseTraining {
		return nil, core.NewPhaseError("training trial", s.phase.String())
	}
	return s.training.NextTrial()
}

// TrainingSubmitChoice scores the outstanding training trial
func (s *Session) TrainingSubmitChoice(choice UrnChoice) (TrainingFeedback, error) {
	if s.phase != PhaseTraining {
		return TrainingFeedback{}, core.NewPhaseError("training choice", s.phase.String())
	}
	return s.training.SubmitChoice(choice)
}

// TrainingLogResult records a client-scored training result
func (s *Session) TrainingLogResult(trialNum int, result TrialResult) error {
	if s.phase != PhaseTraining {
		return core.NewPhaseError("training result", s.phase.String())
	}
	return s.training.LogResult(trialNum, result)
}

// TrainingResults returns the scored training results so far
func (s *Session) TrainingResults() []TrainingResult {
	if s.training == nil {
		return nil
	}
	return s.training.Results()
}

// StageSnapshot returns the read-only view of a stage. Unlike the mutating
// operations this is allowed from any phase once the stage exists; the
// presentation layer polls snapshots to render history.
func (s *Session) StageSnapshot(key StageKey) (StageSnapshot, error) {
	var stage *StageState
	switch key {
	case StageKey1:
		stage = s.stage1
	case StageKey2:
		stage = s.stage2
	case StageKey3:
		stage = s.stage3
	default:
		return StageSnapshot{}, core.ErrStageNotFound
	}
	if stage == nil {
		return StageSnapshot{}, core.ErrStageNotFound
	}
	return stage.Snapshot(), nil
}

// Record freezes the completed experiment into its export form. Only
// available once the session has reached the export phase.
func (s *Session) Record() (*ExperimentRecord, error) {
	if s.phase != PhaseExport && s.phase != PhaseDone {
		return nil, core.NewPhaseError("export", s.phase.String())
	}
	return &ExperimentRecord{
		ParticipantID:  s.Participant,
		Timestamp:      s.StartedAt,
		TrainingTrials: s.training.Results(),
		Stage1:         s.stage1.Snapshot(),
		Stage2:         s.stage2.Snapshot(),
		Stage3:         s.stage3.Snapshot(),
	}, nil
}

// MarkExported records that the export bundle has been produced, completing
// the export phase.
func (s *Session) MarkExported() error {
	if s.phase != PhaseExport {
		return core.NewPhaseError("mark exported", s.phase.String())
	}
	s.exported = true
	return nil
}

// Exported reports whether the export bundle has been produced
func (s *Session) Exported() bool {
	return s.exported
}

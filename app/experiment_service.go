package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"urnlab/domain/core"
	"urnlab/domain/experiment"
	"urnlab/internal"
	apperrors "urnlab/internal/errors"
	"urnlab/ports"
)

// ExperimentService orchestrates live sessions against the domain model. It
// owns the in-process session table; the repository behind it is a crash
// journal and researcher surface, never the source of truth for a running
// session. Each session carries its own mutex, so participants never block
// each other.
type ExperimentService struct {
	repo     ports.SessionRepository
	exporter ports.ExporterPort
	rngPort  ports.RNGPort
	logger   *internal.Logger

	dataDir string
	seed    int64

	mu       sync.RWMutex
	sessions map[core.ParticipantID]*liveSession
}

type liveSession struct {
	mu   sync.Mutex
	sess *experiment.Session
}

// NewExperimentService creates the experiment service
func NewExperimentService(repo ports.SessionRepository, exporter ports.ExporterPort, rngPort ports.RNGPort, logger *internal.Logger, dataDir string, seed int64) *ExperimentService {
	return &ExperimentService{
		repo:     repo,
		exporter: exporter,
		rngPort:  rngPort,
		logger:   logger,
		dataDir:  dataDir,
		seed:     seed,
		sessions: make(map[core.ParticipantID]*liveSession),
	}
}

// SessionStatus is the wire-level view of where a session stands
type SessionStatus struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	Phase         string `json:"phase"`
	Stage         string `json:"stage,omitempty"`
	Trial         int    `json:"trial,omitempty"`
	Exported      bool   `json:"exported"`
}

// TrainingTrialView is what the participant sees for one training trial: the
// two candidate probabilities and the sample, never the true source.
type TrainingTrialView struct {
	Trial        int                  `json:"trial"`
	ProbabilityA float64              `json:"probability_a"`
	ProbabilityB float64              `json:"probability_b"`
	Sample       []experiment.Outcome `json:"sample"`
}

// TrainingChoiceResult carries scoring feedback plus session progress
type TrainingChoiceResult struct {
	Feedback  experiment.TrainingFeedback `json:"feedback"`
	Completed int                         `json:"completed"`
	Phase     string                      `json:"phase"`
}

// DrawResult is one sampled ball and the trial it belongs to
type DrawResult struct {
	Outcome experiment.Outcome `json:"outcome"`
	Trial   int                `json:"trial"`
	Stage   string             `json:"stage"`
}

// TrialView reports a submitted trial and the stage's running tally
type TrialView struct {
	Trial           int    `json:"trial"`
	CumulativeBlack int    `json:"cumulative_black"`
	CumulativeTotal int    `json:"cumulative_total"`
	StageComplete   bool   `json:"stage_complete"`
	Phase           string `json:"phase"`
}

// ExportResult names the written files and the record fingerprint
type ExportResult struct {
	Files       []string `json:"files"`
	Fingerprint string   `json:"fingerprint"`
}

// StartSession registers a participant and creates their session in the
// consent phase. A participant ID already known, live or persisted, is
// rejected; sessions are never silently replaced.
func (s *ExperimentService) StartSession(ctx context.Context, participantID string) (SessionStatus, error) {
	pid, err := core.ParseParticipantID(participantID)
	if err != nil {
		return SessionStatus{}, fmt.Errorf("%w: %v", core.ErrValidation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[pid]; exists {
		return SessionStatus{}, fmt.Errorf("%w: %s", core.ErrDuplicateParticipant, pid)
	}
	if _, err := s.repo.GetSnapshot(ctx, pid); err == nil {
		return SessionStatus{}, fmt.Errorf("%w: %s has stored data", core.ErrDuplicateParticipant, pid)
	}

	stream := s.rngPort.SessionStream(pid.String(), s.seed)
	sess, err := experiment.NewSession(pid, stream, core.Now())
	if err != nil {
		return SessionStatus{}, err
	}

	live := &liveSession{sess: sess}
	s.sessions[pid] = live
	s.persist(ctx, sess)
	s.logger.Info("session %s started for participant %s", sess.ID, pid)
	return statusOf(sess), nil
}

// Consent records the participant's consent decision. Agreeing moves the
// session into training; declining ends it with no data collected.
func (s *ExperimentService) Consent(ctx context.Context, participantID string, agree bool) (SessionStatus, error) {
	live, err := s.getSession(participantID)
	if err != nil {
		return SessionStatus{}, err
	}
	live.mu.Lock()
	defer live.mu.Unlock()

	if agree {
		if err := live.sess.GiveConsent(); err != nil {
			return SessionStatus{}, err
		}
		if err := live.sess.Advance(); err != nil {
			return SessionStatus{}, err
		}
	} else {
		if err := live.sess.DeclineConsent(); err != nil {
			return SessionStatus{}, err
		}
		s.logger.Info("participant %s declined consent", live.sess.Participant)
	}
	s.persist(ctx, live.sess)
	return statusOf(live.sess), nil
}

// NextTrainingTrial generates the participant's next training trial
func (s *ExperimentService) NextTrainingTrial(_ context.Context, participantID string) (TrainingTrialView, error) {
	live, err := s.getSession(participantID)
	if err != nil {
		return TrainingTrialView{}, err
	}
	live.mu.Lock()
	defer live.mu.Unlock()

	trial, err := live.sess.TrainingNextTrial()
	if err != nil {
		return TrainingTrialView{}, err
	}
	return TrainingTrialView{
		Trial:        len(live.sess.TrainingResults()) + 1,
		ProbabilityA: trial.ProbabilityA(),
		ProbabilityB: trial.ProbabilityB(),
		Sample:       trial.Sample,
	}, nil
}

// SubmitTrainingChoice scores the outstanding training trial. Completing the
// tenth trial advances the session into stage 1.
func (s *ExperimentService) SubmitTrainingChoice(ctx context.Context, participantID, choice string) (TrainingChoiceResult, error) {
	live, err := s.getSession(participantID)
	if err != nil {
		return TrainingChoiceResult{}, err
	}
	live.mu.Lock()
	defer live.mu.Unlock()

	parsed, err := experiment.ParseUrnChoice(choice)
	if err != nil {
		return TrainingChoiceResult{}, err
	}
	feedback, err := live.sess.TrainingSubmitChoice(parsed)
	if err != nil {
		return TrainingChoiceResult{}, err
	}
	if err := s.advanceIfDone(live.sess); err != nil {
		return TrainingChoiceResult{}, err
	}
	s.persist(ctx, live.sess)
	return TrainingChoiceResult{
		Feedback:  feedback,
		Completed: len(live.sess.TrainingResults()),
		Phase:     live.sess.Phase().String(),
	}, nil
}

// LogTrainingResult records a training result scored by the client. Trial
// numbers must arrive in order; the tenth result advances into stage 1.
func (s *ExperimentService) LogTrainingResult(ctx context.Context, participantID string, trialNum int, result string) (SessionStatus, error) {
	live, err := s.getSession(participantID)
	if err != nil {
		return SessionStatus{}, err
	}
	live.mu.Lock()
	defer live.mu.Unlock()

	parsed, err := experiment.ParseTrialResult(result)
	if err != nil {
		return SessionStatus{}, err
	}
	if err := live.sess.TrainingLogResult(trialNum, parsed); err != nil {
		return SessionStatus{}, err
	}
	if err := s.advanceIfDone(live.sess); err != nil {
		return SessionStatus{}, err
	}
	s.persist(ctx, live.sess)
	return statusOf(live.sess), nil
}

// RecordInitialEstimate stores the pre-draw estimate for the running stage
func (s *ExperimentService) RecordInitialEstimate(ctx context.Context, participantID string, estimate float64) error {
	live, err := s.getSession(participantID)
	if err != nil {
		return err
	}
	live.mu.Lock()
	defer live.mu.Unlock()

	if err := live.sess.RecordInitialEstimate(estimate); err != nil {
		return err
	}
	s.persist(ctx, live.sess)
	return nil
}

// Draw samples a ball from the named jar for the running stage
func (s *ExperimentService) Draw(_ context.Context, participantID, jar string) (DrawResult, error) {
	live, err := s.getSession(participantID)
	if err != nil {
		return DrawResult{}, err
	}
	live.mu.Lock()
	defer live.mu.Unlock()

	var color experiment.JarColor
	switch experiment.JarColor(jar) {
	case experiment.JarRed, experiment.JarGreen:
		color = experiment.JarColor(jar)
	default:
		return DrawResult{}, fmt.Errorf("%w: jar must be red or green", core.ErrValidation)
	}

	outcome, err := live.sess.Draw(color)
	if err != nil {
		return DrawResult{}, err
	}
	key, _ := live.sess.CurrentStageKey()
	snap, _ := live.sess.StageSnapshot(key)
	return DrawResult{
		Outcome: outcome,
		Trial:   snap.TrialCount + 1,
		Stage:   string(key),
	}, nil
}

// SubmitTrial completes the pending draw with the participant's estimate and
// confidence. Completing a stage's budget advances the session to the next
// phase; finishing the returning jar lands in the export phase.
func (s *ExperimentService) SubmitTrial(ctx context.Context, participantID, stage, outcome string, estimate, confidence float64) (TrialView, error) {
	live, err := s.getSession(participantID)
	if err != nil {
		return TrialView{}, err
	}
	live.mu.Lock()
	defer live.mu.Unlock()

	key, err := experiment.ParseStageKey(stage)
	if err != nil {
		return TrialView{}, err
	}
	parsed, err := experiment.ParseOutcome(outcome)
	if err != nil {
		return TrialView{}, err
	}
	if _, err := live.sess.SubmitTrial(key, parsed, estimate, confidence); err != nil {
		return TrialView{}, err
	}

	snap, err := live.sess.StageSnapshot(key)
	if err != nil {
		return TrialView{}, err
	}
	if err := s.advanceIfDone(live.sess); err != nil {
		return TrialView{}, err
	}
	s.persist(ctx, live.sess)
	return TrialView{
		Trial:           snap.TrialCount,
		CumulativeBlack: snap.CumulativeBlack,
		CumulativeTotal: snap.TrialCount,
		StageComplete:   snap.Complete,
		Phase:           live.sess.Phase().String(),
	}, nil
}

// StageData returns the read-only view of a stage for rendering history
func (s *ExperimentService) StageData(_ context.Context, participantID, stage string) (experiment.StageSnapshot, error) {
	live, err := s.getSession(participantID)
	if err != nil {
		return experiment.StageSnapshot{}, err
	}
	live.mu.Lock()
	defer live.mu.Unlock()

	key, err := experiment.ParseStageKey(stage)
	if err != nil {
		return experiment.StageSnapshot{}, err
	}
	return live.sess.StageSnapshot(key)
}

// Status reports where a session currently stands
func (s *ExperimentService) Status(_ context.Context, participantID string) (SessionStatus, error) {
	live, err := s.getSession(participantID)
	if err != nil {
		return SessionStatus{}, err
	}
	live.mu.Lock()
	defer live.mu.Unlock()
	return statusOf(live.sess), nil
}

// Export freezes the completed session and writes its JSON, CSV and XLSX
// files under the configured data directory. Exporting completes the export
// phase and moves the session to done. Repeating the call on a done session
// rewrites identical JSON and CSV content.
func (s *ExperimentService) Export(ctx context.Context, participantID string) (ExportResult, error) {
	live, err := s.getSession(participantID)
	if err != nil {
		return ExportResult{}, err
	}
	live.mu.Lock()
	defer live.mu.Unlock()

	record, err := live.sess.Record()
	if err != nil {
		return ExportResult{}, err
	}
	files, err := s.exporter.WriteFiles(s.dataDir, record)
	if err != nil {
		return ExportResult{}, apperrors.ExportFailed("writing export files", err)
	}
	fingerprint, err := record.Fingerprint()
	if err != nil {
		return ExportResult{}, apperrors.ExportFailed("fingerprinting record", err)
	}

	if live.sess.Phase() == experiment.PhaseExport {
		if err := live.sess.MarkExported(); err != nil {
			return ExportResult{}, err
		}
		if err := live.sess.Advance(); err != nil {
			return ExportResult{}, err
		}
	}
	s.persist(ctx, live.sess)
	s.logger.Info("exported session for participant %s (%d files)", live.sess.Participant, len(files))
	return ExportResult{Files: files, Fingerprint: fingerprint}, nil
}

// FormatRecord renders a completed session's export bundle in memory, for
// the researcher surface to serve as downloads.
func (s *ExperimentService) FormatRecord(_ context.Context, participantID string) (*ports.ExportBundle, error) {
	live, err := s.getSession(participantID)
	if err != nil {
		return nil, err
	}
	live.mu.Lock()
	defer live.mu.Unlock()

	record, err := live.sess.Record()
	if err != nil {
		return nil, err
	}
	return s.exporter.Format(record)
}

// ExportAll writes export files for every session that has reached the
// export or done phase, concurrently. Returns files keyed by participant.
func (s *ExperimentService) ExportAll(ctx context.Context) (map[string][]string, error) {
	s.mu.RLock()
	ready := make([]string, 0, len(s.sessions))
	for pid, live := range s.sessions {
		live.mu.Lock()
		phase := live.sess.Phase()
		live.mu.Unlock()
		if phase == experiment.PhaseExport || phase == experiment.PhaseDone {
			ready = append(ready, pid.String())
		}
	}
	s.mu.RUnlock()

	var resultMu sync.Mutex
	results := make(map[string][]string, len(ready))

	g, ctx := errgroup.WithContext(ctx)
	for _, pid := range ready {
		pid := pid
		g.Go(func() error {
			res, err := s.Export(ctx, pid)
			if err != nil {
				return apperrors.Wrapf(err, "export for %s failed", pid)
			}
			resultMu.Lock()
			results[pid] = res.Files
			resultMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// ListSessions returns the persisted snapshots, most recent first
func (s *ExperimentService) ListSessions(ctx context.Context) ([]experiment.SessionSnapshot, error) {
	return s.repo.ListSnapshots(ctx)
}

// GetSnapshot returns the persisted snapshot for one participant
func (s *ExperimentService) GetSnapshot(ctx context.Context, participantID string) (experiment.SessionSnapshot, error) {
	pid, err := core.ParseParticipantID(participantID)
	if err != nil {
		return experiment.SessionSnapshot{}, fmt.Errorf("%w: %v", core.ErrValidation, err)
	}
	return s.repo.GetSnapshot(ctx, pid)
}

// RemoveSession drops a session from the live table and the repository
func (s *ExperimentService) RemoveSession(ctx context.Context, participantID string) error {
	pid, err := core.ParseParticipantID(participantID)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrValidation, err)
	}
	s.mu.Lock()
	delete(s.sessions, pid)
	s.mu.Unlock()
	return s.repo.DeleteSnapshot(ctx, pid)
}

// advanceIfDone advances the session when its current phase just completed.
// Stage and training completion are participant-driven, so the service rolls
// the phase forward rather than waiting for an explicit advance call.
func (s *ExperimentService) advanceIfDone(sess *experiment.Session) error {
	if err := sess.Advance(); err != nil {
		if errors.Is(err, core.ErrPhaseViolation) {
			return nil // phase not complete yet
		}
		return err
	}
	s.logger.Info("participant %s advanced to %s", sess.Participant, sess.Phase())
	return nil
}

func (s *ExperimentService) getSession(participantID string) (*liveSession, error) {
	pid, err := core.ParseParticipantID(participantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrValidation, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	live, ok := s.sessions[pid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, pid)
	}
	return live, nil
}

// persist journals the session snapshot. A storage failure is logged and
// swallowed: the live session stays authoritative and the next mutation
// retries the save.
func (s *ExperimentService) persist(ctx context.Context, sess *experiment.Session) {
	if err := s.repo.SaveSnapshot(ctx, sess.Snapshot()); err != nil {
		s.logger.Warn("snapshot save failed for %s: %v", sess.Participant, err)
	}
}

func statusOf(sess *experiment.Session) SessionStatus {
	status := SessionStatus{
		SessionID:     sess.ID.String(),
		ParticipantID: sess.Participant.String(),
		Phase:         sess.Phase().String(),
		Exported:      sess.Exported(),
	}
	if key, ok := sess.CurrentStageKey(); ok {
		status.Stage = string(key)
		if snap, err := sess.StageSnapshot(key); err == nil {
			status.Trial = snap.TrialCount + 1
		}
	}
	return status
}

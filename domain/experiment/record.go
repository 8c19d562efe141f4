package experiment

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"urnlab/domain/core"
)

// ExperimentRecord is the frozen aggregate of one completed session, handed
// to the export formatter. Its JSON form is the canonical export blob.
type ExperimentRecord struct {
	ParticipantID  core.ParticipantID `json:"participant_id"`
	Timestamp      core.Timestamp     `json:"timestamp"`
	TrainingTrials []TrainingResult   `json:"training_trials"`
	Stage1         StageSnapshot      `json:"stage1_jarA"`
	Stage2         StageSnapshot      `json:"stage2_jarB"`
	Stage3         StageSnapshot      `json:"stage3_jarA_return"`
}

// Validate checks the cross-stage invariants: the returning stage must reuse
// jar A's hidden probability and strictly extend stage 1's record history.
func (r *ExperimentRecord) Validate() error {
	if r.Stage3.TrueProbability != r.Stage1.TrueProbability {
		return core.ErrStageMismatch
	}
	if len(r.Stage3.Samples) < len(r.Stage1.Samples) {
		return fmt.Errorf("%w: return stage history shorter than stage 1", core.ErrStageMismatch)
	}
	for i := range r.Stage1.Samples {
		if r.Stage3.Samples[i] != r.Stage1.Samples[i] ||
			r.Stage3.Estimates[i] != r.Stage1.Estimates[i] ||
			r.Stage3.Confidences[i] != r.Stage1.Confidences[i] {
			return fmt.Errorf("%w: return stage rewrote trial %d", core.ErrStageMismatch, i+1)
		}
	}
	return nil
}

// Fingerprint returns a deterministic hash of the record's canonical JSON.
// Two exports of the same unmodified session carry the same fingerprint.
func (r *ExperimentRecord) Fingerprint() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum), nil
}

// SessionSnapshot is the persistable view of a session in any phase. The
// HTTP collaborator saves one after every trial for crash resilience; the
// admin surface lists them.
type SessionSnapshot struct {
	SessionID     core.SessionID     `json:"session_id"`
	ParticipantID core.ParticipantID `json:"participant_id"`
	Phase         string             `json:"phase"`
	StartedAt     core.Timestamp     `json:"started_at"`
	Declined      bool               `json:"declined"`
	Training      []TrainingResult   `json:"training_trials"`
	Stage1        *StageSnapshot     `json:"stage1_jarA,omitempty"`
	Stage2        *StageSnapshot     `json:"stage2_jarB,omitempty"`
	Stage3        *StageSnapshot     `json:"stage3_jarA_return,omitempty"`
}

// Snapshot captures a persistable view of the session as it stands
func (s *Session) Snapshot() SessionSnapshot {
	snap := SessionSnapshot{
		SessionID:     s.ID,
		ParticipantID: s.Participant,
		Phase:         s.phase.String(),
		StartedAt:     s.StartedAt,
		Declined:      s.Declined(),
		Training:      s.TrainingResults(),
	}
	if s.stage1 != nil {
		v := s.stage1.Snapshot()
		snap.Stage1 = &v
	}
	if s.stage2 != nil {
		v := s.stage2.Snapshot()
		snap.Stage2 = &v
	}
	if s.stage3 != nil {
		v := s.stage3.Snapshot()
		snap.Stage3 = &v
	}
	return snap
}

package experiment

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"urnlab/domain/core"
)

func newTestSession(t *testing.T, jarA, jarB float64) *Session {
	t.Helper()
	session, err := NewSessionWithJars(
		core.ParticipantID("P1"), jarA, jarB,
		rand.New(rand.NewSource(21)),
		core.NewTimestamp(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
	)
	if err != nil {
		t.Fatalf("NewSessionWithJars: %v", err)
	}
	return session
}

func consentAndTrain(t *testing.T, s *Session) {
	t.Helper()
	if err := s.GiveConsent(); err != nil {
		t.Fatalf("GiveConsent: %v", err)
	}
	if err := s.Advance(); err != nil {
		t.Fatalf("Advance to training: %v", err)
	}
	for i := 1; i <= TrainingTrialCount; i++ {
		if _, err := s.TrainingNextTrial(); err != nil {
			t.Fatalf("TrainingNextTrial %d: %v", i, err)
		}
		if _, err := s.TrainingSubmitChoice(ChoiceA); err != nil {
			t.Fatalf("TrainingSubmitChoice %d: %v", i, err)
		}
	}
	if err := s.Advance(); err != nil {
		t.Fatalf("Advance out of training: %v", err)
	}
}

// runStage completes every remaining trial of the current stage via the
// session's own draw/submit operations.
func runStage(t *testing.T, s *Session, jar JarColor, key StageKey, trials int) {
	t.Helper()
	for i := 0; i < trials; i++ {
		outcome, err := s.Draw(jar)
		if err != nil {
			t.Fatalf("Draw %d from %s jar: %v", i+1, jar, err)
		}
		if _, err := s.SubmitTrial(key, outcome, 50, 5); err != nil {
			t.Fatalf("SubmitTrial %d on %s: %v", i+1, key, err)
		}
	}
}

func TestSessionDeclineConsent(t *testing.T) {
	session := newTestSession(t, 0.7, 0.3)

	if err := session.DeclineConsent(); err != nil {
		t.Fatalf("DeclineConsent: %v", err)
	}
	if !session.Declined() {
		t.Error("session not marked declined")
	}
	if session.Phase() != PhaseDeclined {
		t.Errorf("phase = %s, want DECLINED", session.Phase())
	}

	// No further phases and no export after declining
	if err := session.Advance(); !core.IsProtocolError(err) {
		t.Errorf("Advance after decline = %v, want protocol error", err)
	}
	if _, err := session.Record(); !core.IsProtocolError(err) {
		t.Errorf("Record after decline = %v, want protocol error", err)
	}
}

func TestSessionPhaseGating(t *testing.T) {
	session := newTestSession(t, 0.7, 0.3)

	// Nothing but consent is allowed at the start
	if _, err := session.Draw(JarRed); !core.IsProtocolError(err) {
		t.Errorf("Draw during CONSENT = %v, want protocol error", err)
	}
	if _, err := session.TrainingNextTrial(); !core.IsProtocolError(err) {
		t.Errorf("training during CONSENT = %v, want protocol error", err)
	}
	if err := session.Advance(); !core.IsProtocolError(err) {
		t.Errorf("Advance before consent = %v, want protocol error", err)
	}

	consentAndTrain(t, session)
	if session.Phase() != PhaseStage1JarA {
		t.Fatalf("phase = %s, want STAGE1_JAR_A", session.Phase())
	}

	// Wrong jar and wrong stage key are protocol errors
	if _, err := session.Draw(JarGreen); !core.IsProtocolError(err) {
		t.Errorf("green draw during stage 1 = %v, want protocol error", err)
	}
	outcome, err := session.Draw(JarRed)
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if _, err := session.SubmitTrial(StageKey2, outcome, 50, 5); !core.IsProtocolError(err) {
		t.Errorf("submit to wrong stage = %v, want protocol error", err)
	}
	if _, err := session.SubmitTrial(StageKey1, outcome, 50, 5); err != nil {
		t.Fatalf("SubmitTrial: %v", err)
	}

	// Advancing a half-finished stage is refused
	if err := session.Advance(); !core.IsProtocolError(err) {
		t.Errorf("Advance mid-stage = %v, want protocol error", err)
	}

	// Training is over; late results are phase violations
	if err := session.TrainingLogResult(11, ResultCorrect); !core.IsProtocolError(err) {
		t.Errorf("training result during stage 1 = %v, want protocol error", err)
	}
}

// TestSessionEndToEnd walks participant P1 through the complete experiment:
// consent, 10 training trials, 40 red-jar trials, 30 green-jar trials, then
// 30 more red-jar trials resuming the stage-1 history.
func TestSessionEndToEnd(t *testing.T) {
	session := newTestSession(t, 0.7, 0.3)
	consentAndTrain(t, session)

	if err := session.RecordInitialEstimate(50); err != nil {
		t.Fatalf("stage 1 initial estimate: %v", err)
	}
	runStage(t, session, JarRed, StageKey1, Stage1TrialCount)

	snap1, err := session.StageSnapshot(StageKey1)
	if err != nil {
		t.Fatalf("StageSnapshot: %v", err)
	}
	if !snap1.Complete || snap1.TrialCount != 40 {
		t.Fatalf("stage 1 snapshot: complete=%v count=%d, want true/40", snap1.Complete, snap1.TrialCount)
	}

	if err := session.Advance(); err != nil {
		t.Fatalf("Advance to stage 2: %v", err)
	}
	if err := session.RecordInitialEstimate(50); err != nil {
		t.Fatalf("stage 2 initial estimate: %v", err)
	}
	runStage(t, session, JarGreen, StageKey2, Stage2TrialCount)

	if err := session.Advance(); err != nil {
		t.Fatalf("Advance to stage 3: %v", err)
	}
	if session.Phase() != PhaseStage3JarAReturn {
		t.Fatalf("phase = %s, want STAGE3_JAR_A_RETURN", session.Phase())
	}

	// The returning stage starts with stage 1's full history
	snap3, err := session.StageSnapshot(StageKey3)
	if err != nil {
		t.Fatalf("StageSnapshot: %v", err)
	}
	if snap3.TrialCount != 40 {
		t.Fatalf("resumed stage starts with %d records, want 40", snap3.TrialCount)
	}
	if snap3.TrueProbability != 0.7 {
		t.Fatalf("resumed stage probability = %g, want 0.7", snap3.TrueProbability)
	}
	// A resumed jar never takes a fresh initial estimate
	if err := session.RecordInitialEstimate(60); !errors.Is(err, core.ErrOutOfSequence) {
		t.Errorf("initial estimate on resumed stage = %v, want ErrOutOfSequence", err)
	}

	runStage(t, session, JarRed, StageKey3, Stage3TrialCount)
	if err := session.Advance(); err != nil {
		t.Fatalf("Advance to export: %v", err)
	}

	record, err := session.Record()
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := record.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(record.TrainingTrials) != 10 {
		t.Errorf("training trials = %d, want 10", len(record.TrainingTrials))
	}
	if record.Stage1.TrueProbability != 0.7 || record.Stage3.TrueProbability != 0.7 {
		t.Errorf("jar A probability = %g/%g, want 0.7 in both stage 1 and 3",
			record.Stage1.TrueProbability, record.Stage3.TrueProbability)
	}
	if record.Stage2.TrueProbability != 0.3 {
		t.Errorf("jar B probability = %g, want 0.3", record.Stage2.TrueProbability)
	}
	if len(record.Stage3.Samples) != 70 {
		t.Errorf("stage 3 history = %d records, want 70", len(record.Stage3.Samples))
	}
	for i := range record.Stage1.Samples {
		if record.Stage3.Samples[i] != record.Stage1.Samples[i] {
			t.Fatalf("stage 3 record %d differs from stage 1", i+1)
		}
	}

	// The frozen record hashes identically across repeated reads
	fp1, err := record.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	again, err := session.Record()
	if err != nil {
		t.Fatalf("second Record: %v", err)
	}
	fp2, err := again.Fingerprint()
	if err != nil {
		t.Fatalf("second Fingerprint: %v", err)
	}
	if fp1 != fp2 {
		t.Error("record fingerprint changed between reads of an unmodified session")
	}

	if err := session.MarkExported(); err != nil {
		t.Fatalf("MarkExported: %v", err)
	}
	if err := session.Advance(); err != nil {
		t.Fatalf("Advance to done: %v", err)
	}
	if session.Phase() != PhaseDone {
		t.Errorf("phase = %s, want DONE", session.Phase())
	}
}

func TestRecordValidateCatchesTampering(t *testing.T) {
	session := newTestSession(t, 0.7, 0.3)
	consentAndTrain(t, session)
	runStage(t, session, JarRed, StageKey1, Stage1TrialCount)
	if err := session.Advance(); err != nil {
		t.Fatal(err)
	}
	runStage(t, session, JarGreen, StageKey2, Stage2TrialCount)
	if err := session.Advance(); err != nil {
		t.Fatal(err)
	}
	runStage(t, session, JarRed, StageKey3, Stage3TrialCount)
	if err := session.Advance(); err != nil {
		t.Fatal(err)
	}

	record, err := session.Record()
	if err != nil {
		t.Fatal(err)
	}

	record.Stage3.TrueProbability = 0.5
	if err := record.Validate(); !errors.Is(err, core.ErrStageMismatch) {
		t.Errorf("Validate with mismatched probability = %v, want ErrStageMismatch", err)
	}

	record.Stage3.TrueProbability = record.Stage1.TrueProbability
	record.Stage3.Estimates[0] += 1
	if err := record.Validate(); !errors.Is(err, core.ErrStageMismatch) {
		t.Errorf("Validate with rewritten history = %v, want ErrStageMismatch", err)
	}
}

package experiment

import (
	"fmt"

	"urnlab/domain/core"
)

// Phase is the session-level state machine. Phases are strictly ordered with
// no skipping or branching; Declined is the one terminal side exit, taken
// only from Consent.
type Phase int

const (
	PhaseConsent Phase = iota
	PhaseTraining
	PhaseStage1JarA
	PhaseStage2JarB
	PhaseStage3JarAReturn
	PhaseExport
	PhaseDone
	PhaseDeclined
)

var phaseNames = map[Phase]string{
	PhaseConsent:          "CONSENT",
	PhaseTraining:         "TRAINING",
	PhaseStage1JarA:       "STAGE1_JAR_A",
	PhaseStage2JarB:       "STAGE2_JAR_B",
	PhaseStage3JarAReturn: "STAGE3_JAR_A_RETURN",
	PhaseExport:           "EXPORT",
	PhaseDone:             "DONE",
	PhaseDeclined:         "DECLINED",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PHASE(%d)", int(p))
}

// Terminal reports whether the session can make no further transitions
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseDeclined
}

// ParsePhase converts a stored phase name back to a Phase
func ParsePhase(s string) (Phase, error) {
	for p, name := range phaseNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}

// Main-stage trial budgets. Stage 3 adds its count on top of stage 1's
// inherited history, so the returning jar completes at 70 combined records.
const (
	Stage1TrialCount = 40
	Stage2TrialCount = 30
	Stage3TrialCount = 30
)

// StageKey names the three main-experiment stage slots as they appear in
// session records and the wire protocol.
type StageKey string

const (
	StageKey1 StageKey = "stage1_jarA"
	StageKey2 StageKey = "stage2_jarB"
	StageKey3 StageKey = "stage3_jarA_return"
)

// StageKeys lists the main stages in experiment order
var StageKeys = []StageKey{StageKey1, StageKey2, StageKey3}

// ParseStageKey validates a wire-level stage name
func ParseStageKey(s string) (StageKey, error) {
	switch StageKey(s) {
	case StageKey1, StageKey2, StageKey3:
		return StageKey(s), nil
	}
	return "", fmt.Errorf("%w: unknown stage %q", core.ErrStageNotFound, s)
}

// Phase returns the session phase during which the stage runs
func (k StageKey) Phase() Phase {
	switch k {
	case StageKey1:
		return PhaseStage1JarA
	case StageKey2:
		return PhaseStage2JarB
	default:
		return PhaseStage3JarAReturn
	}
}

// Number returns the 1-based stage number used in CSV rows
func (k StageKey) Number() int {
	switch k {
	case StageKey1:
		return 1
	case StageKey2:
		return 2
	default:
		return 3
	}
}

// JarColor returns the jar a stage key draws from
func (k StageKey) JarColor() JarColor {
	if k == StageKey2 {
		return JarGreen
	}
	return JarRed
}

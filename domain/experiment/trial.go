package experiment

import (
	"urnlab/domain/core"
)

// Response value bounds
const (
	EstimateMin   = 0.0
	EstimateMax   = 100.0
	ConfidenceMin = 0.0
	ConfidenceMax = 10.0
)

// TrialRecord captures one completed draw+response cycle. Records are
// immutable once appended to a stage and keep strict draw order.
type TrialRecord struct {
	Outcome    Outcome `json:"outcome"`
	Estimate   float64 `json:"estimate"`
	Confidence float64 `json:"confidence"`
}

// ValidateEstimate checks a probability estimate given as a percentage
func ValidateEstimate(estimate float64) error {
	if estimate < EstimateMin || estimate > EstimateMax {
		return core.NewRangeError("estimate", estimate, EstimateMin, EstimateMax)
	}
	return nil
}

// ValidateConfidence checks a confidence rating
func ValidateConfidence(confidence float64) error {
	if confidence < ConfidenceMin || confidence > ConfidenceMax {
		return core.NewRangeError("confidence", confidence, ConfidenceMin, ConfidenceMax)
	}
	return nil
}

// NewTrialRecord validates both response values and binds them to an outcome
func NewTrialRecord(outcome Outcome, estimate, confidence float64) (TrialRecord, error) {
	if _, err := ParseOutcome(string(outcome)); err != nil {
		return TrialRecord{}, err
	}
	if err := ValidateEstimate(estimate); err != nil {
		return TrialRecord{}, err
	}
	if err := ValidateConfidence(confidence); err != nil {
		return TrialRecord{}, err
	}
	return TrialRecord{Outcome: outcome, Estimate: estimate, Confidence: confidence}, nil
}

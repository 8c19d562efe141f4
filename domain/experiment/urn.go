package experiment

import (
	"math/rand"

	"urnlab/domain/core"
)

// Outcome is the color of a single drawn ball
type Outcome string

const (
	OutcomeBlack Outcome = "black"
	OutcomeWhite Outcome = "white"
)

// ParseOutcome validates a wire-level outcome string
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case OutcomeBlack, OutcomeWhite:
		return Outcome(s), nil
	}
	return "", core.ErrInvalidOutcome
}

// Urn is a hidden Bernoulli source: every draw is independent, with
// replacement, black with the urn's fixed probability. The probability never
// changes after construction.
type Urn struct {
	probability float64
	rng         *rand.Rand
}

// NewUrn creates an urn with the given black-ball probability.
// The probability is validated once here; draws never fail.
func NewUrn(probability float64, rng *rand.Rand) (*Urn, error) {
	if probability < 0 || probability > 1 {
		return nil, core.ErrInvalidProbability
	}
	return &Urn{probability: probability, rng: rng}, nil
}

// Probability returns the ground-truth black probability (hidden from
// participants, recorded in exports).
func (u *Urn) Probability() float64 {
	return u.probability
}

// Draw samples one ball. Each call consumes an independent uniform variate;
// no outcome history is kept by the urn itself.
func (u *Urn) Draw() Outcome {
	if u.rng.Float64() < u.probability {
		return OutcomeBlack
	}
	return OutcomeWhite
}

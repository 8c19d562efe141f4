package core

import (
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}

	if len(ids) != numIDs {
		t.Errorf("Expected %d unique IDs, got %d", numIDs, len(ids))
	}
}

// TestParseParticipantID tests participant ID parsing
func TestParseParticipantID(t *testing.T) {
	tests := []struct {
		input    string
		expected ParticipantID
		hasError bool
	}{
		{"P1", ParticipantID("P1"), false},
		{"  P1  ", ParticipantID("P1"), false},
		{"", "", true},
		{"   ", "", true},
	}

	for _, test := range tests {
		result, err := ParseParticipantID(test.input)
		if test.hasError && err == nil {
			t.Errorf("Expected error for input '%s', but got none", test.input)
		}
		if !test.hasError && err != nil {
			t.Errorf("Unexpected error for input '%s': %v", test.input, err)
		}
		if result != test.expected {
			t.Errorf("Expected %s, got %s", test.expected, result)
		}
	}
}

// TestErrorPredicates tests the error taxonomy helpers
func TestErrorPredicates(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		validation bool
		protocol   bool
		completion bool
	}{
		{"range error", NewRangeError("estimate", 100.01, 0, 100), true, false, false},
		{"invalid probability", ErrInvalidProbability, true, false, false},
		{"out of sequence", ErrOutOfSequence, false, true, false},
		{"phase violation", NewPhaseError("draw_ball", "CONSENT"), false, true, false},
		{"stage complete", ErrStageComplete, false, false, true},
		{"training complete", ErrTrainingComplete, false, false, true},
		{"stage mismatch", ErrStageMismatch, false, false, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsValidationError(test.err); got != test.validation {
				t.Errorf("IsValidationError = %v, want %v", got, test.validation)
			}
			if got := IsProtocolError(test.err); got != test.protocol {
				t.Errorf("IsProtocolError = %v, want %v", got, test.protocol)
			}
			if got := IsCompletionSignal(test.err); got != test.completion {
				t.Errorf("IsCompletionSignal = %v, want %v", got, test.completion)
			}
		})
	}
}

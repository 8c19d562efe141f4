package ports

import (
	"math/rand"
)

// RNGPort hands out the random streams sessions draw from. Production uses
// an unpredictable seed per session; test fixtures use fixed seeds so stages
// and training trials replay deterministically.
type RNGPort interface {
	// SessionStream creates the stream for a named session. The same
	// (name, seed) pair always yields an identically-behaving stream.
	SessionStream(name string, seed int64) *rand.Rand
}

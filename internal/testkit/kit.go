package testkit

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sort"
	"sync"

	"urnlab/domain/core"
	"urnlab/domain/experiment"
	"urnlab/ports"
)

// TestKit bundles the in-memory fixtures the service tests wire against
type TestKit struct {
	Repo *InMemorySessionRepository
	RNG  *FixedSeedRNG
}

// NewTestKit creates a kit with an empty repository and a fixed RNG seed
func NewTestKit(seed int64) *TestKit {
	return &TestKit{
		Repo: NewInMemorySessionRepository(),
		RNG:  &FixedSeedRNG{Seed: seed},
	}
}

// InMemorySessionRepository keeps snapshots in a map. It satisfies the same
// contract as the postgres repository so service tests need no database.
type InMemorySessionRepository struct {
	mu    sync.RWMutex
	snaps map[core.ParticipantID]experiment.SessionSnapshot
	order []core.ParticipantID
}

// NewInMemorySessionRepository creates an empty in-memory repository
func NewInMemorySessionRepository() *InMemorySessionRepository {
	return &InMemorySessionRepository{
		snaps: make(map[core.ParticipantID]experiment.SessionSnapshot),
	}
}

func (r *InMemorySessionRepository) SaveSnapshot(_ context.Context, snap experiment.SessionSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.snaps[snap.ParticipantID]; !exists {
		r.order = append(r.order, snap.ParticipantID)
	}
	r.snaps[snap.ParticipantID] = snap
	return nil
}

func (r *InMemorySessionRepository) GetSnapshot(_ context.Context, participant core.ParticipantID) (experiment.SessionSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.snaps[participant]
	if !ok {
		return experiment.SessionSnapshot{}, core.ErrSessionNotFound
	}
	return snap, nil
}

// ListSnapshots returns snapshots most recently saved first
func (r *InMemorySessionRepository) ListSnapshots(_ context.Context) ([]experiment.SessionSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]experiment.SessionSnapshot, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		if snap, ok := r.snaps[r.order[i]]; ok {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (r *InMemorySessionRepository) DeleteSnapshot(_ context.Context, participant core.ParticipantID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.snaps[participant]; !ok {
		return core.ErrSessionNotFound
	}
	delete(r.snaps, participant)
	return nil
}

// Count reports how many snapshots are held
func (r *InMemorySessionRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.snaps)
}

// Participants returns the stored participant IDs sorted lexically
func (r *InMemorySessionRepository) Participants() []core.ParticipantID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]core.ParticipantID, 0, len(r.snaps))
	for id := range r.snaps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

var _ ports.SessionRepository = (*InMemorySessionRepository)(nil)

// FixedSeedRNG derives each session's stream from a fixed base seed and the
// session name, so the same participant replays the same jars and draws.
type FixedSeedRNG struct {
	Seed int64
}

func (f *FixedSeedRNG) SessionStream(name string, seed int64) *rand.Rand {
	if seed == 0 {
		seed = f.Seed
	}
	h := fnv.New64a()
	h.Write([]byte(name))
	return rand.New(rand.NewSource(seed ^ int64(h.Sum64())))
}

var _ ports.RNGPort = (*FixedSeedRNG)(nil)

package ports

import (
	"context"

	"urnlab/domain/core"
	"urnlab/domain/experiment"
)

// SessionRepository persists session snapshots. The HTTP collaborator saves
// one after every trial so a crashed session's data survives; the researcher
// surface lists and retrieves them. Persistence is an adjunct to the live
// in-process session state, not a substitute for it.
type SessionRepository interface {
	// SaveSnapshot upserts the snapshot keyed by participant ID
	SaveSnapshot(ctx context.Context, snap experiment.SessionSnapshot) error

	// GetSnapshot retrieves the latest snapshot for a participant
	GetSnapshot(ctx context.Context, participant core.ParticipantID) (experiment.SessionSnapshot, error)

	// ListSnapshots returns all stored snapshots, most recent first
	ListSnapshots(ctx context.Context) ([]experiment.SessionSnapshot, error)

	// DeleteSnapshot removes a participant's stored snapshot
	DeleteSnapshot(ctx context.Context, participant core.ParticipantID) error
}

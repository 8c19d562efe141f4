package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"urnlab/domain/core"
	"urnlab/domain/experiment"
	"urnlab/ports"

	"github.com/jmoiron/sqlx"
)

// SessionRepositoryImpl implements SessionRepository for PostgreSQL. Each
// participant holds at most one row; the full snapshot lives in a JSONB
// column and is rewritten wholesale on every save, which is cheap at
// experiment scale (at most ~110 trials per session).
type SessionRepositoryImpl struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(db *sqlx.DB) *SessionRepositoryImpl {
	return &SessionRepositoryImpl{db: db}
}

var _ ports.SessionRepository = (*SessionRepositoryImpl)(nil)

// Migrate creates the session table if it does not exist
func (r *SessionRepositoryImpl) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS experiment_sessions (
			participant_id TEXT PRIMARY KEY,
			session_id     TEXT NOT NULL,
			phase          TEXT NOT NULL,
			declined       BOOLEAN NOT NULL DEFAULT FALSE,
			started_at     TIMESTAMPTZ NOT NULL,
			snapshot       JSONB NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create experiment_sessions table: %w", err)
	}
	return nil
}

// SaveSnapshot upserts the participant's snapshot
func (r *SessionRepositoryImpl) SaveSnapshot(ctx context.Context, snap experiment.SessionSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session snapshot: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO experiment_sessions (participant_id, session_id, phase, declined, started_at, snapshot, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (participant_id) DO UPDATE
		SET session_id = EXCLUDED.session_id,
		    phase = EXCLUDED.phase,
		    declined = EXCLUDED.declined,
		    snapshot = EXCLUDED.snapshot,
		    updated_at = NOW()
	`, snap.ParticipantID.String(), snap.SessionID.String(), snap.Phase, snap.Declined, snap.StartedAt.Time(), payload)
	return err
}

// GetSnapshot retrieves a participant's stored snapshot
func (r *SessionRepositoryImpl) GetSnapshot(ctx context.Context, participant core.ParticipantID) (experiment.SessionSnapshot, error) {
	var payload []byte
	err := r.db.GetContext(ctx, &payload, `
		SELECT snapshot FROM experiment_sessions WHERE participant_id = $1
	`, participant.String())
	if errors.Is(err, sql.ErrNoRows) {
		return experiment.SessionSnapshot{}, core.ErrSessionNotFound
	}
	if err != nil {
		return experiment.SessionSnapshot{}, err
	}

	var snap experiment.SessionSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return experiment.SessionSnapshot{}, fmt.Errorf("unmarshal session snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns all stored snapshots, most recently updated first
func (r *SessionRepositoryImpl) ListSnapshots(ctx context.Context) ([]experiment.SessionSnapshot, error) {
	var payloads [][]byte
	err := r.db.SelectContext(ctx, &payloads, `
		SELECT snapshot FROM experiment_sessions ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}

	snapshots := make([]experiment.SessionSnapshot, 0, len(payloads))
	for _, payload := range payloads {
		var snap experiment.SessionSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return nil, fmt.Errorf("unmarshal session snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// DeleteSnapshot removes a participant's stored snapshot
func (r *SessionRepositoryImpl) DeleteSnapshot(ctx context.Context, participant core.ParticipantID) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM experiment_sessions WHERE participant_id = $1
	`, participant.String())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrSessionNotFound
	}
	return nil
}

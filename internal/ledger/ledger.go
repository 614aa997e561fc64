// Package ledger provides optional PostgreSQL persistence of bootstrap
// invocations, so overlapping writers against one artifact root are at
// least visible after the fact.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Invocation statuses recorded in the ledger.
const (
	StatusRunning   = "running"
	StatusCached    = "cached"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Invocation is one row of the run ledger.
type Invocation struct {
	ID              uuid.UUID
	RunID           string
	FullConfigHash  string
	DataFingerprint string
	ArtifactRoot    string
	Decision        string
	Status          string
	Reason          string
	StartedAt       time.Time
	CompletedAt     *time.Time
}

// Ledger wraps a PostgreSQL connection pool.
type Ledger struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the ledger database.
func Connect(ctx context.Context, databaseURL string) (*Ledger, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ledger: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping ledger: %w", err)
	}
	return &Ledger{pool: pool}, nil
}

// Close closes the connection pool.
func (l *Ledger) Close() {
	if l.pool != nil {
		l.pool.Close()
	}
}

// EnsureSchema creates the invocation table when it does not exist yet.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ml8s_invocations (
			id UUID PRIMARY KEY,
			run_id TEXT NOT NULL,
			full_config_hash TEXT NOT NULL,
			data_fingerprint TEXT,
			artifact_root TEXT NOT NULL,
			decision TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		)`)
	if err != nil {
		return fmt.Errorf("failed to ensure ledger schema: %w", err)
	}
	return nil
}

// BeginInvocation records a new running invocation and returns its id.
func (l *Ledger) BeginInvocation(ctx context.Context, inv Invocation) (uuid.UUID, error) {
	id := uuid.New()
	_, err := l.pool.Exec(ctx,
		`INSERT INTO ml8s_invocations (id, run_id, full_config_hash, data_fingerprint, artifact_root, decision, status)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)`,
		id, inv.RunID, inv.FullConfigHash, inv.DataFingerprint, inv.ArtifactRoot, inv.Decision, StatusRunning,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to record invocation: %w", err)
	}
	return id, nil
}

// CompleteInvocation marks an invocation terminal with a status and
// optional reason.
func (l *Ledger) CompleteInvocation(ctx context.Context, id uuid.UUID, status, reason string) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE ml8s_invocations SET status = $1, reason = NULLIF($2, ''), completed_at = NOW() WHERE id = $3`,
		status, reason, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete invocation: %w", err)
	}
	return nil
}

// ListRecent returns the most recent invocations, newest first.
func (l *Ledger) ListRecent(ctx context.Context, limit int) ([]Invocation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.pool.Query(ctx,
		`SELECT id, run_id, full_config_hash, COALESCE(data_fingerprint, ''), artifact_root, decision, status, COALESCE(reason, ''), started_at, completed_at
		 FROM ml8s_invocations ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list invocations: %w", err)
	}
	defer rows.Close()

	var out []Invocation
	for rows.Next() {
		var inv Invocation
		if err := rows.Scan(&inv.ID, &inv.RunID, &inv.FullConfigHash, &inv.DataFingerprint, &inv.ArtifactRoot, &inv.Decision, &inv.Status, &inv.Reason, &inv.StartedAt, &inv.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invocation: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read invocations: %w", err)
	}
	return out, nil
}

// FindByRunID returns invocations for one run id, newest first.
func (l *Ledger) FindByRunID(ctx context.Context, runID string) ([]Invocation, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, run_id, full_config_hash, COALESCE(data_fingerprint, ''), artifact_root, decision, status, COALESCE(reason, ''), started_at, completed_at
		 FROM ml8s_invocations WHERE run_id = $1 ORDER BY started_at DESC`, runID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find invocations for %s: %w", runID, err)
	}
	defer rows.Close()

	var out []Invocation
	for rows.Next() {
		var inv Invocation
		if err := rows.Scan(&inv.ID, &inv.RunID, &inv.FullConfigHash, &inv.DataFingerprint, &inv.ArtifactRoot, &inv.Decision, &inv.Status, &inv.Reason, &inv.StartedAt, &inv.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invocation: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read invocations: %w", err)
	}
	return out, nil
}

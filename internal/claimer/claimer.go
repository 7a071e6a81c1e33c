// Package claimer implements the Job Claimer: atomically transferring
// exactly one pending scan to exactly one worker, even under N-way
// concurrent dispatch.
package claimer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Strategy selects which locking primitive the claimer uses.
type Strategy string

const (
	StrategySkipLocked       Strategy = "skip_locked"
	StrategyConditionalUpdate Strategy = "conditional_update"
)

// Claimed carries the immutable fields of a claimed scan back to the
// caller. The caller must not hold a database handle across the scanner
// invocation, so only plain values are returned here, never a *sql.Tx.
type Claimed struct {
	ID          uuid.UUID
	Registry    string
	ImageName   string
	ImageTag    string
	ArchivePath *string
}

// Claimer wraps a raw *sql.DB because SKIP LOCKED has no first-class
// builder support in the ORM used by the rest of the Scan Store.
type Claimer struct {
	db       *sql.DB
	strategy Strategy
}

func New(db *sql.DB, strategy Strategy) *Claimer {
	if strategy == "" {
		strategy = StrategySkipLocked
	}
	return &Claimer{db: db, strategy: strategy}
}

// ClaimNext selects the oldest pending scan and transfers it to workerID,
// returning nil, nil when the queue is empty.
func (c *Claimer) ClaimNext(ctx context.Context, workerID string) (*Claimed, error) {
	switch c.strategy {
	case StrategyConditionalUpdate:
		return c.claimConditional(ctx, workerID)
	default:
		return c.claimSkipLocked(ctx, workerID)
	}
}

func (c *Claimer) claimSkipLocked(ctx context.Context, workerID string) (*Claimed, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id, registry, image_name, image_tag, archive_path
		FROM scans
		WHERE status = 'pending'
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1`)

	var claimed Claimed
	if err := row.Scan(&claimed.ID, &claimed.Registry, &claimed.ImageName, &claimed.ImageTag, &claimed.ArchivePath); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("selecting pending scan: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE scans SET status = 'pulling', worker_id = $1, started_at = $2, updated_at = $2
		WHERE id = $3`, workerID, now, claimed.ID); err != nil {
		return nil, fmt.Errorf("marking scan claimed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}
	return &claimed, nil
}

// claimConditional is the fallback used against backing stores without
// SKIP LOCKED support: an ordinary conditional UPDATE checked via
// RowsAffected, treating 0 rows affected as "lost the race, abort".
func (c *Claimer) claimConditional(ctx context.Context, workerID string) (*Claimed, error) {
	var candidate uuid.UUID
	row := c.db.QueryRowContext(ctx, `
		SELECT id FROM scans WHERE status = 'pending' ORDER BY created_at ASC LIMIT 1`)
	if err := row.Scan(&candidate); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("selecting pending candidate: %w", err)
	}

	now := time.Now().UTC()
	res, err := c.db.ExecContext(ctx, `
		UPDATE scans SET status = 'pulling', worker_id = $1, started_at = $2, updated_at = $2
		WHERE id = $3 AND status = 'pending'`, workerID, now, candidate)
	if err != nil {
		return nil, fmt.Errorf("conditionally claiming scan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("reading rows affected: %w", err)
	}
	if affected == 0 {
		// Lost the race to another worker; caller should retry on its
		// next poll tick rather than spin immediately.
		return nil, nil
	}

	var claimed Claimed
	claimed.ID = candidate
	err = c.db.QueryRowContext(ctx, `SELECT registry, image_name, image_tag, archive_path FROM scans WHERE id = $1`, candidate).
		Scan(&claimed.Registry, &claimed.ImageName, &claimed.ImageTag, &claimed.ArchivePath)
	if err != nil {
		return nil, fmt.Errorf("reading claimed scan triple: %w", err)
	}
	return &claimed, nil
}

// ClaimByID attempts to claim a specific pending scan by id. Semantics are
// identical to the pending-queue claim, restricted to one row. Only its
// tests call it; the worker pool claims through ClaimNext.
func (c *Claimer) ClaimByID(ctx context.Context, id uuid.UUID, workerID string) (*Claimed, error) {
	now := time.Now().UTC()
	res, err := c.db.ExecContext(ctx, `
		UPDATE scans SET status = 'pulling', worker_id = $1, started_at = $2, updated_at = $2
		WHERE id = $3 AND status = 'pending'`, workerID, now, id)
	if err != nil {
		return nil, fmt.Errorf("claiming scan %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("reading rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}
	var claimed Claimed
	claimed.ID = id
	err = c.db.QueryRowContext(ctx, `SELECT registry, image_name, image_tag, archive_path FROM scans WHERE id = $1`, id).
		Scan(&claimed.Registry, &claimed.ImageName, &claimed.ImageTag, &claimed.ArchivePath)
	if err != nil {
		return nil, fmt.Errorf("reading claimed scan triple: %w", err)
	}
	return &claimed, nil
}

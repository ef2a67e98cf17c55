package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/domain"
	"github.com/jackc/pgx/v5"
)

const rawEventColumns = `id, payload, platform_family, platform, status, attempts, last_error, created_at, updated_at`

// ErrRawEventNotFound is returned by updates that matched no row.
var ErrRawEventNotFound = errors.New("raw event not found")

func scanRawEvent(row pgx.Row, e *domain.RawEvent) error {
	return row.Scan(
		&e.ID, &e.Payload, &e.PlatformFamily, &e.Platform, &e.Status,
		&e.Attempts, &e.LastError, &e.CreatedAt, &e.UpdatedAt,
	)
}

// InsertRawEvent records an inbound payload with status received and
// returns the id minted for it.
func (s *PostgresStore) InsertRawEvent(ctx context.Context, platformFamily, platform string, payload []byte) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO raw_events (payload, platform_family, platform, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, payload, platformFamily, platform, domain.StatusReceived).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting raw event: %w", err)
	}
	return id, nil
}

// UpdateRawEventStatus moves a raw event to status and records reason as its
// last error. An empty reason clears last_error.
func (s *PostgresStore) UpdateRawEventStatus(ctx context.Context, id int64, status domain.RawEventStatus, reason string) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE raw_events SET status = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1
	`, id, status, nullIfEmpty(reason))
	if err != nil {
		return fmt.Errorf("updating raw event status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("raw event %d: %w", id, ErrRawEventNotFound)
	}
	return nil
}

// MarkForwarding records the outcome of a publish attempt. It only applies
// while the event is still received or forwarding_failed, so a consumer that
// already moved the event to processed or processing_failed is never
// overwritten. It reports whether the row changed.
func (s *PostgresStore) MarkForwarding(ctx context.Context, id int64, status domain.RawEventStatus, reason string) (bool, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE raw_events SET status = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1 AND status IN ($4, $5)
	`, id, status, nullIfEmpty(reason), domain.StatusReceived, domain.StatusForwardingFailed)
	if err != nil {
		return false, fmt.Errorf("marking raw event %s: %w", status, err)
	}
	return result.RowsAffected() > 0, nil
}

// RecordProcessingFailure marks the event processing_failed, bumps its
// attempt counter and returns the new count.
func (s *PostgresStore) RecordProcessingFailure(ctx context.Context, id int64, reason string) (int, error) {
	var attempts int
	err := s.pool.QueryRow(ctx, `
		UPDATE raw_events
		SET status = $2, attempts = attempts + 1, last_error = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING attempts
	`, id, domain.StatusProcessingFailed, nullIfEmpty(reason)).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("raw event %d: %w", id, ErrRawEventNotFound)
		}
		return 0, fmt.Errorf("recording processing failure: %w", err)
	}
	return attempts, nil
}

func (s *PostgresStore) GetRawEvent(ctx context.Context, id int64) (*domain.RawEvent, error) {
	var e domain.RawEvent
	err := scanRawEvent(s.pool.QueryRow(ctx,
		`SELECT `+rawEventColumns+` FROM raw_events WHERE id = $1`, id), &e)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying raw event: %w", err)
	}
	return &e, nil
}

// RawEventFilter narrows ListRawEvents. Empty fields match everything.
type RawEventFilter struct {
	Status         domain.RawEventStatus
	PlatformFamily string
	Platform       string
	Limit          int
}

func (s *PostgresStore) ListRawEvents(ctx context.Context, f RawEventFilter) ([]domain.RawEvent, error) {
	q := newSelect(`SELECT ` + rawEventColumns + ` FROM raw_events`)
	if f.Status != "" {
		q.where("status = %s", f.Status)
	}
	if f.PlatformFamily != "" {
		q.where("platform_family = %s", f.PlatformFamily)
	}
	if f.Platform != "" {
		q.where("platform = %s", f.Platform)
	}
	q.orderBy("created_at DESC")
	q.limit(f.Limit)

	rows, err := s.pool.Query(ctx, q.sql(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("querying raw events: %w", err)
	}
	defer rows.Close()

	events := []domain.RawEvent{}
	for rows.Next() {
		var e domain.RawEvent
		if err := scanRawEvent(rows, &e); err != nil {
			return nil, fmt.Errorf("scanning raw event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ClaimForwardingFailed claims up to limit events whose publish failed at
// least minAge ago, oldest first, and returns them. A claimed row is skipped
// by other callers until lease has passed, and rows locked by a concurrent
// claim are skipped rather than waited on, so parallel sweepers never receive
// the same event.
func (s *PostgresStore) ClaimForwardingFailed(ctx context.Context, minAge, lease time.Duration, limit int) ([]domain.RawEvent, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE raw_events SET replay_claimed_at = NOW()
		WHERE id IN (
			SELECT id FROM raw_events
			WHERE status = $1
			  AND updated_at <= NOW() - make_interval(secs => $2)
			  AND (replay_claimed_at IS NULL OR replay_claimed_at <= NOW() - make_interval(secs => $3))
			ORDER BY id
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+rawEventColumns+`
	`, domain.StatusForwardingFailed, minAge.Seconds(), lease.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("claiming forwarding failures: %w", err)
	}
	defer rows.Close()

	events := []domain.RawEvent{}
	for rows.Next() {
		var e domain.RawEvent
		if err := scanRawEvent(rows, &e); err != nil {
			return nil, fmt.Errorf("scanning raw event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.SortFunc(events, func(a, b domain.RawEvent) int { return cmp.Compare(a.ID, b.ID) })
	return events, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

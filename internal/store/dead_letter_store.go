package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/domain"
	"github.com/jackc/pgx/v5"
)

// DeadLetterRecord holds data for inserting a dead letter entry.
type DeadLetterRecord struct {
	RawEventID     int64
	StreamID       string
	PlatformFamily string
	Platform       string
	Reason         string
	Attempts       int
}

const deadLetterColumns = `id, raw_event_id, stream_id, platform_family, platform, reason, attempts, created_at, resolved_at, resolved_by`

// InsertDeadLetter adds a message the dispatcher gave up on.
func (s *PostgresStore) InsertDeadLetter(ctx context.Context, rec DeadLetterRecord) error {
	var rawEventID *int64
	if rec.RawEventID > 0 {
		rawEventID = &rec.RawEventID
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO dead_letters (raw_event_id, stream_id, platform_family, platform, reason, attempts)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rawEventID, rec.StreamID, rec.PlatformFamily, rec.Platform, rec.Reason, rec.Attempts)
	if err != nil {
		return fmt.Errorf("inserting dead letter: %w", err)
	}
	return nil
}

func scanDeadLetter(row pgx.Row, dl *domain.DeadLetter) error {
	return row.Scan(
		&dl.ID, &dl.RawEventID, &dl.StreamID, &dl.PlatformFamily, &dl.Platform,
		&dl.Reason, &dl.Attempts, &dl.CreatedAt, &dl.ResolvedAt, &dl.ResolvedBy,
	)
}

// ListDeadLetters returns dead letter entries with optional filtering.
func (s *PostgresStore) ListDeadLetters(ctx context.Context, platform string, resolved bool, limit int) ([]domain.DeadLetter, error) {
	q := newSelect(`SELECT ` + deadLetterColumns + ` FROM dead_letters`)
	if platform != "" {
		q.where("platform = %s", platform)
	}
	if resolved {
		q.whereRaw("resolved_at IS NOT NULL")
	} else {
		q.whereRaw("resolved_at IS NULL")
	}
	q.orderBy("created_at DESC")
	q.limit(limit)

	rows, err := s.pool.Query(ctx, q.sql(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("querying dead letters: %w", err)
	}
	defer rows.Close()

	letters := []domain.DeadLetter{}
	for rows.Next() {
		var dl domain.DeadLetter
		if err := scanDeadLetter(rows, &dl); err != nil {
			return nil, fmt.Errorf("scanning dead letter: %w", err)
		}
		letters = append(letters, dl)
	}
	return letters, rows.Err()
}

// GetDeadLetter returns a single dead letter by ID.
func (s *PostgresStore) GetDeadLetter(ctx context.Context, id int64) (*domain.DeadLetter, error) {
	var dl domain.DeadLetter
	err := scanDeadLetter(s.pool.QueryRow(ctx,
		`SELECT `+deadLetterColumns+` FROM dead_letters WHERE id = $1`, id), &dl)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying dead letter: %w", err)
	}
	return &dl, nil
}

// ErrAlreadyResolved is returned when resolving a missing or resolved dead letter.
var ErrAlreadyResolved = errors.New("dead letter not found or already resolved")

// ResolveDeadLetter marks a dead letter as resolved.
func (s *PostgresStore) ResolveDeadLetter(ctx context.Context, id int64, resolvedBy string) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE dead_letters SET resolved_at = NOW(), resolved_by = $2
		WHERE id = $1 AND resolved_at IS NULL
	`, id, resolvedBy)
	if err != nil {
		return fmt.Errorf("resolving dead letter: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

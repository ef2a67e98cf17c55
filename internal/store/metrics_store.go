package store

import (
	"context"
	"fmt"
)

// PipelineMetrics holds aggregated pipeline statistics.
type PipelineMetrics struct {
	RawEventsByStatus     map[string]int `json:"raw_events_by_status"`
	TotalRawEvents        int            `json:"total_raw_events"`
	TransactionsByStatus  map[string]int `json:"transactions_by_status"`
	AbandonedCarts        int            `json:"abandoned_carts"`
	UnresolvedDeadLetters int            `json:"unresolved_dead_letters"`
	ProcessedSuccessRate  float64        `json:"processed_success_rate"`
}

// GetPipelineMetrics returns aggregated statistics from the database.
func (s *PostgresStore) GetPipelineMetrics(ctx context.Context) (*PipelineMetrics, error) {
	m := PipelineMetrics{
		RawEventsByStatus:    map[string]int{},
		TransactionsByStatus: map[string]int{},
	}

	byStatus, err := s.countBy(ctx, `SELECT status, COUNT(*) FROM raw_events GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("querying raw event counts: %w", err)
	}
	m.RawEventsByStatus = byStatus
	for _, n := range byStatus {
		m.TotalRawEvents += n
	}

	m.TransactionsByStatus, err = s.countBy(ctx, `SELECT status, COUNT(*) FROM transactions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("querying transaction counts: %w", err)
	}

	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM abandoned_carts`).Scan(&m.AbandonedCarts)
	if err != nil {
		return nil, fmt.Errorf("querying abandoned cart count: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM dead_letters WHERE resolved_at IS NULL
	`).Scan(&m.UnresolvedDeadLetters)
	if err != nil {
		return nil, fmt.Errorf("querying dead letter count: %w", err)
	}

	// Share of events that reached a terminal processing state and succeeded.
	done := byStatus["processed"] + byStatus["processing_failed"]
	if done > 0 {
		m.ProcessedSuccessRate = float64(byStatus["processed"]) / float64(done) * 100
	}

	return &m, nil
}

func (s *PostgresStore) countBy(ctx context.Context, query string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

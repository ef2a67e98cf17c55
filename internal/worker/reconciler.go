package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/domain"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/metrics"
)

// ForwardingFailedClaimer hands out raw events whose publish failed. An event
// claimed by one caller is not returned to another until lease has passed.
type ForwardingFailedClaimer interface {
	ClaimForwardingFailed(ctx context.Context, minAge, lease time.Duration, limit int) ([]domain.RawEvent, error)
}

// Reconciler periodically re-publishes raw events stuck in
// forwarding_failed, moving them to forwarded. Several reconcilers may run
// against the same store; each event is claimed by one of them per lease.
type Reconciler struct {
	events    ForwardingFailedClaimer
	publisher EventPublisher
	interval  time.Duration
	batchSize int
	minAge    time.Duration
	claimTTL  time.Duration
	logger    *slog.Logger
}

// ReconcilerOptions configures a Reconciler. ClaimTTL is how long a claimed
// event stays hidden from other sweeps and defaults to five intervals.
type ReconcilerOptions struct {
	Interval  time.Duration
	BatchSize int
	MinAge    time.Duration
	ClaimTTL  time.Duration
}

func NewReconciler(events ForwardingFailedClaimer, publisher EventPublisher, opts ReconcilerOptions, logger *slog.Logger) *Reconciler {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = 5 * opts.Interval
	}
	return &Reconciler{
		events:    events,
		publisher: publisher,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		minAge:    opts.MinAge,
		claimTTL:  opts.ClaimTTL,
		logger:    logger,
	}
}

// Start sweeps every interval until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	r.logger.Info("reconciler started", "interval", r.interval, "batch_size", r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopping")
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("reconciler sweep failed", "error", err)
			}
		}
	}
}

// Sweep re-publishes one batch and returns how many were forwarded.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	events, err := r.events.ClaimForwardingFailed(ctx, r.minAge, r.claimTTL, r.batchSize)
	if err != nil {
		return 0, err
	}

	forwarded := 0
	for i := range events {
		if ctx.Err() != nil {
			break
		}
		if _, err := r.publisher.Publish(ctx, &events[i]); err != nil {
			metrics.Replayed.WithLabelValues(metrics.OutcomeFailure).Inc()
			continue
		}
		metrics.Replayed.WithLabelValues(metrics.OutcomeSuccess).Inc()
		forwarded++
	}

	if len(events) > 0 {
		r.logger.Info("reconciler sweep complete", "candidates", len(events), "forwarded", forwarded)
	}
	return forwarded, nil
}

package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/metrics"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/stream"
)

// ConsumerLog is the read side of the durable event log.
type ConsumerLog interface {
	EnsureGroup(ctx context.Context) error
	Read(ctx context.Context, consumer string, count int64, block time.Duration) ([]stream.Entry, error)
	Claim(ctx context.Context, consumer string, minIdle time.Duration, count int64) ([]stream.Entry, error)
}

// ConsumerPruner is implemented by logs that can drop group members left
// behind by stopped processes.
type ConsumerPruner interface {
	PruneConsumers(ctx context.Context, keep string, minIdle time.Duration) ([]string, error)
}

// Handler processes one stream entry.
type Handler interface {
	Handle(ctx context.Context, entry stream.Entry) Outcome
}

// DispatcherOptions configures a Dispatcher. When PruneIdle is set and the
// log is a ConsumerPruner, members idle that long with nothing pending are
// removed from the group, checked at most once per PruneInterval.
type DispatcherOptions struct {
	ConsumerName  string
	BatchSize     int64
	BlockTimeout  time.Duration
	ClaimMinIdle  time.Duration
	ErrorBackoff  time.Duration
	DrainTimeout  time.Duration
	PruneIdle     time.Duration
	PruneInterval time.Duration
}

// Dispatcher is the consumer-group loop: claim stale pending entries, read
// new ones, and hand each to the processor in log order.
type Dispatcher struct {
	log       ConsumerLog
	handler   Handler
	opts      DispatcherOptions
	logger    *slog.Logger
	lastPrune time.Time
}

func NewDispatcher(log ConsumerLog, handler Handler, opts DispatcherOptions, logger *slog.Logger) *Dispatcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = time.Second
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = 10 * time.Minute
	}
	return &Dispatcher{
		log:     log,
		handler: handler,
		opts:    opts,
		logger:  logger.With("consumer", opts.ConsumerName),
	}
}

// Run consumes until ctx is cancelled. Cancellation is only observed
// between batches: a batch already pulled from the log is processed in full
// with a context detached from ctx.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.log.EnsureGroup(ctx); err != nil {
		return err
	}
	d.logger.Info("dispatcher started",
		"batch_size", d.opts.BatchSize,
		"block_timeout", d.opts.BlockTimeout,
		"claim_min_idle", d.opts.ClaimMinIdle,
	)

	for {
		if ctx.Err() != nil {
			d.logger.Info("dispatcher stopping")
			return nil
		}

		entries, err := d.next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				d.logger.Info("dispatcher stopping")
				return nil
			}
			d.logger.Error("failed to read from stream", "error", err)
			d.backoff(ctx)
			continue
		}
		if len(entries) == 0 {
			continue
		}

		d.drain(ctx, entries)
	}
}

// next returns stale pending entries first, then new ones.
func (d *Dispatcher) next(ctx context.Context) ([]stream.Entry, error) {
	claimed, err := d.log.Claim(ctx, d.opts.ConsumerName, d.opts.ClaimMinIdle, d.opts.BatchSize)
	if err != nil {
		return nil, err
	}
	d.prune(ctx)
	if len(claimed) > 0 {
		metrics.MessagesClaimed.Add(float64(len(claimed)))
		d.logger.Info("claimed pending messages for redelivery", "count", len(claimed))
		return claimed, nil
	}

	return d.log.Read(ctx, d.opts.ConsumerName, d.opts.BatchSize, d.opts.BlockTimeout)
}

// ProcessBatch handles entries sequentially and reports their outcomes.
func (d *Dispatcher) ProcessBatch(ctx context.Context, entries []stream.Entry) []Outcome {
	outcomes := make([]Outcome, 0, len(entries))
	for _, e := range entries {
		outcomes = append(outcomes, d.handler.Handle(ctx, e))
	}
	return outcomes
}

func (d *Dispatcher) drain(ctx context.Context, entries []stream.Entry) {
	drainCtx := context.WithoutCancel(ctx)
	if d.opts.DrainTimeout > 0 {
		var cancel context.CancelFunc
		drainCtx, cancel = context.WithTimeout(drainCtx, d.opts.DrainTimeout)
		defer cancel()
	}
	d.ProcessBatch(drainCtx, entries)
}

// prune removes abandoned consumers once the claim cycle has taken over
// their stale entries.
func (d *Dispatcher) prune(ctx context.Context) {
	pruner, ok := d.log.(ConsumerPruner)
	if !ok || d.opts.PruneIdle <= 0 || time.Since(d.lastPrune) < d.opts.PruneInterval {
		return
	}
	d.lastPrune = time.Now()

	removed, err := pruner.PruneConsumers(ctx, d.opts.ConsumerName, d.opts.PruneIdle)
	if err != nil {
		d.logger.Warn("failed to prune idle consumers", "error", err)
	}
	if len(removed) > 0 {
		d.logger.Info("pruned idle consumers", "count", len(removed), "consumers", removed)
	}
}

func (d *Dispatcher) backoff(ctx context.Context) {
	t := time.NewTimer(d.opts.ErrorBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/domain"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/metrics"
)

// RawEventRecorder persists inbound payloads.
type RawEventRecorder interface {
	InsertRawEvent(ctx context.Context, platformFamily, platform string, payload []byte) (int64, error)
}

// EventPublisher forwards a recorded raw event onto the event log and
// records the outcome on it.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.RawEvent) (string, error)
}

// Ingestor performs the out-of-band half of webhook intake: record the raw
// event, then publish it.
type Ingestor struct {
	events    RawEventRecorder
	publisher EventPublisher
	pool      *Pool
	timeout   time.Duration
	logger    *slog.Logger
}

func NewIngestor(events RawEventRecorder, publisher EventPublisher, pool *Pool, timeout time.Duration, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		events:    events,
		publisher: publisher,
		pool:      pool,
		timeout:   timeout,
		logger:    logger,
	}
}

// Accept schedules ingestion of an already validated payload and returns
// immediately.
func (i *Ingestor) Accept(platformFamily, platform string, payload []byte) {
	i.pool.Submit(func(ctx context.Context) {
		if i.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, i.timeout)
			defer cancel()
		}
		_ = i.Ingest(ctx, platformFamily, platform, payload)
	})
}

// Ingest records and publishes one payload. A failed insert drops the event
// because nothing durable references it yet; a failed publish leaves the
// row forwarding_failed for the reconciler.
func (i *Ingestor) Ingest(ctx context.Context, platformFamily, platform string, payload []byte) error {
	start := time.Now()
	defer func() {
		metrics.IngestDuration.Observe(time.Since(start).Seconds())
	}()

	id, err := i.events.InsertRawEvent(ctx, platformFamily, platform, payload)
	if err != nil {
		metrics.IngestDropped.Inc()
		i.logger.Error("dropping webhook, raw event insert failed",
			"error", err,
			"platform_family", platformFamily,
			"platform", platform,
		)
		return fmt.Errorf("recording raw event: %w", err)
	}

	event := &domain.RawEvent{
		ID:             id,
		Payload:        payload,
		PlatformFamily: platformFamily,
		Platform:       platform,
		Status:         domain.StatusReceived,
	}
	if _, err := i.publisher.Publish(ctx, event); err != nil {
		return err
	}

	i.logger.Info("webhook ingested",
		"raw_event_id", id,
		"platform_family", platformFamily,
		"platform", platform,
	)
	return nil
}

package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/domain"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/metrics"
)

// Appender is the write side of the durable event log.
type Appender interface {
	Append(ctx context.Context, msg domain.QueueMessage) (string, error)
}

// StatusRecorder records publish outcomes on a raw event. MarkForwarding
// must not move an event a consumer has already handled.
type StatusRecorder interface {
	MarkForwarding(ctx context.Context, id int64, status domain.RawEventStatus, reason string) (bool, error)
}

// Publisher forwards recorded raw events onto the event log and records the
// outcome on the raw event row.
type Publisher struct {
	log    Appender
	events StatusRecorder
	logger *slog.Logger
}

func NewPublisher(log Appender, events StatusRecorder, logger *slog.Logger) *Publisher {
	return &Publisher{
		log:    log,
		events: events,
		logger: logger,
	}
}

// Publish appends the event and marks it forwarded, or forwarding_failed
// with the append error. The returned error is the append error; a failed
// status update after a successful append is only logged because the
// message is already on its way to a consumer.
func (p *Publisher) Publish(ctx context.Context, event *domain.RawEvent) (string, error) {
	msg := domain.QueueMessage{
		RawEventID:     event.ID,
		PlatformFamily: event.PlatformFamily,
		PlatformName:   event.Platform,
		Payload:        event.Payload,
	}

	id, err := p.log.Append(ctx, msg)
	if err != nil {
		metrics.Published.WithLabelValues(metrics.OutcomeFailure).Inc()
		p.logger.Error("failed to publish raw event",
			"error", err,
			"raw_event_id", event.ID,
			"platform", event.Platform,
		)
		p.mark(ctx, event.ID, domain.StatusForwardingFailed, err.Error())
		return "", fmt.Errorf("publishing raw event %d: %w", event.ID, err)
	}

	metrics.Published.WithLabelValues(metrics.OutcomeSuccess).Inc()
	p.mark(ctx, event.ID, domain.StatusForwarded, "")

	p.logger.Debug("raw event published",
		"raw_event_id", event.ID,
		"platform", event.Platform,
		"message_id", id,
	)
	return id, nil
}

// mark applies a forwarding status. A consumer may already have handled the
// message by the time the append returns; the store then leaves the row alone.
func (p *Publisher) mark(ctx context.Context, id int64, status domain.RawEventStatus, reason string) {
	applied, err := p.events.MarkForwarding(ctx, id, status, reason)
	if err != nil {
		p.logger.Error("failed to mark raw event", "error", err, "raw_event_id", id, "status", status)
		return
	}
	if !applied {
		p.logger.Debug("raw event already past forwarding, status kept", "raw_event_id", id, "status", status)
	}
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/domain"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/metrics"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/normalizer"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/store"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/stream"
	ws "github.com/Priya8975/commerce-webhook-pipeline/internal/websocket"
)

// ErrPermanent marks failures that redelivery cannot fix.
var ErrPermanent = errors.New("permanent failure")

// Outcome is what the processor did with one message.
type Outcome string

const (
	OutcomeProcessed    Outcome = "processed"
	OutcomeRetry        Outcome = "retry"
	OutcomeDeadLettered Outcome = "dead_lettered"
)

// EventStore is the raw event and dead letter surface the processor writes.
type EventStore interface {
	UpdateRawEventStatus(ctx context.Context, id int64, status domain.RawEventStatus, reason string) error
	RecordProcessingFailure(ctx context.Context, id int64, reason string) (int, error)
	InsertDeadLetter(ctx context.Context, rec store.DeadLetterRecord) error
}

// Resolver finds the normalizer for a platform.
type Resolver interface {
	Resolve(family, name string) (normalizer.Normalizer, error)
}

// Acker acknowledges stream entries.
type Acker interface {
	Ack(ctx context.Context, ids ...string) error
}

// Notifier receives processing outcomes for live dashboards.
type Notifier interface {
	Notify(ctx context.Context, event ws.PipelineEvent)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, ws.PipelineEvent) {}

// Processor handles a single stream entry: normalize, persist, then ack and
// record the outcome on the raw event.
type Processor struct {
	registry      Resolver
	events        EventStore
	acker         Acker
	notifier      Notifier
	maxAttempts   int
	handleTimeout time.Duration
	logger        *slog.Logger
}

// ProcessorOptions configures a Processor.
type ProcessorOptions struct {
	MaxAttempts   int
	HandleTimeout time.Duration
}

func NewProcessor(registry Resolver, events EventStore, acker Acker, notifier Notifier, opts ProcessorOptions, logger *slog.Logger) *Processor {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	return &Processor{
		registry:      registry,
		events:        events,
		acker:         acker,
		notifier:      notifier,
		maxAttempts:   opts.MaxAttempts,
		handleTimeout: opts.HandleTimeout,
		logger:        logger,
	}
}

// IsPermanent reports whether err can never succeed on redelivery.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) ||
		errors.Is(err, normalizer.ErrNoNormalizer) ||
		errors.Is(err, normalizer.ErrInvalidPayload) ||
		errors.Is(err, domain.ErrMalformedMessage)
}

// Handle processes one entry. Successful and permanently failed entries are
// acknowledged; transiently failed ones stay pending for redelivery.
func (p *Processor) Handle(ctx context.Context, entry stream.Entry) Outcome {
	start := time.Now()
	msg := entry.Message

	if entry.Err != nil {
		p.logger.Error("undecodable stream entry", "error", entry.Err, "message_id", entry.ID)
		return p.deadLetter(ctx, entry, 0, entry.Err, start)
	}

	kind, err := p.process(ctx, msg)
	metrics.ProcessingDuration.WithLabelValues(p.platformLabel(msg)).Observe(time.Since(start).Seconds())

	if err == nil {
		return p.succeed(ctx, entry, kind, start)
	}

	if IsPermanent(err) {
		p.logger.Error("permanent processing failure",
			"error", err,
			"raw_event_id", msg.RawEventID,
			"platform", msg.PlatformName,
			"message_id", entry.ID,
		)
		return p.deadLetter(ctx, entry, 0, err, start)
	}

	attempts, rerr := p.events.RecordProcessingFailure(ctx, msg.RawEventID, err.Error())
	switch {
	case errors.Is(rerr, store.ErrRawEventNotFound):
		return p.deadLetter(ctx, entry, 0, fmt.Errorf("%w: %w", ErrPermanent, rerr), start)
	case rerr != nil:
		p.logger.Error("failed to record processing failure", "error", rerr, "raw_event_id", msg.RawEventID)
	case attempts >= p.maxAttempts:
		p.logger.Error("giving up after max attempts",
			"error", err,
			"raw_event_id", msg.RawEventID,
			"attempts", attempts,
			"message_id", entry.ID,
		)
		return p.deadLetter(ctx, entry, attempts, fmt.Errorf("%w: max attempts (%d) exceeded: %v", ErrPermanent, p.maxAttempts, err), start)
	}

	metrics.MessagesProcessed.WithLabelValues(p.platformLabel(msg), metrics.OutcomeFailure).Inc()
	p.logger.Warn("processing failed, leaving message pending",
		"error", err,
		"raw_event_id", msg.RawEventID,
		"platform", msg.PlatformName,
		"attempts", attempts,
		"message_id", entry.ID,
	)
	p.notify(ctx, ws.EventProcessingFailed, entry, "", attempts, err, start)
	return OutcomeRetry
}

func (p *Processor) process(ctx context.Context, msg domain.QueueMessage) (domain.RecordKind, error) {
	n, err := p.registry.Resolve(msg.PlatformFamily, msg.PlatformName)
	if err != nil {
		return "", err
	}

	if p.handleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.handleTimeout)
		defer cancel()
	}

	record, err := n.Normalize(ctx, msg.Payload)
	if err != nil {
		return "", fmt.Errorf("normalizing: %w", err)
	}
	if err := n.Persist(ctx, record); err != nil {
		return "", fmt.Errorf("persisting %s: %w", record.Kind(), err)
	}
	return record.Kind(), nil
}

func (p *Processor) succeed(ctx context.Context, entry stream.Entry, kind domain.RecordKind, start time.Time) Outcome {
	msg := entry.Message

	if err := p.acker.Ack(ctx, entry.ID); err != nil {
		// The record is persisted; redelivery will upsert it again.
		p.logger.Error("failed to ack processed message", "error", err, "message_id", entry.ID)
		return OutcomeRetry
	}
	if err := p.events.UpdateRawEventStatus(ctx, msg.RawEventID, domain.StatusProcessed, ""); err != nil {
		p.logger.Error("failed to mark raw event processed", "error", err, "raw_event_id", msg.RawEventID)
	}

	metrics.MessagesProcessed.WithLabelValues(p.platformLabel(msg), metrics.OutcomeSuccess).Inc()
	p.logger.Info("message processed",
		"raw_event_id", msg.RawEventID,
		"platform", msg.PlatformName,
		"record_kind", kind,
		"message_id", entry.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	p.notify(ctx, ws.EventProcessed, entry, string(kind), 0, nil, start)
	return OutcomeProcessed
}

// deadLetter records a permanent failure and acknowledges the entry. If the
// dead letter cannot be written the entry stays pending so the failure is
// not lost.
func (p *Processor) deadLetter(ctx context.Context, entry stream.Entry, attempts int, cause error, start time.Time) Outcome {
	msg := entry.Message
	reason := cause.Error()
	rawEventID := msg.RawEventID

	if rawEventID > 0 && attempts == 0 {
		n, err := p.events.RecordProcessingFailure(ctx, rawEventID, reason)
		switch {
		case errors.Is(err, store.ErrRawEventNotFound):
			rawEventID = 0
		case err != nil:
			p.logger.Error("failed to record processing failure", "error", err, "raw_event_id", rawEventID)
		default:
			attempts = n
		}
	}

	err := p.events.InsertDeadLetter(ctx, store.DeadLetterRecord{
		RawEventID:     rawEventID,
		StreamID:       entry.ID,
		PlatformFamily: msg.PlatformFamily,
		Platform:       msg.PlatformName,
		Reason:         reason,
		Attempts:       attempts,
	})
	if err != nil {
		p.logger.Error("failed to insert dead letter, leaving message pending", "error", err, "message_id", entry.ID)
		return OutcomeRetry
	}

	if err := p.acker.Ack(ctx, entry.ID); err != nil {
		p.logger.Error("failed to ack dead-lettered message", "error", err, "message_id", entry.ID)
	}

	metrics.MessagesProcessed.WithLabelValues(p.platformLabel(msg), metrics.OutcomePermanent).Inc()
	metrics.DeadLetters.WithLabelValues(deadLetterReason(cause)).Inc()
	p.notify(ctx, ws.EventDeadLettered, entry, "", attempts, cause, start)
	return OutcomeDeadLettered
}

func (p *Processor) notify(ctx context.Context, kind string, entry stream.Entry, recordKind string, attempts int, err error, start time.Time) {
	event := ws.PipelineEvent{
		Type:           kind,
		RawEventID:     entry.Message.RawEventID,
		MessageID:      entry.ID,
		PlatformFamily: entry.Message.PlatformFamily,
		Platform:       entry.Message.PlatformName,
		RecordKind:     recordKind,
		Attempt:        attempts,
		DurationMs:     time.Since(start).Milliseconds(),
		Timestamp:      time.Now().UTC(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	p.notifier.Notify(ctx, event)
}

// platformLabel bounds metric cardinality to registered platforms.
func (p *Processor) platformLabel(msg domain.QueueMessage) string {
	if _, err := p.registry.Resolve(msg.PlatformFamily, msg.PlatformName); err != nil {
		return metrics.UnknownPlatform
	}
	return msg.PlatformName
}

// deadLetterReason is a low-cardinality metric label for cause.
func deadLetterReason(cause error) string {
	switch {
	case errors.Is(cause, store.ErrRawEventNotFound):
		return "orphan_message"
	case errors.Is(cause, domain.ErrMalformedMessage):
		return "malformed_message"
	case errors.Is(cause, normalizer.ErrNoNormalizer):
		return "no_normalizer"
	case errors.Is(cause, normalizer.ErrInvalidPayload):
		return "invalid_payload"
	default:
		return "max_attempts"
	}
}

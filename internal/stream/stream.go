// Package stream is the durable event log between the gateway and the
// dispatcher: a size-bounded Redis Stream read through a consumer group.
//
// The log is not authoritative. Every entry points at a raw_events row, so
// trimming or losing an entry never loses the audit record. Pending-set
// bookkeeping and redelivery arbitration belong to Redis; the only mutation
// consumers perform is XACK.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PayloadField is the single field each stream entry carries.
const PayloadField = "payload"

// Log is a Redis Stream with one consumer group.
type Log struct {
	client *redis.Client
	name   string
	group  string
	maxLen int64
}

// Options configures a Log.
type Options struct {
	Name   string
	Group  string
	MaxLen int64
}

func New(client *redis.Client, opts Options) *Log {
	return &Log{
		client: client,
		name:   opts.Name,
		group:  opts.Group,
		maxLen: opts.MaxLen,
	}
}

func (l *Log) Name() string  { return l.name }
func (l *Log) Group() string { return l.group }

// Append publishes msg and returns the id Redis assigned. The stream is
// trimmed approximately to maxLen, evicting the oldest entries.
func (l *Log) Append(ctx context.Context, msg domain.QueueMessage) (string, error) {
	data, err := msg.Encode()
	if err != nil {
		return "", fmt.Errorf("encoding queue message: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: l.name,
		ID:     "*",
		Values: map[string]any{PayloadField: data},
	}
	if l.maxLen > 0 {
		args.MaxLen = l.maxLen
		args.Approx = true
	}

	id, err := l.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("appending to stream %s: %w", l.name, err)
	}
	return id, nil
}

// EnsureGroup creates the consumer group, and the stream if needed. An
// existing group is not an error.
func (l *Log) EnsureGroup(ctx context.Context) error {
	err := l.client.XGroupCreateMkStream(ctx, l.name, l.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group %s on %s: %w", l.group, l.name, err)
	}
	return nil
}

// Entry is a delivered stream entry. Raw holds the payload field; Err is set
// when the entry could not be decoded into a QueueMessage.
type Entry struct {
	ID      string
	Raw     []byte
	Message domain.QueueMessage
	Err     error
}

// Read delivers up to count never-delivered entries to consumer, blocking up
// to block. It returns nil, nil when the wait times out. A non-positive block
// polls without waiting.
func (l *Log) Read(ctx context.Context, consumer string, count int64, block time.Duration) ([]Entry, error) {
	if block <= 0 {
		block = -1
	}
	res, err := l.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    l.group,
		Consumer: consumer,
		Streams:  []string{l.name, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading stream %s: %w", l.name, err)
	}

	var entries []Entry
	for _, s := range res {
		for _, m := range s.Messages {
			entries = append(entries, toEntry(m))
		}
	}
	return entries, nil
}

// Claim transfers to consumer up to count pending entries that have been
// idle for at least minIdle, so messages left unacknowledged by any member of
// the group are redelivered.
func (l *Log) Claim(ctx context.Context, consumer string, minIdle time.Duration, count int64) ([]Entry, error) {
	msgs, _, err := l.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   l.name,
		Group:    l.group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("claiming pending entries on %s: %w", l.name, err)
	}

	entries := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, toEntry(m))
	}
	return entries, nil
}

// Ack removes ids from the group's pending set.
func (l *Log) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := l.client.XAck(ctx, l.name, l.group, ids...).Err(); err != nil {
		return fmt.Errorf("acknowledging %v on %s: %w", ids, l.name, err)
	}
	return nil
}

// Len returns the number of entries currently retained.
func (l *Log) Len(ctx context.Context) (int64, error) {
	return l.client.XLen(ctx, l.name).Result()
}

// Pending returns the number of delivered but unacknowledged entries.
func (l *Log) Pending(ctx context.Context) (int64, error) {
	p, err := l.client.XPending(ctx, l.name, l.group).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading pending count on %s: %w", l.name, err)
	}
	return p.Count, nil
}

// PruneConsumers deletes group members other than keep that hold no pending
// entries and have been idle for at least minIdle, returning their names.
// Generated consumer names differ per process, so every restart leaves one
// member behind. minIdle must be far above the read block timeout: a member
// that is still polling is never that idle.
func (l *Log) PruneConsumers(ctx context.Context, keep string, minIdle time.Duration) ([]string, error) {
	consumers, err := l.client.XInfoConsumers(ctx, l.name, l.group).Result()
	if err != nil {
		return nil, fmt.Errorf("listing consumers of %s on %s: %w", l.group, l.name, err)
	}

	var removed []string
	for _, c := range consumers {
		if c.Name == keep || c.Pending > 0 || c.Idle < minIdle {
			continue
		}
		if err := l.client.XGroupDelConsumer(ctx, l.name, l.group, c.Name).Err(); err != nil {
			return removed, fmt.Errorf("deleting consumer %s on %s: %w", c.Name, l.name, err)
		}
		removed = append(removed, c.Name)
	}
	return removed, nil
}

func toEntry(m redis.XMessage) Entry {
	e := Entry{ID: m.ID}

	var raw []byte
	switch v := m.Values[PayloadField].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		e.Err = fmt.Errorf("%w: entry %s has no %q field", domain.ErrMalformedMessage, m.ID, PayloadField)
		return e
	}
	e.Raw = raw

	msg, err := domain.DecodeMessage(raw)
	if err != nil {
		e.Err = err
		return e
	}
	msg.StreamID = m.ID
	e.Message = msg
	return e
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/domain"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/store"
	ws "github.com/Priya8975/commerce-webhook-pipeline/internal/websocket"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory stand-in for the Postgres store.
type memStore struct {
	mu           sync.Mutex
	nextID       int64
	events       map[int64]*domain.RawEvent
	deadLetters  []store.DeadLetterRecord
	transactions map[string]*domain.Transaction
	carts        []*domain.AbandonedCart
	claimedAt    map[int64]time.Time

	insertErr     error
	deadLetterErr error
}

func newMemStore() *memStore {
	return &memStore{
		events:       make(map[int64]*domain.RawEvent),
		transactions: make(map[string]*domain.Transaction),
		claimedAt:    make(map[int64]time.Time),
	}
}

func (m *memStore) InsertRawEvent(_ context.Context, family, platform string, payload []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	m.nextID++
	m.events[m.nextID] = &domain.RawEvent{
		ID:             m.nextID,
		Payload:        json.RawMessage(payload),
		PlatformFamily: family,
		Platform:       platform,
		Status:         domain.StatusReceived,
		CreatedAt:      time.Now(),
	}
	return m.nextID, nil
}

func (m *memStore) UpdateRawEventStatus(_ context.Context, id int64, status domain.RawEventStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return store.ErrRawEventNotFound
	}
	e.Status = status
	if reason == "" {
		e.LastError = nil
	} else {
		e.LastError = &reason
	}
	return nil
}

func (m *memStore) MarkForwarding(_ context.Context, id int64, status domain.RawEventStatus, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok || (e.Status != domain.StatusReceived && e.Status != domain.StatusForwardingFailed) {
		return false, nil
	}
	e.Status = status
	if reason == "" {
		e.LastError = nil
	} else {
		e.LastError = &reason
	}
	return true, nil
}

func (m *memStore) RecordProcessingFailure(_ context.Context, id int64, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return 0, store.ErrRawEventNotFound
	}
	e.Status = domain.StatusProcessingFailed
	e.Attempts++
	e.LastError = &reason
	return e.Attempts, nil
}

func (m *memStore) InsertDeadLetter(_ context.Context, rec store.DeadLetterRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deadLetterErr != nil {
		return m.deadLetterErr
	}
	m.deadLetters = append(m.deadLetters, rec)
	return nil
}

func (m *memStore) ClaimForwardingFailed(_ context.Context, _, lease time.Duration, limit int) ([]domain.RawEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []domain.RawEvent
	for id := int64(1); id <= m.nextID && len(out) < limit; id++ {
		e, ok := m.events[id]
		if !ok || e.Status != domain.StatusForwardingFailed {
			continue
		}
		if at, claimed := m.claimedAt[id]; claimed && now.Sub(at) < lease {
			continue
		}
		m.claimedAt[id] = now
		out = append(out, *e)
	}
	return out, nil
}

func (m *memStore) UpsertTransaction(_ context.Context, t *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.transactions[t.BusinessKey()]; ok {
		existing.Status = t.Status
		existing.UpdatedAt = t.UpdatedAt
		return nil
	}
	cp := *t
	m.transactions[t.BusinessKey()] = &cp
	return nil
}

func (m *memStore) InsertAbandonedCart(_ context.Context, c *domain.AbandonedCart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts = append(m.carts, c)
	return nil
}

func (m *memStore) event(id int64) domain.RawEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.events[id]
}

func (m *memStore) deadLetterCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deadLetters)
}

// recordingAcker remembers acknowledged ids.
type recordingAcker struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (a *recordingAcker) Ack(_ context.Context, ids ...string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.ids = append(a.ids, ids...)
	return nil
}

func (a *recordingAcker) acked() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.ids...)
}

// recordingNotifier remembers pipeline events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []ws.PipelineEvent
}

func (n *recordingNotifier) Notify(_ context.Context, e ws.PipelineEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

// scriptedNormalizer fails with the queued errors before succeeding.
type scriptedNormalizer struct {
	mu       sync.Mutex
	failures []error
	persist  func(ctx context.Context, record domain.CanonicalRecord) error
}

func (s *scriptedNormalizer) Normalize(context.Context, json.RawMessage) (domain.CanonicalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return nil, err
	}
	return &domain.AbandonedCart{Status: domain.OrderAbandoned}, nil
}

func (s *scriptedNormalizer) Persist(ctx context.Context, record domain.CanonicalRecord) error {
	if s.persist != nil {
		return s.persist(ctx, record)
	}
	return nil
}

var errDatabaseDown = errors.New("database down")

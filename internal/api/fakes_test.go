package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/domain"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/engine"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	mu           sync.Mutex
	events       map[int64]*domain.RawEvent
	transactions []domain.Transaction
	carts        []domain.AbandonedCart
	deadLetters  map[int64]*domain.DeadLetter
	lastFilter   store.RawEventFilter
	err          error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:      make(map[int64]*domain.RawEvent),
		deadLetters: make(map[int64]*domain.DeadLetter),
	}
}

func (f *fakeStore) GetPipelineMetrics(context.Context) (*store.PipelineMetrics, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &store.PipelineMetrics{
		RawEventsByStatus: map[string]int{"processed": len(f.events)},
		TotalRawEvents:    len(f.events),
	}, nil
}

func (f *fakeStore) ListRawEvents(_ context.Context, filter store.RawEventFilter) ([]domain.RawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.RawEvent
	for _, e := range f.events {
		out = append(out, *e)
	}
	return out, nil
}

func (f *fakeStore) GetRawEvent(_ context.Context, id int64) (*domain.RawEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.events[id], nil
}

func (f *fakeStore) ListTransactions(_ context.Context, status string, _ int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, t := range f.transactions {
		if status == "" || string(t.Status) == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) GetTransaction(_ context.Context, transactionID, productID string) (*domain.Transaction, error) {
	for i := range f.transactions {
		t := f.transactions[i]
		if t.TransactionID == transactionID && t.ProductID == productID {
			return &t, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListAbandonedCarts(context.Context, string, int) ([]domain.AbandonedCart, error) {
	return f.carts, nil
}

func (f *fakeStore) ListDeadLetters(_ context.Context, platform string, resolved bool, _ int) ([]domain.DeadLetter, error) {
	var out []domain.DeadLetter
	for _, dl := range f.deadLetters {
		if platform != "" && dl.Platform != platform {
			continue
		}
		if (dl.ResolvedAt != nil) != resolved {
			continue
		}
		out = append(out, *dl)
	}
	return out, nil
}

func (f *fakeStore) GetDeadLetter(_ context.Context, id int64) (*domain.DeadLetter, error) {
	return f.deadLetters[id], nil
}

func (f *fakeStore) ResolveDeadLetter(_ context.Context, id int64, resolvedBy string) error {
	dl, ok := f.deadLetters[id]
	if !ok || dl.ResolvedAt != nil {
		return store.ErrAlreadyResolved
	}
	now := dl.CreatedAt
	dl.ResolvedAt = &now
	dl.ResolvedBy = &resolvedBy
	return nil
}

type accepted struct {
	family, platform string
	payload          []byte
}

type fakeAcceptor struct {
	mu    sync.Mutex
	calls []accepted
}

func (f *fakeAcceptor) Accept(family, platform string, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, accepted{family: family, platform: platform, payload: payload})
}

type fakeReplayer struct {
	published []int64
	err       error
}

func (f *fakeReplayer) Publish(_ context.Context, event *domain.RawEvent) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.published = append(f.published, event.ID)
	return "1-0", nil
}

type fakeStream struct {
	length, pending int64
	err             error
}

func (f fakeStream) Len(context.Context) (int64, error)     { return f.length, f.err }
func (f fakeStream) Pending(context.Context) (int64, error) { return f.pending, f.err }

type fakeBreaker struct{ state string }

func (f fakeBreaker) GetState(context.Context, string) engine.CircuitBreakerState {
	return engine.CircuitBreakerState{State: f.state}
}

type fakeHub struct{ clients int }

func (f fakeHub) ClientCount() int { return f.clients }

func (f fakeHub) HandleWebSocket(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusSwitchingProtocols)
}

type knownPlatforms map[string]bool

func (k knownPlatforms) Has(family, name string) bool { return k[family+"/"+name] }

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

var errBoom = errors.New("boom")

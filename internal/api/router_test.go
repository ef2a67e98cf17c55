package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/domain"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store    *fakeStore
	ingestor *fakeAcceptor
	replayer *fakeReplayer
	handler  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    newFakeStore(),
		ingestor: &fakeAcceptor{},
		replayer: &fakeReplayer{},
	}
	env.handler = NewRouter(Deps{
		Store:     env.store,
		Ingestor:  env.ingestor,
		Platforms: knownPlatforms{"checkout/kiwify": true},
		Replayer:  env.replayer,
		Stream:    fakeStream{length: 12, pending: 3},
		Breaker:   fakeBreaker{state: "closed"},
		Hub:       fakeHub{clients: 2},
		Health: map[string]Pinger{
			"postgres": pingFunc(func(context.Context) error { return nil }),
		},
		MaxBodyBytes: 1024,
		Logger:       quietLogger(),
	})
	return env
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestIngest_AcceptsJSONObject(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/checkout/kiwify", `{"order_id":"abc","order_status":"paid"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"accepted"}`, rec.Body.String())
	require.Len(t, env.ingestor.calls, 1)
	call := env.ingestor.calls[0]
	assert.Equal(t, "checkout", call.family)
	assert.Equal(t, "kiwify", call.platform)
	assert.JSONEq(t, `{"order_id":"abc","order_status":"paid"}`, string(call.payload))
}

func TestIngest_UnknownPlatformStillAccepted(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/checkout/unknown", `{}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, env.ingestor.calls, 1)
}

func TestIngest_RejectsInvalidBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"order_id":`},
		{"empty", ``},
		{"array", `[1,2,3]`},
		{"string", `"hello"`},
		{"too large", `{"pad":"` + strings.Repeat("x", 2048) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			rec := env.do(http.MethodPost, "/checkout/kiwify", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, env.ingestor.calls)
		})
	}
}

func TestIngest_MetricLabelsBoundedToKnownPlatforms(t *testing.T) {
	env := newTestEnv(t)
	metrics.IngestRequests.Reset()

	for i := 0; i < 50; i++ {
		rec := env.do(http.MethodPost, fmt.Sprintf("/fam%d/name%d", i, i), `{}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	env.do(http.MethodPost, "/checkout/kiwify", `{}`)
	env.do(http.MethodPost, "/other/thing", `[]`)

	assert.Len(t, env.ingestor.calls, 51)
	assert.Equal(t, 3, testutil.CollectAndCount(metrics.IngestRequests))
	assert.Equal(t, float64(50), testutil.ToFloat64(
		metrics.IngestRequests.WithLabelValues(metrics.UnknownPlatform, metrics.UnknownPlatform, "accepted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		metrics.IngestRequests.WithLabelValues("checkout", "kiwify", "accepted")))
}

func TestRawEvents_ListValidatesStatus(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/v1/raw-events?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/raw-events?status=forwarding_failed&platform=kiwify&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusForwardingFailed, env.store.lastFilter.Status)
	assert.Equal(t, "kiwify", env.store.lastFilter.Platform)
	assert.Equal(t, 5, env.store.lastFilter.Limit)
}

func TestRawEvents_Get(t *testing.T) {
	env := newTestEnv(t)
	env.store.events[7] = &domain.RawEvent{ID: 7, Platform: "kiwify", Status: domain.StatusProcessed}

	rec := env.do(http.MethodGet, "/api/v1/raw-events/7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.RawEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(7), got.ID)

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/v1/raw-events/8", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/raw-events/abc", "").Code)
}

func TestRawEvents_Replay(t *testing.T) {
	env := newTestEnv(t)
	env.store.events[1] = &domain.RawEvent{ID: 1, Status: domain.StatusForwardingFailed}
	env.store.events[2] = &domain.RawEvent{ID: 2, Status: domain.StatusProcessed}

	rec := env.do(http.MethodPost, "/api/v1/raw-events/1/replay", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"raw_event_id":1,"message_id":"1-0","status":"forwarded"}`, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/v1/raw-events/2/replay", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/raw-events/2/replay?force=true", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	assert.Equal(t, []int64{1, 2}, env.replayer.published)
}

func TestRawEvents_ReplayPublishFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.events[1] = &domain.RawEvent{ID: 1, Status: domain.StatusForwardingFailed}
	env.replayer.err = errBoom

	rec := env.do(http.MethodPost, "/api/v1/raw-events/1/replay", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestTransactions_ListAndGet(t *testing.T) {
	env := newTestEnv(t)
	env.store.transactions = []domain.Transaction{
		{TransactionID: "tx-1", ProductID: "p-1", Status: domain.OrderPaid},
		{TransactionID: "tx-2", ProductID: "p-1", Status: domain.OrderRefunded},
	}

	rec := env.do(http.MethodGet, "/api/v1/transactions?status=paid", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []domain.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "tx-1", list[0].TransactionID)

	rec = env.do(http.MethodGet, "/api/v1/transactions/tx-2/p-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/transactions/tx-3/p-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAbandonedCarts_List(t *testing.T) {
	env := newTestEnv(t)
	email := "buyer@example.com"
	env.store.carts = []domain.AbandonedCart{{UserEmail: &email, Status: domain.OrderAbandoned}}

	rec := env.do(http.MethodGet, "/api/v1/abandoned-carts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), email)
}

func TestDeadLetters_Resolve(t *testing.T) {
	env := newTestEnv(t)
	env.store.deadLetters[3] = &domain.DeadLetter{ID: 3, Platform: "kiwify", Reason: "no_normalizer", CreatedAt: time.Now()}

	rec := env.do(http.MethodGet, "/api/v1/dead-letters?platform=kiwify", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "no_normalizer")

	rec = env.do(http.MethodPost, "/api/v1/dead-letters/3/resolve", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "manual", *env.store.deadLetters[3].ResolvedBy)

	rec = env.do(http.MethodPost, "/api/v1/dead-letters/3/resolve", `{"resolved_by":"ops"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/dead-letters/3/resolve", `{"resolved_by":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboard_Metrics(t *testing.T) {
	env := newTestEnv(t)
	env.store.events[1] = &domain.RawEvent{ID: 1}

	rec := env.do(http.MethodGet, "/api/v1/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.EqualValues(t, 1, got["total_raw_events"])
	assert.EqualValues(t, 12, got["stream_length"])
	assert.EqualValues(t, 3, got["pending_messages"])
	assert.EqualValues(t, 2, got["websocket_clients"])
	geo, ok := got["geo_lookup"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "closed", geo["state"])
}

func TestDashboard_MetricsStoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.err = errBoom

	rec := env.do(http.MethodGet, "/api/v1/metrics", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler(map[string]Pinger{
		"postgres": pingFunc(func(context.Context) error { return nil }),
	})(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Dependencies["postgres"])
}

func TestHealth_DependencyDown(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler(map[string]Pinger{
		"postgres": pingFunc(func(context.Context) error { return nil }),
		"redis":    pingFunc(func(context.Context) error { return errBoom }),
	})(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "unhealthy: boom", resp.Dependencies["redis"])
}

func TestPing(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/ping", "").Code)
}

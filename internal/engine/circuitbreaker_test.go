package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestCB(t *testing.T) (*CircuitBreaker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	cb := NewCircuitBreaker(client, logger)
	return cb, mr
}

// openAndExpireCooldown opens the breaker for a dependency, then moves
// last_failed_at 31 seconds into the past so the cooldown has elapsed.
func openAndExpireCooldown(t *testing.T, cb *CircuitBreaker, mr *miniredis.Miniredis, name string) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		cb.RecordFailure(ctx, name)
	}

	pastTime := time.Now().Unix() - 31
	mr.HSet(cbKey(name), "last_failed_at", fmt.Sprintf("%d", pastTime))
}

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb, _ := setupTestCB(t)
	ctx := context.Background()

	state, allowed := cb.Allow(ctx, "geo")

	if state != StateClosed {
		t.Errorf("expected state %q, got %q", StateClosed, state)
	}
	if !allowed {
		t.Error("unknown dependency should be allowed (circuit closed)")
	}
}

func TestCircuitBreaker_GetState_Default(t *testing.T) {
	cb, _ := setupTestCB(t)

	state := cb.GetState(context.Background(), "geo")

	if state.State != StateClosed {
		t.Errorf("expected state %q, got %q", StateClosed, state.State)
	}
	if state.Failures != 0 {
		t.Errorf("expected 0 failures, got %d", state.Failures)
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := setupTestCB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		cb.RecordFailure(ctx, "geo")
	}

	state, allowed := cb.Allow(ctx, "geo")
	if state != StateOpen {
		t.Errorf("expected state %q, got %q", StateOpen, state)
	}
	if allowed {
		t.Error("should NOT be allowed when circuit is open")
	}

	snapshot := cb.GetState(ctx, "geo")
	if snapshot.Failures != 5 {
		t.Errorf("expected 5 failures, got %d", snapshot.Failures)
	}
	if snapshot.LastFailedAt == "" {
		t.Error("expected last_failed_at to be reported")
	}
}

func TestCircuitBreaker_StaysClosedBelowThreshold(t *testing.T) {
	cb, _ := setupTestCB(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		cb.RecordFailure(ctx, "geo")
	}

	state, allowed := cb.Allow(ctx, "geo")
	if state != StateClosed {
		t.Errorf("expected state %q, got %q", StateClosed, state)
	}
	if !allowed {
		t.Error("should be allowed when below threshold")
	}
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb, _ := setupTestCB(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		cb.RecordFailure(ctx, "geo")
	}
	cb.RecordSuccess(ctx, "geo")

	state := cb.GetState(ctx, "geo")
	if state.State != StateClosed {
		t.Errorf("expected state %q after success, got %q", StateClosed, state.State)
	}
	if state.Failures != 0 {
		t.Errorf("expected 0 failures after success, got %d", state.Failures)
	}
}

func TestCircuitBreaker_TransitionsToHalfOpen(t *testing.T) {
	cb, mr := setupTestCB(t)
	ctx := context.Background()

	openAndExpireCooldown(t, cb, mr, "geo")

	state, allowed := cb.Allow(ctx, "geo")
	if state != StateHalfOpen {
		t.Errorf("expected state %q, got %q", StateHalfOpen, state)
	}
	if !allowed {
		t.Error("should allow a trial call in half-open state")
	}
}

func TestCircuitBreaker_HalfOpenSuccess_ClosesCircuit(t *testing.T) {
	cb, mr := setupTestCB(t)
	ctx := context.Background()

	openAndExpireCooldown(t, cb, mr, "geo")
	cb.Allow(ctx, "geo")

	cb.RecordSuccess(ctx, "geo")

	state := cb.GetState(ctx, "geo")
	if state.State != StateClosed {
		t.Errorf("expected %q after half-open success, got %q", StateClosed, state.State)
	}
}

func TestCircuitBreaker_HalfOpenFailure_ReopensCircuit(t *testing.T) {
	cb, mr := setupTestCB(t)
	ctx := context.Background()

	openAndExpireCooldown(t, cb, mr, "geo")
	cb.Allow(ctx, "geo")

	cb.RecordFailure(ctx, "geo")

	state, allowed := cb.Allow(ctx, "geo")
	if state != StateOpen {
		t.Errorf("expected %q after half-open failure, got %q", StateOpen, state)
	}
	if allowed {
		t.Error("should NOT be allowed after half-open failure")
	}
}

func TestCircuitBreaker_IsolationBetweenDependencies(t *testing.T) {
	cb, _ := setupTestCB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		cb.RecordFailure(ctx, "geo")
	}

	state, allowed := cb.Allow(ctx, "other")
	if state != StateClosed {
		t.Errorf("other dependency should be closed, got %q", state)
	}
	if !allowed {
		t.Error("breakers are per dependency")
	}
}

func TestCircuitBreaker_RedisDown_FailsOpen(t *testing.T) {
	cb, mr := setupTestCB(t)
	mr.Close()

	_, allowed := cb.Allow(context.Background(), "geo")
	if !allowed {
		t.Error("breaker should fail open when Redis is unreachable")
	}
}

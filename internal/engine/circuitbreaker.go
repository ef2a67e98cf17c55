package engine

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Circuit breaker states
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// CircuitBreaker guards an external dependency (the geo lookup service)
// with state kept in Redis, so every gateway and dispatcher process backs
// off together.
// State transitions: closed → open → half-open → closed
//
// - Closed: calls go through. Failures are counted.
// - Open: calls are skipped until the cooldown elapses.
// - Half-Open: a trial call is allowed. Success → closed, failure → open.
type CircuitBreaker struct {
	redisClient      *redis.Client
	logger           *slog.Logger
	failureThreshold int
	cooldownPeriod   time.Duration
	now              func() time.Time
}

// CircuitBreakerState is the externally visible state of one breaker.
type CircuitBreakerState struct {
	State        string `json:"state"`
	Failures     int    `json:"failures"`
	LastFailedAt string `json:"last_failed_at,omitempty"`
}

func NewCircuitBreaker(redisClient *redis.Client, logger *slog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		redisClient:      redisClient,
		logger:           logger,
		failureThreshold: 5,
		cooldownPeriod:   30 * time.Second,
		now:              time.Now,
	}
}

func cbKey(name string) string {
	return "cb:" + name
}

// Allow reports whether a call to the named dependency should be attempted.
// Redis errors fail open: losing the breaker must not stop enrichment.
func (cb *CircuitBreaker) Allow(ctx context.Context, name string) (string, bool) {
	key := cbKey(name)

	data, err := cb.redisClient.HGetAll(ctx, key).Result()
	if err != nil || len(data) == 0 {
		return StateClosed, true
	}

	switch data["state"] {
	case StateOpen:
		lastFailedAt, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)
		if !cb.cooledDown(lastFailedAt) {
			return StateOpen, false
		}
		cb.redisClient.HSet(ctx, key, "state", StateHalfOpen)
		cb.logger.Info("circuit breaker half-open", "dependency", name)
		return StateHalfOpen, true
	case StateHalfOpen:
		return StateHalfOpen, true
	default:
		return StateClosed, true
	}
}

// RecordSuccess closes the breaker and resets the failure count.
func (cb *CircuitBreaker) RecordSuccess(ctx context.Context, name string) {
	key := cbKey(name)

	prev, _ := cb.redisClient.HGet(ctx, key, "state").Result()
	if prev == "" {
		// Nothing recorded yet; keep the hot path to a single read.
		return
	}

	cb.redisClient.HSet(ctx, key, "state", StateClosed, "failures", 0)
	if prev == StateHalfOpen {
		cb.logger.Info("circuit breaker closed (recovered)", "dependency", name)
	}
}

// RecordFailure counts a failure and opens the breaker when the threshold is
// reached or a half-open trial fails.
func (cb *CircuitBreaker) RecordFailure(ctx context.Context, name string) {
	key := cbKey(name)

	pipe := cb.redisClient.TxPipeline()
	incr := pipe.HIncrBy(ctx, key, "failures", 1)
	pipe.HSet(ctx, key, "last_failed_at", cb.now().Unix())
	state := pipe.HGet(ctx, key, "state")
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		cb.logger.Error("failed to record circuit breaker failure", "error", err, "dependency", name)
		return
	}

	failures := incr.Val()
	switch {
	case state.Val() == StateHalfOpen:
		cb.redisClient.HSet(ctx, key, "state", StateOpen)
		cb.logger.Warn("circuit breaker re-opened (half-open trial failed)", "dependency", name)
	case state.Val() != StateOpen && failures >= int64(cb.failureThreshold):
		cb.redisClient.HSet(ctx, key, "state", StateOpen)
		cb.logger.Warn("circuit breaker opened",
			"dependency", name,
			"failures", failures,
			"threshold", cb.failureThreshold,
		)
	case state.Val() == "":
		cb.redisClient.HSet(ctx, key, "state", StateClosed)
	}
}

// GetState returns the current breaker state for a dependency.
func (cb *CircuitBreaker) GetState(ctx context.Context, name string) CircuitBreakerState {
	data, err := cb.redisClient.HGetAll(ctx, cbKey(name)).Result()
	if err != nil || len(data) == 0 {
		return CircuitBreakerState{State: StateClosed}
	}

	failures, _ := strconv.Atoi(data["failures"])
	lastFailedAt, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)

	state := data["state"]
	if state == "" {
		state = StateClosed
	}
	if state == StateOpen && cb.cooledDown(lastFailedAt) {
		state = StateHalfOpen
	}

	result := CircuitBreakerState{State: state, Failures: failures}
	if lastFailedAt > 0 {
		result.LastFailedAt = time.Unix(lastFailedAt, 0).UTC().Format(time.RFC3339)
	}
	return result
}

func (cb *CircuitBreaker) cooledDown(lastFailedAt int64) bool {
	return cb.now().Unix()-lastFailedAt >= int64(cb.cooldownPeriod.Seconds())
}

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLog(t *testing.T, maxLen int64) (*Log, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	l := New(client, Options{Name: "webhooks", Group: "webhook_processors", MaxLen: maxLen})
	require.NoError(t, l.EnsureGroup(context.Background()))
	return l, mr, client
}

func testMessage(id int64) domain.QueueMessage {
	return domain.QueueMessage{
		RawEventID:     id,
		PlatformFamily: "checkout",
		PlatformName:   "kiwify",
		Payload:        json.RawMessage(`{"order_ref":"ord-1","order_status":"paid"}`),
	}
}

func TestEnsureGroup_Idempotent(t *testing.T) {
	l, _, _ := setupTestLog(t, 100)
	ctx := context.Background()

	assert.NoError(t, l.EnsureGroup(ctx))
	assert.NoError(t, l.EnsureGroup(ctx))
}

func TestAppendAndRead(t *testing.T) {
	l, _, _ := setupTestLog(t, 100)
	ctx := context.Background()

	id, err := l.Append(ctx, testMessage(42))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	entries, err := l.Read(ctx, "consumer-a", 10, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	require.NoError(t, e.Err)
	assert.Equal(t, id, e.ID)
	assert.Equal(t, id, e.Message.StreamID)
	assert.Equal(t, int64(42), e.Message.RawEventID)
	assert.Equal(t, "checkout", e.Message.PlatformFamily)
	assert.Equal(t, "kiwify", e.Message.PlatformName)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(e.Message.Payload, &payload))
	assert.Equal(t, "paid", payload["order_status"])
}

func TestRead_TimeoutReturnsNil(t *testing.T) {
	l, _, _ := setupTestLog(t, 100)

	entries, err := l.Read(context.Background(), "consumer-a", 10, 20*time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, entries)
}

func TestRead_DisjointAcrossConsumers(t *testing.T) {
	l, _, _ := setupTestLog(t, 100)
	ctx := context.Background()

	for i := int64(1); i <= 4; i++ {
		_, err := l.Append(ctx, testMessage(i))
		require.NoError(t, err)
	}

	first, err := l.Read(ctx, "consumer-a", 2, 20*time.Millisecond)
	require.NoError(t, err)
	second, err := l.Read(ctx, "consumer-b", 10, 20*time.Millisecond)
	require.NoError(t, err)

	require.Len(t, first, 2)
	require.Len(t, second, 2)

	seen := map[string]bool{}
	for _, e := range append(first, second...) {
		assert.False(t, seen[e.ID], "entry %s delivered twice", e.ID)
		seen[e.ID] = true
	}
}

func TestUnackedEntryIsRedelivered(t *testing.T) {
	l, _, _ := setupTestLog(t, 100)
	ctx := context.Background()

	id, err := l.Append(ctx, testMessage(7))
	require.NoError(t, err)

	entries, err := l.Read(ctx, "consumer-a", 10, 20*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	pending, err := l.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	// No new entries for anyone, but the pending one can be claimed by a peer.
	fresh, err := l.Read(ctx, "consumer-b", 10, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, fresh)

	claimed, err := l.Claim(ctx, "consumer-b", 0, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, id, claimed[0].ID)
	assert.Equal(t, int64(7), claimed[0].Message.RawEventID)
}

func TestAckedEntryIsNotRedelivered(t *testing.T) {
	l, _, _ := setupTestLog(t, 100)
	ctx := context.Background()

	_, err := l.Append(ctx, testMessage(8))
	require.NoError(t, err)

	entries, err := l.Read(ctx, "consumer-a", 10, 20*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, l.Ack(ctx, entries[0].ID))

	pending, err := l.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)

	claimed, err := l.Claim(ctx, "consumer-b", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	fresh, err := l.Read(ctx, "consumer-b", 10, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, fresh)
}

func TestAppend_TrimsToMaxLen(t *testing.T) {
	l, _, _ := setupTestLog(t, 5)
	ctx := context.Background()

	for i := int64(1); i <= 20; i++ {
		_, err := l.Append(ctx, testMessage(i))
		require.NoError(t, err)
	}

	n, err := l.Len(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, n, int64(20))
	assert.GreaterOrEqual(t, n, int64(5))
}

func TestRead_MalformedEntry(t *testing.T) {
	l, _, client := setupTestLog(t, 100)
	ctx := context.Background()

	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: "webhooks",
		Values: map[string]any{PayloadField: "not json"},
	}).Err())
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: "webhooks",
		Values: map[string]any{"other": "x"},
	}).Err())

	entries, err := l.Read(ctx, "consumer-a", 10, 20*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.ErrorIs(t, e.Err, domain.ErrMalformedMessage)
	}
}

// touchConsumer registers name in the group with a last-seen time of now.
func touchConsumer(t *testing.T, client *redis.Client, name string) {
	t.Helper()
	err := client.XClaim(context.Background(), &redis.XClaimArgs{
		Stream:   "webhooks",
		Group:    "webhook_processors",
		Consumer: name,
		Messages: []string{"0-1"},
	}).Err()
	if !errors.Is(err, redis.Nil) {
		require.NoError(t, err)
	}
}

func consumerNames(t *testing.T, client *redis.Client) []string {
	t.Helper()
	consumers, err := client.XInfoConsumers(context.Background(), "webhooks", "webhook_processors").Result()
	require.NoError(t, err)
	names := make([]string, 0, len(consumers))
	for _, c := range consumers {
		names = append(names, c.Name)
	}
	return names
}

func TestPruneConsumers_RemovesIdleMembersWithoutPending(t *testing.T) {
	l, mr, client := setupTestLog(t, 100)
	ctx := context.Background()

	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	mr.SetTime(start)
	for _, name := range []string{"gone-1", "gone-2", "busy", "self"} {
		touchConsumer(t, client, name)
	}
	_, err := l.Append(ctx, testMessage(1))
	require.NoError(t, err)
	entries, err := l.Read(ctx, "busy", 10, 20*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	mr.SetTime(start.Add(2 * time.Hour))
	touchConsumer(t, client, "recent")

	removed, err := l.PruneConsumers(ctx, "self", time.Hour)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"gone-1", "gone-2"}, removed)
	assert.ElementsMatch(t, []string{"busy", "recent", "self"}, consumerNames(t, client))

	pending, err := l.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending, "pending entries of kept consumers survive")
}

func TestPruneConsumers_MissingGroup(t *testing.T) {
	_, _, client := setupTestLog(t, 100)
	other := New(client, Options{Name: "webhooks", Group: "nobody"})

	_, err := other.PruneConsumers(context.Background(), "self", time.Hour)
	assert.Error(t, err)
}

package websocket

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// EventsChannel is the Redis pub/sub channel pipeline events travel on
// between consumer processes and the dashboard hub.
const EventsChannel = "pipeline:events"

// Notifier publishes pipeline events for any hub that relays the channel.
type Notifier struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

func NewNotifier(client *redis.Client, logger *slog.Logger) *Notifier {
	return &Notifier{
		client:  client,
		channel: EventsChannel,
		logger:  logger,
	}
}

// Notify publishes the event. Delivery is best-effort; errors are logged.
func (n *Notifier) Notify(ctx context.Context, event PipelineEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("failed to marshal pipeline event", "error", err)
		return
	}
	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		n.logger.Warn("failed to publish pipeline event", "error", err, "raw_event_id", event.RawEventID)
	}
}

// Relay forwards events published on the channel to connected clients until
// ctx is cancelled.
func (h *Hub) Relay(ctx context.Context, client *redis.Client, channel string) error {
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed before relaying.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	h.logger.Info("websocket relay subscribed", "channel", channel)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			h.BroadcastRaw([]byte(msg.Payload))
		}
	}
}

// Package feed carries talep change notifications between processes over a
// Redis pub/sub channel. Every store mutation is published here and every
// mounted viewport subscribes, so each board converges on the same rows
// without polling. Subscribers also receive echoes of their own writes.
package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/talep-board/internal/domain"
	"github.com/spec-kit/talep-board/internal/observability"
)

// Publisher emits change notifications for store mutations.
type Publisher interface {
	Publish(ctx context.Context, event domain.ChangeEvent) error
}

// Subscriber opens a change-notification stream. The returned cancel func
// tears the subscription down; it must be called on viewport unmount so
// stale deliveries never reach a dead collection.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan domain.ChangeEvent, func(), error)
}

// RedisFeed implements Publisher and Subscriber on one pub/sub channel.
type RedisFeed struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewRedisFeed constructs the feed.
func NewRedisFeed(client *redis.Client, channel string, logger *zap.Logger, metrics *observability.Metrics) *RedisFeed {
	return &RedisFeed{client: client, channel: channel, logger: logger, metrics: metrics}
}

// Publish serializes and emits one event.
func (f *RedisFeed) Publish(ctx context.Context, event domain.ChangeEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel, payload).Err()
}

// Subscribe opens the stream. Malformed or incomplete payloads are logged
// and dropped at this boundary; the merge downstream only ever sees valid
// tagged events.
func (f *RedisFeed) Subscribe(ctx context.Context) (<-chan domain.ChangeEvent, func(), error) {
	sub := f.client.Subscribe(ctx, f.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan domain.ChangeEvent, 16)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			event, ok := decode([]byte(msg.Payload))
			if !ok {
				f.logger.Warn("dropping malformed feed payload", zap.String("channel", f.channel))
				continue
			}
			f.metrics.RecordFeedEvent(string(event.Op))
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() { _ = sub.Close() }
	return out, cancel, nil
}

func decode(payload []byte) (domain.ChangeEvent, bool) {
	var event domain.ChangeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return domain.ChangeEvent{}, false
	}
	if !event.Valid() {
		return domain.ChangeEvent{}, false
	}
	return event, true
}

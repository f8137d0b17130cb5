package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/betbridge/internal/domain"
)

const defaultStreamMaxLen int64 = 10000

// EventStream appends bet lifecycle events to a Redis stream (XADD, trimmed
// to an approximate max length) and mirrors each one on a Pub/Sub channel of
// the same name for live listeners.
type EventStream struct {
	rdb    redis.UniversalClient
	stream string
	maxLen int64
}

// NewEventStream creates an EventStream writing to the named stream under
// the client's namespace. A non-positive maxLen selects the default of 10,000
// entries.
func NewEventStream(c *Client, stream string, maxLen int64) *EventStream {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &EventStream{rdb: c.rdb, stream: c.Key(stream), maxLen: maxLen}
}

// Stream returns the namespaced stream key.
func (es *EventStream) Stream() string {
	return es.stream
}

// Publish implements domain.EventPublisher.
func (es *EventStream) Publish(ctx context.Context, ev domain.LifecycleEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal event %s: %w", ev.ID, err)
	}

	args := &redis.XAddArgs{
		Stream: es.stream,
		MaxLen: es.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":    string(ev.Type),
			"payload": payload,
		},
	}
	if err := es.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", es.stream, err)
	}
	if err := es.rdb.Publish(ctx, es.stream, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", es.stream, err)
	}
	return nil
}

// Recent returns up to count of the newest events, newest first.
func (es *EventStream) Recent(ctx context.Context, count int) ([]domain.LifecycleEvent, error) {
	msgs, err := es.rdb.XRevRangeN(ctx, es.stream, "+", "-", int64(count)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", es.stream, err)
	}

	out := make([]domain.LifecycleEvent, 0, len(msgs))
	for _, msg := range msgs {
		var data []byte
		switch v := msg.Values["payload"].(type) {
		case string:
			data = []byte(v)
		case []byte:
			data = v
		default:
			continue
		}
		var ev domain.LifecycleEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.EventPublisher = (*EventStream)(nil)

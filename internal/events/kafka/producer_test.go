package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/betbridge/internal/domain"
)

type captureWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error {
	c.closed = true
	return nil
}

func TestProducer_Publish(t *testing.T) {
	w := &captureWriter{}
	p := &Producer{w: w, topic: "bets"}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := p.Publish(context.Background(), domain.LifecycleEvent{
		ID: "e1", Type: domain.EventBetSettled, BetID: 42, Outcome: "WIN", At: at,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "42", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	assert.Equal(t, "bet_settled", string(msg.Headers[0].Value))

	var ev domain.LifecycleEvent
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, "WIN", ev.Outcome)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducer_WriteError(t *testing.T) {
	p := &Producer{w: &captureWriter{err: errors.New("leader not available")}, topic: "bets"}
	err := p.Publish(context.Background(), domain.LifecycleEvent{ID: "e1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka: write bets")
}

func TestNewProducer_Validates(t *testing.T) {
	_, err := NewProducer(nil, "bets")
	assert.Error(t, err)
	_, err = NewProducer([]string{"localhost:9092"}, "")
	assert.Error(t, err)

	p, err := NewProducer([]string{"a:9092, b:9092"}, "bets")
	require.NoError(t, err)
	kw, ok := p.w.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "bets", kw.Topic)
	assert.Contains(t, kw.Addr.String(), "b:9092")
}

func TestNewWriter_Timeouts(t *testing.T) {
	w := NewWriter([]string{"localhost:9092"}, "bets")
	assert.Equal(t, 10*time.Millisecond, w.BatchTimeout)
	assert.Equal(t, 10*time.Second, w.WriteTimeout)
	assert.Equal(t, 10*time.Second, w.ReadTimeout)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}

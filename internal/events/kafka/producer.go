// Package kafka publishes bet lifecycle events to a Kafka topic. Messages are
// keyed by bet id so one bet's events stay ordered within a partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/betbridge/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer implements domain.EventPublisher on a kafka-go Writer.
type Producer struct {
	w     messageWriter
	topic string
}

var _ domain.EventPublisher = (*Producer)(nil)

// NewWriter builds the topic writer. Publish sends one message at a time, so
// the batch timeout is kept short.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
	}
}

// NewProducer creates a Producer. brokers may also be one comma-separated
// entry.
func NewProducer(brokers []string, topic string) (*Producer, error) {
	var addrs []string
	for _, b := range brokers {
		for _, a := range strings.Split(b, ",") {
			if a = strings.TrimSpace(a); a != "" {
				addrs = append(addrs, a)
			}
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}
	return &Producer{w: NewWriter(addrs, topic), topic: topic}, nil
}

// Publish writes ev as a JSON message.
func (p *Producer) Publish(ctx context.Context, ev domain.LifecycleEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka: marshal event %s: %w", ev.ID, err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.BetID, 10)),
		Value: value,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Producer) Close() error {
	return p.w.Close()
}

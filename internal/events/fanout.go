// Package events fans bet lifecycle events out to the configured sinks.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/betbridge/internal/domain"
	"github.com/alanyoungcy/betbridge/internal/metrics"
)

// Sink is a named publisher.
type Sink struct {
	Name      string
	Publisher domain.EventPublisher
}

// Fanout publishes every event to each sink in order. A failing sink is
// logged and counted; the others still receive the event.
type Fanout struct {
	sinks   []Sink
	metrics *metrics.Metrics
	logger  *slog.Logger
}

var _ domain.EventPublisher = (*Fanout)(nil)

// NewFanout creates a Fanout over sinks. m may be nil.
func NewFanout(sinks []Sink, m *metrics.Metrics, logger *slog.Logger) *Fanout {
	return &Fanout{
		sinks:   sinks,
		metrics: m,
		logger:  logger.With(slog.String("component", "events")),
	}
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Publish implements domain.EventPublisher. The returned error joins every
// sink failure.
func (f *Fanout) Publish(ctx context.Context, ev domain.LifecycleEvent) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publisher.Publish(ctx, ev); err != nil {
			f.metrics.EventDropped(s.Name)
			f.logger.WarnContext(ctx, "event sink failed",
				slog.String("sink", s.Name),
				slog.String("event", string(ev.Type)),
				slog.Int64("bet_id", ev.BetID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

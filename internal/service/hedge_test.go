package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/betbridge/internal/domain"
)

// stallingSink blocks until the publish context ends.
type stallingSink struct {
	deadline bool
	err      error
}

func (s *stallingSink) Publish(ctx context.Context, _ domain.LifecycleEvent) error {
	_, s.deadline = ctx.Deadline()
	<-ctx.Done()
	s.err = ctx.Err()
	return s.err
}

func TestPublisher_EmitIsBounded(t *testing.T) {
	sink := &stallingSink{}
	p := publisher{
		sink:    sink,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
		timeout: 20 * time.Millisecond,
	}

	done := make(chan struct{})
	go func() {
		p.emit(context.Background(), domain.EventBetAccepted, 1, "", "")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked past its timeout")
	}
	assert.True(t, sink.deadline)
	require.ErrorIs(t, sink.err, context.DeadlineExceeded)
}

func TestPublisher_NilSink(t *testing.T) {
	p := publisher{logger: slog.New(slog.NewTextHandler(io.Discard, nil)), now: time.Now}
	assert.NotPanics(t, func() {
		p.emit(context.Background(), domain.EventBetAccepted, 1, "", "")
	})
}

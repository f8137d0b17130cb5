package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/betbridge/internal/domain"
	"github.com/alanyoungcy/betbridge/internal/notify"
)

type stubSender struct {
	name   string
	err    error
	titles []string
}

func (s *stubSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_FiltersByType(t *testing.T) {
	s := &stubSender{name: "stub"}
	n := notify.NewNotifier([]notify.Sender{s}, []string{"bet_settled", " bet_expired "}, discard())

	ctx := context.Background()
	require.NoError(t, n.Publish(ctx, domain.LifecycleEvent{Type: domain.EventBetAccepted, BetID: 1}))
	require.NoError(t, n.Publish(ctx, domain.LifecycleEvent{Type: domain.EventBetSettled, BetID: 2, Outcome: "WIN"}))
	require.NoError(t, n.Publish(ctx, domain.LifecycleEvent{Type: domain.EventBetExpired, BetID: 3}))

	assert.Equal(t, []string{"Bet 2 settled: WIN", "Bet 3 expired"}, s.titles)
}

func TestNotifier_OneSenderFailing(t *testing.T) {
	bad := &stubSender{name: "bad", err: errors.New("boom")}
	good := &stubSender{name: "good"}
	n := notify.NewNotifier([]notify.Sender{bad, good}, nil, discard())

	err := n.Publish(context.Background(), domain.LifecycleEvent{Type: domain.EventBetAccepted, BetID: 9})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, good.titles, 1)
}

func TestNotifier_NoSenders(t *testing.T) {
	n := notify.NewNotifier(nil, nil, discard())
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Publish(context.Background(), domain.LifecycleEvent{Type: domain.EventError}))
}

func TestFormat(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	title, msg := notify.Format(domain.LifecycleEvent{
		Type:   domain.EventBetAccepted,
		BetID:  42,
		Detail: "BUY 0.46 @ 100",
		At:     at,
	})
	assert.Equal(t, "Bet 42 accepted", title)
	assert.Equal(t, "BUY 0.46 @ 100\n2026-03-01 12:00:00 UTC", msg)
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := notify.NewTelegramSender("tok", "chat-1").WithAPIBase(srv.URL + "/")
	require.NoError(t, s.Send(context.Background(), "Title", "body"))

	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "chat-1", got["chat_id"])
	assert.Equal(t, "*Title*\nbody", got["text"])
}

func TestDiscordSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	err := notify.NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 404")
}

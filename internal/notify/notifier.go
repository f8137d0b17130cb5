// Package notify forwards bet lifecycle events to chat channels (Telegram,
// Discord). Events can be filtered by type so operators only see the
// transitions they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/betbridge/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier delivers lifecycle events to every registered Sender. It
// implements domain.EventPublisher.
type Notifier struct {
	senders []Sender
	events  map[domain.EventType]bool // allowed event types, empty allows all
	logger  *slog.Logger
}

var _ domain.EventPublisher = (*Notifier)(nil)

// NewNotifier creates a Notifier for senders. Only events whose type appears
// in events are forwarded; an empty list forwards everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[domain.EventType(e)] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Publish formats ev and sends it to all senders.
func (n *Notifier) Publish(ctx context.Context, ev domain.LifecycleEvent) error {
	if len(n.events) > 0 && !n.events[ev.Type] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", string(ev.Type)),
			slog.Int64("bet_id", ev.BetID),
		)
		return nil
	}
	title, message := Format(ev)
	return n.dispatch(ctx, title, message)
}

// Format renders ev as a title and a message body.
func Format(ev domain.LifecycleEvent) (string, string) {
	var title string
	switch ev.Type {
	case domain.EventBetAccepted:
		title = fmt.Sprintf("Bet %d accepted", ev.BetID)
	case domain.EventBetSettled:
		title = fmt.Sprintf("Bet %d settled: %s", ev.BetID, ev.Outcome)
	case domain.EventBetExpired:
		title = fmt.Sprintf("Bet %d expired", ev.BetID)
	case domain.EventBetDuplicate:
		title = fmt.Sprintf("Bet %d seen again", ev.BetID)
	case domain.EventError:
		title = fmt.Sprintf("Bet %d error", ev.BetID)
	default:
		title = fmt.Sprintf("Bet %d %s", ev.BetID, ev.Type)
	}
	message := ev.Detail
	if !ev.At.IsZero() {
		message = strings.TrimSpace(message + "\n" + ev.At.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	return title, message
}

// dispatch sends to every sender; one failing sender does not stop delivery
// to the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

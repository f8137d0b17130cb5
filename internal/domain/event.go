package domain

import (
	"context"
	"time"
)

// EventType names a bet lifecycle transition.
type EventType string

const (
	EventBetAccepted  EventType = "bet_accepted"
	EventBetSettled   EventType = "bet_settled"
	EventBetExpired   EventType = "bet_expired"
	EventBetDuplicate EventType = "bet_duplicate"
	EventError        EventType = "error"
)

// LifecycleEvent is published whenever a bet changes state.
type LifecycleEvent struct {
	ID      string    `json:"id"`
	Type    EventType `json:"type"`
	BetID   int64     `json:"bet_id"`
	Outcome string    `json:"outcome,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// EventPublisher fans lifecycle events out to external sinks. Publishing is
// best effort: a failing sink never blocks the bet lifecycle.
type EventPublisher interface {
	Publish(ctx context.Context, ev LifecycleEvent) error
}

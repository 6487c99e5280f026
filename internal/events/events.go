package events

import (
	"context"
	"time"
)

const (
	TypePassesChanged   = "passes_changed"
	TypeBookingsChanged = "bookings_changed"
)

// Change tells the presentation layer that one user's passes or bookings moved.
type Change struct {
	Type       string    `json:"type"`
	Reason     string    `json:"reason"`
	UserID     int64     `json:"user_id"`
	BookingID  *int64    `json:"booking_id,omitempty"`
	PassID     *int64    `json:"pass_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier receives changes after the unit of work that caused them has committed.
// Implementations must not block the caller for long and own their error handling.
type Notifier interface {
	Notify(ctx context.Context, change Change)
}

type NotifierFunc func(ctx context.Context, change Change)

func (f NotifierFunc) Notify(ctx context.Context, change Change) {
	f(ctx, change)
}

type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, change Change) {
	for _, n := range f {
		if n != nil {
			n.Notify(ctx, change)
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Change) {}

func OrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

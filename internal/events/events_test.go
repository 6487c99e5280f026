package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFanoutDeliversToEveryNotifier(t *testing.T) {
	var first, second []Change
	fanout := Fanout{
		NotifierFunc(func(_ context.Context, c Change) { first = append(first, c) }),
		nil,
		NotifierFunc(func(_ context.Context, c Change) { second = append(second, c) }),
	}

	change := Change{Type: TypeBookingsChanged, Reason: "booked", UserID: 7, OccurredAt: time.Now()}
	fanout.Notify(context.Background(), change)

	assert.Equal(t, []Change{change}, first)
	assert.Equal(t, []Change{change}, second)
}

func TestOrNop(t *testing.T) {
	assert.NotPanics(t, func() {
		OrNop(nil).Notify(context.Background(), Change{})
	})

	called := false
	n := NotifierFunc(func(context.Context, Change) { called = true })
	OrNop(n).Notify(context.Background(), Change{})
	assert.True(t, called)
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "studio.passes_changed.granted", RoutingKey(Change{Type: TypePassesChanged, Reason: "granted"}))
	assert.Equal(t, "studio.bookings_changed.cancelled", RoutingKey(Change{Type: TypeBookingsChanged, Reason: "cancelled"}))
}

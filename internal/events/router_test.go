package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinicops/pkg/logging"
)

func TestTypeRouterDispatchesByType(t *testing.T) {
	var seen []string
	record := func(name string) HandlerFunc {
		return func(_ context.Context, entry OutboxEntry) error {
			seen = append(seen, name+":"+entry.AggregateID)
			return nil
		}
	}
	r := NewTypeRouter(logging.New("error")).
		Route(TypeAppointmentChanged, record("appt")).
		Route(TypeNotificationRequested, record("notify"))

	ctx := context.Background()
	require.NoError(t, r.Handle(ctx, OutboxEntry{Type: TypeAppointmentChanged, AggregateID: "a-1"}))
	require.NoError(t, r.Handle(ctx, OutboxEntry{Type: TypeNotificationRequested, AggregateID: "l-1"}))
	require.NoError(t, r.Handle(ctx, OutboxEntry{Type: TypeOpenTicketChanged, AggregateID: "t-1"}))

	assert.Equal(t, []string{"appt:a-1", "notify:l-1"}, seen)
}

func TestTypeRouterPropagatesHandlerError(t *testing.T) {
	boom := errors.New("downstream unavailable")
	r := NewTypeRouter(nil).Route(TypeAppointmentChanged, HandlerFunc(func(context.Context, OutboxEntry) error {
		return boom
	}))

	err := r.Handle(context.Background(), OutboxEntry{Type: TypeAppointmentChanged})
	assert.ErrorIs(t, err, boom)
}

func TestDelivererKeepsFailedEntriesPending(t *testing.T) {
	ctx := context.Background()
	outbox := NewMemoryOutbox()
	require.NoError(t, outbox.Publish(ctx, "a-1", TypeAppointmentChanged, AppointmentChangedV1{AppointmentID: "a-1"}))

	failing := NewTypeRouter(nil).Route(TypeAppointmentChanged, HandlerFunc(func(context.Context, OutboxEntry) error {
		return errors.New("rule store down")
	}))
	assert.Zero(t, NewDeliverer(outbox, failing, logging.New("error")).Drain(ctx))

	pending, err := outbox.FetchPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

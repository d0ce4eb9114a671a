package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinicops/pkg/logging"
)

func TestOutboxStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newOutboxStoreWithExec(mock)

	mock.ExpectExec("INSERT INTO outbox").WithArgs(pgxmock.AnyArg(), "appt-1", TypeAppointmentChanged, pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if err := store.Publish(context.Background(), "appt-1", TypeAppointmentChanged, AppointmentChangedV1{AppointmentID: "appt-1"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	now := time.Now().UTC()
	id := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "aggregate_id", "type", "payload", "created_at"}).AddRow(id, "appt-1", TypeAppointmentChanged, []byte("{\"appointment_id\":\"appt-1\"}"), now)
	mock.ExpectQuery("SELECT id").WithArgs(int32(10)).WillReturnRows(rows)

	entries, err := store.FetchPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch pending failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != id || entries[0].AggregateID != "appt-1" {
		t.Fatalf("unexpected entries: %#v", entries)
	}

	mock.ExpectExec("UPDATE outbox").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.MarkDelivered(context.Background(), id)
	if err != nil {
		t.Fatalf("mark delivered failed: %v", err)
	}
	if !ok {
		t.Fatal("expected mark delivered to report success")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

type recordingHandler struct {
	seen    []string
	failFor string
}

func (h *recordingHandler) Handle(_ context.Context, entry OutboxEntry) error {
	if entry.AggregateID == h.failFor {
		return errors.New("downstream unavailable")
	}
	h.seen = append(h.seen, entry.AggregateID)
	return nil
}

func TestDelivererDrainMemoryOutbox(t *testing.T) {
	ctx := context.Background()
	outbox := NewMemoryOutbox()
	require.NoError(t, outbox.Publish(ctx, "a", TypeNotificationRequested, NotificationRequestedV1{SubjectID: "a"}))
	require.NoError(t, outbox.Publish(ctx, "b", TypeNotificationRequested, NotificationRequestedV1{SubjectID: "b"}))

	handler := &recordingHandler{failFor: "b"}
	d := NewDeliverer(outbox, handler, logging.New("error")).WithBatchSize(10)

	assert.Equal(t, 1, d.Drain(ctx))
	assert.Equal(t, []string{"a"}, handler.seen)

	pending, err := outbox.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].AggregateID)

	handler.failFor = ""
	assert.Equal(t, 1, d.Drain(ctx))
	assert.Equal(t, 0, d.Drain(ctx))
	assert.Len(t, outbox.Entries(TypeNotificationRequested), 2)
}

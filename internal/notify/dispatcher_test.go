package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinicops/internal/events"
	"github.com/wolfman30/clinicops/pkg/logging"
)

type recordingDispatcher struct {
	calls []string
	err   error
}

func (r *recordingDispatcher) Send(_ context.Context, n Notification) (string, error) {
	r.calls = append(r.calls, n.Channel+"|"+n.Recipient+"|"+n.Message)
	if r.err != nil {
		return "", r.err
	}
	return "delivery-1", nil
}

func TestChannelDispatcherSendsEmail(t *testing.T) {
	stub := NewStubEmailSender(logging.New("error"))
	fallback := &recordingDispatcher{}
	d := NewChannelDispatcher(stub, logging.New("error")).WithSubject("Your visit").WithFallback(fallback)

	id, err := d.Send(context.Background(), Notification{Channel: "Email", Recipient: "ana@example.com", Message: "See you soon", RuleID: "r1", SubjectID: "lead-1"})

	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.Len(t, stub.Sent(), 1)
	sent := stub.Sent()[0]
	assert.Equal(t, "Your visit", sent.Subject)
	assert.True(t, strings.HasPrefix(sent.Text, "See you soon\n\n"))
	assert.Equal(t, "r1", sent.Tags["rule"])
	assert.Empty(t, fallback.calls)
}

func TestChannelDispatcherFallsBackForOtherChannels(t *testing.T) {
	fallback := &recordingDispatcher{}
	d := NewChannelDispatcher(nil, logging.New("error")).WithFallback(fallback)

	id, err := d.Send(context.Background(), Notification{Channel: "whatsapp", Recipient: "+5215550001111", Message: "Hola"})

	require.NoError(t, err)
	assert.Equal(t, "delivery-1", id)
	assert.Equal(t, []string{"whatsapp|+5215550001111|Hola"}, fallback.calls)
}

func TestChannelDispatcherErrors(t *testing.T) {
	d := NewChannelDispatcher(nil, logging.New("error"))

	_, err := d.Send(context.Background(), Notification{Channel: "email", Message: "x"})
	assert.ErrorContains(t, err, "no recipient")

	_, err = d.Send(context.Background(), Notification{Channel: "email", Recipient: "ana@example.com", Message: "x"})
	assert.ErrorContains(t, err, "email sender not configured")

	id, err := d.Send(context.Background(), Notification{Channel: "sms", Recipient: "+5215550001111", Message: "x"})
	require.NoError(t, err, "default fallback logs the message")
	assert.NotEmpty(t, id)
}

func publishNotification(t *testing.T, outbox *events.MemoryOutbox, channel, recipient string) {
	t.Helper()
	require.NoError(t, outbox.Publish(context.Background(), "lead-1", events.TypeNotificationRequested, events.NotificationRequestedV1{
		EventID:     "evt-1",
		RuleID:      "r1",
		SubjectID:   "lead-1",
		Channel:     channel,
		Recipient:   recipient,
		Message:     "We miss you",
		RequestedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}))
}

func TestOutboxHandlerDeliversNotifications(t *testing.T) {
	outbox := events.NewMemoryOutbox()
	publishNotification(t, outbox, "sms", "+5215550001111")
	require.NoError(t, outbox.Publish(context.Background(), "appt-1", events.TypeAppointmentChanged, events.AppointmentChangedV1{AppointmentID: "appt-1"}))

	dispatcher := &recordingDispatcher{}
	deliverer := events.NewDeliverer(outbox, NewOutboxHandler(dispatcher, logging.New("error")), logging.New("error"))

	assert.Equal(t, 2, deliverer.Drain(context.Background()))
	assert.Equal(t, []string{"sms|+5215550001111|We miss you"}, dispatcher.calls)
	assert.Zero(t, deliverer.Drain(context.Background()), "delivered entries are not retried")
}

func TestOutboxHandlerKeepsFailedEntriesPending(t *testing.T) {
	outbox := events.NewMemoryOutbox()
	publishNotification(t, outbox, "email", "ana@example.com")

	dispatcher := &recordingDispatcher{err: errors.New("provider down")}
	deliverer := events.NewDeliverer(outbox, NewOutboxHandler(dispatcher, logging.New("error")), logging.New("error"))

	assert.Zero(t, deliverer.Drain(context.Background()))
	pending, err := outbox.FetchPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestOutboxHandlerDropsUndecodablePayload(t *testing.T) {
	h := NewOutboxHandler(&recordingDispatcher{}, logging.New("error"))
	err := h.Handle(context.Background(), events.OutboxEntry{Type: events.TypeNotificationRequested, Payload: json.RawMessage(`"not an object"`)})
	assert.NoError(t, err)
}

func TestComposeEmailShapesRuleMessage(t *testing.T) {
	msg := ComposeEmail(Notification{
		Recipient: " ana@example.com ",
		Message:   "Hi Ana,\r\n\r\nYour <b>cleaning</b> is tomorrow.\n\n",
		RuleID:    "reminder",
		SubjectID: "lead-7",
		Variant:   "B",
	}, "Appointment reminder")

	assert.Equal(t, "ana@example.com", msg.To)
	assert.Equal(t, "Appointment reminder", msg.Subject)
	assert.Equal(t, "Hi Ana,\n\nYour <b>cleaning</b> is tomorrow.\n\n"+emailFooter, msg.Text)
	assert.Contains(t, msg.HTML, "<p>Hi Ana,</p><p>Your &lt;b&gt;cleaning&lt;/b&gt; is tomorrow.</p>")
	assert.Equal(t, map[string]string{"source": "automation", "rule": "reminder", "subject": "lead-7", "variant": "B"}, msg.Tags)
}

func TestNotificationTagsSkipEmptyValues(t *testing.T) {
	assert.Equal(t, map[string]string{"source": "automation", "rule": "r1"}, Notification{RuleID: "r1"}.Tags())
}

func TestOutboxHandlerCarriesRuleContext(t *testing.T) {
	outbox := events.NewMemoryOutbox()
	require.NoError(t, outbox.Publish(context.Background(), "lead-2", events.TypeNotificationRequested, events.NotificationRequestedV1{
		RuleID: "winback", SubjectID: "lead-2", Channel: "email", Recipient: "luis@example.com", Message: "We miss you", Variant: "A",
	}))
	stub := NewStubEmailSender(logging.New("error"))
	handler := NewOutboxHandler(NewChannelDispatcher(stub, logging.New("error")), logging.New("error"))

	assert.Equal(t, 1, events.NewDeliverer(outbox, handler, logging.New("error")).Drain(context.Background()))
	require.Len(t, stub.Sent(), 1)
	assert.Equal(t, "winback", stub.Sent()[0].Tags["rule"])
	assert.Equal(t, "A", stub.Sent()[0].Tags["variant"])
	assert.Equal(t, DefaultSubject, stub.Sent()[0].Subject)
}

package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/clinicops/pkg/logging"
)

// Dispatcher delivers a notification on its channel and returns a delivery id.
type Dispatcher interface {
	Send(ctx context.Context, n Notification) (string, error)
}

// DefaultSubject is the email subject line for automated messages.
const DefaultSubject = "A message from your clinic"

// ChannelDispatcher composes and sends email through an EmailSender and hands
// every other channel to a fallback dispatcher.
type ChannelDispatcher struct {
	email    EmailSender
	subject  string
	fallback Dispatcher
	logger   *logging.Logger
}

func NewChannelDispatcher(email EmailSender, logger *logging.Logger) *ChannelDispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &ChannelDispatcher{
		email:    email,
		subject:  DefaultSubject,
		fallback: NewLogDispatcher(logger),
		logger:   logger,
	}
}

// WithSubject overrides the email subject line.
func (d *ChannelDispatcher) WithSubject(subject string) *ChannelDispatcher {
	if strings.TrimSpace(subject) != "" {
		d.subject = subject
	}
	return d
}

// WithFallback routes non-email channels to f.
func (d *ChannelDispatcher) WithFallback(f Dispatcher) *ChannelDispatcher {
	if f != nil {
		d.fallback = f
	}
	return d
}

func (d *ChannelDispatcher) Send(ctx context.Context, n Notification) (string, error) {
	if strings.TrimSpace(n.Recipient) == "" {
		return "", fmt.Errorf("notify: no recipient for %s message", n.Channel)
	}
	if !strings.EqualFold(n.Channel, "email") {
		return d.fallback.Send(ctx, n)
	}
	if d.email == nil {
		return "", fmt.Errorf("notify: email sender not configured")
	}
	if err := d.email.Send(ctx, ComposeEmail(n, d.subject)); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}

// LogDispatcher records the delivery in the log only. It stands in for
// channels with no provider wired.
type LogDispatcher struct {
	logger *logging.Logger
}

func NewLogDispatcher(logger *logging.Logger) *LogDispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Send(_ context.Context, n Notification) (string, error) {
	id := uuid.NewString()
	d.logger.Info("notify: message recorded",
		"delivery_id", id,
		"channel", n.Channel,
		"recipient", n.Recipient,
		"rule_id", n.RuleID,
		"length", len(n.Message),
	)
	return id, nil
}

var (
	_ Dispatcher = (*ChannelDispatcher)(nil)
	_ Dispatcher = (*LogDispatcher)(nil)
)

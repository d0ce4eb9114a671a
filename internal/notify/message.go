package notify

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"github.com/wolfman30/clinicops/internal/events"
)

// Notification is one rule-driven message on its way to a channel.
type Notification struct {
	Channel     string
	Recipient   string
	Message     string
	RuleID      string
	SubjectID   string
	Variant     string
	RequestedAt time.Time
}

// NotificationFromEvent lifts an outbox intent into a Notification.
func NotificationFromEvent(evt events.NotificationRequestedV1) Notification {
	return Notification{
		Channel:     evt.Channel,
		Recipient:   evt.Recipient,
		Message:     evt.Message,
		RuleID:      evt.RuleID,
		SubjectID:   evt.SubjectID,
		Variant:     evt.Variant,
		RequestedAt: evt.RequestedAt,
	}
}

// Tags identify the rule run behind a message. Providers attach them as
// categories or message tags so bounces can be traced back.
func (n Notification) Tags() map[string]string {
	tags := map[string]string{"source": "automation"}
	for k, v := range map[string]string{"rule": n.RuleID, "subject": n.SubjectID, "variant": n.Variant} {
		if v != "" {
			tags[k] = v
		}
	}
	return tags
}

var emailTemplate = template.Must(template.New("notification").Parse(
	`<!DOCTYPE html><html><body style="font-family:sans-serif;line-height:1.5">` +
		`{{range .Paragraphs}}<p>{{.}}</p>{{end}}` +
		`<p style="color:#888;font-size:12px">{{.Footer}}</p>` +
		`</body></html>`))

// emailFooter is appended to every automated email.
const emailFooter = "This is an automated message from your clinic. Reply to this email to reach the front desk."

// ComposeEmail shapes a notification into an email. Blank lines in the
// message separate paragraphs; the HTML part escapes the rule text.
func ComposeEmail(n Notification, subject string) EmailMessage {
	text := strings.TrimSpace(strings.ReplaceAll(n.Message, "\r\n", "\n"))
	var paragraphs []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	msg := EmailMessage{
		To:      strings.TrimSpace(n.Recipient),
		Subject: subject,
		Text:    text + "\n\n" + emailFooter,
		Tags:    n.Tags(),
	}
	var html bytes.Buffer
	if err := emailTemplate.Execute(&html, struct {
		Paragraphs []string
		Footer     string
	}{paragraphs, emailFooter}); err == nil {
		msg.HTML = html.String()
	}
	return msg
}

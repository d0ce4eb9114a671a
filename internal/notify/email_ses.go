package notify

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/wolfman30/clinicops/pkg/logging"
)

// SESAPI is the slice of the SES v2 client the sender calls.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SESConfig struct {
	FromEmail string
	FromName  string
	// ConfigurationSet routes SES events (bounces, complaints) when set.
	ConfigurationSet string
}

// SESSender sends through Amazon SES v2 and copies message tags onto the
// SES email tags.
type SESSender struct {
	client  SESAPI
	from    string
	confSet string
	logger  *logging.Logger
}

func NewSESSender(client SESAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	name := cfg.FromName
	if name == "" {
		name = DefaultFromName
	}
	return &SESSender{
		client:  client,
		from:    (&mail.Address{Name: name, Address: cfg.FromEmail}).String(),
		confSet: strings.TrimSpace(cfg.ConfigurationSet),
		logger:  logger,
	}
}

func utf8Content(v string) *types.Content {
	return &types.Content{Data: aws.String(v), Charset: aws.String("UTF-8")}
}

// sesTagValue keeps the characters SES accepts in tag names and values.
func sesTagValue(v string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, v)
}

func (s *SESSender) buildInput(msg EmailMessage) *sesv2.SendEmailInput {
	body := &types.Body{Text: utf8Content(msg.Text)}
	if msg.HTML != "" {
		body.Html = utf8Content(msg.HTML)
	}
	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{Subject: utf8Content(msg.Subject), Body: body},
		},
	}
	if s.confSet != "" {
		in.ConfigurationSetName = aws.String(s.confSet)
	}
	for _, k := range msg.sortedTags() {
		in.EmailTags = append(in.EmailTags, types.MessageTag{
			Name:  aws.String(sesTagValue(k)),
			Value: aws.String(sesTagValue(msg.Tags[k])),
		})
	}
	return in
}

func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: SES client not configured")
	}
	out, err := s.client.SendEmail(ctx, s.buildInput(msg))
	if err != nil {
		return fmt.Errorf("notify: SES send to %s: %w", msg.To, err)
	}
	s.logger.Info("email accepted by SES", "message_id", aws.ToString(out.MessageId), "rule", msg.Tags["rule"], "subject_id", msg.Tags["subject"])
	return nil
}

var _ EmailSender = (*SESSender)(nil)

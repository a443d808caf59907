package contact

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// ResendTransport relays messages through the Resend HTTP API.
type ResendTransport struct {
	client *resend.Client
}

func NewResendTransport(apiKey string) *ResendTransport {
	return &ResendTransport{client: resend.NewClient(apiKey)}
}

func (t *ResendTransport) Send(ctx context.Context, env Envelope, msg EmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, smtpSocketTimeout)
	defer cancel()

	params := &resend.SendEmailRequest{
		From:    env.FromHeader(),
		To:      []string{env.To},
		ReplyTo: env.ReplyTo,
		Subject: msg.Subject,
		Html:    msg.HTMLBody,
		Text:    msg.TextBody,
		Headers: map[string]string{
			"X-Request-ID":   env.RequestID,
			"X-Contact-Form": "true",
		},
	}

	sent, err := t.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("resend send: %w", err)
	}
	LoggerFromContext(ctx).Debug("resend accepted message", "message_id", sent.Id)
	return nil
}

package contact

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	texttemplate "text/template"
	"time"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
)

// ErrSendFailed is the only error callers see from a failed delivery.
var ErrSendFailed = errors.New("failed to send email")

const (
	defaultSubject = "New Contact Form Submission"
	previewLength  = 100
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	htmlTemplate = template.Must(template.ParseFS(templateFS, "templates/contact.html.tmpl"))
	textTemplate = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/contact.txt.tmpl"))

	// Raw HTML in the message is omitted (WithUnsafe is not set).
	mdRenderer = goldmark.New(
		goldmark.WithRendererOptions(
			goldmarkHTML.WithHardWraps(),
		),
	)
)

// EmailMessage is the rendered notification for one submission.
type EmailMessage struct {
	Subject  string
	HTMLBody string
	TextBody string
}

// Envelope carries the addressing for one notification.
type Envelope struct {
	FromName    string
	FromAddress string
	To          string
	ReplyTo     string
	RequestID   string
}

// FromHeader formats the sender as `"Name" <address>`.
func (e Envelope) FromHeader() string {
	return (&mail.Address{Name: e.FromName, Address: e.FromAddress}).String()
}

// Transport delivers a rendered message.
type Transport interface {
	Send(ctx context.Context, env Envelope, msg EmailMessage) error
}

// NewTransport picks the delivery backend from cfg. It returns nil in test
// mode, where nothing is ever sent.
func NewTransport(cfg *Config) Transport {
	if cfg.TestMode {
		return nil
	}
	switch cfg.Transport {
	case TransportResend:
		return NewResendTransport(cfg.ResendAPIKey)
	default:
		return NewSMTPTransport(cfg.SMTP)
	}
}

// Dispatcher turns a sanitized submission into an email and hands it to the
// configured transport. In dry-run mode it only logs.
type Dispatcher struct {
	transport Transport
	fromName  string
	fromAddr  string
	recipient string
	dryRun    bool
	now       func() time.Time
}

func NewDispatcher(cfg *Config, transport Transport) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		fromName:  cfg.FromName,
		fromAddr:  cfg.FromAddr,
		recipient: cfg.Recipient,
		dryRun:    cfg.TestMode,
		now:       time.Now,
	}
}

// Dispatch sends the notification for s. Any transport failure is logged with
// its cause and reported as ErrSendFailed.
func (d *Dispatcher) Dispatch(ctx context.Context, s Submission, requestID string) error {
	logger := LoggerFromContext(ctx)

	if d.dryRun {
		logger.Info("TEST MODE: email would be sent",
			"request_id", requestID,
			"to", d.recipient,
			"reply_to", s.Email,
			"subject", subjectFor(s),
			"message_preview", preview(s.Message, previewLength),
		)
		return nil
	}

	if d.transport == nil {
		logger.Error("failed to send contact email", "request_id", requestID, "err", "no transport configured")
		return ErrSendFailed
	}

	msg, err := BuildEmail(s, requestID, d.now())
	if err != nil {
		logger.Error("failed to render contact email", "request_id", requestID, "err", err)
		return ErrSendFailed
	}

	env := Envelope{
		FromName:    d.fromName,
		FromAddress: d.fromAddr,
		To:          d.recipient,
		ReplyTo:     s.Email,
		RequestID:   requestID,
	}
	if err := d.transport.Send(ctx, env, msg); err != nil {
		logger.Error("failed to send contact email", "request_id", requestID, "err", err)
		return ErrSendFailed
	}

	logger.Info("contact email sent", "request_id", requestID, "to", d.recipient)
	return nil
}

type emailData struct {
	Name        string
	Email       string
	Subject     string
	Message     string
	MessageHTML template.HTML
	RequestID   string
	Timestamp   string
}

// BuildEmail renders the subject and both bodies for s.
func BuildEmail(s Submission, requestID string, at time.Time) (EmailMessage, error) {
	var md bytes.Buffer
	if err := mdRenderer.Convert([]byte(s.Message), &md); err != nil {
		return EmailMessage{}, fmt.Errorf("render message markdown: %w", err)
	}

	data := emailData{
		Name:        s.Name,
		Email:       s.Email,
		Subject:     s.Subject,
		Message:     s.Message,
		MessageHTML: template.HTML(md.String()),
		RequestID:   requestID,
		Timestamp:   at.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}

	var html, text bytes.Buffer
	if err := htmlTemplate.Execute(&html, data); err != nil {
		return EmailMessage{}, fmt.Errorf("render html body: %w", err)
	}
	if err := textTemplate.Execute(&text, data); err != nil {
		return EmailMessage{}, fmt.Errorf("render text body: %w", err)
	}

	return EmailMessage{
		Subject:  subjectFor(s),
		HTMLBody: html.String(),
		TextBody: strings.TrimSpace(text.String()),
	}, nil
}

// subjectFor builds a single-line subject header.
func subjectFor(s Submission) string {
	if s.Subject == "" {
		return defaultSubject
	}
	subject := strings.Join(strings.Fields(s.Subject), " ")
	return "Contact Form: " + subject
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

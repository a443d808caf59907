package contact

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/jordan-wright/email"
)

const (
	smtpConnectTimeout  = 10 * time.Second
	smtpGreetingTimeout = 5 * time.Second
	smtpSocketTimeout   = 10 * time.Second
)

// SMTPTransport relays messages through an authenticated SMTP account.
// Port 587 uses STARTTLS; SSL selects implicit TLS (usually port 465).
type SMTPTransport struct {
	cfg       SMTPConfig
	localName string

	connectTimeout  time.Duration
	greetingTimeout time.Duration
	socketTimeout   time.Duration
}

func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	return &SMTPTransport{
		cfg:             cfg,
		localName:       "localhost",
		connectTimeout:  smtpConnectTimeout,
		greetingTimeout: smtpGreetingTimeout,
		socketTimeout:   smtpSocketTimeout,
	}
}

func (t *SMTPTransport) Send(ctx context.Context, env Envelope, msg EmailMessage) error {
	e := email.NewEmail()
	e.From = env.FromHeader()
	e.To = []string{env.To}
	e.ReplyTo = []string{env.ReplyTo}
	e.Subject = msg.Subject
	e.Text = []byte(msg.TextBody)
	e.HTML = []byte(msg.HTMLBody)
	e.Headers.Set("X-Request-ID", env.RequestID)
	e.Headers.Set("X-Contact-Form", "true")

	raw, err := e.Bytes()
	if err != nil {
		return fmt.Errorf("compose message: %w", err)
	}

	s, err := t.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	// Verify the server is answering before handing over the message.
	if err := s.client.Noop(); err != nil {
		return fmt.Errorf("smtp verify: %w", err)
	}

	s.touch()
	if err := s.client.Mail(env.FromAddress); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := s.client.Rcpt(env.To); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}

	s.touch()
	w, err := s.client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp end data: %w", err)
	}

	s.touch()
	if err := s.client.Quit(); err != nil {
		LoggerFromContext(ctx).Debug("smtp quit failed after delivery", "err", err)
	}
	return nil
}

type smtpSession struct {
	conn    net.Conn
	client  *smtp.Client
	timeout time.Duration
}

// touch extends the socket deadline before the next exchange.
func (s *smtpSession) touch() {
	_ = s.conn.SetDeadline(time.Now().Add(s.timeout))
}

func (s *smtpSession) close() {
	_ = s.client.Close()
}

func (t *SMTPTransport) open(ctx context.Context) (*smtpSession, error) {
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))

	dialer := net.Dialer{Timeout: t.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	if t.cfg.SSL {
		conn = tls.Client(conn, &tls.Config{ServerName: t.cfg.Host})
	}

	_ = conn.SetDeadline(time.Now().Add(t.greetingTimeout))
	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp greeting from %s: %w", addr, err)
	}

	s := &smtpSession{conn: conn, client: client, timeout: t.socketTimeout}
	s.touch()

	if err := client.Hello(t.localName); err != nil {
		s.close()
		return nil, fmt.Errorf("smtp EHLO: %w", err)
	}

	if !t.cfg.SSL {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: t.cfg.Host}); err != nil {
				s.close()
				return nil, fmt.Errorf("smtp STARTTLS: %w", err)
			}
		}
	}

	if t.cfg.User != "" {
		if ok, _ := client.Extension("AUTH"); !ok {
			s.close()
			return nil, errors.New("smtp server does not offer AUTH")
		}
		auth := smtp.PlainAuth("", t.cfg.User, t.cfg.Pass, t.cfg.Host)
		if err := client.Auth(auth); err != nil {
			s.close()
			return nil, fmt.Errorf("smtp auth: %w", err)
		}
	}

	return s, nil
}

package dispatch

import (
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"time"

	"github.com/rotisserie/eris"

	"github.com/Rabiegha/b2b-email-campaign/internal/config"
)

// Sender delivers one message at a time.
type Sender interface {
	Send(to, subject, body string) error
	Close() error
}

// SMTPSender sends over a single authenticated SMTP session, reused
// across messages.
type SMTPSender struct {
	client *smtp.Client
	from   string
}

// NewSMTPSender connects and authenticates against the configured
// submission server.
func NewSMTPSender(cfg config.SMTPConfig) (*SMTPSender, error) {
	client, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	from := cfg.From
	if from == "" {
		from = cfg.User
	}
	return &SMTPSender{client: client, from: from}, nil
}

func connect(cfg config.SMTPConfig) (*smtp.Client, error) {
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	client, err := smtp.Dial(addr)
	if err != nil {
		return nil, eris.Wrapf(err, "dispatch: dial %s", addr)
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
			_ = client.Close()
			return nil, eris.Wrap(err, "dispatch: starttls")
		}
	}
	if cfg.User != "" {
		auth := smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
		if err := client.Auth(auth); err != nil {
			_ = client.Close()
			return nil, eris.Wrap(err, "dispatch: auth")
		}
	}
	return client, nil
}

// Send delivers a plain-text message in one MAIL/RCPT/DATA exchange on
// the open session.
func (s *SMTPSender) Send(to, subject, body string) error {
	if err := s.client.Mail(s.from); err != nil {
		return eris.Wrap(err, "dispatch: mail from")
	}
	if err := s.client.Rcpt(to); err != nil {
		return eris.Wrap(err, "dispatch: rcpt to")
	}

	w, err := s.client.Data()
	if err != nil {
		return eris.Wrap(err, "dispatch: data")
	}
	if _, err := w.Write(buildMessage(s.from, to, subject, body)); err != nil {
		_ = w.Close()
		return eris.Wrap(err, "dispatch: write message")
	}
	if err := w.Close(); err != nil {
		return eris.Wrap(err, "dispatch: finish message")
	}
	return nil
}

// Close quits the SMTP session.
func (s *SMTPSender) Close() error {
	return s.client.Quit()
}

func buildMessage(from, to, subject, body string) []byte {
	headers := fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"Date: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/plain; charset=\"UTF-8\"\r\n"+
			"\r\n",
		from, to,
		mime.QEncoding.Encode("utf-8", subject),
		time.Now().Format(time.RFC1123Z),
	)
	return []byte(headers + body)
}

// TestConnection verifies the submission server accepts the configured
// credentials, then disconnects.
func TestConnection(cfg config.SMTPConfig) error {
	client, err := connect(cfg)
	if err != nil {
		return err
	}
	return client.Quit()
}

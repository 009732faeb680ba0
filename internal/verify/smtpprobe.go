package verify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Rabiegha/b2b-email-campaign/internal/dnsx"
)

// ProbeOutcome is the result of an SMTP RCPT probe.
type ProbeOutcome int

const (
	// ProbeUnknown means the server could not be reached or gave no
	// usable answer.
	ProbeUnknown ProbeOutcome = iota
	// ProbeAccepted means the server accepted the recipient.
	ProbeAccepted
	// ProbeRejected means the server permanently rejected the recipient.
	ProbeRejected
)

// Prober checks mailbox existence against the domain's mail server.
type Prober interface {
	// Check probes a single address.
	Check(ctx context.Context, email string) ProbeOutcome
	// CatchAll reports whether the domain accepts any recipient, which
	// makes individual probe accepts meaningless.
	CatchAll(ctx context.Context, domain string) bool
}

// SMTPProbe probes recipients with a MAIL/RCPT exchange against the
// domain's primary MX, without ever sending DATA.
type SMTPProbe struct {
	dns         dnsx.MXResolver
	helloDomain string
	from        string
	timeout     time.Duration
}

// NewSMTPProbe creates an SMTPProbe. helloDomain is announced in the
// HELO and from is used as the probe envelope sender.
func NewSMTPProbe(dns dnsx.MXResolver, helloDomain, from string, timeout time.Duration) *SMTPProbe {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SMTPProbe{
		dns:         dns,
		helloDomain: helloDomain,
		from:        from,
		timeout:     timeout,
	}
}

func (p *SMTPProbe) Check(ctx context.Context, email string) ProbeOutcome {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ProbeRejected
	}
	outcome, err := p.rcpt(ctx, email[at+1:], email)
	if err != nil {
		zap.L().Debug("smtp probe inconclusive",
			zap.String("email", email),
			zap.Error(err))
		return ProbeUnknown
	}
	return outcome
}

func (p *SMTPProbe) CatchAll(ctx context.Context, domain string) bool {
	random := fmt.Sprintf("probe-%s@%s", strings.ReplaceAll(uuid.New().String(), "-", "")[:16], domain)
	outcome, err := p.rcpt(ctx, domain, random)
	if err != nil {
		return false
	}
	return outcome == ProbeAccepted
}

func (p *SMTPProbe) rcpt(ctx context.Context, domain, email string) (ProbeOutcome, error) {
	mxHost, err := dnsx.PrimaryMX(ctx, p.dns, domain)
	if err != nil {
		return ProbeUnknown, eris.Wrapf(err, "verify: no MX for %s", domain)
	}

	dialer := net.Dialer{Timeout: p.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(mxHost, "25"))
	if err != nil {
		return ProbeUnknown, eris.Wrapf(err, "verify: dial %s", mxHost)
	}
	_ = conn.SetDeadline(time.Now().Add(p.timeout))

	client, err := smtp.NewClient(conn, mxHost)
	if err != nil {
		_ = conn.Close()
		return ProbeUnknown, eris.Wrap(err, "verify: smtp handshake")
	}
	defer client.Close()

	if err := client.Hello(p.helloDomain); err != nil {
		return ProbeUnknown, eris.Wrap(err, "verify: hello")
	}
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: mxHost}); err != nil {
			return ProbeUnknown, eris.Wrap(err, "verify: starttls")
		}
	}
	if err := client.Mail(p.from); err != nil {
		return ProbeUnknown, eris.Wrap(err, "verify: mail from")
	}

	err = client.Rcpt(email)
	_ = client.Quit()
	if err == nil {
		return ProbeAccepted, nil
	}
	var tpErr *textproto.Error
	if eris.As(err, &tpErr) && tpErr.Code >= 550 && tpErr.Code <= 554 {
		return ProbeRejected, nil
	}
	return ProbeUnknown, eris.Wrap(err, "verify: rcpt to")
}

// Package bounce scans a mailbox for delivery status notifications and
// feeds them back into outbox statuses.
package bounce

import (
	"bufio"
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// Notification is a parsed delivery failure report.
type Notification struct {
	// Recipient is the address the original message could not reach.
	Recipient string
	// StatusCode is the enhanced status code (e.g. 5.1.1), empty when
	// the report carries none.
	StatusCode string
	// Diagnostic is the remote server's diagnostic line, when present.
	Diagnostic string
}

var (
	statusCodeRe = regexp.MustCompile(`\b([245]\.\d{1,3}\.\d{1,3})\b`)
	emailRe      = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	bounceSubjectRe = regexp.MustCompile(`(?i)(undeliver|delivery status|delivery has failed|mail delivery failed|failure notice|returned mail|échec)`)
)

// IsDSN reports whether a raw message looks like a delivery status
// notification, from its sender, subject or report content type.
func IsDSN(raw []byte) bool {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return false
	}

	from := strings.ToLower(msg.Header.Get("From"))
	if strings.Contains(from, "mailer-daemon") || strings.Contains(from, "postmaster") {
		return true
	}
	if bounceSubjectRe.MatchString(msg.Header.Get("Subject")) {
		return true
	}

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err == nil && mediaType == "multipart/report" && params["report-type"] == "delivery-status" {
		return true
	}
	return false
}

// Parse extracts the failed recipient and status code from a DSN. The
// machine-readable delivery-status part wins; free-text reports fall
// back to scanning the body.
func Parse(raw []byte) (*Notification, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, eris.Wrap(err, "bounce: parse message")
	}

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err == nil && strings.HasPrefix(mediaType, "multipart/") {
		if n := parseMultipart(msg.Body, params["boundary"]); n != nil {
			return n, nil
		}
	}

	body, err := io.ReadAll(io.LimitReader(msg.Body, 256*1024))
	if err != nil {
		return nil, eris.Wrap(err, "bounce: read body")
	}
	if n := parseFreeText(body); n != nil {
		return n, nil
	}
	return nil, eris.New("bounce: no failed recipient found")
}

// parseMultipart walks the parts looking for a message/delivery-status
// section, descending into nested multiparts.
func parseMultipart(body io.Reader, boundary string) *Notification {
	if boundary == "" {
		return nil
	}
	reader := multipart.NewReader(body, boundary)
	var textFallback *Notification
	for {
		part, err := reader.NextPart()
		if err != nil {
			return textFallback
		}

		mediaType, params, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if err != nil {
			continue
		}
		switch {
		case mediaType == "message/delivery-status":
			if n := parseDeliveryStatus(part); n != nil {
				return n
			}
		case strings.HasPrefix(mediaType, "multipart/"):
			if n := parseMultipart(part, params["boundary"]); n != nil {
				return n
			}
		case mediaType == "text/plain" && textFallback == nil:
			content, err := io.ReadAll(io.LimitReader(part, 256*1024))
			if err == nil {
				textFallback = parseFreeText(content)
			}
		}
	}
}

// parseDeliveryStatus reads the per-recipient fields of a
// message/delivery-status part.
func parseDeliveryStatus(r io.Reader) *Notification {
	n := &Notification{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.ToLower(key) {
		case "final-recipient", "original-recipient":
			if addr := extractAddress(value); addr != "" && n.Recipient == "" {
				n.Recipient = addr
			}
		case "status":
			if m := statusCodeRe.FindString(value); m != "" && n.StatusCode == "" {
				n.StatusCode = m
			}
		case "diagnostic-code":
			if n.Diagnostic == "" {
				n.Diagnostic = value
				if n.StatusCode == "" {
					n.StatusCode = statusCodeRe.FindString(value)
				}
			}
		}
	}
	if n.Recipient == "" {
		return nil
	}
	return n
}

// parseFreeText scans a human-readable bounce body for the first
// address and enhanced status code.
func parseFreeText(body []byte) *Notification {
	recipient := emailRe.FindString(string(body))
	if recipient == "" {
		return nil
	}
	return &Notification{
		Recipient:  strings.ToLower(recipient),
		StatusCode: statusCodeRe.FindString(string(body)),
	}
}

// extractAddress pulls the address out of an "rfc822; user@host" field.
func extractAddress(value string) string {
	if _, after, found := strings.Cut(value, ";"); found {
		value = after
	}
	return strings.ToLower(strings.TrimSpace(emailRe.FindString(value)))
}

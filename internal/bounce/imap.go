package bounce

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/rotisserie/eris"

	"github.com/Rabiegha/b2b-email-campaign/internal/config"
)

// IMAPMailbox reads messages from an IMAP folder over TLS.
type IMAPMailbox struct {
	client *client.Client
	folder string
}

// OpenIMAP connects, authenticates and selects the configured folder
// read-only.
func OpenIMAP(cfg config.IMAPConfig) (*IMAPMailbox, error) {
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "bounce: dial %s", addr)
	}
	if err := c.Login(cfg.User, cfg.Password); err != nil {
		_ = c.Logout()
		return nil, eris.Wrap(err, "bounce: login")
	}
	if _, err := c.Select(cfg.Folder, true); err != nil {
		_ = c.Logout()
		return nil, eris.Wrapf(err, "bounce: select %s", cfg.Folder)
	}
	return &IMAPMailbox{client: c, folder: cfg.Folder}, nil
}

// Messages returns the raw messages received since the given time.
func (m *IMAPMailbox) Messages(ctx context.Context, since time.Time) ([]Message, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Since = since

	uids, err := m.client.UidSearch(criteria)
	if err != nil {
		return nil, eris.Wrap(err, "bounce: search")
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	ch := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- m.client.UidFetch(seqSet, items, ch)
	}()

	var messages []Message
	for msg := range ch {
		if err := ctx.Err(); err != nil {
			// Drain so the fetch goroutine can finish.
			for range ch {
			}
			<-done
			return nil, err
		}

		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			continue
		}
		messages = append(messages, Message{UID: msg.Uid, Raw: raw})
	}
	if err := <-done; err != nil {
		return nil, eris.Wrap(err, "bounce: fetch")
	}
	return messages, nil
}

// Close logs out of the IMAP session.
func (m *IMAPMailbox) Close() error {
	return m.client.Logout()
}

// TestConnection verifies the IMAP server accepts the configured
// credentials, then disconnects.
func TestConnection(cfg config.IMAPConfig) error {
	mailbox, err := OpenIMAP(cfg)
	if err != nil {
		return err
	}
	return mailbox.Close()
}

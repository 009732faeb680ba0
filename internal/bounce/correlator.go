package bounce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Rabiegha/b2b-email-campaign/internal/model"
)

// Message is one raw mailbox message with its stable identifier.
type Message struct {
	UID uint32
	Raw []byte
}

// Mailbox lists messages received since a point in time.
type Mailbox interface {
	Messages(ctx context.Context, since time.Time) ([]Message, error)
	Close() error
}

// Store is the persistence surface the correlator needs.
type Store interface {
	HasSeenBounce(ctx context.Context, uid string) (bool, error)
	MarkBounceSeen(ctx context.Context, uid string) error
	FindSentByEmail(ctx context.Context, email string) (*model.OutboxRecord, error)
	UpdateOutboxStatus(ctx context.Context, id string, status model.OutboxStatus, errorMessage string, sentAt *time.Time) error
}

// ScanStats summarizes a bounce scan.
type ScanStats struct {
	Scanned     int
	Bounced     int
	Invalid     int
	AlreadySeen int
	Skipped     int
	Unmatched   int
}

// Correlator matches delivery failure notifications to sent records.
type Correlator struct {
	store Store
}

// NewCorrelator creates a Correlator.
func NewCorrelator(s Store) *Correlator {
	return &Correlator{store: s}
}

// Scan reads the mailbox and updates SENT records whose address
// bounced: 5.1.1 means the mailbox does not exist (INVALID), any other
// permanent failure becomes BOUNCED. Transient 4.x.x reports and 2.x.x
// success notifications are ignored. Every handled message is
// remembered, so rescanning the same window changes nothing.
func (c *Correlator) Scan(ctx context.Context, mailbox Mailbox, since time.Time) (*ScanStats, error) {
	messages, err := mailbox.Messages(ctx, since)
	if err != nil {
		return nil, err
	}

	stats := &ScanStats{Scanned: len(messages)}
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		uid := fmt.Sprintf("imap-%d", msg.UID)
		seen, err := c.store.HasSeenBounce(ctx, uid)
		if err != nil {
			return stats, err
		}
		if seen {
			stats.AlreadySeen++
			continue
		}

		if err := c.handle(ctx, msg, stats); err != nil {
			return stats, err
		}
		if err := c.store.MarkBounceSeen(ctx, uid); err != nil {
			return stats, err
		}
	}

	zap.L().Info("bounce scan finished",
		zap.Int("scanned", stats.Scanned),
		zap.Int("bounced", stats.Bounced),
		zap.Int("invalid", stats.Invalid),
		zap.Int("already_seen", stats.AlreadySeen))
	return stats, nil
}

func (c *Correlator) handle(ctx context.Context, msg Message, stats *ScanStats) error {
	if !IsDSN(msg.Raw) {
		stats.Skipped++
		return nil
	}

	notification, err := Parse(msg.Raw)
	if err != nil {
		zap.L().Debug("unparseable bounce report",
			zap.Uint32("uid", msg.UID),
			zap.Error(err))
		stats.Skipped++
		return nil
	}
	if strings.HasPrefix(notification.StatusCode, "4") || strings.HasPrefix(notification.StatusCode, "2") {
		stats.Skipped++
		return nil
	}

	rec, err := c.store.FindSentByEmail(ctx, notification.Recipient)
	if err != nil {
		return err
	}
	if rec == nil {
		zap.L().Debug("bounce for unknown recipient",
			zap.String("recipient", notification.Recipient))
		stats.Unmatched++
		return nil
	}

	status := model.StatusBounced
	if notification.StatusCode == "5.1.1" {
		status = model.StatusInvalid
	}
	reason := notification.StatusCode
	if notification.Diagnostic != "" {
		reason = notification.Diagnostic
	}

	if err := c.store.UpdateOutboxStatus(ctx, rec.ID, status, reason, nil); err != nil {
		return err
	}
	if status == model.StatusInvalid {
		stats.Invalid++
	} else {
		stats.Bounced++
	}

	zap.L().Info("bounce correlated",
		zap.String("recipient", notification.Recipient),
		zap.String("status", string(status)),
		zap.String("code", notification.StatusCode))
	return nil
}

// Package dispatch sends READY outbox records over SMTP, one at a time,
// with a random delay between sends and a per-run quota.
package dispatch

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/Rabiegha/b2b-email-campaign/internal/model"
	"github.com/Rabiegha/b2b-email-campaign/internal/store"
)

// Store is the persistence surface the dispatcher needs.
type Store interface {
	ListOutbox(ctx context.Context, filter store.OutboxFilter) ([]model.OutboxRecord, error)
	UpdateOutboxStatus(ctx context.Context, id string, status model.OutboxStatus, errorMessage string, sentAt *time.Time) error
}

// SendStats summarizes a dispatch run.
type SendStats struct {
	Sent    int
	Failed  int
	Pending int
}

// Progress is called after each record is handled.
type Progress func(rec model.OutboxRecord, done, total int)

// Dispatcher drains READY records in creation order.
type Dispatcher struct {
	store    Store
	sender   Sender
	minDelay time.Duration
	maxDelay time.Duration
	quota    int
	progress Progress

	// Replaceable in tests.
	sleep     func(ctx context.Context, d time.Duration) error
	randFloat func() float64
}

// NewDispatcher creates a Dispatcher. quota caps sends per run; zero
// means unlimited. The delay between two sends is uniform in
// [minDelay, maxDelay].
func NewDispatcher(s Store, sender Sender, minDelay, maxDelay time.Duration, quota int, progress Progress) *Dispatcher {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Dispatcher{
		store:     s,
		sender:    sender,
		minDelay:  minDelay,
		maxDelay:  maxDelay,
		quota:     quota,
		progress:  progress,
		sleep:     sleepCtx,
		randFloat: rand.Float64,
	}
}

// Run sends pending records sequentially. A failed send marks the
// record ERROR and the run continues; cancellation stops before the
// next send. Records beyond the quota stay READY for the next run.
func (d *Dispatcher) Run(ctx context.Context) (*SendStats, error) {
	records, err := d.store.ListOutbox(ctx, store.OutboxFilter{Status: model.StatusReady})
	if err != nil {
		return nil, err
	}

	stats := &SendStats{}
	if d.quota > 0 && len(records) > d.quota {
		stats.Pending = len(records) - d.quota
		records = records[:d.quota]
	}
	if len(records) == 0 {
		return stats, nil
	}

	zap.L().Info("dispatch started",
		zap.Int("records", len(records)),
		zap.Duration("min_delay", d.minDelay),
		zap.Duration("max_delay", d.maxDelay))

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			stats.Pending += len(records) - i
			return stats, err
		}

		log := zap.L().With(
			zap.String("outbox_id", rec.ID),
			zap.String("email", rec.Email))

		if err := d.sender.Send(rec.Email, rec.Subject, rec.Body); err != nil {
			stats.Failed++
			log.Error("send failed", zap.Error(err))
			if uErr := d.store.UpdateOutboxStatus(ctx, rec.ID, model.StatusError, "SEND_FAILED: "+err.Error(), nil); uErr != nil {
				return stats, uErr
			}
		} else {
			stats.Sent++
			now := time.Now().UTC()
			log.Info("message sent")
			if uErr := d.store.UpdateOutboxStatus(ctx, rec.ID, model.StatusSent, "", &now); uErr != nil {
				return stats, uErr
			}
		}

		if d.progress != nil {
			d.progress(rec, i+1, len(records))
		}

		if i < len(records)-1 {
			if err := d.sleep(ctx, d.delay()); err != nil {
				stats.Pending += len(records) - i - 1
				return stats, err
			}
		}
	}
	return stats, nil
}

// delay draws a uniform duration in [minDelay, maxDelay].
func (d *Dispatcher) delay() time.Duration {
	spread := d.maxDelay - d.minDelay
	if spread <= 0 {
		return d.minDelay
	}
	return d.minDelay + time.Duration(d.randFloat()*float64(spread))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Rabiegha/b2b-email-campaign/internal/bounce"
)

var bouncesSinceDays int

var bouncesCmd = &cobra.Command{
	Use:   "bounces",
	Short: "Scan the mailbox for bounces and update sent records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.IMAP.Validate(); err != nil {
			return err
		}

		s, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "bounces: init store")
		}
		defer s.Close()

		mailbox, err := bounce.OpenIMAP(cfg.IMAP)
		if err != nil {
			return eris.Wrap(err, "bounces: open mailbox")
		}
		defer mailbox.Close()

		days := bouncesSinceDays
		if days <= 0 {
			days = cfg.Bounce.SinceDays
		}
		since := time.Now().AddDate(0, 0, -days)

		stats, err := bounce.NewCorrelator(s).Scan(ctx, mailbox, since)
		if err != nil {
			return eris.Wrap(err, "bounces: scan")
		}

		zap.L().Info("bounce scan complete",
			zap.Int("scanned", stats.Scanned),
			zap.Int("bounced", stats.Bounced),
			zap.Int("invalid", stats.Invalid),
			zap.Int("unmatched", stats.Unmatched),
			zap.Int("already_seen", stats.AlreadySeen),
		)
		cmd.Printf("Scanned %d message(s): %d bounced, %d invalid, %d unmatched, %d already handled\n",
			stats.Scanned, stats.Bounced, stats.Invalid, stats.Unmatched, stats.AlreadySeen)
		return nil
	},
}

func init() {
	bouncesCmd.Flags().IntVar(&bouncesSinceDays, "since-days", 0, "scan window in days (default from config)")
	rootCmd.AddCommand(bouncesCmd)
}

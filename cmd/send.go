package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Rabiegha/b2b-email-campaign/internal/dispatch"
	"github.com/Rabiegha/b2b-email-campaign/internal/model"
)

var sendLimit int

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send READY outbox records over SMTP",
	Long:  "Sends pending records one at a time with a random delay between sends. Interrupting with Ctrl-C finishes the current send and stops.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.SMTP.Validate(); err != nil {
			return err
		}

		s, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "send: init store")
		}
		defer s.Close()

		sender, err := dispatch.NewSMTPSender(cfg.SMTP)
		if err != nil {
			return eris.Wrap(err, "send: connect smtp")
		}
		defer sender.Close()

		quota := cfg.Send.MaxPerRun
		if sendLimit > 0 {
			quota = sendLimit
		}

		d := dispatch.NewDispatcher(s, sender,
			cfg.Send.MinDelay(), cfg.Send.MaxDelay(), quota,
			func(rec model.OutboxRecord, done, total int) {
				cmd.Printf("[%d/%d] %s\n", done, total, rec.Email)
			},
		)

		stats, err := d.Run(ctx)
		if stats != nil {
			zap.L().Info("send complete",
				zap.Int("sent", stats.Sent),
				zap.Int("failed", stats.Failed),
				zap.Int("pending", stats.Pending),
			)
			cmd.Printf("Sent: %d, failed: %d, still pending: %d\n",
				stats.Sent, stats.Failed, stats.Pending)
		}
		if err != nil {
			return eris.Wrap(err, "send: dispatch")
		}
		return nil
	},
}

func init() {
	sendCmd.Flags().IntVar(&sendLimit, "limit", 0, "max messages this run (overrides send.max_per_run)")
	rootCmd.AddCommand(sendCmd)
}

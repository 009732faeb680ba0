package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Rabiegha/b2b-email-campaign/internal/model"
	"github.com/Rabiegha/b2b-email-campaign/internal/outbox"
	"github.com/Rabiegha/b2b-email-campaign/internal/store"
)

var (
	outboxListStatus string
	outboxListSearch string
	outboxListLimit  int
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Build and inspect the send queue",
}

var outboxBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Create send-ready records from suggestions and messages",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		s, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "outbox: init store")
		}
		defer s.Close()

		stats, err := outbox.NewBuilder(s).Build(ctx)
		if err != nil {
			return eris.Wrap(err, "outbox: build")
		}

		cmd.Printf("Outbox: %d ready, %d errored, %d already present\n",
			stats.Ready, stats.Errored, stats.Skipped)
		return nil
	},
}

var outboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List outbox records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		status := model.OutboxStatus(outboxListStatus)
		if outboxListStatus != "" && !status.Valid() {
			return eris.Errorf("unknown status %q", outboxListStatus)
		}

		s, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "outbox: init store")
		}
		defer s.Close()

		records, err := s.ListOutbox(ctx, store.OutboxFilter{
			Status: status,
			Search: outboxListSearch,
			Limit:  outboxListLimit,
		})
		if err != nil {
			return eris.Wrap(err, "outbox: list")
		}

		for _, r := range records {
			cmd.Printf("%-8s  %-30s  %-25s  %s\n", r.Status, r.Email, r.Company, r.ErrorMessage)
		}
		cmd.Printf("%d record(s)\n", len(records))
		return nil
	},
}

func init() {
	outboxListCmd.Flags().StringVar(&outboxListStatus, "status", "", "filter by status (READY, SENT, BOUNCED, INVALID, ERROR)")
	outboxListCmd.Flags().StringVar(&outboxListSearch, "search", "", "filter by company, email or subject")
	outboxListCmd.Flags().IntVar(&outboxListLimit, "limit", 0, "max records to show (0 = all)")
	outboxCmd.AddCommand(outboxBuildCmd)
	outboxCmd.AddCommand(outboxListCmd)
	rootCmd.AddCommand(outboxCmd)
}

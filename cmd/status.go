package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Rabiegha/b2b-email-campaign/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		s, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "status: init store")
		}
		defer s.Close()

		prospects, err := s.ListProspects(ctx)
		if err != nil {
			return eris.Wrap(err, "status: list prospects")
		}
		pending, err := s.ListProspectsWithoutSuggestion(ctx, 0)
		if err != nil {
			return eris.Wrap(err, "status: list pending")
		}
		suggestions, err := s.ListSuggestions(ctx)
		if err != nil {
			return eris.Wrap(err, "status: list suggestions")
		}
		counts, err := s.CountOutboxByStatus(ctx)
		if err != nil {
			return eris.Wrap(err, "status: count outbox")
		}
		seenBounces, err := s.CountSeenBounces(ctx)
		if err != nil {
			return eris.Wrap(err, "status: count bounces")
		}

		found := 0
		for _, sg := range suggestions {
			if sg.Status == model.SuggestionFound {
				found++
			}
		}

		cmd.Printf("Prospects:    %d (%d without suggestion)\n", len(prospects), len(pending))
		cmd.Printf("Suggestions:  %d (%d found)\n", len(suggestions), found)
		cmd.Printf("Outbox:       READY %d, SENT %d, BOUNCED %d, INVALID %d, ERROR %d\n",
			counts[model.StatusReady], counts[model.StatusSent],
			counts[model.StatusBounced], counts[model.StatusInvalid],
			counts[model.StatusError])
		cmd.Printf("Bounces seen: %d\n", seenBounces)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

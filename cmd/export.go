package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Rabiegha/b2b-email-campaign/internal/export"
	"github.com/Rabiegha/b2b-email-campaign/internal/store"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export data to CSV or XLSX files",
}

var exportOutboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Export all outbox records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		s, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "export: init store")
		}
		defer s.Close()

		records, err := s.ListOutbox(ctx, store.OutboxFilter{})
		if err != nil {
			return eris.Wrap(err, "export: list outbox")
		}
		if err := export.Outbox(records, exportOutput); err != nil {
			return err
		}

		cmd.Printf("Wrote %d record(s) to %s\n", len(records), exportOutput)
		return nil
	},
}

var exportSuggestionsCmd = &cobra.Command{
	Use:   "suggestions",
	Short: "Export all email suggestions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		s, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "export: init store")
		}
		defer s.Close()

		list, err := s.ListSuggestions(ctx)
		if err != nil {
			return eris.Wrap(err, "export: list suggestions")
		}
		if err := export.Suggestions(list, exportOutput); err != nil {
			return err
		}

		cmd.Printf("Wrote %d suggestion(s) to %s\n", len(list), exportOutput)
		return nil
	},
}

func init() {
	exportCmd.PersistentFlags().StringVarP(&exportOutput, "output", "o", "", "output file (.csv or .xlsx, required)")
	_ = exportCmd.MarkPersistentFlagRequired("output")
	exportCmd.AddCommand(exportOutboxCmd)
	exportCmd.AddCommand(exportSuggestionsCmd)
	rootCmd.AddCommand(exportCmd)
}

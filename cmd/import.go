package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Rabiegha/b2b-email-campaign/internal/importer"
)

var (
	importProspectsPath string
	importMessagesPath  string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import prospects and messages from CSV or XLSX files",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if importProspectsPath == "" && importMessagesPath == "" {
			return eris.New("nothing to import, pass --prospects and/or --messages")
		}

		s, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "import: init store")
		}
		defer s.Close()

		im := importer.New(s)

		if importProspectsPath != "" {
			stats, err := im.ImportProspects(ctx, importProspectsPath)
			if err != nil {
				return eris.Wrap(err, "import: prospects")
			}
			cmd.Printf("Prospects: %d imported, %d skipped\n", stats.Imported, stats.Skipped)
		}

		if importMessagesPath != "" {
			stats, err := im.ImportMessages(ctx, importMessagesPath)
			if err != nil {
				return eris.Wrap(err, "import: messages")
			}
			cmd.Printf("Messages: %d imported, %d skipped\n", stats.Imported, stats.Skipped)
		}

		zap.L().Info("import complete",
			zap.String("prospects", importProspectsPath),
			zap.String("messages", importMessagesPath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importProspectsPath, "prospects", "", "path to prospects file (.csv or .xlsx)")
	importCmd.Flags().StringVar(&importMessagesPath, "messages", "", "path to messages file (.csv or .xlsx)")
	rootCmd.AddCommand(importCmd)
}

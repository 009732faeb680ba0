package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Rabiegha/b2b-email-campaign/internal/bounce"
	"github.com/Rabiegha/b2b-email-campaign/internal/dispatch"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify SMTP and IMAP connectivity",
	RunE: func(cmd *cobra.Command, _ []string) error {
		failed := false

		if err := cfg.SMTP.Validate(); err != nil {
			cmd.Printf("SMTP: not configured (%v)\n", err)
			failed = true
		} else if err := dispatch.TestConnection(cfg.SMTP); err != nil {
			cmd.Printf("SMTP: FAILED (%v)\n", err)
			failed = true
		} else {
			cmd.Printf("SMTP: ok (%s:%d)\n", cfg.SMTP.Host, cfg.SMTP.Port)
		}

		if err := cfg.IMAP.Validate(); err != nil {
			cmd.Printf("IMAP: not configured (%v)\n", err)
			failed = true
		} else if err := bounce.TestConnection(cfg.IMAP); err != nil {
			cmd.Printf("IMAP: FAILED (%v)\n", err)
			failed = true
		} else {
			cmd.Printf("IMAP: ok (%s:%d %s)\n", cfg.IMAP.Host, cfg.IMAP.Port, cfg.IMAP.Folder)
		}

		if failed {
			cmd.SilenceUsage = true
			return eris.New("connectivity check failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

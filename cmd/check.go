package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one poll cycle and report the outcome",
	RunE: func(cmd *cobra.Command, _ []string) error {
		poller, cleanup, err := buildPoller(cmd.Context())
		if err != nil {
			return fmt.Errorf("setup failed: %w", err)
		}
		defer cleanup()

		report, err := poller.TriggerNow(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Emails found:     %d\n", report.EmailsFound)
		fmt.Printf("Emails processed: %d\n", report.EmailsProcessed)
		fmt.Printf("New requests:     %d\n", report.NewRequests)

		for _, r := range report.ProcessedRequests {
			fmt.Printf("  created: %s / %s <%s>\n", r.Organization, r.ContactPerson, r.Email)
		}
		for _, e := range report.Errors {
			fmt.Printf("  error: %s\n", e)
		}

		return nil
	},
}

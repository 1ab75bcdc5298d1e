package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a single full sync pass and exit",
	Long: `Scan every markdown file under the watch directory, reconcile the
tagged epics against Jira, and apply whatever creates, updates and
transitions are needed. Exits non-zero if any epic failed to sync.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp(nil)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		if err := a.client.Myself(cmd.Context()); err != nil {
			fatal(fmt.Errorf("jira credential check: %w", err))
		}

		result, err := a.engine.RunFull(cmd.Context())
		if err != nil {
			fatal(err)
		}

		fmt.Printf("Sync complete in %v\n", result.Duration.Round(time.Millisecond))
		fmt.Printf("   Created:    %d\n", result.Created)
		fmt.Printf("   Updated:    %d\n", result.Updated)
		fmt.Printf("   Up to date: %d\n", result.UpToDate)
		if result.Skipped > 0 {
			fmt.Printf("   Skipped:    %d\n", result.Skipped)
			for _, path := range result.ParseFailures {
				fmt.Fprintf(os.Stderr, "   parse failed: %s\n", path)
			}
		}
		if result.Failed > 0 {
			fmt.Fprintf(os.Stderr, "   Failed:     %d\n", result.Failed)
			for _, o := range result.Outcomes {
				if o.Err != nil {
					fmt.Fprintf(os.Stderr, "   %s: %v\n", o.LocalID, o.Err)
				}
			}
			os.Exit(1)
		}
	},
}

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/epicsync/epicsync/internal/mapping"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the local-to-Jira mapping table",
	Long: `Display every epic the daemon has mapped to a Jira issue.

Reads the mapping database only; Jira is not contacted.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, _, err := loadConfig()
		if err != nil {
			fatal(err)
		}

		store, err := mapping.Open(cfg.DBPath)
		if err != nil {
			fatal(err)
		}
		defer store.Close()

		all, err := store.All()
		if err != nil {
			fatal(err)
		}
		if len(all) == 0 {
			fmt.Println("No epics mapped yet. Run 'epicsync sync' first.")
			return
		}

		ids := make([]string, 0, len(all))
		for id := range all {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		fmt.Printf("%d mapped epic(s) in %s\n\n", len(ids), cfg.DBPath)
		for _, id := range ids {
			fmt.Printf("   %-12s %s\n", all[id], id)
		}
	},
}

var importMappingCmd = &cobra.Command{
	Use:   "import-mapping <file.json>",
	Short: "Import a legacy JSON mapping file",
	Long: `Import mappings from a flat JSON object of local epic IDs to Jira
issue keys, as written by earlier sync tooling. Existing mappings are
never overwritten.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, _, err := loadConfig()
		if err != nil {
			fatal(err)
		}

		store, err := mapping.Open(cfg.DBPath)
		if err != nil {
			fatal(err)
		}
		defer store.Close()

		res, err := store.ImportLegacyJSON(args[0])
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Imported %d mapping(s), skipped %d\n", res.Imported, res.Skipped)
	},
}

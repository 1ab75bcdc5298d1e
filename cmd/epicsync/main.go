// Command epicsync keeps Jira epics in step with a directory of
// Logseq-style markdown notes. Run it once with `epicsync sync` or
// leave it watching with `epicsync run`.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/epicsync/epicsync/internal/config"
	"github.com/epicsync/epicsync/internal/jira"
	"github.com/epicsync/epicsync/internal/logging"
	"github.com/epicsync/epicsync/internal/mapping"
	"github.com/epicsync/epicsync/internal/notes"
	"github.com/epicsync/epicsync/internal/sync"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "epicsync",
	Short: "Sync markdown epics to Jira",
	Long: `epicsync watches a directory of Logseq-style markdown notes and
mirrors tagged epics into Jira: new epics are created, changed titles,
descriptions and tasks are pushed as updates, and status markers
(TODO/DOING/DONE) drive workflow transitions.

Configuration comes from a YAML file, environment variables, or a .env
file in the working directory. JIRA_BASE_URL, JIRA_USER, JIRA_TOKEN and
JIRA_PROJECT_KEY are required.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(importMappingCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the pieces every command needs.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	store  *mapping.Store
	client *jira.Client
	engine *sync.Engine
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("closing mapping store")
		}
	}
}

// loadConfig resolves configuration and the logger, which is all the
// read-only commands need.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

// buildApp wires the full engine: config, logger, mapping store, Jira
// client, status table.
func buildApp(notifier sync.Notifier) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return buildAppFrom(cfg, logger, notifier)
}

func buildAppFrom(cfg *config.Config, logger zerolog.Logger, notifier sync.Notifier) (*app, error) {
	table := notes.DefaultStatusTable()
	var err error
	if cfg.StatusTablePath != "" {
		table, err = notes.LoadStatusTable(cfg.StatusTablePath)
		if err != nil {
			return nil, fmt.Errorf("loading status table: %w", err)
		}
	}

	store, err := mapping.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening mapping store: %w", err)
	}

	client := jira.NewClient(cfg, logger)
	engine := sync.New(cfg, store, client, table, notifier, logger)

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		client: client,
		engine: engine,
	}, nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

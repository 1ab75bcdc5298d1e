// Package config loads and validates epicsync configuration.
//
// Configuration comes from three layers, later layers winning:
//  1. built-in defaults
//  2. an optional YAML config file
//  3. environment variables (a .env file in the working directory is
//     loaded first if present)
//
// The resolved Config struct is passed explicitly into each component
// constructor. Nothing in the rest of the codebase reads the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds everything the daemon needs to run.
type Config struct {
	// Jira connection
	JiraBaseURL    string `mapstructure:"jira_base_url"`
	JiraUser       string `mapstructure:"jira_user"`
	JiraToken      string `mapstructure:"jira_token"`
	JiraProjectKey string `mapstructure:"jira_project_key"`

	// Workspace
	WatchDir    string   `mapstructure:"watch_dir"`
	IgnoreGlobs []string `mapstructure:"ignore_globs"`

	// Timing and retry bounds
	Debounce    time.Duration `mapstructure:"debounce"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`

	// SyncMapping database path
	DBPath string `mapstructure:"db_path"`

	// Optional status table override (YAML file, see notes.LoadStatusTable)
	StatusTablePath string `mapstructure:"status_table"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFile   string `mapstructure:"log_file"`
	LogFormat string `mapstructure:"log_format"` // "console" or "json"

	// Dashboard (0 disables the server)
	DashboardPort int `mapstructure:"dashboard_port"`
}

// Error indicates an unusable configuration. The process must exit
// before the watcher starts when it sees one of these.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

// Load builds a Config from defaults, an optional config file, and the
// environment. cfgFile may be empty.
func Load(cfgFile string) (*Config, error) {
	// Match the original workflow: credentials usually live in a .env
	// next to the notes. Missing file is fine.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("loading .env: %w", err)
		}
	}

	v := viper.New()

	v.SetDefault("watch_dir", ".")
	v.SetDefault("debounce", 2*time.Second)
	v.SetDefault("http_timeout", 30*time.Second)
	v.SetDefault("max_retries", 4)
	v.SetDefault("db_path", ".epicsync/mapping.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	// The Jira variables keep their historical names; everything else is
	// namespaced under EPICSYNC_.
	bind := map[string]string{
		"jira_base_url":    "JIRA_BASE_URL",
		"jira_user":        "JIRA_USER",
		"jira_token":       "JIRA_TOKEN",
		"jira_project_key": "JIRA_PROJECT_KEY",
		"watch_dir":        "WATCH_DIR",
		"ignore_globs":     "EPICSYNC_IGNORE",
		"debounce":         "EPICSYNC_DEBOUNCE",
		"http_timeout":     "EPICSYNC_HTTP_TIMEOUT",
		"max_retries":      "EPICSYNC_MAX_RETRIES",
		"db_path":          "EPICSYNC_DB",
		"status_table":     "EPICSYNC_STATUS_TABLE",
		"log_level":        "EPICSYNC_LOG_LEVEL",
		"log_file":         "EPICSYNC_LOG_FILE",
		"log_format":       "EPICSYNC_LOG_FORMAT",
		"dashboard_port":   "EPICSYNC_DASHBOARD_PORT",
	}
	for key, env := range bind {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Ignored reports whether a path under WatchDir matches one of the
// configured ignore globs. Patterns use doublestar syntax, e.g.
// "logseq/bak/**". path may be absolute or already relative to
// WatchDir.
func (c *Config) Ignored(path string) bool {
	rel := path
	if filepath.IsAbs(path) {
		r, err := filepath.Rel(c.WatchDir, path)
		if err != nil {
			return false
		}
		rel = r
	}
	rel = filepath.ToSlash(rel)

	for _, glob := range c.IgnoreGlobs {
		if ok, err := doublestar.Match(glob, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// Validate checks that the configuration is complete enough to run.
func (c *Config) Validate() error {
	switch {
	case c.JiraBaseURL == "":
		return &Error{Field: "JIRA_BASE_URL", Reason: "is required"}
	case c.JiraUser == "":
		return &Error{Field: "JIRA_USER", Reason: "is required"}
	case c.JiraToken == "":
		return &Error{Field: "JIRA_TOKEN", Reason: "is required"}
	case c.JiraProjectKey == "":
		return &Error{Field: "JIRA_PROJECT_KEY", Reason: "is required"}
	}

	if info, err := os.Stat(c.WatchDir); err != nil {
		return &Error{Field: "WATCH_DIR", Reason: fmt.Sprintf("is not readable: %v", err)}
	} else if !info.IsDir() {
		return &Error{Field: "WATCH_DIR", Reason: "is not a directory"}
	}

	if c.Debounce <= 0 {
		return &Error{Field: "EPICSYNC_DEBOUNCE", Reason: "must be positive"}
	}
	if c.HTTPTimeout <= 0 {
		return &Error{Field: "EPICSYNC_HTTP_TIMEOUT", Reason: "must be positive"}
	}
	if c.MaxRetries < 0 {
		return &Error{Field: "EPICSYNC_MAX_RETRIES", Reason: "must not be negative"}
	}

	return nil
}

package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// setRequiredEnv sets the minimum environment for Load to succeed.
func setRequiredEnv(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("JIRA_BASE_URL", "https://example.atlassian.net")
	t.Setenv("JIRA_USER", "bot@example.com")
	t.Setenv("JIRA_TOKEN", "secret")
	t.Setenv("JIRA_PROJECT_KEY", "PROJ")
	t.Setenv("WATCH_DIR", dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	dir := setRequiredEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.WatchDir != dir {
		t.Errorf("WatchDir = %q, want %q", cfg.WatchDir, dir)
	}
	if cfg.Debounce != 2*time.Second {
		t.Errorf("Debounce = %v, want 2s", cfg.Debounce)
	}
	if cfg.MaxRetries != 4 {
		t.Errorf("MaxRetries = %d, want 4", cfg.MaxRetries)
	}
	if cfg.DashboardPort != 0 {
		t.Errorf("DashboardPort = %d, want 0 (disabled)", cfg.DashboardPort)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EPICSYNC_DEBOUNCE", "750ms")
	t.Setenv("EPICSYNC_MAX_RETRIES", "2")
	t.Setenv("EPICSYNC_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Debounce != 750*time.Millisecond {
		t.Errorf("Debounce = %v, want 750ms", cfg.Debounce)
	}
	if cfg.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2", cfg.MaxRetries)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestValidateMissingCredential(t *testing.T) {
	cases := []struct {
		name  string
		unset string
	}{
		{"missing base URL", "JIRA_BASE_URL"},
		{"missing user", "JIRA_USER"},
		{"missing token", "JIRA_TOKEN"},
		{"missing project key", "JIRA_PROJECT_KEY"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tc.unset, "")

			_, err := Load("")
			if err == nil {
				t.Fatal("Load succeeded, want config error")
			}
			var cerr *Error
			if !errors.As(err, &cerr) {
				t.Fatalf("error %v is not a *config.Error", err)
			}
			if cerr.Field != tc.unset {
				t.Errorf("error field = %q, want %q", cerr.Field, tc.unset)
			}
		})
	}
}

func TestIgnored(t *testing.T) {
	cfg := &Config{
		WatchDir:    "/notes",
		IgnoreGlobs: []string{"logseq/bak/**", "*.tmp.md"},
	}

	cases := []struct {
		path string
		want bool
	}{
		{"/notes/logseq/bak/pages/old.md", true},
		{"/notes/pages/work.md", false},
		{"draft.tmp.md", true},
		{"pages/work.md", false},
	}

	for _, tc := range cases {
		if got := cfg.Ignored(tc.path); got != tc.want {
			t.Errorf("Ignored(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestValidateBadWatchDir(t *testing.T) {
	dir := setRequiredEnv(t)
	t.Setenv("WATCH_DIR", filepath.Join(dir, "does-not-exist"))

	_, err := Load("")
	if err == nil {
		t.Fatal("Load succeeded, want error for missing watch dir")
	}
}

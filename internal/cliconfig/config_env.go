package cliconfig

import (
	"os"
	"time"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "HARVESTER_"

// ApplyEnvConfig applies configuration from environment variables (HARVESTER_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	env := func(name string) string { return os.Getenv(EnvPrefix + name) }

	s.setString("tenant", env("TENANT"), &cfg.Tenant)
	s.setString("site-url", env("SITE_URL"), &cfg.SiteURL)
	s.setString("download-dir", env("DOWNLOAD_DIR"), &cfg.DownloadDir)
	s.setString("export-file", env("EXPORT_FILE"), &cfg.ExportFile)
	s.setString("compression", env("COMPRESSION"), &cfg.Compression)
	s.setString("publish", env("PUBLISH_URL"), &cfg.PublishURL)
	s.setString("publish-prefix", env("PUBLISH_PREFIX"), &cfg.PublishPrefix)
	s.setString("template-id", env("TEMPLATE_ID"), &cfg.TemplateID)
	s.setString("user-agent", env("USER_AGENT"), &cfg.UserAgent)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", env("LOG_FORMAT"), &cfg.LogFormat)

	ints := []struct {
		flag  string
		name  string
		floor int
		dst   *int
	}{
		{"parts", "PARTS", 1, &cfg.Parts},
		{"pages-delta", "PAGES_DELTA", 0, &cfg.PagesDelta},
		{"initial-span", "INITIAL_SPAN", 1, &cfg.InitialSpan},
		{"workers", "WORKERS", 1, &cfg.Workers},
		{"retry-passes", "RETRY_PASSES", 0, &cfg.RetryPasses},
		{"retry-attempts", "RETRY_ATTEMPTS", 1, &cfg.RetryAttempts},
	}
	for _, i := range ints {
		if err := s.setIntFromString(i.flag, env(i.name), i.floor, i.dst); err != nil {
			return err
		}
	}

	durations := []struct {
		flag string
		name string
		dst  *time.Duration
	}{
		{"round-wait", "ROUND_WAIT", &cfg.RoundWait},
		{"check-report-interval", "POLL_INTERVAL", &cfg.PollInterval},
		{"report-timeout", "REPORT_TIMEOUT", &cfg.ReportTimeout},
		{"oracle-delay", "ORACLE_DELAY", &cfg.OracleDelay},
		{"timeout", "HTTP_TIMEOUT", &cfg.HTTPTimeout},
		{"retry-backoff", "RETRY_BACKOFF", &cfg.RetryBackoff},
		{"retry-max-backoff", "RETRY_MAX_BACKOFF", &cfg.RetryMaxBackoff},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, env(d.name), d.dst); err != nil {
			return err
		}
	}

	s.setBoolFromString("noinput", env("NOINPUT"), &cfg.NoInput)

	return nil
}

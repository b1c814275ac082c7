package cliconfig

import (
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Tenant          string `toml:"tenant"`
	SiteURL         string `toml:"site_url"`
	DownloadDir     string `toml:"download_dir"`
	ExportFile      string `toml:"export_file"`
	Compression     string `toml:"compression"`
	PublishURL      string `toml:"publish_url"`
	PublishPrefix   string `toml:"publish_prefix"`
	Parts           int    `toml:"parts"`
	PagesDelta      *int   `toml:"pages_delta"`
	InitialSpan     int    `toml:"initial_span"`
	Workers         int    `toml:"workers"`
	RoundWait       string `toml:"round_wait"`
	PollInterval    string `toml:"poll_interval"`
	ReportTimeout   string `toml:"report_timeout"`
	OracleDelay     string `toml:"oracle_delay"`
	HTTPTimeout     string `toml:"http_timeout"`
	RetryPasses     *int   `toml:"retry_passes"`
	RetryAttempts   int    `toml:"retry_attempts"`
	RetryBackoff    string `toml:"retry_backoff"`
	RetryMaxBackoff string `toml:"retry_max_backoff"`
	TemplateID      string `toml:"template_id"`
	UserAgent       string `toml:"user_agent"`
	NoInput         *bool  `toml:"noinput"`
	LogLevel        string `toml:"log_level"`
	LogFormat       string `toml:"log_format"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.harvester/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".harvester", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("tenant", fc.Tenant, &cfg.Tenant)
	s.setString("site-url", fc.SiteURL, &cfg.SiteURL)
	s.setString("download-dir", fc.DownloadDir, &cfg.DownloadDir)
	s.setString("export-file", fc.ExportFile, &cfg.ExportFile)
	s.setString("compression", fc.Compression, &cfg.Compression)
	s.setString("publish", fc.PublishURL, &cfg.PublishURL)
	s.setString("publish-prefix", fc.PublishPrefix, &cfg.PublishPrefix)
	s.setString("template-id", fc.TemplateID, &cfg.TemplateID)
	s.setString("user-agent", fc.UserAgent, &cfg.UserAgent)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)

	s.setInt("parts", fc.Parts, &cfg.Parts)
	s.setIntPtr("pages-delta", fc.PagesDelta, &cfg.PagesDelta)
	s.setInt("initial-span", fc.InitialSpan, &cfg.InitialSpan)
	s.setInt("workers", fc.Workers, &cfg.Workers)
	s.setIntPtr("retry-passes", fc.RetryPasses, &cfg.RetryPasses)
	s.setInt("retry-attempts", fc.RetryAttempts, &cfg.RetryAttempts)

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"round-wait", fc.RoundWait, &cfg.RoundWait},
		{"check-report-interval", fc.PollInterval, &cfg.PollInterval},
		{"report-timeout", fc.ReportTimeout, &cfg.ReportTimeout},
		{"oracle-delay", fc.OracleDelay, &cfg.OracleDelay},
		{"timeout", fc.HTTPTimeout, &cfg.HTTPTimeout},
		{"retry-backoff", fc.RetryBackoff, &cfg.RetryBackoff},
		{"retry-max-backoff", fc.RetryMaxBackoff, &cfg.RetryMaxBackoff},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}

	s.setBool("noinput", fc.NoInput, &cfg.NoInput)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

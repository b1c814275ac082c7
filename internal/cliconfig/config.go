package cliconfig

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/harvester/internal/adapters/eagleweb"
	"github.com/bft-labs/harvester/internal/adapters/fs"
	"github.com/bft-labs/harvester/pkg/log"
)

// Defaults for the download layout.
const (
	DefaultDownloadDir = "harvester-downloads"
	DefaultExportFile  = "accounts.csv"
	DefaultParts       = 30
	partsSubdir        = "parts"
)

// Config holds CLI configuration for harvester.
type Config struct {
	Tenant  string
	SiteURL string

	DownloadDir string
	ExportFile  string
	Compression string

	PublishURL    string
	PublishPrefix string

	Parts       int
	PagesDelta  int
	InitialSpan int
	Workers     int

	RoundWait     time.Duration
	PollInterval  time.Duration
	ReportTimeout time.Duration
	OracleDelay   time.Duration
	HTTPTimeout   time.Duration

	RetryPasses     int
	RetryAttempts   int
	RetryBackoff    time.Duration
	RetryMaxBackoff time.Duration

	TemplateID string
	UserAgent  string

	NoInput   bool
	LogLevel  string
	LogFormat string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		DownloadDir:     DefaultDownloadDir,
		ExportFile:      DefaultExportFile,
		Compression:     string(fs.CompressionNone),
		Parts:           DefaultParts,
		PagesDelta:      1,
		Workers:         1,
		PollInterval:    5 * time.Second,
		ReportTimeout:   30 * time.Minute,
		OracleDelay:     500 * time.Millisecond,
		HTTPTimeout:     eagleweb.DefaultHTTPTimeout,
		RetryPasses:     3,
		RetryAttempts:   5,
		RetryBackoff:    time.Second,
		RetryMaxBackoff: 30 * time.Second,
		TemplateID:      eagleweb.DefaultTemplateID,
		LogLevel:        "info",
		LogFormat:       "console",
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	c.Tenant = strings.TrimSpace(c.Tenant)
	if c.Tenant == "" {
		return fmt.Errorf("tenant is required")
	}
	if strings.ContainsAny(c.Tenant, `/\`) || c.Tenant == "." || c.Tenant == ".." {
		return fmt.Errorf("tenant %q is not a valid directory name", c.Tenant)
	}

	// An empty site URL selects the known site for the tenant.
	c.SiteURL = strings.TrimRight(c.SiteURL, "/")

	if c.DownloadDir == "" {
		c.DownloadDir = DefaultDownloadDir
	}
	if c.ExportFile == "" {
		c.ExportFile = DefaultExportFile
	}
	if filepath.Base(c.ExportFile) != c.ExportFile {
		return fmt.Errorf("export file %q must be a file name", c.ExportFile)
	}
	comp, err := fs.ParseCompression(c.Compression)
	if err != nil {
		return err
	}
	c.Compression = string(comp)

	if c.Parts < 1 {
		return fmt.Errorf("parts must be at least 1")
	}
	if c.PagesDelta < 0 {
		return fmt.Errorf("pages delta must not be negative")
	}
	if c.InitialSpan < 0 {
		return fmt.Errorf("initial span must not be negative")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.ReportTimeout <= 0 {
		return fmt.Errorf("report timeout must be positive")
	}
	if c.OracleDelay <= 0 {
		return fmt.Errorf("oracle delay must be positive")
	}
	if c.RoundWait < 0 {
		return fmt.Errorf("round wait must not be negative")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1")
	}
	if c.RetryPasses < 0 {
		return fmt.Errorf("retry passes must not be negative")
	}
	if c.RetryMaxBackoff < c.RetryBackoff {
		c.RetryMaxBackoff = c.RetryBackoff
	}
	return nil
}

// TenantDir is the per-tenant directory under DownloadDir.
func (c Config) TenantDir() string {
	return filepath.Join(c.DownloadDir, c.Tenant)
}

// PartsDir holds the part files of the tenant.
func (c Config) PartsDir() string {
	return filepath.Join(c.TenantDir(), partsSubdir)
}

// ExportPath is the merged export location, before any compression suffix.
func (c Config) ExportPath() string {
	return filepath.Join(c.TenantDir(), c.ExportFile)
}

// Logger builds the process logger from LogLevel and LogFormat.
func (c Config) Logger() *log.ZerologAdapter {
	return log.New(log.Options{Level: c.LogLevel, Format: c.LogFormat})
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setIntPtr sets an int value from a pointer, zero included.
func (s *configSetter) setIntPtr(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings. Values below floor
// are ignored.
func (s *configSetter) setIntFromString(flag, value string, floor int, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i < floor {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}

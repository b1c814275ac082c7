package harvester

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bft-labs/harvester/internal/adapters/eagleweb"
	"github.com/bft-labs/harvester/internal/adapters/fs"
	"github.com/bft-labs/harvester/internal/app"
	"github.com/bft-labs/harvester/internal/domain"
)

// Config holds the settings of one tenant's download.
//
// PagesDelta, InitialSpan, RoundWait and RetryPasses take zero literally.
// Other zero values are replaced by SetDefaults.
type Config struct {
	// Tenant names the county. It selects the site and the download subdirectory.
	Tenant string

	// SiteURL may contain {tenant}. Empty uses the known site for the
	// tenant or the default URL pattern.
	SiteURL    string
	TemplateID string
	UserAgent  string

	DownloadDir string
	ExportFile  string
	Compression string

	// PublishURL is a gocloud.dev bucket URL. Empty disables publishing.
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
}

// DefaultConfig returns a Config with the default tuning and no tenant.
func DefaultConfig() Config {
	cfg := Config{
		PagesDelta:  1,
		RetryPasses: app.DefaultRetryPasses,
	}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills zero values that have no literal meaning.
func (c *Config) SetDefaults() {
	if c.DownloadDir == "" {
		c.DownloadDir = "harvester-downloads"
	}
	if c.ExportFile == "" {
		c.ExportFile = "accounts.csv"
	}
	if c.Parts <= 0 {
		c.Parts = app.DefaultDesiredParts
	}
	if c.Workers <= 0 {
		c.Workers = app.DefaultDownloadWorkers
	}
	if c.OracleDelay <= 0 {
		c.OracleDelay = app.DefaultOracleDelay
	}
	if c.PollInterval <= 0 {
		c.PollInterval = app.DefaultPollInterval
	}
	if c.ReportTimeout <= 0 {
		c.ReportTimeout = app.DefaultReportTimeout
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = eagleweb.DefaultHTTPTimeout
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = app.DefaultRetryAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = app.DefaultBackoffInitial
	}
	if c.RetryMaxBackoff <= 0 {
		c.RetryMaxBackoff = app.DefaultBackoffMax
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Tenant) == "" {
		return fmt.Errorf("tenant is required")
	}
	if strings.ContainsAny(c.Tenant, `/\`) {
		return fmt.Errorf("tenant %q is not a valid directory name", c.Tenant)
	}
	if c.PagesDelta < 0 || c.InitialSpan < 0 || c.RetryPasses < 0 {
		return fmt.Errorf("pages delta, initial span and retry passes must not be negative")
	}
	if c.RoundWait < 0 {
		return fmt.Errorf("round wait must not be negative")
	}
	if c.OracleDelay <= 0 {
		return fmt.Errorf("oracle delay must be positive")
	}
	if _, err := fs.ParseCompression(c.Compression); err != nil {
		return err
	}
	return nil
}

// TenantDir is the per-tenant directory under DownloadDir.
func (c Config) TenantDir() string {
	return filepath.Join(c.DownloadDir, c.Tenant)
}

// PartsDir holds the tenant's part files.
func (c Config) PartsDir() string {
	return filepath.Join(c.TenantDir(), "parts")
}

func (c Config) siteConfig() eagleweb.Config {
	site := eagleweb.DefaultConfig()
	if c.TemplateID != "" {
		site.TemplateID = c.TemplateID
	}
	site = site.ForTenant(domain.Tenant{Name: c.Tenant})
	if c.SiteURL != "" {
		site.SiteURL = c.SiteURL
	}
	site.UserAgent = c.UserAgent
	site.Timeout = c.HTTPTimeout
	return site
}

func (c Config) retryPolicy() app.RetryPolicy {
	return app.RetryPolicy{
		MaxAttempts: c.RetryAttempts,
		Initial:     c.RetryBackoff,
		Max:         c.RetryMaxBackoff,
	}
}

package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/oadoi/internal/harvest"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "oadoi"

	// DefaultTimeout bounds one landing-page request. Publisher sites
	// behind redirect chains and bot walls are slow, so it is generous.
	DefaultTimeout = 30 * time.Second

	// DefaultHarvestTimeout bounds one OAI-PMH page request. Large feeds
	// build their pages lazily and regularly take minutes.
	DefaultHarvestTimeout = harvest.DefaultRequestTimeout

	// DefaultBatchSize is the number of works recalculated concurrently.
	DefaultBatchSize = 10

	// DefaultUnitTimeout is how long a batch waits for one work.
	DefaultUnitTimeout = 10 * time.Minute

	// DefaultChunkSize is the number of harvested records per commit.
	DefaultChunkSize = harvest.DefaultChunkSize

	// DefaultUserAgent identifies oadoi in HTTP requests.
	DefaultUserAgent = "oadoi/1.0 (+https://github.com/nao1215/oadoi)"

	// DefaultMaxBodySize limits how much of a landing page is read.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB
)

// Config holds all configuration options for oadoi. It is populated from
// CLI flags and the configuration file and passed down explicitly.
type Config struct {
	// Timeout is the per-request timeout of the landing-page scraper.
	Timeout time.Duration

	// HarvestTimeout is the per-request timeout of the OAI-PMH client.
	HarvestTimeout time.Duration

	// Verbose enables debug logging.
	Verbose bool

	// BatchSize is the number of works recalculated concurrently.
	BatchSize int

	// UnitTimeout bounds the recalculation of one work in a batch.
	UnitTimeout time.Duration

	// ChunkSize is the number of harvested records committed at once.
	ChunkSize int

	// ConfigFilePath is the path to the configuration file. When empty,
	// FindConfigFile searches the default locations.
	ConfigFilePath string

	// File holds the settings loaded from the configuration file. It is
	// never nil after NewConfig.
	File *File

	// JSONReport, MarkdownReport and CSVReport select the output format.
	// At most one may be set; the default is a plain text table.
	JSONReport     bool
	MarkdownReport bool
	CSVReport      bool

	// ReportFile is the output file path. When empty, output goes to stdout.
	ReportFile string

	// Targets is the list of DOIs to resolve.
	Targets []string

	// DBDir is the directory holding the SQLite database.
	// Defaults to the XDG data directory (~/.local/share/oadoi on Linux).
	DBDir string

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum landing-page size in bytes. Zero selects
	// the default.
	MaxBodySize int64

	// GreenScrape allows the green probe to scrape never-matched
	// repository records.
	GreenScrape bool

	// Hybrid refreshes the landing-page snapshot before recalculating.
	Hybrid bool

	// ProxyURL is the fixed egress proxy for feeds that require it.
	// Read from OADOI_STATIC_IP_PROXY by LoadEnv.
	ProxyURL string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Timeout:        DefaultTimeout,
		HarvestTimeout: DefaultHarvestTimeout,
		BatchSize:      DefaultBatchSize,
		UnitTimeout:    DefaultUnitTimeout,
		ChunkSize:      DefaultChunkSize,
		File:           &File{},
		DBDir:          XDGDataDir(),
		UserAgent:      DefaultUserAgent,
		MaxBodySize:    DefaultMaxBodySize,
		GreenScrape:    true,
	}
}

// LoadEnv fills the settings that come from the environment. Values
// already set are kept.
func (c *Config) LoadEnv() {
	if c.ProxyURL == "" {
		c.ProxyURL = os.Getenv(harvest.ProxyEnv)
	}
}

// XDGDataDir returns the XDG data directory for oadoi.
// On Linux: ~/.local/share/oadoi
// On macOS: ~/Library/Application Support/oadoi
// On Windows: %LOCALAPPDATA%\oadoi
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for oadoi.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGStateDir returns the XDG state directory for oadoi. Harvest lock
// files live there.
func XDGStateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// Validate checks the settings shared by every command and returns the
// first problem found.
func (c *Config) Validate() error {
	if c.Timeout <= 0 || c.HarvestTimeout <= 0 || c.UnitTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.ChunkSize <= 0 {
		return ErrInvalidChunkSize
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	formats := 0
	for _, set := range []bool{c.JSONReport, c.MarkdownReport, c.CSVReport} {
		if set {
			formats++
		}
	}
	if formats > 1 {
		return ErrConflictingReportFormats
	}

	if c.File != nil {
		if err := c.File.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateTargets validates the configuration of commands that work on
// a list of DOIs.
func (c *Config) ValidateTargets() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	return c.Validate()
}

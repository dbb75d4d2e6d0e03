package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/wavecrawl/internal/crawler"
	"github.com/nao1215/wavecrawl/internal/export"
	"github.com/nao1215/wavecrawl/internal/model"
	"github.com/nao1215/wavecrawl/internal/transport"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "wavecrawl"

	// DefaultVisitLimit caps the number of visits per domain.
	DefaultVisitLimit = crawler.DefaultVisitLimit

	// DefaultWorkers is the number of workers per wave.
	DefaultWorkers = crawler.DefaultWorkers

	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = crawler.DefaultRequestTimeout

	// DefaultCooldown is how long a worker sleeps after a timeout or a
	// throttling response.
	DefaultCooldown = crawler.DefaultCooldown

	// DefaultBatchSize is the number of domains crawled concurrently.
	// Each domain already runs DefaultWorkers requests at once.
	DefaultBatchSize = 2

	// DefaultUserAgent identifies the crawler in HTTP requests.
	DefaultUserAgent = crawler.DefaultUserAgent

	// DefaultMaxBodySize limits the response body size read per page.
	DefaultMaxBodySize = model.MaxBodySize

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = transport.DefaultTorStartupTimeout

	// DefaultFormat is the export format used when none is given.
	DefaultFormat = string(export.FormatText)
)

// Config holds all configuration options for wavecrawl.
// It is populated from CLI flags and the configuration file and passed
// down explicitly; there is no global configuration.
type Config struct {
	// Domains are the seed domains (or URLs) to crawl.
	Domains []string

	// VisitLimit is the maximum number of visits per domain. Successful and
	// invalid URLs both count.
	VisitLimit int

	// Workers is the number of concurrent workers per wave.
	Workers int

	// Greedy keeps parsed documents and response bodies of every page in
	// memory until the crawl ends, instead of only the extracted fields.
	Greedy bool

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// Cooldown is the pause after a timeout or a throttling response.
	Cooldown time.Duration

	// MaxRetries caps retries per URL; 0 retries forever.
	MaxRetries int

	// RateLimit is the request rate per second per domain; 0 disables it.
	RateLimit float64

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64

	// TargetSelector is a CSS selector; pages matching it are targets.
	TargetSelector string

	// TargetPatterns are URL path globs; pages matching one are targets.
	TargetPatterns []string

	// Verbose enables debug logging.
	Verbose bool

	// JSONLogs switches log output to JSON.
	JSONLogs bool

	// Format is the export format (text, csv, json, markdown).
	Format string

	// IncludeOthers adds non-target pages to the export.
	IncludeOthers bool

	// ReportFile is the export file path. When several domains are crawled
	// the domain is appended to the file name.
	ReportFile string

	// Tee also prints a text report to standard output when ReportFile is set.
	Tee bool

	// ConfigFilePath is the explicit configuration file path. When empty,
	// FindConfigFile searches the current directory, the XDG config
	// directory and the home directory.
	ConfigFilePath string

	// SiteConfigs holds the per-site settings loaded from the configuration file.
	SiteConfigs *File

	// ProxyAddress routes requests through a SOCKS5 proxy ("host:port").
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and crawls through it.
	UseTor bool

	// TorStartupTimeout bounds the bootstrap of the embedded Tor daemon.
	TorStartupTimeout time.Duration

	// InsecureTLS disables certificate verification.
	InsecureTLS bool

	// DBDir is the directory of the results database.
	DBDir string

	// SaveToDB stores results in the database.
	SaveToDB bool

	// SkipRecent skips domains crawled within this duration; 0 disables it.
	// Requires SaveToDB.
	SkipRecent time.Duration

	// BatchSize is the number of domains crawled concurrently.
	BatchSize int
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		VisitLimit:        DefaultVisitLimit,
		Workers:           DefaultWorkers,
		Timeout:           DefaultTimeout,
		Cooldown:          DefaultCooldown,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
		Format:            DefaultFormat,
		TorStartupTimeout: DefaultTorStartupTimeout,
		BatchSize:         DefaultBatchSize,
		DBDir:             XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for wavecrawl.
// On Linux: ~/.local/share/wavecrawl
// On macOS: ~/Library/Application Support/wavecrawl
// On Windows: %LOCALAPPDATA%\wavecrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for wavecrawl.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Site returns the settings for domain: the file defaults merged with the
// site entry, and the global visit limit and workers where the file sets
// none.
func (c *Config) Site(domain string) SiteConfig {
	var site SiteConfig
	if c.SiteConfigs != nil {
		site = c.SiteConfigs.GetSiteConfig(domain)
	}
	if site.VisitLimit == 0 {
		site.VisitLimit = c.VisitLimit
	}
	if site.Workers == 0 {
		site.Workers = c.Workers
	}
	if site.TargetSelector == "" {
		site.TargetSelector = c.TargetSelector
	}
	if len(site.TargetPatterns) == 0 {
		site.TargetPatterns = c.TargetPatterns
	}
	return site
}

// Validate checks if the configuration is valid and returns the first
// problem found as a sentinel error.
func (c *Config) Validate() error {
	if len(c.Domains) == 0 {
		return ErrNoDomain
	}
	for _, d := range c.Domains {
		if _, err := model.NormalizeURL(d); err != nil {
			return ErrInvalidDomain
		}
	}
	if c.VisitLimit <= 0 {
		return ErrInvalidVisitLimit
	}
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Cooldown < 0 {
		return ErrInvalidCooldown
	}
	if c.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	if c.RateLimit < 0 {
		return ErrInvalidRateLimit
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if !validFormat(c.Format) {
		return ErrInvalidFormat
	}
	if c.UseTor && c.ProxyAddress != "" {
		return ErrConflictingTransports
	}
	if c.SkipRecent > 0 && !c.SaveToDB {
		return ErrSkipRecentWithoutDB
	}
	return nil
}

func validFormat(format string) bool {
	if format == "md" {
		return true
	}
	for _, f := range export.Formats {
		if string(f) == format {
			return true
		}
	}
	return false
}

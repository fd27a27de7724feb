package model

import (
	"fmt"
	"strings"
	"time"
)

// Store backends
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Config holds all boardharvest settings
type Config struct {
	Boards  []string      `yaml:"boards" mapstructure:"boards"`
	API     APIConfig     `yaml:"api" mapstructure:"api"`
	HTTP    HTTPConfig    `yaml:"http" mapstructure:"http"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Harvest HarvestConfig `yaml:"harvest" mapstructure:"harvest"`
	Enrich  EnrichConfig  `yaml:"enrich" mapstructure:"enrich"`
	Fields  FieldsConfig  `yaml:"fields" mapstructure:"fields"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// APIConfig describes the remote content API
type APIConfig struct {
	ListingURL string `yaml:"listing_url" mapstructure:"listing_url"` // Paginated listing endpoint
	DetailURL  string `yaml:"detail_url" mapstructure:"detail_url"`   // Prefix of per-item detail endpoints
	Key        string `yaml:"key" mapstructure:"key"`                 // Sent verbatim as the Authorization header
}

// HTTPConfig contains HTTP client settings shared by both stages
type HTTPConfig struct {
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"` // Per listing request
	UserAgent         string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	InsecureTLS       bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	HTTPProxy         string        `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy        string        `yaml:"https_proxy" mapstructure:"https_proxy"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"` // 0 disables rate limiting
	Burst             int           `yaml:"burst" mapstructure:"burst"`
	RespectRobots     bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	HostLimits        []HostLimit   `yaml:"host_limits" mapstructure:"host_limits"` // Per-host overrides of the default rate
}

// HostLimit overrides the request rate for one host (host[:port] as it appears in the URL)
type HostLimit struct {
	Host              string  `yaml:"host" mapstructure:"host"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"` // 0 means unlimited
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// StoreConfig selects and locates the record store
type StoreConfig struct {
	Backend    string `yaml:"backend" mapstructure:"backend"`         // json or sqlite
	Dir        string `yaml:"dir" mapstructure:"dir"`                 // JSON documents, one per board
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"` // Shared database for all boards
}

// HarvestConfig tunes the listing harvester
type HarvestConfig struct {
	StopThreshold   int           `yaml:"stop_threshold" mapstructure:"stop_threshold"`
	OldPrefix       string        `yaml:"old_prefix" mapstructure:"old_prefix"` // Timestamp prefix marking old items
	OldBefore       string        `yaml:"old_before" mapstructure:"old_before"` // Cutoff date; overrides OldPrefix when set
	CheckpointPages int           `yaml:"checkpoint_pages" mapstructure:"checkpoint_pages"`
	MaxAttempts     int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
	Parallel        int           `yaml:"parallel" mapstructure:"parallel"` // Boards processed concurrently
}

// EnrichConfig tunes the detail enricher
type EnrichConfig struct {
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"` // Per detail request
	MaxAttempts     int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
	CheckpointEvery int           `yaml:"checkpoint_every" mapstructure:"checkpoint_every"`
	Workers         int           `yaml:"workers" mapstructure:"workers"`
}

// FieldsConfig holds the field inclusion sets
type FieldsConfig struct {
	Post    FieldSet `yaml:"post" mapstructure:"post"`
	Comment FieldSet `yaml:"comment" mapstructure:"comment"`
}

// CacheConfig configures the detail response cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	TTL       time.Duration `yaml:"ttl" mapstructure:"ttl"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
}

// LogConfig configures the slog handler
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // text or json
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			ListingURL: "https://moptt.azurewebsites.net/api/v2/hotpost",
			DetailURL:  "https://moptt.tw/ptt/",
		},
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			UserAgent:    "boardharvest/0.3 (+https://github.com/ppiankov/boardharvest)",
			MaxBodyBytes: 16 << 20,
			Burst:        5,
		},
		Store: StoreConfig{
			Backend:    BackendJSON,
			Dir:        "data",
			SQLitePath: "data/boardharvest.db",
		},
		Harvest: HarvestConfig{
			StopThreshold:   5,
			OldPrefix:       "2023-12",
			CheckpointPages: 100,
			MaxAttempts:     1,
			RetryDelay:      time.Second,
			Parallel:        1,
		},
		Enrich: EnrichConfig{
			Timeout:         3 * time.Second,
			MaxAttempts:     3,
			RetryDelay:      time.Second,
			CheckpointEvery: 100,
			Workers:         1,
		},
		Fields: FieldsConfig{
			Post:    DefaultPostFields(),
			Comment: DefaultCommentFields(),
		},
		Cache: CacheConfig{
			Enabled:   false,
			Dir:       "data/cache",
			TTL:       24 * time.Hour,
			MemoryTTL: 10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// OldBeforeLayouts are the accepted formats for HarvestConfig.OldBefore
var OldBeforeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a source or config timestamp using OldBeforeLayouts
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range OldBeforeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Validate checks settings that would otherwise fail deep inside a run
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.ListingURL) == "" {
		return fmt.Errorf("api.listing_url is required")
	}
	if strings.TrimSpace(c.API.DetailURL) == "" {
		return fmt.Errorf("api.detail_url is required")
	}
	switch c.Store.Backend {
	case BackendJSON:
		if c.Store.Dir == "" {
			return fmt.Errorf("store.dir is required for the json backend")
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q (want %s or %s)", c.Store.Backend, BackendJSON, BackendSQLite)
	}
	if c.Harvest.StopThreshold < 1 {
		return fmt.Errorf("harvest.stop_threshold must be >= 1, got %d", c.Harvest.StopThreshold)
	}
	if c.Harvest.CheckpointPages < 1 {
		return fmt.Errorf("harvest.checkpoint_pages must be >= 1, got %d", c.Harvest.CheckpointPages)
	}
	if c.Harvest.MaxAttempts < 1 {
		return fmt.Errorf("harvest.max_attempts must be >= 1, got %d", c.Harvest.MaxAttempts)
	}
	if c.Harvest.OldBefore != "" {
		if _, err := ParseTimestamp(c.Harvest.OldBefore); err != nil {
			return fmt.Errorf("harvest.old_before: %w", err)
		}
	} else if c.Harvest.OldPrefix == "" {
		return fmt.Errorf("one of harvest.old_prefix or harvest.old_before is required")
	}
	if c.Enrich.MaxAttempts < 1 {
		return fmt.Errorf("enrich.max_attempts must be >= 1, got %d", c.Enrich.MaxAttempts)
	}
	if c.Enrich.CheckpointEvery < 1 {
		return fmt.Errorf("enrich.checkpoint_every must be >= 1, got %d", c.Enrich.CheckpointEvery)
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	for i, hl := range c.HTTP.HostLimits {
		if strings.TrimSpace(hl.Host) == "" {
			return fmt.Errorf("http.host_limits[%d].host is required", i)
		}
		if hl.RequestsPerSecond < 0 {
			return fmt.Errorf("http.host_limits[%d].requests_per_second must be >= 0", i)
		}
	}
	return nil
}

package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/Norgate-AV/outcache/internal/compress"
	"github.com/Norgate-AV/outcache/internal/store/local"
)

// Default configuration values
const (
	DefaultCacheDir    = local.DefaultDir
	DefaultCompression = "gzip"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "auto"
	DefaultDebugKeys   = false
	DefaultSkipEmpty   = false
	DefaultMetrics     = false
	DefaultVerbose     = false
)

// DefaultJobs is the default number of work units processed at once
var DefaultJobs = runtime.NumCPU()

// Holds the configuration options for outcache
type Config struct {
	// Directory of the local cache store
	CacheDir string

	// Compression chain applied to archives (e.g. "gzip", "zstd", "none")
	Compression string
	// Parsed compression chain
	Codec compress.Codec

	// Minimum log level (debug, info, warn, error)
	LogLevel string
	// Parsed log level
	Level slog.Level

	// Log output format (auto, text, json)
	LogFormat string

	// Log every component of each cache key
	DebugKeys bool

	// Number of work units processed at once
	Jobs int

	// Do not store entries that carry no outputs
	SkipEmpty bool

	// Export metrics to stderr on exit
	Metrics bool

	// Enable verbose output
	Verbose bool
}

func Load() (*Config, error) {
	cfg := &Config{
		CacheDir:    viper.GetString("cache_dir"),
		Compression: viper.GetString("compression"),
		LogLevel:    viper.GetString("log_level"),
		LogFormat:   viper.GetString("log_format"),
		DebugKeys:   viper.GetBool("debug_keys"),
		Jobs:        viper.GetInt("jobs"),
		SkipEmpty:   viper.GetBool("skip_empty"),
		Metrics:     viper.GetBool("metrics"),
		Verbose:     viper.GetBool("verbose"),
	}

	// Apply defaults if not set
	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultCacheDir
	}

	if cfg.Compression == "" {
		cfg.Compression = DefaultCompression
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = DefaultLogFormat
	}

	if cfg.Jobs == 0 {
		cfg.Jobs = DefaultJobs
	}

	// Verbose implies debug logging
	if cfg.Verbose {
		cfg.LogLevel = "debug"
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	// Resolve cache directory
	abs, err := filepath.Abs(c.CacheDir)
	if err != nil {
		return fmt.Errorf("invalid cache directory: %v", err)
	}

	c.CacheDir = abs

	codec, err := compress.Parse(c.Compression)
	if err != nil {
		return fmt.Errorf("invalid compression: %w", err)
	}

	c.Codec = codec

	if err := c.Level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	if !isValidLogFormat(c.LogFormat) {
		return fmt.Errorf("invalid log format: %s", c.LogFormat)
	}

	if c.Jobs < 1 {
		return fmt.Errorf("invalid jobs: %d", c.Jobs)
	}

	return nil
}

func isValidLogFormat(format string) bool {
	switch strings.ToLower(format) {
	case "auto", "text", "json":
		return true
	default:
		return false
	}
}

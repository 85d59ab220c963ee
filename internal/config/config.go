package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Config holds process-level configuration values. Runtime settings that the
// dashboard can edit (site credentials, schedule, email transport) live in the
// settings store instead, so edits take effect without a restart.
type Config struct {
	// Logging
	LogLevel string
	JSONLog  bool

	// HTTP server
	ListenAddr string
	APIKey     string

	// Storage
	DBPath string

	// Browser
	UserAgent       string
	ChromePath      string
	Headless        bool
	NavTimeout      time.Duration
	SelectorTimeout time.Duration

	// Session lifecycle
	BrowserRestartAge time.Duration
	LoginTimeout      time.Duration
	LoginGrace        time.Duration

	// Orchestrator
	TickInterval    time.Duration
	DefaultInterval time.Duration

	// Image proxy
	ProxyRateRPS      float64
	ProxyRateBurst    int
	CacheTTL          time.Duration
	CacheMaxSizeBytes int64
}

// Default returns a Config populated with the default values only, without
// consulting the environment or CLI flags.
func Default() *Config {
	return &Config{
		LogLevel:          DefaultLogLevel,
		JSONLog:           DefaultJSONLog,
		ListenAddr:        DefaultListenAddr,
		DBPath:            DefaultDBPath,
		UserAgent:         DefaultUserAgent,
		Headless:          DefaultHeadless,
		NavTimeout:        DefaultNavTimeout,
		SelectorTimeout:   DefaultSelectorTimeout,
		BrowserRestartAge: DefaultBrowserRestartAge,
		LoginTimeout:      DefaultLoginTimeout,
		LoginGrace:        DefaultLoginGrace,
		TickInterval:      DefaultTickInterval,
		DefaultInterval:   DefaultCheckInterval,
		ProxyRateRPS:      DefaultProxyRateRPS,
		ProxyRateBurst:    DefaultProxyRateBurst,
		CacheTTL:          DefaultCacheTTL,
		CacheMaxSizeBytes: DefaultCacheMaxSizeBytes,
	}
}

// Load builds a Config by combining defaults, an optional .env file,
// environment variables, and CLI flags. Caller should pass the root
// *cobra.Command so flags can be read.
func Load(cmd *cobra.Command) (*Config, error) {
	// Best effort: a missing .env file is not an error.
	_ = godotenv.Load()

	cfg := Default()

	// Override from environment variables
	if v := os.Getenv("MARKTWATCH_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("MARKTWATCH_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("MARKTWATCH_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("MARKTWATCH_USER_AGENT"); v != "" {
		cfg.UserAgent = v
	}
	if v := os.Getenv("MARKTWATCH_CHROME_PATH"); v != "" {
		cfg.ChromePath = v
	}
	if v := os.Getenv("MARKTWATCH_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Headless = b
		}
	}

	// Read CLI flags if provided
	if cmd != nil {
		if f := cmd.Flags().Lookup("addr"); f != nil {
			if s := f.Value.String(); s != "" {
				cfg.ListenAddr = s
			}
		}
		if f := cmd.Flags().Lookup("db"); f != nil {
			if s := f.Value.String(); s != "" {
				cfg.DBPath = s
			}
		}
		if f := cmd.Flags().Lookup("timeout"); f != nil {
			if s := f.Value.String(); s != "" {
				if d, err := time.ParseDuration(s); err == nil {
					cfg.NavTimeout = d
				}
			}
		}
		if f := cmd.Flags().Lookup("json"); f != nil {
			if f.Value.String() == "true" {
				cfg.JSONLog = true
			}
		}
		if f := cmd.Flags().Lookup("verbose"); f != nil {
			if f.Value.String() == "true" {
				cfg.LogLevel = "debug"
			}
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

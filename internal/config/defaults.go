package config

import "time"

// Default constants for application configuration
const (
	DefaultLogLevel          = "info"
	DefaultJSONLog           = false
	DefaultListenAddr        = ":8080"
	DefaultDBPath            = "marktwatch.db"
	DefaultUserAgent         = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultHeadless          = true
	DefaultNavTimeout        = 60 * time.Second
	DefaultSelectorTimeout   = 30 * time.Second
	DefaultBrowserRestartAge = 12 * time.Hour
	DefaultLoginTimeout      = 24 * time.Hour
	DefaultLoginGrace        = 10 * time.Minute
	DefaultTickInterval      = 1 * time.Second
	DefaultCheckInterval     = 5 * time.Minute
	DefaultProxyRateRPS      = 5.0
	DefaultProxyRateBurst    = 10
	DefaultCacheTTL          = 24 * time.Hour
	DefaultCacheMaxSizeBytes = 100 * 1024 * 1024 // 100MB
)

package config

import "fmt"

func validate(c *Config) error {
	if c.NavTimeout <= 0 {
		return fmt.Errorf("navigation timeout must be > 0")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be > 0")
	}
	if c.DefaultInterval <= 0 {
		return fmt.Errorf("default check interval must be > 0")
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.CacheMaxSizeBytes <= 0 {
		return fmt.Errorf("cache max size must be > 0")
	}
	return nil
}

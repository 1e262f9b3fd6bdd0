package config

import "time"

// TestConfig returns a config suitable for testing: no local store, short
// timeouts and local endpoints allowed.
func TestConfig() *Config {
	cfg := defaultConfig()
	cfg.Database = DatabaseConfig{
		Timeout: 100 * time.Millisecond,
	}
	cfg.Log = LogConfig{Level: "off"}
	cfg.Cache = CacheConfig{
		SectionTimeout: 2 * time.Second,
		InfoCacheSize:  16,
	}
	cfg.Providers = ProvidersConfig{
		ManifestTimeout: 2 * time.Second,
		HTTPTimeout:     2 * time.Second,
		UserAgent:       "lectern-test/1.0",
		AllowPrivate:    true,
	}
	return cfg
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Search    SearchConfig    `mapstructure:"search"`
	Server    ServerConfig    `mapstructure:"server"`
	Media     MediaConfig     `mapstructure:"media"`
	UI        UIConfig        `mapstructure:"ui"`
}

type DatabaseConfig struct {
	Path      string        `mapstructure:"path"`
	Timeout   time.Duration `mapstructure:"timeout"`
	BundleDir string        `mapstructure:"bundle_dir"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

type CacheConfig struct {
	SectionTimeout time.Duration `mapstructure:"section_timeout"`
	InfoCacheSize  int           `mapstructure:"info_cache_size"`
}

type ProvidersConfig struct {
	ManifestTimeout time.Duration `mapstructure:"manifest_timeout"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
	// AllowPrivate admits localhost and private network endpoints
	AllowPrivate bool             `mapstructure:"allow_private"`
	Local        bool             `mapstructure:"local"`
	Remote       []EndpointConfig `mapstructure:"remote"`
	Commentary   []EndpointConfig `mapstructure:"commentary"`
	Audio        []FeedConfig     `mapstructure:"audio"`
}

type EndpointConfig struct {
	Name    string `mapstructure:"name"`
	BaseURL string `mapstructure:"base_url"`
}

type FeedConfig struct {
	Name    string `mapstructure:"name"`
	FeedURL string `mapstructure:"feed_url"`
}

type SearchConfig struct {
	ContextTokens int  `mapstructure:"context_tokens"`
	DefaultLimit  int  `mapstructure:"default_limit"`
	Ranked        bool `mapstructure:"ranked"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type MediaConfig struct {
	AudioPlayers []string `mapstructure:"audio_players"`
}

type UIConfig struct {
	Colors   UIColors `mapstructure:"colors"`
	WordWrap int      `mapstructure:"word_wrap"`
}

type UIColors struct {
	Primary string `mapstructure:"primary"`
	Accent  string `mapstructure:"accent"`
	Muted   string `mapstructure:"muted"`
	Error   string `mapstructure:"error"`
	Success string `mapstructure:"success"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".lectern")

	return &Config{
		Database: DatabaseConfig{
			Path:      filepath.Join(dataDir, "lectern.db"),
			Timeout:   1 * time.Second,
			BundleDir: filepath.Join(dataDir, "bundles"),
		},
		Log: LogConfig{
			Level: "off",
			Path:  filepath.Join(dataDir, "lectern.log"),
		},
		Cache: CacheConfig{
			SectionTimeout: 20 * time.Second,
			InfoCacheSize:  256,
		},
		Providers: ProvidersConfig{
			ManifestTimeout: 15 * time.Second,
			HTTPTimeout:     30 * time.Second,
			UserAgent:       "lectern/1.0 (https://github.com/pders01/lectern)",
			Local:           true,
		},
		Search: SearchConfig{
			ContextTokens: 5,
			DefaultLimit:  50,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:7878",
			ShutdownTimeout: 5 * time.Second,
		},
		Media: MediaConfig{
			AudioPlayers: []string{"mpv", "vlc", "ffplay"},
		},
		UI: UIConfig{
			Colors: UIColors{
				Primary: "#FF6B6B",
				Accent:  "#4ECDC4",
				Muted:   "#94A3B8",
				Error:   "#F87171",
				Success: "#4ADE80",
			},
			WordWrap: 100,
		},
	}
}

// setDefaults registers every scalar key so that a config file or an
// environment variable may override any single one of them.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("database.timeout", cfg.Database.Timeout)
	v.SetDefault("database.bundle_dir", cfg.Database.BundleDir)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.path", cfg.Log.Path)

	v.SetDefault("cache.section_timeout", cfg.Cache.SectionTimeout)
	v.SetDefault("cache.info_cache_size", cfg.Cache.InfoCacheSize)

	v.SetDefault("providers.manifest_timeout", cfg.Providers.ManifestTimeout)
	v.SetDefault("providers.http_timeout", cfg.Providers.HTTPTimeout)
	v.SetDefault("providers.user_agent", cfg.Providers.UserAgent)
	v.SetDefault("providers.allow_private", cfg.Providers.AllowPrivate)
	v.SetDefault("providers.local", cfg.Providers.Local)

	v.SetDefault("search.context_tokens", cfg.Search.ContextTokens)
	v.SetDefault("search.default_limit", cfg.Search.DefaultLimit)
	v.SetDefault("search.ranked", cfg.Search.Ranked)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)

	v.SetDefault("media.audio_players", cfg.Media.AudioPlayers)

	v.SetDefault("ui.colors.primary", cfg.UI.Colors.Primary)
	v.SetDefault("ui.colors.accent", cfg.UI.Colors.Accent)
	v.SetDefault("ui.colors.muted", cfg.UI.Colors.Muted)
	v.SetDefault("ui.colors.error", cfg.UI.Colors.Error)
	v.SetDefault("ui.colors.success", cfg.UI.Colors.Success)
	v.SetDefault("ui.word_wrap", cfg.UI.WordWrap)
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v, defaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		homeDir, _ := os.UserHomeDir()
		configDir := filepath.Join(homeDir, ".config", "lectern")

		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("LECTERN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand paths after loading
	expandPaths(&config)

	return &config, nil
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" {
		return path
	}

	// Expand tilde
	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	// Convert to absolute path if not already absolute
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

// expandPaths expands all paths in the config
func expandPaths(cfg *Config) {
	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Database.BundleDir = expandPath(cfg.Database.BundleDir)
	cfg.Log.Path = expandPath(cfg.Log.Path)
}

func Save(config *Config, path string) error {
	v := viper.New()

	// Convert durations to strings for TOML readability
	v.Set("database", map[string]any{
		"path":       config.Database.Path,
		"timeout":    config.Database.Timeout.String(),
		"bundle_dir": config.Database.BundleDir,
	})
	v.Set("log", map[string]any{
		"level": config.Log.Level,
		"path":  config.Log.Path,
	})
	v.Set("cache", map[string]any{
		"section_timeout": config.Cache.SectionTimeout.String(),
		"info_cache_size": config.Cache.InfoCacheSize,
	})

	providers := map[string]any{
		"manifest_timeout": config.Providers.ManifestTimeout.String(),
		"http_timeout":     config.Providers.HTTPTimeout.String(),
		"user_agent":       config.Providers.UserAgent,
		"allow_private":    config.Providers.AllowPrivate,
		"local":            config.Providers.Local,
	}
	if len(config.Providers.Remote) > 0 {
		providers["remote"] = endpointMaps(config.Providers.Remote)
	}
	if len(config.Providers.Commentary) > 0 {
		providers["commentary"] = endpointMaps(config.Providers.Commentary)
	}
	if len(config.Providers.Audio) > 0 {
		feeds := make([]map[string]any, len(config.Providers.Audio))
		for i, f := range config.Providers.Audio {
			feeds[i] = map[string]any{"name": f.Name, "feed_url": f.FeedURL}
		}
		providers["audio"] = feeds
	}
	v.Set("providers", providers)

	v.Set("search", map[string]any{
		"context_tokens": config.Search.ContextTokens,
		"default_limit":  config.Search.DefaultLimit,
		"ranked":         config.Search.Ranked,
	})
	v.Set("server", map[string]any{
		"addr":             config.Server.Addr,
		"shutdown_timeout": config.Server.ShutdownTimeout.String(),
	})
	v.Set("media", map[string]any{
		"audio_players": config.Media.AudioPlayers,
	})
	v.Set("ui", map[string]any{
		"colors": map[string]any{
			"primary": config.UI.Colors.Primary,
			"accent":  config.UI.Colors.Accent,
			"muted":   config.UI.Colors.Muted,
			"error":   config.UI.Colors.Error,
			"success": config.UI.Colors.Success,
		},
		"word_wrap": config.UI.WordWrap,
	})

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return v.WriteConfigAs(path)
}

func endpointMaps(endpoints []EndpointConfig) []map[string]any {
	out := make([]map[string]any, len(endpoints))
	for i, e := range endpoints {
		out[i] = map[string]any{"name": e.Name, "base_url": e.BaseURL}
	}
	return out
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}

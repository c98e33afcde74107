package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                  = "DIVINE"
	defaultHTTPAddress         = "127.0.0.1:8686"
	defaultDatabasePath        = "divine-state.db"
	defaultLogLevel            = "info"
	defaultFeedPageSize        = 20
	defaultProfileCacheTTL     = 30 * time.Minute
	defaultProfileFetchTimeout = 8 * time.Second
	defaultPlayerInitTimeout   = 10 * time.Second
	defaultMaxClipDuration     = 140 * time.Second
)

// AppConfig captures runtime configuration for the state-layer harness.
type AppConfig struct {
	HTTPAddress         string
	DatabasePath        string
	LogLevel            string
	FeedPageSize        int
	ProfileCacheTTL     time.Duration
	ProfileFetchTimeout time.Duration
	PlayerInitTimeout   time.Duration
	MaxClipDuration     time.Duration
	ProofSigningKey     string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("feed.page_size", defaultFeedPageSize)
	configViper.SetDefault("profiles.cache_ttl", defaultProfileCacheTTL)
	configViper.SetDefault("profiles.fetch_timeout", defaultProfileFetchTimeout)
	configViper.SetDefault("playback.init_timeout", defaultPlayerInitTimeout)
	configViper.SetDefault("recording.max_clip_duration", defaultMaxClipDuration)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:         configViper.GetString("http.address"),
		DatabasePath:        configViper.GetString("database.path"),
		LogLevel:            configViper.GetString("log.level"),
		FeedPageSize:        configViper.GetInt("feed.page_size"),
		ProfileCacheTTL:     configViper.GetDuration("profiles.cache_ttl"),
		ProfileFetchTimeout: configViper.GetDuration("profiles.fetch_timeout"),
		PlayerInitTimeout:   configViper.GetDuration("playback.init_timeout"),
		MaxClipDuration:     configViper.GetDuration("recording.max_clip_duration"),
		ProofSigningKey:     configViper.GetString("proofs.signing_key"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.FeedPageSize <= 0 {
		return fmt.Errorf("feed.page_size must be positive")
	}
	if c.PlayerInitTimeout <= 0 {
		return fmt.Errorf("playback.init_timeout must be positive")
	}
	return nil
}

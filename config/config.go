// Package config loads feedgram settings from a TOML file and environment
// variables. The bot token is environment-only and never written to disk.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/scipunch/feedgram/filter"
)

const baseCfgPath = "feedgram/config.toml"

const (
	DefaultFeedURL             = "https://rss.app/feeds/OUYIM0VGlxqKueAS.xml"
	DefaultPollIntervalSeconds = 300
	DefaultInitialDelaySeconds = 10
	DefaultMaxMessageLength    = 4096
	DefaultSendPauseSeconds    = 1
)

// Config holds all runtime settings.
type Config struct {
	FeedURL             string       `toml:"feed_url"`
	PollIntervalSeconds int          `toml:"poll_interval_seconds"`
	InitialDelaySeconds int          `toml:"initial_delay_seconds"`
	MaxMessageLength    int          `toml:"max_message_length"`
	SendPauseSeconds    int          `toml:"send_pause_seconds"`
	StatePath           string       `toml:"state_path"` // ".db" suffix selects the SQLite backend
	Filter              filter.Rules `toml:"filter"`

	// Environment-only settings.
	BotToken string `toml:"-"`
	ChatID   int64  `toml:"-"`
}

// PollInterval returns the poll interval as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// InitialDelay returns the delay before the first poll.
func (c Config) InitialDelay() time.Duration {
	return time.Duration(c.InitialDelaySeconds) * time.Second
}

// SendPause returns the pause between successive sends.
func (c Config) SendPause() time.Duration {
	return time.Duration(c.SendPauseSeconds) * time.Second
}

// Read loads the config at path on top of the defaults.
func Read(path string) (Config, error) {
	conf := Default()
	dat, err := os.ReadFile(path)
	if err != nil {
		return conf, err
	}
	_, err = toml.Decode(string(dat), &conf)
	if err != nil {
		return conf, fmt.Errorf("failed to decode config at %s with %w", path, err)
	}
	return conf, nil
}

// Write stores the config as TOML, creating parent directories as needed.
func Write(cfgPath string, cfg Config) error {
	blob, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config with %w", err)
	}
	basePath := path.Dir(cfgPath)
	err = os.MkdirAll(basePath, os.ModePerm)
	if err != nil {
		return fmt.Errorf("failed to create base config directory at '%s' with %w", basePath, err)
	}
	err = os.WriteFile(cfgPath, blob, 0644)
	if err != nil {
		return fmt.Errorf("failed to write into config file at '%s' with %w", cfgPath, err)
	}
	slog.Info("config written", "at", cfgPath)
	return nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		FeedURL:             DefaultFeedURL,
		PollIntervalSeconds: DefaultPollIntervalSeconds,
		InitialDelaySeconds: DefaultInitialDelaySeconds,
		MaxMessageLength:    DefaultMaxMessageLength,
		SendPauseSeconds:    DefaultSendPauseSeconds,
		StatePath:           DefaultStatePath(),
	}
}

// FromEnv applies environment overrides on top of conf. Recognized
// variables: BOT_TOKEN, CHAT_ID, FEED_URL, POLL_INTERVAL_SECONDS,
// MAX_MESSAGE_LENGTH, STATE_PATH.
func FromEnv(conf Config) Config {
	conf.BotToken = os.Getenv("BOT_TOKEN")
	conf.ChatID = int64FromEnv("CHAT_ID", conf.ChatID)
	conf.FeedURL = stringFromEnv("FEED_URL", conf.FeedURL)
	conf.PollIntervalSeconds = intFromEnv("POLL_INTERVAL_SECONDS", conf.PollIntervalSeconds)
	conf.MaxMessageLength = intFromEnv("MAX_MESSAGE_LENGTH", conf.MaxMessageLength)
	conf.StatePath = stringFromEnv("STATE_PATH", conf.StatePath)
	return conf
}

// DefaultPath resolves the config file location under XDG_CONFIG_HOME.
func DefaultPath() string {
	var xdgHome = os.Getenv("XDG_CONFIG_HOME")
	if xdgHome != "" {
		return path.Join(xdgHome, baseCfgPath)
	}

	var home = os.Getenv("HOME")
	if home != "" {
		return path.Join(home, ".config", baseCfgPath)
	}

	panic("unclear where to search for the config file")
}

// DefaultStatePath resolves the sent-items file location under
// XDG_STATE_HOME.
func DefaultStatePath() string {
	var stateHome = os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		stateHome = path.Join(os.Getenv("HOME"), ".local/state")
	}
	return path.Join(stateHome, "feedgram", "sent_items.txt")
}

func stringFromEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intFromEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
		slog.Warn("invalid integer environment value, using default", "key", key, "value", v, "default", fallback)
	}
	return fallback
}

func int64FromEnv(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
		slog.Warn("invalid integer environment value, using default", "key", key, "value", v, "default", fallback)
	}
	return fallback
}

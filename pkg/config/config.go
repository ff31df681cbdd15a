package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	envConfigPath        = "DRIVEL_CONFIG"
	envNickname          = "DRIVEL_NICKNAME"
	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"
)

const (
	DefaultNickname        = "drivel"
	DefaultSigils          = "!$%@"
	DefaultGatewayHost     = "127.0.0.1"
	DefaultGatewayPort     = 18790
	DefaultQueueSize       = 100
	DefaultWebsocketPort   = 18791
	DefaultWebsocketPath   = "/ws"
	DefaultWebsocketDomain = "drivel.local"
	DefaultTranscriptPath  = "drivel.db"
)

// DefaultIgnoredBodies are server broadcasts dropped before dispatch.
var DefaultIgnoredBodies = []string{"This room is not anonymous."}

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Bot        BotConfig        `json:"bot"`
	Channels   ChannelsConfig   `json:"channels"`
	Catalog    CatalogConfig    `json:"catalog,omitempty"`
	Throttle   ThrottleConfig   `json:"throttle,omitempty"`
	Transcript TranscriptConfig `json:"transcript,omitempty"`
	Gateway    GatewayConfig    `json:"gateway"`
	Logging    LoggingConfig    `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
	// File redirects log output, used by the console channel which owns the
	// terminal.
	File string `json:"file,omitempty"`
}

// BotConfig describes the bot identity and command addressing rules.
type BotConfig struct {
	Nickname string `json:"nickname"`
	// Address is the bot's own address, used as the From of replies.
	Address               string   `json:"address,omitempty"`
	Sigils                string   `json:"sigils,omitempty"`
	CaseSensitive         bool     `json:"case_sensitive,omitempty"`
	RequirePrefixInDirect bool     `json:"require_prefix_in_direct,omitempty"`
	AllowBareInGroup      bool     `json:"allow_bare_in_group,omitempty"`
	DescribeFallback      string   `json:"describe_fallback,omitempty"`
	KeepDelayed           bool     `json:"keep_delayed,omitempty"`
	IgnoreBodies          []string `json:"ignore_bodies,omitempty"`
	DisableBuiltins       bool     `json:"disable_builtins,omitempty"`
	// Announce is sent to the AnnounceTo targets of a channel when it becomes
	// ready. Targets are written "channel:address", for example
	// "websocket:lobby@conference.drivel.local".
	Announce   string   `json:"announce,omitempty"`
	AnnounceTo []string `json:"announce_to,omitempty"`
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Websocket WebsocketConfig `json:"websocket"`
	Console   ConsoleConfig   `json:"console"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allow_from"`
}

// WebsocketConfig configures the websocket chat endpoint.
type WebsocketConfig struct {
	Enabled        bool     `json:"enabled"`
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	Path           string   `json:"path"`
	Domain         string   `json:"domain"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// ConsoleConfig configures the terminal channel.
type ConsoleConfig struct {
	User string `json:"user"`
	Room string `json:"room"`
}

// CatalogConfig points to a YAML file of static reply commands.
type CatalogConfig struct {
	Path string `json:"path,omitempty"`
}

// ThrottleConfig limits how often one sender may reach handlers.
type ThrottleConfig struct {
	Enabled bool    `json:"enabled"`
	Rate    float64 `json:"rate"`
	Burst   int     `json:"burst"`
	Notice  string  `json:"notice,omitempty"`
}

// TranscriptConfig configures the SQLite transcript of dispatch activity.
type TranscriptConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// GatewayConfig configures HTTP status bind settings and adapter supervision.
type GatewayConfig struct {
	Host      string        `json:"host"`
	Port      int           `json:"port"`
	QueueSize int           `json:"queue_size,omitempty"`
	Restart   RestartConfig `json:"restart,omitempty"`
}

// RestartConfig bounds adapter restarts. Durations are in milliseconds.
type RestartConfig struct {
	InitialIntervalMS int `json:"initial_interval_ms,omitempty"`
	MaxIntervalMS     int `json:"max_interval_ms,omitempty"`
	MaxElapsedMS      int `json:"max_elapsed_ms,omitempty"`
}

// Default returns a configuration usable without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields with their default values.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Bot.Nickname) == "" {
		c.Bot.Nickname = DefaultNickname
	}
	if c.Bot.Sigils == "" {
		c.Bot.Sigils = DefaultSigils
	}
	if c.Bot.IgnoreBodies == nil {
		c.Bot.IgnoreBodies = slices.Clone(DefaultIgnoredBodies)
	}

	ws := &c.Channels.Websocket
	if ws.Host == "" {
		ws.Host = DefaultGatewayHost
	}
	if ws.Port == 0 {
		ws.Port = DefaultWebsocketPort
	}
	if ws.Path == "" {
		ws.Path = DefaultWebsocketPath
	}
	if ws.Domain == "" {
		ws.Domain = DefaultWebsocketDomain
	}

	if c.Channels.Console.User == "" {
		c.Channels.Console.User = "you"
	}
	if c.Channels.Console.Room == "" {
		c.Channels.Console.Room = "lobby"
	}

	if c.Throttle.Rate <= 0 {
		c.Throttle.Rate = 1
	}
	if c.Throttle.Burst <= 0 {
		c.Throttle.Burst = 5
	}

	if c.Transcript.Path == "" {
		c.Transcript.Path = DefaultTranscriptPath
	}

	if c.Gateway.Host == "" {
		c.Gateway.Host = DefaultGatewayHost
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = DefaultGatewayPort
	}
	if c.Gateway.QueueSize <= 0 {
		c.Gateway.QueueSize = DefaultQueueSize
	}
}

// LoadConfig resolves config.json, unmarshals it, applies defaults and
// environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	return LoadFile(configPath)
}

// LoadFile reads one config file.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	cfg.ApplyDefaults()

	return &cfg, nil
}

// LoadOrDefault loads config.json when one can be found and falls back to
// defaults plus environment overrides otherwise. An explicit DRIVEL_CONFIG
// that cannot be read is still an error.
func LoadOrDefault() (*Config, error) {
	if strings.TrimSpace(os.Getenv(envConfigPath)) != "" {
		return LoadConfig()
	}

	cfg, err := LoadConfig()
	if err == nil {
		return cfg, nil
	}

	cfg = &Config{}
	applyEnvOverrides(cfg)
	cfg.ApplyDefaults()
	return cfg, nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if nickname := strings.TrimSpace(os.Getenv(envNickname)); nickname != "" {
		cfg.Bot.Nickname = nickname
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Channels.Telegram.Token = token
	}

	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Channels.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is DRIVEL_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}

// Package config loads all service settings from the environment, with a
// .env file honored for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the bot needs. All fields come from the
// environment; defaults match the docker-compose service names.
type Config struct {
	BotToken       string // BOT_TOKEN (required)
	TelegramAPIURL string // TELEGRAM_API_URL

	AgentWSURL  string // AGENT_WS_URL
	AgentAPIKey string // AGENT_API_KEY, optional bearer auth for the agent dial

	VoskServerURL string // VOSK_SERVER_URL

	DatabasePath string // DATABASE_PATH
	FFmpegPath   string // FFMPEG_PATH
	TempDir      string // TEMP_DIR, per-run scratch dir created when empty

	MetricsAddr string // METRICS_ADDR, empty disables the listener

	LogLevel  string // LOG_LEVEL
	LogPretty bool   // LOG_PRETTY

	PollTimeout    time.Duration // POLL_TIMEOUT_SECONDS
	ReconnectDelay time.Duration // AGENT_RECONNECT_SECONDS
	AskTimeout     time.Duration // AGENT_ASK_TIMEOUT_SECONDS
}

// Load reads the environment (and .env, if present) into a Config.
func Load() *Config {
	_ = godotenv.Load()

	c := &Config{
		BotToken:       os.Getenv("BOT_TOKEN"),
		TelegramAPIURL: getenv("TELEGRAM_API_URL", "https://api.telegram.org"),
		AgentWSURL:     getenv("AGENT_WS_URL", "ws://agent-core:8765"),
		AgentAPIKey:    os.Getenv("AGENT_API_KEY"),
		VoskServerURL:  getenv("VOSK_SERVER_URL", "ws://vosk:2700"),
		DatabasePath:   getenv("DATABASE_PATH", "voicebridge.db"),
		FFmpegPath:     getenv("FFMPEG_PATH", "ffmpeg"),
		TempDir:        os.Getenv("TEMP_DIR"),
		MetricsAddr:    os.Getenv("METRICS_ADDR"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogPretty:      os.Getenv("LOG_PRETTY") == "true",
		PollTimeout:    getenvSeconds("POLL_TIMEOUT_SECONDS", 30*time.Second),
		ReconnectDelay: getenvSeconds("AGENT_RECONNECT_SECONDS", 5*time.Second),
		AskTimeout:     getenvSeconds("AGENT_ASK_TIMEOUT_SECONDS", 60*time.Second),
	}
	return c
}

// Validate returns the list of configuration problems, empty when the
// config is usable.
func (c *Config) Validate() []string {
	var issues []string

	if c.BotToken == "" {
		issues = append(issues, "BOT_TOKEN is required")
	}
	if !strings.HasPrefix(c.AgentWSURL, "ws") {
		issues = append(issues, fmt.Sprintf("AGENT_WS_URL must be a ws:// or wss:// address, got %q", c.AgentWSURL))
	}
	if !strings.HasPrefix(c.VoskServerURL, "ws") {
		issues = append(issues, fmt.Sprintf("VOSK_SERVER_URL must be a ws:// or wss:// address, got %q", c.VoskServerURL))
	}

	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("invalid LOG_LEVEL %q", c.LogLevel))
	}

	return issues
}

// EnsureTempDir resolves the scratch directory, creating a fresh per-run
// one when none is configured.
func (c *Config) EnsureTempDir() (string, error) {
	if c.TempDir != "" {
		if err := os.MkdirAll(c.TempDir, 0o700); err != nil {
			return "", err
		}
		return c.TempDir, nil
	}
	dir, err := os.MkdirTemp("", "voicebridge-")
	if err != nil {
		return "", err
	}
	c.TempDir = dir
	return dir, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

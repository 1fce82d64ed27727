// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "COMMITREVIEW_"

// LLM defaults target DeepSeek's OpenAI-compatible endpoint.
const (
	DefaultLLMBaseURL = "https://api.deepseek.com/v1"
	DefaultLLMModel   = "deepseek-coder"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	MirrorRoot string

	// SecretKey is the AES-256 key for credentials at rest. nil when unset.
	SecretKey []byte

	Workers           int
	QueuePollInterval time.Duration
	TaskMaxAttempts   int
	TaskRetryDelay    time.Duration

	GitTimeout   time.Duration
	LookbackDays int

	LLMProvider string
	LLMBaseURL  string
	LLMAPIKey   string
	LLMModel    string
	LLMTimeout  time.Duration

	NotifyTimeout time.Duration
	PublicBaseURL string

	PollerTick time.Duration

	// DebugSync runs manual triggers inline instead of through the queue.
	DebugSync bool

	GitHubWebhookSecret string
}

// SecureCookies reports whether the public base URL is served over HTTPS.
func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(c.PublicBaseURL, "https://")
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set take precedence. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from COMMITREVIEW_* environment variables and
// returns a validated Config. Every variable is optional; invalid values fail
// fast with the offending variable named in the error.
func Load() (*Config, error) {
	var p parser

	cfg := &Config{
		ListenAddr: p.str("LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:     p.str("DB_PATH", "commitreview.db"),
		MirrorRoot: p.str("MIRROR_ROOT", "mirrors"),

		Workers:           p.positiveInt("WORKERS", 2),
		QueuePollInterval: p.duration("QUEUE_POLL_INTERVAL", 2*time.Second),
		TaskMaxAttempts:   p.positiveInt("TASK_MAX_ATTEMPTS", 3),
		TaskRetryDelay:    p.duration("TASK_RETRY_DELAY", 30*time.Second),

		GitTimeout:   p.duration("GIT_TIMEOUT", 5*time.Minute),
		LookbackDays: p.positiveInt("LOOKBACK_DAYS", 7),

		LLMProvider: strings.ToLower(p.str("LLM_PROVIDER", "openai")),
		LLMAPIKey:   p.str("LLM_API_KEY", ""),
		LLMTimeout:  p.duration("LLM_TIMEOUT", 2*time.Minute),

		NotifyTimeout: p.duration("NOTIFY_TIMEOUT", 10*time.Second),
		PublicBaseURL: strings.TrimRight(p.str("PUBLIC_BASE_URL", ""), "/"),

		PollerTick: p.duration("POLLER_TICK", 30*time.Second),
		DebugSync:  p.boolean("DEBUG_SYNC"),

		GitHubWebhookSecret: p.str("GITHUB_WEBHOOK_SECRET", ""),
	}
	cfg.SecretKey = p.secretKey("SECRET_KEY")

	switch cfg.LLMProvider {
	case "openai":
		cfg.LLMBaseURL = p.str("LLM_BASE_URL", DefaultLLMBaseURL)
		cfg.LLMModel = p.str("LLM_MODEL", DefaultLLMModel)
	case "anthropic":
		cfg.LLMBaseURL = p.str("LLM_BASE_URL", "")
		cfg.LLMModel = p.str("LLM_MODEL", "")
		if cfg.LLMModel == "" {
			p.fail("LLM_MODEL", "is required when %sLLM_PROVIDER=anthropic", envPrefix)
		}
	default:
		p.fail("LLM_PROVIDER", "must be openai or anthropic, got %q", cfg.LLMProvider)
	}

	if cfg.PublicBaseURL != "" {
		u, err := url.Parse(cfg.PublicBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			p.fail("PUBLIC_BASE_URL", "must be an absolute http(s) URL, got %q", cfg.PublicBaseURL)
		}
	}

	if p.err != nil {
		return nil, p.err
	}
	return cfg, nil
}

// parser reads prefixed variables and keeps the first error it sees.
type parser struct {
	err error
}

func (p *parser) fail(key, format string, args ...any) {
	if p.err == nil {
		p.err = fmt.Errorf("%s%s %s", envPrefix, key, fmt.Sprintf(format, args...))
	}
}

func (p *parser) str(key, def string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		return v
	}
	return def
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, "has invalid duration %q: %v", v, err)
		return def
	}
	if d < 0 {
		p.fail(key, "must not be negative, got %s", d)
		return def
	}
	return d
}

func (p *parser) positiveInt(key string, def int) int {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		p.fail(key, "must be a positive integer, got %q", v)
		return def
	}
	return n
}

func (p *parser) boolean(key string) bool {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, "must be a boolean, got %q", v)
		return false
	}
	return b
}

// secretKey decodes a 64-character hex string into a 32-byte key.
func (p *parser) secretKey(key string) []byte {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return nil
	}
	if len(v) != 64 {
		p.fail(key, "must be 64 hex characters (32 bytes), got %d characters", len(v))
		return nil
	}
	b, err := hex.DecodeString(v)
	if err != nil {
		p.fail(key, "is not valid hex: %v", err)
		return nil
	}
	return b
}

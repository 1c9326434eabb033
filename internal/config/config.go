// Package config loads rapport settings from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/rapport/internal/timewindow"
)

// ClockSpec is an hour ("22") or HH:MM ("22:00") as written in the config file.
type ClockSpec string

// UnmarshalYAML accepts both integer and string scalars.
func (c *ClockSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: clock must be an hour or HH:MM", node.Line)
	}
	*c = ClockSpec(node.Value)
	return nil
}

// Config holds every recognized option. Durations are milliseconds on disk.
type Config struct {
	Home           string `yaml:"home"`
	RelationshipID string `yaml:"relationshipId"`
	LogLevel       string `yaml:"logLevel"`
	LogFormat      string `yaml:"logFormat"`

	SleepStart ClockSpec `yaml:"sleepStart"`
	SleepEnd   ClockSpec `yaml:"sleepEnd"`

	CheckIntervalMs         int64 `yaml:"checkIntervalMs"`
	LearningIdleThresholdMs int64 `yaml:"learningIdleThresholdMs"`
	MatureIdleThresholdMs   int64 `yaml:"matureIdleThresholdMs"`
	MinGapBetweenCheckInsMs int64 `yaml:"minGapBetweenCheckInsMs"`
	LearningPeriodDays      int   `yaml:"learningPeriodDays"`

	ProactiveCheckIns bool `yaml:"proactiveCheckIns"`
	UseSemanticSearch bool `yaml:"useSemanticSearch"`
	AutoInject        bool `yaml:"autoInject"`
	GapDetection      bool `yaml:"gapDetection"`

	SearchTimeoutMs  int64 `yaml:"searchTimeoutMs"`
	SearchMaxResults int   `yaml:"searchMaxResults"`

	IdleStateBackend    string `yaml:"idleStateBackend"`
	Delivery            string `yaml:"delivery"`
	DeliveryDestination string `yaml:"deliveryDestination"`
	WebhookURL          string `yaml:"webhookUrl"`
	WebhookTimeoutMs    int64  `yaml:"webhookTimeoutMs"`

	EmbedProvider string `yaml:"embedProvider"`
	EmbedModel    string `yaml:"embedModel"`

	window timewindow.Window
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Home:                    filepath.Join(home, ".rapport"),
		RelationshipID:          "default",
		LogLevel:                "info",
		LogFormat:               "text",
		SleepStart:              "22:00",
		SleepEnd:                "07:00",
		CheckIntervalMs:         (30 * time.Minute).Milliseconds(),
		LearningIdleThresholdMs: (2 * time.Hour).Milliseconds(),
		MatureIdleThresholdMs:   (4 * time.Hour).Milliseconds(),
		MinGapBetweenCheckInsMs: time.Hour.Milliseconds(),
		LearningPeriodDays:      14,
		ProactiveCheckIns:       true,
		UseSemanticSearch:       true,
		AutoInject:              true,
		GapDetection:            true,
		SearchTimeoutMs:         (10 * time.Second).Milliseconds(),
		SearchMaxResults:        3,
		IdleStateBackend:        "file",
		Delivery:                "outbox",
		DeliveryDestination:     "last-used-channel",
		WebhookTimeoutMs:        (10 * time.Second).Milliseconds(),
	}
}

// Load builds the configuration. Precedence, lowest first: defaults, the YAML
// file at path (or $RAPPORT_HOME/config.yaml), variables from $RAPPORT_HOME/.env,
// then RAPPORT_* environment variables. A missing file is not an error; an
// invalid value is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if h := os.Getenv("RAPPORT_HOME"); h != "" {
		cfg.Home = h
	}

	// .env never overrides variables that are already set.
	if err := godotenv.Load(filepath.Join(cfg.Home, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if h := os.Getenv("RAPPORT_HOME"); h != "" {
		cfg.Home = h
	}

	if path == "" {
		path = filepath.Join(cfg.Home, "config.yaml")
	}
	if err := cfg.readFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Home = envStr("RAPPORT_HOME", c.Home)
	c.RelationshipID = envStr("RAPPORT_RELATIONSHIP", c.RelationshipID)
	c.LogLevel = envStr("RAPPORT_LOG_LEVEL", c.LogLevel)
	c.LogFormat = envStr("RAPPORT_LOG_FORMAT", c.LogFormat)
	c.SleepStart = ClockSpec(envStr("RAPPORT_SLEEP_START", string(c.SleepStart)))
	c.SleepEnd = ClockSpec(envStr("RAPPORT_SLEEP_END", string(c.SleepEnd)))
	c.CheckIntervalMs = envInt64("RAPPORT_CHECK_INTERVAL_MS", c.CheckIntervalMs)
	c.LearningIdleThresholdMs = envInt64("RAPPORT_LEARNING_IDLE_THRESHOLD_MS", c.LearningIdleThresholdMs)
	c.MatureIdleThresholdMs = envInt64("RAPPORT_MATURE_IDLE_THRESHOLD_MS", c.MatureIdleThresholdMs)
	c.MinGapBetweenCheckInsMs = envInt64("RAPPORT_MIN_GAP_MS", c.MinGapBetweenCheckInsMs)
	c.ProactiveCheckIns = envBool("RAPPORT_PROACTIVE_CHECKINS", c.ProactiveCheckIns)
	c.UseSemanticSearch = envBool("RAPPORT_USE_SEMANTIC_SEARCH", c.UseSemanticSearch)
	c.AutoInject = envBool("RAPPORT_AUTO_INJECT", c.AutoInject)
	c.GapDetection = envBool("RAPPORT_GAP_DETECTION", c.GapDetection)
	c.IdleStateBackend = envStr("RAPPORT_IDLE_STATE_BACKEND", c.IdleStateBackend)
	c.Delivery = envStr("RAPPORT_DELIVERY", c.Delivery)
	c.WebhookURL = envStr("RAPPORT_WEBHOOK_URL", c.WebhookURL)
	c.WebhookTimeoutMs = envInt64("RAPPORT_WEBHOOK_TIMEOUT_MS", c.WebhookTimeoutMs)
	c.EmbedProvider = envStr("RAPPORT_EMBED_PROVIDER", c.EmbedProvider)
	c.EmbedModel = envStr("RAPPORT_EMBED_MODEL", c.EmbedModel)
}

// Validate checks every option and resolves the sleep window.
func (c *Config) Validate() error {
	start, err := timewindow.ParseClock(string(c.SleepStart))
	if err != nil {
		return fmt.Errorf("sleepStart: %w", err)
	}
	end, err := timewindow.ParseClock(string(c.SleepEnd))
	if err != nil {
		return fmt.Errorf("sleepEnd: %w", err)
	}
	c.window = timewindow.Window{Start: start, End: end}

	positive := map[string]int64{
		"checkIntervalMs":         c.CheckIntervalMs,
		"learningIdleThresholdMs": c.LearningIdleThresholdMs,
		"matureIdleThresholdMs":   c.MatureIdleThresholdMs,
		"searchTimeoutMs":         c.SearchTimeoutMs,
		"webhookTimeoutMs":        c.WebhookTimeoutMs,
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	if c.MinGapBetweenCheckInsMs < 0 {
		return fmt.Errorf("minGapBetweenCheckInsMs must not be negative, got %d", c.MinGapBetweenCheckInsMs)
	}
	if c.LearningPeriodDays < 0 {
		return fmt.Errorf("learningPeriodDays must not be negative, got %d", c.LearningPeriodDays)
	}
	if c.SearchMaxResults < 1 {
		return fmt.Errorf("searchMaxResults must be at least 1, got %d", c.SearchMaxResults)
	}
	if c.Home == "" {
		return fmt.Errorf("home must not be empty")
	}
	if c.RelationshipID == "" || strings.ContainsAny(c.RelationshipID, `/\`) || c.RelationshipID == ".." {
		return fmt.Errorf("relationshipId %q is not a valid directory name", c.RelationshipID)
	}
	switch c.IdleStateBackend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("idleStateBackend must be file or sqlite, got %q", c.IdleStateBackend)
	}
	switch c.Delivery {
	case "outbox", "log":
	case "webhook":
		if c.WebhookURL == "" {
			return fmt.Errorf("webhookUrl is required when delivery is webhook")
		}
	default:
		return fmt.Errorf("delivery must be outbox, log or webhook, got %q", c.Delivery)
	}
	return nil
}

// Window is the resolved sleep window. Valid after Validate.
func (c *Config) Window() timewindow.Window { return c.window }

func (c *Config) CheckInterval() time.Duration { return ms(c.CheckIntervalMs) }
func (c *Config) LearningThreshold() time.Duration {
	return ms(c.LearningIdleThresholdMs)
}
func (c *Config) MatureThreshold() time.Duration { return ms(c.MatureIdleThresholdMs) }
func (c *Config) MinGap() time.Duration          { return ms(c.MinGapBetweenCheckInsMs) }
func (c *Config) SearchTimeout() time.Duration   { return ms(c.SearchTimeoutMs) }
func (c *Config) WebhookTimeout() time.Duration  { return ms(c.WebhookTimeoutMs) }

// LearningPeriod is how long a relationship stays in learning mode.
func (c *Config) LearningPeriod() time.Duration {
	return time.Duration(c.LearningPeriodDays) * 24 * time.Hour
}

// RelationshipDir holds the state, ledger and documents of the active relationship.
func (c *Config) RelationshipDir() string {
	return filepath.Join(c.Home, "relationships", c.RelationshipID)
}

// IndexPath is the shared transcript index database.
func (c *Config) IndexPath() string {
	return filepath.Join(c.Home, "index.db")
}

func ms(v int64) time.Duration { return time.Duration(v) * time.Millisecond }

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

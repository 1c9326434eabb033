package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/rapport/internal/timewindow"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("RAPPORT_HOME", home)
	for _, k := range []string{"RAPPORT_SLEEP_START", "RAPPORT_SLEEP_END", "RAPPORT_DELIVERY", "RAPPORT_RELATIONSHIP", "RAPPORT_WEBHOOK_TIMEOUT_MS"} {
		t.Setenv(k, "")
	}
	return home
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, home, cfg.Home)
	assert.Equal(t, 30*time.Minute, cfg.CheckInterval())
	assert.Equal(t, 2*time.Hour, cfg.LearningThreshold())
	assert.Equal(t, 4*time.Hour, cfg.MatureThreshold())
	assert.Equal(t, time.Hour, cfg.MinGap())
	assert.Equal(t, 14*24*time.Hour, cfg.LearningPeriod())
	assert.Equal(t, timewindow.MustClock("22:00"), cfg.Window().Start)
	assert.Equal(t, timewindow.MustClock("07:00"), cfg.Window().End)
	assert.Equal(t, filepath.Join(home, "relationships", "default"), cfg.RelationshipDir())
	assert.Equal(t, 10*time.Second, cfg.WebhookTimeout())
}

func TestWebhookTimeoutIsSeparateFromSearch(t *testing.T) {
	home := isolate(t)
	yml := "searchTimeoutMs: 500\nwebhookTimeoutMs: 3000\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(yml), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.SearchTimeout())
	assert.Equal(t, 3*time.Second, cfg.WebhookTimeout())
}

func TestLoadYAMLAcceptsHourAndClock(t *testing.T) {
	home := isolate(t)
	yml := "sleepStart: 20\nsleepEnd: \"09:30\"\nmatureIdleThresholdMs: 18000000\nautoInject: false\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(yml), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, timewindow.MustClock("20:00"), cfg.Window().Start)
	assert.Equal(t, timewindow.MustClock("09:30"), cfg.Window().End)
	assert.Equal(t, 5*time.Hour, cfg.MatureThreshold())
	assert.False(t, cfg.AutoInject)
	assert.True(t, cfg.ProactiveCheckIns)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	home := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte("sleepStart: 20\n"), 0o644))
	t.Setenv("RAPPORT_SLEEP_START", "23:15")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, timewindow.MustClock("23:15"), cfg.Window().Start)
}

func TestLoadDotEnv(t *testing.T) {
	home := isolate(t)
	require.NoError(t, os.Unsetenv("RAPPORT_DELIVERY"))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".env"), []byte("RAPPORT_DELIVERY=log\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("RAPPORT_DELIVERY") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "log", cfg.Delivery)
}

func TestLoadFailsFastOnBadClock(t *testing.T) {
	home := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte("sleepEnd: \"25:00\"\n"), 0o644))

	_, err := Load("")
	require.Error(t, err)
	assert.ErrorIs(t, err, timewindow.ErrInvalidClock)
	assert.Contains(t, err.Error(), "sleepEnd")
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]func(c *Config){
		"zero interval":     func(c *Config) { c.CheckIntervalMs = 0 },
		"negative gap":      func(c *Config) { c.MinGapBetweenCheckInsMs = -1 },
		"unknown backend":   func(c *Config) { c.IdleStateBackend = "redis" },
		"webhook no url":    func(c *Config) { c.Delivery = "webhook" },
		"traversal id":      func(c *Config) { c.RelationshipID = "../x" },
		"no search results": func(c *Config) { c.SearchMaxResults = 0 },
		"zero webhook wait": func(c *Config) { c.WebhookTimeoutMs = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := Default()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

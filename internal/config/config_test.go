package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadUsesDefaultsAndYAMLOverrides(t *testing.T) {
	clearConfigEnv(t)

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	yaml := `
log:
  level: warn
postgres:
  dsn: "postgres://mod:mod@db:5432/moderation"
bot:
  token: "123:abc"
  scheduler_interval: 15s
  scheduler_batch: 10
defaults:
  raid_time: 2h
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Log.Level != "warn" {
		t.Fatalf("unexpected log level: %s", cfg.Log.Level)
	}
	if cfg.Postgres.DSN != "postgres://mod:mod@db:5432/moderation" {
		t.Fatalf("unexpected postgres dsn: %s", cfg.Postgres.DSN)
	}
	if cfg.Bot.Token != "123:abc" {
		t.Fatalf("unexpected bot token: %s", cfg.Bot.Token)
	}
	if cfg.Bot.SchedulerInterval != 15*time.Second {
		t.Fatalf("unexpected scheduler interval: %s", cfg.Bot.SchedulerInterval)
	}
	if cfg.Bot.SchedulerBatch != 10 {
		t.Fatalf("unexpected scheduler batch: %d", cfg.Bot.SchedulerBatch)
	}
	if cfg.Defaults.RaidTime != 2*time.Hour {
		t.Fatalf("unexpected raid time: %s", cfg.Defaults.RaidTime)
	}

	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("http addr default should stay :8080, got %s", cfg.HTTP.Addr)
	}
	if cfg.Postgres.MigrationsDir != "migrations" {
		t.Fatalf("migrations dir default should stay, got %s", cfg.Postgres.MigrationsDir)
	}
	if cfg.Defaults.CaptchaKickTime != 2*time.Minute {
		t.Fatalf("captcha kick time default should stay, got %s", cfg.Defaults.CaptchaKickTime)
	}
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load config with missing file: %v", err)
	}

	if cfg.Bot.SchedulerInterval != 30*time.Second {
		t.Fatalf("unexpected default scheduler interval: %s", cfg.Bot.SchedulerInterval)
	}
	if cfg.Bot.SchedulerBatch != 50 {
		t.Fatalf("unexpected default scheduler batch: %d", cfg.Bot.SchedulerBatch)
	}
	if cfg.Defaults.FloodTimer != 5*time.Second {
		t.Fatalf("unexpected default flood timer: %s", cfg.Defaults.FloodTimer)
	}
	if cfg.Defaults.RaidTime != 6*time.Hour {
		t.Fatalf("unexpected default raid time: %s", cfg.Defaults.RaidTime)
	}
}

func TestEnvOverridesBeatYAML(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("BOT_TOKEN", "999:env")
	t.Setenv("POSTGRES_DSN", "postgres://env")
	t.Setenv("SCHEDULER_INTERVAL", "45s")
	t.Setenv("REDIS_DB", "3")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	yaml := `
bot:
  token: "123:yaml"
postgres:
  dsn: "postgres://yaml"
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Bot.Token != "999:env" {
		t.Fatalf("expected env token to win, got %s", cfg.Bot.Token)
	}
	if cfg.Postgres.DSN != "postgres://env" {
		t.Fatalf("expected env dsn to win, got %s", cfg.Postgres.DSN)
	}
	if cfg.Bot.SchedulerInterval != 45*time.Second {
		t.Fatalf("unexpected scheduler interval: %s", cfg.Bot.SchedulerInterval)
	}
	if cfg.Redis.DB != 3 {
		t.Fatalf("unexpected redis db: %d", cfg.Redis.DB)
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SCHEDULER_INTERVAL", "not-a-duration")

	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for malformed SCHEDULER_INTERVAL")
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV",
		"HTTP_ADDR",
		"HTTP_READ_TIMEOUT",
		"HTTP_WRITE_TIMEOUT",
		"HTTP_IDLE_TIMEOUT",
		"LOG_LEVEL",
		"POSTGRES_DSN",
		"MIGRATIONS_DIR",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"BOT_TOKEN",
		"SCHEDULER_INTERVAL",
		"SCHEDULER_BATCH",
	} {
		t.Setenv(key, "")
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DISCORD_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error without token")
	}
}

func TestLoadYAMLAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
discord_token: from-file
mode: LOCKED
database:
  driver: pgx
  dsn: postgres://localhost/warden
moderation:
  mute_threshold: 2
  ban_threshold: 4
  mute_duration_minutes: 15
  match_mode: SUBSTRING
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("BAN_THRESHOLD", "6")
	t.Setenv("BOT_PREFIX", "!")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DiscordToken != "from-file" {
		t.Fatalf("expected token from file, got %q", cfg.DiscordToken)
	}
	if cfg.Mode != ModeLocked {
		t.Fatalf("expected locked mode, got %q", cfg.Mode)
	}
	if cfg.Database.Driver != "postgres" {
		t.Fatalf("expected postgres driver, got %q", cfg.Database.Driver)
	}
	if cfg.Moderation.MuteThreshold != 2 || cfg.Moderation.BanThreshold != 6 {
		t.Fatalf("unexpected thresholds %d/%d", cfg.Moderation.MuteThreshold, cfg.Moderation.BanThreshold)
	}
	if cfg.Moderation.MatchMode != "substring" {
		t.Fatalf("expected substring match mode, got %q", cfg.Moderation.MatchMode)
	}
	if cfg.Commands.Prefix != "!" {
		t.Fatalf("expected prefix override, got %q", cfg.Commands.Prefix)
	}
}

func TestLoadRejectsInvertedThresholds(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("MUTE_THRESHOLD", "5")
	t.Setenv("BAN_THRESHOLD", "5")

	if _, err := Load(); err == nil {
		t.Fatalf("expected threshold validation error")
	}
}

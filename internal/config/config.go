package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// OperationalMode gates who may run commands.
type OperationalMode string

const (
	ModeUnlocked OperationalMode = "unlocked"
	ModeLocked   OperationalMode = "locked"
)

type Config struct {
	DiscordToken     string             `yaml:"discord_token"`
	LogLevel         string             `yaml:"log_level"`
	Mode             OperationalMode    `yaml:"mode"`
	LegacyImportPath string             `yaml:"legacy_import_path"`
	Database         DatabaseConfig     `yaml:"database"`
	Commands         CommandConfig      `yaml:"commands"`
	Moderation       ModerationDefaults `yaml:"moderation"`
	Notifications    NotifyConfig       `yaml:"notifications"`
	HTTP             HTTPConfig         `yaml:"http"`
	Scheduler        SchedulerConfig    `yaml:"scheduler"`
}

type DatabaseConfig struct {
	Driver        string `yaml:"driver"`
	DSN           string `yaml:"dsn"`
	RetentionDays int    `yaml:"retention_days"`
}

type CommandConfig struct {
	Prefix                 string `yaml:"prefix"`
	DevRoleID              string `yaml:"dev_role_id"`
	AllowDM                bool   `yaml:"allow_dm"`
	ServerInviteLink       string `yaml:"server_invite_link"`
	ErrorMessageTTLSeconds int    `yaml:"error_message_ttl_seconds"`
	MuteRoleName           string `yaml:"mute_role_name"`
}

// ModerationDefaults seed the settings of a guild seen for the first time.
type ModerationDefaults struct {
	Enabled             bool   `yaml:"enabled"`
	BanDefaultOffensive bool   `yaml:"ban_default_offensive"`
	MuteThreshold       int    `yaml:"mute_threshold"`
	BanThreshold        int    `yaml:"ban_threshold"`
	MuteDurationMinutes int    `yaml:"mute_duration_minutes"`
	MatchMode           string `yaml:"match_mode"`
	LogChannelID        string `yaml:"log_channel_id"`
}

type NotifyConfig struct {
	DMEnabled   bool        `yaml:"dm_enabled"`
	LogEnabled  bool        `yaml:"log_enabled"`
	EventLog    bool        `yaml:"event_log"`
	BotName     string      `yaml:"bot_name"`
	BotVersion  string      `yaml:"bot_version"`
	EmbedColors EmbedColors `yaml:"embed_colors"`
}

type EmbedColors struct {
	Info    int `yaml:"info"`
	Warning int `yaml:"warning"`
	Danger  int `yaml:"danger"`
	Success int `yaml:"success"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type SchedulerConfig struct {
	SweepSpec     string `yaml:"sweep_spec"`
	RetentionSpec string `yaml:"retention_spec"`
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Mode:     ModeUnlocked,
		Database: DatabaseConfig{Driver: "sqlite", DSN: "/data/warden.db", RetentionDays: 90},
		Commands: CommandConfig{
			Prefix:                 "-",
			ErrorMessageTTLSeconds: 5,
			MuteRoleName:           "Muted",
			ServerInviteLink:       "",
		},
		Moderation: ModerationDefaults{
			Enabled:             false,
			BanDefaultOffensive: false,
			MuteThreshold:       5,
			BanThreshold:        10,
			MuteDurationMinutes: 60,
			MatchMode:           "word",
		},
		Notifications: NotifyConfig{
			DMEnabled:  true,
			LogEnabled: true,
			EventLog:   true,
			BotName:    "Warden",
			BotVersion: "1.0.0",
			EmbedColors: EmbedColors{
				Info:    0x3B82F6,
				Warning: 0xF59E0B,
				Danger:  0xEF4444,
				Success: 0x22C55E,
			},
		},
		HTTP:      HTTPConfig{Enabled: false, Addr: ":8080"},
		Scheduler: SchedulerConfig{SweepSpec: "@every 1m", RetentionSpec: "@daily"},
	}
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}

	cfg.Mode = normalizeMode(string(cfg.Mode))
	cfg.Database.Driver = normalizeDriver(cfg.Database.Driver)
	cfg.Moderation.MatchMode = normalizeMatchMode(cfg.Moderation.MatchMode)
	if err := cfg.Moderation.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.Mode = OperationalMode(envString("MODE", string(cfg.Mode)))
	cfg.LegacyImportPath = envString("LEGACY_IMPORT_PATH", cfg.LegacyImportPath)
	cfg.Database.Driver = envString("DATABASE_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = envString("DATABASE_DSN", cfg.Database.DSN)
	cfg.Database.RetentionDays = envInt("RETENTION_DAYS", cfg.Database.RetentionDays)
	cfg.Commands.Prefix = envString("BOT_PREFIX", cfg.Commands.Prefix)
	cfg.Commands.DevRoleID = envString("DEV_ROLE_ID", cfg.Commands.DevRoleID)
	cfg.Commands.AllowDM = envBool("ALLOW_DM", cfg.Commands.AllowDM)
	cfg.Commands.ServerInviteLink = envString("SERVER_INVITE_LINK", cfg.Commands.ServerInviteLink)
	cfg.Commands.ErrorMessageTTLSeconds = envInt("ERROR_MESSAGE_TTL_SECONDS", cfg.Commands.ErrorMessageTTLSeconds)
	cfg.Commands.MuteRoleName = envString("MUTE_ROLE_NAME", cfg.Commands.MuteRoleName)
	cfg.Moderation.Enabled = envBool("AUTOMOD_ENABLED", cfg.Moderation.Enabled)
	cfg.Moderation.BanDefaultOffensive = envBool("BAN_DEFAULT_OFFENSIVE", cfg.Moderation.BanDefaultOffensive)
	cfg.Moderation.MuteThreshold = envInt("MUTE_THRESHOLD", cfg.Moderation.MuteThreshold)
	cfg.Moderation.BanThreshold = envInt("BAN_THRESHOLD", cfg.Moderation.BanThreshold)
	cfg.Moderation.MuteDurationMinutes = envInt("MUTE_DURATION_MINUTES", cfg.Moderation.MuteDurationMinutes)
	cfg.Moderation.MatchMode = envString("MATCH_MODE", cfg.Moderation.MatchMode)
	cfg.Moderation.LogChannelID = envString("DEFAULT_LOG_CHANNEL", cfg.Moderation.LogChannelID)
	cfg.Notifications.DMEnabled = envBool("DM_ENABLED", cfg.Notifications.DMEnabled)
	cfg.Notifications.LogEnabled = envBool("LOG_ENABLED", cfg.Notifications.LogEnabled)
	cfg.Notifications.EventLog = envBool("EVENT_LOG", cfg.Notifications.EventLog)
	cfg.Notifications.BotName = envString("BOT_NAME", cfg.Notifications.BotName)
	cfg.HTTP.Enabled = envBool("HTTP_ENABLED", cfg.HTTP.Enabled)
	cfg.HTTP.Addr = envString("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Scheduler.SweepSpec = envString("SWEEP_SPEC", cfg.Scheduler.SweepSpec)
	cfg.Scheduler.RetentionSpec = envString("RETENTION_SPEC", cfg.Scheduler.RetentionSpec)
}

func (m ModerationDefaults) validate() error {
	if m.MuteThreshold < 1 {
		return errors.New("moderation.mute_threshold must be >= 1")
	}
	if m.BanThreshold <= m.MuteThreshold {
		return errors.New("moderation.ban_threshold must be greater than mute_threshold")
	}
	if m.MuteDurationMinutes < 1 {
		return errors.New("moderation.mute_duration_minutes must be >= 1")
	}
	return nil
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}

func normalizeMode(value string) OperationalMode {
	switch strings.ToLower(value) {
	case string(ModeLocked):
		return ModeLocked
	default:
		return ModeUnlocked
	}
}

func normalizeDriver(value string) string {
	switch strings.ToLower(value) {
	case "postgres", "postgresql", "pgx":
		return "postgres"
	default:
		return "sqlite"
	}
}

func normalizeMatchMode(value string) string {
	switch strings.ToLower(value) {
	case "substring":
		return "substring"
	default:
		return "word"
	}
}

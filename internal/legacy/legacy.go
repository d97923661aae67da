// Package legacy imports the JSON settings file of the previous bot.
package legacy

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"warden/internal/settings"
	"warden/internal/storage"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Target interface {
	GetGuildSettings(ctx context.Context, guildID string) (storage.GuildSettings, bool, error)
	InsertGuildSettings(ctx context.Context, settings storage.GuildSettings) error
	AppendWarning(ctx context.Context, w storage.Warning) (int, error)
	DeleteWarning(ctx context.Context, guildID, warningID string) (bool, error)
}

type Defaults interface {
	Defaults(guildID string) storage.GuildSettings
}

type Result struct {
	Imported int
	Skipped  int
	Warnings int
}

type guildRecord struct {
	Enabled             *bool           `json:"enabled"`
	BannedWords         []string        `json:"banned_words"`
	BanDefaultOffensive *bool           `json:"ban_default_offensive"`
	MuteThreshold       *int            `json:"mute_threshold"`
	WarnThreshold       *int            `json:"warn_threshold"`
	BanThreshold        *int            `json:"ban_threshold"`
	MuteDuration        *int            `json:"mute_duration"`
	LogChannel          json.RawMessage `json:"log_channel"`
	Warnings            json.RawMessage `json:"warnings"`
}

type warningRecord struct {
	Reason    string `json:"reason"`
	Issuer    string `json:"issuer"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id"`
}

type Importer struct {
	target   Target
	defaults Defaults
	logger   *zap.Logger
	now      func() time.Time
}

func NewImporter(target Target, defaults Defaults, logger *zap.Logger) *Importer {
	return &Importer{target: target, defaults: defaults, logger: logger, now: time.Now}
}

// ImportFile loads path and imports every guild not yet stored.
func (i *Importer) ImportFile(ctx context.Context, path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}
	return i.Import(ctx, data)
}

func (i *Importer) Import(ctx context.Context, data []byte) (Result, error) {
	var guilds map[string]guildRecord
	if err := json.Unmarshal(data, &guilds); err != nil {
		return Result{}, fmt.Errorf("decode legacy settings: %w", err)
	}

	ids := make([]string, 0, len(guilds))
	for id := range guilds {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var result Result
	for _, guildID := range ids {
		_, exists, err := i.target.GetGuildSettings(ctx, guildID)
		if err != nil {
			return result, fmt.Errorf("check guild %s: %w", guildID, err)
		}
		if exists {
			result.Skipped++
			continue
		}

		record := guilds[guildID]
		warnings, err := i.warnings(guildID, record.Warnings)
		if err != nil {
			i.logger.Warn("legacy warnings unreadable", zap.String("guild_id", guildID), zap.Error(err))
		}
		// The settings row marks the guild as imported, so it goes in last.
		if err := i.appendWarnings(ctx, guildID, warnings); err != nil {
			return result, err
		}
		if err := i.target.InsertGuildSettings(ctx, i.convert(guildID, record)); err != nil {
			i.rollback(ctx, guildID, warnings)
			return result, fmt.Errorf("import guild %s: %w", guildID, err)
		}
		result.Warnings += len(warnings)
		result.Imported++
	}
	return result, nil
}

// appendWarnings writes every warning or, on failure, none of them.
func (i *Importer) appendWarnings(ctx context.Context, guildID string, warnings []storage.Warning) error {
	for n := range warnings {
		warnings[n].ID = uuid.NewString()
		if _, err := i.target.AppendWarning(ctx, warnings[n]); err != nil {
			i.rollback(ctx, guildID, warnings[:n])
			return fmt.Errorf("import warning for guild %s: %w", guildID, err)
		}
	}
	return nil
}

func (i *Importer) rollback(ctx context.Context, guildID string, written []storage.Warning) {
	for _, w := range written {
		if _, err := i.target.DeleteWarning(ctx, guildID, w.ID); err != nil {
			i.logger.Warn("rollback legacy warning failed", zap.String("guild_id", guildID), zap.String("warning_id", w.ID), zap.Error(err))
		}
	}
}

func (i *Importer) convert(guildID string, record guildRecord) storage.GuildSettings {
	out := i.defaults.Defaults(guildID)
	if record.Enabled != nil {
		out.Enabled = *record.Enabled
	}
	if record.BanDefaultOffensive != nil {
		out.BanDefaultOffensive = *record.BanDefaultOffensive
	}
	out.BannedWords = settings.NormalizeWords(record.BannedWords)
	switch {
	case record.MuteThreshold != nil:
		out.MuteThreshold = *record.MuteThreshold
	case record.WarnThreshold != nil:
		out.MuteThreshold = *record.WarnThreshold
	}
	if record.BanThreshold != nil {
		out.BanThreshold = *record.BanThreshold
	}
	if record.MuteDuration != nil {
		out.MuteDurationMinutes = *record.MuteDuration
	}
	out.LogChannelID = rawID(record.LogChannel)

	if err := settings.Validate(out); err != nil {
		fallback := i.defaults.Defaults(guildID)
		i.logger.Warn("legacy thresholds invalid, using defaults", zap.String("guild_id", guildID), zap.Error(err))
		out.MuteThreshold = fallback.MuteThreshold
		out.BanThreshold = fallback.BanThreshold
		out.MuteDurationMinutes = fallback.MuteDurationMinutes
	}
	return out
}

// warnings accepts the list form and the older integer counter.
func (i *Importer) warnings(guildID string, raw json.RawMessage) ([]storage.Warning, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] != '[' {
		var counter int
		if err := json.Unmarshal(trimmed, &counter); err != nil {
			return nil, err
		}
		if counter <= 0 {
			return nil, nil
		}
		return []storage.Warning{{
			GuildID:   guildID,
			UserID:    "unknown",
			Reason:    "Legacy warning",
			Issuer:    "Unknown",
			Timestamp: i.now().UTC().Format(time.RFC3339),
		}}, nil
	}

	var records []warningRecord
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, err
	}
	out := make([]storage.Warning, 0, len(records))
	for _, r := range records {
		userID := r.UserID
		if userID == "" {
			userID = "unknown"
		}
		out = append(out, storage.Warning{
			GuildID:   guildID,
			UserID:    userID,
			Reason:    r.Reason,
			Issuer:    r.Issuer,
			Timestamp: normalizeTimestamp(r.Timestamp),
		})
	}
	return out, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// normalizeTimestamp reads the naive UTC stamps the old bot wrote.
func normalizeTimestamp(value string) string {
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC().Format(time.RFC3339)
		}
	}
	return value
}

func rawID(raw json.RawMessage) string {
	value := strings.TrimSpace(string(raw))
	if value == "" || value == "null" {
		return ""
	}
	return strings.Trim(value, `"`)
}

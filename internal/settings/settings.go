// Package settings owns the per-guild moderation configuration.
package settings

import (
	"context"
	"fmt"
	"strings"

	"warden/internal/config"
	"warden/internal/storage"

	"go.uber.org/zap"
)

type GuildSettings = storage.GuildSettings

const (
	MatchWord      = "word"
	MatchSubstring = "substring"
)

// ValidationError carries a message meant for the moderator who issued the change.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

type Backend interface {
	GetGuildSettings(ctx context.Context, guildID string) (storage.GuildSettings, bool, error)
	InsertGuildSettings(ctx context.Context, settings storage.GuildSettings) error
	UpsertGuildSettings(ctx context.Context, settings storage.GuildSettings) error
	LockGuild(guildID string) func()
}

type Store struct {
	backend  Backend
	defaults config.ModerationDefaults
	logger   *zap.Logger
}

func New(backend Backend, defaults config.ModerationDefaults, logger *zap.Logger) *Store {
	return &Store{backend: backend, defaults: defaults, logger: logger}
}

// Defaults returns the settings a guild starts with.
func (s *Store) Defaults(guildID string) GuildSettings {
	return GuildSettings{
		GuildID:             guildID,
		Enabled:             s.defaults.Enabled,
		BannedWords:         []string{},
		BanDefaultOffensive: s.defaults.BanDefaultOffensive,
		MuteThreshold:       s.defaults.MuteThreshold,
		BanThreshold:        s.defaults.BanThreshold,
		MuteDurationMinutes: s.defaults.MuteDurationMinutes,
		LogChannelID:        s.defaults.LogChannelID,
		MatchMode:           normalizeMatchMode(s.defaults.MatchMode),
	}
}

// Get returns the guild's settings, persisting defaults on first access.
// Read failures are logged and answered with defaults.
func (s *Store) Get(ctx context.Context, guildID string) GuildSettings {
	current, found, err := s.backend.GetGuildSettings(ctx, guildID)
	if err != nil {
		s.logger.Error("read guild settings failed", zap.String("guild_id", guildID), zap.Error(err))
		return s.Defaults(guildID)
	}
	if found {
		current.MatchMode = normalizeMatchMode(current.MatchMode)
		return current
	}

	defaults := s.Defaults(guildID)
	if err := s.backend.InsertGuildSettings(ctx, defaults); err != nil {
		s.logger.Error("persist default guild settings failed", zap.String("guild_id", guildID), zap.Error(err))
		return defaults
	}
	// another writer may have won the insert
	if stored, ok, err := s.backend.GetGuildSettings(ctx, guildID); err == nil && ok {
		return stored
	}
	return defaults
}

// Save validates and persists settings as a whole.
func (s *Store) Save(ctx context.Context, settings GuildSettings) error {
	unlock := s.backend.LockGuild(settings.GuildID)
	defer unlock()
	return s.save(ctx, settings)
}

// Update runs fn on a copy of the current settings inside the guild's
// critical section. Nothing is written when fn or validation fails.
func (s *Store) Update(ctx context.Context, guildID string, fn func(*GuildSettings) error) (GuildSettings, error) {
	unlock := s.backend.LockGuild(guildID)
	defer unlock()

	current := s.Get(ctx, guildID)
	next := current
	next.BannedWords = append([]string(nil), current.BannedWords...)
	if err := fn(&next); err != nil {
		return current, err
	}
	next.GuildID = guildID
	if err := s.save(ctx, next); err != nil {
		return current, err
	}
	return next, nil
}

func (s *Store) save(ctx context.Context, settings GuildSettings) error {
	settings.BannedWords = NormalizeWords(settings.BannedWords)
	settings.MatchMode = normalizeMatchMode(settings.MatchMode)
	if err := Validate(settings); err != nil {
		return err
	}
	if err := s.backend.UpsertGuildSettings(ctx, settings); err != nil {
		return fmt.Errorf("save guild settings: %w", err)
	}
	return nil
}

// Validate enforces the threshold ordering and duration bounds.
func Validate(settings GuildSettings) error {
	if settings.MuteThreshold < 1 {
		return invalid("Mute threshold must be at least 1.")
	}
	if settings.BanThreshold <= settings.MuteThreshold {
		return invalid("Ban threshold (%d) must be greater than mute threshold (%d).", settings.BanThreshold, settings.MuteThreshold)
	}
	if settings.MuteDurationMinutes < 1 {
		return invalid("Mute duration must be at least 1 minute.")
	}
	switch settings.MatchMode {
	case MatchWord, MatchSubstring:
	default:
		return invalid("Unknown match mode %q, use word or substring.", settings.MatchMode)
	}
	return nil
}

func (s *Store) SetEnabled(ctx context.Context, guildID string, enabled bool) (GuildSettings, error) {
	return s.Update(ctx, guildID, func(g *GuildSettings) error {
		g.Enabled = enabled
		return nil
	})
}

func (s *Store) SetOffensive(ctx context.Context, guildID string, enabled bool) (GuildSettings, error) {
	return s.Update(ctx, guildID, func(g *GuildSettings) error {
		g.BanDefaultOffensive = enabled
		return nil
	})
}

func (s *Store) SetMuteThreshold(ctx context.Context, guildID string, value int) (GuildSettings, error) {
	return s.Update(ctx, guildID, func(g *GuildSettings) error {
		if value < 1 || value >= g.BanThreshold {
			return invalid("Mute threshold must be at least 1 and lower than the ban threshold (%d).", g.BanThreshold)
		}
		g.MuteThreshold = value
		return nil
	})
}

func (s *Store) SetBanThreshold(ctx context.Context, guildID string, value int) (GuildSettings, error) {
	return s.Update(ctx, guildID, func(g *GuildSettings) error {
		if value <= g.MuteThreshold {
			return invalid("Ban threshold must be greater than the mute threshold (%d).", g.MuteThreshold)
		}
		g.BanThreshold = value
		return nil
	})
}

func (s *Store) SetMuteDuration(ctx context.Context, guildID string, minutes int) (GuildSettings, error) {
	return s.Update(ctx, guildID, func(g *GuildSettings) error {
		if minutes < 1 {
			return invalid("Mute duration must be at least 1 minute.")
		}
		g.MuteDurationMinutes = minutes
		return nil
	})
}

func (s *Store) AddBannedWord(ctx context.Context, guildID, word string) (GuildSettings, error) {
	word = strings.ToLower(strings.TrimSpace(word))
	return s.Update(ctx, guildID, func(g *GuildSettings) error {
		if word == "" {
			return invalid("Give a word to ban.")
		}
		for _, existing := range g.BannedWords {
			if existing == word {
				return invalid("`%s` is already banned.", word)
			}
		}
		g.BannedWords = append(g.BannedWords, word)
		return nil
	})
}

func (s *Store) RemoveBannedWord(ctx context.Context, guildID, word string) (GuildSettings, error) {
	word = strings.ToLower(strings.TrimSpace(word))
	return s.Update(ctx, guildID, func(g *GuildSettings) error {
		kept := g.BannedWords[:0]
		found := false
		for _, existing := range g.BannedWords {
			if existing == word {
				found = true
				continue
			}
			kept = append(kept, existing)
		}
		if !found {
			return invalid("`%s` is not in the banned word list.", word)
		}
		g.BannedWords = kept
		return nil
	})
}

// SetLogChannel stores the log channel; an empty id disables logging.
func (s *Store) SetLogChannel(ctx context.Context, guildID, channelID string) (GuildSettings, error) {
	return s.Update(ctx, guildID, func(g *GuildSettings) error {
		g.LogChannelID = channelID
		return nil
	})
}

func (s *Store) SetMuteRole(ctx context.Context, guildID, roleID string) (GuildSettings, error) {
	return s.Update(ctx, guildID, func(g *GuildSettings) error {
		g.MuteRoleID = roleID
		return nil
	})
}

func (s *Store) SetMatchMode(ctx context.Context, guildID, mode string) (GuildSettings, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	return s.Update(ctx, guildID, func(g *GuildSettings) error {
		if mode != MatchWord && mode != MatchSubstring {
			return invalid("Unknown match mode %q, use word or substring.", mode)
		}
		g.MatchMode = mode
		return nil
	})
}

// NormalizeWords lower-cases words and drops blanks and duplicates, keeping
// first-seen order.
func NormalizeWords(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, word := range words {
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		out = append(out, word)
	}
	return out
}

func normalizeMatchMode(mode string) string {
	if mode == "" {
		return MatchWord
	}
	return mode
}

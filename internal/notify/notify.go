// Package notify delivers sanction outcomes to the user and the guild log channel.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"warden/internal/config"
	"warden/internal/sanction"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Messenger interface {
	SendDM(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error
	SendChannel(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) error
	GuildName(guildID string) string
}

// Details is the body of a notification; title and color follow the kind.
type Details struct {
	Description string
	Fields      []*discordgo.MessageEmbedField
	Automatic   bool
}

// Sink is fire-and-forget: delivery errors are logged, never returned.
type Sink struct {
	messenger Messenger
	cfg       config.NotifyConfig
	logger    *zap.Logger
}

func New(messenger Messenger, cfg config.NotifyConfig, logger *zap.Logger) *Sink {
	return &Sink{messenger: messenger, cfg: cfg, logger: logger}
}

func (s *Sink) NotifyUser(ctx context.Context, userID string, kind sanction.Kind, details Details) {
	if !s.cfg.DMEnabled || userID == "" {
		return
	}
	embed := s.embed(userTitle(kind), details, s.color(kind))
	if err := s.messenger.SendDM(ctx, userID, embed); err != nil {
		s.logger.Debug("dm notification dropped", zap.String("user_id", userID), zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (s *Sink) NotifyLog(ctx context.Context, guildID, logChannelID string, kind sanction.Kind, details Details) {
	if !s.cfg.LogEnabled || logChannelID == "" {
		return
	}
	embed := s.embed(logTitle(kind, details.Automatic), details, s.color(kind))
	if err := s.messenger.SendChannel(ctx, logChannelID, embed); err != nil {
		s.logger.Warn("log channel notification failed", zap.String("guild_id", guildID), zap.String("channel_id", logChannelID), zap.Error(err))
	}
}

// LogEvent posts a guild event embed to the log channel.
func (s *Sink) LogEvent(ctx context.Context, guildID, channelID string, embed *discordgo.MessageEmbed) {
	if !s.cfg.LogEnabled || !s.cfg.EventLog || channelID == "" || embed == nil {
		return
	}
	if embed.Footer == nil {
		embed.Footer = s.footer()
	}
	if embed.Timestamp == "" {
		embed.Timestamp = time.Now().Format(time.RFC3339)
	}
	if err := s.messenger.SendChannel(ctx, channelID, embed); err != nil {
		s.logger.Debug("event log dropped", zap.String("guild_id", guildID), zap.String("channel_id", channelID), zap.Error(err))
	}
}

// Notify implements sanction.Notifier.
func (s *Sink) Notify(ctx context.Context, outcome sanction.Outcome) {
	guild := s.messenger.GuildName(outcome.GuildID)
	if guild == "" {
		guild = "this server"
	}
	if user, ok := userDetails(outcome, guild); ok {
		s.NotifyUser(ctx, outcome.UserID, outcome.Kind, user)
	}
	s.NotifyLog(ctx, outcome.GuildID, outcome.Settings.LogChannelID, outcome.Kind, logDetails(outcome))
}

func userDetails(outcome sanction.Outcome, guild string) (Details, bool) {
	d := Details{Automatic: outcome.Automatic}
	switch outcome.Kind {
	case sanction.KindWarned:
		d.Description = fmt.Sprintf("You received a warning in **%s**.", guild)
		d.Fields = warningFields(outcome)
	case sanction.KindMuted:
		d.Description = fmt.Sprintf("You've been muted in **%s** %s.", guild, durationText(outcome.Duration))
		d.Fields = fields("Reason", outcome.Reason, "Issuer", outcome.Issuer)
	case sanction.KindUnmuted:
		d.Description = fmt.Sprintf("You've been unmuted in **%s**.", guild)
		d.Fields = fields("Reason", outcome.Reason)
	case sanction.KindBanned:
		d.Description = fmt.Sprintf("You've been banned from **%s**.", guild)
		d.Fields = fields("Reason", outcome.Reason)
		if outcome.Warning != nil {
			d.Fields = append(d.Fields, fields("Last Warning", outcome.Warning.Reason, "Warnings", fmt.Sprintf("%d/%d", outcome.Count, outcome.Settings.BanThreshold))...)
		}
	case sanction.KindUnbanned:
		d.Description = fmt.Sprintf("You have been unbanned from **%s**.", guild)
	case sanction.KindKicked:
		d.Description = fmt.Sprintf("You've been kicked from **%s**.", guild)
		d.Fields = fields("Reason", outcome.Reason)
	default:
		return Details{}, false
	}
	return d, true
}

func logDetails(outcome sanction.Outcome) Details {
	d := Details{
		Automatic:   outcome.Automatic,
		Description: fmt.Sprintf("**User:** <@%s> (`%s`)", outcome.UserID, outcome.UserID),
	}
	switch outcome.Kind {
	case sanction.KindWarned:
		d.Fields = warningFields(outcome)
	case sanction.KindMuted:
		d.Fields = fields("Duration", durationValue(outcome.Duration), "Reason", outcome.Reason, "Issuer", outcome.Issuer)
		if outcome.Warning != nil {
			d.Fields = append(d.Fields, fields("Last Warning", outcome.Warning.Reason)...)
		}
	case sanction.KindBanned:
		d.Fields = fields("Reason", outcome.Reason, "Issuer", outcome.Issuer, "Warnings Purged", fmt.Sprintf("%d", outcome.Removed))
		if outcome.Warning != nil {
			d.Fields = append(d.Fields, fields("Last Warning", outcome.Warning.Reason)...)
		}
	case sanction.KindCleared:
		d.Fields = fields("Moderator", outcome.Issuer, "Removed", fmt.Sprintf("%d", outcome.Removed))
	case sanction.KindFailed:
		d.Fields = fields("Action", string(outcome.Attempted), "Error", errorText(outcome.Err))
		if outcome.Warning != nil {
			d.Fields = append(d.Fields, fields("Warning Kept", outcome.Warning.Reason)...)
		}
	default:
		d.Fields = fields("Reason", outcome.Reason, "Issuer", outcome.Issuer)
	}
	d.Fields = append(d.Fields, fields("Timestamp", outcome.At.UTC().Format(time.RFC3339))...)
	return d
}

func warningFields(outcome sanction.Outcome) []*discordgo.MessageEmbedField {
	timestamp := ""
	if outcome.Warning != nil {
		timestamp = outcome.Warning.Timestamp
	}
	return fields(
		"Reason", outcome.Reason,
		"Issuer", outcome.Issuer,
		"Timestamp", timestamp,
		"Warning Count", fmt.Sprintf("%d/%d Before Mute | (Ban at %d)", outcome.Count, outcome.Settings.MuteThreshold, outcome.Settings.BanThreshold),
	)
}

// ErrorText renders err for a moderator.
func ErrorText(err error) string { return errorText(err) }

func errorText(err error) string {
	switch {
	case err == nil:
		return "unknown error"
	case errors.Is(err, sanction.ErrForbidden):
		return "I don't have permission to do that. Check my role position and permissions."
	case errors.Is(err, sanction.ErrMuteRoleUnset):
		return "No mute role is configured. Run `automod muterole` first."
	default:
		return err.Error()
	}
}

func durationText(d time.Duration) string {
	if d <= 0 {
		return "until a moderator unmutes you"
	}
	return "for " + durationValue(d)
}

func durationValue(d time.Duration) string {
	if d <= 0 {
		return "Indefinite"
	}
	return fmt.Sprintf("%d minutes", int(d.Minutes()))
}

// fields pairs up name/value arguments, skipping empty values.
func fields(pairs ...string) []*discordgo.MessageEmbedField {
	var out []*discordgo.MessageEmbedField
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			continue
		}
		out = append(out, &discordgo.MessageEmbedField{Name: pairs[i], Value: pairs[i+1], Inline: false})
	}
	return out
}

func (s *Sink) embed(title string, details Details, color int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: details.Description,
		Color:       color,
		Fields:      details.Fields,
		Footer:      s.footer(),
		Timestamp:   time.Now().Format(time.RFC3339),
	}
}

func (s *Sink) footer() *discordgo.MessageEmbedFooter {
	text := s.cfg.BotName
	if s.cfg.BotVersion != "" {
		text += " v" + s.cfg.BotVersion
	}
	return &discordgo.MessageEmbedFooter{Text: text}
}

func (s *Sink) color(kind sanction.Kind) int {
	switch kind {
	case sanction.KindWarned:
		return s.cfg.EmbedColors.Warning
	case sanction.KindMuted, sanction.KindBanned, sanction.KindKicked, sanction.KindFailed:
		return s.cfg.EmbedColors.Danger
	case sanction.KindUnmuted, sanction.KindUnbanned, sanction.KindCleared:
		return s.cfg.EmbedColors.Success
	default:
		return s.cfg.EmbedColors.Info
	}
}

func userTitle(kind sanction.Kind) string {
	switch kind {
	case sanction.KindWarned:
		return "⚠️ Warning Issued"
	case sanction.KindMuted:
		return "🤐 Muted"
	case sanction.KindUnmuted:
		return "🔊 Unmuted"
	case sanction.KindBanned:
		return "⛔ Banned"
	case sanction.KindUnbanned:
		return "🔓 Unbanned"
	case sanction.KindKicked:
		return "👢 Kicked"
	default:
		return "Notice"
	}
}

func logTitle(kind sanction.Kind, automatic bool) string {
	prefix := ""
	if automatic {
		prefix = "Auto-Moderation "
	}
	switch kind {
	case sanction.KindWarned:
		return "⚠️ " + prefix + "Warning"
	case sanction.KindMuted:
		return "🤐 " + prefix + "Mute"
	case sanction.KindUnmuted:
		return "🔊 " + prefix + "Unmute"
	case sanction.KindBanned:
		return "⛔ " + prefix + "Ban"
	case sanction.KindUnbanned:
		return "🔓 User Unbanned"
	case sanction.KindKicked:
		return "👢 User Kicked"
	case sanction.KindCleared:
		return "🧹 Warnings Cleared"
	case sanction.KindFailed:
		return "❌ Moderation Action Failed"
	default:
		return string(kind)
	}
}

package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"warden/internal/modules/audit"
	"warden/internal/notify"
	"warden/internal/sanction"
	"warden/internal/storage"

	"github.com/bwmarrin/discordgo"
)

const (
	defaultReason    = "No reason provided"
	maxWarningsShown = 10
	maxPurge         = 100
)

func (b *Bot) registerCommands() {
	for _, cmd := range []*Command{
		{Name: "warn", Usage: "warn <user> [reason]", Description: "Warn a user; thresholds may mute or ban.", Permission: discordgo.PermissionKickMembers, Run: b.cmdWarn},
		{Name: "warnings", Usage: "warnings <user>", Description: "List a user's warnings.", Run: b.cmdWarnings},
		{Name: "clearwarnings", Usage: "clearwarnings <user>", Description: "Remove all of a user's warnings.", Permission: discordgo.PermissionKickMembers, Run: b.cmdClearWarnings},
		{Name: "delwarn", Usage: "delwarn <warning-id>", Description: "Remove a single warning.", Permission: discordgo.PermissionKickMembers, Run: b.cmdDeleteWarning},
		{Name: "mute", Usage: "mute <user> [minutes] [reason]", Description: "Give a user the mute role.", Permission: discordgo.PermissionManageRoles, Run: b.cmdMute},
		{Name: "unmute", Usage: "unmute <user>", Description: "Lift a mute.", Permission: discordgo.PermissionManageRoles, Run: b.cmdUnmute},
		{Name: "kick", Usage: "kick <user> [reason]", Description: "Kick a member.", Permission: discordgo.PermissionKickMembers, Run: b.cmdKick},
		{Name: "ban", Usage: "ban <user> [reason]", Description: "Ban a user and clear their warnings.", Permission: discordgo.PermissionBanMembers, Run: b.cmdBan},
		{Name: "unban", Usage: "unban <user-id> [reason]", Description: "Lift a ban.", Permission: discordgo.PermissionBanMembers, Run: b.cmdUnban},
		{Name: "clear", Usage: "clear <amount>", Description: "Delete recent messages in this channel (1-100).", Permission: discordgo.PermissionManageMessages, Run: b.cmdPurge},
		{Name: "automod", Usage: "automod <show|enable|disable|mute-threshold|ban-threshold|duration|offensive|addword|removeword|logchannel|muterole|matchmode|clearall> [value]", Description: "Configure auto-moderation.", Permission: discordgo.PermissionManageServer, Run: b.cmdAutomod},
		{Name: "modstats", Usage: "modstats [days]", Description: "Summarize moderation activity.", Permission: discordgo.PermissionManageServer, Run: b.cmdModStats},
		{Name: "modhelp", Usage: "modhelp", Description: "Show this help.", Run: b.cmdHelp},
		{Name: "lock", Usage: "lock", Description: "Restrict commands to developers.", DevOnly: true, Run: b.cmdLock},
		{Name: "unlock", Usage: "unlock", Description: "Open commands to everyone again.", DevOnly: true, Run: b.cmdUnlock},
		{Name: "status", Usage: "status", Description: "Show the bot's mode and connection.", DevOnly: true, Run: b.cmdStatus},
	} {
		b.dispatcher.Register(cmd)
	}
}

// target parses the user argument and refuses self-moderation.
func (b *Bot) target(inv *Invocation, usage string) (string, error) {
	userID, ok := parseUserID(inv.arg(0))
	if !ok {
		return "", &usageError{usage: b.dispatcher.Prefix() + usage}
	}
	if userID == inv.AuthorID {
		return "", notice("You can't use that on yourself.")
	}
	if b.session.State != nil && b.session.State.User != nil && userID == b.session.State.User.ID {
		return "", notice("I won't do that to myself.")
	}
	return userID, nil
}

func (b *Bot) cmdWarn(ctx context.Context, inv *Invocation) error {
	userID, err := b.target(inv, "warn <user> [reason]")
	if err != nil {
		return err
	}
	outcome, err := b.engine.Warn(ctx, sanction.ManualRequest{
		GuildID:   inv.GuildID,
		UserID:    userID,
		Moderator: inv.Moderator,
		Reason:    inv.rest(1, defaultReason),
	})
	if err != nil {
		return err
	}
	b.reply(inv.ChannelID, b.outcomeEmbed(outcome))
	return nil
}

func (b *Bot) cmdWarnings(ctx context.Context, inv *Invocation) error {
	userID, ok := parseUserID(inv.arg(0))
	if !ok {
		return &usageError{usage: b.dispatcher.Prefix() + "warnings <user>"}
	}
	warnings, err := b.store.ListWarnings(ctx, inv.GuildID, userID)
	if err != nil {
		return fmt.Errorf("list warnings: %w", err)
	}
	guild := b.settings.Get(ctx, inv.GuildID)
	b.reply(inv.ChannelID, b.warningsEmbed(userID, warnings, guild))
	return nil
}

func (b *Bot) cmdClearWarnings(ctx context.Context, inv *Invocation) error {
	userID, ok := parseUserID(inv.arg(0))
	if !ok {
		return &usageError{usage: b.dispatcher.Prefix() + "clearwarnings <user>"}
	}
	removed, err := b.engine.ClearWarnings(ctx, sanction.ManualRequest{GuildID: inv.GuildID, UserID: userID, Moderator: inv.Moderator})
	if err != nil {
		return err
	}
	if removed == 0 {
		return notice("<@%s> has no warnings.", userID)
	}
	b.reply(inv.ChannelID, b.commandEmbed("🧹 Warnings Cleared",
		fmt.Sprintf("Removed %d warning(s) from <@%s>.", removed, userID),
		b.cfg.Notifications.EmbedColors.Success, nil))
	return nil
}

func (b *Bot) cmdDeleteWarning(ctx context.Context, inv *Invocation) error {
	warningID := inv.arg(0)
	if warningID == "" {
		return &usageError{usage: b.dispatcher.Prefix() + "delwarn <warning-id>"}
	}

	unlock := b.store.LockGuild(inv.GuildID)
	warning, found, err := b.store.GetWarning(ctx, inv.GuildID, warningID)
	if err == nil && found {
		found, err = b.store.DeleteWarning(ctx, inv.GuildID, warningID)
	}
	unlock()
	if err != nil {
		return fmt.Errorf("delete warning: %w", err)
	}
	if !found {
		return notice("No warning with id `%s` in this server.", warningID)
	}

	b.audit.Log(ctx, audit.LevelInfo, inv.GuildID, warning.UserID, "warning_deleted",
		fmt.Sprintf("%s removed warning %s (%s)", inv.Moderator, warning.ID, warning.Reason))
	b.reply(inv.ChannelID, b.commandEmbed("🗑️ Warning Removed",
		fmt.Sprintf("Removed warning `%s` from <@%s>.", warning.ID, warning.UserID),
		b.cfg.Notifications.EmbedColors.Success,
		[]*discordgo.MessageEmbedField{{Name: "Reason", Value: warning.Reason}}))
	return nil
}

func (b *Bot) cmdMute(ctx context.Context, inv *Invocation) error {
	usage := "mute <user> [minutes] [reason]"
	userID, err := b.target(inv, usage)
	if err != nil {
		return err
	}

	var duration time.Duration
	reason := inv.rest(1, defaultReason)
	if minutes, convErr := strconv.Atoi(inv.arg(1)); convErr == nil {
		if minutes < 1 {
			return notice("Mute duration must be at least 1 minute.")
		}
		duration = time.Duration(minutes) * time.Minute
		reason = inv.rest(2, defaultReason)
	}

	outcome, err := b.engine.Mute(ctx, sanction.ManualRequest{
		GuildID:   inv.GuildID,
		UserID:    userID,
		Moderator: inv.Moderator,
		Reason:    reason,
		Duration:  duration,
	})
	if err != nil {
		return err
	}
	b.reply(inv.ChannelID, b.outcomeEmbed(outcome))
	return nil
}

func (b *Bot) cmdUnmute(ctx context.Context, inv *Invocation) error {
	userID, ok := parseUserID(inv.arg(0))
	if !ok {
		return &usageError{usage: b.dispatcher.Prefix() + "unmute <user>"}
	}
	outcome, err := b.engine.Unmute(ctx, sanction.ManualRequest{GuildID: inv.GuildID, UserID: userID, Moderator: inv.Moderator})
	if err != nil {
		return err
	}
	b.reply(inv.ChannelID, b.outcomeEmbed(outcome))
	return nil
}

func (b *Bot) cmdKick(ctx context.Context, inv *Invocation) error {
	userID, err := b.target(inv, "kick <user> [reason]")
	if err != nil {
		return err
	}
	outcome, err := b.engine.Kick(ctx, sanction.ManualRequest{
		GuildID:   inv.GuildID,
		UserID:    userID,
		Moderator: inv.Moderator,
		Reason:    inv.rest(1, defaultReason),
	})
	if err != nil {
		return err
	}
	b.reply(inv.ChannelID, b.outcomeEmbed(outcome))
	return nil
}

func (b *Bot) cmdBan(ctx context.Context, inv *Invocation) error {
	userID, err := b.target(inv, "ban <user> [reason]")
	if err != nil {
		return err
	}
	outcome, err := b.engine.Ban(ctx, sanction.ManualRequest{
		GuildID:   inv.GuildID,
		UserID:    userID,
		Moderator: inv.Moderator,
		Reason:    inv.rest(1, defaultReason),
	})
	if err != nil {
		return err
	}
	b.reply(inv.ChannelID, b.outcomeEmbed(outcome))
	return nil
}

func (b *Bot) cmdUnban(ctx context.Context, inv *Invocation) error {
	userID, ok := parseUserID(inv.arg(0))
	if !ok {
		return &usageError{usage: b.dispatcher.Prefix() + "unban <user-id> [reason]"}
	}
	outcome, err := b.engine.Unban(ctx, sanction.ManualRequest{
		GuildID:   inv.GuildID,
		UserID:    userID,
		Moderator: inv.Moderator,
		Reason:    inv.rest(1, defaultReason),
	})
	if err != nil {
		return err
	}
	b.reply(inv.ChannelID, b.outcomeEmbed(outcome))
	return nil
}

// cmdPurge deletes the invoking message plus up to amount messages before it.
func (b *Bot) cmdPurge(ctx context.Context, inv *Invocation) error {
	amount, err := strconv.Atoi(inv.arg(0))
	if err != nil {
		return &usageError{usage: b.dispatcher.Prefix() + "clear <amount>"}
	}
	if amount < 1 || amount > maxPurge {
		return notice("Amount must be between 1 and %d.", maxPurge)
	}

	messages, err := b.session.ChannelMessages(inv.ChannelID, amount, inv.MessageID, "", "")
	if err != nil {
		return fmt.Errorf("fetch messages: %w", err)
	}
	ids := []string{inv.MessageID}
	for _, message := range messages {
		ids = append(ids, message.ID)
	}
	// bulk delete takes at most 100 ids
	if len(ids) > maxPurge {
		ids = ids[:maxPurge]
	}
	if err := b.session.ChannelMessagesBulkDelete(inv.ChannelID, ids); err != nil {
		return notice("Couldn't delete those messages. Messages older than 14 days can't be bulk deleted.")
	}

	deleted := len(ids) - 1
	b.audit.Log(ctx, audit.LevelInfo, inv.GuildID, inv.AuthorID, "messages_purged",
		fmt.Sprintf("%s deleted %d message(s) in <#%s>", inv.Moderator, deleted, inv.ChannelID))
	b.replyTemp(inv.ChannelID, b.commandEmbed("🧹 Messages Deleted",
		fmt.Sprintf("Deleted %d message(s).", deleted),
		b.cfg.Notifications.EmbedColors.Success, nil))
	return nil
}

// outcomeEmbed renders the channel reply for a moderation command.
func (b *Bot) outcomeEmbed(outcome sanction.Outcome) *discordgo.MessageEmbed {
	colors := b.cfg.Notifications.EmbedColors
	user := "<@" + outcome.UserID + ">"
	reason := []*discordgo.MessageEmbedField{{Name: "Reason", Value: orDefault(outcome.Reason, defaultReason)}}

	switch outcome.Kind {
	case sanction.KindWarned:
		fields := reason
		if outcome.Warning != nil {
			fields = append(fields, &discordgo.MessageEmbedField{Name: "Warning ID", Value: "`" + outcome.Warning.ID + "`", Inline: true})
		}
		return b.commandEmbed("⚠️ Warning Issued",
			fmt.Sprintf("%s has been warned. (%d/%d before mute)", user, outcome.Count, outcome.Settings.MuteThreshold),
			colors.Warning, fields)
	case sanction.KindMuted:
		length := "until unmuted"
		if outcome.Duration > 0 {
			length = fmt.Sprintf("for %d minutes", int(outcome.Duration.Minutes()))
		}
		description := fmt.Sprintf("%s has been muted %s.", user, length)
		if outcome.Warning != nil {
			description = fmt.Sprintf("%s reached %d warnings and has been muted %s.", user, outcome.Count, length)
		}
		return b.commandEmbed("🔇 User Muted", description, colors.Warning, reason)
	case sanction.KindUnmuted:
		return b.commandEmbed("🔊 User Unmuted", user+" has been unmuted.", colors.Success, nil)
	case sanction.KindBanned:
		description := user + " has been banned."
		if outcome.Warning != nil {
			description = fmt.Sprintf("%s reached %d warnings and has been banned.", user, outcome.Count)
		}
		return b.commandEmbed("🔨 User Banned", description, colors.Danger, reason)
	case sanction.KindUnbanned:
		return b.commandEmbed("✅ User Unbanned", user+" has been unbanned.", colors.Success, reason)
	case sanction.KindKicked:
		return b.commandEmbed("👢 User Kicked", user+" has been kicked.", colors.Danger, reason)
	case sanction.KindFailed:
		description := fmt.Sprintf("Could not apply %s to %s: %s", outcome.Attempted, user, notify.ErrorText(outcome.Err))
		if outcome.Warning != nil {
			description = fmt.Sprintf("%s was warned (%d total) but the %s failed: %s",
				user, outcome.Count, failedAction(outcome.Attempted), notify.ErrorText(outcome.Err))
		}
		return b.commandEmbed("❌ Moderation Action Failed", description, colors.Danger, nil)
	default:
		return b.commandEmbed("ℹ️ Done", user, colors.Info, nil)
	}
}

func (b *Bot) warningsEmbed(userID string, warnings []storage.Warning, guild storage.GuildSettings) *discordgo.MessageEmbed {
	colors := b.cfg.Notifications.EmbedColors
	if len(warnings) == 0 {
		return b.commandEmbed("📋 Warnings", fmt.Sprintf("<@%s> has no warnings.", userID), colors.Success, nil)
	}

	shown := warnings
	if len(shown) > maxWarningsShown {
		shown = shown[len(shown)-maxWarningsShown:]
	}
	fields := make([]*discordgo.MessageEmbedField, 0, len(shown))
	for _, w := range shown {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("#%d · %s", w.Seq, w.ID),
			Value: fmt.Sprintf("%s\nby %s · %s", w.Reason, w.Issuer, formatTimestamp(w.Timestamp)),
		})
	}

	description := fmt.Sprintf("<@%s> has %d warning(s). Mute at %d, ban at %d.",
		userID, len(warnings), guild.MuteThreshold, guild.BanThreshold)
	if len(warnings) > len(shown) {
		description += fmt.Sprintf("\nShowing the latest %d.", len(shown))
	}
	return b.commandEmbed("📋 Warnings", description, colors.Warning, fields)
}

func failedAction(kind sanction.Kind) string {
	switch kind {
	case sanction.KindMuted:
		return "mute"
	case sanction.KindBanned:
		return "ban"
	default:
		return string(kind)
	}
}

// formatTimestamp renders an RFC 3339 time as a Discord timestamp tag.
func formatTimestamp(value string) string {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return fmt.Sprintf("<t:%d:f>", parsed.Unix())
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

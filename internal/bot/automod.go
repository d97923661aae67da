package bot

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"warden/internal/analytics"
	"warden/internal/config"
	"warden/internal/modules/audit"
	"warden/internal/settings"
	"warden/internal/storage"

	"github.com/bwmarrin/discordgo"
)

const (
	defaultStatsDays = 7
	maxStatsDays     = 365
	maxWordsListed   = 20
)

func (b *Bot) cmdAutomod(ctx context.Context, inv *Invocation) error {
	sub := strings.ToLower(inv.arg(0))
	value := inv.arg(1)
	usage := func(form string) error {
		return &usageError{usage: b.dispatcher.Prefix() + "automod " + form}
	}

	var (
		updated storage.GuildSettings
		err     error
		message string
	)
	switch sub {
	case "", "show":
		return b.showSettings(ctx, inv)
	case "enable", "disable":
		updated, err = b.settings.SetEnabled(ctx, inv.GuildID, sub == "enable")
		message = "Auto-moderation " + sub + "d."
	case "mute-threshold", "ban-threshold", "duration":
		n, convErr := strconv.Atoi(value)
		if convErr != nil {
			return usage(sub + " <number>")
		}
		switch sub {
		case "mute-threshold":
			updated, err = b.settings.SetMuteThreshold(ctx, inv.GuildID, n)
			message = fmt.Sprintf("Users are now muted at %d warnings.", n)
		case "ban-threshold":
			updated, err = b.settings.SetBanThreshold(ctx, inv.GuildID, n)
			message = fmt.Sprintf("Users are now banned at %d warnings.", n)
		default:
			updated, err = b.settings.SetMuteDuration(ctx, inv.GuildID, n)
			message = fmt.Sprintf("Automatic mutes now last %d minutes.", n)
		}
	case "offensive":
		on, ok := parseToggle(value)
		if !ok {
			return usage("offensive on|off")
		}
		updated, err = b.settings.SetOffensive(ctx, inv.GuildID, on)
		message = "Built-in offensive word list " + onOff(on) + "."
	case "addword", "removeword":
		word := restAfter(inv.Text, 1)
		if word == "" {
			return usage(sub + " <word>")
		}
		if sub == "addword" {
			updated, err = b.settings.AddBannedWord(ctx, inv.GuildID, word)
			message = fmt.Sprintf("Added `%s` to the banned words.", strings.ToLower(word))
		} else {
			updated, err = b.settings.RemoveBannedWord(ctx, inv.GuildID, word)
			message = fmt.Sprintf("Removed `%s` from the banned words.", strings.ToLower(word))
		}
		// keep the banned word out of the channel
		_ = b.session.ChannelMessageDelete(inv.ChannelID, inv.MessageID)
	case "logchannel":
		channelID := ""
		if strings.ToLower(value) != "off" {
			id, ok := parseChannelID(value)
			if !ok {
				return usage("logchannel #channel|off")
			}
			channelID = id
		}
		updated, err = b.settings.SetLogChannel(ctx, inv.GuildID, channelID)
		message = "Moderation logging disabled."
		if channelID != "" {
			message = "Moderation logs now go to <#" + channelID + ">."
		}
	case "muterole":
		return b.configureMuteRole(ctx, inv, value)
	case "matchmode":
		if value == "" {
			return usage("matchmode word|substring")
		}
		updated, err = b.settings.SetMatchMode(ctx, inv.GuildID, value)
		message = "Match mode set to " + strings.ToLower(value) + "."
	case "clearall":
		return b.clearAllWarnings(ctx, inv)
	default:
		return usage("<show|enable|disable|mute-threshold|ban-threshold|duration|offensive|addword|removeword|logchannel|muterole|matchmode|clearall> [value]")
	}
	if err != nil {
		return err
	}

	b.audit.Log(ctx, audit.LevelInfo, inv.GuildID, inv.AuthorID, "settings_changed", fmt.Sprintf("%s: automod %s", inv.Moderator, sub))
	b.reply(inv.ChannelID, b.commandEmbed("⚙️ Auto-Moderation Updated", message, b.cfg.Notifications.EmbedColors.Success,
		[]*discordgo.MessageEmbedField{{Name: "Status", Value: enabledLabel(updated.Enabled), Inline: true}}))
	return nil
}

func (b *Bot) showSettings(ctx context.Context, inv *Invocation) error {
	guild := b.settings.Get(ctx, inv.GuildID)
	total, err := b.store.CountGuildWarnings(ctx, inv.GuildID)
	if err != nil {
		return fmt.Errorf("count warnings: %w", err)
	}
	b.reply(inv.ChannelID, b.settingsEmbed(guild, total))
	return nil
}

// configureMuteRole stores an explicit role, or reuses or creates the
// configured mute role when none is given.
func (b *Bot) configureMuteRole(ctx context.Context, inv *Invocation, value string) error {
	if value != "" {
		roleID, ok := parseRoleID(value)
		if !ok {
			return &usageError{usage: b.dispatcher.Prefix() + "automod muterole [@role]"}
		}
		if _, err := b.settings.SetMuteRole(ctx, inv.GuildID, roleID); err != nil {
			return err
		}
		b.audit.Log(ctx, audit.LevelInfo, inv.GuildID, inv.AuthorID, "settings_changed", fmt.Sprintf("%s: mute role set to %s", inv.Moderator, roleID))
		b.reply(inv.ChannelID, b.commandEmbed("🔇 Mute Role Set", "Mute role is now <@&"+roleID+">.", b.cfg.Notifications.EmbedColors.Success, nil))
		return nil
	}

	name := b.cfg.Commands.MuteRoleName
	roleID, found := b.discord.FindRole(inv.GuildID, name)
	description := fmt.Sprintf("Using the existing **%s** role <@&%s>.", name, roleID)
	if !found {
		created, skipped, err := b.discord.CreateMuteRole(ctx, inv.GuildID, name)
		if err != nil {
			return err
		}
		roleID = created
		description = fmt.Sprintf("Created <@&%s> and denied it sending and speaking.", roleID)
		if skipped > 0 {
			description += fmt.Sprintf("\n%d channel(s) could not be updated.", skipped)
		}
	}
	if _, err := b.settings.SetMuteRole(ctx, inv.GuildID, roleID); err != nil {
		return err
	}
	b.audit.Log(ctx, audit.LevelInfo, inv.GuildID, inv.AuthorID, "settings_changed", fmt.Sprintf("%s: mute role set to %s", inv.Moderator, roleID))
	b.reply(inv.ChannelID, b.commandEmbed("🔇 Mute Role Set", description, b.cfg.Notifications.EmbedColors.Success, nil))
	return nil
}

func (b *Bot) clearAllWarnings(ctx context.Context, inv *Invocation) error {
	unlock := b.store.LockGuild(inv.GuildID)
	removed, err := b.store.ClearGuildWarnings(ctx, inv.GuildID)
	unlock()
	if err != nil {
		return fmt.Errorf("clear guild warnings: %w", err)
	}
	b.audit.Log(ctx, audit.LevelWarn, inv.GuildID, inv.AuthorID, "warnings_cleared_all", fmt.Sprintf("%s cleared %d warning(s)", inv.Moderator, removed))
	b.reply(inv.ChannelID, b.commandEmbed("🧹 All Warnings Cleared",
		fmt.Sprintf("Removed %d warning(s) from this server.", removed),
		b.cfg.Notifications.EmbedColors.Success, nil))
	return nil
}

func (b *Bot) cmdModStats(ctx context.Context, inv *Invocation) error {
	days := defaultStatsDays
	if raw := inv.arg(0); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxStatsDays {
			return notice("Days must be a number between 1 and %d.", maxStatsDays)
		}
		days = n
	}
	report, err := b.analytics.Report(ctx, inv.GuildID, time.Now().AddDate(0, 0, -days))
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}
	b.reply(inv.ChannelID, b.statsEmbed(report, days))
	return nil
}

func (b *Bot) cmdHelp(_ context.Context, inv *Invocation) error {
	b.reply(inv.ChannelID, b.helpEmbed())
	return nil
}

func (b *Bot) cmdLock(ctx context.Context, inv *Invocation) error {
	return b.setMode(ctx, inv, config.ModeLocked)
}

func (b *Bot) cmdUnlock(ctx context.Context, inv *Invocation) error {
	return b.setMode(ctx, inv, config.ModeUnlocked)
}

func (b *Bot) setMode(ctx context.Context, inv *Invocation, mode config.OperationalMode) error {
	if b.dispatcher.Mode() == mode {
		return notice("The bot is already %s.", mode)
	}
	b.dispatcher.SetMode(mode)
	b.audit.Log(ctx, audit.LevelWarn, inv.GuildID, inv.AuthorID, "mode_changed", fmt.Sprintf("%s set mode to %s", inv.Moderator, mode))
	title := "🔓 Bot Unlocked"
	if mode == config.ModeLocked {
		title = "🔒 Bot Locked"
	}
	b.reply(inv.ChannelID, b.commandEmbed(title, "Operational mode is now **"+string(mode)+"**.", b.cfg.Notifications.EmbedColors.Info, nil))
	return nil
}

func (b *Bot) cmdStatus(_ context.Context, inv *Invocation) error {
	guilds := 0
	if b.session.State != nil {
		guilds = len(b.session.State.Guilds)
	}
	b.reply(inv.ChannelID, b.commandEmbed("📡 Status", "", b.cfg.Notifications.EmbedColors.Info, []*discordgo.MessageEmbedField{
		{Name: "Mode", Value: string(b.dispatcher.Mode()), Inline: true},
		{Name: "Servers", Value: strconv.Itoa(guilds), Inline: true},
		{Name: "Latency", Value: b.session.HeartbeatLatency().Round(time.Millisecond).String(), Inline: true},
		{Name: "Version", Value: b.cfg.Notifications.BotVersion, Inline: true},
	}))
	return nil
}

func (b *Bot) settingsEmbed(guild storage.GuildSettings, totalWarnings int) *discordgo.MessageEmbed {
	logChannel := "Not set"
	if guild.LogChannelID != "" {
		logChannel = "<#" + guild.LogChannelID + ">"
	}
	muteRole := "Not set"
	if guild.MuteRoleID != "" {
		muteRole = "<@&" + guild.MuteRoleID + ">"
	}
	words := "None"
	if len(guild.BannedWords) > 0 {
		listed := guild.BannedWords
		if len(listed) > maxWordsListed {
			listed = listed[:maxWordsListed]
		}
		words = "||" + strings.Join(listed, ", ") + "||"
		if extra := len(guild.BannedWords) - len(listed); extra > 0 {
			words += fmt.Sprintf(" and %d more", extra)
		}
	}

	return b.commandEmbed("🛡️ Auto-Moderation Settings", "", b.cfg.Notifications.EmbedColors.Info, []*discordgo.MessageEmbedField{
		{Name: "Status", Value: enabledLabel(guild.Enabled), Inline: true},
		{Name: "Mute Threshold", Value: strconv.Itoa(guild.MuteThreshold), Inline: true},
		{Name: "Ban Threshold", Value: strconv.Itoa(guild.BanThreshold), Inline: true},
		{Name: "Mute Duration", Value: fmt.Sprintf("%d minutes", guild.MuteDurationMinutes), Inline: true},
		{Name: "Offensive Filter", Value: enabledLabel(guild.BanDefaultOffensive), Inline: true},
		{Name: "Match Mode", Value: orDefault(guild.MatchMode, settings.MatchWord), Inline: true},
		{Name: "Log Channel", Value: logChannel, Inline: true},
		{Name: "Mute Role", Value: muteRole, Inline: true},
		{Name: "Total Warnings", Value: strconv.Itoa(totalWarnings), Inline: true},
		{Name: fmt.Sprintf("Banned Words (%d)", len(guild.BannedWords)), Value: words},
	})
}

func (b *Bot) statsEmbed(report analytics.Report, days int) *discordgo.MessageEmbed {
	colors := b.cfg.Notifications.EmbedColors
	title := fmt.Sprintf("📊 Moderation Stats (last %d days)", days)
	if report.Total == 0 {
		return b.commandEmbed(title, "No moderation activity recorded.", colors.Info, nil)
	}
	return b.commandEmbed(title, "", colors.Info, []*discordgo.MessageEmbedField{
		{Name: "Total Actions", Value: strconv.Itoa(report.Total), Inline: true},
		{Name: "Users Affected", Value: strconv.Itoa(report.Users), Inline: true},
		{Name: "By Severity", Value: countLines(report.ByLevel)},
		{Name: "By Event", Value: countLines(report.ByEvent)},
	})
}

func (b *Bot) helpEmbed() *discordgo.MessageEmbed {
	var lines []string
	for _, cmd := range b.dispatcher.Commands() {
		line := fmt.Sprintf("`%s%s` %s", b.dispatcher.Prefix(), cmd.Usage, cmd.Description)
		if cmd.DevOnly {
			line += " *(dev)*"
		}
		lines = append(lines, line)
	}
	return b.commandEmbed("📖 Moderation Commands", strings.Join(lines, "\n"), b.cfg.Notifications.EmbedColors.Info, nil)
}

// countLines renders a count map as "key: n" lines, largest first.
func countLines(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("%s: %d", key, counts[key]))
	}
	if len(lines) == 0 {
		return "None"
	}
	return strings.Join(lines, "\n")
}

func enabledLabel(on bool) string {
	if on {
		return "✅ Enabled"
	}
	return "❌ Disabled"
}

func onOff(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"warden/internal/utils"

	"github.com/bwmarrin/discordgo"
)

const maxFieldLength = 1024

// auditMessage posts attachment and link activity to the guild log.
func (b *Bot) auditMessage(ctx context.Context, msg *discordgo.MessageCreate, logChannelID string) {
	if embed := b.attachmentEmbed(msg.Author, msg.ChannelID, msg.Attachments); embed != nil {
		b.sink.LogEvent(ctx, msg.GuildID, logChannelID, embed)
	}
	if embed := b.linkEmbed(msg.Author, msg.ChannelID, utils.URLHosts(msg.Content)); embed != nil {
		b.sink.LogEvent(ctx, msg.GuildID, logChannelID, embed)
	}
}

func (b *Bot) logEvent(guildID string, embed *discordgo.MessageEmbed) {
	if guildID == "" || embed == nil {
		return
	}
	ctx := context.Background()
	b.sink.LogEvent(ctx, guildID, b.settings.Get(ctx, guildID).LogChannelID, embed)
}

func (b *Bot) onGuildMemberAdd(_ *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.Member == nil || event.Member.User == nil {
		return
	}
	b.logEvent(event.GuildID, b.memberEmbed("📥 Member Joined", event.Member.User, b.cfg.Notifications.EmbedColors.Success, true))
}

func (b *Bot) onGuildMemberRemove(_ *discordgo.Session, event *discordgo.GuildMemberRemove) {
	if event.Member == nil || event.Member.User == nil {
		return
	}
	b.logEvent(event.GuildID, b.memberEmbed("📤 Member Left", event.Member.User, b.cfg.Notifications.EmbedColors.Warning, false))
}

func (b *Bot) onGuildBanAdd(_ *discordgo.Session, event *discordgo.GuildBanAdd) {
	if event.User == nil {
		return
	}
	b.logEvent(event.GuildID, b.memberEmbed("🔨 Member Banned", event.User, b.cfg.Notifications.EmbedColors.Danger, false))
}

func (b *Bot) onGuildBanRemove(_ *discordgo.Session, event *discordgo.GuildBanRemove) {
	if event.User == nil {
		return
	}
	b.logEvent(event.GuildID, b.memberEmbed("✅ Member Unbanned", event.User, b.cfg.Notifications.EmbedColors.Success, false))
}

// onGuildMemberUpdate needs the cached member from state; updates for
// members not yet cached are skipped.
func (b *Bot) onGuildMemberUpdate(_ *discordgo.Session, event *discordgo.GuildMemberUpdate) {
	if event.Member == nil || event.Member.User == nil || event.BeforeUpdate == nil {
		return
	}
	ctx := context.Background()
	guild := b.settings.Get(ctx, event.GuildID)
	for _, embed := range b.memberChangeEmbeds(event.BeforeUpdate, event.Member, guild.MuteRoleID) {
		b.sink.LogEvent(ctx, event.GuildID, guild.LogChannelID, embed)
	}
}

func (b *Bot) onMessageDelete(_ *discordgo.Session, event *discordgo.MessageDelete) {
	if event.BeforeDelete == nil || event.BeforeDelete.Author == nil || event.BeforeDelete.Author.Bot {
		return
	}
	b.logEvent(event.GuildID, b.deletedEmbed(event.BeforeDelete))
}

func (b *Bot) onMessageUpdate(_ *discordgo.Session, event *discordgo.MessageUpdate) {
	if event.Message == nil || event.BeforeUpdate == nil || event.BeforeUpdate.Author == nil || event.BeforeUpdate.Author.Bot {
		return
	}
	b.logEvent(event.GuildID, b.editedEmbed(event.BeforeUpdate, event.Message))
}

func (b *Bot) onChannelCreate(_ *discordgo.Session, event *discordgo.ChannelCreate) {
	if event.Channel == nil || event.GuildID == "" {
		return
	}
	b.logEvent(event.GuildID, b.channelEmbed(event.Channel, true))
}

func (b *Bot) onChannelDelete(_ *discordgo.Session, event *discordgo.ChannelDelete) {
	if event.Channel == nil || event.GuildID == "" {
		return
	}
	b.logEvent(event.GuildID, b.channelEmbed(event.Channel, false))
}

// onVoiceStateUpdate logs joins, leaves and moves. Mute and deafen toggles
// keep the channel and are ignored.
func (b *Bot) onVoiceStateUpdate(_ *discordgo.Session, event *discordgo.VoiceStateUpdate) {
	if event.VoiceState == nil {
		return
	}
	before := ""
	if event.BeforeUpdate != nil {
		before = event.BeforeUpdate.ChannelID
	}
	b.logEvent(event.GuildID, b.voiceEmbed(event.UserID, before, event.ChannelID))
}

func (b *Bot) onGuildCreate(_ *discordgo.Session, event *discordgo.GuildCreate) {
	if event.Guild == nil {
		return
	}
	b.roles.remember(event.Roles...)
}

func (b *Bot) onGuildRoleCreate(_ *discordgo.Session, event *discordgo.GuildRoleCreate) {
	if event.GuildRole == nil || event.Role == nil {
		return
	}
	b.roles.remember(event.Role)
	b.logEvent(event.GuildID, b.roleEmbed("🆕 Role Created", event.Role.ID, event.Role.Name, b.cfg.Notifications.EmbedColors.Success))
}

func (b *Bot) onGuildRoleDelete(_ *discordgo.Session, event *discordgo.GuildRoleDelete) {
	name := event.RoleID
	if role, ok := b.roles.forget(event.RoleID); ok {
		name = role.Name
	}
	b.logEvent(event.GuildID, b.roleEmbed("❌ Role Deleted", event.RoleID, name, b.cfg.Notifications.EmbedColors.Danger))
}

// onGuildRoleUpdate compares against the last snapshot of the role, since
// state already holds the new version when handlers run.
func (b *Bot) onGuildRoleUpdate(_ *discordgo.Session, event *discordgo.GuildRoleUpdate) {
	if event.GuildRole == nil || event.Role == nil {
		return
	}
	before, ok := b.roles.swap(event.Role)
	if !ok {
		return
	}
	b.logEvent(event.GuildID, b.rolePermissionsEmbed(before, *event.Role))
}

func (b *Bot) memberEmbed(title string, user *discordgo.User, color int, showCreated bool) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: fmt.Sprintf("<@%s> (%s)", user.ID, user.Username),
		Color:       color,
		Fields:      []*discordgo.MessageEmbedField{{Name: "User ID", Value: user.ID, Inline: true}},
	}
	if showCreated {
		if created, err := discordgo.SnowflakeTimestamp(user.ID); err == nil {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:   "Account Created",
				Value:  fmt.Sprintf("<t:%d:R>", created.Unix()),
				Inline: true,
			})
		}
	}
	return embed
}

// memberChangeEmbeds reports nickname changes and the mute role being
// granted or removed outside the bot.
func (b *Bot) memberChangeEmbeds(before, after *discordgo.Member, muteRoleID string) []*discordgo.MessageEmbed {
	colors := b.cfg.Notifications.EmbedColors
	user := after.User
	var out []*discordgo.MessageEmbed

	if before.Nick != after.Nick {
		out = append(out, &discordgo.MessageEmbed{
			Title:       "✏️ Nickname Changed",
			Description: fmt.Sprintf("<@%s>", user.ID),
			Color:       colors.Info,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Before", Value: orDefault(before.Nick, "*none*"), Inline: true},
				{Name: "After", Value: orDefault(after.Nick, "*none*"), Inline: true},
			},
		})
	}

	if muteRoleID == "" {
		return out
	}
	had, has := hasRole(before.Roles, muteRoleID), hasRole(after.Roles, muteRoleID)
	switch {
	case !had && has:
		out = append(out, &discordgo.MessageEmbed{
			Title:       "🔇 Mute Role Added",
			Description: fmt.Sprintf("<@%s> received <@&%s>.", user.ID, muteRoleID),
			Color:       colors.Warning,
		})
	case had && !has:
		out = append(out, &discordgo.MessageEmbed{
			Title:       "🔊 Mute Role Removed",
			Description: fmt.Sprintf("<@%s> lost <@&%s>.", user.ID, muteRoleID),
			Color:       colors.Success,
		})
	}
	return out
}

func (b *Bot) deletedEmbed(message *discordgo.Message) *discordgo.MessageEmbed {
	content := truncate(message.Content, maxFieldLength)
	if content == "" {
		content = "*no text content*"
	}
	return &discordgo.MessageEmbed{
		Title:       "🗑️ Message Deleted",
		Description: fmt.Sprintf("Message by <@%s> deleted in <#%s>.", message.Author.ID, message.ChannelID),
		Color:       b.cfg.Notifications.EmbedColors.Warning,
		Fields:      []*discordgo.MessageEmbedField{{Name: "Content", Value: content}},
	}
}

func (b *Bot) attachmentEmbed(author *discordgo.User, channelID string, attachments []*discordgo.MessageAttachment) *discordgo.MessageEmbed {
	if author == nil || len(attachments) == 0 {
		return nil
	}
	names := make([]string, 0, len(attachments))
	for _, attachment := range attachments {
		names = append(names, attachment.Filename)
	}
	return &discordgo.MessageEmbed{
		Title:       "📎 Attachment Sent",
		Description: fmt.Sprintf("<@%s> sent %d attachment(s) in <#%s>.", author.ID, len(attachments), channelID),
		Color:       b.cfg.Notifications.EmbedColors.Info,
		Fields:      []*discordgo.MessageEmbedField{{Name: "Files", Value: truncate(strings.Join(names, "\n"), maxFieldLength)}},
	}
}

func (b *Bot) linkEmbed(author *discordgo.User, channelID string, hosts []string) *discordgo.MessageEmbed {
	if author == nil || len(hosts) == 0 {
		return nil
	}
	return &discordgo.MessageEmbed{
		Title:       "🔗 Link Sent",
		Description: fmt.Sprintf("<@%s> posted a link in <#%s>.", author.ID, channelID),
		Color:       b.cfg.Notifications.EmbedColors.Info,
		Fields:      []*discordgo.MessageEmbedField{{Name: "Domains", Value: truncate(strings.Join(hosts, "\n"), maxFieldLength)}},
	}
}

// editedEmbed returns nil when only embeds or pins changed.
func (b *Bot) editedEmbed(before, after *discordgo.Message) *discordgo.MessageEmbed {
	if before.Content == after.Content {
		return nil
	}
	return &discordgo.MessageEmbed{
		Title:       "✏️ Message Edited",
		Description: fmt.Sprintf("Message by <@%s> edited in <#%s>.", before.Author.ID, after.ChannelID),
		Color:       b.cfg.Notifications.EmbedColors.Info,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Before", Value: orDefault(truncate(before.Content, maxFieldLength), "*no text content*")},
			{Name: "After", Value: orDefault(truncate(after.Content, maxFieldLength), "*no text content*")},
		},
	}
}

func (b *Bot) channelEmbed(channel *discordgo.Channel, created bool) *discordgo.MessageEmbed {
	title, color := "❌ Channel Deleted", b.cfg.Notifications.EmbedColors.Danger
	if created {
		title, color = "🆕 Channel Created", b.cfg.Notifications.EmbedColors.Success
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: fmt.Sprintf("**Channel:** #%s", channel.Name),
		Color:       color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Channel ID", Value: channel.ID, Inline: true},
			{Name: "Type", Value: channelTypeName(channel.Type), Inline: true},
		},
	}
}

func (b *Bot) voiceEmbed(userID, before, after string) *discordgo.MessageEmbed {
	colors := b.cfg.Notifications.EmbedColors
	switch {
	case before == after:
		return nil
	case before == "":
		return &discordgo.MessageEmbed{
			Title:       "🎤 Joined Voice Channel",
			Description: fmt.Sprintf("<@%s> joined <#%s>.", userID, after),
			Color:       colors.Success,
		}
	case after == "":
		return &discordgo.MessageEmbed{
			Title:       "🎤 Left Voice Channel",
			Description: fmt.Sprintf("<@%s> left <#%s>.", userID, before),
			Color:       colors.Danger,
		}
	default:
		return &discordgo.MessageEmbed{
			Title:       "🔀 Switched Voice Channel",
			Description: fmt.Sprintf("<@%s> moved from <#%s> to <#%s>.", userID, before, after),
			Color:       colors.Info,
		}
	}
}

func (b *Bot) roleEmbed(title, roleID, name string, color int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: fmt.Sprintf("**Role:** %s", name),
		Color:       color,
		Fields:      []*discordgo.MessageEmbedField{{Name: "Role ID", Value: roleID, Inline: true}},
	}
}

// rolePermissionsEmbed returns nil unless the permission bits changed.
func (b *Bot) rolePermissionsEmbed(before, after discordgo.Role) *discordgo.MessageEmbed {
	if before.Permissions == after.Permissions {
		return nil
	}
	granted := after.Permissions &^ before.Permissions
	revoked := before.Permissions &^ after.Permissions
	return &discordgo.MessageEmbed{
		Title:       "⚙️ Role Permissions Updated",
		Description: fmt.Sprintf("**Role:** <@&%s> (%s)", after.ID, after.Name),
		Color:       b.cfg.Notifications.EmbedColors.Info,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Granted", Value: permissionList(granted), Inline: true},
			{Name: "Revoked", Value: permissionList(revoked), Inline: true},
		},
	}
}

var permissionLabels = []struct {
	bit  int64
	name string
}{
	{discordgo.PermissionAdministrator, "Administrator"},
	{discordgo.PermissionManageServer, "Manage Server"},
	{discordgo.PermissionManageRoles, "Manage Roles"},
	{discordgo.PermissionManageChannels, "Manage Channels"},
	{discordgo.PermissionManageMessages, "Manage Messages"},
	{discordgo.PermissionManageWebhooks, "Manage Webhooks"},
	{discordgo.PermissionKickMembers, "Kick Members"},
	{discordgo.PermissionBanMembers, "Ban Members"},
	{discordgo.PermissionModerateMembers, "Timeout Members"},
	{discordgo.PermissionMentionEveryone, "Mention Everyone"},
	{discordgo.PermissionSendMessages, "Send Messages"},
	{discordgo.PermissionViewChannel, "View Channels"},
	{discordgo.PermissionVoiceSpeak, "Speak"},
	{discordgo.PermissionVoiceConnect, "Connect"},
}

// permissionList names the well-known bits in perms; anything else is shown
// as a hex remainder.
func permissionList(perms int64) string {
	if perms == 0 {
		return "*none*"
	}
	var names []string
	for _, label := range permissionLabels {
		if perms&label.bit != 0 {
			names = append(names, label.name)
			perms &^= label.bit
		}
	}
	if perms != 0 {
		names = append(names, fmt.Sprintf("`%#x`", perms))
	}
	return strings.Join(names, "\n")
}

func channelTypeName(kind discordgo.ChannelType) string {
	switch kind {
	case discordgo.ChannelTypeGuildText:
		return "Text"
	case discordgo.ChannelTypeGuildVoice:
		return "Voice"
	case discordgo.ChannelTypeGuildCategory:
		return "Category"
	case discordgo.ChannelTypeGuildNews:
		return "Announcement"
	case discordgo.ChannelTypeGuildStageVoice:
		return "Stage"
	case discordgo.ChannelTypeGuildForum:
		return "Forum"
	default:
		return "Other"
	}
}

// roleCache keeps the last seen version of every role so updates and
// deletes can be described after state has moved on.
type roleCache struct {
	mu    sync.Mutex
	roles map[string]discordgo.Role
}

func newRoleCache() *roleCache {
	return &roleCache{roles: make(map[string]discordgo.Role)}
}

func (c *roleCache) remember(roles ...*discordgo.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, role := range roles {
		if role != nil {
			c.roles[role.ID] = *role
		}
	}
}

// swap stores role and returns the version it replaced.
func (c *roleCache) swap(role *discordgo.Role) (discordgo.Role, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	before, ok := c.roles[role.ID]
	c.roles[role.ID] = *role
	return before, ok
}

func (c *roleCache) forget(roleID string) (discordgo.Role, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	role, ok := c.roles[roleID]
	delete(c.roles, roleID)
	return role, ok
}

func hasRole(roles []string, roleID string) bool {
	for _, role := range roles {
		if role == roleID {
			return true
		}
	}
	return false
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

// Package platform adapts a discordgo session to the moderation interfaces.
package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"warden/internal/sanction"

	"github.com/bwmarrin/discordgo"
)

const mutedDeny = discordgo.PermissionSendMessages |
	discordgo.PermissionVoiceSpeak |
	discordgo.PermissionAddReactions |
	discordgo.PermissionSendMessagesInThreads

type Discord struct {
	session *discordgo.Session
}

func NewDiscord(session *discordgo.Session) *Discord {
	return &Discord{session: session}
}

func (d *Discord) AddRole(_ context.Context, guildID, userID, roleID, reason string) error {
	return classify(d.session.GuildMemberRoleAdd(guildID, userID, roleID, auditReason(reason)...))
}

func (d *Discord) RemoveRole(_ context.Context, guildID, userID, roleID string) error {
	return classify(d.session.GuildMemberRoleRemove(guildID, userID, roleID))
}

func (d *Discord) HasRole(_ context.Context, guildID, userID, roleID string) (bool, error) {
	member, err := d.member(guildID, userID)
	if err != nil {
		return false, err
	}
	for _, id := range member.Roles {
		if id == roleID {
			return true, nil
		}
	}
	return false, nil
}

func (d *Discord) Ban(_ context.Context, guildID, userID, reason string) error {
	return classify(d.session.GuildBanCreateWithReason(guildID, userID, reason, 0))
}

func (d *Discord) Unban(_ context.Context, guildID, userID string) error {
	return classify(d.session.GuildBanDelete(guildID, userID))
}

func (d *Discord) Kick(_ context.Context, guildID, userID, reason string) error {
	return classify(d.session.GuildMemberDeleteWithReason(guildID, userID, reason))
}

func (d *Discord) SendDM(_ context.Context, userID string, embed *discordgo.MessageEmbed) error {
	channel, err := d.session.UserChannelCreate(userID)
	if err != nil {
		return classify(err)
	}
	_, err = d.session.ChannelMessageSendEmbed(channel.ID, embed)
	return classify(err)
}

func (d *Discord) SendChannel(_ context.Context, channelID string, embed *discordgo.MessageEmbed) error {
	_, err := d.session.ChannelMessageSendEmbed(channelID, embed)
	return classify(err)
}

func (d *Discord) GuildName(guildID string) string {
	if guild, err := d.session.State.Guild(guildID); err == nil && guild != nil {
		return guild.Name
	}
	return ""
}

// CreateMuteRole creates a role named name and denies it sending and speaking
// on every text and voice channel. Channels that refuse the overwrite are
// counted in skipped.
func (d *Discord) CreateMuteRole(_ context.Context, guildID, name string) (roleID string, skipped int, err error) {
	perms := int64(0)
	role, err := d.session.GuildRoleCreate(guildID, &discordgo.RoleParams{Name: name, Permissions: &perms})
	if err != nil {
		return "", 0, classify(err)
	}

	channels, err := d.session.GuildChannels(guildID)
	if err != nil {
		return role.ID, 0, classify(err)
	}
	for _, channel := range channels {
		switch channel.Type {
		case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildVoice, discordgo.ChannelTypeGuildNews, discordgo.ChannelTypeGuildForum:
		default:
			continue
		}
		if err := d.session.ChannelPermissionSet(channel.ID, role.ID, discordgo.PermissionOverwriteTypeRole, 0, mutedDeny); err != nil {
			skipped++
		}
	}
	return role.ID, skipped, nil
}

// FindRole returns the id of the first role called name.
func (d *Discord) FindRole(guildID, name string) (string, bool) {
	roles, err := d.session.GuildRoles(guildID)
	if err != nil {
		return "", false
	}
	for _, role := range roles {
		if role.Name == name {
			return role.ID, true
		}
	}
	return "", false
}

func (d *Discord) member(guildID, userID string) (*discordgo.Member, error) {
	if member, err := d.session.State.Member(guildID, userID); err == nil && member != nil {
		return member, nil
	}
	member, err := d.session.GuildMember(guildID, userID)
	if err != nil {
		return nil, classify(err)
	}
	return member, nil
}

// auditReason attaches reason to the guild audit log entry, if there is one.
func auditReason(reason string) []discordgo.RequestOption {
	if reason == "" {
		return nil
	}
	return []discordgo.RequestOption{discordgo.WithAuditLogReason(reason)}
}

// classify maps Discord permission refusals onto sanction.ErrForbidden.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %w", sanction.ErrForbidden, err)
	}
	return err
}

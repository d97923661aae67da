package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"warden/internal/analytics"
	"warden/internal/config"
	"warden/internal/filter"
	"warden/internal/modules/audit"
	"warden/internal/notify"
	"warden/internal/platform"
	"warden/internal/sanction"
	"warden/internal/settings"
	"warden/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	cfg        config.Config
	logger     *zap.Logger
	store      *storage.Store
	settings   *settings.Store
	audit      *audit.Logger
	analytics  *analytics.Service
	session    *discordgo.Session
	discord    *platform.Discord
	sink       *notify.Sink
	engine     *sanction.Engine
	dispatcher *Dispatcher
	roles      *roleCache
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, settingsStore *settings.Store, auditLogger *audit.Logger, analyticsService *analytics.Service) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildBans |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent
	// nickname and role diffs need the previous member from state
	session.StateEnabled = true
	session.State.TrackMembers = true
	session.State.MaxMessageCount = 200

	discord := platform.NewDiscord(session)
	sink := notify.New(discord, cfg.Notifications, logger)

	b := &Bot{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		settings:   settingsStore,
		audit:      auditLogger,
		analytics:  analyticsService,
		session:    session,
		discord:    discord,
		sink:       sink,
		engine:     sanction.NewEngine(store, settingsStore, discord, sink, auditLogger, logger),
		dispatcher: NewDispatcher(cfg.Commands.Prefix, cfg.Commands.DevRoleID, cfg.Mode),
		roles:      newRoleCache(),
	}
	b.registerCommands()

	return b, nil
}

// Engine exposes the sanction engine so the unmute scheduler can be wired
// to it before Start.
func (b *Bot) Engine() *sanction.Engine { return b.engine }

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onMessageUpdate)
	b.session.AddHandler(b.onMessageDelete)
	b.session.AddHandler(b.onGuildCreate)
	b.session.AddHandler(b.onChannelCreate)
	b.session.AddHandler(b.onChannelDelete)
	b.session.AddHandler(b.onVoiceStateUpdate)
	b.session.AddHandler(b.onGuildRoleCreate)
	b.session.AddHandler(b.onGuildRoleUpdate)
	b.session.AddHandler(b.onGuildRoleDelete)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onGuildMemberRemove)
	b.session.AddHandler(b.onGuildMemberUpdate)
	b.session.AddHandler(b.onGuildBanAdd)
	b.session.AddHandler(b.onGuildBanRemove)

	return b.session.Open()
}

// Close drops the gateway connection, giving up once ctx is done.
func (b *Bot) Close(ctx context.Context) {
	if b.session == nil {
		return
	}
	done := make(chan error, 1)
	go func() { done <- b.session.Close() }()
	select {
	case err := <-done:
		if err != nil {
			b.logger.Warn("discord session close failed", zap.Error(err))
		}
	case <-ctx.Done():
		b.logger.Warn("discord session close timed out", zap.Error(ctx.Err()))
	}
}

func (b *Bot) onReady(_ *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready",
		zap.String("user", event.User.Username),
		zap.Int("guilds", len(event.Guilds)),
		zap.String("mode", string(b.dispatcher.Mode())),
	)
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.Author.Bot {
		return
	}
	ctx := context.Background()

	if msg.GuildID == "" {
		if !b.cfg.Commands.AllowDM {
			b.replyDM(msg.ChannelID)
		}
		return
	}

	guild := b.settings.Get(ctx, msg.GuildID)
	b.auditMessage(ctx, msg, guild.LogChannelID)

	if cmd, args, text, ok := b.dispatcher.Resolve(msg.Content); ok {
		b.dispatch(ctx, msg, cmd, args, text)
		return
	}

	if !guild.Enabled {
		return
	}
	word, found := filter.Scan(msg.Content, guild)
	if !found {
		return
	}

	if err := session.ChannelMessageDelete(msg.ChannelID, msg.ID); err != nil {
		b.logger.Warn("delete flagged message failed",
			zap.String("guild_id", msg.GuildID),
			zap.String("channel_id", msg.ChannelID),
			zap.Error(err),
		)
	}

	outcome, err := b.engine.RecordWarning(ctx, sanction.WarningRequest{
		GuildID:   msg.GuildID,
		UserID:    msg.Author.ID,
		Reason:    "Used banned word: " + word,
		Issuer:    b.automodIssuer(),
		Automatic: true,
	})
	if err != nil {
		b.logger.Error("automod warning failed", zap.String("guild_id", msg.GuildID), zap.String("user_id", msg.Author.ID), zap.Error(err))
		return
	}
	b.logger.Info("automod sanction",
		zap.String("guild_id", msg.GuildID),
		zap.String("user_id", msg.Author.ID),
		zap.String("outcome", string(outcome.Kind)),
		zap.Int("count", outcome.Count),
	)
}

func (b *Bot) dispatch(ctx context.Context, msg *discordgo.MessageCreate, cmd *Command, args []string, text string) {
	inv := &Invocation{
		GuildID:   msg.GuildID,
		ChannelID: msg.ChannelID,
		MessageID: msg.ID,
		AuthorID:  msg.Author.ID,
		Moderator: displayName(msg.Member, msg.Author),
		Args:      args,
		Text:      text,
	}
	if msg.Member != nil {
		inv.Roles = msg.Member.Roles
	}
	perms, err := b.session.UserChannelPermissions(msg.Author.ID, msg.ChannelID)
	if err != nil {
		b.logger.Debug("permission lookup failed", zap.String("user_id", msg.Author.ID), zap.Error(err))
	}
	inv.Perms = perms

	if err := b.dispatcher.Authorize(cmd, inv); err != nil {
		b.replyError(inv.ChannelID, b.errorMessage(cmd, err))
		return
	}

	if err := cmd.Run(ctx, inv); err != nil {
		b.replyError(inv.ChannelID, b.errorMessage(cmd, err))
	}
}

// errorMessage turns a command error into text for the invoker. Unexpected
// errors are logged and replaced with a generic message.
func (b *Bot) errorMessage(cmd *Command, err error) string {
	var validation *settings.ValidationError
	var usage *usageError
	var note *noticeError
	var denied *permissionError
	switch {
	case errors.As(err, &denied):
		return "You need the " + denied.name + " permission to use this command."
	case errors.As(err, &validation):
		return validation.Message
	case errors.As(err, &usage):
		return usage.Error()
	case errors.As(err, &note):
		return note.msg
	case errors.Is(err, errLocked), errors.Is(err, errDevOnly),
		errors.Is(err, sanction.ErrAlreadyMuted), errors.Is(err, sanction.ErrNotMuted):
		return capitalize(err.Error()) + "."
	case errors.Is(err, sanction.ErrForbidden), errors.Is(err, sanction.ErrMuteRoleUnset):
		return notify.ErrorText(err)
	}
	b.logger.Error("command failed", zap.String("command", cmd.Name), zap.Error(err))
	return "Something went wrong while running `" + cmd.Name + "`."
}

func (b *Bot) automodIssuer() string {
	name := b.cfg.Notifications.BotName
	if b.session.State != nil && b.session.State.User != nil {
		name = b.session.State.User.Username
	}
	return fmt.Sprintf("%s (AutoMod)", name)
}

func (b *Bot) replyDM(channelID string) {
	text := "DMs are not supported. Please use commands in a server."
	if link := b.cfg.Commands.ServerInviteLink; link != "" {
		text += "\nJoin here: " + link
	}
	if _, err := b.session.ChannelMessageSend(channelID, text); err != nil {
		b.logger.Debug("dm reply failed", zap.Error(err))
	}
}

func (b *Bot) reply(channelID string, embed *discordgo.MessageEmbed) {
	if _, err := b.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		b.logger.Warn("command reply failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

func (b *Bot) replyError(channelID, text string) {
	b.replyTemp(channelID, b.commandEmbed("❌ Error", text, b.cfg.Notifications.EmbedColors.Danger, nil))
}

// replyTemp posts embed and removes it after the configured error TTL.
func (b *Bot) replyTemp(channelID string, embed *discordgo.MessageEmbed) {
	message, err := b.session.ChannelMessageSendEmbed(channelID, embed)
	if err != nil {
		b.logger.Warn("temporary reply failed", zap.String("channel_id", channelID), zap.Error(err))
		return
	}
	ttl := time.Duration(b.cfg.Commands.ErrorMessageTTLSeconds) * time.Second
	if ttl <= 0 {
		return
	}
	time.AfterFunc(ttl, func() {
		_ = b.session.ChannelMessageDelete(channelID, message.ID)
	})
}

func (b *Bot) commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
		Footer:      &discordgo.MessageEmbedFooter{Text: b.cfg.Notifications.BotName + " v" + b.cfg.Notifications.BotVersion},
	}
}

func displayName(member *discordgo.Member, user *discordgo.User) string {
	if member != nil && member.Nick != "" {
		return member.Nick
	}
	if user == nil {
		return ""
	}
	return user.Username
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"warden/internal/config"
	"warden/internal/sanction"
	"warden/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sent struct {
	target string
	embed  *discordgo.MessageEmbed
}

type fakeMessenger struct {
	dms      []sent
	channels []sent
	dmErr    error
}

func (m *fakeMessenger) SendDM(_ context.Context, userID string, embed *discordgo.MessageEmbed) error {
	if m.dmErr != nil {
		return m.dmErr
	}
	m.dms = append(m.dms, sent{target: userID, embed: embed})
	return nil
}

func (m *fakeMessenger) SendChannel(_ context.Context, channelID string, embed *discordgo.MessageEmbed) error {
	m.channels = append(m.channels, sent{target: channelID, embed: embed})
	return nil
}

func (m *fakeMessenger) GuildName(string) string { return "Test Guild" }

func newSink(m Messenger) *Sink {
	return New(m, config.DefaultConfig().Notifications, zap.NewNop())
}

func warnedOutcome(logChannel string) sanction.Outcome {
	return sanction.Outcome{
		Kind:      sanction.KindWarned,
		GuildID:   "g1",
		UserID:    "u1",
		Issuer:    "Warden (AutoMod)",
		Reason:    "Used banned word: spam",
		Automatic: true,
		Warning:   &storage.Warning{Reason: "Used banned word: spam", Timestamp: "2024-05-01T12:00:00Z"},
		Count:     1,
		Settings:  storage.GuildSettings{MuteThreshold: 2, BanThreshold: 5, LogChannelID: logChannel},
		At:        time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNotifyWarnedSendsDMAndLog(t *testing.T) {
	messenger := &fakeMessenger{}
	newSink(messenger).Notify(context.Background(), warnedOutcome("c-log"))

	require.Len(t, messenger.dms, 1)
	assert.Equal(t, "u1", messenger.dms[0].target)
	assert.Contains(t, messenger.dms[0].embed.Description, "Test Guild")

	require.Len(t, messenger.channels, 1)
	assert.Equal(t, "c-log", messenger.channels[0].target)
	assert.Equal(t, "⚠️ Auto-Moderation Warning", messenger.channels[0].embed.Title)

	var count string
	for _, field := range messenger.channels[0].embed.Fields {
		if field.Name == "Warning Count" {
			count = field.Value
		}
	}
	assert.Equal(t, "1/2 Before Mute | (Ban at 5)", count)
}

func TestNotifyLogIsNoopWithoutChannel(t *testing.T) {
	messenger := &fakeMessenger{}
	newSink(messenger).Notify(context.Background(), warnedOutcome(""))
	assert.Len(t, messenger.dms, 1)
	assert.Empty(t, messenger.channels)
}

func TestClosedDMsAreSwallowed(t *testing.T) {
	messenger := &fakeMessenger{dmErr: errors.New("cannot send messages to this user")}
	newSink(messenger).Notify(context.Background(), warnedOutcome("c-log"))
	assert.Len(t, messenger.channels, 1, "log delivery must not depend on the DM")
}

func TestFailedOutcomeOnlyLogs(t *testing.T) {
	messenger := &fakeMessenger{}
	outcome := warnedOutcome("c-log")
	outcome.Kind = sanction.KindFailed
	outcome.Attempted = sanction.KindBanned
	outcome.Err = fmt.Errorf("ban: %w", sanction.ErrForbidden)

	newSink(messenger).Notify(context.Background(), outcome)
	assert.Empty(t, messenger.dms)
	require.Len(t, messenger.channels, 1)
	assert.Equal(t, "❌ Moderation Action Failed", messenger.channels[0].embed.Title)
	assert.Contains(t, messenger.channels[0].embed.Fields[1].Value, "permission")
}

func TestTogglesDisableDelivery(t *testing.T) {
	messenger := &fakeMessenger{}
	cfg := config.DefaultConfig().Notifications
	cfg.DMEnabled = false
	cfg.LogEnabled = false
	New(messenger, cfg, zap.NewNop()).Notify(context.Background(), warnedOutcome("c-log"))
	assert.Empty(t, messenger.dms)
	assert.Empty(t, messenger.channels)
}

func TestLogEventFillsFooter(t *testing.T) {
	messenger := &fakeMessenger{}
	newSink(messenger).LogEvent(context.Background(), "g1", "c-log", &discordgo.MessageEmbed{Title: "📎 File Sent"})
	require.Len(t, messenger.channels, 1)
	assert.Equal(t, "Warden v1.0.0", messenger.channels[0].embed.Footer.Text)

	newSink(messenger).LogEvent(context.Background(), "g1", "", &discordgo.MessageEmbed{Title: "x"})
	assert.Len(t, messenger.channels, 1)
}

func TestMutedDurationText(t *testing.T) {
	messenger := &fakeMessenger{}
	outcome := warnedOutcome("")
	outcome.Kind = sanction.KindMuted
	outcome.Duration = 0
	newSink(messenger).Notify(context.Background(), outcome)
	require.Len(t, messenger.dms, 1)
	assert.Contains(t, messenger.dms[0].embed.Description, "until a moderator unmutes you")
}

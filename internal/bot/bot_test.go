package bot

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestCloseWithoutGateway(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	b := newTestBot()
	b.logger = zap.New(core)
	b.Close(context.Background())

	session, err := discordgo.New("Bot test")
	require.NoError(t, err)
	b.session = session

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b.Close(ctx)
	assert.Zero(t, logs.Len(), "closing an unopened session is clean")
}

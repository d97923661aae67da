package analytics

import (
	"context"
	"testing"
	"time"

	"warden/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportCountsByLevelAndEvent(t *testing.T) {
	store, err := storage.New(storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Migrate())

	ctx := context.Background()
	now := time.Now()
	entries := []storage.AuditLog{
		{GuildID: "g1", UserID: "u1", Level: "INFO", Event: "warned", CreatedAt: now},
		{GuildID: "g1", UserID: "u1", Level: "INFO", Event: "warned", CreatedAt: now},
		{GuildID: "g1", UserID: "u2", Level: "WARN", Event: "muted", CreatedAt: now},
		{GuildID: "g1", UserID: "u3", Level: "WARN", Event: "warned", CreatedAt: now.AddDate(0, 0, -30)},
		{GuildID: "g2", UserID: "u9", Level: "CRIT", Event: "banned", CreatedAt: now},
	}
	for _, entry := range entries {
		require.NoError(t, store.AddAuditLog(ctx, entry))
	}

	report, err := New(store).Report(ctx, "g1", now.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.ByEvent["warned"])
	assert.Equal(t, 1, report.ByLevel["WARN"])
	assert.Equal(t, 2, report.Users)
}

package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"warden/internal/analytics"
	"warden/internal/config"
	"warden/internal/settings"
	"warden/internal/storage"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*Server, *storage.Store) {
	t.Helper()
	store, err := storage.New(storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate())

	defaults := settings.New(store, config.DefaultConfig().Moderation, zap.NewNop())
	return NewServer(store, defaults, analytics.New(store), zap.NewNop()), store
}

func get(t *testing.T, server *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	server.Engine().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t)
	w := get(t, server, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestSettingsDoesNotPersistUnknownGuild(t *testing.T) {
	server, store := newTestServer(t)
	w := get(t, server, "/api/guilds/g1/settings")
	require.Equal(t, http.StatusOK, w.Code)

	var body settingsView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Stored)
	assert.Equal(t, 5, body.MuteThreshold)
	assert.Equal(t, "word", body.MatchMode)

	_, found, err := store.GetGuildSettings(context.Background(), "g1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUserWarnings(t *testing.T) {
	server, store := newTestServer(t)
	ctx := context.Background()
	for _, reason := range []string{"spam", "caps"} {
		_, err := store.AppendWarning(ctx, storage.Warning{GuildID: "g1", UserID: "u1", Reason: reason, Issuer: "mod"})
		require.NoError(t, err)
	}

	w := get(t, server, "/api/guilds/g1/users/u1/warnings")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count    int           `json:"count"`
		Warnings []warningView `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "spam", body.Warnings[0].Reason)
}

func TestReport(t *testing.T) {
	server, store := newTestServer(t)
	require.NoError(t, store.AddAuditLog(context.Background(), storage.AuditLog{
		GuildID: "g1", UserID: "u1", Level: "INFO", Event: "warned", CreatedAt: time.Now(),
	}))

	w := get(t, server, "/api/guilds/g1/report?days=3")
	require.Equal(t, http.StatusOK, w.Code)
	var report analytics.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 1, report.ByEvent["warned"])

	w = get(t, server, "/api/guilds/g1/report?days=0")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

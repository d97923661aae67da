package storage

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)

	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestUpsertGuildSettings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	settings := GuildSettings{
		GuildID:             "g1",
		Enabled:             true,
		BannedWords:         []string{"spam", "scam"},
		MuteThreshold:       2,
		BanThreshold:        5,
		MuteDurationMinutes: 30,
		LogChannelID:        "c1",
		MatchMode:           "word",
	}

	if err := store.UpsertGuildSettings(ctx, settings); err != nil {
		t.Fatalf("upsert guild settings: %v", err)
	}

	settings.LogChannelID = "c2"
	settings.MuteRoleID = "r1"
	if err := store.UpsertGuildSettings(ctx, settings); err != nil {
		t.Fatalf("update guild settings: %v", err)
	}

	got, found, err := store.GetGuildSettings(ctx, "g1")
	if err != nil {
		t.Fatalf("get guild settings: %v", err)
	}
	if !found {
		t.Fatalf("expected settings row")
	}
	if got.LogChannelID != "c2" || got.MuteRoleID != "r1" {
		t.Fatalf("unexpected ids %q/%q", got.LogChannelID, got.MuteRoleID)
	}
	if !got.Enabled || len(got.BannedWords) != 2 || got.BannedWords[1] != "scam" {
		t.Fatalf("unexpected settings: %+v", got)
	}
}

func TestInsertGuildSettingsKeepsExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := GuildSettings{GuildID: "g1", MuteThreshold: 3, BanThreshold: 6, MuteDurationMinutes: 10, MatchMode: "word"}
	if err := store.InsertGuildSettings(ctx, first); err != nil {
		t.Fatalf("insert: %v", err)
	}
	second := first
	second.MuteThreshold = 1
	if err := store.InsertGuildSettings(ctx, second); err != nil {
		t.Fatalf("second insert: %v", err)
	}

	got, _, err := store.GetGuildSettings(ctx, "g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MuteThreshold != 3 {
		t.Fatalf("expected first insert to win, got %d", got.MuteThreshold)
	}
	if got.BannedWords == nil || len(got.BannedWords) != 0 {
		t.Fatalf("expected empty word list, got %#v", got.BannedWords)
	}
}

func TestGetGuildSettingsMissing(t *testing.T) {
	store := newTestStore(t)
	_, found, err := store.GetGuildSettings(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Fatalf("expected no row")
	}
}

func TestWarningLedger(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, reason := range []string{"spam", "caps", "links"} {
		count, err := store.AppendWarning(ctx, Warning{GuildID: "g1", UserID: "u1", Reason: reason, Issuer: "mod"})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if count != i+1 {
			t.Fatalf("expected count %d, got %d", i+1, count)
		}
	}
	if _, err := store.AppendWarning(ctx, Warning{GuildID: "g1", UserID: "u2", Reason: "other", Issuer: "mod"}); err != nil {
		t.Fatalf("append other user: %v", err)
	}

	warnings, err := store.ListWarnings(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(warnings) != 3 {
		t.Fatalf("expected 3 warnings, got %d", len(warnings))
	}
	if warnings[0].Reason != "spam" || warnings[2].Reason != "links" {
		t.Fatalf("warnings out of order: %+v", warnings)
	}
	if warnings[0].ID == "" || warnings[0].Timestamp == "" {
		t.Fatalf("expected generated id and timestamp")
	}
	if _, err := time.Parse(time.RFC3339, warnings[0].Timestamp); err != nil {
		t.Fatalf("timestamp not RFC3339: %v", err)
	}

	total, err := store.CountGuildWarnings(ctx, "g1")
	if err != nil || total != 4 {
		t.Fatalf("expected 4 guild warnings, got %d (%v)", total, err)
	}

	removed, err := store.ClearWarnings(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	count, err := store.CountWarnings(ctx, "g1", "u1")
	if err != nil || count != 0 {
		t.Fatalf("expected empty ledger, got %d (%v)", count, err)
	}
	count, _ = store.CountWarnings(ctx, "g1", "u2")
	if count != 1 {
		t.Fatalf("other user's warnings must survive, got %d", count)
	}
}

func TestDeleteWarning(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.AppendWarning(ctx, Warning{ID: "w1", GuildID: "g1", UserID: "u1", Reason: "spam", Issuer: "mod"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, found, _ := store.GetWarning(ctx, "g2", "w1"); found {
		t.Fatalf("warning must not leak across guilds")
	}
	ok, err := store.DeleteWarning(ctx, "g1", "w1")
	if err != nil || !ok {
		t.Fatalf("expected delete, got %v (%v)", ok, err)
	}
	ok, err = store.DeleteWarning(ctx, "g1", "w1")
	if err != nil || ok {
		t.Fatalf("expected second delete to report missing")
	}
}

func TestClearGuildWarnings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, user := range []string{"u1", "u2"} {
		if _, err := store.AppendWarning(ctx, Warning{GuildID: "g1", UserID: user, Reason: "r", Issuer: "mod"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if _, err := store.AppendWarning(ctx, Warning{GuildID: "g2", UserID: "u1", Reason: "r", Issuer: "mod"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	removed, err := store.ClearGuildWarnings(ctx, "g1")
	if err != nil || removed != 2 {
		t.Fatalf("expected 2 removed, got %d (%v)", removed, err)
	}
	total, _ := store.CountGuildWarnings(ctx, "g2")
	if total != 1 {
		t.Fatalf("other guild must keep its warnings")
	}
}

func TestPendingUnmutes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	if err := store.SavePendingUnmute(ctx, PendingUnmute{GuildID: "g1", UserID: "u1", RoleID: "r1", DueAt: now.Add(-time.Minute)}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SavePendingUnmute(ctx, PendingUnmute{GuildID: "g1", UserID: "u2", RoleID: "r1", DueAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("save: %v", err)
	}

	due, err := store.DuePendingUnmutes(ctx, now)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 || due[0].UserID != "u1" {
		t.Fatalf("unexpected due set: %+v", due)
	}

	all, err := store.ListPendingUnmutes(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 pending, got %d (%v)", len(all), err)
	}

	if err := store.DeletePendingUnmute(ctx, "g1", "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := store.GetPendingUnmute(ctx, "g1", "u1"); found {
		t.Fatalf("expected pending unmute removed")
	}
	p, found, err := store.GetPendingUnmute(ctx, "g1", "u2")
	if err != nil || !found {
		t.Fatalf("expected u2 pending, got %v (%v)", found, err)
	}
	if !p.DueAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected due time %v", p.DueAt)
	}
}

func TestAuditLogs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := AuditLog{GuildID: "g1", Level: "INFO", Event: "warned", CreatedAt: time.Now().AddDate(0, 0, -40)}
	recent := AuditLog{GuildID: "g1", UserID: "u1", Level: "HIGH", Event: "banned", CreatedAt: time.Now()}
	for _, entry := range []AuditLog{old, recent} {
		if err := store.AddAuditLog(ctx, entry); err != nil {
			t.Fatalf("add audit log: %v", err)
		}
	}

	logs, err := store.ListAuditLogs(ctx, "g1", time.Now().AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 1 || logs[0].Event != "banned" {
		t.Fatalf("unexpected logs: %+v", logs)
	}

	removed, err := store.CleanupAuditLogs(ctx, 30)
	if err != nil || removed != 1 {
		t.Fatalf("expected 1 cleaned, got %d (%v)", removed, err)
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	if _, err := New("mysql", "dsn"); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestPlaceholderFormatFollowsDriver(t *testing.T) {
	cases := []struct {
		driver, dsn, want string
	}{
		{DriverSQLite, ":memory:", "SELECT id FROM warnings WHERE guild_id = ?"},
		{DriverPostgres, "postgres://localhost/warden_unused", "SELECT id FROM warnings WHERE guild_id = $1"},
	}
	for _, tc := range cases {
		store, err := New(tc.driver, tc.dsn)
		if err != nil {
			t.Fatalf("new %s: %v", tc.driver, err)
		}
		query, _, err := store.sq.Select("id").From("warnings").Where("guild_id = ?", "g1").ToSql()
		store.Close()
		if err != nil {
			t.Fatalf("build %s query: %v", tc.driver, err)
		}
		if query != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.driver, tc.want, query)
		}
	}
}

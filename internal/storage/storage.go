package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"warden/internal/utils"

	sq "github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Store struct {
	db     *sql.DB
	driver string
	sq     sq.StatementBuilderType
	guilds *utils.KeyedMutex
}

type GuildSettings struct {
	GuildID             string
	Enabled             bool
	BannedWords         []string
	BanDefaultOffensive bool
	MuteThreshold       int
	BanThreshold        int
	MuteDurationMinutes int
	LogChannelID        string
	MuteRoleID          string
	MatchMode           string
}

type AuditLog struct {
	ID        string
	GuildID   string
	UserID    string
	Level     string
	Event     string
	Details   string
	CreatedAt time.Time
}

// New opens the store. driver is "sqlite" (modernc) or "postgres" (pgx).
func New(driver, dsn string) (*Store, error) {
	sqlDriver := "sqlite"
	var placeholder sq.PlaceholderFormat = sq.Question
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
	case DriverPostgres:
		sqlDriver = "pgx"
		placeholder = sq.Dollar
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// an in-memory database lives on a single connection
		db.SetMaxOpenConns(1)
	}
	return &Store{
		db:     db,
		driver: driver,
		sq:     sq.StatementBuilder.PlaceholderFormat(placeholder),
		guilds: utils.NewKeyedMutex(),
	}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LockGuild enters the critical section for one guild's settings and ledger.
// The returned func releases it.
func (s *Store) LockGuild(guildID string) func() {
	return s.guilds.Lock(guildID)
}

func (s *Store) Migrate() error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}

	var files []string
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := migrations.ReadFile(path.Join("migrations", file))
		if err != nil {
			return err
		}
		for _, stmt := range strings.Split(string(content), ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := s.db.Exec(stmt); err != nil {
				if isIgnorableMigrationError(err) {
					continue
				}
				return fmt.Errorf("migration %s failed: %w", file, err)
			}
		}
	}
	return nil
}

// GetGuildSettings returns the stored settings and whether a row exists.
func (s *Store) GetGuildSettings(ctx context.Context, guildID string) (GuildSettings, bool, error) {
	query, args, err := s.sq.
		Select("enabled", "banned_words", "ban_default_offensive", "mute_threshold", "ban_threshold",
			"mute_duration_minutes", "log_channel_id", "mute_role_id", "match_mode").
		From("guild_settings").
		Where(sq.Eq{"guild_id": guildID}).
		ToSql()
	if err != nil {
		return GuildSettings{}, false, err
	}

	result := GuildSettings{GuildID: guildID}
	var enabled, offensive int
	var words string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&enabled,
		&words,
		&offensive,
		&result.MuteThreshold,
		&result.BanThreshold,
		&result.MuteDurationMinutes,
		&result.LogChannelID,
		&result.MuteRoleID,
		&result.MatchMode,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return GuildSettings{}, false, nil
		}
		return GuildSettings{}, false, err
	}
	result.Enabled = enabled == 1
	result.BanDefaultOffensive = offensive == 1
	if err := json.Unmarshal([]byte(words), &result.BannedWords); err != nil {
		return GuildSettings{}, false, fmt.Errorf("decode banned words: %w", err)
	}
	return result, true, nil
}

// InsertGuildSettings stores settings unless the guild already has a row.
func (s *Store) InsertGuildSettings(ctx context.Context, settings GuildSettings) error {
	return s.writeGuildSettings(ctx, settings, "ON CONFLICT(guild_id) DO NOTHING")
}

func (s *Store) UpsertGuildSettings(ctx context.Context, settings GuildSettings) error {
	return s.writeGuildSettings(ctx, settings, `ON CONFLICT(guild_id) DO UPDATE SET
		enabled = excluded.enabled,
		banned_words = excluded.banned_words,
		ban_default_offensive = excluded.ban_default_offensive,
		mute_threshold = excluded.mute_threshold,
		ban_threshold = excluded.ban_threshold,
		mute_duration_minutes = excluded.mute_duration_minutes,
		log_channel_id = excluded.log_channel_id,
		mute_role_id = excluded.mute_role_id,
		match_mode = excluded.match_mode,
		updated_at = excluded.updated_at`)
}

func (s *Store) writeGuildSettings(ctx context.Context, settings GuildSettings, conflict string) error {
	words := settings.BannedWords
	if words == nil {
		words = []string{}
	}
	encoded, err := json.Marshal(words)
	if err != nil {
		return err
	}

	query, args, err := s.sq.
		Insert("guild_settings").
		Columns("guild_id", "enabled", "banned_words", "ban_default_offensive", "mute_threshold",
			"ban_threshold", "mute_duration_minutes", "log_channel_id", "mute_role_id", "match_mode", "updated_at").
		Values(
			settings.GuildID,
			boolToInt(settings.Enabled),
			string(encoded),
			boolToInt(settings.BanDefaultOffensive),
			settings.MuteThreshold,
			settings.BanThreshold,
			settings.MuteDurationMinutes,
			settings.LogChannelID,
			settings.MuteRoleID,
			settings.MatchMode,
			time.Now().Unix(),
		).
		Suffix(conflict).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *Store) AddAuditLog(ctx context.Context, log AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	query, args, err := s.sq.
		Insert("audit_logs").
		Columns("id", "guild_id", "user_id", "level", "event", "details", "created_at").
		Values(log.ID, log.GuildID, log.UserID, log.Level, log.Event, log.Details, log.CreatedAt.Unix()).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]AuditLog, error) {
	query, args, err := s.sq.
		Select("id", "guild_id", "user_id", "level", "event", "details", "created_at").
		From("audit_logs").
		Where(sq.Eq{"guild_id": guildID}).
		Where(sq.GtOrEq{"created_at": since.Unix()}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var log AuditLog
		var created int64
		if err := rows.Scan(&log.ID, &log.GuildID, &log.UserID, &log.Level, &log.Event, &log.Details, &created); err != nil {
			return nil, err
		}
		log.CreatedAt = time.Unix(created, 0)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func (s *Store) CleanupAuditLogs(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	query, args, err := s.sq.Delete("audit_logs").Where(sq.Lt{"created_at": cutoff.Unix()}).ToSql()
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func isIgnorableMigrationError(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	return strings.Contains(message, "duplicate column name") || strings.Contains(message, "already exists")
}

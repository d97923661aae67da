package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// Warning is immutable once appended.
type Warning struct {
	ID        string
	GuildID   string
	UserID    string
	Reason    string
	Issuer    string
	Timestamp string
	Seq       int64
}

// AppendWarning stores w and returns the user's warning count after the insert.
// ID, Timestamp and Seq are assigned when empty.
func (s *Store) AppendWarning(ctx context.Context, w Warning) (int, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Timestamp == "" {
		w.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := s.sq.
		Select("COALESCE(MAX(seq), 0)").
		From("warnings").
		Where(sq.Eq{"guild_id": w.GuildID}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var last int64
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&last); err != nil {
		return 0, fmt.Errorf("read warning sequence: %w", err)
	}
	w.Seq = last + 1

	query, args, err = s.sq.
		Insert("warnings").
		Columns("id", "guild_id", "user_id", "seq", "reason", "issuer", "created_at").
		Values(w.ID, w.GuildID, w.UserID, w.Seq, w.Reason, w.Issuer, w.Timestamp).
		ToSql()
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("insert warning: %w", err)
	}

	count, err := s.countWarnings(ctx, tx, w.GuildID, w.UserID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// ListWarnings returns the user's warnings in creation order.
func (s *Store) ListWarnings(ctx context.Context, guildID, userID string) ([]Warning, error) {
	query, args, err := s.sq.
		Select("id", "guild_id", "user_id", "seq", "reason", "issuer", "created_at").
		From("warnings").
		Where(sq.Eq{"guild_id": guildID, "user_id": userID}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var warnings []Warning
	for rows.Next() {
		var w Warning
		if err := rows.Scan(&w.ID, &w.GuildID, &w.UserID, &w.Seq, &w.Reason, &w.Issuer, &w.Timestamp); err != nil {
			return nil, err
		}
		warnings = append(warnings, w)
	}
	return warnings, rows.Err()
}

func (s *Store) CountWarnings(ctx context.Context, guildID, userID string) (int, error) {
	return s.countWarnings(ctx, s.db, guildID, userID)
}

func (s *Store) CountGuildWarnings(ctx context.Context, guildID string) (int, error) {
	query, args, err := s.sq.Select("COUNT(*)").From("warnings").Where(sq.Eq{"guild_id": guildID}).ToSql()
	if err != nil {
		return 0, err
	}
	var count int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

// ClearWarnings removes every warning of the user and returns how many went.
func (s *Store) ClearWarnings(ctx context.Context, guildID, userID string) (int, error) {
	return s.deleteWarnings(ctx, sq.Eq{"guild_id": guildID, "user_id": userID})
}

func (s *Store) ClearGuildWarnings(ctx context.Context, guildID string) (int, error) {
	return s.deleteWarnings(ctx, sq.Eq{"guild_id": guildID})
}

// DeleteWarning removes a single warning. The bool is false when the id is
// unknown in this guild.
func (s *Store) DeleteWarning(ctx context.Context, guildID, warningID string) (bool, error) {
	removed, err := s.deleteWarnings(ctx, sq.Eq{"guild_id": guildID, "id": warningID})
	return removed > 0, err
}

// GetWarning looks a warning up by id within a guild.
func (s *Store) GetWarning(ctx context.Context, guildID, warningID string) (Warning, bool, error) {
	query, args, err := s.sq.
		Select("id", "guild_id", "user_id", "seq", "reason", "issuer", "created_at").
		From("warnings").
		Where(sq.Eq{"guild_id": guildID, "id": warningID}).
		ToSql()
	if err != nil {
		return Warning{}, false, err
	}
	var w Warning
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&w.ID, &w.GuildID, &w.UserID, &w.Seq, &w.Reason, &w.Issuer, &w.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return Warning{}, false, nil
	}
	if err != nil {
		return Warning{}, false, err
	}
	return w, true, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) countWarnings(ctx context.Context, q queryer, guildID, userID string) (int, error) {
	query, args, err := s.sq.
		Select("COUNT(*)").
		From("warnings").
		Where(sq.Eq{"guild_id": guildID, "user_id": userID}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var count int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count warnings: %w", err)
	}
	return count, nil
}

func (s *Store) deleteWarnings(ctx context.Context, where sq.Eq) (int, error) {
	query, args, err := s.sq.Delete("warnings").Where(where).ToSql()
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

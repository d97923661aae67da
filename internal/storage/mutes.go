package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// PendingUnmute is a durable record of a mute that must be lifted at DueAt.
type PendingUnmute struct {
	GuildID   string
	UserID    string
	RoleID    string
	DueAt     time.Time
	CreatedAt time.Time
}

// SavePendingUnmute stores or replaces the pending unmute for the user.
func (s *Store) SavePendingUnmute(ctx context.Context, p PendingUnmute) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	query, args, err := s.sq.
		Insert("pending_unmutes").
		Columns("guild_id", "user_id", "role_id", "due_at", "created_at").
		Values(p.GuildID, p.UserID, p.RoleID, p.DueAt.Unix(), p.CreatedAt.Unix()).
		Suffix(`ON CONFLICT(guild_id, user_id) DO UPDATE SET
			role_id = excluded.role_id,
			due_at = excluded.due_at,
			created_at = excluded.created_at`).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *Store) GetPendingUnmute(ctx context.Context, guildID, userID string) (PendingUnmute, bool, error) {
	query, args, err := s.sq.
		Select("guild_id", "user_id", "role_id", "due_at", "created_at").
		From("pending_unmutes").
		Where(sq.Eq{"guild_id": guildID, "user_id": userID}).
		ToSql()
	if err != nil {
		return PendingUnmute{}, false, err
	}
	p, err := scanPendingUnmute(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return PendingUnmute{}, false, nil
	}
	if err != nil {
		return PendingUnmute{}, false, err
	}
	return p, true, nil
}

func (s *Store) DeletePendingUnmute(ctx context.Context, guildID, userID string) error {
	query, args, err := s.sq.
		Delete("pending_unmutes").
		Where(sq.Eq{"guild_id": guildID, "user_id": userID}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// ListPendingUnmutes returns every pending unmute ordered by due time.
func (s *Store) ListPendingUnmutes(ctx context.Context) ([]PendingUnmute, error) {
	return s.queryPendingUnmutes(ctx, nil)
}

// DuePendingUnmutes returns the pending unmutes due at or before now.
func (s *Store) DuePendingUnmutes(ctx context.Context, now time.Time) ([]PendingUnmute, error) {
	return s.queryPendingUnmutes(ctx, sq.LtOrEq{"due_at": now.Unix()})
}

func (s *Store) queryPendingUnmutes(ctx context.Context, where sq.Sqlizer) ([]PendingUnmute, error) {
	builder := s.sq.
		Select("guild_id", "user_id", "role_id", "due_at", "created_at").
		From("pending_unmutes").
		OrderBy("due_at ASC")
	if where != nil {
		builder = builder.Where(where)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []PendingUnmute
	for rows.Next() {
		p, err := scanPendingUnmute(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPendingUnmute(row rowScanner) (PendingUnmute, error) {
	var p PendingUnmute
	var due, created int64
	if err := row.Scan(&p.GuildID, &p.UserID, &p.RoleID, &due, &created); err != nil {
		return PendingUnmute{}, err
	}
	p.DueAt = time.Unix(due, 0)
	p.CreatedAt = time.Unix(created, 0)
	return p, nil
}

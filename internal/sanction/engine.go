// Package sanction turns warnings into mutes and bans.
package sanction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"warden/internal/modules/audit"
	"warden/internal/storage"

	"go.uber.org/zap"
)

type Platform interface {
	AddRole(ctx context.Context, guildID, userID, roleID, reason string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
	HasRole(ctx context.Context, guildID, userID, roleID string) (bool, error)
	Ban(ctx context.Context, guildID, userID, reason string) error
	Unban(ctx context.Context, guildID, userID string) error
	Kick(ctx context.Context, guildID, userID, reason string) error
}

type Notifier interface {
	Notify(ctx context.Context, outcome Outcome)
}

type Scheduler interface {
	Arm(job storage.PendingUnmute)
	Cancel(guildID, userID string)
}

type Ledger interface {
	AppendWarning(ctx context.Context, w storage.Warning) (int, error)
	ClearWarnings(ctx context.Context, guildID, userID string) (int, error)
	SavePendingUnmute(ctx context.Context, p storage.PendingUnmute) error
	GetPendingUnmute(ctx context.Context, guildID, userID string) (storage.PendingUnmute, bool, error)
	DeletePendingUnmute(ctx context.Context, guildID, userID string) error
	LockGuild(guildID string) func()
}

type Settings interface {
	Get(ctx context.Context, guildID string) storage.GuildSettings
}

type Auditor interface {
	Log(ctx context.Context, level, guildID, userID, event, details string)
}

type WarningRequest struct {
	GuildID   string
	UserID    string
	Reason    string
	Issuer    string
	Automatic bool
}

// ManualRequest is a moderator command aimed at one user.
type ManualRequest struct {
	GuildID   string
	UserID    string
	Moderator string
	Reason    string
	// Duration overrides the mute length; zero mutes until unmuted.
	Duration time.Duration
}

type Engine struct {
	ledger    Ledger
	settings  Settings
	platform  Platform
	notifier  Notifier
	audit     Auditor
	scheduler Scheduler
	logger    *zap.Logger
	now       func() time.Time
}

func NewEngine(ledger Ledger, settings Settings, platform Platform, notifier Notifier, auditor Auditor, logger *zap.Logger) *Engine {
	return &Engine{
		ledger:   ledger,
		settings: settings,
		platform: platform,
		notifier: notifier,
		audit:    auditor,
		logger:   logger,
		now:      time.Now,
	}
}

func (e *Engine) WithScheduler(scheduler Scheduler) {
	e.scheduler = scheduler
}

func (e *Engine) WithClock(now func() time.Time) {
	e.now = now
}

// RecordWarning appends a warning and applies at most one sanction based on
// the user's new warning count. The returned error covers ledger failures
// only; a sanction the platform refused comes back as a failed Outcome.
func (e *Engine) RecordWarning(ctx context.Context, req WarningRequest) (Outcome, error) {
	unlock := e.ledger.LockGuild(req.GuildID)
	defer unlock()

	settings := e.settings.Get(ctx, req.GuildID)
	warning := storage.Warning{
		GuildID:   req.GuildID,
		UserID:    req.UserID,
		Reason:    req.Reason,
		Issuer:    req.Issuer,
		Timestamp: e.now().UTC().Format(time.RFC3339),
	}
	count, err := e.ledger.AppendWarning(ctx, warning)
	if err != nil {
		return Outcome{}, fmt.Errorf("record warning: %w", err)
	}

	warned := Outcome{
		Kind:      KindWarned,
		GuildID:   req.GuildID,
		UserID:    req.UserID,
		Issuer:    req.Issuer,
		Reason:    req.Reason,
		Automatic: req.Automatic,
		Warning:   &warning,
		Count:     count,
		Settings:  settings,
		At:        e.now(),
	}
	e.emit(ctx, warned)

	trigger := warned
	switch {
	case count >= settings.BanThreshold:
		trigger.Reason = fmt.Sprintf("Exceeded ban threshold (%d/%d)", count, settings.BanThreshold)
		return e.ban(ctx, trigger, trigger.Reason)
	case count >= settings.MuteThreshold:
		trigger.Reason = fmt.Sprintf("Exceeded mute threshold (%d/%d)", count, settings.MuteThreshold)
		duration := time.Duration(settings.MuteDurationMinutes) * time.Minute
		outcome, err := e.mute(ctx, trigger, trigger.Reason, duration)
		if errors.Is(err, ErrAlreadyMuted) {
			return warned, nil
		}
		return outcome, nil
	}
	return warned, nil
}

// Warn records a warning issued by a moderator.
func (e *Engine) Warn(ctx context.Context, req ManualRequest) (Outcome, error) {
	return e.RecordWarning(ctx, WarningRequest{
		GuildID: req.GuildID,
		UserID:  req.UserID,
		Reason:  req.Reason,
		Issuer:  req.Moderator,
	})
}

func (e *Engine) Mute(ctx context.Context, req ManualRequest) (Outcome, error) {
	unlock := e.ledger.LockGuild(req.GuildID)
	defer unlock()

	return e.mute(ctx, e.manualOutcome(ctx, req), req.Reason, req.Duration)
}

func (e *Engine) Unmute(ctx context.Context, req ManualRequest) (Outcome, error) {
	unlock := e.ledger.LockGuild(req.GuildID)
	defer unlock()

	base := e.manualOutcome(ctx, req)
	roleID := base.Settings.MuteRoleID
	if roleID == "" {
		return e.fail(ctx, base, KindUnmuted, ErrMuteRoleUnset)
	}

	hasRole, err := e.platform.HasRole(ctx, req.GuildID, req.UserID, roleID)
	if err != nil {
		return e.fail(ctx, base, KindUnmuted, err)
	}
	_, pending, err := e.ledger.GetPendingUnmute(ctx, req.GuildID, req.UserID)
	if err != nil {
		e.logger.Warn("read pending unmute failed", zap.String("guild_id", req.GuildID), zap.String("user_id", req.UserID), zap.Error(err))
	}
	if !hasRole && !pending {
		return base, ErrNotMuted
	}

	if hasRole {
		if err := e.platform.RemoveRole(ctx, req.GuildID, req.UserID, roleID); err != nil {
			return e.fail(ctx, base, KindUnmuted, err)
		}
	}
	e.cancelUnmute(ctx, req.GuildID, req.UserID)

	base.Kind = KindUnmuted
	e.emit(ctx, base)
	return base, nil
}

func (e *Engine) Ban(ctx context.Context, req ManualRequest) (Outcome, error) {
	unlock := e.ledger.LockGuild(req.GuildID)
	defer unlock()

	outcome, err := e.ban(ctx, e.manualOutcome(ctx, req), req.Reason)
	if err != nil {
		return outcome, err
	}
	if outcome.Failed() {
		return outcome, outcome.Err
	}
	return outcome, nil
}

func (e *Engine) Unban(ctx context.Context, req ManualRequest) (Outcome, error) {
	unlock := e.ledger.LockGuild(req.GuildID)
	defer unlock()

	base := e.manualOutcome(ctx, req)
	if err := e.platform.Unban(ctx, req.GuildID, req.UserID); err != nil {
		return e.fail(ctx, base, KindUnbanned, err)
	}
	base.Kind = KindUnbanned
	e.emit(ctx, base)
	return base, nil
}

func (e *Engine) Kick(ctx context.Context, req ManualRequest) (Outcome, error) {
	unlock := e.ledger.LockGuild(req.GuildID)
	defer unlock()

	base := e.manualOutcome(ctx, req)
	if err := e.platform.Kick(ctx, req.GuildID, req.UserID, req.Reason); err != nil {
		return e.fail(ctx, base, KindKicked, err)
	}
	base.Kind = KindKicked
	e.emit(ctx, base)
	return base, nil
}

// ClearWarnings wipes the user's ledger and returns how many warnings went.
func (e *Engine) ClearWarnings(ctx context.Context, req ManualRequest) (int, error) {
	unlock := e.ledger.LockGuild(req.GuildID)
	defer unlock()

	removed, err := e.ledger.ClearWarnings(ctx, req.GuildID, req.UserID)
	if err != nil {
		return 0, fmt.Errorf("clear warnings: %w", err)
	}
	outcome := e.manualOutcome(ctx, req)
	outcome.Kind = KindCleared
	outcome.Removed = removed
	e.emit(ctx, outcome)
	return removed, nil
}

// ExpireMute lifts a timed mute. Jobs superseded by a later mute or already
// cancelled are ignored.
func (e *Engine) ExpireMute(ctx context.Context, job storage.PendingUnmute) error {
	unlock := e.ledger.LockGuild(job.GuildID)
	defer unlock()

	current, found, err := e.ledger.GetPendingUnmute(ctx, job.GuildID, job.UserID)
	if err != nil {
		return fmt.Errorf("read pending unmute: %w", err)
	}
	if !found || current.DueAt.After(job.DueAt) {
		return nil
	}

	settings := e.settings.Get(ctx, job.GuildID)
	outcome := Outcome{
		GuildID:   job.GuildID,
		UserID:    job.UserID,
		Issuer:    "AutoMod",
		Reason:    "Mute duration expired",
		Automatic: true,
		Settings:  settings,
		At:        e.now(),
	}

	hasRole, err := e.platform.HasRole(ctx, job.GuildID, job.UserID, current.RoleID)
	if err != nil {
		e.dropPending(ctx, job.GuildID, job.UserID)
		_, ferr := e.fail(ctx, outcome, KindUnmuted, err)
		return ferr
	}
	if hasRole {
		if err := e.platform.RemoveRole(ctx, job.GuildID, job.UserID, current.RoleID); err != nil {
			e.dropPending(ctx, job.GuildID, job.UserID)
			_, ferr := e.fail(ctx, outcome, KindUnmuted, err)
			return ferr
		}
	}
	e.dropPending(ctx, job.GuildID, job.UserID)

	// the role was removed by hand already
	if !hasRole {
		return nil
	}
	outcome.Kind = KindUnmuted
	e.emit(ctx, outcome)
	return nil
}

func (e *Engine) mute(ctx context.Context, base Outcome, reason string, duration time.Duration) (Outcome, error) {
	roleID := base.Settings.MuteRoleID
	if roleID == "" {
		return e.fail(ctx, base, KindMuted, ErrMuteRoleUnset)
	}

	hasRole, err := e.platform.HasRole(ctx, base.GuildID, base.UserID, roleID)
	if err != nil {
		return e.fail(ctx, base, KindMuted, err)
	}
	if hasRole {
		return base, ErrAlreadyMuted
	}
	// The role was removed by hand: a leftover unmute must not outlive it.
	_, pending, err := e.ledger.GetPendingUnmute(ctx, base.GuildID, base.UserID)
	if err != nil {
		e.logger.Warn("read pending unmute failed", zap.String("guild_id", base.GuildID), zap.String("user_id", base.UserID), zap.Error(err))
	}
	if pending {
		e.cancelUnmute(ctx, base.GuildID, base.UserID)
	}

	if err := e.platform.AddRole(ctx, base.GuildID, base.UserID, roleID, reason); err != nil {
		return e.fail(ctx, base, KindMuted, err)
	}

	if duration > 0 {
		job := storage.PendingUnmute{
			GuildID:   base.GuildID,
			UserID:    base.UserID,
			RoleID:    roleID,
			DueAt:     e.now().Add(duration),
			CreatedAt: e.now(),
		}
		if err := e.ledger.SavePendingUnmute(ctx, job); err != nil {
			e.logger.Error("persist pending unmute failed", zap.String("guild_id", base.GuildID), zap.String("user_id", base.UserID), zap.Error(err))
		}
		if e.scheduler != nil {
			e.scheduler.Arm(job)
		}
	}

	outcome := base
	outcome.Kind = KindMuted
	outcome.Duration = duration
	outcome.At = e.now()
	e.emit(ctx, outcome)
	return outcome, nil
}

// ban returns a failed outcome rather than an error when the platform refuses.
func (e *Engine) ban(ctx context.Context, base Outcome, reason string) (Outcome, error) {
	if err := e.platform.Ban(ctx, base.GuildID, base.UserID, reason); err != nil {
		outcome, _ := e.fail(ctx, base, KindBanned, err)
		return outcome, nil
	}

	removed, err := e.ledger.ClearWarnings(ctx, base.GuildID, base.UserID)
	if err != nil {
		e.logger.Error("purge warnings after ban failed", zap.String("guild_id", base.GuildID), zap.String("user_id", base.UserID), zap.Error(err))
	}
	e.cancelUnmute(ctx, base.GuildID, base.UserID)

	outcome := base
	outcome.Kind = KindBanned
	outcome.Removed = removed
	outcome.At = e.now()
	e.emit(ctx, outcome)
	return outcome, nil
}

func (e *Engine) fail(ctx context.Context, base Outcome, attempted Kind, err error) (Outcome, error) {
	outcome := base
	outcome.Kind = KindFailed
	outcome.Attempted = attempted
	outcome.Err = err
	outcome.At = e.now()
	e.emit(ctx, outcome)
	return outcome, err
}

func (e *Engine) manualOutcome(ctx context.Context, req ManualRequest) Outcome {
	return Outcome{
		GuildID:  req.GuildID,
		UserID:   req.UserID,
		Issuer:   req.Moderator,
		Reason:   req.Reason,
		Duration: req.Duration,
		Settings: e.settings.Get(ctx, req.GuildID),
		At:       e.now(),
	}
}

func (e *Engine) cancelUnmute(ctx context.Context, guildID, userID string) {
	if e.scheduler != nil {
		e.scheduler.Cancel(guildID, userID)
	}
	e.dropPending(ctx, guildID, userID)
}

func (e *Engine) dropPending(ctx context.Context, guildID, userID string) {
	if err := e.ledger.DeletePendingUnmute(ctx, guildID, userID); err != nil {
		e.logger.Warn("delete pending unmute failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
	}
}

func (e *Engine) emit(ctx context.Context, outcome Outcome) {
	if e.notifier != nil {
		e.notifier.Notify(ctx, outcome)
	}
	if e.audit != nil {
		e.audit.Log(ctx, levelFor(outcome), outcome.GuildID, outcome.UserID, string(outcome.Kind), describe(outcome))
	}
}

func levelFor(outcome Outcome) string {
	switch outcome.Kind {
	case KindBanned, KindFailed:
		return audit.LevelCrit
	case KindMuted, KindKicked:
		return audit.LevelWarn
	default:
		return audit.LevelInfo
	}
}

func describe(outcome Outcome) string {
	switch outcome.Kind {
	case KindWarned:
		return fmt.Sprintf("%s by %s (%d/%d before mute, ban at %d)", outcome.Reason, outcome.Issuer,
			outcome.Count, outcome.Settings.MuteThreshold, outcome.Settings.BanThreshold)
	case KindMuted:
		if outcome.Duration <= 0 {
			return fmt.Sprintf("%s by %s, until unmuted", outcome.Reason, outcome.Issuer)
		}
		return fmt.Sprintf("%s by %s for %s", outcome.Reason, outcome.Issuer, outcome.Duration)
	case KindCleared:
		return fmt.Sprintf("%d warnings cleared by %s", outcome.Removed, outcome.Issuer)
	case KindFailed:
		return fmt.Sprintf("%s failed: %v", outcome.Attempted, outcome.Err)
	default:
		return fmt.Sprintf("%s by %s", outcome.Reason, outcome.Issuer)
	}
}

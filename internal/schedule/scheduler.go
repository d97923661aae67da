// Package schedule lifts timed mutes from durable pending-unmute records.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"warden/internal/storage"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Source interface {
	ListPendingUnmutes(ctx context.Context) ([]storage.PendingUnmute, error)
	DuePendingUnmutes(ctx context.Context, now time.Time) ([]storage.PendingUnmute, error)
}

type Expirer interface {
	ExpireMute(ctx context.Context, job storage.PendingUnmute) error
}

type armed struct {
	job   storage.PendingUnmute
	timer Timer
}

type Scheduler struct {
	mu      sync.Mutex
	ctx     context.Context
	clock   Clock
	source  Source
	expirer Expirer
	logger  *zap.Logger
	timers  map[string]*armed
	cron    *cron.Cron
}

func New(source Source, expirer Expirer, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		ctx:     context.Background(),
		clock:   realClock{},
		source:  source,
		expirer: expirer,
		logger:  logger,
		timers:  make(map[string]*armed),
		cron:    cron.New(),
	}
}

func (s *Scheduler) WithClock(clock Clock) {
	s.clock = clock
}

// Arm starts a timer for job. Re-arming the same job is a no-op; a job with
// a different due time replaces the live timer for that user.
func (s *Scheduler) Arm(job storage.PendingUnmute) {
	key := jobKey(job.GuildID, job.UserID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.timers[key]; ok {
		if current.job.DueAt.Equal(job.DueAt) && current.job.RoleID == job.RoleID {
			return
		}
		current.timer.Stop()
		delete(s.timers, key)
	}

	delay := job.DueAt.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	entry := &armed{job: job}
	entry.timer = s.clock.AfterFunc(delay, func() { s.fire(entry) })
	s.timers[key] = entry
}

func (s *Scheduler) Cancel(guildID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := jobKey(guildID, userID)
	if entry, ok := s.timers[key]; ok {
		entry.timer.Stop()
		delete(s.timers, key)
	}
}

// Armed reports the number of live timers.
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Recover re-arms every stored pending unmute. Overdue ones fire at once.
func (s *Scheduler) Recover(ctx context.Context) (int, error) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	jobs, err := s.source.ListPendingUnmutes(ctx)
	if err != nil {
		return 0, fmt.Errorf("load pending unmutes: %w", err)
	}
	for _, job := range jobs {
		s.Arm(job)
	}
	return len(jobs), nil
}

// Sweep expires every stored job due at now, whether or not its timer
// survived.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) (int, error) {
	due, err := s.source.DuePendingUnmutes(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("load due unmutes: %w", err)
	}
	for _, job := range due {
		s.Cancel(job.GuildID, job.UserID)
		s.expire(ctx, job)
	}
	return len(due), nil
}

// Start registers the cron sweep and any extra jobs, then runs cron.
func (s *Scheduler) Start(ctx context.Context, sweepSpec string) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	_, err := s.cron.AddFunc(sweepSpec, func() {
		fired, err := s.Sweep(ctx, s.clock.Now())
		if err != nil {
			s.logger.Warn("unmute sweep failed", zap.Error(err))
			return
		}
		if fired > 0 {
			s.logger.Info("unmute sweep expired mutes", zap.Int("count", fired))
		}
	})
	if err != nil {
		return fmt.Errorf("register sweep %q: %w", sweepSpec, err)
	}
	s.cron.Start()
	s.logger.Debug("scheduler started", zap.Int("cron_entries", len(s.cron.Entries())))
	return nil
}

// AddJob registers a named periodic job on the scheduler's cron.
func (s *Scheduler) AddJob(spec, name string, job func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		if err := job(ctx); err != nil {
			s.logger.Warn("scheduled job failed", zap.String("job", name), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("register %s %q: %w", name, spec, err)
	}
	return nil
}

// Stop halts cron and every live timer. Pending records stay stored.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, key)
	}
}

func (s *Scheduler) fire(entry *armed) {
	key := jobKey(entry.job.GuildID, entry.job.UserID)

	s.mu.Lock()
	if s.timers[key] != entry {
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	ctx := s.ctx
	s.mu.Unlock()

	s.expire(ctx, entry.job)
}

func (s *Scheduler) expire(ctx context.Context, job storage.PendingUnmute) {
	if err := s.expirer.ExpireMute(ctx, job); err != nil {
		s.logger.Warn("expire mute failed",
			zap.String("guild_id", job.GuildID),
			zap.String("user_id", job.UserID),
			zap.Error(err),
		)
	}
}

func jobKey(guildID, userID string) string {
	return guildID + ":" + userID
}

// Package web serves a read-only view of moderation state over HTTP.
package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"warden/internal/analytics"
	"warden/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Store interface {
	GetGuildSettings(ctx context.Context, guildID string) (storage.GuildSettings, bool, error)
	ListWarnings(ctx context.Context, guildID, userID string) ([]storage.Warning, error)
	CountGuildWarnings(ctx context.Context, guildID string) (int, error)
	Ping(ctx context.Context) error
}

type Defaults interface {
	Defaults(guildID string) storage.GuildSettings
}

type Reporter interface {
	Report(ctx context.Context, guildID string, since time.Time) (analytics.Report, error)
}

type Server struct {
	engine   *gin.Engine
	store    Store
	defaults Defaults
	reports  Reporter
	logger   *zap.Logger
}

func NewServer(store Store, defaults Defaults, reports Reporter, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, store: store, defaults: defaults, reports: reports, logger: logger}
	s.engine.Use(s.logsMiddleware())
	s.routes()
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api enabled", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (s *Server) routes() {
	s.engine.GET("/health", s.health)

	api := s.engine.Group("/api/guilds/:guildID")
	{
		api.GET("/settings", s.guildSettings)
		api.GET("/users/:userID/warnings", s.userWarnings)
		api.GET("/report", s.report)
	}
}

func (s *Server) logsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

func (s *Server) health(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		c.String(http.StatusServiceUnavailable, "database unavailable")
		return
	}
	c.String(http.StatusOK, "ok")
}

type settingsView struct {
	GuildID             string   `json:"guild_id"`
	Stored              bool     `json:"stored"`
	Enabled             bool     `json:"enabled"`
	BannedWords         []string `json:"banned_words"`
	BanDefaultOffensive bool     `json:"ban_default_offensive"`
	MuteThreshold       int      `json:"mute_threshold"`
	BanThreshold        int      `json:"ban_threshold"`
	MuteDurationMinutes int      `json:"mute_duration_minutes"`
	LogChannelID        string   `json:"log_channel_id,omitempty"`
	MuteRoleID          string   `json:"mute_role_id,omitempty"`
	MatchMode           string   `json:"match_mode"`
	TotalWarnings       int      `json:"total_warnings"`
}

func (s *Server) guildSettings(c *gin.Context) {
	ctx := c.Request.Context()
	guildID := c.Param("guildID")

	current, stored, err := s.store.GetGuildSettings(ctx, guildID)
	if err != nil {
		s.fail(c, "read settings", err)
		return
	}
	if !stored {
		current = s.defaults.Defaults(guildID)
	}
	total, err := s.store.CountGuildWarnings(ctx, guildID)
	if err != nil {
		s.fail(c, "count warnings", err)
		return
	}

	c.JSON(http.StatusOK, settingsView{
		GuildID:             guildID,
		Stored:              stored,
		Enabled:             current.Enabled,
		BannedWords:         current.BannedWords,
		BanDefaultOffensive: current.BanDefaultOffensive,
		MuteThreshold:       current.MuteThreshold,
		BanThreshold:        current.BanThreshold,
		MuteDurationMinutes: current.MuteDurationMinutes,
		LogChannelID:        current.LogChannelID,
		MuteRoleID:          current.MuteRoleID,
		MatchMode:           current.MatchMode,
		TotalWarnings:       total,
	})
}

type warningView struct {
	ID        string `json:"id"`
	Reason    string `json:"reason"`
	Issuer    string `json:"issuer"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) userWarnings(c *gin.Context) {
	warnings, err := s.store.ListWarnings(c.Request.Context(), c.Param("guildID"), c.Param("userID"))
	if err != nil {
		s.fail(c, "list warnings", err)
		return
	}
	views := make([]warningView, 0, len(warnings))
	for _, w := range warnings {
		views = append(views, warningView{ID: w.ID, Reason: w.Reason, Issuer: w.Issuer, Timestamp: w.Timestamp})
	}
	c.JSON(http.StatusOK, gin.H{
		"guild_id": c.Param("guildID"),
		"user_id":  c.Param("userID"),
		"count":    len(views),
		"warnings": views,
	})
}

func (s *Server) report(c *gin.Context) {
	days := 7
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 365 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 365"})
			return
		}
		days = parsed
	}

	report, err := s.reports.Report(c.Request.Context(), c.Param("guildID"), time.Now().AddDate(0, 0, -days))
	if err != nil {
		s.fail(c, "build report", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) fail(c *gin.Context, action string, err error) {
	s.logger.Error("api "+action+" failed", zap.String("guild_id", c.Param("guildID")), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

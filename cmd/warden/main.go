package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"warden/internal/analytics"
	"warden/internal/bot"
	"warden/internal/config"
	"warden/internal/legacy"
	"warden/internal/modules/audit"
	"warden/internal/schedule"
	"warden/internal/settings"
	"warden/internal/storage"
	"warden/internal/web"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := storage.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settingsStore := settings.New(store, cfg.Moderation, logger)
	if cfg.LegacyImportPath != "" {
		result, err := legacy.NewImporter(store, settingsStore, logger).ImportFile(ctx, cfg.LegacyImportPath)
		if err != nil {
			logger.Error("legacy import failed", zap.String("path", cfg.LegacyImportPath), zap.Error(err))
		} else {
			logger.Info("legacy import finished",
				zap.Int("imported", result.Imported),
				zap.Int("skipped", result.Skipped),
				zap.Int("warnings", result.Warnings),
			)
		}
	}

	auditLogger := audit.NewLogger(store, logger)
	analyticsService := analytics.New(store)

	botSvc, err := bot.New(cfg, logger, store, settingsStore, auditLogger, analyticsService)
	if err != nil {
		logger.Fatal("bot init failed", zap.Error(err))
	}

	scheduler := schedule.New(store, botSvc.Engine(), logger)
	botSvc.Engine().WithScheduler(scheduler)

	if err := botSvc.Start(); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("bot started", zap.String("mode", string(cfg.Mode)), zap.String("driver", cfg.Database.Driver))

	recovered, err := scheduler.Recover(ctx)
	if err != nil {
		logger.Error("pending unmute recovery failed", zap.Error(err))
	} else {
		logger.Info("pending unmutes recovered", zap.Int("count", recovered))
	}
	if cfg.Database.RetentionDays > 0 {
		err := scheduler.AddJob(cfg.Scheduler.RetentionSpec, "audit_retention", func(ctx context.Context) error {
			removed, err := store.CleanupAuditLogs(ctx, cfg.Database.RetentionDays)
			if err == nil && removed > 0 {
				logger.Info("audit logs pruned", zap.Int64("removed", removed))
			}
			return err
		})
		if err != nil {
			logger.Fatal("retention job invalid", zap.Error(err))
		}
	}
	if err := scheduler.Start(ctx, cfg.Scheduler.SweepSpec); err != nil {
		logger.Fatal("scheduler start failed", zap.Error(err))
	}

	group, groupCtx := errgroup.WithContext(ctx)
	if cfg.HTTP.Enabled {
		server := web.NewServer(store, settingsStore, analyticsService, logger)
		group.Go(func() error {
			return server.Run(groupCtx, cfg.HTTP.Addr)
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error("service stopped", zap.Error(err))
	}
	logger.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	scheduler.Stop()
	botSvc.Close(shutdownCtx)
}

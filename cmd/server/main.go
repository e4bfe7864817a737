package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mohammedemad618/amir-sub000/internal/admin"
	"github.com/mohammedemad618/amir-sub000/internal/auth"
	"github.com/mohammedemad618/amir-sub000/internal/booking"
	"github.com/mohammedemad618/amir-sub000/internal/clock"
	"github.com/mohammedemad618/amir-sub000/internal/config"
	"github.com/mohammedemad618/amir-sub000/internal/events"
	"github.com/mohammedemad618/amir-sub000/internal/middleware"
	"github.com/mohammedemad618/amir-sub000/internal/notify"
	"github.com/mohammedemad618/amir-sub000/internal/schedule"
	"github.com/mohammedemad618/amir-sub000/internal/scheduler"
	"github.com/mohammedemad618/amir-sub000/internal/scheduler/memory"
	"github.com/mohammedemad618/amir-sub000/internal/server"
	"github.com/mohammedemad618/amir-sub000/internal/storage/sqlite"
	"github.com/mohammedemad618/amir-sub000/pkg/logger"
)

var version = "dev"

const (
	horizonRefreshInterval = time.Hour
	windowSweepInterval    = time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("Service stopped with error", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
	log.Info("Service stopped gracefully")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting booking service",
		zap.String("version", version),
		zap.String("timezone", cfg.Schedule.Timezone),
		zap.Int("horizon_days", cfg.Schedule.HorizonDays))

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("Error closing storage", zap.Error(err))
		}
	}()
	log.Info("Storage initialized", zap.String("path", cfg.Database.Path))

	loc := cfg.Location()
	clk := clock.Real{}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQP.URL != "" {
		p, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return fmt.Errorf("failed to connect to AMQP: %w", err)
		}
		publisher = p
		log.Info("Publishing events", zap.String("exchange", cfg.AMQP.Exchange))
	}
	defer publisher.Close()
	emitter := events.NewEmitter(publisher, log)

	var sender scheduler.NotificationSender = notify.NewLogSender(log, loc)
	if cfg.Telegram.Token != "" {
		ts, err := notify.NewTelegramSender(cfg.Telegram.Token, cfg.Telegram.AdminChatID, loc, log)
		if err != nil {
			return err
		}
		sender = ts
		log.Info("Telegram notifications enabled", zap.Int64("chat_id", cfg.Telegram.AdminChatID))
	}

	reminders := memory.NewMemoryScheduler(sender, log)
	if err := reminders.Start(ctx); err != nil {
		return fmt.Errorf("failed to start reminder scheduler: %w", err)
	}
	defer reminders.Stop()

	materializer := schedule.NewMaterializer(store, store, clk, log, cfg.Schedule.HorizonDays)
	guard := booking.NewGuard(store, materializer, clk, log,
		booking.WithEmitter(emitter),
		booking.WithReminders(reminders, cfg.Schedule.ReminderBefore),
		booking.WithNotifier(sender),
		booking.WithLocation(loc),
	)

	if n, err := guard.RestoreReminders(ctx); err != nil {
		log.Warn("Failed to restore reminders", zap.Error(err))
	} else {
		log.Info("Reminders restored", zap.Int("count", n))
	}

	if n, err := materializer.RefreshHorizon(ctx); err != nil {
		log.Warn("Initial horizon refresh failed", zap.Error(err))
	} else if n > 0 {
		log.Info("Horizon extended at startup", zap.Int("created", n))
	}
	refreshCtx, cancelRefresh := context.WithCancel(ctx)
	defer cancelRefresh()
	go materializer.Run(refreshCtx, horizonRefreshInterval)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	authService := auth.NewService(store, tokens, log)
	if cfg.Auth.AdminEmail != "" {
		if _, err := authService.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
			return fmt.Errorf("failed to bootstrap administrator: %w", err)
		}
	}

	windows := middleware.NewMemoryWindowStore(windowSweepInterval)
	defer windows.Close()
	httpLimiter := middleware.NewRateLimiter(cfg.RateLimit.HTTPPerMinute, time.Minute, log)
	defer httpLimiter.Close()

	srv := server.New(server.Options{
		Config:      cfg,
		Logger:      log,
		Store:       store,
		Auth:        authService,
		Tokens:      tokens,
		Guard:       guard,
		Admin:       admin.NewService(store, materializer, guard, emitter, clk, log),
		AuthLimiter: middleware.NewFixedWindowLimiter("auth", windows, cfg.RateLimit.AuthAttempts, cfg.RateLimit.AuthWindow, log),
		HTTPLimiter: httpLimiter,
		Clock:       clk,
		Version:     version,
	})

	return srv.Start(ctx)
}

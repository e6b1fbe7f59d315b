package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/svcdesk/helpdesk-bot/internal/auth"
	"github.com/svcdesk/helpdesk-bot/internal/bot"
	"github.com/svcdesk/helpdesk-bot/internal/config"
	"github.com/svcdesk/helpdesk-bot/internal/health"
	"github.com/svcdesk/helpdesk-bot/internal/mapping"
	"github.com/svcdesk/helpdesk-bot/internal/metrics"
	"github.com/svcdesk/helpdesk-bot/internal/ops"
	"github.com/svcdesk/helpdesk-bot/internal/ratelimit"
	"github.com/svcdesk/helpdesk-bot/internal/retry"
	"github.com/svcdesk/helpdesk-bot/internal/session"
	"github.com/svcdesk/helpdesk-bot/internal/telegram"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	if level, lerr := zerolog.ParseLevel(cfg.LogLevel); lerr == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Int("http_port", cfg.HTTPPort).
		Str("ops_addr", cfg.OpsListenAddr).
		Bool("telegram_enabled", cfg.TelegramEnabled()).
		Msg("starting helpdesk bot")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	m := metrics.New()

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.RetryMaxAttempts
	retryCfg.BaseDelay = cfg.RetryBaseDelay
	retryCfg.OnRetry = func(int, error) { m.RetryAttemptsTotal.Inc() }

	// Durable remember-me mappings
	store, err := mapping.New(cfg.DBPath, cfg.MappingTTL, retryCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open mapping store")
	}
	defer store.Close()

	checker := health.NewChecker()
	checker.Register("db", health.DBCheck(store.DB()))

	authSvc := auth.NewService(auth.DomainVerifier{Domains: cfg.AllowedEmailDomains}, logger)
	tracker := session.NewTracker(cfg.SessionWarnAfter, cfg.SessionLogoutAfter)
	limiter := ratelimit.New(cfg.RateLimitRequests, cfg.RateLimitWindow)

	var notifier session.Notifier = noopNotifier{}
	var sender bot.Sender = noopNotifier{}
	if cfg.TelegramEnabled() {
		client := telegram.NewClient(cfg.TelegramToken, logger)
		notifier = client
		sender = client
	} else {
		logger.Warn().Msg("Telegram not configured — running headless")
	}

	grace := cfg.SessionLogoutAfter - cfg.SessionWarnAfter
	monitor := session.NewMonitor(tracker, authSvc, notifier,
		cfg.MonitorInterval, grace, m, logger)
	monitor.Start(ctx)

	var wg sync.WaitGroup

	// Background janitors: rate-limit window sweep and mapping purge
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cfg.RateLimitSweep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := limiter.Sweep(); removed > 0 {
					logger.Debug().Int("removed", removed).Msg("rate limiter swept")
				}
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cfg.MappingPurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				purged, perr := store.PurgeExpired(ctx, cfg.MappingPurgeGrace)
				if perr != nil {
					logger.Error().Err(perr).Msg("mapping purge failed")
					continue
				}
				if purged > 0 {
					logger.Info().Int64("purged", purged).Msg("expired mappings purged")
				}
			}
		}
	}()

	// Plain HTTP server: probes and Prometheus metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/health", health.LivenessHandler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Ops API
	opsServer := ops.NewServer(cfg.OpsListenAddr, monitor, limiter, authSvc, checker, m, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := opsServer.Start(); err != nil {
			logger.Error().Err(err).Msg("ops API server error")
		}
	}()

	// Telegram dispatch pipeline
	dispatcher := bot.New(limiter, tracker, monitor, authSvc, store, sender, nil, m, logger)
	if cfg.TelegramEnabled() {
		poller := telegram.NewPoller(cfg.TelegramToken, cfg.TelegramPollTimeout, logger)
		inbound := make(chan telegram.Inbound, 64)

		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx, inbound)
			close(inbound)
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			dispatcher.Run(ctx, inbound)
		}()
	}

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	cancel()
	monitor.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if err := opsServer.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("ops API server shutdown error")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("helpdesk bot stopped")
}

// noopNotifier stands in when no Telegram token is configured.
type noopNotifier struct{}

func (noopNotifier) Send(context.Context, int64, string) error { return nil }

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata" // Europe/Rome on hosts without a zoneinfo database

	"github.com/rs/zerolog"

	"github.com/prepscuola/simulazioni-backend/internal/config"
	"github.com/prepscuola/simulazioni-backend/internal/database"
	"github.com/prepscuola/simulazioni-backend/internal/handler"
	"github.com/prepscuola/simulazioni-backend/internal/logger"
	"github.com/prepscuola/simulazioni-backend/internal/push"
	"github.com/prepscuola/simulazioni-backend/internal/repository"
	"github.com/prepscuola/simulazioni-backend/internal/router"
	"github.com/prepscuola/simulazioni-backend/internal/scheduler"
	"github.com/prepscuola/simulazioni-backend/internal/service"
	"github.com/prepscuola/simulazioni-backend/internal/validator"
	"github.com/prepscuola/simulazioni-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Simulazioni Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	simulationRepo := repository.NewSimulationRepository(pool)
	assignmentRepo := repository.NewAssignmentRepository(pool)
	resultRepo := repository.NewResultRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	contractRepo := repository.NewContractRepository(pool)
	liveSessionRepo := repository.NewLiveSessionRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	profileService := service.NewProfileService(userRepo, rdb, cfg.AccountStatusTTL, log)
	accessService := service.NewAccessService(simulationRepo, assignmentRepo)
	notificationService := service.NewNotificationService(notificationRepo, rdb, log)
	simulationService := service.NewSimulationService(simulationRepo, accessService, rdb, cfg.PaperCacheTTL, log)
	leaderboardService := service.NewLeaderboardService(accessService, resultRepo, rdb, cfg.LeaderboardCacheTTL, log)
	liveSessionStore := service.NewLiveSessionStore(rdb, liveSessionRepo, cfg.LiveSessionTTL, log)
	resultService := service.NewResultService(accessService, simulationRepo, resultRepo,
		notificationService, leaderboardService, liveSessionStore, log)
	liveSessionService := service.NewLiveSessionService(accessService, simulationService, resultRepo,
		resultService, liveSessionStore, log)
	assignmentService := service.NewAssignmentService(assignmentRepo, simulationRepo, accessService,
		userRepo, notificationService, log)
	calendarService := service.NewCalendarService(accessService, assignmentRepo, cfg.PublicBaseURL)
	messageService := service.NewMessageService(accessService, messageRepo, cfg.MessagePollLimit, log)
	sweepService := service.NewSweepService(assignmentRepo, resultRepo, contractRepo, userRepo,
		notificationService, rdb, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	probes := []handler.Probe{
		{Name: "postgres", Check: pool.Ping},
		handler.RedisProbe(rdb),
	}
	handlers := &router.Handlers{
		Simulation: handler.NewSimulationHandler(simulationService),
		Session:    handler.NewSessionHandler(liveSessionService),
		Result:     handler.NewResultHandler(resultService, leaderboardService),
		Assignment: handler.NewAssignmentHandler(assignmentService),
		Calendar:   handler.NewCalendarHandler(calendarService),
		Message:    handler.NewMessageHandler(messageService),
		Me:         handler.NewMeHandler(profileService, notificationService),
		Cron:       handler.NewCronHandler(sweepService, log),
		WS:         handler.NewWSHandler(liveSessionService, log, cfg.AllowedOrigins),
		System:     handler.NewSystemHandler(rdb, probes, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	dispatcher := push.NewDispatcher(cfg.PushConcurrency, log, pushProviders(ctx, cfg, log)...)
	autosaveWorker := worker.NewAutosaveWorker(liveSessionStore, rdb, log)
	pushWorker := worker.NewPushWorker(notificationRepo, dispatcher, rdb, log)

	workers.Go(func() { autosaveWorker.Start(workerCtx) })
	workers.Go(func() { pushWorker.Start(workerCtx) })

	// ─── Optional In-Process Sweeps ───────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.CronScheduleEnabled {
		sched, err = scheduler.New(sweepService, cfg.CloseSimulationsAt, cfg.ExpireContractsAt, rome(log), log)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid sweep schedule")
		}
		sched.Start()
	}

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Papers of published simulations are cached before accepting traffic
	// so the first wave of students does not stampede Postgres.
	if err := simulationService.WarmCache(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	stop := make(chan struct{})
	r := router.SetupRouter(router.Guards{
		Tokens:   authService,
		Accounts: profileService,
		Stop:     stop,
	}, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	close(stop)

	// 2. Let a running sweep finish.
	if sched != nil {
		sched.Stop(shutdownCtx)
	}

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// pushProviders builds the configured push providers. A provider missing
// its credentials is left out and its devices are skipped.
func pushProviders(ctx context.Context, cfg *config.Config, log zerolog.Logger) []push.Provider {
	providers := []push.Provider{
		push.NewExpoClient(cfg.ExpoPushURL, cfg.ExpoAccessToken, &http.Client{Timeout: 15 * time.Second}),
	}
	if cfg.FCMProjectID == "" || cfg.FCMCredentialsFile == "" {
		log.Warn().Msg("FCM not configured, Android native tokens will be skipped")
		return providers
	}
	httpClient, err := push.NewFCMHTTPClient(ctx, cfg.FCMCredentialsFile)
	if err != nil {
		log.Error().Err(err).Msg("FCM credentials unusable, Android native tokens will be skipped")
		return providers
	}
	httpClient.Timeout = 15 * time.Second
	return append(providers, push.NewFCMClient(cfg.FCMProjectID, "", httpClient))
}

func rome(log zerolog.Logger) *time.Location {
	loc, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		log.Warn().Err(err).Msg("Europe/Rome unavailable, scheduling in UTC")
		return time.UTC
	}
	return loc
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/casperarmani/backendmultchat/config"
	"github.com/casperarmani/backendmultchat/internal/cache"
	"github.com/casperarmani/backendmultchat/internal/chatbotapi"
	"github.com/casperarmani/backendmultchat/internal/handlers"
	"github.com/casperarmani/backendmultchat/internal/health"
	"github.com/casperarmani/backendmultchat/internal/middleware"
	"github.com/casperarmani/backendmultchat/internal/persist"
	"github.com/casperarmani/backendmultchat/internal/ratelimit"
	"github.com/casperarmani/backendmultchat/internal/redisstore"
	"github.com/casperarmani/backendmultchat/internal/session"
	"github.com/casperarmani/backendmultchat/internal/sweepers"
	"github.com/casperarmani/backendmultchat/internal/taskqueue"
	"github.com/casperarmani/backendmultchat/internal/telemetry"
	"github.com/casperarmani/backendmultchat/internal/worker"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Logging)

	logger.Info().Msg("Starting chat backend")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}

	rdb, err := redisstore.New(cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	logger.Info().Str("addr", cfg.Redis.Addr).Msg("Redis connected")

	queue := taskqueue.New(rdb, logger)
	sessions := session.NewStore(rdb, cfg.Session.Lifetime, cfg.Session.RefreshThreshold, logger)
	responseCache := cache.New(rdb, cfg.Cache.DefaultTTL, logger)
	limiter := ratelimit.New(rdb, map[string]ratelimit.Rule{
		"login":              {Limit: cfg.RateLimit.Login.Limit, Window: cfg.RateLimit.Login.Window},
		"signup":             {Limit: cfg.RateLimit.Signup.Limit, Window: cfg.RateLimit.Signup.Window},
		"message_processing": {Limit: cfg.RateLimit.MessageProcessing.Limit, Window: cfg.RateLimit.MessageProcessing.Window},
	}, logger)
	monitor := health.NewMonitor(rdb, queue, responseCache, sessions)

	persistClient := persist.NewClient(cfg.Persistence, logger)
	chatbot := chatbotapi.New(cfg.Chatbot)

	consumer := worker.New(queue, cfg.Worker.PollInterval, logger)
	consumer.Register(taskqueue.TaskMessageProcessing, worker.MessageHandler(chatbot, persistClient, responseCache))
	consumer.Register(taskqueue.TaskVideoProcessing, worker.VideoProcessingHandler(chatbot, queue))
	consumer.Register(taskqueue.TaskVideoAnalysis, worker.VideoAnalysisHandler(persistClient, responseCache))

	sessionSweeper := sweepers.NewSessionSweeper(sessions, sweepers.NewLocker(rdb), logger, cfg.Session.SweepInterval)

	if cfg.Logging.Level == "info" || cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	h := handlers.New(cfg, sessions, responseCache, queue, limiter, monitor, persistClient, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	router.GET("/health", h.Health)
	router.GET("/metrics", middleware.ServiceRateLimit(10, 20), h.Metrics)
	router.GET("/metrics/prometheus", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/login", h.Login)
		api.POST("/signup", h.Signup)
		api.POST("/logout", h.Logout)
		api.GET("/auth_status", h.AuthStatus)

		authed := api.Group("")
		authed.Use(middleware.RequireAuth(sessions))
		{
			authed.POST("/send_message", h.SendMessage)
			authed.GET("/chat_history", h.ChatHistory)
			authed.GET("/video_analysis_history", h.VideoAnalysisHistory)
			authed.GET("/user/tokens", h.UserTokens)
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := consumer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("task consumer: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		sessionSweeper.Start(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Background loop failed")
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTelemetry(flushCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to flush telemetry")
	}

	logger.Info().Msg("Server exited")
}

func initLogger(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Str("service", "chat-backend").Logger()
}

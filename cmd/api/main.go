package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/fieldserve/sms-engine/internal/carrier"
	"github.com/fieldserve/sms-engine/internal/config"
	"github.com/fieldserve/sms-engine/internal/handler"
	conversationHandler "github.com/fieldserve/sms-engine/internal/handler/conversation"
	messageHandler "github.com/fieldserve/sms-engine/internal/handler/message"
	settingsHandler "github.com/fieldserve/sms-engine/internal/handler/settings"
	templateHandler "github.com/fieldserve/sms-engine/internal/handler/template"
	webhookHandler "github.com/fieldserve/sms-engine/internal/handler/webhook"
	"github.com/fieldserve/sms-engine/internal/middleware"
	"github.com/fieldserve/sms-engine/internal/repository/postgres"
	"github.com/fieldserve/sms-engine/internal/router"
	conversationService "github.com/fieldserve/sms-engine/internal/service/conversation"
	dispatchService "github.com/fieldserve/sms-engine/internal/service/dispatch"
	settingsService "github.com/fieldserve/sms-engine/internal/service/settings"
	templateService "github.com/fieldserve/sms-engine/internal/service/template"
	triggerService "github.com/fieldserve/sms-engine/internal/service/trigger"
	"github.com/fieldserve/sms-engine/pkg/logger"
	"github.com/fieldserve/sms-engine/pkg/messaging/redis"
	"github.com/fieldserve/sms-engine/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	queue, err := redis.NewRedisQueue(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer queue.Close()

	m := metrics.NewMetrics("sms_engine", "api")

	// Repositories
	messageRepo := postgres.NewMessageRepository(db)
	templateRepo := postgres.NewTemplateRepository(db)
	settingsRepo := postgres.NewSettingsRepository(db)
	conversationRepo := postgres.NewConversationRepository(db)
	customerRepo := postgres.NewCustomerRepository(db)
	tenantRepo := postgres.NewTenantRepository(db)
	jobRepo := postgres.NewJobRepository(db)

	// The API process only enqueues; the worker binary drains the
	// queue, so the gateway here is never exercised.
	gateway := carrier.Gateway(carrier.NewMockGateway())
	if !cfg.Carrier.Mock {
		gateway = carrier.NewHTTPGateway(carrier.HTTPConfig{
			BaseURL:     cfg.Carrier.BaseURL,
			APIKey:      cfg.Carrier.APIKey,
			Timeout:     cfg.Carrier.Timeout,
			MaxFailures: cfg.Carrier.MaxFailures,
			OpenTimeout: cfg.Carrier.OpenTimeout,
		})
	}

	// Services
	settingsSvc := settingsService.NewService(settingsRepo, cfg.Settings.SnapshotTTL)
	templateSvc := templateService.NewService(templateRepo)
	conversationSvc := conversationService.NewService(conversationRepo, messageRepo)
	dispatcher := dispatchService.NewService(messageRepo, customerRepo, gateway, queue, dispatchService.Config{
		Workers:     cfg.Dispatch.Workers,
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		BaseBackoff: cfg.Dispatch.BaseBackoff,
		MaxBackoff:  cfg.Dispatch.MaxBackoff,
	}, appLogger, m)
	engine := triggerService.NewService(
		settingsSvc, templateSvc, messageRepo, customerRepo, tenantRepo, jobRepo,
		dispatcher, appLogger, m)

	// Handlers
	auth := middleware.NewAuthMiddleware(middleware.AuthConfig{
		JWTSecret:      cfg.Auth.JWTSecret,
		ServiceKeyHash: cfg.Auth.ServiceKeyHash,
	})
	r := router.NewRouter(
		auth,
		webhookHandler.NewHandler(engine, dispatcher, appLogger),
		templateHandler.NewHandler(templateSvc),
		settingsHandler.NewHandler(settingsSvc),
		conversationHandler.NewHandler(conversationSvc),
		messageHandler.NewHandler(engine),
		handler.NewHealthHandler(db),
		router.Config{
			RateLimit:     rate.Limit(cfg.Server.RateLimit),
			RateBurst:     cfg.Server.RateBurst,
			CORSConfig:    middleware.DefaultCORSConfig(),
			MetricsPrefix: "sms_engine",
		},
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
}

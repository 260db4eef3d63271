package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/fieldserve/sms-engine/internal/carrier"
	"github.com/fieldserve/sms-engine/internal/config"
	"github.com/fieldserve/sms-engine/internal/repository/postgres"
	"github.com/fieldserve/sms-engine/internal/service/dispatch"
	"github.com/fieldserve/sms-engine/pkg/logger"
	"github.com/fieldserve/sms-engine/pkg/messaging/redis"
	"github.com/fieldserve/sms-engine/pkg/metrics"
)

const metricsPort = 9091

// The worker drains the dispatch queue into the carrier and applies
// delivery receipts. It runs separately from the API so a carrier
// outage throttles sends, not trigger evaluation.
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

	m := metrics.NewMetrics("sms_engine", "worker")

	dispatcher := dispatch.NewService(
		postgres.NewMessageRepository(db),
		postgres.NewCustomerRepository(db),
		gateway,
		queue,
		dispatch.Config{
			Workers:     cfg.Dispatch.Workers,
			MaxAttempts: cfg.Dispatch.MaxAttempts,
			BaseBackoff: cfg.Dispatch.BaseBackoff,
			MaxBackoff:  cfg.Dispatch.MaxBackoff,
		},
		appLogger,
		m,
	)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(fmt.Sprintf(":%d", metricsPort), nil); err != nil {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("shutting down worker")
		cancel()
	}()

	if err := dispatcher.Start(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("dispatch worker failed")
	}
}

package main

import (
	"fmt"
	"time"

	"expensetracker/internal/amqp"
	"expensetracker/internal/backend"
	"expensetracker/internal/cache"
	"expensetracker/internal/cli"
	"expensetracker/internal/config"
	apphttp "expensetracker/internal/http"
	"expensetracker/internal/log"
	"expensetracker/internal/services"
)

const (
	statsCacheSize       = 256
	cacheCleanupInterval = time.Minute
)

func main() {
	cli.LoadEnvFile()
	cfg, logger, err := cli.LoadAndValidateConfig((*config.Config).Validate)
	if err != nil {
		cli.Exit(logger, err)
	}
	cli.Exit(logger, run(cfg, logger))
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.SignalContext()
	defer stop()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	store, err := backend.NewFactory(logger.Logger.With(log.FieldComponent, log.ComponentBackend)).CreateBackend(ctx, bcfg)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.DataBackend, err)
	}
	defer func() {
		if err := store.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", log.FieldError, err)
		}
	}()

	statsCache := cache.NewStatsCache(statsCacheSize, cfg.StatsCacheTTL)
	cacheManager := cache.NewManager(logger.Logger.With(log.FieldComponent, log.ComponentCache))
	cacheManager.Register(statsCache)
	cacheManager.StartCleanup(cacheCleanupInterval)
	defer cacheManager.Stop()

	opts := []services.Option{
		services.WithStatsCache(statsCache),
		services.WithLogger(logger),
	}
	if cfg.AMQPURL != "" {
		publisher, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.WithComponent(log.ComponentAMQP).Warn("Event publishing disabled", log.FieldError, err)
		} else {
			defer publisher.Close()
			opts = append(opts, services.WithPublisher(publisher))
			logger.Info("Event publishing enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}
	svc := services.NewExpenseService(store.Gateway, opts...)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		FrontendURL:        cfg.FrontendURL,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		StatsCache:         statsCache,
	}, svc, logger)

	logger.Info("Starting expense API",
		"port", cfg.Port,
		log.FieldBackend, cfg.DataBackend,
		"env", cfg.AppEnv,
		log.FieldOperation, log.OpStartup)
	return cli.Serve(ctx, logger, "expense-api", srv, cfg.ShutdownTimeout)
}

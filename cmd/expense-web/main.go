package main

import (
	"net/http"

	"expensetracker/internal/cli"
	"expensetracker/internal/client"
	"expensetracker/internal/config"
	"expensetracker/internal/log"
	"expensetracker/internal/ui"
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

	api := client.New(cfg.APIBaseURL,
		client.WithHTTPClient(&http.Client{Timeout: cfg.ClientTimeout}),
		client.WithSnapshot(client.NewSnapshotStore(cfg.SnapshotDir)),
		client.WithLogger(logger))

	srv, err := ui.NewServer(ui.Config{
		Addr:               ":" + cfg.WebPort,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, api, logger)
	if err != nil {
		return err
	}

	logger.Info("Starting expense web UI",
		"port", cfg.WebPort,
		"api", api.BaseURL(),
		"snapshot_dir", cfg.SnapshotDir,
		log.FieldOperation, log.OpStartup)
	return cli.Serve(ctx, logger, "expense-web", srv, cfg.ShutdownTimeout)
}

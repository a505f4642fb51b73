// The coordinator binary serves the job state API, the artifact endpoints,
// and dispatches completion webhooks.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/medialoom/coordinator/internal/bootstrap"
	"github.com/medialoom/coordinator/internal/data"
	httpx "github.com/medialoom/coordinator/internal/http"
	"github.com/medialoom/coordinator/internal/service"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "starting coordinator",
		"addr", cfg.HTTP.Addr,
		"redis", cfg.Redis.Addr,
		"bucket", cfg.Storage.Bucket)

	redisClient, err := bootstrap.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := redisClient.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close redis failed", "error", cerr)
		}
	}()

	gateway, err := bootstrap.NewStorageGateway(cfg.Storage, logger)
	if err != nil {
		return err
	}

	metricsSink, err := bootstrap.NewMetricsSink(cfg.Observability, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := metricsSink.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close statsd failed", "error", cerr)
		}
	}()

	secret := []byte(cfg.Webhook.Secret)
	dispatcher, err := service.NewCallbackDispatcher(service.CallbackOptions{
		ConsumerURL: cfg.Webhook.ConsumerCallbackURL,
		Secret:      secret,
		Store:       gateway,
		PresignTTL:  cfg.Storage.PresignTTL,
		Logger:      logger,
		Metrics:     metricsSink,
	})
	if err != nil {
		return err
	}

	jobs, err := service.NewJobStateService(service.JobStateOptions{
		Repo:       data.NewRedisJobRepo(redisClient),
		Store:      gateway,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metricsSink,
	})
	if err != nil {
		return err
	}

	router := httpx.NewRouter(httpx.RouterServices{
		Jobs:   jobs,
		Store:  gateway,
		Secret: secret,
		Logger: logger,
	})
	return bootstrap.RunHTTPServer(ctx, cfg.HTTP, router, logger)
}

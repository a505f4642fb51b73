package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/medialoom/coordinator/config"
	"github.com/medialoom/coordinator/internal/observability/statsd"
	"github.com/medialoom/coordinator/internal/storage"
)

// ConnectRedis connects and pings the job-document store.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewStorageGateway builds the object storage gateway from configuration.
func NewStorageGateway(cfg config.StorageConfig, logger *slog.Logger) (*storage.Gateway, error) {
	remote, err := storage.NewRemoteStore(storage.RemoteConfig{
		Endpoint:  cfg.Endpoint,
		Region:    cfg.Region,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		UseSSL:    cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	var local *storage.LocalStore
	if cfg.LocalDir != "" {
		local, err = storage.NewLocalStore(cfg.LocalDir)
		if err != nil {
			logger.Warn("local storage binding unavailable, remote only",
				"dir", cfg.LocalDir, "error", err)
			local = nil
		}
	}
	return storage.NewGateway(storage.GatewayOptions{Local: local, Remote: remote, Logger: logger})
}

// NewMetricsSink builds the statsd client from configuration.
func NewMetricsSink(cfg config.ObservabilityConfig, logger *slog.Logger) (*statsd.Client, error) {
	return statsd.NewClient(statsd.Config{
		Enabled: cfg.StatsdEnabled,
		Address: cfg.StatsdAddress,
		Prefix:  cfg.StatsdPrefix,
		Logger:  logger,
	})
}

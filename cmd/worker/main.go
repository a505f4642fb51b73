// The worker binary runs one media job in a detached process: it stands up
// proxied egress, executes the engine capability, uploads artifacts, and
// reports signed progress back to the coordinator.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/medialoom/coordinator/config"
	"github.com/medialoom/coordinator/internal/adapters/ytdlp"
	"github.com/medialoom/coordinator/internal/bootstrap"
	"github.com/medialoom/coordinator/internal/domain/model"
	"github.com/medialoom/coordinator/internal/tunnel"
	"github.com/medialoom/coordinator/internal/worker"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "worker failed", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	jobID := flag.String("job", "", "job id")
	mediaID := flag.String("media", "", "media id")
	title := flag.String("title", "", "media title")
	engine := flag.String("engine", string(model.EngineMediaDownloader), "engine")
	sourceURL := flag.String("url", "", "source media url")
	flag.Parse()

	if *jobID == "" || *sourceURL == "" {
		return fmt.Errorf("-job and -url are required")
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}

	tun, proxyURL := startEgress(ctx, &cfg, logger)
	// Close is nil-safe; the tunnel must not outlive the job it serves.
	defer tun.Close()

	gateway, err := bootstrap.NewStorageGateway(cfg.Storage, logger)
	if err != nil {
		return err
	}

	coordinatorURL := cfg.Worker.CoordinatorURL
	if coordinatorURL == "" {
		coordinatorURL = cfg.HTTP.BaseURL
	}
	reporter, err := worker.NewReporter(worker.ReporterOptions{
		CoordinatorURL: coordinatorURL,
		Secret:         []byte(cfg.Webhook.Secret),
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	fetch, err := capabilityFor(model.Engine(*engine), &cfg)
	if err != nil {
		return err
	}

	pipeline, err := worker.NewPipeline(worker.PipelineOptions{
		Fetch:     fetch,
		Sink:      worker.NewStorageSink(gateway),
		Listeners: []worker.Listener{reporter.Listen(ctx)},
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	return pipeline.Run(ctx, worker.Job{
		ID:        *jobID,
		MediaID:   *mediaID,
		Title:     *title,
		Engine:    model.Engine(*engine),
		SourceURL: *sourceURL,
		ProxyURL:  proxyURL,
	})
}

// startEgress stands up the tunnel when one can be assembled and hands the
// caller the running handle so teardown can be deferred. A nil tunnel is a
// degraded path, not an error: the descriptor may still name a plain forward
// proxy, and with neither the worker egresses directly.
func startEgress(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*tunnel.Tunnel, string) {
	desc := cfg.Worker.ProxyDescriptor()
	tun, err := tunnel.Start(ctx, desc, tunnel.Options{
		BinaryPath:      cfg.Tunnel.BinaryPath,
		WorkDir:         cfg.Tunnel.WorkDir,
		HTTPPort:        cfg.Tunnel.HTTPPort,
		SocksPort:       cfg.Tunnel.SocksPort,
		Mode:            cfg.Tunnel.Mode,
		SubscriptionURL: cfg.Tunnel.SubscriptionURL,
		RawConfig:       cfg.Tunnel.RawConfig,
		ReadyAttempts:   cfg.Tunnel.ReadyAttempts,
		ReadyBackoff:    cfg.Tunnel.ReadyBackoff,
		Logger:          logger,
	})
	if err != nil {
		logger.Warn("tunnel start errored, continuing without", "error", err)
	}
	if tun != nil {
		return tun, tun.ProxyURL()
	}
	if desc != nil {
		if forward := desc.ForwardProxyURL(); forward != "" {
			logger.Info("using plain forward proxy", "proxy", desc.Server)
			return nil, forward
		}
	}
	return nil, ""
}

func capabilityFor(engine model.Engine, cfg *config.AppConfig) (worker.FetchFunc, error) {
	switch engine {
	case model.EngineMediaDownloader:
		return ytdlp.New(cfg.Worker.YtdlpPath, cfg.Worker.TempDir).Fetch, nil
	default:
		// Transcription and comments capabilities are injected by their own
		// worker images; this binary only ships the downloader.
		return nil, fmt.Errorf("engine %q has no capability in this worker", engine)
	}
}

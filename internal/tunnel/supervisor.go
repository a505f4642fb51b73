// Package tunnel supervises the local tunnel subprocess that gives a worker
// proxied network egress. A tunnel that cannot be stood up is never fatal:
// Start returns nil and the caller operates tunnel-less or over a plain
// forward proxy.
package tunnel

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/medialoom/coordinator/internal/domain/proxy"
)

const (
	defaultReadyAttempts = 20
	defaultReadyBackoff  = 500 * time.Millisecond
	shutdownGrace        = 3 * time.Second
	configFileName       = "config.yaml"
)

// Options configure tunnel startup.
type Options struct {
	BinaryPath string // Required: tunnel binary
	WorkDir    string // Required: config + provider cache directory
	HTTPPort   int
	SocksPort  int
	Mode       string
	// SubscriptionURL optionally adds a remote proxy provider.
	SubscriptionURL string
	// RawConfig, when set, is written verbatim instead of an assembled
	// configuration.
	RawConfig     string
	ReadyAttempts int
	ReadyBackoff  time.Duration
	Logger        *slog.Logger
}

// Tunnel is a running tunnel subprocess.
type Tunnel struct {
	proxyURL string
	cmd      *exec.Cmd
	logger   *slog.Logger
}

// ProxyURL returns the local HTTP proxy URL the worker should route through.
func (t *Tunnel) ProxyURL() string {
	return t.proxyURL
}

// Close sends a graceful termination signal and waits briefly before forcing
// the subprocess down.
func (t *Tunnel) Close() {
	if t == nil || t.cmd == nil || t.cmd.Process == nil {
		return
	}
	if err := t.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = t.cmd.Process.Kill()
		return
	}

	done := make(chan struct{})
	go func() {
		_, _ = t.cmd.Process.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		t.logger.Warn("tunnel did not exit in time, killing")
		_ = t.cmd.Process.Kill()
	}
}

// Start translates the descriptor, writes the tunnel configuration, spawns
// the binary, and polls the HTTP listen port for readiness. It returns
// (nil, nil) whenever a tunnel is unavailable: untranslatable descriptor with
// no subscription, spawn failure, or readiness timeout. Callers must treat
// nil as "operate without a tunnel".
func Start(ctx context.Context, desc *proxy.Descriptor, opts Options) (*Tunnel, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "tunnel")

	configData, ok := buildConfigData(desc, opts, logger)
	if !ok {
		return nil, nil
	}

	if opts.BinaryPath == "" || opts.WorkDir == "" {
		logger.Warn("tunnel binary or work dir not configured, skipping tunnel")
		return nil, nil
	}
	if err := os.MkdirAll(opts.WorkDir, 0o755); err != nil {
		logger.Warn("create tunnel work dir failed", "error", err)
		return nil, nil
	}
	configPath := filepath.Join(opts.WorkDir, configFileName)
	if err := os.WriteFile(configPath, configData, 0o600); err != nil {
		logger.Warn("write tunnel config failed", "error", err)
		return nil, nil
	}

	cmd := exec.CommandContext(ctx, opts.BinaryPath, "-d", opts.WorkDir, "-f", configPath)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		logger.Warn("tunnel spawn failed", "binary", opts.BinaryPath, "error", err)
		return nil, nil
	}

	tun := &Tunnel{
		proxyURL: "http://127.0.0.1:" + strconv.Itoa(opts.HTTPPort),
		cmd:      cmd,
		logger:   logger,
	}
	if !waitReady(ctx, opts, logger) {
		logger.Warn("tunnel never became ready", "port", opts.HTTPPort)
		tun.Close()
		return nil, nil
	}

	logger.Info("tunnel ready", "proxy_url", tun.proxyURL)
	return tun, nil
}

func buildConfigData(desc *proxy.Descriptor, opts Options, logger *slog.Logger) ([]byte, bool) {
	if opts.RawConfig != "" {
		return []byte(opts.RawConfig), true
	}

	var stanzas []proxy.Stanza
	if stanza := proxy.Translate(desc, logger); stanza != nil {
		stanzas = append(stanzas, stanza)
	}
	cfg := proxy.BuildConfig(stanzas, proxy.BuildOptions{
		HTTPPort:        opts.HTTPPort,
		SocksPort:       opts.SocksPort,
		Mode:            opts.Mode,
		SubscriptionURL: opts.SubscriptionURL,
	})
	if cfg == nil {
		logger.Info("no usable proxy stanza or subscription, skipping tunnel")
		return nil, false
	}

	data, err := cfg.Marshal()
	if err != nil {
		logger.Warn("marshal tunnel config failed", "error", err)
		return nil, false
	}
	return data, true
}

// waitReady polls a TCP connect against the HTTP listen port with bounded
// retries and fixed backoff.
func waitReady(ctx context.Context, opts Options, logger *slog.Logger) bool {
	attempts := opts.ReadyAttempts
	if attempts <= 0 {
		attempts = defaultReadyAttempts
	}
	backoff := opts.ReadyBackoff
	if backoff <= 0 {
		backoff = defaultReadyBackoff
	}
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(opts.HTTPPort))

	for i := 0; i < attempts; i++ {
		conn, err := net.DialTimeout("tcp", addr, backoff)
		if err == nil {
			_ = conn.Close()
			return true
		}
		logger.Debug("tunnel not ready yet", "attempt", fmt.Sprintf("%d/%d", i+1, attempts))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
	}
	return false
}

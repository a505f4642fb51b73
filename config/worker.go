package config

import "github.com/medialoom/coordinator/internal/domain/proxy"

// WorkerConfig configures the detached worker process.
type WorkerConfig struct {
	// CoordinatorURL is where progress POSTs go. Falls back to APP_BASE_URL.
	CoordinatorURL string `env:"COORDINATOR_URL" envDefault:""`

	// YtdlpPath locates the downloader binary; empty assumes PATH.
	YtdlpPath string `env:"YTDLP_PATH" envDefault:""`

	// TempDir stages artifacts before upload.
	TempDir string `env:"TEMP_DIR" envDefault:""`

	// Per-invocation proxy descriptor. Either PROXY_NODE_URL or the flat
	// tuple; the node URL wins when both parse.
	ProxyProtocol string `env:"PROXY_PROTOCOL" envDefault:""`
	ProxyServer   string `env:"PROXY_SERVER" envDefault:""`
	ProxyPort     int    `env:"PROXY_PORT" envDefault:"0"`
	ProxyUsername string `env:"PROXY_USERNAME" envDefault:""`
	ProxyPassword string `env:"PROXY_PASSWORD" envDefault:""`
	ProxyNodeURL  string `env:"PROXY_NODE_URL" envDefault:""`
}

// ProxyDescriptor assembles the per-job proxy descriptor, or nil when no
// proxy fields are set.
func (c *WorkerConfig) ProxyDescriptor() *proxy.Descriptor {
	if c.ProxyNodeURL == "" && c.ProxyServer == "" {
		return nil
	}
	return &proxy.Descriptor{
		Protocol: c.ProxyProtocol,
		Server:   c.ProxyServer,
		Port:     c.ProxyPort,
		Username: c.ProxyUsername,
		Password: c.ProxyPassword,
		NodeURL:  c.ProxyNodeURL,
	}
}

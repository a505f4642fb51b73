package config

import "time"

// TunnelConfig configures the tunnel subprocess a worker stands up for
// proxied egress.
type TunnelConfig struct {
	// BinaryPath is the tunnel binary. Empty disables tunnel startup.
	BinaryPath string `env:"BINARY" envDefault:""`

	// WorkDir holds the generated configuration and provider cache.
	WorkDir string `env:"WORK_DIR" envDefault:"/tmp/tunnel"`

	// HTTPPort and SocksPort are the fixed local listen ports.
	HTTPPort  int `env:"HTTP_PORT" envDefault:"7890"`
	SocksPort int `env:"SOCKS_PORT" envDefault:"7891"`

	// Mode is the tunnel routing mode.
	Mode string `env:"MODE" envDefault:"rule"`

	// SubscriptionURL optionally adds a remote proxy provider.
	SubscriptionURL string `env:"SUBSCRIPTION_URL" envDefault:""`

	// RawConfig overrides configuration assembly entirely when set.
	RawConfig string `env:"RAW_CONFIG" envDefault:""`

	// ReadyAttempts and ReadyBackoff bound the readiness poll.
	ReadyAttempts int           `env:"READY_ATTEMPTS" envDefault:"20"`
	ReadyBackoff  time.Duration `env:"READY_BACKOFF" envDefault:"500ms"`
}

// Sanitize applies guardrails to tunnel configuration.
func (c *TunnelConfig) Sanitize() {
	if c.HTTPPort <= 0 {
		c.HTTPPort = 7890
	}
	if c.SocksPort <= 0 {
		c.SocksPort = 7891
	}
	if c.Mode == "" {
		c.Mode = "rule"
	}
	if c.ReadyAttempts <= 0 {
		c.ReadyAttempts = 20
	}
	if c.ReadyBackoff <= 0 {
		c.ReadyBackoff = 500 * time.Millisecond
	}
}

// Package config holds the application configuration, composed from
// domain-specific files and loaded from environment variables via
// github.com/caarlos0/env. See the individual files for available variables:
//   - http.go: HTTP server configuration
//   - database.go: Redis job-store configuration
//   - storage.go: object storage configuration
//   - webhook.go: webhook signing and consumer callback configuration
//   - tunnel.go: tunnel subprocess configuration
//   - worker.go: worker process configuration
//   - observability.go: metrics configuration
package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct.
type AppConfig struct {
	// IsDev controls development mode behavior.
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	HTTP          HTTPConfig
	Redis         RedisConfig   `envPrefix:"REDIS_"`
	Storage       StorageConfig `envPrefix:"STORAGE_"`
	Webhook       WebhookConfig
	Tunnel        TunnelConfig `envPrefix:"TUNNEL_"`
	Worker        WorkerConfig `envPrefix:"WORKER_"`
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Storage.Sanitize()
	c.Webhook.Sanitize()
	c.Tunnel.Sanitize()
	c.Observability.Sanitize()
	c.detectDevMode()
}

// detectDevMode checks NODE_ENV as a fallback for DEV.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

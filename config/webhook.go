package config

import (
	"time"

	apperrors "github.com/medialoom/coordinator/internal/errors"
)

// WebhookConfig contains the shared signing secret and the consumer callback
// target.
type WebhookConfig struct {
	// Secret signs every progress and completion envelope. Required: a
	// missing secret is a fatal configuration error, never a per-request one.
	Secret string `env:"WEBHOOK_SECRET"`

	// ConsumerCallbackURL receives the one-shot completion webhook.
	ConsumerCallbackURL string `env:"CONSUMER_CALLBACK_URL" envDefault:""`

	// Timeout bounds outbound webhook deliveries.
	Timeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to webhook configuration.
func (c *WebhookConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// Validate refuses to operate without a signing secret.
func (c *WebhookConfig) Validate() error {
	if c.Secret == "" {
		return apperrors.Configuration("WEBHOOK_SECRET is required")
	}
	return nil
}

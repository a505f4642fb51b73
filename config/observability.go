package config

// ObservabilityConfig contains metrics configuration.
type ObservabilityConfig struct {
	// StatsdEnabled toggles metric emission.
	StatsdEnabled bool `env:"STATSD_ENABLED" envDefault:"false"`

	// StatsdAddress is the UDP host:port of the StatsD sink.
	StatsdAddress string `env:"STATSD_ADDRESS" envDefault:""`

	// StatsdPrefix namespaces every metric.
	StatsdPrefix string `env:"STATSD_PREFIX" envDefault:"mediacoord"`
}

// Sanitize applies guardrails to observability configuration.
func (c *ObservabilityConfig) Sanitize() {
	if c.StatsdPrefix == "" {
		c.StatsdPrefix = "mediacoord"
	}
}

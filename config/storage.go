package config

import "time"

// StorageConfig contains object storage configuration for both paths of the
// gateway.
type StorageConfig struct {
	// LocalDir enables the fast local binding when set. It may be an edge
	// cache invisible to out-of-process workers; writes never rely on it.
	LocalDir string `env:"LOCAL_DIR" envDefault:""`

	// Endpoint is the S3-compatible remote store endpoint (host:port).
	Endpoint string `env:"ENDPOINT"`

	// Region of the remote store.
	Region string `env:"REGION" envDefault:""`

	// AccessKey and SecretKey authenticate against the remote store.
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`

	// Bucket is the remote store bucket name.
	Bucket string `env:"BUCKET"`

	// UseSSL toggles TLS for the remote endpoint.
	UseSSL bool `env:"USE_SSL" envDefault:"true"`

	// PresignTTL is the lifetime of presigned URLs handed to consumers.
	PresignTTL time.Duration `env:"PRESIGN_TTL" envDefault:"1h"`
}

// Sanitize applies guardrails to storage configuration.
func (c *StorageConfig) Sanitize() {
	if c.PresignTTL <= 0 {
		c.PresignTTL = time.Hour
	}
}

package config

// RedisConfig contains the job-document store configuration.
type RedisConfig struct {
	// Addr is the Redis host:port.
	Addr string `env:"ADDR" envDefault:"localhost:6379"`

	// Password authenticates against Redis when set.
	Password string `env:"PASSWORD" envDefault:""`

	// DB selects the Redis logical database.
	DB int `env:"DB" envDefault:"0"`
}

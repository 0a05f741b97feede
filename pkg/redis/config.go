package redis

import "time"

// Config is populated from environment variables. An empty REDIS_URL
// disables the fast-path webhook dedup cache; the database uniqueness
// constraint still guarantees idempotency on its own.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
	DedupTTL       time.Duration `env:"REDIS_DEDUP_TTL" envDefault:"24h"`
}

// Enabled reports whether a connection URL was configured.
func (c Config) Enabled() bool {
	return c.ConnectionURL != ""
}

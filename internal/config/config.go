package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	// Event publishing is disabled when empty.
	RabbitMQURL string `env:"RABBITMQ_URL"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	LogFormat   string `env:"LOG_FORMAT,default=json"`
	HTTPPort    int    `env:"HTTP_PORT,default=8080"`

	TickIntervalSeconds int `env:"TICK_INTERVAL_SECONDS,default=60"`
	RunTimeoutSeconds   int `env:"RUN_TIMEOUT_SECONDS,default=600"`
	LockTTLSeconds      int `env:"LOCK_TTL_SECONDS,default=900"`
	WorkerConcurrency   int `env:"WORKER_CONCURRENCY,default=4"`
	ScanLimit           int `env:"SCAN_LIMIT,default=100"`

	QueuePopulateBatchSize int `env:"QUEUE_POPULATE_BATCH_SIZE,default=500"`
	QueueGiveupBatchSize   int `env:"QUEUE_GIVEUP_BATCH_SIZE,default=500"`
	QueueResolveChunkSize  int `env:"QUEUE_RESOLVE_CHUNK_SIZE,default=300"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c Config) validate() error {
	positive := map[string]int{
		"TICK_INTERVAL_SECONDS":     c.TickIntervalSeconds,
		"RUN_TIMEOUT_SECONDS":       c.RunTimeoutSeconds,
		"LOCK_TTL_SECONDS":          c.LockTTLSeconds,
		"WORKER_CONCURRENCY":        c.WorkerConcurrency,
		"SCAN_LIMIT":                c.ScanLimit,
		"QUEUE_POPULATE_BATCH_SIZE": c.QueuePopulateBatchSize,
		"QUEUE_GIVEUP_BATCH_SIZE":   c.QueueGiveupBatchSize,
		"QUEUE_RESOLVE_CHUNK_SIZE":  c.QueueResolveChunkSize,
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	// A lease shorter than a run lets a second worker take the key mid-run.
	if c.LockTTLSeconds < c.RunTimeoutSeconds {
		return fmt.Errorf("LOCK_TTL_SECONDS (%d) must not be shorter than RUN_TIMEOUT_SECONDS (%d)", c.LockTTLSeconds, c.RunTimeoutSeconds)
	}
	return nil
}

func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

func (c Config) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}

func (c Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

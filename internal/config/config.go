package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN         string `env:"DATABASE_DSN,required=true"`
	DBMaxOpenConns      int    `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBMaxIdleConns      int    `env:"DB_MAX_IDLE_CONNS,default=5"`
	RabbitMQURL         string `env:"RABBITMQ_URL,required=true"`
	RedisURL            string `env:"REDIS_URL"`
	BlobEndpoint        string `env:"BLOB_ENDPOINT,required=true"`
	BlobAccessKey       string `env:"BLOB_ACCESS_KEY"`
	BlobSecretKey       string `env:"BLOB_SECRET_KEY"`
	BlobBucket          string `env:"BLOB_BUCKET,default=import-engine"`
	BlobRegion          string `env:"BLOB_REGION"`
	BlobUseSSL          bool   `env:"BLOB_USE_SSL,default=false"`
	CipherKey           string `env:"CIPHER_KEY"`
	StrictConfigDecrypt bool   `env:"STRICT_CONFIG_DECRYPT,default=false"`
	FlowEngineURL       string `env:"FLOW_ENGINE_URL,required=true"`
	FlowRateLimitPerSec int    `env:"FLOW_RATE_LIMIT_PER_SEC,default=20"`
	FlowRateLimitOrgs   string `env:"FLOW_RATE_LIMIT_ORGS"`
	WorkerConcurrency   int    `env:"WORKER_CONCURRENCY,default=16"`
	WorkerPrefetch      int    `env:"WORKER_PREFETCH,default=32"`
	StaleClaimSeconds   int    `env:"STALE_CLAIM_SECONDS,default=5"`
	SweepIntervalSecs   int    `env:"SWEEP_INTERVAL_SECONDS,default=30"`
	SweepBatchSize      int    `env:"SWEEP_BATCH_SIZE,default=100"`
	APIPort             int    `env:"API_PORT,default=8080"`
	LogLevel            string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.StaleClaimSeconds <= 0 {
		return nil, fmt.Errorf("failed to load config: STALE_CLAIM_SECONDS must be positive")
	}
	if cfg.SweepIntervalSecs <= 0 {
		return nil, fmt.Errorf("failed to load config: SWEEP_INTERVAL_SECONDS must be positive")
	}
	if _, err := cfg.FlowOrgRateLimits(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// FlowOrgRateLimits parses FLOW_RATE_LIMIT_ORGS, a comma separated list of
// org=limit pairs such as "acme=50,globex=5".
func (c *Config) FlowOrgRateLimits() (map[string]int, error) {
	limits := make(map[string]int)
	for _, pair := range strings.Split(c.FlowRateLimitOrgs, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		org, value, ok := strings.Cut(pair, "=")
		org = strings.TrimSpace(org)
		if !ok || org == "" {
			return nil, fmt.Errorf("FLOW_RATE_LIMIT_ORGS entry %q must be org=limit", pair)
		}
		limit, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || limit <= 0 {
			return nil, fmt.Errorf("FLOW_RATE_LIMIT_ORGS limit for %s must be a positive integer", org)
		}
		limits[org] = limit
	}
	return limits, nil
}

func (c *Config) StaleClaimWindow() time.Duration {
	return time.Duration(c.StaleClaimSeconds) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSecs) * time.Second
}

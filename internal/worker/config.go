package worker

import (
	"fmt"
	"os"
	"strconv"
	"tee/trusted-ops/internal/codec"
	"time"
)

// ShieldingKeyEnv holds the base64 PKCS#1 shielding key of the mock worker.
const ShieldingKeyEnv = "SHIELDING_KEY"

type Config struct {
	LogLevel    string
	Port        uint32
	Shard       *codec.ShardIdentifier
	Mrenclave   *codec.Hash
	MaxWorkers  int
	StepDelay   time.Duration
	MetricsAddr string
}

func LoadConfig() (*Config, error) {
	port := os.Getenv("PORT")
	if port == "" {
		return nil, fmt.Errorf("PORT cannot be empty")
	}

	portInt, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid port number: %v", err)
	}

	cfg := &Config{
		LogLevel:    os.Getenv("LOG_LEVEL"),
		Port:        uint32(portInt),
		MaxWorkers:  defaultMaxWorkers,
		MetricsAddr: os.Getenv("METRICS_ADDR"),
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if shard := os.Getenv("SHARD"); shard != "" {
		parsed, err := codec.ParseShard(shard)
		if err != nil {
			return nil, fmt.Errorf("invalid SHARD: %w", err)
		}
		cfg.Shard = &parsed
	}

	if mrenclave := os.Getenv("MRENCLAVE"); mrenclave != "" {
		parsed, err := codec.HashFromHex(mrenclave)
		if err != nil {
			return nil, fmt.Errorf("invalid MRENCLAVE: %w", err)
		}
		cfg.Mrenclave = &parsed
	}

	if workers := os.Getenv("MAX_WORKERS"); workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid MAX_WORKERS %q", workers)
		}
		cfg.MaxWorkers = n
	}

	if delay := os.Getenv("STEP_DELAY"); delay != "" {
		d, err := time.ParseDuration(delay)
		if err != nil {
			return nil, fmt.Errorf("invalid STEP_DELAY: %w", err)
		}
		cfg.StepDelay = d
	}

	return cfg, nil
}

// Options turns the environment settings into server options.
func (c *Config) Options() []Option {
	opts := []Option{WithMaxWorkers(c.MaxWorkers), WithStepDelay(c.StepDelay)}
	if c.Mrenclave != nil {
		opts = append(opts, WithMrenclave(*c.Mrenclave))
	}
	if c.Shard != nil {
		opts = append(opts, WithShard(*c.Shard))
	}
	return opts
}

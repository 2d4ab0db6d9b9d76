// Package config loads the indexer's settings from the environment:
// required values fail fast, tunables fall back to sensible defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the fully-resolved process configuration.
type Config struct {
	EthRPCURL         string
	DatabaseURL       string
	ListenAddr        string
	PollInterval      time.Duration
	BatchSize         int
	DefaultStartBlock uint64
	IndexerName       string
	DBPoolMaxConns    int32
}

// Load reads Config from the environment, returning an error for any
// missing required variable (ETH_RPC_URL, DATABASE_URL).
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:        envOr("LISTEN_ADDR", "0.0.0.0:3000"),
		PollInterval:      10 * time.Second,
		BatchSize:         5,
		DefaultStartBlock: 0,
		IndexerName:       envOr("INDEXER_NAME", "default"),
		DBPoolMaxConns:    10,
	}

	cfg.EthRPCURL = os.Getenv("ETH_RPC_URL")
	if cfg.EthRPCURL == "" {
		return Config{}, fmt.Errorf("config: ETH_RPC_URL is required")
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL is required")
	}

	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = d
	}
	if v := os.Getenv("BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: BATCH_SIZE: %w", err)
		}
		cfg.BatchSize = n
	}
	if v := os.Getenv("DEFAULT_START_BLOCK"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: DEFAULT_START_BLOCK: %w", err)
		}
		cfg.DefaultStartBlock = n
	}
	if v := os.Getenv("DB_POOL_MAX_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: DB_POOL_MAX_CONNS: %w", err)
		}
		cfg.DBPoolMaxConns = int32(n)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

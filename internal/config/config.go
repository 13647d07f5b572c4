package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	ListenAddr  string
	DatabaseURL string

	// Operator is the identity every proxied command executes under.
	// OperatorToken gates the mutating HTTP surface; empty disables the gate.
	Operator      string
	OperatorToken string

	// EstimatedCost is the per-command execution budget users pre-fund.
	EstimatedCost uint64

	DeviceTimeout time.Duration
}

func Load() Config {
	return Config{
		ListenAddr:    getenv("SOLAR_LISTEN_ADDR", ":8080"),
		DatabaseURL:   getenv("SOLAR_DATABASE_URL", ""),
		Operator:      getenv("SOLAR_OPERATOR", "operator"),
		OperatorToken: getenv("SOLAR_OPERATOR_TOKEN", ""),
		EstimatedCost: parseUint(getenv("SOLAR_ESTIMATED_COST", "300")),
		DeviceTimeout: parseDuration(getenv("SOLAR_DEVICE_TIMEOUT", "15s")),
	}
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func parseUint(s string) uint64 {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/svyatogor/spreadup/internal/model"
)

// Config is the full process configuration, env-var driven.
type Config struct {
	Server  ServerConfig
	Engine  EngineConfig
	Logging LoggingConfig
}

// ServerConfig controls the read-only status/metrics HTTP surface.
type ServerConfig struct {
	Port int
	Host string
}

// EngineConfig carries every tunable named in the scan loop, cache,
// connector and rate-limiter/circuit-breaker contracts.
type EngineConfig struct {
	// SpreadThreshold is the minimum spread percent an opportunity must
	// clear to be considered.
	SpreadThreshold float64
	// ScanInterval is how often the scan loop evaluates opportunities.
	ScanInterval time.Duration
	// ScanErrorBackoff is the sleep after a scan iteration error.
	ScanErrorBackoff time.Duration
	// TopN bounds how many ranked opportunities the scan loop publishes
	// per iteration.
	TopN int

	// CooldownWindow suppresses repeat alerts for the same base asset.
	CooldownWindow time.Duration

	// CacheTTL is how long a cache entry stays valid after insertion.
	CacheTTL time.Duration
	// CacheSweepInterval is the periodic eviction sweep cadence.
	CacheSweepInterval time.Duration

	// EnabledExchanges lists the venues the engine starts connectors for.
	EnabledExchanges []model.ExchangeId

	// RateLimitRate/RateLimitBurst tune every connector's outbound REST
	// token bucket.
	RateLimitRate  float64
	RateLimitBurst float64

	// BreakerFailureThreshold/BreakerRecoveryTimeout tune every
	// connector's circuit breaker.
	BreakerFailureThreshold int
	BreakerRecoveryTimeout  time.Duration

	// WSPingInterval/WSPongTimeout tune the feed loop's keepalive policy.
	WSPingInterval time.Duration
	WSPongTimeout  time.Duration

	// HTTPConnectTimeout/HTTPTotalTimeout tune the shared pooled client.
	HTTPConnectTimeout time.Duration
	HTTPTotalTimeout   time.Duration
}

// LoggingConfig controls zap's output shape.
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads every setting from the environment, falling back to the
// documented defaults for anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Engine: EngineConfig{
			SpreadThreshold:  getEnvAsFloat("SPREAD_THRESHOLD", 3.0),
			ScanInterval:     getEnvAsDuration("SCAN_INTERVAL", 1*time.Second),
			ScanErrorBackoff: getEnvAsDuration("SCAN_ERROR_BACKOFF", 5*time.Second),
			TopN:             getEnvAsInt("TOP_N", 5),

			CooldownWindow: getEnvAsDuration("COOLDOWN_WINDOW", 1800*time.Second),

			CacheTTL:           getEnvAsDuration("CACHE_TTL", 300*time.Second),
			CacheSweepInterval: getEnvAsDuration("CACHE_SWEEP_INTERVAL", 30*time.Second),

			EnabledExchanges: getEnvAsExchanges("ENABLED_EXCHANGES", model.AllExchanges),

			RateLimitRate:  getEnvAsFloat("RATE_LIMIT_RATE", 10),
			RateLimitBurst: getEnvAsFloat("RATE_LIMIT_BURST", 20),

			BreakerFailureThreshold: getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 5),
			BreakerRecoveryTimeout:  getEnvAsDuration("BREAKER_RECOVERY_TIMEOUT", 30*time.Second),

			WSPingInterval: getEnvAsDuration("WS_PING_INTERVAL", 20*time.Second),
			WSPongTimeout:  getEnvAsDuration("WS_PONG_TIMEOUT", 10*time.Second),

			HTTPConnectTimeout: getEnvAsDuration("HTTP_CONNECT_TIMEOUT", 5*time.Second),
			HTTPTotalTimeout:   getEnvAsDuration("HTTP_TOTAL_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if len(cfg.Engine.EnabledExchanges) == 0 {
		return nil, fmt.Errorf("config: ENABLED_EXCHANGES resolved to an empty set")
	}
	if cfg.Engine.SpreadThreshold <= 0 {
		return nil, fmt.Errorf("config: SPREAD_THRESHOLD must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsExchanges parses a comma-separated venue list, silently dropping
// anything that doesn't name a supported exchange.
func getEnvAsExchanges(key string, defaultValue []model.ExchangeId) []model.ExchangeId {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []model.ExchangeId
	for _, raw := range strings.Split(valueStr, ",") {
		id, err := model.ParseExchangeId(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

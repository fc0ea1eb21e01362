package config

import (
	"time"

	pkgconfig "github.com/wxmarkets/billing-service/pkg/config"
)

// Config holds the full billing service configuration.
type Config struct {
	Service  ServiceConfig
	Database DatabaseConfig
	Server   ServerConfig
	Log      LogConfig
	JWT      JWTConfig
	Redis    RedisConfig
	Worker   WorkerConfig
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level       string
	Format      string
	Output      string
	FilePath    string
	Development bool
}

// JWTConfig holds API authentication settings.
type JWTConfig struct {
	Secret string
}

// RedisConfig holds the optional notification transport settings.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// WorkerConfig holds webhook retry worker settings.
type WorkerConfig struct {
	Enabled       bool
	SweepInterval time.Duration
	BatchSize     int
	ClaimTTL      time.Duration
}

// Load reads configs/{APP_ENV}/billing.yaml (BILLING_* env vars override).
func Load() (*Config, error) {
	v, err := pkgconfig.Load("billing")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Service:  newServiceConfig(v),
		Database: newDatabaseConfig(v),
		Server:   newServerConfig(v),
		Log: LogConfig{
			Level:       stringOr(v.GetString("log.level"), "info"),
			Format:      stringOr(v.GetString("log.format"), "json"),
			Output:      stringOr(v.GetString("log.output"), "stdout"),
			FilePath:    v.GetString("log.file_path"),
			Development: v.GetBool("log.development"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     stringOr(v.GetString("redis.addr"), "localhost:6379"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Worker: WorkerConfig{
			Enabled:       boolOr(v.GetString("worker.enabled"), true),
			SweepInterval: durationOr(v.GetInt("worker.sweep_interval_seconds"), time.Minute),
			BatchSize:     intOr(v.GetInt("worker.batch_size"), 20),
			ClaimTTL:      durationOr(v.GetInt("worker.claim_ttl_seconds"), 5*time.Minute),
		},
	}

	return cfg, nil
}

func stringOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func intOr(value, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}

func durationOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// boolOr treats an unset key as the fallback; "false" disables explicitly.
func boolOr(raw string, fallback bool) bool {
	switch raw {
	case "":
		return fallback
	case "false", "0", "no":
		return false
	default:
		return true
	}
}

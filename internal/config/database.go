package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/wxmarkets/billing-service/pkg/config"
)

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

func newDatabaseConfig(v pkgconfig.Config) DatabaseConfig {
	return DatabaseConfig{
		Host:            stringOr(v.GetString("database.host"), "localhost"),
		Port:            intOr(v.GetInt("database.port"), 5432),
		Name:            stringOr(v.GetString("database.name"), "billing"),
		User:            stringOr(v.GetString("database.user"), "postgres"),
		Password:        v.GetString("database.password"),
		SSLMode:         stringOr(v.GetString("database.ssl_mode"), "disable"),
		MaxOpenConns:    intOr(v.GetInt("database.max_open_conns"), 25),
		MaxIdleConns:    intOr(v.GetInt("database.max_idle_conns"), 5),
		ConnMaxLifetime: durationOr(v.GetInt("database.conn_max_lifetime_seconds"), 30*time.Minute),
		ConnMaxIdleTime: durationOr(v.GetInt("database.conn_max_idle_time_seconds"), 5*time.Minute),
	}
}

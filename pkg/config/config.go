// Package config loads service configuration files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config defines accessors for configuration values.
type Config interface {
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetFloat64(key string) float64
	GetStringSlice(key string) []string
	GetStringMap(key string) map[string]interface{}
	GetAll() map[string]interface{}
}

// viperConfig implements Config on top of viper.
type viperConfig struct {
	v *viper.Viper
}

// GetString returns a string configuration value.
func (c *viperConfig) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt returns an integer configuration value.
func (c *viperConfig) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetBool returns a boolean configuration value.
func (c *viperConfig) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetFloat64 returns a float configuration value.
func (c *viperConfig) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetStringSlice returns a string slice configuration value.
func (c *viperConfig) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetStringMap returns a map configuration value.
func (c *viperConfig) GetStringMap(key string) map[string]interface{} {
	return c.v.GetStringMap(key)
}

// GetAll returns every setting as a map.
func (c *viperConfig) GetAll() map[string]interface{} {
	return c.v.AllSettings()
}

// Configuration directory root.
const configDir = "configs"

// Load reads the configuration file for the given service name.
// It looks for configs/{APP_ENV}/{service}.yaml (or CONFIG_PATH when set),
// falling back to configs/example/{service}.yaml. Environment variables
// prefixed with the upper-cased service name override file values.
func Load(serviceName string) (Config, error) {
	v := viper.New()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	v.SetConfigType("yaml")

	// Environment variable binding: BILLING_DATABASE_HOST overrides database.host.
	v.SetEnvPrefix(strings.ToUpper(serviceName))
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = filepath.Join(configDir, env)
	}

	configName := serviceName
	v.SetConfigName(configName)
	v.AddConfigPath(configPath)

	if err := v.ReadInConfig(); err != nil {
		// Fall back to the example config so fresh checkouts can boot.
		v.SetConfigName(configName)
		v.AddConfigPath(filepath.Join(configDir, "example"))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	return &viperConfig{v: v}, nil
}

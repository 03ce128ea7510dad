package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Accelerator   AcceleratorConfig   `mapstructure:"accelerator"`
	ControlSystem ControlSystemConfig `mapstructure:"control_system"`
	Modbus        ModbusConfig        `mapstructure:"modbus"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Journal       JournalConfig       `mapstructure:"journal"`
	Auth          AuthConfig          `mapstructure:"auth"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// AcceleratorConfig names the descriptor to load; relative names are
// looked up in SearchPaths.
type AcceleratorConfig struct {
	Descriptor  string   `mapstructure:"descriptor"`
	SearchPaths []string `mapstructure:"search_paths"`
}

// Control-system backends.
const (
	BackendDevices = "devices" // channels from the descriptor's devices section
)

type ControlSystemConfig struct {
	Backend string `mapstructure:"backend"`
}

type ModbusConfig struct {
	DefaultTimeout      time.Duration `mapstructure:"default_timeout"`
	DefaultPollInterval time.Duration `mapstructure:"default_poll_interval"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type JournalConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// User is an operator account. PasswordHash is an Argon2id hash as
// produced by auth.HashPassword.
type User struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

// APIToken is a static machine token, stored as its SHA-256 hex digest.
type APIToken struct {
	Name      string `mapstructure:"name"`
	TokenHash string `mapstructure:"token_hash"`
	Role      string `mapstructure:"role"`
}

// Auth Configuration
type AuthConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	JWTSecretEnv   string        `mapstructure:"jwt_secret_env"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	Users          []User        `mapstructure:"users"`
	APITokens      []APIToken    `mapstructure:"api_tokens"`
}

// Load reads the YAML file at path; OBC_ prefixed environment variables
// override it (OBC_SERVER_HTTP_PORT, OBC_DATABASE_ENABLED, ...).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Defaults setzen
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
	v.SetDefault("accelerator.search_paths", []string{"./configs"})
	v.SetDefault("control_system.backend", BackendDevices)
	v.SetDefault("modbus.default_timeout", "1s")
	v.SetDefault("modbus.default_poll_interval", "500ms")
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.topic", "openbeam.setpoints")

	// Auth Defaults
	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.jwt_secret_env", "JWT_SECRET")
	v.SetDefault("auth.access_token_ttl", "60m")

	// Environment Variables mit Prefix OBC_
	v.SetEnvPrefix("OBC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Accelerator.Descriptor == "" {
		return fmt.Errorf("accelerator.descriptor is required")
	}
	if c.ControlSystem.Backend != BackendDevices {
		return fmt.Errorf("unknown control_system.backend %q", c.ControlSystem.Backend)
	}
	if c.Modbus.DefaultPollInterval <= 0 {
		return fmt.Errorf("modbus.default_poll_interval must be positive")
	}
	if c.Journal.Enabled && len(c.Journal.Brokers) == 0 {
		return fmt.Errorf("journal.brokers is required when the journal is enabled")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

const devSecret = "dev-secret-change-in-production-min-32-chars"

// JWT Secret aus Environment Variable laden
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "JWT_SECRET"
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		return devSecret
	}
	return secret
}

// Helper um zu prüfen ob Production-Ready
func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != devSecret && len(secret) >= 32
}

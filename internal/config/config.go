package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values applied when the file omits them.
const (
	DefaultListenAddr     = ":3000"
	DefaultSessionExpiry  = 7 * 24 * time.Hour
	DefaultConfigFileName = "config.yaml"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Listen    string `yaml:"listen"`
	PublicDir string `yaml:"public-dir"`
}

// DatabaseConfig holds the database connection settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// JWTConfig holds session token settings.
type JWTConfig struct {
	Secret      string `yaml:"secret"`
	ExpiryHours int    `yaml:"expiry-hours"`
}

// Expiry returns the configured token lifetime.
func (c JWTConfig) Expiry() time.Duration {
	if c.ExpiryHours <= 0 {
		return DefaultSessionExpiry
	}
	return time.Duration(c.ExpiryHours) * time.Hour
}

// EvolutionConfig holds vendor credentials for the Evolution API.
type EvolutionConfig struct {
	BaseURL string `yaml:"base-url"`
	APIKey  string `yaml:"api-key"`
}

// UazapiConfig holds vendor credentials for the Uazapi API.
type UazapiConfig struct {
	BaseURL    string `yaml:"base-url"`
	AdminToken string `yaml:"admin-token"`
}

// GatewayConfig selects the active WhatsApp gateway vendor and its credentials.
type GatewayConfig struct {
	Provider  string          `yaml:"provider"`
	Evolution EvolutionConfig `yaml:"evolution"`
	Uazapi    UazapiConfig    `yaml:"uazapi"`
}

// RedisConfig holds the optional redis connection used for login rate limiting.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LogConfig holds logging output settings.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
}

// Load reads the configuration file, applies environment overrides, and
// validates the result. A missing file is not an error as long as the
// environment supplies the required values.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if strings.TrimSpace(path) == "" {
		path = DefaultConfigFileName
	}
	data, errRead := os.ReadFile(path)
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, cfg); errUnmarshal != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
		}
	} else if !os.IsNotExist(errRead) {
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if errValidate := cfg.Validate(); errValidate != nil {
		return nil, errValidate
	}
	return cfg, nil
}

// applyEnvOverrides lets environment variables win over file values.
func applyEnvOverrides(cfg *Config) {
	setFromEnv(&cfg.Server.Listen, "ZAPDESK_LISTEN")
	setFromEnv(&cfg.Database.DSN, "DATABASE_URL", "ZAPDESK_DATABASE_DSN")
	setFromEnv(&cfg.JWT.Secret, "JWT_SECRET")
	setFromEnv(&cfg.Gateway.Provider, "WHATSAPP_PROVIDER")
	setFromEnv(&cfg.Gateway.Evolution.BaseURL, "EVOLUTION_API_URL")
	setFromEnv(&cfg.Gateway.Evolution.APIKey, "EVOLUTION_API_KEY")
	setFromEnv(&cfg.Gateway.Uazapi.BaseURL, "UAZAPI_API_URL")
	setFromEnv(&cfg.Gateway.Uazapi.AdminToken, "UAZAPI_ADMIN_TOKEN")
	setFromEnv(&cfg.Redis.Addr, "REDIS_ADDR")
}

// setFromEnv assigns the first non-empty environment value to dst.
func setFromEnv(dst *string, keys ...string) {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			*dst = value
			return
		}
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Server.Listen) == "" {
		cfg.Server.Listen = DefaultListenAddr
	}
	cfg.Gateway.Provider = strings.ToLower(strings.TrimSpace(cfg.Gateway.Provider))
	cfg.Gateway.Evolution.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Gateway.Evolution.BaseURL), "/")
	cfg.Gateway.Uazapi.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Gateway.Uazapi.BaseURL), "/")
}

// Validate checks that all startup-fatal settings are present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("config: database dsn is required")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("config: jwt secret is required")
	}

	switch c.Gateway.Provider {
	case "evolution":
		if c.Gateway.Evolution.BaseURL == "" || strings.TrimSpace(c.Gateway.Evolution.APIKey) == "" {
			return fmt.Errorf("config: evolution base-url and api-key are required")
		}
	case "uazapi":
		if c.Gateway.Uazapi.BaseURL == "" || strings.TrimSpace(c.Gateway.Uazapi.AdminToken) == "" {
			return fmt.Errorf("config: uazapi base-url and admin-token are required")
		}
	case "":
		return fmt.Errorf("config: gateway provider is required")
	default:
		return fmt.Errorf("config: unknown gateway provider: %s", c.Gateway.Provider)
	}
	return nil
}

// Package config loads and validates the middleware configuration.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// FHE backend selectors.
const (
	BackendSealbox = "sealbox"
	BackendLattice = "lattice"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	FHE      FHEConfig      `mapstructure:"fhe"`
	Registry RegistryConfig `mapstructure:"registry"`
	JWKS     JWKSConfig     `mapstructure:"jwks"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Shutdown ShutdownConfig `mapstructure:"shutdown"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host" default:"0.0.0.0"`
	Port         int           `mapstructure:"port" default:"8081" validate:"gt=0,lt=65536"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" default:"15s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" default:"30s"`
}

// DatabaseConfig contains database connection settings. When Enabled is
// false the server runs on journaled in-memory stores.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host" default:"localhost"`
	Port     int    `mapstructure:"port" default:"5432"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database" default:"registry"`
	SSLMode  string `mapstructure:"ssl_mode" default:"disable"`
}

// FHEConfig selects and parameterizes the coprocessor backend
type FHEConfig struct {
	Backend string `mapstructure:"backend" default:"sealbox" validate:"oneof=sealbox lattice"`
	// MasterKey is the hex-encoded 32-byte sealing key of the sealbox backend
	MasterKey string `mapstructure:"master_key"`
}

// RegistryConfig contains the capability addresses fixed at deployment time
type RegistryConfig struct {
	OwnerAddress      string `mapstructure:"owner_address" validate:"required"`
	RegistryAddress   string `mapstructure:"registry_address" validate:"required"`
	AggregatorAddress string `mapstructure:"aggregator_address" validate:"required"`
	// ClaimCostRate is the per-(user,field) cost of a claim, a decimal string
	ClaimCostRate string `mapstructure:"claim_cost_rate" default:"1"`
}

// JWKSConfig contains JWKS configuration for admin JWT validation
type JWKSConfig struct {
	URL    string `mapstructure:"url"`
	Issuer string `mapstructure:"issuer"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level" default:"info"`
	Format     string `mapstructure:"format" default:"json"`
	OutputPath string `mapstructure:"output_path" default:"stdout"`
}

// ShutdownConfig contains graceful shutdown settings
type ShutdownConfig struct {
	Timeout time.Duration `mapstructure:"timeout" default:"30s"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := defaults.Set(&config); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func validate(config *Config) error {
	if config.Database.Enabled && config.Database.Host == "" {
		return fmt.Errorf("database.host is required when database is enabled")
	}
	if config.FHE.Backend == BackendSealbox {
		if _, err := config.FHE.MasterKeyBytes(); err != nil {
			return err
		}
	}
	if _, err := config.Registry.CostRate(); err != nil {
		return err
	}
	return nil
}

// MasterKeyBytes decodes the sealbox master key.
func (c *FHEConfig) MasterKeyBytes() ([]byte, error) {
	raw := strings.TrimPrefix(c.MasterKey, "0x")
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("fhe.master_key must be hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("fhe.master_key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// CostRate parses the configured claim cost rate.
func (c *RegistryConfig) CostRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.ClaimCostRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("registry.claim_cost_rate must be a decimal: %w", err)
	}
	return rate, nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

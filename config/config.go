package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Mode     Mode           `toml:"-"`
	Service  ServiceConfig  `toml:"service"`
	Upstream UpstreamConfig `toml:"upstream"`
	Database DatabaseConfig `toml:"database"`
	Keys     KeysConfig     `toml:"keys"`
}

type ServiceConfig struct {
	Mode          string `toml:"mode"`
	Port          uint32 `toml:"port"`
	DebugProfiler bool   `toml:"debug_profiler"`
}

type UpstreamConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type DatabaseConfig struct {
	// Backend selects the user directory implementation, either
	// "memory" or "dynamodb".
	Backend    string `toml:"backend"`
	Region     string `toml:"region"`
	UsersTable string `toml:"users_table"`

	// AWSEndpoint overrides the DynamoDB endpoint for local runs
	// against localstack.
	AWSEndpoint string `toml:"aws_endpoint"`
}

type KeysConfig struct {
	// Dir holds accessor key material on disk. Empty means the key
	// store is kept in memory only.
	Dir string `toml:"dir"`
}

func New() (*Config, error) {
	fileName := os.Getenv("CONFIG")
	var cfg Config
	if _, err := toml.DecodeFile(fileName, &cfg); err != nil {
		return nil, err
	}

	var mode Mode
	switch cfg.Service.Mode {
	case "local":
		mode = LocalMode
	case "dev", "development":
		mode = DevelopmentMode
	case "prod", "production":
		mode = ProductionMode
	default:
		return nil, fmt.Errorf("config service.mode value is invalid, must be one of \"development\", \"dev\", \"production\" or \"prod\"")
	}
	cfg.Mode = mode
	cfg.Service.Mode = mode.String()

	if cfg.Upstream.BaseURL == "" {
		return nil, fmt.Errorf("config upstream.base_url is required")
	}
	if cfg.Database.Backend == "" {
		cfg.Database.Backend = "memory"
	}
	if cfg.Database.Backend == "dynamodb" && cfg.Database.UsersTable == "" {
		return nil, fmt.Errorf("config database.users_table is required with the dynamodb backend")
	}

	return &cfg, nil
}

type Mode uint32

const (
	LocalMode Mode = iota
	DevelopmentMode
	ProductionMode
)

func (m Mode) String() string {
	switch m {
	case LocalMode:
		return "local"
	case DevelopmentMode:
		return "development"
	case ProductionMode:
		return "production"
	default:
		return ""
	}
}

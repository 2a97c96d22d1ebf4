// Package config loads the service configuration: defaults, overridden by
// config.yml, overridden by config.local.yml, overridden by environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"meshview/internal/ingest"
	"meshview/internal/logging"
	"meshview/internal/stream"
)

// World model sources.
const (
	WorldSourceFile  = "file"
	WorldSourceMongo = "mongo"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
}

// AuthConfig holds token verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// MongoConfig holds the MongoDB projector settings.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// WorldConfig selects and configures the world-model projector.
type WorldConfig struct {
	Source    string      `yaml:"source"` // file or mongo
	ModelFile string      `yaml:"model_file"`
	Mongo     MongoConfig `yaml:"mongo"`
}

// Config holds the application configuration.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Logging logging.Config `yaml:"logging"`
	Auth    AuthConfig     `yaml:"auth"`
	Stream  stream.Config  `yaml:"stream"`
	World   WorldConfig    `yaml:"world"`
	Ingest  ingest.Config  `yaml:"ingest"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
		},
		Logging: logging.DefaultConfig(),
		Stream:  stream.DefaultConfig(),
		World: WorldConfig{
			Source:    WorldSourceFile,
			ModelFile: "config/world.yml",
			Mongo: MongoConfig{
				URI:      "mongodb://localhost:27017",
				Database: "meshview",
			},
		},
		Ingest: ingest.DefaultConfig(),
	}
}

// Load reads configuration. With an explicit path only that file is used;
// otherwise config/config.yml and config/config.local.yml are layered when
// present.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg, true); err != nil {
			return nil, err
		}
	} else {
		if err := loadFile("config/config.yml", cfg, false); err != nil {
			return nil, err
		}
		if err := loadFile("config/config.local.yml", cfg, false); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.Stream.ApplyDefaults()
	cfg.Ingest.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// ApplyEnvOverrides applies MESHVIEW_-prefixed environment variables on top
// of the loaded configuration.
func (c *Config) ApplyEnvOverrides() {
	setString(&c.Server.Host, "MESHVIEW_SERVER_HOST")
	setInt(&c.Server.Port, "MESHVIEW_SERVER_PORT")
	setString(&c.Logging.Level, "MESHVIEW_LOG_LEVEL")
	setString(&c.Logging.Format, "MESHVIEW_LOG_FORMAT")
	setString(&c.Auth.JWTSecret, "MESHVIEW_AUTH_JWT_SECRET")
	setString(&c.Auth.Issuer, "MESHVIEW_AUTH_ISSUER")
	setString(&c.World.Source, "MESHVIEW_WORLD_SOURCE")
	setString(&c.World.ModelFile, "MESHVIEW_WORLD_MODEL_FILE")
	setString(&c.World.Mongo.URI, "MESHVIEW_WORLD_MONGO_URI")
	setString(&c.World.Mongo.Database, "MESHVIEW_WORLD_MONGO_DATABASE")
	setBool(&c.Ingest.Enabled, "MESHVIEW_INGEST_ENABLED")
	setString(&c.Ingest.URL, "MESHVIEW_INGEST_URL")
	setString(&c.Ingest.Subject, "MESHVIEW_INGEST_SUBJECT")
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server: port out of range: %d", c.Server.Port)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth: jwt_secret is required")
	}
	switch c.World.Source {
	case WorldSourceFile:
		if c.World.ModelFile == "" {
			return errors.New("world: model_file is required for the file source")
		}
	case WorldSourceMongo:
		if c.World.Mongo.URI == "" {
			return errors.New("world: mongo.uri is required for the mongo source")
		}
		if c.World.Mongo.Database == "" {
			return errors.New("world: mongo.database is required for the mongo source")
		}
	default:
		return fmt.Errorf("world: unknown source %q", c.World.Source)
	}
	return c.Stream.Validate()
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

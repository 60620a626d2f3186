// Package config provides configuration management for the academic CLI.
//
// Values come from academic.yaml (searched upward from the working
// directory), then environment variables prefixed ACADEMIC_, which win.
// A .env file next to the config file or in the working directory is
// loaded first without overriding variables that are already set.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default config file name.
const ConfigFileName = "academic.yaml"

// EnvFileName is the optional dotenv file.
const EnvFileName = ".env"

// Supported drivers and formats.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"

	ReadModelsMemory   = "memory"
	ReadModelsRedis    = "redis"
	ReadModelsPostgres = "postgres"
)

// Config represents the academic CLI configuration.
type Config struct {
	// Version of the config file format
	Version string `yaml:"version"`

	Database   DatabaseConfig   `yaml:"database"`
	Store      StoreConfig      `yaml:"store"`
	ReadModels ReadModelConfig  `yaml:"read_models"`
	Publishing PublishingConfig `yaml:"publishing"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// DatabaseConfig contains event store connection settings.
type DatabaseConfig struct {
	// Driver is postgres, sqlite or memory.
	Driver string `yaml:"driver" env:"ACADEMIC_DATABASE_DRIVER"`

	// URL is the postgres connection string or the sqlite file path.
	// ${VAR} references are expanded.
	URL string `yaml:"url,omitempty" env:"ACADEMIC_DATABASE_URL"`

	// Schema is the postgres schema.
	Schema string `yaml:"schema" env:"ACADEMIC_DATABASE_SCHEMA"`
}

// StoreConfig controls event and snapshot storage.
type StoreConfig struct {
	// SnapshotCadence writes a snapshot every N events. Zero disables snapshots.
	SnapshotCadence int `yaml:"snapshot_cadence" env:"ACADEMIC_SNAPSHOT_CADENCE"`

	// Serializer is json, msgpack or protobuf.
	Serializer string `yaml:"serializer" env:"ACADEMIC_SERIALIZER"`
}

// ReadModelConfig selects where projections keep their views.
type ReadModelConfig struct {
	// Backend is memory, redis or postgres.
	Backend string `yaml:"backend" env:"ACADEMIC_READ_MODELS"`

	RedisAddr     string `yaml:"redis_addr,omitempty" env:"ACADEMIC_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password,omitempty" env:"ACADEMIC_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db,omitempty" env:"ACADEMIC_REDIS_DB"`
}

// PublishingConfig lists the external systems committed events go to.
type PublishingConfig struct {
	KafkaBrokers []string `yaml:"kafka_brokers,omitempty" env:"ACADEMIC_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `yaml:"kafka_topic,omitempty" env:"ACADEMIC_KAFKA_TOPIC"`
	SNSTopicARN  string   `yaml:"sns_topic_arn,omitempty" env:"ACADEMIC_SNS_TOPIC_ARN"`
	SNSRegion    string   `yaml:"sns_region,omitempty" env:"ACADEMIC_SNS_REGION"`

	// SNSEndpoint overrides the AWS endpoint, e.g. for LocalStack.
	SNSEndpoint string `yaml:"sns_endpoint,omitempty" env:"ACADEMIC_SNS_ENDPOINT"`
}

// LoggingConfig configures the logrus logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"ACADEMIC_LOG_LEVEL"`
	Format string `yaml:"format" env:"ACADEMIC_LOG_FORMAT"`
}

// TracingConfig enables stdout span export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" env:"ACADEMIC_TRACING"`
}

// MetricsConfig enables prometheus collection for a command run.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"ACADEMIC_METRICS"`

	// Output is the file the text exposition is written to when the
	// command finishes. Empty means the log output.
	Output string `yaml:"output,omitempty" env:"ACADEMIC_METRICS_OUTPUT"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			URL:    "academic.db",
			Schema: "academic",
		},
		Store: StoreConfig{
			SnapshotCadence: 10,
			Serializer:      "json",
		},
		ReadModels: ReadModelConfig{
			Backend: ReadModelsMemory,
		},
		Publishing: PublishingConfig{
			KafkaTopic: "academic.student-records",
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Load loads configuration from the specified directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile loads configuration from a specific file path.
// Fields missing from the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save saves the configuration to the specified directory.
func (c *Config) Save(dir string) error {
	return c.SaveFile(filepath.Join(dir, ConfigFileName))
}

// SaveFile saves the configuration to a specific file path.
func (c *Config) SaveFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Exists checks if a config file exists in the directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindConfig searches for a config file starting from dir and going up.
func FindConfig(dir string) (string, *Config, error) {
	current := dir
	for {
		configPath := filepath.Join(current, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			cfg, err := LoadFile(configPath)
			if err != nil {
				return "", nil, err
			}
			return current, cfg, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", nil, os.ErrNotExist
		}
		current = parent
	}
}

// LoadEnvFile loads dir/.env when present. Variables already set in the
// environment are left untouched.
func LoadEnvFile(dir string) error {
	path := filepath.Join(dir, EnvFileName)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from ACADEMIC_* environment variables.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	return nil
}

// Resolve builds the effective configuration for a command run in dir:
// .env files, then academic.yaml (or defaults when none is found), then
// environment overrides. It returns the directory holding the config file,
// or dir when defaults were used.
func Resolve(dir string) (*Config, string, error) {
	if err := LoadEnvFile(dir); err != nil {
		return nil, "", err
	}

	root, cfg, err := FindConfig(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		root, cfg = dir, DefaultConfig()
	case err != nil:
		return nil, "", err
	default:
		if root != dir {
			if err := LoadEnvFile(root); err != nil {
				return nil, "", err
			}
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, "", err
	}
	return cfg, root, nil
}

// DatabaseURL returns Database.URL with ${VAR} references expanded.
func (c *Config) DatabaseURL() string {
	return os.ExpandEnv(c.Database.URL)
}

// Validate validates the configuration and returns every problem found.
func (c *Config) Validate() []string {
	var problems []string

	switch c.Database.Driver {
	case "":
		problems = append(problems, "database.driver is required")
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		problems = append(problems, "database.driver must be 'postgres', 'sqlite' or 'memory'")
	}

	if c.Database.Driver == DriverPostgres && c.DatabaseURL() == "" {
		problems = append(problems, "database.url is required for postgres driver")
	}
	if c.Database.Driver == DriverSQLite && c.DatabaseURL() == "" {
		problems = append(problems, "database.url must be a file path for sqlite driver")
	}

	if c.Store.SnapshotCadence < 0 {
		problems = append(problems, "store.snapshot_cadence must not be negative")
	}
	switch c.Store.Serializer {
	case "", "json", "msgpack", "protobuf":
	default:
		problems = append(problems, "store.serializer must be 'json', 'msgpack' or 'protobuf'")
	}

	switch c.ReadModels.Backend {
	case "", ReadModelsMemory:
	case ReadModelsRedis:
		if c.ReadModels.RedisAddr == "" {
			problems = append(problems, "read_models.redis_addr is required for redis backend")
		}
	case ReadModelsPostgres:
		if c.Database.Driver != DriverPostgres {
			problems = append(problems, "read_models.backend 'postgres' requires database.driver 'postgres'")
		}
	default:
		problems = append(problems, "read_models.backend must be 'memory', 'redis' or 'postgres'")
	}

	if len(c.Publishing.KafkaBrokers) > 0 && c.Publishing.KafkaTopic == "" {
		problems = append(problems, "publishing.kafka_topic is required when kafka_brokers is set")
	}
	if c.Publishing.SNSTopicARN != "" && c.Publishing.SNSRegion == "" {
		problems = append(problems, "publishing.sns_region is required when sns_topic_arn is set")
	}

	return problems
}

// GenerateYAML generates YAML content with comments.
func GenerateYAML(cfg *Config) string {
	return `# Academic record store configuration
# Every value can be overridden with an ACADEMIC_* environment variable.

version: "1"

database:
  # Driver: postgres, sqlite or memory
  driver: "` + cfg.Database.Driver + `"

  # Postgres connection URL or sqlite file path. ${VAR} is expanded.
  url: "` + cfg.Database.URL + `"

  # Postgres schema
  schema: "` + cfg.Database.Schema + `"

store:
  # Snapshot every N events (0 disables snapshots)
  snapshot_cadence: ` + fmt.Sprint(cfg.Store.SnapshotCadence) + `

  # Payload encoding: json, msgpack or protobuf
  serializer: "` + cfg.Store.Serializer + `"

read_models:
  # Where projections keep their views: memory, redis or postgres
  backend: "` + cfg.ReadModels.Backend + `"

logging:
  level: "` + cfg.Logging.Level + `"
  format: "` + cfg.Logging.Format + `"

tracing:
  # Print spans to stderr
  enabled: ` + fmt.Sprint(cfg.Tracing.Enabled) + `

metrics:
  # Dump prometheus metrics when a command finishes
  enabled: ` + fmt.Sprint(cfg.Metrics.Enabled) + `
`
}

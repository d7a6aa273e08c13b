package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is the prefix of every environment variable read by Load
const EnvPrefix = "PIT"

// Config represents the complete loader configuration
type Config struct {
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Loader    LoaderConfig    `yaml:"loader" envconfig:"LOADER"`
	Source    SourceConfig    `yaml:"source" envconfig:"SOURCE"`
	Calendar  CalendarConfig  `yaml:"calendar" envconfig:"CALENDAR"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console stdout file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// LoaderConfig tunes dataset loads
type LoaderConfig struct {
	Dataset string `yaml:"dataset" envconfig:"DATASET" validate:"oneof=cash share"`
	Workers int    `yaml:"workers" envconfig:"WORKERS" validate:"min=0,max=1024"`
}

// SourceConfig selects where buyback events are read from
type SourceConfig struct {
	Kind     string `yaml:"kind" envconfig:"KIND" validate:"oneof=csv xlsx sqlite postgres"`
	Path     string `yaml:"path" envconfig:"FILE" validate:"required_unless=Kind postgres"`
	Sheet    string `yaml:"sheet" envconfig:"SHEET"`
	Table    string `yaml:"table" envconfig:"TABLE"`
	DSN      string `yaml:"dsn" envconfig:"DSN" validate:"required_if=Kind postgres"`
	MaxConns int32  `yaml:"max_conns" envconfig:"MAX_CONNS" validate:"min=0"`

	// OrderColumn breaks ties between rows known on the same day. Database
	// sources use physical row order when it is empty.
	OrderColumn string `yaml:"order_column" envconfig:"ORDER_COLUMN"`
}

// CalendarConfig locates the trading calendar. Without a path a Monday to
// Friday calendar is generated for the requested range.
type CalendarConfig struct {
	Path string `yaml:"path" envconfig:"FILE"`
}

// TelemetryConfig controls tracing and metrics
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" envconfig:"SERVICE_NAME" validate:"required"`
	TracingEnabled bool   `yaml:"tracing_enabled" envconfig:"TRACING_ENABLED"`
	MetricsEnabled bool   `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
}

// ServerConfig contains the ops HTTP server configuration. An empty Addr
// disables the server.
type ServerConfig struct {
	Addr            string        `yaml:"addr" envconfig:"ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"min=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"min=0"`
}

// Load reads the first config file found in the usual locations, then
// applies environment overrides and validates the result.
func Load() (*Config, error) {
	return LoadFile(getConfigFilePath())
}

// LoadFile is Load with an explicit file. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Load from environment variables last so they take precedence
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile overlays YAML onto cfg; absent keys keep their values
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filepath.Clean(filePath))
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if (c.Logging.Output == "file" || c.Logging.Output == "both") && c.Logging.FilePath == "" {
		return fmt.Errorf("logging output %q requires a file path", c.Logging.Output)
	}
	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		return path
	}

	locations := []string{
		"pitloader.yaml",
		"configs/pitloader.yaml",
		"../configs/pitloader.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/pitloader.log",
		},
		Loader: LoaderConfig{
			Dataset: "cash",
		},
		Source: SourceConfig{
			Kind:  "csv",
			Path:  "data/buyback_auth.csv",
			Table: "buyback_auth",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "pitloader",
		},
		Server: ServerConfig{
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

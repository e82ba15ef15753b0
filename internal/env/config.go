package env

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Config is layered: Defaults, then the optional YAML file, then the
// environment. Every env tag uses overwrite so a set variable always wins over
// the file.
type Config struct {
	Servers      []string      `env:"LANTERN_SERVERS,overwrite" yaml:"servers"`
	Timeout      time.Duration `env:"LANTERN_TIMEOUT,overwrite" yaml:"timeout"`
	ReadTimeout  time.Duration `env:"LANTERN_READ_TIMEOUT,overwrite" yaml:"read_timeout"`
	Name         string        `env:"LANTERN_NAME,overwrite" yaml:"name"`
	Verbose      bool          `env:"LANTERN_VERBOSE,overwrite" yaml:"verbose"`
	Randomize    bool          `env:"LANTERN_RANDOMIZE,overwrite" yaml:"randomize"`
	Headers      bool          `env:"LANTERN_HEADERS,overwrite" yaml:"headers"`
	NoResponders bool          `env:"LANTERN_NO_RESPONDERS,overwrite" yaml:"no_responders"`
	LogLevel     string        `env:"LANTERN_LOG_LEVEL,overwrite" yaml:"log_level"`
	DebugHTTP    bool          `env:"LANTERN_DEBUG_HTTP,overwrite" yaml:"debug_http"`
}

func Defaults() Config {
	return Config{
		Servers:      []string{"nats://127.0.0.1:4222"},
		Timeout:      5 * time.Second,
		Name:         "lantern",
		Headers:      true,
		NoResponders: true,
		LogLevel:     "info",
	}
}

// LoadConfig reads .env.local if present, then builds the Config from the
// file at path (optional, "" skips it) and the process environment.
func LoadConfig(ctx context.Context, path string) (*Config, error) {
	if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("Failed to load .env.local: %w", err)
	}

	return LoadConfigWith(ctx, path, envconfig.OsLookuper())
}

// LoadConfigWith is LoadConfig without .env.local, reading variables from l.
func LoadConfigWith(ctx context.Context, path string, l envconfig.Lookuper) (*Config, error) {
	config := Defaults()

	if path != "" {
		if err := LoadFile(path, &config); err != nil {
			return nil, err
		}
	}

	if err := envconfig.ProcessWith(ctx, &config, l); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadFile decodes the YAML file at path over config. Keys missing from the
// file keep their current value.
func LoadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("Failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("Failed to parse config file %s: %w", path, err)
	}

	return nil
}

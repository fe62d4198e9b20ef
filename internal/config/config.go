// Package config loads memsetup configuration from an env file and the process environment
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime settings
type Config struct {
	Host   string `env:"WEAVIATE_HOST" envDefault:"localhost"`
	Port   string `env:"WEAVIATE_PORT" envDefault:"8181"`
	Scheme string `env:"WEAVIATE_SCHEME" envDefault:"http"`

	SchemaDir   string        `env:"MEMSETUP_SCHEMA_DIR" envDefault:"config/weaviate"`
	SampleTag   string        `env:"MEMSETUP_SAMPLE_TAG" envDefault:"sample"`
	QueryLimit  int           `env:"MEMSETUP_QUERY_LIMIT" envDefault:"1000"`
	MaxRounds   int           `env:"MEMSETUP_MAX_ROUNDS" envDefault:"100"`
	HTTPTimeout time.Duration `env:"MEMSETUP_HTTP_TIMEOUT" envDefault:"0s"`

	LogLevel  string `env:"MEMSETUP_LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"MEMSETUP_LOG_PRETTY" envDefault:"true"`

	OTelEndpoint string `env:"MEMSETUP_OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"MEMSETUP_OTEL_ENABLED" envDefault:"true"`
}

// BaseURL returns the store root URL, e.g. http://localhost:8181
func (c Config) BaseURL() string {
	return fmt.Sprintf("%s://%s", c.Scheme, net.JoinHostPort(c.Host, c.Port))
}

// Load reads envFile (if it exists) and then parses the process environment.
// Process variables always win over file entries; within the file the first
// definition of a key wins. An empty envFile skips the file step.
func Load(envFile string) (Config, error) {
	environment := env.ToMap(os.Environ())

	if envFile != "" {
		fileVars, err := ReadEnvFile(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
		for k, v := range fileVars {
			if _, set := environment[k]; !set {
				environment[k] = v
			}
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environment}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.QueryLimit <= 0 {
		return fmt.Errorf("config: MEMSETUP_QUERY_LIMIT must be positive, got %d", c.QueryLimit)
	}
	if c.MaxRounds <= 0 {
		return fmt.Errorf("config: MEMSETUP_MAX_ROUNDS must be positive, got %d", c.MaxRounds)
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("config: invalid WEAVIATE_PORT %q", c.Port)
	}
	return nil
}

// ReadEnvFile parses KEY=VALUE lines. Blank lines and # comments are skipped,
// an optional "export " prefix and matching surrounding quotes are removed.
func ReadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open env file: %w", err)
	}
	defer f.Close()

	vars := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		if key == "" {
			continue
		}
		if _, seen := vars[key]; seen {
			continue
		}
		vars[key] = unquote(strings.TrimSpace(val))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	return vars, nil
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

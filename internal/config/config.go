// Package config loads llm-verify settings from YAML and the environment.
//
// Precedence, lowest first: built-in defaults, the config file, LLM_VERIFY_*
// environment variables, then command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/johnayoung/llm-verify/internal/consensus"
	"github.com/johnayoung/llm-verify/internal/runner"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvModel    = "LLM_VERIFY_MODEL"
	EnvAttempts = "LLM_VERIFY_ATTEMPTS"
	EnvDataDir  = "LLM_VERIFY_DATA_DIR"
)

const (
	appDir   = ".llm-verify"
	fileName = "config.yaml"
)

// Config is the full application configuration.
type Config struct {
	Model   string `yaml:"model" validate:"required"`
	BaseURL string `yaml:"base_url,omitempty" validate:"omitempty,url"`

	Attempts          int           `yaml:"attempts" validate:"gte=1,lte=20"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	Pacing            time.Duration `yaml:"pacing" validate:"gte=0"`
	RequestsPerMinute int           `yaml:"requests_per_minute" validate:"gte=0"`

	Sampling  runner.Sampling   `yaml:"sampling"`
	Consensus consensus.Options `yaml:"consensus"`

	DataDir     string `yaml:"data_dir" validate:"required"`
	HistoryPath string `yaml:"history_path" validate:"required"`

	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	Exporter string `yaml:"exporter" validate:"oneof=none stdout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Model:             "gpt-4.1",
		Attempts:          3,
		Timeout:           runner.DefaultTimeout,
		Pacing:            runner.DefaultPacing,
		RequestsPerMinute: 0,
		Sampling:          runner.DefaultSampling(),
		Consensus:         consensus.Options{KeyLength: consensus.DefaultKeyLength},
		DataDir:           "data",
		HistoryPath:       filepath.Join(homeDir(), "history.db"),
		Server:            ServerConfig{Addr: "127.0.0.1:8080"},
		Log:               LogConfig{Level: "info"},
		Telemetry:         TelemetryConfig{Exporter: "none"},
	}
}

// DefaultPath is $HOME/.llm-verify/config.yaml.
func DefaultPath() string {
	return filepath.Join(homeDir(), fileName)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return appDir
	}
	return filepath.Join(home, appDir)
}

// Load reads the config at path, applies environment overrides and validates
// the result. An empty path means DefaultPath, which may be absent; an
// explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvModel); ok && v != "" {
		cfg.Model = v
	}
	if v, ok := os.LookupEnv(EnvAttempts); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAttempts, err)
		}
		cfg.Attempts = n
	}
	if v, ok := os.LookupEnv(EnvDataDir); ok && v != "" {
		cfg.DataDir = v
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fieldPath(fe), constraint(fe), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}

func constraint(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// Marshal encodes c as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// WriteDefault writes the default configuration to path, creating parent
// directories. An existing file is kept unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := Default().Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

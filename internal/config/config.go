// Package config loads the wg-federation application configuration.
//
// Configuration is YAML with ${VAR} expansion. A .env or .env.local file in the
// working directory is loaded first without overriding the process environment.
// A missing configuration file is not an error: every field has a default.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
	"github.com/wg-federation/wg-federation/internal/model"
)

// DefaultPath is where the CLI looks for configuration when -c is not given.
const DefaultPath = "/etc/wg-federation/config.yaml"

// Config is the root configuration document.
type Config struct {
	Version    string           `yaml:"version"`
	Paths      PathsConfig      `yaml:"paths"`
	Secrets    SecretsConfig    `yaml:"secrets"`
	Federation FederationConfig `yaml:"federation"`
	Logging    LoggingConfig    `yaml:"logging"`
	Journal    JournalConfig    `yaml:"journal"`
	NATS       NATSConfig       `yaml:"nats"`
	Daemon     DaemonConfig     `yaml:"daemon"`
}

// PathsConfig locates the state file and rendered WireGuard configurations.
type PathsConfig struct {
	DataDir      string `yaml:"data_dir"`
	WireguardDir string `yaml:"wireguard_dir"`
	StateFormat  string `yaml:"state_format"` // yaml|json
}

// SecretsConfig controls root passphrase retrieval and state protection.
type SecretsConfig struct {
	PrivateKeyRetrievalMethod model.PrivateKeyRetrievalMethod `yaml:"private_key_retrieval_method"`
	RootPassphraseCommand     string                          `yaml:"root_passphrase_command,omitempty"`
	RootPassphraseEnv         string                          `yaml:"root_passphrase_env"`
	RootPassphraseFile        string                          `yaml:"root_passphrase_file,omitempty"`
	EncryptState              *bool                           `yaml:"encrypt_state,omitempty"`
	SignState                 *bool                           `yaml:"sign_state,omitempty"`
	KDF                       KDFConfig                       `yaml:"kdf"`
}

// KDFConfig are argon2id cost parameters.
type KDFConfig struct {
	Time      uint32 `yaml:"time"`
	MemoryKiB uint32 `yaml:"memory_kib"`
	Threads   uint8  `yaml:"threads"`
}

// FederationConfig seeds the Federation written by bootstrap.
type FederationConfig struct {
	Name             string `yaml:"name"`
	InterfaceMinPort int    `yaml:"interface_min_port"`
	ForumMinPort     int    `yaml:"forum_min_port"`
	PhoneLineMinPort int    `yaml:"phone_line_min_port"`
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// JournalConfig controls the SQLite event journal.
type JournalConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"` // default <data_dir>/journal.db
}

// NATSConfig controls forwarding of HQ events to NATS.
type NATSConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	Timeout       time.Duration `yaml:"timeout"`
	Retry         RetryConfig   `yaml:"retry"`
}

// RetryConfig bounds how often a failed publish is retried.
type RetryConfig struct {
	Backoff    RetryBackoffMode `yaml:"backoff"` // fixed|linear|exponential
	Initial    time.Duration    `yaml:"initial"`
	Max        time.Duration    `yaml:"max"`
	MaxRetries int              `yaml:"max_retries"`
}

// DaemonConfig controls `hq watch`.
type DaemonConfig struct {
	AdminAddr              string        `yaml:"admin_addr"`
	IntegrityCheckInterval time.Duration `yaml:"integrity_check_interval"`
	RenderOnChange         *bool         `yaml:"render_on_change,omitempty"`
	WatchDebounce          time.Duration `yaml:"watch_debounce"`
}

// Load reads configPath, expands environment references, applies environment
// overrides and defaults, then validates.
func Load(configPath string) (*Config, error) {
	_ = loadEnvFile()

	cfg := &Config{}
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to parse configuration").
				WithContext("path", configPath).
				Build()
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read configuration").
			WithContext("path", configPath).
			Build()
	}

	applyEnvOverrides(cfg)
	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	_ = applyDefaults(cfg)
	return cfg
}

// Init writes an example configuration to configPath.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return ferrors.AlreadyExistsError(fmt.Sprintf("configuration file already exists: %s (use --force to overwrite)", configPath)).Build()
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to marshal config").Build()
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write config file").
			WithContext("path", configPath).
			Build()
	}
	return nil
}

// FederationSeed returns the configured federation seed.
func (c *Config) FederationSeed() model.Federation {
	return model.Federation{
		Name:             c.Federation.Name,
		InterfaceMinPort: c.Federation.InterfaceMinPort,
		ForumMinPort:     c.Federation.ForumMinPort,
		PhoneLineMinPort: c.Federation.PhoneLineMinPort,
	}
}

// Enabled dereferences an optional boolean that defaults to true.
func Enabled(b *bool) bool {
	return b == nil || *b
}

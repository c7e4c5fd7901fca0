package config

import (
	"path/filepath"
	"time"

	"github.com/wg-federation/wg-federation/internal/model"
	"github.com/wg-federation/wg-federation/internal/secrets"
)

// Default values written by bootstrap when the configuration leaves them unset.
const (
	DefaultDataDir          = "/var/lib/wg-federation"
	DefaultWireguardDir     = "/etc/wireguard/wg-federation"
	DefaultFederationName   = "wg-federation0"
	DefaultInterfaceMinPort = 10100
	DefaultForumMinPort     = 10101
	DefaultPhoneLineMinPort = 11100
	DefaultAdminAddr        = "127.0.0.1:9180"
	DefaultSubjectPrefix    = "wgf.hq"
)

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

func defaultAppliers() []DefaultApplier {
	return []DefaultApplier{
		pathsDefaults{},
		secretsDefaults{},
		federationDefaults{},
		loggingDefaults{},
		journalDefaults{},
		natsDefaults{},
		daemonDefaults{},
	}
}

func applyDefaults(cfg *Config) error {
	if cfg.Version == "" {
		cfg.Version = "1"
	}
	for _, a := range defaultAppliers() {
		if err := a.ApplyDefaults(cfg); err != nil {
			return err
		}
	}
	return nil
}

type pathsDefaults struct{}

func (pathsDefaults) Domain() string { return "paths" }

func (pathsDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Paths.DataDir == "" {
		cfg.Paths.DataDir = DefaultDataDir
	}
	if cfg.Paths.WireguardDir == "" {
		cfg.Paths.WireguardDir = DefaultWireguardDir
	}
	if cfg.Paths.StateFormat == "" {
		cfg.Paths.StateFormat = "yaml"
	}
	return nil
}

type secretsDefaults struct{}

func (secretsDefaults) Domain() string { return "secrets" }

func (secretsDefaults) ApplyDefaults(cfg *Config) error {
	method, err := model.ParsePrivateKeyRetrievalMethod(string(cfg.Secrets.PrivateKeyRetrievalMethod))
	if err != nil {
		return configError(err, "secrets.private_key_retrieval_method")
	}
	cfg.Secrets.PrivateKeyRetrievalMethod = method
	if cfg.Secrets.RootPassphraseEnv == "" {
		cfg.Secrets.RootPassphraseEnv = secrets.DefaultEnvVar
	}
	if cfg.Secrets.KDF.Time == 0 {
		cfg.Secrets.KDF.Time = 3
	}
	if cfg.Secrets.KDF.MemoryKiB == 0 {
		cfg.Secrets.KDF.MemoryKiB = 64 * 1024
	}
	if cfg.Secrets.KDF.Threads == 0 {
		cfg.Secrets.KDF.Threads = 4
	}
	return nil
}

type federationDefaults struct{}

func (federationDefaults) Domain() string { return "federation" }

func (federationDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Federation.Name == "" {
		cfg.Federation.Name = DefaultFederationName
	}
	if cfg.Federation.InterfaceMinPort == 0 {
		cfg.Federation.InterfaceMinPort = DefaultInterfaceMinPort
	}
	if cfg.Federation.ForumMinPort == 0 {
		cfg.Federation.ForumMinPort = DefaultForumMinPort
	}
	if cfg.Federation.PhoneLineMinPort == 0 {
		cfg.Federation.PhoneLineMinPort = DefaultPhoneLineMinPort
	}
	return nil
}

type loggingDefaults struct{}

func (loggingDefaults) Domain() string { return "logging" }

func (loggingDefaults) ApplyDefaults(cfg *Config) error {
	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	return nil
}

type journalDefaults struct{}

func (journalDefaults) Domain() string { return "journal" }

func (journalDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = filepath.Join(cfg.Paths.DataDir, "journal.db")
	}
	return nil
}

type natsDefaults struct{}

func (natsDefaults) Domain() string { return "nats" }

func (natsDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = DefaultSubjectPrefix
	}
	if cfg.NATS.Timeout <= 0 {
		cfg.NATS.Timeout = 5 * time.Second
	}
	cfg.NATS.Retry.Backoff = NormalizeRetryBackoff(string(cfg.NATS.Retry.Backoff))
	if cfg.NATS.Retry.Initial <= 0 {
		cfg.NATS.Retry.Initial = 100 * time.Millisecond
	}
	if cfg.NATS.Retry.Max <= 0 {
		cfg.NATS.Retry.Max = time.Second
	}
	// zero means unset; a negative value disables retries
	if cfg.NATS.Retry.MaxRetries == 0 {
		cfg.NATS.Retry.MaxRetries = 2
	}
	return nil
}

type daemonDefaults struct{}

func (daemonDefaults) Domain() string { return "daemon" }

func (daemonDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Daemon.AdminAddr == "" {
		cfg.Daemon.AdminAddr = DefaultAdminAddr
	}
	if cfg.Daemon.IntegrityCheckInterval <= 0 {
		cfg.Daemon.IntegrityCheckInterval = 15 * time.Minute
	}
	if cfg.Daemon.WatchDebounce <= 0 {
		cfg.Daemon.WatchDebounce = 250 * time.Millisecond
	}
	return nil
}

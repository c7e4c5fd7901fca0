package config

import (
	"fmt"
	"path/filepath"

	"github.com/wg-federation/wg-federation/internal/configio"
	"github.com/wg-federation/wg-federation/internal/foundation"
	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
)

// Validate checks a configuration after defaults have been applied.
func Validate(cfg *Config) error {
	result := foundation.Check(filepath.IsAbs(cfg.Paths.DataDir), "paths.data_dir", "absolute", "must be an absolute path").
		Combine(foundation.Check(filepath.IsAbs(cfg.Paths.WireguardDir), "paths.wireguard_dir", "absolute", "must be an absolute path")).
		Combine(validateStateFormat(cfg.Paths.StateFormat)).
		Combine(foundation.NotEmpty("federation.name", cfg.Federation.Name)).
		Combine(foundation.Check(cfg.Federation.InterfaceMinPort > 0, "federation.interface_min_port", "port_range", "must be positive")).
		Combine(foundation.Check(cfg.Federation.ForumMinPort > 0, "federation.forum_min_port", "port_range", "must be positive")).
		Combine(foundation.Check(cfg.Federation.PhoneLineMinPort > 0, "federation.phone_line_min_port", "port_range", "must be positive")).
		Combine(foundation.PortInRange("federation.interface_min_port", cfg.Federation.InterfaceMinPort)).
		Combine(foundation.PortInRange("federation.forum_min_port", cfg.Federation.ForumMinPort)).
		Combine(foundation.PortInRange("federation.phone_line_min_port", cfg.Federation.PhoneLineMinPort)).
		Combine(foundation.Check(cfg.Secrets.KDF.MemoryKiB >= 8*uint32(cfg.Secrets.KDF.Threads), "secrets.kdf.memory_kib", "kdf",
			"must be at least 8 KiB per thread")).
		Combine(foundation.Check(!cfg.NATS.Enabled || cfg.NATS.URL != "", "nats.url", "required", "must be set when nats is enabled"))

	if err := result.ToError(); err != nil {
		c, _ := ferrors.AsClassified(err)
		return ferrors.ConfigError(c.Message()).WithCause(err).Build()
	}
	return nil
}

func validateStateFormat(raw string) foundation.ValidationResult {
	f, err := configio.ParseFormat(raw)
	return foundation.Check(err == nil && (f == configio.FormatYAML || f == configio.FormatJSON),
		"paths.state_format", "one_of", fmt.Sprintf("unsupported state format %q (yaml or json)", raw))
}

func configError(err error, field string) error {
	return ferrors.WrapError(err, ferrors.CategoryConfig, "invalid configuration value").
		WithContext("field", field).
		Build()
}

// StateFormat returns the parsed state file format.
func (c *Config) StateFormat() configio.Format {
	f, err := configio.ParseFormat(c.Paths.StateFormat)
	if err != nil || f == "" {
		return configio.FormatYAML
	}
	return f
}

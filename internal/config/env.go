package config

import (
	"errors"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that override configuration values.
const (
	EnvDataDir               = "WG_FEDERATION_DATA_DIR"
	EnvWireguardDir          = "WG_FEDERATION_WIREGUARD_DIR"
	EnvRootPassphraseCommand = "WG_FEDERATION_ROOT_PASSPHRASE_COMMAND"
)

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.Paths.DataDir = v
	}
	if v := os.Getenv(EnvWireguardDir); v != "" {
		cfg.Paths.WireguardDir = v
	}
	if v := os.Getenv(EnvRootPassphraseCommand); v != "" {
		cfg.Secrets.RootPassphraseCommand = v
	}
}

// loadEnvFile loads environment variables from .env/.env.local files.
// It attempts each supported filename in order and stops at the first successfully parsed file.
func loadEnvFile() error {
	envPaths := []string{".env", ".env.local"}
	for _, envPath := range envPaths {
		if err := loadSingleEnvFile(envPath); err == nil {
			slog.Debug("Loaded environment variables", slog.String("path", envPath))
			return nil
		}
	}
	return errors.New("no .env file found")
}

// loadSingleEnvFile loads environment variables from a single dotenv file.
// Existing process environment variables are not overwritten.
func loadSingleEnvFile(filename string) error {
	values, err := godotenv.Read(filename)
	if err != nil {
		return err
	}
	for key, value := range values {
		if os.Getenv(key) == "" { // do not override existing env
			_ = os.Setenv(key, value)
		}
	}
	return nil
}

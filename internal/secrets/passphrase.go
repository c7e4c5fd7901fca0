// Package secrets retrieves the root passphrase protecting the HQ state.
package secrets

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"github.com/wg-federation/wg-federation/internal/crypto"
	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
	"github.com/wg-federation/wg-federation/internal/model"
)

// DefaultEnvVar holds the root passphrase when no command is configured.
const DefaultEnvVar = "WG_FEDERATION_ROOT_PASSPHRASE"

// Runner executes a passphrase command and returns its standard output.
type Runner func(ctx context.Context, command string) ([]byte, error)

// ShellRunner runs command with `sh -c`.
func ShellRunner(ctx context.Context, command string) ([]byte, error) {
	// #nosec G204 -- the command is operator configuration, not remote input
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "root passphrase command failed").
			WithContext("stderr", strings.TrimSpace(stderr.String())).
			Build()
	}
	return out, nil
}

// Resolver finds the root passphrase. With a command configured the command is
// authoritative; otherwise the environment variable wins over the file.
type Resolver struct {
	Method  model.PrivateKeyRetrievalMethod
	Command string
	EnvVar  string
	File    string
	Run     Runner
}

// Passphrase returns a fresh copy of the root passphrase.
func (r Resolver) Passphrase(ctx context.Context) ([]byte, error) {
	if r.Method.RequiresRootPassphraseCommand() && strings.TrimSpace(r.Command) == "" {
		return nil, ferrors.ConfigError("private key retrieval method " + string(r.Method) + " requires a root passphrase command").
			WithContext("hint", "set secrets.root_passphrase_command or pass --root-passphrase-command").
			Build()
	}

	if r.Command != "" {
		run := r.Run
		if run == nil {
			run = ShellRunner
		}
		out, err := run(ctx, r.Command)
		if err != nil {
			return nil, err
		}
		return nonEmpty(trimNewline(out), "root passphrase command printed nothing")
	}

	envVar := r.EnvVar
	if envVar == "" {
		envVar = DefaultEnvVar
	}
	if v, ok := os.LookupEnv(envVar); ok && v != "" {
		return []byte(v), nil
	}

	if r.File != "" {
		data, err := os.ReadFile(r.File)
		switch {
		case err == nil:
			return nonEmpty(trimNewline(data), "root passphrase file is empty")
		case !errors.Is(err, fs.ErrNotExist):
			return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to read root passphrase file").
				WithContext("path", r.File).
				Build()
		}
	}

	return nil, ferrors.ConfigError("no root passphrase available").
		WithContext("env", envVar).
		WithContext("file", r.File).
		WithContext("hint", "export "+envVar+" or configure a root passphrase command").
		Build()
}

// PassphraseFunc adapts the resolver for the crypto transformers.
func (r Resolver) PassphraseFunc(ctx context.Context) crypto.PassphraseFunc {
	return func() ([]byte, error) { return r.Passphrase(ctx) }
}

func trimNewline(b []byte) []byte {
	return bytes.TrimRight(b, "\r\n")
}

func nonEmpty(b []byte, msg string) ([]byte, error) {
	if len(b) == 0 {
		return nil, ferrors.ConfigError(msg).Build()
	}
	return b, nil
}

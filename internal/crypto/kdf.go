// Package crypto wraps the HQ state file in passphrase-derived envelopes.
//
// Two transformers are provided for configio: an XChaCha20-Poly1305 encryption
// envelope and a Poly1305 signature envelope. Both derive their keys from the
// root passphrase with argon2id, then separate purposes with HKDF.
package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"

	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
)

const (
	purposeEncryption = "wg-federation state encryption"
	purposeSignature  = "wg-federation state signature"

	saltSize = 16
	keySize  = 32
)

// KDFParams are the argon2id cost parameters.
type KDFParams struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultKDFParams follow the argon2id recommendation for interactive use.
var DefaultKDFParams = KDFParams{Time: 3, MemoryKiB: 64 * 1024, Threads: 4}

// PassphraseFunc yields the root passphrase. It is called on every encode and
// decode so the passphrase is never held longer than needed.
type PassphraseFunc func() ([]byte, error)

// StaticPassphrase returns a PassphraseFunc for a fixed value.
func StaticPassphrase(p string) PassphraseFunc {
	return func() ([]byte, error) { return []byte(p), nil }
}

func deriveKey(params KDFParams, passphrase PassphraseFunc, salt []byte, purpose string) ([]byte, error) {
	secret, err := passphrase()
	if err != nil {
		return nil, err
	}
	if len(secret) == 0 {
		return nil, ferrors.CryptoError("root passphrase is empty").UserAction().Build()
	}
	defer clear(secret)

	master := argon2.IDKey(secret, salt, params.Time, params.MemoryKiB, params.Threads, keySize)
	defer clear(master)

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, []byte(purpose)), key); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryCrypto, "key derivation failed").Build()
	}
	return key, nil
}

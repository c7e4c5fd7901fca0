package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
)

const (
	encryptionHeader = "WGF-ENC-V1"
	signatureHeader  = "WGF-SIG-V1"
)

// Encryptor is the encryption transformer: WGF-ENC-V1, salt, nonce+ciphertext,
// one base64 field per line. The header is bound as associated data.
type Encryptor struct {
	passphrase PassphraseFunc
	params     KDFParams
}

func NewEncryptor(passphrase PassphraseFunc, params KDFParams) *Encryptor {
	return &Encryptor{passphrase: passphrase, params: params}
}

func (e *Encryptor) Name() string { return "encryption" }

func (e *Encryptor) Encode(plain []byte) ([]byte, error) {
	salt, err := randomBytes(saltSize)
	if err != nil {
		return nil, err
	}
	key, err := deriveKey(e.params, e.passphrase, salt, purposeEncryption)
	if err != nil {
		return nil, err
	}
	defer clear(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryCrypto, "failed to initialise cipher").Build()
	}
	nonce, err := randomBytes(aead.NonceSize())
	if err != nil {
		return nil, err
	}
	sealed := aead.Seal(nonce, nonce, plain, []byte(encryptionHeader))
	return formatEnvelope(encryptionHeader, salt, sealed), nil
}

func (e *Encryptor) Decode(wrapped []byte) ([]byte, error) {
	fields, err := parseEnvelope(encryptionHeader, wrapped, 2)
	if err != nil {
		return nil, err
	}
	salt, sealed := fields[0], fields[1]
	if len(salt) != saltSize || len(sealed) < chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, ferrors.CryptoError("encrypted envelope is truncated").Build()
	}

	key, err := deriveKey(e.params, e.passphrase, salt, purposeEncryption)
	if err != nil {
		return nil, err
	}
	defer clear(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryCrypto, "failed to initialise cipher").Build()
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(encryptionHeader))
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryCrypto, "decryption failed, wrong root passphrase or corrupted state").
			UserAction().
			Build()
	}
	return plain, nil
}

// IsEncrypted reports whether data starts with the encryption envelope header.
func IsEncrypted(data []byte) bool {
	return bytes.HasPrefix(data, []byte(encryptionHeader+"\n"))
}

func formatEnvelope(header string, fields ...[]byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(header)
	buf.WriteByte('\n')
	for _, f := range fields {
		buf.WriteString(base64.StdEncoding.EncodeToString(f))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func parseEnvelope(header string, data []byte, n int) ([][]byte, error) {
	lines := bytes.Split(bytes.TrimRight(data, "\n"), []byte("\n"))
	if len(lines) == 0 || string(bytes.TrimSpace(lines[0])) != header {
		return nil, ferrors.CryptoError(fmt.Sprintf("missing %s envelope header", header)).Build()
	}
	if len(lines) != n+1 {
		return nil, ferrors.CryptoError(fmt.Sprintf("malformed %s envelope", header)).
			WithContext("fields", len(lines)-1).
			Build()
	}
	fields := make([][]byte, n)
	for i, line := range lines[1:] {
		decoded, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(line)))
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryCrypto, fmt.Sprintf("malformed %s envelope", header)).Build()
		}
		fields[i] = decoded
	}
	return fields, nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryCrypto, "failed to read random bytes").Build()
	}
	return b, nil
}

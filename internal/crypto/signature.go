package crypto

import (
	"bytes"

	"golang.org/x/crypto/poly1305" //nolint:staticcheck // one-time-key MAC with a fresh key per signature

	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
)

// Signer is the signature transformer: WGF-SIG-V1, nonce, tag, payload. Each
// signature uses a fresh nonce, and the Poly1305 key is derived from it, so no
// key ever authenticates two messages.
type Signer struct {
	passphrase PassphraseFunc
	params     KDFParams
}

func NewSigner(passphrase PassphraseFunc, params KDFParams) *Signer {
	return &Signer{passphrase: passphrase, params: params}
}

func (s *Signer) Name() string { return "signature" }

func (s *Signer) Encode(plain []byte) ([]byte, error) {
	nonce, err := randomBytes(saltSize)
	if err != nil {
		return nil, err
	}
	tag, err := s.tag(nonce, plain)
	if err != nil {
		return nil, err
	}
	return formatEnvelope(signatureHeader, nonce, tag[:], plain), nil
}

func (s *Signer) Decode(wrapped []byte) ([]byte, error) {
	fields, err := parseEnvelope(signatureHeader, wrapped, 3)
	if err != nil {
		return nil, err
	}
	nonce, tag, payload := fields[0], fields[1], fields[2]
	if len(nonce) != saltSize || len(tag) != poly1305.TagSize {
		return nil, ferrors.CryptoError("signature envelope is truncated").Build()
	}

	key, err := s.oneTimeKey(nonce)
	if err != nil {
		return nil, err
	}
	defer clear(key[:])

	var want [poly1305.TagSize]byte
	copy(want[:], tag)
	if !poly1305.Verify(&want, payload, &key) {
		return nil, ferrors.CryptoError("state signature verification failed").
			WithContext("hint", "the state file was modified outside wg-federation or the root passphrase is wrong").
			Build()
	}
	return payload, nil
}

// IsSigned reports whether data starts with the signature envelope header.
func IsSigned(data []byte) bool {
	return bytes.HasPrefix(data, []byte(signatureHeader+"\n"))
}

func (s *Signer) tag(nonce, payload []byte) ([poly1305.TagSize]byte, error) {
	var out [poly1305.TagSize]byte
	key, err := s.oneTimeKey(nonce)
	if err != nil {
		return out, err
	}
	defer clear(key[:])

	poly1305.Sum(&out, payload, &key)
	return out, nil
}

func (s *Signer) oneTimeKey(nonce []byte) ([keySize]byte, error) {
	var key [keySize]byte
	salt := append([]byte(signatureHeader), nonce...)
	derived, err := deriveKey(s.params, s.passphrase, salt, purposeSignature)
	if err != nil {
		return key, err
	}
	copy(key[:], derived)
	clear(derived)
	return key, nil
}

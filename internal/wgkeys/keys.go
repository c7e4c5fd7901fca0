// Package wgkeys generates WireGuard key material.
package wgkeys

import (
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
)

// KeyPair is a base64-encoded Curve25519 key pair.
type KeyPair struct {
	PrivateKey string
	PublicKey  string
}

// Generator produces key pairs and pre-shared keys.
type Generator interface {
	KeyPair() (KeyPair, error)
	PresharedKey() (string, error)
}

// WGTypesGenerator generates keys with wgctrl's wgtypes.
type WGTypesGenerator struct{}

func (WGTypesGenerator) KeyPair() (KeyPair, error) {
	priv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return KeyPair{}, ferrors.WrapError(err, ferrors.CategoryCrypto, "failed to generate private key").Build()
	}
	return KeyPair{PrivateKey: priv.String(), PublicKey: priv.PublicKey().String()}, nil
}

func (WGTypesGenerator) PresharedKey() (string, error) {
	psk, err := wgtypes.GenerateKey()
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryCrypto, "failed to generate pre-shared key").Build()
	}
	return psk.String(), nil
}

// PublicKeyFor derives the public key of a base64 private key.
func PublicKeyFor(privateKey string) (string, error) {
	priv, err := wgtypes.ParseKey(privateKey)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryValidation, "invalid WireGuard private key").Build()
	}
	return priv.PublicKey().String(), nil
}

// ValidKey reports whether s is a base64 WireGuard key.
func ValidKey(s string) bool {
	_, err := wgtypes.ParseKey(s)
	return err == nil
}

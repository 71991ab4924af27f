// Package keypair wraps the ed25519 account keys used for wallet and escrow
// accounts. Addresses are G... strkeys, secrets are S... seeds.
package keypair

import (
	"fmt"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"
)

// Keypair is a full signing key.
type Keypair struct {
	full *keypair.Full
}

// Random generates a fresh keypair.
func Random() (*Keypair, error) {
	full, err := keypair.Random()
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return &Keypair{full: full}, nil
}

// FromSecret parses an S... secret seed.
func FromSecret(secret string) (*Keypair, error) {
	full, err := keypair.ParseFull(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid secret key: %w", err)
	}
	return &Keypair{full: full}, nil
}

// PublicKey returns the G... account address.
func (k *Keypair) PublicKey() string {
	return k.full.Address()
}

// Secret returns the S... secret seed.
func (k *Keypair) Secret() string {
	return k.full.Seed()
}

// Full exposes the underlying key for transaction signing.
func (k *Keypair) Full() *keypair.Full {
	return k.full
}

// Sign signs data and returns the raw signature bytes.
func (k *Keypair) Sign(data []byte) ([]byte, error) {
	sig, err := k.full.Sign(data)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}
	return sig, nil
}

// Verify checks a signature against a G... address.
func Verify(address string, data, signature []byte) bool {
	kp, err := keypair.ParseAddress(address)
	if err != nil {
		return false
	}
	return kp.Verify(data, signature) == nil
}

// IsValidPublicKey reports whether address is a valid G... account id.
func IsValidPublicKey(address string) bool {
	return strkey.IsValidEd25519PublicKey(address)
}

// IsValidSecret reports whether secret is a valid S... seed.
func IsValidSecret(secret string) bool {
	return strkey.IsValidEd25519SecretSeed(secret)
}

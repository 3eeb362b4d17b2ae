package attest

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/hossein1376/pqfsr/pkg/primitive"
)

// Ed25519 implements primitive.Signer using classical Ed25519, offered as
// an alternative to ML-DSA-65 where post-quantum signatures aren't needed.
type Ed25519 struct{}

var _ primitive.Signer = Ed25519{}

// NewEd25519 returns an Ed25519 signer adapter.
func NewEd25519() Ed25519 {
	return Ed25519{}
}

func (Ed25519) GenerateKeyPair() (public, private []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("attest: generate keypair: %w", err)
	}
	return pub, priv, nil
}

func (Ed25519) Sign(private, message []byte) (signature []byte, err error) {
	if len(private) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("attest: %w: private key size %d", ErrInvalidKey, len(private))
	}
	return ed25519.Sign(ed25519.PrivateKey(private), message), nil
}

func (Ed25519) Verify(public, message, signature []byte) bool {
	if len(public) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(public), message, signature)
}

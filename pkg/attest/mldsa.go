// Package attest adapts signature schemes to the primitive.Signer contract.
// Two algorithms are provided: ML-DSA-65 (post-quantum, default) and
// Ed25519 (classical, alternative).
package attest

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/sign/mldsa/mldsa65"

	"github.com/hossein1376/pqfsr/pkg/primitive"
)

// MLDSA65 implements primitive.Signer using ML-DSA-65 (Dilithium-level
// parameters).
type MLDSA65 struct{}

var _ primitive.Signer = MLDSA65{}

// New returns an ML-DSA-65 signer adapter.
func New() MLDSA65 {
	return MLDSA65{}
}

func (MLDSA65) GenerateKeyPair() (public, private []byte, err error) {
	pub, priv, err := mldsa65.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("attest: generate keypair: %w", err)
	}
	public, err = pub.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("attest: marshal public key: %w", err)
	}
	private, err = priv.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("attest: marshal private key: %w", err)
	}
	return public, private, nil
}

func (MLDSA65) Sign(private, message []byte) (signature []byte, err error) {
	sk, err := unmarshalMLDSAPrivate(private)
	if err != nil {
		return nil, err
	}
	sig := make([]byte, mldsa65.SignatureSize)
	if err := mldsa65.SignTo(sk, message, nil, true, sig); err != nil {
		return nil, fmt.Errorf("attest: sign: %w", err)
	}
	return sig, nil
}

func (MLDSA65) Verify(public, message, signature []byte) bool {
	pk, err := unmarshalMLDSAPublic(public)
	if err != nil {
		return false
	}
	return mldsa65.Verify(pk, message, nil, signature)
}

func unmarshalMLDSAPublic(data []byte) (*mldsa65.PublicKey, error) {
	key, err := mldsa65.Scheme().UnmarshalBinaryPublicKey(data)
	if err != nil {
		return nil, fmt.Errorf("attest: %w: %v", ErrInvalidKey, err)
	}
	pk, ok := key.(*mldsa65.PublicKey)
	if !ok {
		return nil, ErrInvalidKey
	}
	return pk, nil
}

func unmarshalMLDSAPrivate(data []byte) (*mldsa65.PrivateKey, error) {
	key, err := mldsa65.Scheme().UnmarshalBinaryPrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("attest: %w: %v", ErrInvalidKey, err)
	}
	sk, ok := key.(*mldsa65.PrivateKey)
	if !ok {
		return nil, ErrInvalidKey
	}
	return sk, nil
}

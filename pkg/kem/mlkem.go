// Package kem adapts CIRCL's ML-KEM-768 implementation to the primitive.KEM
// contract.
package kem

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"

	"github.com/hossein1376/pqfsr/pkg/primitive"
)

// MLKEM768 implements primitive.KEM using ML-KEM-768.
type MLKEM768 struct{}

var _ primitive.KEM = MLKEM768{}

// New returns an ML-KEM-768 adapter.
func New() MLKEM768 {
	return MLKEM768{}
}

func (MLKEM768) GenerateKeyPair() (public, private []byte, err error) {
	pk, sk, err := mlkem768.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("kem: generate keypair: %w", err)
	}
	public = make([]byte, mlkem768.PublicKeySize)
	private = make([]byte, mlkem768.PrivateKeySize)
	pk.Pack(public)
	sk.Pack(private)
	return public, private, nil
}

func (MLKEM768) Encapsulate(public []byte) (ciphertext, sharedSecret []byte, err error) {
	if len(public) != mlkem768.PublicKeySize {
		return nil, nil, fmt.Errorf("kem: %w: public key size %d", ErrInvalidKeySize, len(public))
	}
	var pk mlkem768.PublicKey
	pk.Unpack(public)

	ciphertext = make([]byte, mlkem768.CiphertextSize)
	sharedSecret = make([]byte, mlkem768.SharedKeySize)
	pk.EncapsulateTo(ciphertext, sharedSecret, nil)
	return ciphertext, sharedSecret, nil
}

func (MLKEM768) Decapsulate(ciphertext, private []byte) (sharedSecret []byte, err error) {
	if len(private) != mlkem768.PrivateKeySize {
		return nil, fmt.Errorf("kem: %w: private key size %d", ErrInvalidKeySize, len(private))
	}
	if len(ciphertext) != mlkem768.CiphertextSize {
		return nil, fmt.Errorf("kem: %w: ciphertext size %d", ErrInvalidKeySize, len(ciphertext))
	}
	var sk mlkem768.PrivateKey
	sk.Unpack(private)

	sharedSecret = make([]byte, mlkem768.SharedKeySize)
	sk.DecapsulateTo(sharedSecret, ciphertext)
	return sharedSecret, nil
}

// PublicKeySize, PrivateKeySize, CiphertextSize and SharedSecretSize expose
// the underlying scheme's fixed sizes for callers that need to size buffers
// or validate wire lengths ahead of time.
const (
	PublicKeySize    = mlkem768.PublicKeySize
	PrivateKeySize   = mlkem768.PrivateKeySize
	CiphertextSize   = mlkem768.CiphertextSize
	SharedSecretSize = mlkem768.SharedKeySize
)

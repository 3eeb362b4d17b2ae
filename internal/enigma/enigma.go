// Package enigma adapts AES-256-GCM and HKDF-SHA256 to the primitive.AEAD
// and primitive.KDF contracts. The AEAD uses an explicit, externally
// supplied 128-bit nonce rather than a self-generated one, since the key
// schedule derives the nonce deterministically per message.
package enigma

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/hossein1376/pqfsr/pkg/primitive"
)

const (
	base32alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

	// KeySize is the AEAD key length: 256 bits.
	KeySize = 32
	// NonceSize is the AEAD nonce length: 128 bits, matching the key
	// schedule's derived nonce.
	NonceSize = 16
	// TagSize is the AEAD authentication tag length: 128 bits.
	TagSize = 16
)

var (
	// ErrInvalidCiphertext is returned when a ciphertext is too short to
	// contain a tag, or fails authentication. It is also returned for a key
	// or nonce of the wrong size.
	ErrInvalidCiphertext = errors.New("enigma: ciphertext is not valid")
	hasher                = sha256.New
)

// AEAD implements primitive.AEAD using AES-256-GCM with a 16-byte nonce.
type AEAD struct{}

var _ primitive.AEAD = AEAD{}

// New returns an AES-256-GCM AEAD adapter.
func New() AEAD {
	return AEAD{}
}

func (AEAD) Seal(key, nonce, aad, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("enigma: %w: nonce size %d", ErrInvalidCiphertext, len(nonce))
	}
	return gcm.Seal(nil, nonce, plaintext, aad), nil
}

func (AEAD) Open(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("enigma: %w: nonce size %d", ErrInvalidCiphertext, len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("enigma: aead open: %w: %w", ErrInvalidCiphertext, err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("enigma: %w: key size %d", ErrInvalidCiphertext, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("enigma: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("enigma: new gcm: %w", err)
	}
	return gcm, nil
}

// KDF implements primitive.KDF using HKDF-SHA256.
type KDF struct{}

var _ primitive.KDF = KDF{}

// NewKDF returns an HKDF-SHA256 adapter.
func NewKDF() KDF {
	return KDF{}
}

func (KDF) Expand(secret, salt, info []byte, length int) ([]byte, error) {
	return Derive(secret, salt, info, length)
}

// Derive expands secret/salt/info into length bytes via HKDF-SHA256.
func Derive(secret, salt, info []byte, length int) ([]byte, error) {
	r := hkdf.New(hasher, secret, salt, info)
	d := make([]byte, length)
	if _, err := io.ReadFull(r, d); err != nil {
		return nil, fmt.Errorf("enigma: hkdf expand: %w", err)
	}
	return d, nil
}

// Text returns a random base32-alphabet string of length l, useful for
// semantic hints and test fixtures.
func Text(l int) string {
	src := make([]byte, l)
	_, _ = rand.Read(src)
	for i := range src {
		src[i] = base32alphabet[src[i]%32]
	}
	return string(src)
}

// Package primitive declares the small capability set every cryptographic
// operation in this module is expressed against: a post-quantum KEM, a
// signature scheme, an AEAD, a KDF, and a source of randomness. Nothing in
// the ratchet or session packages calls a concrete algorithm directly; they
// hold one of these interfaces, supplied at construction time.
package primitive

import "io"

// KEM is a post-quantum key-encapsulation mechanism.
type KEM interface {
	// GenerateKeyPair returns a fresh public/private keypair.
	GenerateKeyPair() (public, private []byte, err error)
	// Encapsulate produces a ciphertext and shared secret for the given
	// public key.
	Encapsulate(public []byte) (ciphertext, sharedSecret []byte, err error)
	// Decapsulate recovers the shared secret from a ciphertext using the
	// matching private key.
	Decapsulate(ciphertext, private []byte) (sharedSecret []byte, err error)
}

// Signer is a signature scheme used to authenticate handshake messages.
type Signer interface {
	GenerateKeyPair() (public, private []byte, err error)
	Sign(private, message []byte) (signature []byte, err error)
	Verify(public, message, signature []byte) bool
}

// AEAD is an authenticated-encryption-with-associated-data contract: a
// 256-bit key, a 128-bit nonce, and a 128-bit tag.
type AEAD interface {
	Seal(key, nonce, aad, plaintext []byte) ([]byte, error)
	Open(key, nonce, aad, ciphertext []byte) ([]byte, error)
}

// KDF expands keying material via HKDF-SHA256.
type KDF interface {
	Expand(secret, salt, info []byte, length int) ([]byte, error)
}

// RNG is a cryptographically secure randomness source; crypto/rand.Reader
// satisfies it directly.
type RNG interface {
	io.Reader
}

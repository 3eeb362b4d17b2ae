// Package schedule implements the deterministic key derivations shared by
// every ratchet: the root mix performed on a KEM pulse, the per-direction
// chain seed derived from a fresh root, and the per-message material
// (message key, nonce, semantic tag) derived from a chain key and counter.
//
// Every derivation here is pinned bit-exactly by the wire format it feeds,
// so the formulas use raw SHA-256 steps rather than a keyed construction
// wherever the design calls for one — substituting a different primitive
// would break interoperability with any other conforming implementation.
package schedule

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/hossein1376/pqfsr/pkg/primitive"
)

const (
	// KeySize is the length, in bytes, of root keys, chain keys, and
	// message keys.
	KeySize = 32
	// NonceSize is the length, in bytes, of a derived AEAD nonce.
	NonceSize = 16
	// TagSize is the length, in bytes, of a semantic tag.
	TagSize = 16
	// SemanticDigestSize is the length, in bytes, of a semantic digest.
	SemanticDigestSize = 32

	// DirectionA2B and DirectionB2A label the two per-direction chains.
	// The initiator sends on A2B and receives on B2A; the responder is
	// mirrored, so cross-paired chains always match.
	DirectionA2B = "CHAIN|A2B"
	DirectionB2A = "CHAIN|B2A"

	semanticHintPrefix = "PQ-FSR-sem"
)

// RootMix computes the new root key after a KEM pulse: SHA-256(prevRoot ‖
// sharedSecret ‖ combinedDigest). A nil or empty prevRoot is treated as 32
// zero bytes, matching the fresh-session case.
func RootMix(prevRoot, sharedSecret, combinedDigest []byte) []byte {
	base := prevRoot
	if len(base) == 0 {
		base = make([]byte, KeySize)
	}
	h := sha256.New()
	h.Write(base)
	h.Write(sharedSecret)
	h.Write(combinedDigest)
	return h.Sum(nil)
}

// ChainSeed derives a fresh per-direction chain key from the current root,
// via HKDF(ikm=root, salt=combinedDigest, info=directionLabel, L=32).
func ChainSeed(kdf primitive.KDF, root, combinedDigest []byte, directionLabel string) ([]byte, error) {
	seed, err := kdf.Expand(root, combinedDigest, []byte(directionLabel), KeySize)
	if err != nil {
		return nil, fmt.Errorf("schedule: chain seed: %w", err)
	}
	return seed, nil
}

// DeriveMaterial derives the message key, AEAD nonce, and next chain key
// from a chain key and message counter.
func DeriveMaterial(chainKey []byte, counter uint64) (messageKey, nextChain, nonce []byte) {
	base := messageBase(chainKey, counter)

	messageKey = sha256Sum(base, "MSG")
	nextChain = sha256Sum(base, "CHAIN")
	nonce = sha256Sum(base, "NONCE")[:NonceSize]
	return messageKey, nextChain, nonce
}

// SemanticTag computes the public, 16-byte tag binding a message index to
// the session's combined digest.
func SemanticTag(combinedDigest []byte, counter uint64) []byte {
	counterBytes := encodeCounter(counter)
	h := sha256.New()
	h.Write(combinedDigest)
	h.Write(counterBytes)
	h.Write([]byte("SEND"))
	return h.Sum(nil)[:TagSize]
}

// SemanticDigest computes SHA-256("PQ-FSR-sem" ‖ hint), the opaque binding
// digest for one endpoint's semantic hint.
func SemanticDigest(hint []byte) []byte {
	h := sha256.New()
	h.Write([]byte(semanticHintPrefix))
	h.Write(hint)
	return h.Sum(nil)
}

// CombinedDigest computes SHA-256(min(local,remote) ‖ max(local,remote)),
// the session-wide public binding value shared by both peers regardless of
// role.
func CombinedDigest(localDigest, remoteDigest []byte) []byte {
	lo, hi := localDigest, remoteDigest
	if bytesGreater(lo, hi) {
		lo, hi = hi, lo
	}
	h := sha256.New()
	h.Write(lo)
	h.Write(hi)
	return h.Sum(nil)
}

func messageBase(chainKey []byte, counter uint64) []byte {
	base := make([]byte, 0, len(chainKey)+8+len("SEND"))
	base = append(base, chainKey...)
	base = append(base, encodeCounter(counter)...)
	base = append(base, "SEND"...)
	return base
}

func sha256Sum(base []byte, suffix string) []byte {
	h := sha256.New()
	h.Write(base)
	h.Write([]byte(suffix))
	return h.Sum(nil)
}

func encodeCounter(counter uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, counter)
	return buf
}

func bytesGreater(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return len(a) > len(b)
}

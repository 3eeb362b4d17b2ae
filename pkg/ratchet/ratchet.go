// Package ratchet implements the double-ratchet core: a root chain driven
// by KEM pulses, per-direction symmetric chains, the skipped-message cache,
// and the Fresh/Initialized/Active/Failed state machine. Session owns one
// Ratchet per established handshake; Ratchet owns its State and the keys
// within it exclusively.
package ratchet

import (
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"github.com/hossein1376/pqfsr/pkg/packet"
	"github.com/hossein1376/pqfsr/pkg/primitive"
	"github.com/hossein1376/pqfsr/pkg/schedule"
	"github.com/hossein1376/pqfsr/pkg/strategy"
)

// Phase is a ratchet's lifecycle state.
type Phase int

const (
	// Fresh means no handshake material has been installed yet.
	Fresh Phase = iota
	// Initialized means a handshake completed and chain keys were
	// derived, but no message has been sent or received yet.
	Initialized
	// Active means at least one encrypt or decrypt has succeeded.
	Active
	// Failed is terminal: an invariant was violated and every
	// subsequent operation rejects with ErrSessionPoisoned.
	Failed
)

func (p Phase) String() string {
	switch p {
	case Fresh:
		return "Fresh"
	case Initialized:
		return "Initialized"
	case Active:
		return "Active"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Ratchet holds the double-ratchet state for one session direction pair
// and drives encrypt/decrypt against it. It is safe for concurrent use;
// all exported methods take an internal mutex.
type Ratchet struct {
	mu    sync.Mutex
	phase Phase
	state *State

	kem      primitive.KEM
	aead     primitive.AEAD
	kdf      primitive.KDF
	strategy strategy.Strategy

	lastPulse          time.Time
	messagesSincePulse uint64
	bytesSincePulse    uint64
}

// Deps bundles the primitive adapters and pulse strategy a Ratchet needs;
// all fields are required.
type Deps struct {
	KEM      primitive.KEM
	AEAD     primitive.AEAD
	KDF      primitive.KDF
	Strategy strategy.Strategy
}

// NewInitialized bootstraps a Ratchet in the Initialized phase from the
// material a completed handshake produces: the shared secret from the
// handshake's KEM exchange, the session's binding digests, the local
// ratchet keypair, and the peer's first ratchet public key.
func NewInitialized(
	deps Deps,
	isInitiator bool,
	sharedSecret []byte,
	combinedDigest, localDigest, remoteDigest []byte,
	localRatchetPrivate, localRatchetPublic, remoteRatchetPublic []byte,
	maxSkip int,
) (*Ratchet, error) {
	sendLabel, recvLabel := schedule.DirectionA2B, schedule.DirectionB2A
	if !isInitiator {
		sendLabel, recvLabel = schedule.DirectionB2A, schedule.DirectionA2B
	}

	rootKey := schedule.RootMix(nil, sharedSecret, combinedDigest)
	sendChain, err := schedule.ChainSeed(deps.KDF, rootKey, combinedDigest, sendLabel)
	if err != nil {
		return nil, fmt.Errorf("ratchet: derive send chain: %w", err)
	}
	recvChain, err := schedule.ChainSeed(deps.KDF, rootKey, combinedDigest, recvLabel)
	if err != nil {
		return nil, fmt.Errorf("ratchet: derive recv chain: %w", err)
	}

	state := &State{
		RootKey:             rootKey,
		SendChainKey:        sendChain,
		RecvChainKey:        recvChain,
		SendLabel:           sendLabel,
		RecvLabel:           recvLabel,
		LocalRatchetPrivate: copyBytes(localRatchetPrivate),
		LocalRatchetPublic:  copyBytes(localRatchetPublic),
		RemoteRatchetPublic: copyBytes(remoteRatchetPublic),
		CombinedDigest:      copyBytes(combinedDigest),
		LocalDigest:         copyBytes(localDigest),
		RemoteDigest:        copyBytes(remoteDigest),
		SkippedMessageKeys:  make(map[uint64]SkippedEntry),
		MaxSkip:             maxSkip,
	}

	return &Ratchet{
		phase:    Initialized,
		state:    state,
		kem:      deps.KEM,
		aead:     deps.AEAD,
		kdf:      deps.KDF,
		strategy: deps.Strategy,
	}, nil
}

// FromState restores a Ratchet directly from a previously exported State,
// entering the Active phase (the session already completed a handshake in
// a prior process).
func FromState(deps Deps, state *State) *Ratchet {
	return &Ratchet{
		phase:    Active,
		state:    state.Clone(),
		kem:      deps.KEM,
		aead:     deps.AEAD,
		kdf:      deps.KDF,
		strategy: deps.Strategy,
	}
}

// Phase reports the ratchet's current lifecycle phase.
func (r *Ratchet) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Snapshot returns a deep copy of the ratchet's current state, suitable
// for export. It does not mutate the ratchet.
func (r *Ratchet) Snapshot() *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

func (r *Ratchet) fail(cause error) error {
	r.phase = Failed
	return fmt.Errorf("ratchet: %w: %v", ErrSessionPoisoned, cause)
}

// Encrypt seals plaintext under the next message key in the send chain,
// performing a KEM pulse first if the configured strategy calls for one.
func (r *Ratchet) Encrypt(plaintext, associatedData []byte) (packet.Packet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase == Failed {
		return packet.Packet{}, ErrSessionPoisoned
	}
	if r.phase == Fresh || len(r.state.RemoteRatchetPublic) == 0 {
		return packet.Packet{}, ErrNotReady
	}

	header := packet.Header{Version: packet.CurrentVersion}

	doPulse := r.strategy.ShouldPulse(
		r.messagesSincePulse, r.bytesSincePulse, time.Since(r.lastPulse), len(plaintext),
	)
	if doPulse {
		if err := r.pulseSend(&header); err != nil {
			return packet.Packet{}, r.fail(err)
		}
	}
	// count is the chain index this message consumes, captured after any
	// pulse reset so it matches the chain key used for derive_material.
	header.Count = r.state.SendCount

	messageKey, nextChain, nonce := schedule.DeriveMaterial(r.state.SendChainKey, r.state.SendCount)
	header.SemanticTag = tagArray(schedule.SemanticTag(r.state.CombinedDigest, r.state.SendCount))

	aad := aadBinding(associatedData, header)
	ciphertext, err := r.aead.Seal(messageKey, nonce, aad, plaintext)
	wipe(messageKey)
	if err != nil {
		return packet.Packet{}, r.fail(err)
	}

	r.state.SendChainKey = nextChain
	r.state.SendCount++
	r.messagesSincePulse++
	r.bytesSincePulse += uint64(len(plaintext))
	r.phase = Active

	return packet.Packet{Header: header, Ciphertext: ciphertext}, nil
}

// pulseSend performs the sender's half of a KEM pulse: encapsulate against
// the peer's last-known ratchet public key, mix the root, rotate the local
// ratchet keypair, and re-derive both chain keys. header is filled in with
// the new ratchet_pub and kem_ciphertext.
func (r *Ratchet) pulseSend(header *packet.Header) error {
	ciphertext, sharedSecret, err := r.kem.Encapsulate(r.state.RemoteRatchetPublic)
	if err != nil {
		return fmt.Errorf("encapsulate: %w", err)
	}

	newRoot := schedule.RootMix(r.state.RootKey, sharedSecret, r.state.CombinedDigest)
	newPublic, newPrivate, err := r.kem.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generate ratchet keypair: %w", err)
	}

	sendChain, err := schedule.ChainSeed(r.kdf, newRoot, r.state.CombinedDigest, r.state.SendLabel)
	if err != nil {
		return fmt.Errorf("derive send chain: %w", err)
	}
	recvChain, err := schedule.ChainSeed(r.kdf, newRoot, r.state.CombinedDigest, r.state.RecvLabel)
	if err != nil {
		return fmt.Errorf("derive recv chain: %w", err)
	}

	wipe(r.state.RootKey)
	wipe(r.state.LocalRatchetPrivate)
	r.state.RootKey = newRoot
	r.state.LocalRatchetPrivate = newPrivate
	r.state.LocalRatchetPublic = newPublic
	r.state.SendChainKey = sendChain
	r.state.RecvChainKey = recvChain
	r.state.SendCount = 0
	r.state.RecvCount = 0
	r.state.clearSkipped()

	header.RatchetPub = copyBytes(newPublic)
	header.KEMCiphertext = copyBytes(ciphertext)

	r.lastPulse = time.Now()
	r.messagesSincePulse = 0
	r.bytesSincePulse = 0
	return nil
}

// Decrypt opens pkt, handling in-order, out-of-order (within the skipped
// cache bound), and KEM-pulse delivery.
func (r *Ratchet) Decrypt(pkt packet.Packet, associatedData []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase == Failed {
		return nil, ErrSessionPoisoned
	}
	if r.phase == Fresh {
		return nil, ErrNotReady
	}

	expectedTag := schedule.SemanticTag(r.state.CombinedDigest, pkt.Header.Count)
	if subtle.ConstantTimeCompare(expectedTag, pkt.Header.SemanticTag[:]) != 1 {
		return nil, ErrSemanticTagMismatch
	}

	if pkt.Header.IsPulse() {
		return r.decryptPulse(pkt, associatedData)
	}
	return r.decryptSymmetric(pkt, associatedData)
}

func (r *Ratchet) decryptPulse(pkt packet.Packet, associatedData []byte) ([]byte, error) {
	sharedSecret, err := r.kem.Decapsulate(pkt.Header.KEMCiphertext, r.state.LocalRatchetPrivate)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}

	newRoot := schedule.RootMix(r.state.RootKey, sharedSecret, r.state.CombinedDigest)
	sendChain, err := schedule.ChainSeed(r.kdf, newRoot, r.state.CombinedDigest, r.state.SendLabel)
	if err != nil {
		return nil, r.fail(err)
	}
	recvChain, err := schedule.ChainSeed(r.kdf, newRoot, r.state.CombinedDigest, r.state.RecvLabel)
	if err != nil {
		return nil, r.fail(err)
	}

	messageKey, nextChain, nonce := schedule.DeriveMaterial(recvChain, pkt.Header.Count)
	aad := aadBinding(associatedData, pkt.Header)
	plaintext, err := r.aead.Open(messageKey, nonce, aad, pkt.Ciphertext)
	wipe(messageKey)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}

	// Only commit the new chain epoch once authentication succeeds, so a
	// forged pulse packet cannot poison the session state.
	wipe(r.state.RootKey)
	r.state.RootKey = newRoot
	r.state.RemoteRatchetPublic = copyBytes(pkt.Header.RatchetPub)
	r.state.SendChainKey = sendChain
	r.state.RecvChainKey = nextChain
	r.state.SendCount = 0
	r.state.RecvCount = pkt.Header.Count + 1
	r.state.clearSkipped()
	r.phase = Active

	return plaintext, nil
}

func (r *Ratchet) decryptSymmetric(pkt packet.Packet, associatedData []byte) ([]byte, error) {
	index := pkt.Header.Count

	if index < r.state.RecvCount {
		entry, ok := r.state.takeSkipped(index)
		if !ok {
			return nil, ErrMessageAlreadyProcessed
		}
		aad := aadBinding(associatedData, pkt.Header)
		plaintext, err := r.aead.Open(entry.MessageKey, entry.Nonce, aad, pkt.Ciphertext)
		wipe(entry.MessageKey)
		if err != nil {
			return nil, ErrAuthenticationFailed
		}
		r.phase = Active
		return plaintext, nil
	}

	chainKey := r.state.RecvChainKey
	recvCount := r.state.RecvCount
	for recvCount < index {
		msk, nextChain, nonce := schedule.DeriveMaterial(chainKey, recvCount)
		r.state.storeSkipped(recvCount, msk, nonce)
		chainKey = nextChain
		recvCount++
	}
	messageKey, nextChain, nonce := schedule.DeriveMaterial(chainKey, index)

	// Advance before authenticating: a forged packet leaves recv_count
	// past index, so a retry of the same bytes fails as
	// MessageAlreadyProcessed rather than re-attempting AEAD.open.
	r.state.RecvChainKey = nextChain
	r.state.RecvCount = index + 1

	aad := aadBinding(associatedData, pkt.Header)
	plaintext, err := r.aead.Open(messageKey, nonce, aad, pkt.Ciphertext)
	wipe(messageKey)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}

	r.phase = Active
	return plaintext, nil
}

func aadBinding(associatedData []byte, header packet.Header) []byte {
	encoded := packet.EncodeHeader(header)
	aad := make([]byte, 0, len(associatedData)+len(encoded))
	aad = append(aad, associatedData...)
	aad = append(aad, encoded...)
	return aad
}

func tagArray(tag []byte) [packet.SemanticTagLen]byte {
	var out [packet.SemanticTagLen]byte
	copy(out[:], tag)
	return out
}

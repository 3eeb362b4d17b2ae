// Package session implements the handshake and session-lifecycle state
// machine described by the wider PQ-FSR core: initiator/responder roles,
// the three handshake operations, and the Session façade that exposes
// encrypt/decrypt, export/import, and packet pack/unpack on top of a
// pkg/ratchet.Ratchet once a handshake completes.
package session

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hossein1376/pqfsr/internal/enigma"
	"github.com/hossein1376/pqfsr/pkg/attest"
	"github.com/hossein1376/pqfsr/pkg/kem"
	"github.com/hossein1376/pqfsr/pkg/packet"
	"github.com/hossein1376/pqfsr/pkg/primitive"
	"github.com/hossein1376/pqfsr/pkg/ratchet"
	"github.com/hossein1376/pqfsr/pkg/replay"
	"github.com/hossein1376/pqfsr/pkg/schedule"
	"github.com/hossein1376/pqfsr/pkg/state"
	"github.com/hossein1376/pqfsr/pkg/strategy"
)

// Role identifies which side of the handshake a Session plays.
type Role int

const (
	Initiator Role = iota
	Responder
)

func (r Role) String() string {
	if r == Initiator {
		return "Initiator"
	}
	return "Responder"
}

// HandshakeState is the four-state handshake lifecycle spec §4.3 names,
// distinct from (and narrower than) the ratchet's own Fresh/Initialized/
// Active/Failed phase, which only begins once a handshake completes.
type HandshakeState int

const (
	HandshakeFresh HandshakeState = iota
	HandshakePending
	HandshakeActive
	HandshakeFailed
)

func (s HandshakeState) String() string {
	switch s {
	case HandshakeFresh:
		return "Fresh"
	case HandshakePending:
		return "Pending"
	case HandshakeActive:
		return "Active"
	case HandshakeFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// DefaultMaxSkip is SessionConfig's default bound on the skipped-message
// cache.
const DefaultMaxSkip = 50

// DefaultVersion is the only wire version this package currently speaks.
const DefaultVersion uint32 = 1

// Config bundles the capability set and version/skip policy a Session
// needs; every field is replaceable at construction time, satisfying the
// "no runtime reflection, config record instead" design note.
type Config struct {
	KEM      primitive.KEM
	Signer   primitive.Signer
	AEAD     primitive.AEAD
	KDF      primitive.KDF
	RNG      io.Reader
	Strategy strategy.Strategy

	Version    uint32
	MinVersion uint32
	MaxVersion uint32
	MaxSkip    int
}

// DefaultConfig wires the recommended primitives: ML-KEM-768, ML-DSA-65,
// AES-256-GCM/HKDF-SHA256, crypto/rand, and a balanced pulse strategy.
func DefaultConfig() Config {
	return Config{
		KEM:        kem.New(),
		Signer:     attest.New(),
		AEAD:       enigma.New(),
		KDF:        enigma.NewKDF(),
		RNG:        rand.Reader,
		Strategy:   strategy.NewAdaptiveStrategy(strategy.BalancedFlow),
		Version:    DefaultVersion,
		MinVersion: DefaultVersion,
		MaxVersion: DefaultVersion,
		MaxSkip:    DefaultMaxSkip,
	}
}

func (c Config) normalized() Config {
	if c.Version == 0 {
		c.Version = DefaultVersion
	}
	if c.MinVersion == 0 {
		c.MinVersion = c.Version
	}
	if c.MaxVersion == 0 {
		c.MaxVersion = c.Version
	}
	if c.MaxSkip <= 0 {
		c.MaxSkip = DefaultMaxSkip
	}
	if c.RNG == nil {
		c.RNG = rand.Reader
	}
	return c
}

func (c Config) ratchetDeps() ratchet.Deps {
	return ratchet.Deps{KEM: c.KEM, AEAD: c.AEAD, KDF: c.KDF, Strategy: c.Strategy}
}

// Session drives one side of a PQ-FSR handshake and, once active, the
// ratchet underneath it. It is safe for concurrent use; every exported
// method takes an internal mutex.
type Session struct {
	mu   sync.Mutex
	cfg  Config
	role Role

	handshakeState HandshakeState
	semanticHint   []byte
	localDigest    []byte

	// pending holds material generated at CreateHandshakeRequest and
	// consumed at FinalizeHandshake; it is nil once the handshake
	// completes or for a responder (whose handshake completes in one
	// round trip).
	pending *pendingHandshake

	ratchet *ratchet.Ratchet
}

type pendingHandshake struct {
	handshakeID    [handshakeIDSize]byte
	kemPublic      []byte
	kemPrivate     []byte
	ratchetPublic  []byte
	ratchetPrivate []byte
	sigPublic      []byte
	sigPrivate     []byte
}

// CreateInitiator returns a fresh Session that will initiate a handshake.
func CreateInitiator(semanticHint []byte, cfg Config) (*Session, error) {
	return newSession(Initiator, semanticHint, cfg)
}

// CreateResponder returns a fresh Session that will accept a handshake.
func CreateResponder(semanticHint []byte, cfg Config) (*Session, error) {
	return newSession(Responder, semanticHint, cfg)
}

func newSession(role Role, semanticHint []byte, cfg Config) (*Session, error) {
	cfg = cfg.normalized()
	if cfg.KEM == nil || cfg.Signer == nil || cfg.AEAD == nil || cfg.KDF == nil || cfg.Strategy == nil {
		return nil, fmt.Errorf("session: incomplete config")
	}
	return &Session{
		cfg:            cfg,
		role:           role,
		handshakeState: HandshakeFresh,
		semanticHint:   append([]byte(nil), semanticHint...),
		localDigest:    schedule.SemanticDigest(semanticHint),
	}, nil
}

// Role reports which side of the handshake this Session plays.
func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// HandshakeState reports the current handshake lifecycle state.
func (s *Session) HandshakeState() HandshakeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handshakeState
}

// IsReady reports whether the handshake finalized and the session has not
// failed.
func (s *Session) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handshakeState == HandshakeActive && s.ratchet != nil
}

func (s *Session) fail() error {
	s.handshakeState = HandshakeFailed
	return ErrSessionPoisoned
}

// CreateHandshakeRequest builds and signs the initiator's opening message.
// Valid only for an Initiator in the Fresh state; transitions to Pending.
func (s *Session) CreateHandshakeRequest() (*HandshakeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != Initiator {
		return nil, ErrWrongRole
	}
	if s.handshakeState != HandshakeFresh {
		return nil, ErrWrongState
	}

	kemPublic, kemPrivate, err := s.cfg.KEM.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("session: generate kem keypair: %w", err)
	}
	ratchetPublic, ratchetPrivate, err := s.cfg.KEM.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("session: generate ratchet keypair: %w", err)
	}
	sigPublic, sigPrivate, err := s.cfg.Signer.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("session: generate signature keypair: %w", err)
	}

	handshakeID, err := newHandshakeID(s.cfg.RNG)
	if err != nil {
		return nil, fmt.Errorf("session: generate handshake id: %w", err)
	}

	req := HandshakeRequest{
		Version:            s.cfg.Version,
		MinVersion:         s.cfg.MinVersion,
		MaxVersion:         s.cfg.MaxVersion,
		HandshakeID:        handshakeID,
		KEMPublic:          kemPublic,
		RatchetPublic:      ratchetPublic,
		SemanticDigest:     digestArray(s.localDigest),
		SignaturePublicKey: sigPublic,
	}
	sig, err := s.cfg.Signer.Sign(sigPrivate, signedRequestPayload(req))
	if err != nil {
		return nil, fmt.Errorf("session: sign request: %w", err)
	}
	req.Signature = sig

	s.pending = &pendingHandshake{
		handshakeID:    handshakeID,
		kemPublic:      kemPublic,
		kemPrivate:     kemPrivate,
		ratchetPublic:  ratchetPublic,
		ratchetPrivate: ratchetPrivate,
		sigPublic:      sigPublic,
		sigPrivate:     sigPrivate,
	}
	s.handshakeState = HandshakePending

	return &req, nil
}

// AcceptHandshake validates an incoming request, checks it against the
// process-wide replay cache, and produces a signed response. Valid only
// for a Responder in the Fresh state; transitions directly to Active.
func (s *Session) AcceptHandshake(req *HandshakeRequest) (*HandshakeResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != Responder {
		return nil, ErrWrongRole
	}
	if s.handshakeState != HandshakeFresh {
		return nil, ErrWrongState
	}
	if req.MaxVersion < s.cfg.MinVersion || req.MinVersion > s.cfg.MaxVersion {
		return nil, ErrVersionUnsupported
	}

	if err := replay.CheckAndInsert(req.HandshakeID[:]); err != nil {
		return nil, ErrHandshakeReplay
	}

	if !s.cfg.Signer.Verify(req.SignaturePublicKey, signedRequestPayload(*req), req.Signature) {
		return nil, ErrSignatureInvalid
	}

	kemCiphertext, sharedSecret, err := s.cfg.KEM.Encapsulate(req.KEMPublic)
	if err != nil {
		return nil, fmt.Errorf("session: encapsulate: %w", err)
	}

	ratchetPublic, ratchetPrivate, err := s.cfg.KEM.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("session: generate ratchet keypair: %w", err)
	}
	sigPublic, sigPrivate, err := s.cfg.Signer.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("session: generate signature keypair: %w", err)
	}

	remoteDigest := req.SemanticDigest[:]
	combinedDigest := schedule.CombinedDigest(s.localDigest, remoteDigest)

	resp := HandshakeResponse{
		Version:            s.cfg.Version,
		HandshakeID:        req.HandshakeID,
		KEMCiphertext:      kemCiphertext,
		RatchetPublic:      ratchetPublic,
		SemanticDigest:     digestArray(s.localDigest),
		SignaturePublicKey: sigPublic,
	}
	sig, err := s.cfg.Signer.Sign(sigPrivate, signedResponsePayload(resp))
	if err != nil {
		return nil, fmt.Errorf("session: sign response: %w", err)
	}
	resp.Signature = sig

	r, err := ratchet.NewInitialized(
		s.cfg.ratchetDeps(), false, sharedSecret, combinedDigest,
		s.localDigest, remoteDigest,
		ratchetPrivate, ratchetPublic, req.RatchetPublic, s.cfg.MaxSkip,
	)
	if err != nil {
		return nil, fmt.Errorf("session: bootstrap ratchet: %w", err)
	}

	s.ratchet = r
	s.handshakeState = HandshakeActive

	return &resp, nil
}

// FinalizeHandshake completes the initiator side using the responder's
// signed response. Valid only for an Initiator in the Pending state;
// transitions to Active.
func (s *Session) FinalizeHandshake(resp *HandshakeResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != Initiator {
		return ErrWrongRole
	}
	if s.handshakeState != HandshakePending {
		return ErrWrongState
	}
	if s.pending == nil {
		return s.fail()
	}
	if resp.HandshakeID != s.pending.handshakeID {
		return ErrHandshakeIDMismatch
	}
	if resp.Version < s.cfg.MinVersion || resp.Version > s.cfg.MaxVersion {
		return ErrVersionUnsupported
	}
	if !s.cfg.Signer.Verify(resp.SignaturePublicKey, signedResponsePayload(*resp), resp.Signature) {
		return ErrSignatureInvalid
	}

	sharedSecret, err := s.cfg.KEM.Decapsulate(resp.KEMCiphertext, s.pending.kemPrivate)
	if err != nil {
		return s.fail()
	}

	remoteDigest := resp.SemanticDigest[:]
	combinedDigest := schedule.CombinedDigest(s.localDigest, remoteDigest)

	r, err := ratchet.NewInitialized(
		s.cfg.ratchetDeps(), true, sharedSecret, combinedDigest,
		s.localDigest, remoteDigest,
		s.pending.ratchetPrivate, s.pending.ratchetPublic, resp.RatchetPublic, s.cfg.MaxSkip,
	)
	if err != nil {
		return fmt.Errorf("session: bootstrap ratchet: %w", err)
	}

	s.ratchet = r
	s.pending = nil
	s.handshakeState = HandshakeActive

	return nil
}

// Encrypt seals plaintext for the peer. Valid only once the handshake is
// Active.
func (s *Session) Encrypt(plaintext, associatedData []byte) (packet.Packet, error) {
	s.mu.Lock()
	r := s.ratchet
	ready := s.handshakeState == HandshakeActive
	s.mu.Unlock()

	if !ready || r == nil {
		return packet.Packet{}, ErrWrongState
	}
	return r.Encrypt(plaintext, associatedData)
}

// Decrypt opens pkt from the peer. Valid only once the handshake is
// Active.
func (s *Session) Decrypt(pkt packet.Packet, associatedData []byte) ([]byte, error) {
	s.mu.Lock()
	r := s.ratchet
	ready := s.handshakeState == HandshakeActive
	s.mu.Unlock()

	if !ready || r == nil {
		return nil, ErrWrongState
	}
	return r.Decrypt(pkt, associatedData)
}

// ExportState serializes the ratchet state plus role and semantic hint.
// binary selects the compact production encoding over the textual debug
// form.
func (s *Session) ExportState(binary bool) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ratchet == nil {
		return nil, ErrWrongState
	}
	snap := s.ratchet.Snapshot()
	return state.Export(snap, s.role == Initiator, s.semanticHint, binary)
}

// FromSerialized restores a Session from a blob produced by ExportState,
// auto-detecting the encoding. The restored session is immediately Active.
func FromSerialized(cfg Config, blob []byte) (*Session, error) {
	cfg = cfg.normalized()
	imported, err := state.Import(blob)
	if err != nil {
		return nil, fmt.Errorf("session: import state: %w", err)
	}

	role := Responder
	if imported.IsInitiator {
		role = Initiator
	}

	s := &Session{
		cfg:            cfg,
		role:           role,
		handshakeState: HandshakeActive,
		semanticHint:   imported.SemanticHint,
		localDigest:    imported.State.LocalDigest,
		ratchet:        ratchet.FromState(cfg.ratchetDeps(), imported.State),
	}
	return s, nil
}

// PackPacket serializes pkt into its wire form.
func PackPacket(pkt packet.Packet) ([]byte, error) {
	return packet.Encode(pkt)
}

// UnpackPacket parses a wire-format packet.
func UnpackPacket(blob []byte) (packet.Packet, error) {
	pkt, err := packet.Decode(blob)
	if errors.Is(err, packet.ErrUnsupportedVersion) {
		return pkt, fmt.Errorf("session: %w: %w", ErrVersionUnsupported, err)
	}
	return pkt, err
}

func newHandshakeID(rng io.Reader) ([handshakeIDSize]byte, error) {
	var id [handshakeIDSize]byte
	if _, err := io.ReadFull(rng, id[:12]); err != nil {
		return id, err
	}
	binary.BigEndian.PutUint32(id[12:], uint32(time.Now().Unix()))
	return id, nil
}

func digestArray(digest []byte) [32]byte {
	var out [32]byte
	copy(out[:], digest)
	return out
}

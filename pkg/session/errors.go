package session

import (
	"errors"

	"github.com/hossein1376/pqfsr/pkg/packet"
	"github.com/hossein1376/pqfsr/pkg/ratchet"
)

var (
	// ErrWrongRole is returned when an operation is attempted from the
	// wrong side of the handshake (e.g. a responder calling
	// CreateHandshakeRequest).
	ErrWrongRole = errors.New("session: wrong role")
	// ErrWrongState is returned when an operation is attempted outside
	// the handshake state it requires.
	ErrWrongState = errors.New("session: wrong state")
	// ErrHandshakeIDMismatch is returned when a response's handshake_id
	// does not match the request that produced it.
	ErrHandshakeIDMismatch = errors.New("session: handshake id mismatch")
	// ErrHandshakeReplay is returned when a handshake_id was already
	// seen within the replay cache's TTL.
	ErrHandshakeReplay = errors.New("session: handshake replayed")
	// ErrVersionUnsupported is returned when version ranges don't
	// overlap, or a decoded packet carries an unknown version.
	ErrVersionUnsupported = errors.New("session: unsupported version")
	// ErrSignatureInvalid is returned when a handshake signature fails
	// verification.
	ErrSignatureInvalid = errors.New("session: invalid signature")
)

// The remaining error kinds named in the error taxonomy are owned by the
// packages that raise them and re-exported here so callers interacting
// exclusively through Session can match every kind with errors.Is without
// importing pkg/packet or pkg/ratchet directly.
var (
	ErrMalformedPacket         = packet.ErrMalformedPacket
	ErrUnsupportedVersion      = packet.ErrUnsupportedVersion
	ErrNotReady                = ratchet.ErrNotReady
	ErrSemanticTagMismatch     = ratchet.ErrSemanticTagMismatch
	ErrAuthenticationFailed    = ratchet.ErrAuthenticationFailed
	ErrMessageAlreadyProcessed = ratchet.ErrMessageAlreadyProcessed
	ErrSessionPoisoned         = ratchet.ErrSessionPoisoned
)

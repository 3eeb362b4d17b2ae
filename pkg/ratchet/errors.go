package ratchet

import "errors"

var (
	// ErrNotReady is returned when encrypt/decrypt is attempted before
	// the ratchet has been initialized from a completed handshake.
	ErrNotReady = errors.New("ratchet: not ready")
	// ErrSemanticTagMismatch is returned when a packet's semantic tag
	// does not match the session's expected value for its index.
	ErrSemanticTagMismatch = errors.New("ratchet: semantic tag mismatch")
	// ErrAuthenticationFailed is returned when AEAD tag verification
	// fails.
	ErrAuthenticationFailed = errors.New("ratchet: authentication failed")
	// ErrMessageAlreadyProcessed is returned for an index that was
	// already consumed, or whose skipped-cache entry was evicted.
	ErrMessageAlreadyProcessed = errors.New("ratchet: message already processed")
	// ErrSessionPoisoned is returned once a ratchet has transitioned to
	// Failed; no further operations succeed.
	ErrSessionPoisoned = errors.New("ratchet: session poisoned")
)

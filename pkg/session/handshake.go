package session

import (
	"encoding/binary"
)

// handshakeIDSize is 12 random bytes plus a 4-byte big-endian Unix
// timestamp.
const handshakeIDSize = 16

// HandshakeRequest is the initiator's opening message.
type HandshakeRequest struct {
	Version            uint32
	MinVersion         uint32
	MaxVersion         uint32
	HandshakeID        [handshakeIDSize]byte
	KEMPublic          []byte
	RatchetPublic      []byte
	SemanticDigest     [32]byte
	SignaturePublicKey []byte
	Signature          []byte
}

// HandshakeResponse is the responder's reply to a HandshakeRequest.
type HandshakeResponse struct {
	Version            uint32
	HandshakeID        [handshakeIDSize]byte
	KEMCiphertext      []byte
	RatchetPublic      []byte
	SemanticDigest     [32]byte
	SignaturePublicKey []byte
	Signature          []byte
}

// signedRequestPayload is the canonical, deterministic, length-prefixed
// byte-wise concatenation of every HandshakeRequest field preceding its
// signature. Both parties must derive byte-identical output from the same
// field values for signatures to verify.
func signedRequestPayload(req HandshakeRequest) []byte {
	return canonicalConcat(
		be32(req.Version),
		be32(req.MinVersion),
		be32(req.MaxVersion),
		req.HandshakeID[:],
		req.KEMPublic,
		req.RatchetPublic,
		req.SemanticDigest[:],
		req.SignaturePublicKey,
	)
}

// signedResponsePayload mirrors signedRequestPayload for HandshakeResponse.
func signedResponsePayload(resp HandshakeResponse) []byte {
	return canonicalConcat(
		be32(resp.Version),
		resp.HandshakeID[:],
		resp.KEMCiphertext,
		resp.RatchetPublic,
		resp.SemanticDigest[:],
		resp.SignaturePublicKey,
	)
}

// canonicalConcat serializes fields as a fixed-order sequence of
// u32-length-prefixed byte strings, so no field boundary is ambiguous
// regardless of any field's own content.
func canonicalConcat(fields ...[]byte) []byte {
	size := 0
	for _, f := range fields {
		size += 4 + len(f)
	}
	buf := make([]byte, size)
	off := 0
	for _, f := range fields {
		binary.BigEndian.PutUint32(buf[off:], uint32(len(f)))
		off += 4
		off += copy(buf[off:], f)
	}
	return buf
}

func be32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return buf
}

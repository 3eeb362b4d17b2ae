// Package packet implements the bit-exact wire framing for ratchet
// messages: a fixed-order, length-prefixed, big-endian encoding with no
// self-description beyond field order. Encode and Decode are pure
// functions on byte buffers.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// CurrentVersion is the only wire version this package produces and
// accepts.
const CurrentVersion uint32 = 1

// Field length bounds; exceeding any of these on decode is a malformed
// packet, never a partial read.
const (
	MaxRatchetPubLen  = 8 * 1024
	MaxKEMCiphertext  = 16 * 1024
	MaxCiphertextLen  = 16 * 1024 * 1024
	SemanticTagLen    = 16
)

var (
	// ErrMalformedPacket is returned for truncated buffers or length
	// fields exceeding the bounds above.
	ErrMalformedPacket = errors.New("packet: malformed packet")
	// ErrUnsupportedVersion is returned when a decoded packet's version
	// field does not match CurrentVersion.
	ErrUnsupportedVersion = errors.New("packet: unsupported version")
)

// Header is the fixed portion of a packet preceding the ciphertext.
type Header struct {
	Version       uint32
	Count         uint64
	RatchetPub    []byte // present iff this packet caused a local pulse
	KEMCiphertext []byte // present iff this packet caused a local pulse
	SemanticTag   [SemanticTagLen]byte
}

// Packet is a header plus its AEAD-sealed ciphertext (tag included).
type Packet struct {
	Header     Header
	Ciphertext []byte
}

// IsPulse reports whether this packet carried a KEM pulse.
func (h Header) IsPulse() bool {
	return len(h.KEMCiphertext) > 0
}

// EncodeHeader serializes just the header fields (version, count,
// ratchet_pub, kem_ciphertext, semantic_tag) with no ciphertext section.
// It is used as the associated-data binding for AEAD sealing, so a
// tampered header is caught by authentication even though it travels
// alongside, not inside, the ciphertext.
func EncodeHeader(h Header) []byte {
	size := 4 + 8 + 2 + len(h.RatchetPub) + 4 + len(h.KEMCiphertext) + SemanticTagLen
	buf := make([]byte, size)
	off := 0

	binary.BigEndian.PutUint32(buf[off:], h.Version)
	off += 4
	binary.BigEndian.PutUint64(buf[off:], h.Count)
	off += 8
	binary.BigEndian.PutUint16(buf[off:], uint16(len(h.RatchetPub)))
	off += 2
	off += copy(buf[off:], h.RatchetPub)
	binary.BigEndian.PutUint32(buf[off:], uint32(len(h.KEMCiphertext)))
	off += 4
	off += copy(buf[off:], h.KEMCiphertext)
	copy(buf[off:], h.SemanticTag[:])

	return buf
}

// Encode serializes p into the wire format described in the package
// documentation.
func Encode(p Packet) ([]byte, error) {
	if len(p.Header.RatchetPub) > MaxRatchetPubLen {
		return nil, fmt.Errorf("packet: %w: ratchet_pub too long", ErrMalformedPacket)
	}
	if len(p.Header.KEMCiphertext) > MaxKEMCiphertext {
		return nil, fmt.Errorf("packet: %w: kem_ciphertext too long", ErrMalformedPacket)
	}
	if len(p.Ciphertext) > MaxCiphertextLen {
		return nil, fmt.Errorf("packet: %w: ciphertext too long", ErrMalformedPacket)
	}

	size := 4 + 8 + 2 + len(p.Header.RatchetPub) + 4 + len(p.Header.KEMCiphertext) +
		SemanticTagLen + 4 + len(p.Ciphertext)
	buf := make([]byte, size)
	off := 0

	binary.BigEndian.PutUint32(buf[off:], p.Header.Version)
	off += 4
	binary.BigEndian.PutUint64(buf[off:], p.Header.Count)
	off += 8
	binary.BigEndian.PutUint16(buf[off:], uint16(len(p.Header.RatchetPub)))
	off += 2
	off += copy(buf[off:], p.Header.RatchetPub)
	binary.BigEndian.PutUint32(buf[off:], uint32(len(p.Header.KEMCiphertext)))
	off += 4
	off += copy(buf[off:], p.Header.KEMCiphertext)
	off += copy(buf[off:], p.Header.SemanticTag[:])
	binary.BigEndian.PutUint32(buf[off:], uint32(len(p.Ciphertext)))
	off += 4
	off += copy(buf[off:], p.Ciphertext)

	return buf, nil
}

// Decode parses buf into a Packet. It returns ErrMalformedPacket for
// truncated input or out-of-bound lengths, and ErrUnsupportedVersion for a
// version other than CurrentVersion.
func Decode(buf []byte) (Packet, error) {
	var p Packet

	r := reader{buf: buf}
	version, err := r.uint32()
	if err != nil {
		return p, err
	}
	if version != CurrentVersion {
		return p, fmt.Errorf("packet: %w: %d", ErrUnsupportedVersion, version)
	}
	p.Header.Version = version

	count, err := r.uint64()
	if err != nil {
		return p, err
	}
	p.Header.Count = count

	ratchetPub, err := r.lenPrefixed16(MaxRatchetPubLen)
	if err != nil {
		return p, err
	}
	p.Header.RatchetPub = ratchetPub

	kemCiphertext, err := r.lenPrefixed32(MaxKEMCiphertext)
	if err != nil {
		return p, err
	}
	p.Header.KEMCiphertext = kemCiphertext

	tag, err := r.fixed(SemanticTagLen)
	if err != nil {
		return p, err
	}
	copy(p.Header.SemanticTag[:], tag)

	ciphertext, err := r.lenPrefixed32(MaxCiphertextLen)
	if err != nil {
		return p, err
	}
	p.Ciphertext = ciphertext

	if !r.exhausted() {
		return p, fmt.Errorf("packet: %w: trailing bytes", ErrMalformedPacket)
	}

	return p, nil
}

// reader is a minimal bounds-checked cursor over a byte buffer.
type reader struct {
	buf []byte
	off int
}

func (r *reader) exhausted() bool {
	return r.off == len(r.buf)
}

func (r *reader) need(n int) error {
	if len(r.buf)-r.off < n {
		return fmt.Errorf("packet: %w: truncated", ErrMalformedPacket)
	}
	return nil
}

func (r *reader) uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

func (r *reader) fixed(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.buf[r.off : r.off+n]
	r.off += n
	return v, nil
}

func (r *reader) lenPrefixed16(max int) ([]byte, error) {
	if err := r.need(2); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint16(r.buf[r.off:]))
	r.off += 2
	if n > max {
		return nil, fmt.Errorf("packet: %w: field exceeds bound", ErrMalformedPacket)
	}
	return r.fixed(n)
}

func (r *reader) lenPrefixed32(max int) ([]byte, error) {
	if err := r.need(4); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint32(r.buf[r.off:]))
	r.off += 4
	if n < 0 || n > max {
		return nil, fmt.Errorf("packet: %w: field exceeds bound", ErrMalformedPacket)
	}
	return r.fixed(n)
}

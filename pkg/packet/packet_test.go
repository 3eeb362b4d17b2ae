package packet_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hossein1376/pqfsr/pkg/packet"
)

func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	r := require.New(t)
	var tag [packet.SemanticTagLen]byte
	copy(tag[:], randomBytes(packet.SemanticTagLen))

	p := packet.Packet{
		Header: packet.Header{
			Version:       packet.CurrentVersion,
			Count:         42,
			RatchetPub:    randomBytes(32),
			KEMCiphertext: randomBytes(1088),
			SemanticTag:   tag,
		},
		Ciphertext: randomBytes(256),
	}

	buf, err := packet.Encode(p)
	r.NoError(err)

	decoded, err := packet.Decode(buf)
	r.NoError(err)
	r.Equal(p, decoded)
}

func TestEncodeDecodeRoundTripSymmetricStep(t *testing.T) {
	r := require.New(t)
	var tag [packet.SemanticTagLen]byte
	copy(tag[:], randomBytes(packet.SemanticTagLen))

	p := packet.Packet{
		Header: packet.Header{
			Version:     packet.CurrentVersion,
			Count:       7,
			SemanticTag: tag,
		},
		Ciphertext: randomBytes(64),
	}
	r.False(p.Header.IsPulse())

	buf, err := packet.Encode(p)
	r.NoError(err)
	decoded, err := packet.Decode(buf)
	r.NoError(err)
	r.Equal(p, decoded)
	r.False(decoded.Header.IsPulse())
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	r := require.New(t)
	var tag [packet.SemanticTagLen]byte

	p := packet.Packet{
		Header: packet.Header{Version: 99, SemanticTag: tag},
	}
	buf, err := packet.Encode(p)
	r.NoError(err)

	_, err = packet.Decode(buf)
	r.ErrorIs(err, packet.ErrUnsupportedVersion)
}

func TestDecodeRejectsTruncatedBuffer(t *testing.T) {
	r := require.New(t)
	var tag [packet.SemanticTagLen]byte
	p := packet.Packet{
		Header:     packet.Header{Version: packet.CurrentVersion, SemanticTag: tag},
		Ciphertext: randomBytes(32),
	}
	buf, err := packet.Encode(p)
	r.NoError(err)

	_, err = packet.Decode(buf[:len(buf)-10])
	r.ErrorIs(err, packet.ErrMalformedPacket)
}

func TestDecodeRejectsOverBoundLength(t *testing.T) {
	r := require.New(t)
	p := packet.Packet{
		Header: packet.Header{
			Version:    packet.CurrentVersion,
			RatchetPub: randomBytes(32),
		},
	}
	buf, err := packet.Encode(p)
	r.NoError(err)

	// Corrupt the ratchet_pub length prefix to exceed the bound.
	buf[12] = 0xFF
	buf[13] = 0xFF

	_, err = packet.Decode(buf)
	r.ErrorIs(err, packet.ErrMalformedPacket)
}

func TestEncodeRejectsOverBoundCiphertext(t *testing.T) {
	r := require.New(t)
	p := packet.Packet{
		Header:     packet.Header{Version: packet.CurrentVersion},
		Ciphertext: make([]byte, packet.MaxCiphertextLen+1),
	}
	_, err := packet.Encode(p)
	r.ErrorIs(err, packet.ErrMalformedPacket)
}

package ratchet_test

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hossein1376/pqfsr/internal/enigma"
	"github.com/hossein1376/pqfsr/pkg/kem"
	"github.com/hossein1376/pqfsr/pkg/packet"
	"github.com/hossein1376/pqfsr/pkg/ratchet"
	"github.com/hossein1376/pqfsr/pkg/strategy"
)

func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// funcStrategy adapts a plain function to strategy.Strategy so tests can
// force or forbid pulses deterministically.
type funcStrategy func(messagesSincePulse, bytesSincePulse uint64, sinceLastPulse time.Duration, plaintextLen int) bool

func (f funcStrategy) ShouldPulse(a uint64, b uint64, c time.Duration, d int) bool {
	return f(a, b, c, d)
}

func neverPulse() strategy.Strategy {
	return funcStrategy(func(uint64, uint64, time.Duration, int) bool { return false })
}

func alwaysPulseAfter(n int) strategy.Strategy {
	calls := 0
	return funcStrategy(func(uint64, uint64, time.Duration, int) bool {
		calls++
		return calls > n
	})
}

func deps() ratchet.Deps {
	return ratchet.Deps{
		KEM:      kem.New(),
		AEAD:     enigma.New(),
		KDF:      enigma.NewKDF(),
		Strategy: neverPulse(),
	}
}

func depsWithStrategy(s strategy.Strategy) ratchet.Deps {
	d := deps()
	d.Strategy = s
	return d
}

// newPair builds two Ratchets already past a simulated handshake: a shared
// secret and combined digest as a real handshake would produce, cross-wired
// remote ratchet public keys, and opposite initiator roles.
func newPair(t *testing.T, maxSkip int, aliceDeps, bobDeps ratchet.Deps) (alice, bob *ratchet.Ratchet) {
	t.Helper()
	r := require.New(t)
	kemAdapter := kem.New()

	alicePub, alicePriv, err := kemAdapter.GenerateKeyPair()
	r.NoError(err)
	bobPub, bobPriv, err := kemAdapter.GenerateKeyPair()
	r.NoError(err)

	sharedSecret := randomBytes(32)
	combinedDigest := randomBytes(32)
	localDigestA, remoteDigestA := randomBytes(32), randomBytes(32)

	alice, err = ratchet.NewInitialized(
		aliceDeps, true, sharedSecret, combinedDigest, localDigestA, remoteDigestA,
		alicePriv, alicePub, bobPub, maxSkip,
	)
	r.NoError(err)

	bob, err = ratchet.NewInitialized(
		bobDeps, false, sharedSecret, combinedDigest, remoteDigestA, localDigestA,
		bobPriv, bobPub, alicePub, maxSkip,
	)
	r.NoError(err)

	return alice, bob
}

func TestBasicRoundTrip(t *testing.T) {
	r := require.New(t)
	alice, bob := newPair(t, 10, deps(), deps())

	pkt, err := alice.Encrypt([]byte("hello pq"), nil)
	r.NoError(err)
	plaintext, err := bob.Decrypt(pkt, nil)
	r.NoError(err)
	r.Equal([]byte("hello pq"), plaintext)

	reply, err := bob.Encrypt([]byte("roger"), nil)
	r.NoError(err)
	plaintext, err = alice.Decrypt(reply, nil)
	r.NoError(err)
	r.Equal([]byte("roger"), plaintext)
}

func TestOutOfOrderWithinBound(t *testing.T) {
	r := require.New(t)
	alice, bob := newPair(t, 10, deps(), deps())

	var packets []packet.Packet
	for i := 0; i < 5; i++ {
		pkt, err := alice.Encrypt([]byte{byte(i)}, nil)
		r.NoError(err)
		packets = append(packets, pkt)
	}

	for i := 4; i >= 0; i-- {
		plaintext, err := bob.Decrypt(packets[i], nil)
		r.NoError(err)
		r.Equal([]byte{byte(i)}, plaintext)
	}
}

func TestCacheOverflowEvictsOldestIndex(t *testing.T) {
	r := require.New(t)
	alice, bob := newPair(t, 5, deps(), deps())

	var packets []packet.Packet
	for i := 0; i < 10; i++ {
		pkt, err := alice.Encrypt([]byte{byte(i)}, nil)
		r.NoError(err)
		packets = append(packets, pkt)
	}

	for i := 6; i <= 9; i++ {
		plaintext, err := bob.Decrypt(packets[i], nil)
		r.NoError(err)
		r.Equal([]byte{byte(i)}, plaintext)
	}

	_, err := bob.Decrypt(packets[0], nil)
	r.ErrorIs(err, ratchet.ErrMessageAlreadyProcessed)

	plaintext, err := bob.Decrypt(packets[1], nil)
	r.NoError(err)
	r.Equal([]byte{1}, plaintext)
}

func TestForwardSecrecyAfterPulse(t *testing.T) {
	r := require.New(t)
	pulseImmediately := alwaysPulseAfter(0)
	alice, bob := newPair(t, 10, deps(), depsWithStrategy(pulseImmediately))

	pkt, err := alice.Encrypt([]byte("small"), nil)
	r.NoError(err)
	_, err = bob.Decrypt(pkt, nil)
	r.NoError(err)

	oldBob := bob.Snapshot()
	oldBobRatchet := ratchet.FromState(deps(), oldBob)

	large := make([]byte, 1024)
	pulsePkt, err := bob.Encrypt(large, nil)
	r.NoError(err)
	r.True(pulsePkt.Header.IsPulse())
	_, err = alice.Decrypt(pulsePkt, nil)
	r.NoError(err)

	newMsg, err := alice.Encrypt([]byte("after pulse"), nil)
	r.NoError(err)

	_, err = oldBobRatchet.Decrypt(newMsg, nil)
	r.Error(err)
}

func TestTamperedCiphertextFailsAuthentication(t *testing.T) {
	r := require.New(t)
	alice, bob := newPair(t, 10, deps(), deps())

	pkt, err := alice.Encrypt([]byte("hello"), nil)
	r.NoError(err)
	pkt.Ciphertext[len(pkt.Ciphertext)-1] ^= 0xFF

	_, err = bob.Decrypt(pkt, nil)
	r.ErrorIs(err, ratchet.ErrAuthenticationFailed)
}

func TestTamperedCountFailsSemanticTag(t *testing.T) {
	r := require.New(t)
	alice, bob := newPair(t, 10, deps(), deps())

	pkt, err := alice.Encrypt([]byte("hello"), nil)
	r.NoError(err)
	pkt.Header.Count = 999999

	_, err = bob.Decrypt(pkt, nil)
	r.ErrorIs(err, ratchet.ErrSemanticTagMismatch)
}

func TestEncryptBeforeReadyFails(t *testing.T) {
	r := require.New(t)
	alice, err := ratchet.NewInitialized(
		deps(), true, randomBytes(32), randomBytes(32), randomBytes(32), randomBytes(32),
		randomBytes(32), randomBytes(32), nil, 10,
	)
	r.NoError(err)

	_, err = alice.Encrypt([]byte("x"), nil)
	r.ErrorIs(err, ratchet.ErrNotReady)
}

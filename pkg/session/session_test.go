package session_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hossein1376/pqfsr/pkg/replay"
	"github.com/hossein1376/pqfsr/pkg/session"
)

func newHandshakenPair(t *testing.T) (alice, bob *session.Session) {
	t.Helper()
	r := require.New(t)

	alice, err := session.CreateInitiator([]byte("alice"), session.DefaultConfig())
	r.NoError(err)
	bob, err = session.CreateResponder([]byte("bob"), session.DefaultConfig())
	r.NoError(err)

	req, err := alice.CreateHandshakeRequest()
	r.NoError(err)

	resp, err := bob.AcceptHandshake(req)
	r.NoError(err)
	r.True(bob.IsReady())

	r.NoError(alice.FinalizeHandshake(resp))
	r.True(alice.IsReady())

	return alice, bob
}

func TestBasicRoundTrip(t *testing.T) {
	r := require.New(t)
	alice, bob := newHandshakenPair(t)

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

func TestHandshakeReplayRejectedAcrossResponders(t *testing.T) {
	replay.ResetGlobalCache()
	defer replay.ResetGlobalCache()

	r := require.New(t)
	alice, err := session.CreateInitiator([]byte("alice"), session.DefaultConfig())
	r.NoError(err)
	req, err := alice.CreateHandshakeRequest()
	r.NoError(err)

	bob1, err := session.CreateResponder([]byte("bob1"), session.DefaultConfig())
	r.NoError(err)
	_, err = bob1.AcceptHandshake(req)
	r.NoError(err)

	bob2, err := session.CreateResponder([]byte("bob2"), session.DefaultConfig())
	r.NoError(err)
	_, err = bob2.AcceptHandshake(req)
	r.ErrorIs(err, session.ErrHandshakeReplay)
}

func TestRolesAreEnforced(t *testing.T) {
	r := require.New(t)
	alice, err := session.CreateInitiator([]byte("alice"), session.DefaultConfig())
	r.NoError(err)
	bob, err := session.CreateResponder([]byte("bob"), session.DefaultConfig())
	r.NoError(err)

	req, err := alice.CreateHandshakeRequest()
	r.NoError(err)

	_, err = alice.AcceptHandshake(req)
	r.ErrorIs(err, session.ErrWrongRole)

	resp, err := bob.AcceptHandshake(req)
	r.NoError(err)
	err = bob.FinalizeHandshake(resp)
	r.ErrorIs(err, session.ErrWrongRole)
}

func TestHandshakeIDMismatchRejected(t *testing.T) {
	r := require.New(t)
	alice, bob := prepareHandshake(t)

	req, err := alice.CreateHandshakeRequest()
	r.NoError(err)
	resp, err := bob.AcceptHandshake(req)
	r.NoError(err)

	resp.HandshakeID[0] ^= 0xFF
	err = alice.FinalizeHandshake(resp)
	r.ErrorIs(err, session.ErrHandshakeIDMismatch)
}

func prepareHandshake(t *testing.T) (alice, bob *session.Session) {
	t.Helper()
	r := require.New(t)
	var err error
	alice, err = session.CreateInitiator([]byte("alice"), session.DefaultConfig())
	r.NoError(err)
	bob, err = session.CreateResponder([]byte("bob"), session.DefaultConfig())
	r.NoError(err)
	return alice, bob
}

func TestExportImportStateRoundTrip(t *testing.T) {
	r := require.New(t)
	alice, bob := newHandshakenPair(t)

	pkt, err := alice.Encrypt([]byte("one"), nil)
	r.NoError(err)
	_, err = bob.Decrypt(pkt, nil)
	r.NoError(err)

	blob, err := bob.ExportState(true)
	r.NoError(err)

	resumed, err := session.FromSerialized(session.DefaultConfig(), blob)
	r.NoError(err)
	r.True(resumed.IsReady())

	next, err := alice.Encrypt([]byte("two"), nil)
	r.NoError(err)
	plaintext, err := resumed.Decrypt(next, nil)
	r.NoError(err)
	r.Equal([]byte("two"), plaintext)
}

func TestPackUnpackPacketRoundTrip(t *testing.T) {
	r := require.New(t)
	alice, _ := newHandshakenPair(t)

	pkt, err := alice.Encrypt([]byte("pack me"), nil)
	r.NoError(err)

	blob, err := session.PackPacket(pkt)
	r.NoError(err)
	decoded, err := session.UnpackPacket(blob)
	r.NoError(err)
	r.Equal(pkt, decoded)
}

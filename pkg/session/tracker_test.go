package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hossein1376/pqfsr/pkg/session"
)

func TestHandshakeTrackerStartGetComplete(t *testing.T) {
	r := require.New(t)
	tracker := session.NewHandshakeTracker(time.Minute)

	alice, err := session.CreateInitiator([]byte("alice"), session.DefaultConfig())
	r.NoError(err)
	req, err := alice.CreateHandshakeRequest()
	r.NoError(err)

	bob, err := session.CreateResponder([]byte("bob"), session.DefaultConfig())
	r.NoError(err)
	tracker.StartHandshake(req.SignaturePublicKey, bob)
	r.Equal(1, tracker.Active())

	found, ok := tracker.GetHandshake(req.SignaturePublicKey)
	r.True(ok)
	r.Same(bob, found)

	tracker.CompleteHandshake(req.SignaturePublicKey)
	r.Equal(0, tracker.Active())

	_, ok = tracker.GetHandshake(req.SignaturePublicKey)
	r.False(ok)
}

func TestHandshakeTrackerCleanupKeepsFreshEntries(t *testing.T) {
	r := require.New(t)
	tracker := session.NewHandshakeTracker(-1) // falls back to 5m, use CleanupExpired directly

	bob, err := session.CreateResponder([]byte("bob"), session.DefaultConfig())
	r.NoError(err)
	tracker.StartHandshake([]byte("initiator-key"), bob)
	r.Equal(1, tracker.Active())
	r.Equal(0, tracker.CleanupExpired())
}

package replay_test

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hossein1376/pqfsr/pkg/replay"
)

func randomID() []byte {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

func TestCheckAndInsertRejectsDuplicate(t *testing.T) {
	r := require.New(t)
	c := replay.NewCache(replay.DefaultTTL, replay.DefaultMaxEntries)
	id := randomID()
	now := time.Now()

	r.NoError(c.CheckAndInsert(id, now))
	r.ErrorIs(c.CheckAndInsert(id, now.Add(time.Second)), replay.ErrReplayed)
}

func TestCheckAndInsertAllowsAfterTTL(t *testing.T) {
	r := require.New(t)
	c := replay.NewCache(10*time.Second, replay.DefaultMaxEntries)
	id := randomID()
	now := time.Now()

	r.NoError(c.CheckAndInsert(id, now))
	r.NoError(c.CheckAndInsert(id, now.Add(11*time.Second)))
}

func TestCheckAndInsertEvictsOldestOnCap(t *testing.T) {
	r := require.New(t)
	c := replay.NewCache(time.Hour, 2)
	now := time.Now()

	first := randomID()
	second := randomID()
	third := randomID()

	r.NoError(c.CheckAndInsert(first, now))
	r.NoError(c.CheckAndInsert(second, now.Add(time.Second)))
	r.Equal(2, c.Len())

	r.NoError(c.CheckAndInsert(third, now.Add(2*time.Second)))
	r.Equal(2, c.Len())

	// first should have been evicted to make room for third.
	r.NoError(c.CheckAndInsert(first, now.Add(3*time.Second)))
}

func TestGlobalCacheResets(t *testing.T) {
	r := require.New(t)
	defer replay.ResetGlobalCache()

	id := randomID()
	r.NoError(replay.CheckAndInsert(id))
	r.ErrorIs(replay.CheckAndInsert(id), replay.ErrReplayed)

	replay.ResetGlobalCache()
	r.NoError(replay.CheckAndInsert(id))
}

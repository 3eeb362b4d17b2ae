package ratchet

import "sort"

// SkippedEntry is a pre-derived (message_key, nonce) pair awaiting a
// late-arriving message at a given index.
type SkippedEntry struct {
	MessageKey []byte
	Nonce      []byte
}

// State holds everything a ratchet needs to resume: the root and
// per-direction chain keys, the local KEM keypair, the peer's last-known
// KEM public key, the session's binding digests, and the skipped-message
// cache. It is intentionally a plain struct so pkg/state can export and
// restore it without reaching into Ratchet internals.
type State struct {
	RootKey      []byte
	SendChainKey []byte
	RecvChainKey []byte
	SendLabel    string
	RecvLabel    string
	SendCount    uint64
	RecvCount    uint64

	LocalRatchetPrivate []byte
	LocalRatchetPublic  []byte
	RemoteRatchetPublic []byte

	CombinedDigest []byte
	LocalDigest    []byte
	RemoteDigest   []byte

	SkippedMessageKeys map[uint64]SkippedEntry
	MaxSkip            int
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	clone := &State{
		RootKey:             copyBytes(s.RootKey),
		SendChainKey:        copyBytes(s.SendChainKey),
		RecvChainKey:        copyBytes(s.RecvChainKey),
		SendLabel:           s.SendLabel,
		RecvLabel:           s.RecvLabel,
		SendCount:           s.SendCount,
		RecvCount:           s.RecvCount,
		LocalRatchetPrivate: copyBytes(s.LocalRatchetPrivate),
		LocalRatchetPublic:  copyBytes(s.LocalRatchetPublic),
		RemoteRatchetPublic: copyBytes(s.RemoteRatchetPublic),
		CombinedDigest:      copyBytes(s.CombinedDigest),
		LocalDigest:         copyBytes(s.LocalDigest),
		RemoteDigest:        copyBytes(s.RemoteDigest),
		MaxSkip:             s.MaxSkip,
		SkippedMessageKeys:  make(map[uint64]SkippedEntry, len(s.SkippedMessageKeys)),
	}
	for idx, entry := range s.SkippedMessageKeys {
		clone.SkippedMessageKeys[idx] = SkippedEntry{
			MessageKey: copyBytes(entry.MessageKey),
			Nonce:      copyBytes(entry.Nonce),
		}
	}
	return clone
}

// storeSkipped inserts (index → key, nonce) honoring the max_skip bound:
// when full, the entry with the smallest index is evicted and wiped before
// the new one is inserted, regardless of insertion order.
func (s *State) storeSkipped(index uint64, messageKey, nonce []byte) {
	if s.MaxSkip > 0 && len(s.SkippedMessageKeys) >= s.MaxSkip {
		s.evictOldestLocked()
	}
	s.SkippedMessageKeys[index] = SkippedEntry{MessageKey: messageKey, Nonce: nonce}
}

func (s *State) evictOldestLocked() {
	if len(s.SkippedMessageKeys) == 0 {
		return
	}
	indexes := make([]uint64, 0, len(s.SkippedMessageKeys))
	for idx := range s.SkippedMessageKeys {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
	oldest := indexes[0]
	if entry, ok := s.SkippedMessageKeys[oldest]; ok {
		wipe(entry.MessageKey)
		wipe(entry.Nonce)
	}
	delete(s.SkippedMessageKeys, oldest)
}

// takeSkipped removes and returns the skipped entry at index, if any.
func (s *State) takeSkipped(index uint64) (SkippedEntry, bool) {
	entry, ok := s.SkippedMessageKeys[index]
	if ok {
		delete(s.SkippedMessageKeys, index)
	}
	return entry, ok
}

// clearSkipped wipes and empties the skipped cache; called on a KEM pulse
// since skipped entries are bound to their chain epoch.
func (s *State) clearSkipped() {
	for idx, entry := range s.SkippedMessageKeys {
		wipe(entry.MessageKey)
		wipe(entry.Nonce)
		delete(s.SkippedMessageKeys, idx)
	}
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// wipe overwrites b in place with zeros. Used on key material that is
// being dropped, evicted, or consumed.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

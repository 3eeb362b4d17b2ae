package state_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hossein1376/pqfsr/pkg/ratchet"
	"github.com/hossein1376/pqfsr/pkg/state"
)

func sampleState() *ratchet.State {
	return &ratchet.State{
		RootKey:             []byte("root-key-32-bytes-of-filler!!!!"),
		SendChainKey:        []byte("send-chain-key-32-bytes-filler!"),
		RecvChainKey:        []byte("recv-chain-key-32-bytes-filler!"),
		SendLabel:           "CHAIN|A2B",
		RecvLabel:           "CHAIN|B2A",
		SendCount:           3,
		RecvCount:           1,
		LocalRatchetPrivate: []byte("local-private-key-material"),
		LocalRatchetPublic:  []byte("local-public-key-material"),
		RemoteRatchetPublic: []byte("remote-public-key-material"),
		CombinedDigest:      []byte("combined-digest-32-bytes-filler"),
		LocalDigest:         []byte("local-digest-32-bytes-filler!!!"),
		RemoteDigest:        []byte("remote-digest-32-bytes-filler!!"),
		SkippedMessageKeys: map[uint64]ratchet.SkippedEntry{
			2: {MessageKey: []byte("skipped-key-2"), Nonce: []byte("nonce-2")},
			0: {MessageKey: []byte("skipped-key-0"), Nonce: []byte("nonce-0")},
		},
		MaxSkip: 50,
	}
}

func TestExportImportBinaryRoundTrip(t *testing.T) {
	r := require.New(t)
	st := sampleState()

	blob, err := state.Export(st, true, []byte("hint"), true)
	r.NoError(err)
	r.False(state.IsTextual(blob))

	imported, err := state.Import(blob)
	r.NoError(err)
	r.True(imported.IsInitiator)
	r.Equal([]byte("hint"), imported.SemanticHint)
	r.Equal(st.RootKey, imported.State.RootKey)
	r.Equal(st.SendChainKey, imported.State.SendChainKey)
	r.Equal(st.RecvChainKey, imported.State.RecvChainKey)
	r.Equal(st.SendCount, imported.State.SendCount)
	r.Equal(st.RecvCount, imported.State.RecvCount)
	r.Equal(st.MaxSkip, imported.State.MaxSkip)
	r.Len(imported.State.SkippedMessageKeys, 2)
	r.Equal([]byte("skipped-key-0"), imported.State.SkippedMessageKeys[0].MessageKey)
	r.Equal([]byte("skipped-key-2"), imported.State.SkippedMessageKeys[2].MessageKey)
}

func TestExportImportTextualRoundTrip(t *testing.T) {
	r := require.New(t)
	st := sampleState()

	blob, err := state.Export(st, false, []byte("hint"), false)
	r.NoError(err)
	r.True(state.IsTextual(blob))
	r.Contains(string(blob), "\"schema_version\"")
	r.Contains(string(blob), "\"root_key\"")

	imported, err := state.Import(blob)
	r.NoError(err)
	r.False(imported.IsInitiator)
	r.Equal(st.RootKey, imported.State.RootKey)
	r.Equal(st.SendLabel, imported.State.SendLabel)
	r.Len(imported.State.SkippedMessageKeys, 2)
}

func TestImportRejectsUnsupportedSchema(t *testing.T) {
	r := require.New(t)
	blob := []byte(`{"schema_version":99,"is_initiator":true,"semantic_hint":"","root_key":"","send_chain_key":"","recv_chain_key":"","send_label":"","recv_label":"","send_count":0,"recv_count":0,"local_ratchet_private":"","local_ratchet_public":"","remote_ratchet_public":"","combined_digest":"","local_digest":"","remote_digest":"","skipped_keys":[],"max_skip":0}`)

	_, err := state.Import(blob)
	r.ErrorIs(err, state.ErrUnsupportedSchema)
}

func TestImportRejectsEmptyBlob(t *testing.T) {
	r := require.New(t)
	_, err := state.Import(nil)
	r.ErrorIs(err, state.ErrMalformed)
}

func TestImportRejectsGarbageBinary(t *testing.T) {
	r := require.New(t)
	_, err := state.Import([]byte{0x01, 0x02, 0x03, 0xFF, 0xFF})
	r.Error(err)
}

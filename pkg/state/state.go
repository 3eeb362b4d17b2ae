// Package state implements versioned export and import of a ratchet's
// session state, in two encodings: a compact binary form (CBOR, integer
// keys, production default) and a human-readable textual form (JSON, hex
// string byte fields, for debugging). Import auto-detects the encoding
// from the blob's first byte.
package state

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"github.com/hossein1376/pqfsr/pkg/ratchet"
)

// SchemaVersion is the only export schema this package currently produces
// or accepts. Readers reject any other value.
const SchemaVersion = 1

// textualPrefix is the first byte of every textual (JSON) export; any
// other leading byte is treated as binary.
const textualPrefix = '{'

var (
	// ErrUnsupportedSchema is returned when a blob's schema_version
	// field does not match SchemaVersion.
	ErrUnsupportedSchema = errors.New("state: unsupported schema version")
	// ErrMalformed is returned for a blob that cannot be parsed as
	// either encoding.
	ErrMalformed = errors.New("state: malformed state blob")
)

// skippedRecord is one (index, message_key, nonce) triple, sorted by index
// on export so the encoding is deterministic.
type skippedRecord struct {
	Index      uint64 `cbor:"1,keyasint" json:"index"`
	MessageKey []byte `cbor:"2,keyasint" json:"message_key"`
	Nonce      []byte `cbor:"3,keyasint" json:"nonce"`
}

// record is the binary (CBOR) wire shape: raw bytes, integer-keyed map.
type record struct {
	SchemaVersion uint32 `cbor:"1,keyasint"`
	IsInitiator   bool   `cbor:"2,keyasint"`
	SemanticHint  []byte `cbor:"3,keyasint"`

	RootKey      []byte `cbor:"4,keyasint"`
	SendChainKey []byte `cbor:"5,keyasint"`
	RecvChainKey []byte `cbor:"6,keyasint"`
	SendLabel    string `cbor:"7,keyasint"`
	RecvLabel    string `cbor:"8,keyasint"`
	SendCount    uint64 `cbor:"9,keyasint"`
	RecvCount    uint64 `cbor:"10,keyasint"`

	LocalRatchetPrivate []byte `cbor:"11,keyasint"`
	LocalRatchetPublic  []byte `cbor:"12,keyasint"`
	RemoteRatchetPublic []byte `cbor:"13,keyasint"`

	CombinedDigest []byte `cbor:"14,keyasint"`
	LocalDigest    []byte `cbor:"15,keyasint"`
	RemoteDigest   []byte `cbor:"16,keyasint"`

	SkippedKeys []skippedRecord `cbor:"17,keyasint"`
	MaxSkip     int             `cbor:"18,keyasint"`
}

// textualRecord mirrors record field-for-field but with hex-string byte
// fields, for the debug encoding.
type textualRecord struct {
	SchemaVersion uint32 `json:"schema_version"`
	IsInitiator   bool   `json:"is_initiator"`
	SemanticHint  string `json:"semantic_hint"`

	RootKey      string `json:"root_key"`
	SendChainKey string `json:"send_chain_key"`
	RecvChainKey string `json:"recv_chain_key"`
	SendLabel    string `json:"send_label"`
	RecvLabel    string `json:"recv_label"`
	SendCount    uint64 `json:"send_count"`
	RecvCount    uint64 `json:"recv_count"`

	LocalRatchetPrivate string `json:"local_ratchet_private"`
	LocalRatchetPublic  string `json:"local_ratchet_public"`
	RemoteRatchetPublic string `json:"remote_ratchet_public"`

	CombinedDigest string `json:"combined_digest"`
	LocalDigest    string `json:"local_digest"`
	RemoteDigest   string `json:"remote_digest"`

	SkippedKeys []textualSkippedRecord `json:"skipped_keys"`
	MaxSkip     int                    `json:"max_skip"`
}

type textualSkippedRecord struct {
	Index      uint64 `json:"index"`
	MessageKey string `json:"message_key"`
	Nonce      string `json:"nonce"`
}

// Export serializes a ratchet's state (plus the role and semantic hint
// Session owns) into a versioned blob. binary selects the production CBOR
// encoding; set it false for the human-readable debug encoding.
func Export(st *ratchet.State, isInitiator bool, semanticHint []byte, binary bool) ([]byte, error) {
	rec := toRecord(st, isInitiator, semanticHint)
	if binary {
		data, err := cbor.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("state: cbor marshal: %w", err)
		}
		return data, nil
	}
	data, err := json.Marshal(toTextual(rec))
	if err != nil {
		return nil, fmt.Errorf("state: json marshal: %w", err)
	}
	return data, nil
}

// Imported is the result of decoding an exported blob: the restored
// ratchet state plus the role and semantic hint it was exported with.
type Imported struct {
	State        *ratchet.State
	IsInitiator  bool
	SemanticHint []byte
}

// Import auto-detects the encoding (first byte 0x7B → textual, else
// binary) and restores the state it describes.
func Import(blob []byte) (*Imported, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("state: %w: empty blob", ErrMalformed)
	}

	var rec record
	if blob[0] == textualPrefix {
		var tr textualRecord
		if err := json.Unmarshal(blob, &tr); err != nil {
			return nil, fmt.Errorf("state: %w: %v", ErrMalformed, err)
		}
		r, err := fromTextual(tr)
		if err != nil {
			return nil, err
		}
		rec = r
	} else {
		if err := cbor.Unmarshal(blob, &rec); err != nil {
			return nil, fmt.Errorf("state: %w: %v", ErrMalformed, err)
		}
	}

	if rec.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("state: %w: %d", ErrUnsupportedSchema, rec.SchemaVersion)
	}

	return &Imported{
		State:        fromRecord(rec),
		IsInitiator:  rec.IsInitiator,
		SemanticHint: rec.SemanticHint,
	}, nil
}

func toRecord(st *ratchet.State, isInitiator bool, semanticHint []byte) record {
	indexes := make([]uint64, 0, len(st.SkippedMessageKeys))
	for idx := range st.SkippedMessageKeys {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	skipped := make([]skippedRecord, 0, len(indexes))
	for _, idx := range indexes {
		entry := st.SkippedMessageKeys[idx]
		skipped = append(skipped, skippedRecord{
			Index:      idx,
			MessageKey: entry.MessageKey,
			Nonce:      entry.Nonce,
		})
	}

	return record{
		SchemaVersion:       SchemaVersion,
		IsInitiator:         isInitiator,
		SemanticHint:        semanticHint,
		RootKey:             st.RootKey,
		SendChainKey:        st.SendChainKey,
		RecvChainKey:        st.RecvChainKey,
		SendLabel:           st.SendLabel,
		RecvLabel:           st.RecvLabel,
		SendCount:           st.SendCount,
		RecvCount:           st.RecvCount,
		LocalRatchetPrivate: st.LocalRatchetPrivate,
		LocalRatchetPublic:  st.LocalRatchetPublic,
		RemoteRatchetPublic: st.RemoteRatchetPublic,
		CombinedDigest:      st.CombinedDigest,
		LocalDigest:         st.LocalDigest,
		RemoteDigest:        st.RemoteDigest,
		SkippedKeys:         skipped,
		MaxSkip:             st.MaxSkip,
	}
}

func fromRecord(rec record) *ratchet.State {
	skipped := make(map[uint64]ratchet.SkippedEntry, len(rec.SkippedKeys))
	for _, s := range rec.SkippedKeys {
		skipped[s.Index] = ratchet.SkippedEntry{MessageKey: s.MessageKey, Nonce: s.Nonce}
	}
	return &ratchet.State{
		RootKey:             rec.RootKey,
		SendChainKey:        rec.SendChainKey,
		RecvChainKey:        rec.RecvChainKey,
		SendLabel:           rec.SendLabel,
		RecvLabel:           rec.RecvLabel,
		SendCount:           rec.SendCount,
		RecvCount:           rec.RecvCount,
		LocalRatchetPrivate: rec.LocalRatchetPrivate,
		LocalRatchetPublic:  rec.LocalRatchetPublic,
		RemoteRatchetPublic: rec.RemoteRatchetPublic,
		CombinedDigest:      rec.CombinedDigest,
		LocalDigest:         rec.LocalDigest,
		RemoteDigest:        rec.RemoteDigest,
		SkippedMessageKeys:  skipped,
		MaxSkip:             rec.MaxSkip,
	}
}

func toTextual(rec record) textualRecord {
	skipped := make([]textualSkippedRecord, len(rec.SkippedKeys))
	for i, s := range rec.SkippedKeys {
		skipped[i] = textualSkippedRecord{
			Index:      s.Index,
			MessageKey: hex.EncodeToString(s.MessageKey),
			Nonce:      hex.EncodeToString(s.Nonce),
		}
	}
	return textualRecord{
		SchemaVersion:       rec.SchemaVersion,
		IsInitiator:         rec.IsInitiator,
		SemanticHint:        hex.EncodeToString(rec.SemanticHint),
		RootKey:             hex.EncodeToString(rec.RootKey),
		SendChainKey:        hex.EncodeToString(rec.SendChainKey),
		RecvChainKey:        hex.EncodeToString(rec.RecvChainKey),
		SendLabel:           rec.SendLabel,
		RecvLabel:           rec.RecvLabel,
		SendCount:           rec.SendCount,
		RecvCount:           rec.RecvCount,
		LocalRatchetPrivate: hex.EncodeToString(rec.LocalRatchetPrivate),
		LocalRatchetPublic:  hex.EncodeToString(rec.LocalRatchetPublic),
		RemoteRatchetPublic: hex.EncodeToString(rec.RemoteRatchetPublic),
		CombinedDigest:      hex.EncodeToString(rec.CombinedDigest),
		LocalDigest:         hex.EncodeToString(rec.LocalDigest),
		RemoteDigest:        hex.EncodeToString(rec.RemoteDigest),
		SkippedKeys:         skipped,
		MaxSkip:             rec.MaxSkip,
	}
}

func fromTextual(tr textualRecord) (record, error) {
	skipped := make([]skippedRecord, len(tr.SkippedKeys))
	for i, s := range tr.SkippedKeys {
		key, err := hex.DecodeString(s.MessageKey)
		if err != nil {
			return record{}, fmt.Errorf("state: %w: message_key: %v", ErrMalformed, err)
		}
		nonce, err := hex.DecodeString(s.Nonce)
		if err != nil {
			return record{}, fmt.Errorf("state: %w: nonce: %v", ErrMalformed, err)
		}
		skipped[i] = skippedRecord{Index: s.Index, MessageKey: key, Nonce: nonce}
	}

	decode := func(field, value string) ([]byte, error) {
		b, err := hex.DecodeString(value)
		if err != nil {
			return nil, fmt.Errorf("state: %w: %s: %v", ErrMalformed, field, err)
		}
		return b, nil
	}

	semanticHint, err := decode("semantic_hint", tr.SemanticHint)
	if err != nil {
		return record{}, err
	}
	rootKey, err := decode("root_key", tr.RootKey)
	if err != nil {
		return record{}, err
	}
	sendChain, err := decode("send_chain_key", tr.SendChainKey)
	if err != nil {
		return record{}, err
	}
	recvChain, err := decode("recv_chain_key", tr.RecvChainKey)
	if err != nil {
		return record{}, err
	}
	localPriv, err := decode("local_ratchet_private", tr.LocalRatchetPrivate)
	if err != nil {
		return record{}, err
	}
	localPub, err := decode("local_ratchet_public", tr.LocalRatchetPublic)
	if err != nil {
		return record{}, err
	}
	remotePub, err := decode("remote_ratchet_public", tr.RemoteRatchetPublic)
	if err != nil {
		return record{}, err
	}
	combined, err := decode("combined_digest", tr.CombinedDigest)
	if err != nil {
		return record{}, err
	}
	localDigest, err := decode("local_digest", tr.LocalDigest)
	if err != nil {
		return record{}, err
	}
	remoteDigest, err := decode("remote_digest", tr.RemoteDigest)
	if err != nil {
		return record{}, err
	}

	return record{
		SchemaVersion:       tr.SchemaVersion,
		IsInitiator:         tr.IsInitiator,
		SemanticHint:        semanticHint,
		RootKey:             rootKey,
		SendChainKey:        sendChain,
		RecvChainKey:        recvChain,
		SendLabel:           tr.SendLabel,
		RecvLabel:           tr.RecvLabel,
		SendCount:           tr.SendCount,
		RecvCount:           tr.RecvCount,
		LocalRatchetPrivate: localPriv,
		LocalRatchetPublic:  localPub,
		RemoteRatchetPublic: remotePub,
		CombinedDigest:      combined,
		LocalDigest:         localDigest,
		RemoteDigest:        remoteDigest,
		SkippedKeys:         skipped,
		MaxSkip:             tr.MaxSkip,
	}, nil
}

// IsTextual reports whether blob is the textual (debug) encoding, without
// fully parsing it.
func IsTextual(blob []byte) bool {
	return len(blob) > 0 && blob[0] == textualPrefix
}

// Package keycodec encodes the MVCC layer's logical key namespace into
// order-preserving byte strings for storage in an ordered byte-keyed engine.
//
// Every encoded key begins with a one-byte tag identifying which family it
// belongs to (NextVersion, TxnActive, TxnActiveSnapshot, TxnWrite, Version,
// Unversioned). Variable-length byte strings embedded in a key - user keys,
// mostly - are escaped so that a 0x00 byte inside the string can never be
// mistaken for the terminator that marks where the string ends and the next
// field begins. Without that, a user key containing the raw terminator bytes
// could forge the boundary between itself and a following field, corrupting
// both decoding and sort order. Fixed-width fields (the version counter) are
// encoded big-endian, which is already order-preserving and needs no escape.
package keycodec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrInvalidKey is returned when a byte string cannot be decoded as a
// well-formed encoded key.
var ErrInvalidKey = errors.New("keycodec: invalid encoded key")

// Kind identifies which key family an encoded key belongs to.
type Kind byte

const (
	KindNextVersion Kind = iota
	KindTxnActive
	KindTxnActiveSnapshot
	KindTxnWrite
	KindVersion
	KindUnversioned
)

func (k Kind) String() string {
	switch k {
	case KindNextVersion:
		return "NextVersion"
	case KindTxnActive:
		return "TxnActive"
	case KindTxnActiveSnapshot:
		return "TxnActiveSnapshot"
	case KindTxnWrite:
		return "TxnWrite"
	case KindVersion:
		return "Version"
	case KindUnversioned:
		return "Unversioned"
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}

// Key is a decoded logical MVCC key. Only the fields relevant to Kind are
// populated; callers must check Kind before reading Version or UserKey.
type Key struct {
	Kind    Kind
	Version uint64
	UserKey []byte
}

const (
	escByte  byte = 0x00
	escFF    byte = 0xff
	termByte byte = 0x00
)

// escapeBytes encodes b so that it is self-delimiting: every 0x00 byte is
// doubled into 0x00 0xff, and the whole thing is terminated with 0x00 0x00.
// The scheme preserves lexicographic order: an escaped 0x00 byte (0x00 0xff)
// always sorts after the 0x00 0x00 terminator, so a string sorts before
// every longer string it is a prefix of.
func escapeBytes(b []byte) []byte {
	out := make([]byte, 0, len(b)+2)
	for _, c := range b {
		if c == escByte {
			out = append(out, escByte, escFF)
		} else {
			out = append(out, c)
		}
	}
	out = append(out, termByte, termByte)
	return out
}

// escapePrefix is like escapeBytes but omits the terminator, producing a
// byte string that is a true prefix of escapeBytes(b) and of the encoding
// of any key whose corresponding field starts with b. It is used to build
// scan-prefix bounds, never stored as a key itself.
func escapePrefix(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c == escByte {
			out = append(out, escByte, escFF)
		} else {
			out = append(out, c)
		}
	}
	return out
}

// unescapeBytes reads one escaped, terminated byte string from the front of
// buf and returns the decoded value along with the remaining bytes.
func unescapeBytes(buf []byte) (value, rest []byte, err error) {
	var out []byte
	i := 0
	for i < len(buf) {
		if buf[i] != escByte {
			out = append(out, buf[i])
			i++
			continue
		}
		if i+1 >= len(buf) {
			return nil, nil, ErrInvalidKey
		}
		switch buf[i+1] {
		case escFF:
			out = append(out, escByte)
			i += 2
		case termByte:
			return out, buf[i+2:], nil
		default:
			return nil, nil, ErrInvalidKey
		}
	}
	return nil, nil, ErrInvalidKey
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, ErrInvalidKey
	}
	return binary.BigEndian.Uint64(buf[:8]), buf[8:], nil
}

// EncodeNextVersion encodes the singleton key holding the next version to
// allocate.
func EncodeNextVersion() []byte {
	return []byte{byte(KindNextVersion)}
}

// EncodeTxnActive encodes the marker key recording that version v has an
// open transaction.
func EncodeTxnActive(v uint64) []byte {
	buf := make([]byte, 0, 9)
	buf = append(buf, byte(KindTxnActive))
	buf = append(buf, encodeUint64(v)...)
	return buf
}

// PrefixTxnActive encodes the scan-prefix bound matching every TxnActive
// key, used to recompute the active-transaction set.
func PrefixTxnActive() []byte {
	return []byte{byte(KindTxnActive)}
}

// EncodeTxnActiveSnapshot encodes the key storing the frozen active-set
// snapshot taken when version v began.
func EncodeTxnActiveSnapshot(v uint64) []byte {
	buf := make([]byte, 0, 9)
	buf = append(buf, byte(KindTxnActiveSnapshot))
	buf = append(buf, encodeUint64(v)...)
	return buf
}

// EncodeTxnWrite encodes a record of version v having written userKey, used
// to discover a transaction's write set on rollback.
func EncodeTxnWrite(v uint64, userKey []byte) []byte {
	buf := make([]byte, 0, 9+len(userKey)+2)
	buf = append(buf, byte(KindTxnWrite))
	buf = append(buf, encodeUint64(v)...)
	buf = append(buf, escapeBytes(userKey)...)
	return buf
}

// PrefixTxnWrite encodes the scan-prefix bound matching every TxnWrite key
// for version v.
func PrefixTxnWrite(v uint64) []byte {
	buf := make([]byte, 0, 9)
	buf = append(buf, byte(KindTxnWrite))
	buf = append(buf, encodeUint64(v)...)
	return buf
}

// EncodeVersion encodes a versioned value of userKey written at version v.
func EncodeVersion(userKey []byte, v uint64) []byte {
	buf := make([]byte, 0, 1+len(userKey)+2+8)
	buf = append(buf, byte(KindVersion))
	buf = append(buf, escapeBytes(userKey)...)
	buf = append(buf, encodeUint64(v)...)
	return buf
}

// PrefixVersion encodes the scan-prefix bound matching every Version key,
// across all versions, whose user key starts with userKey. The string
// terminator is left off, so keys longer than userKey match as well.
func PrefixVersion(userKey []byte) []byte {
	buf := make([]byte, 0, 1+len(userKey))
	buf = append(buf, byte(KindVersion))
	buf = append(buf, escapePrefix(userKey)...)
	return buf
}

// EncodeUnversioned encodes an unversioned, non-transactional key.
func EncodeUnversioned(userKey []byte) []byte {
	buf := make([]byte, 0, 1+len(userKey)+2)
	buf = append(buf, byte(KindUnversioned))
	buf = append(buf, escapeBytes(userKey)...)
	return buf
}

// PrefixUnversioned encodes the scan-prefix bound matching every
// Unversioned key.
func PrefixUnversioned() []byte {
	return []byte{byte(KindUnversioned)}
}

// Decode parses an encoded key back into its logical form.
func Decode(buf []byte) (Key, error) {
	if len(buf) == 0 {
		return Key{}, ErrInvalidKey
	}
	kind := Kind(buf[0])
	rest := buf[1:]

	switch kind {
	case KindNextVersion:
		if len(rest) != 0 {
			return Key{}, ErrInvalidKey
		}
		return Key{Kind: kind}, nil

	case KindTxnActive, KindTxnActiveSnapshot:
		v, rest, err := decodeUint64(rest)
		if err != nil {
			return Key{}, err
		}
		if len(rest) != 0 {
			return Key{}, ErrInvalidKey
		}
		return Key{Kind: kind, Version: v}, nil

	case KindTxnWrite:
		v, rest, err := decodeUint64(rest)
		if err != nil {
			return Key{}, err
		}
		userKey, rest, err := unescapeBytes(rest)
		if err != nil {
			return Key{}, err
		}
		if len(rest) != 0 {
			return Key{}, ErrInvalidKey
		}
		return Key{Kind: kind, Version: v, UserKey: userKey}, nil

	case KindVersion:
		userKey, rest, err := unescapeBytes(rest)
		if err != nil {
			return Key{}, err
		}
		v, rest, err := decodeUint64(rest)
		if err != nil {
			return Key{}, err
		}
		if len(rest) != 0 {
			return Key{}, ErrInvalidKey
		}
		return Key{Kind: kind, Version: v, UserKey: userKey}, nil

	case KindUnversioned:
		userKey, rest, err := unescapeBytes(rest)
		if err != nil {
			return Key{}, err
		}
		if len(rest) != 0 {
			return Key{}, ErrInvalidKey
		}
		return Key{Kind: kind, UserKey: userKey}, nil

	default:
		return Key{}, fmt.Errorf("%w: unknown kind %d", ErrInvalidKey, buf[0])
	}
}

// HasPrefix reports whether key starts with the given scan-prefix bound, as
// produced by one of the Prefix* functions.
func HasPrefix(key, prefix []byte) bool {
	return bytes.HasPrefix(key, prefix)
}

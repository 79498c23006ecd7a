package mvcc

import (
	"encoding/binary"
	"sort"
)

// encodeOptionalValue encodes a versioned write. A nil value represents a
// deletion tombstone and is encoded distinctly from an empty-but-present
// value, so that the two are never confused on decode.
func encodeOptionalValue(value []byte) []byte {
	if value == nil {
		return []byte{0}
	}
	buf := make([]byte, 0, len(value)+1)
	buf = append(buf, 1)
	buf = append(buf, value...)
	return buf
}

// decodeOptionalValue is the inverse of encodeOptionalValue. It returns a
// nil slice for a tombstone.
func decodeOptionalValue(buf []byte) ([]byte, error) {
	if len(buf) == 0 {
		return nil, internalErrorf("empty versioned value record")
	}
	switch buf[0] {
	case 0:
		return nil, nil
	case 1:
		value := make([]byte, len(buf)-1)
		copy(value, buf[1:])
		return value, nil
	default:
		return nil, internalErrorf("unrecognized versioned value tag %d", buf[0])
	}
}

// encodeVersionSet encodes a set of versions as a sorted run of fixed-width
// big-endian u64s, for persisting an active-transaction snapshot.
func encodeVersionSet(versions map[uint64]struct{}) []byte {
	buf := make([]byte, 0, len(versions)*8)
	for _, v := range sortedVersions(versions) {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v)
		buf = append(buf, b[:]...)
	}
	return buf
}

// decodeVersionSet is the inverse of encodeVersionSet.
func decodeVersionSet(buf []byte) (map[uint64]struct{}, error) {
	if len(buf)%8 != 0 {
		return nil, internalErrorf("malformed active-set snapshot of length %d", len(buf))
	}
	set := make(map[uint64]struct{}, len(buf)/8)
	for i := 0; i < len(buf); i += 8 {
		set[binary.BigEndian.Uint64(buf[i:i+8])] = struct{}{}
	}
	return set, nil
}

func sortedVersions(versions map[uint64]struct{}) []uint64 {
	out := make([]uint64, 0, len(versions))
	for v := range versions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

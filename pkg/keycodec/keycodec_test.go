package keycodec

import (
	"bytes"
	"sort"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Key{
		{Kind: KindNextVersion},
		{Kind: KindTxnActive, Version: 7},
		{Kind: KindTxnActiveSnapshot, Version: 42},
		{Kind: KindTxnWrite, Version: 3, UserKey: []byte("foo")},
		{Kind: KindVersion, Version: 9, UserKey: []byte("bar")},
		{Kind: KindUnversioned, UserKey: []byte("baz")},
		{Kind: KindVersion, Version: 1, UserKey: []byte{}},
		{Kind: KindVersion, Version: 1, UserKey: []byte{0x00, 0x01, 0x00}},
	}

	for _, c := range cases {
		var encoded []byte
		switch c.Kind {
		case KindNextVersion:
			encoded = EncodeNextVersion()
		case KindTxnActive:
			encoded = EncodeTxnActive(c.Version)
		case KindTxnActiveSnapshot:
			encoded = EncodeTxnActiveSnapshot(c.Version)
		case KindTxnWrite:
			encoded = EncodeTxnWrite(c.Version, c.UserKey)
		case KindVersion:
			encoded = EncodeVersion(c.UserKey, c.Version)
		case KindUnversioned:
			encoded = EncodeUnversioned(c.UserKey)
		}

		got, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(%v) failed: %v", encoded, err)
		}
		if got.Kind != c.Kind || got.Version != c.Version || !bytes.Equal(got.UserKey, c.UserKey) {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, c)
		}
	}
}

// A naive scheme that concatenates a raw user key with a fixed-width
// version would let a user key ending in bytes that look like a version
// suffix forge the boundary between the two fields. The escape-plus-
// terminator scheme must reject that: two distinct (userKey, version) pairs
// can never collide on the same encoded bytes.
func TestVersionKeyCannotForgeBoundary(t *testing.T) {
	a := EncodeVersion([]byte("ab"), 1)
	b := EncodeVersion([]byte("a"), 0x0100000000000001)

	if bytes.Equal(a, b) {
		t.Fatalf("distinct (userKey, version) pairs produced identical encodings")
	}

	da, err := Decode(a)
	if err != nil {
		t.Fatalf("decode a: %v", err)
	}
	db, err := Decode(b)
	if err != nil {
		t.Fatalf("decode b: %v", err)
	}
	if bytes.Equal(da.UserKey, db.UserKey) && da.Version == db.Version {
		t.Fatalf("decoding collapsed distinct keys: %+v vs %+v", da, db)
	}
}

func TestVersionOrderingMatchesVersionNumberOrder(t *testing.T) {
	key := []byte("samekey")
	var encoded [][]byte
	for _, v := range []uint64{5, 1, 100, 2, 0} {
		encoded = append(encoded, EncodeVersion(key, v))
	}
	sort.Slice(encoded, func(i, j int) bool { return bytes.Compare(encoded[i], encoded[j]) < 0 })

	var versions []uint64
	for _, e := range encoded {
		k, err := Decode(e)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		versions = append(versions, k.Version)
	}
	want := []uint64{0, 1, 2, 5, 100}
	for i := range want {
		if versions[i] != want[i] {
			t.Errorf("sorted versions = %v, want %v", versions, want)
		}
	}
}

func TestPrefixVersionIsBytewisePrefixOfEveryVersionOfKey(t *testing.T) {
	prefix := PrefixVersion([]byte("user-42"))
	for _, v := range []uint64{0, 1, 999, ^uint64(0)} {
		full := EncodeVersion([]byte("user-42"), v)
		if !HasPrefix(full, prefix) {
			t.Errorf("EncodeVersion(user-42, %d) = %v does not start with prefix %v", v, full, prefix)
		}
	}
	// The prefix carries no string terminator, so it also matches every
	// longer user key that starts with "user-42"; ScanPrefix relies on this.
	other := EncodeVersion([]byte("user-420"), 0)
	if !HasPrefix(other, prefix) {
		t.Errorf("prefix for user-42 should also match key for user-420")
	}
}

func TestPrefixTxnWriteMatchesOnlySameVersion(t *testing.T) {
	p3 := PrefixTxnWrite(3)
	k3 := EncodeTxnWrite(3, []byte("k"))
	k4 := EncodeTxnWrite(4, []byte("k"))
	if !HasPrefix(k3, p3) {
		t.Errorf("PrefixTxnWrite(3) should match TxnWrite(3, k)")
	}
	if HasPrefix(k4, p3) {
		t.Errorf("PrefixTxnWrite(3) should not match TxnWrite(4, k)")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Errorf("expected error decoding empty input")
	}
	if _, err := Decode([]byte{255}); err == nil {
		t.Errorf("expected error decoding unknown kind tag")
	}
	if _, err := Decode([]byte{byte(KindUnversioned), 0x00}); err == nil {
		t.Errorf("expected error decoding truncated escape sequence")
	}
}

func TestUnversionedKeyOrderingIsLexicographic(t *testing.T) {
	keys := [][]byte{[]byte("b"), []byte("a"), []byte("c")}
	var encoded [][]byte
	for _, k := range keys {
		encoded = append(encoded, EncodeUnversioned(k))
	}
	sort.Slice(encoded, func(i, j int) bool { return bytes.Compare(encoded[i], encoded[j]) < 0 })

	var got []string
	for _, e := range encoded {
		k, err := Decode(e)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		got = append(got, string(k.UserKey))
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

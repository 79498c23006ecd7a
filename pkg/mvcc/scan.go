package mvcc

import (
	"bytes"

	"transact/pkg/keycodec"
	"transact/pkg/storage"
)

// Scan returns a double-ended iterator over the latest visible value of
// every key in [start, end) as seen by this transaction. A nil start scans
// from the beginning of the user-key space; a nil end scans to the end of
// it (but never spills into the unversioned namespace, which lives in a
// separate key family).
//
// Scan locks the owning MVCC for the lifetime of the returned iterator:
// the iterator borrows a storage.Iterator that is only safe to drive while
// no other transaction is touching the engine. Callers must call Close on
// the result, which releases the lock; until then, no other Transaction
// method on this MVCC will make progress.
func (t *Transaction) Scan(start, end []byte) *ScanIterator {
	t.mvcc.mu.Lock()
	from, to := scanVersionBounds(start, end)
	return newScanIterator(t.mvcc, t.state, t.mvcc.engine.Scan(from, to))
}

// ScanPrefix returns a double-ended iterator over the latest visible value
// of every key with the given byte prefix, with the same locking contract
// as Scan.
func (t *Transaction) ScanPrefix(prefix []byte) *ScanIterator {
	t.mvcc.mu.Lock()
	return newScanIterator(t.mvcc, t.state, t.mvcc.engine.ScanPrefix(keycodec.PrefixVersion(prefix)))
}

func scanVersionBounds(start, end []byte) (from, to []byte) {
	from = keycodec.EncodeVersion(start, 0)
	if end != nil {
		to = keycodec.EncodeVersion(end, 0)
	} else {
		to = keycodec.PrefixUnversioned()
	}
	return from, to
}

// ScanIterator walks the latest, live (non-tombstone) version of each key
// visible to a transaction, in either direction. It is built from two
// layers: a versionIterator beneath it decodes raw engine entries into
// (userKey, version) pairs and drops anything invisible to the
// transaction; ScanIterator itself collapses the possibly-many visible
// versions of a key down to the single most recent one, and filters out
// tombstones.
//
// Collapsing requires one-step lookahead when scanning forward: since
// versions of the same key sort together in ascending version order, the
// entry at the current position is only the *latest* visible version if
// the next entry (if any) belongs to a different key. No such lookahead is
// needed in reverse, since the first visible version encountered scanning
// backward is already the latest one; instead, NextBack tracks the last
// key it reached - whether returned or skipped as a tombstone - so that it
// can skip older versions of that same key.
type ScanIterator struct {
	mvcc   *MVCC
	engine storage.Iterator
	inner  *versionIterator

	frontBuf    *versionEntry
	frontBufSet bool

	lastBack []byte
}

func newScanIterator(m *MVCC, state TransactionState, engine storage.Iterator) *ScanIterator {
	return &ScanIterator{
		mvcc:   m,
		engine: engine,
		inner:  &versionIterator{state: state, inner: engine},
	}
}

// Next returns the next key and its latest visible value in ascending key
// order, or ok == false once the range is exhausted.
func (s *ScanIterator) Next() (key, value []byte, ok bool, err error) {
	for {
		cur, err := s.fetchFront()
		if err != nil {
			return nil, nil, false, err
		}
		if cur == nil {
			return nil, nil, false, nil
		}

		nxt, err := s.peekFront()
		if err != nil {
			return nil, nil, false, err
		}
		if nxt != nil && bytes.Equal(nxt.userKey, cur.userKey) {
			continue // cur is shadowed by a newer version of the same key
		}

		value, err := decodeOptionalValue(cur.rawValue)
		if err != nil {
			return nil, nil, false, err
		}
		if value == nil {
			continue // tombstone: key is absent as of this transaction
		}
		return cur.userKey, value, true, nil
	}
}

// NextBack returns the next key and its latest visible value in descending
// key order, or ok == false once the range is exhausted.
func (s *ScanIterator) NextBack() (key, value []byte, ok bool, err error) {
	for {
		cur, err := s.inner.nextBack()
		if err != nil {
			return nil, nil, false, err
		}
		if cur == nil {
			return nil, nil, false, nil
		}
		if s.lastBack != nil && bytes.Equal(s.lastBack, cur.userKey) {
			continue // an older version of a key already emitted from the back
		}
		s.lastBack = cur.userKey

		value, err := decodeOptionalValue(cur.rawValue)
		if err != nil {
			return nil, nil, false, err
		}
		if value == nil {
			continue
		}
		return cur.userKey, value, true, nil
	}
}

// Close releases the engine iterator and unlocks the owning MVCC.
func (s *ScanIterator) Close() {
	s.engine.Close()
	s.mvcc.mu.Unlock()
}

func (s *ScanIterator) fetchFront() (*versionEntry, error) {
	if s.frontBufSet {
		e := s.frontBuf
		s.frontBuf = nil
		s.frontBufSet = false
		return e, nil
	}
	return s.inner.next()
}

func (s *ScanIterator) peekFront() (*versionEntry, error) {
	if !s.frontBufSet {
		e, err := s.inner.next()
		if err != nil {
			return nil, err
		}
		s.frontBuf = e
		s.frontBufSet = true
	}
	return s.frontBuf, nil
}

// versionEntry is one decoded, visible Version record: the user key and
// version it belongs to, and its raw (still value-encoded) payload.
type versionEntry struct {
	userKey  []byte
	version  uint64
	rawValue []byte
}

// versionIterator decodes raw engine entries into versionEntry values,
// silently skipping any whose version is not visible to the transaction.
type versionIterator struct {
	state TransactionState
	inner storage.Iterator
}

func (v *versionIterator) decode(rawKey []byte) (userKey []byte, version uint64, err error) {
	k, err := keycodec.Decode(rawKey)
	if err != nil {
		return nil, 0, err
	}
	if k.Kind != keycodec.KindVersion {
		return nil, 0, internalErrorf("expected Version key, got %s", k.Kind)
	}
	return k.UserKey, k.Version, nil
}

func (v *versionIterator) next() (*versionEntry, error) {
	for {
		rawKey, rawValue, ok := v.inner.Next()
		if !ok {
			return nil, nil
		}
		userKey, version, err := v.decode(rawKey)
		if err != nil {
			return nil, err
		}
		if !v.state.IsVisible(version) {
			continue
		}
		return &versionEntry{userKey: userKey, version: version, rawValue: rawValue}, nil
	}
}

func (v *versionIterator) nextBack() (*versionEntry, error) {
	for {
		rawKey, rawValue, ok := v.inner.NextBack()
		if !ok {
			return nil, nil
		}
		userKey, version, err := v.decode(rawKey)
		if err != nil {
			return nil, err
		}
		if !v.state.IsVisible(version) {
			continue
		}
		return &versionEntry{userKey: userKey, version: version, rawValue: rawValue}, nil
	}
}

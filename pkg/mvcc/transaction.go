package mvcc

import (
	"github.com/google/uuid"

	"transact/pkg/keycodec"
	"transact/pkg/storage"
)

// Transaction is a handle to an in-progress MVCC transaction. Its methods
// that touch the engine lock the owning MVCC's mutex for the duration of the
// call; none of them hold it across calls, except for the scan iterator
// returned by Scan and ScanPrefix (see scan.go). Version, ReadOnly and State
// do not lock, and neither do Commit and Rollback of a read-only transaction.
type Transaction struct {
	mvcc  *MVCC
	state TransactionState
}

// Version returns the version this transaction reads at, and - for
// read-write transactions - writes at.
func (t *Transaction) Version() uint64 { return t.state.Version }

// ReadOnly reports whether the transaction may write.
func (t *Transaction) ReadOnly() bool { return t.state.ReadOnly }

// State returns the transaction's isolation snapshot. The returned value
// can later be passed to MVCC.Resume to obtain a functionally equivalent
// Transaction, including across a process boundary.
func (t *Transaction) State() TransactionState { return t.state }

// beginReadWrite allocates a new version, records it as active, and
// snapshots the current active set if it is non-empty. Must be called with
// m.mu held.
func beginReadWrite(m *MVCC) (*Transaction, error) {
	version, err := readNextVersion(m.engine)
	if err != nil {
		return nil, err
	}
	if err := m.engine.Set(keycodec.EncodeNextVersion(), encodeUint64(version+1)); err != nil {
		return nil, err
	}

	active, err := scanActive(m.engine)
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		if err := m.engine.Set(keycodec.EncodeTxnActiveSnapshot(version), encodeVersionSet(active)); err != nil {
			return nil, err
		}
	}
	if err := m.engine.Set(keycodec.EncodeTxnActive(version), []byte{}); err != nil {
		return nil, err
	}

	state := TransactionState{ID: uuid.New(), Version: version, Active: active}
	m.logger.Debug("begin", "txn", state.ID, "version", version, "active", len(active))
	return &Transaction{mvcc: m, state: state}, nil
}

// beginReadOnly starts a read-only transaction, either at the current
// version (asOf == nil) or as of a past version, restoring that version's
// persisted active-set snapshot so it sees exactly what the original
// read-write transaction saw when it began. Must be called with m.mu held.
func beginReadOnly(m *MVCC, asOf *uint64) (*Transaction, error) {
	version, err := readNextVersion(m.engine)
	if err != nil {
		return nil, err
	}

	var active map[uint64]struct{}
	if asOf != nil {
		if *asOf >= version {
			return nil, valueErrorf("Version %d does not exist", *asOf)
		}
		version = *asOf

		snapshot, err := m.engine.Get(keycodec.EncodeTxnActiveSnapshot(version))
		if err != nil {
			return nil, err
		}
		if snapshot != nil {
			active, err = decodeVersionSet(snapshot)
			if err != nil {
				return nil, err
			}
		} else {
			active = map[uint64]struct{}{}
		}
	} else {
		active, err = scanActive(m.engine)
		if err != nil {
			return nil, err
		}
	}

	state := TransactionState{ID: uuid.New(), Version: version, ReadOnly: true, Active: active}
	m.logger.Debug("begin read-only", "txn", state.ID, "version", version, "as_of", asOf != nil)
	return &Transaction{mvcc: m, state: state}, nil
}

// resume reconstructs a Transaction from an exported state, verifying a
// read-write state is still recorded active. Must be called with m.mu
// held.
func resume(m *MVCC, state TransactionState) (*Transaction, error) {
	if !state.ReadOnly {
		marker, err := m.engine.Get(keycodec.EncodeTxnActive(state.Version))
		if err != nil {
			return nil, err
		}
		if marker == nil {
			return nil, internalErrorf("no active transaction at version %d", state.Version)
		}
	}
	m.logger.Debug("resume", "txn", state.ID, "version", state.Version, "read_only", state.ReadOnly)
	return &Transaction{mvcc: m, state: state}, nil
}

// Commit commits the transaction. For a read-write transaction this
// deletes its entry from the active set, which atomically makes all of its
// writes visible to transactions that begin afterwards; transactions that
// were already running keep the snapshot they started with. Read-only
// transactions have nothing to commit.
//
// TxnWrite records for the committed version are left in place by default:
// they are addressed only by scans prefixed with this transaction's own
// version, so once committed they are simply never looked at again. Pass
// WithPurgeWriteLogOnCommit(true) to MVCC.New to have Commit remove them
// instead, trading a scan-and-delete pass here for not leaving them behind.
func (t *Transaction) Commit() error {
	if t.state.ReadOnly {
		return nil
	}
	t.mvcc.mu.Lock()
	defer t.mvcc.mu.Unlock()

	if t.mvcc.purgeWriteLogOnCommit {
		if err := purgeWriteLog(t.mvcc.engine, t.state.Version); err != nil {
			return err
		}
	}

	if err := t.mvcc.engine.Delete(keycodec.EncodeTxnActive(t.state.Version)); err != nil {
		return err
	}
	t.mvcc.logger.Debug("commit", "txn", t.state.ID, "version", t.state.Version)
	return nil
}

// purgeWriteLog deletes every TxnWrite(version, *) record for version. It
// never touches the corresponding Version(key, version) entries: those
// remain the committed value, still needed by time-travel reads.
func purgeWriteLog(engine storage.Engine, version uint64) error {
	var toDelete [][]byte
	it := engine.ScanPrefix(keycodec.PrefixTxnWrite(version))
	for {
		rawKey, _, ok := it.Next()
		if !ok {
			break
		}
		toDelete = append(toDelete, append([]byte(nil), rawKey...))
	}
	it.Close()

	for _, key := range toDelete {
		if err := engine.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// Rollback undoes every version the transaction wrote and removes it from
// the active set. The active-set snapshot taken when the transaction began
// is left in place, since time-travel reads as of this version still need
// it.
func (t *Transaction) Rollback() error {
	if t.state.ReadOnly {
		return nil
	}
	t.mvcc.mu.Lock()
	defer t.mvcc.mu.Unlock()

	engine := t.mvcc.engine

	var toDelete [][]byte
	it := engine.ScanPrefix(keycodec.PrefixTxnWrite(t.state.Version))
	for {
		rawKey, _, ok := it.Next()
		if !ok {
			break
		}
		k, err := keycodec.Decode(rawKey)
		if err != nil {
			it.Close()
			return err
		}
		if k.Kind != keycodec.KindTxnWrite {
			it.Close()
			return internalErrorf("expected TxnWrite key, got %s", k.Kind)
		}
		toDelete = append(toDelete, keycodec.EncodeVersion(k.UserKey, t.state.Version))
		toDelete = append(toDelete, rawKey)
	}
	it.Close()

	for _, key := range toDelete {
		if err := engine.Delete(key); err != nil {
			return err
		}
	}
	if err := engine.Delete(keycodec.EncodeTxnActive(t.state.Version)); err != nil {
		return err
	}
	t.mvcc.logger.Debug("rollback", "txn", t.state.ID, "version", t.state.Version, "entries_removed", len(toDelete)/2)
	return nil
}

// Get fetches a key's current value as seen by this transaction, or nil if
// it does not exist or has been deleted.
func (t *Transaction) Get(key []byte) ([]byte, error) {
	t.mvcc.mu.Lock()
	defer t.mvcc.mu.Unlock()

	it := t.mvcc.engine.Scan(keycodec.EncodeVersion(key, 0), upperBoundInclusive(keycodec.EncodeVersion(key, t.state.Version)))
	defer it.Close()

	for {
		rawKey, rawValue, ok := it.NextBack()
		if !ok {
			return nil, nil
		}
		k, err := keycodec.Decode(rawKey)
		if err != nil {
			return nil, err
		}
		if k.Kind != keycodec.KindVersion {
			return nil, internalErrorf("expected Version key, got %s", k.Kind)
		}
		if !t.state.IsVisible(k.Version) {
			continue
		}
		return decodeOptionalValue(rawValue)
	}
}

// Set writes a value for key at this transaction's version.
func (t *Transaction) Set(key, value []byte) error {
	return t.write(key, value)
}

// Delete writes a deletion tombstone for key at this transaction's
// version.
func (t *Transaction) Delete(key []byte) error {
	return t.write(key, nil)
}

// write records a new version for key, or a tombstone if value is nil. It
// first checks for a write-write conflict: if the latest existing version
// of key is invisible to this transaction - a newer committed version, or
// an uncommitted version from a transaction that was already active when
// this one began - the write is rejected with ErrSerialization and the
// caller must retry. Overwriting this transaction's own prior write to the
// same key is always allowed.
func (t *Transaction) write(key, value []byte) error {
	if t.state.ReadOnly {
		return ErrReadOnly
	}

	t.mvcc.mu.Lock()
	defer t.mvcc.mu.Unlock()

	engine := t.mvcc.engine

	conflictFrom := t.state.Version + 1
	for active := range t.state.Active {
		if active < conflictFrom {
			conflictFrom = active
		}
	}

	it := engine.Scan(keycodec.EncodeVersion(key, conflictFrom), upperBoundInclusive(keycodec.EncodeVersion(key, ^uint64(0))))
	rawKey, _, ok := it.NextBack()
	it.Close()
	if ok {
		k, err := keycodec.Decode(rawKey)
		if err != nil {
			return err
		}
		if k.Kind != keycodec.KindVersion {
			return internalErrorf("expected Version key, got %s", k.Kind)
		}
		if !t.state.IsVisible(k.Version) {
			t.mvcc.logger.Warn("write conflict", "txn", t.state.ID, "version", t.state.Version, "conflicting_version", k.Version)
			return ErrSerialization
		}
	}

	if err := engine.Set(keycodec.EncodeTxnWrite(t.state.Version, key), []byte{}); err != nil {
		return err
	}
	return engine.Set(keycodec.EncodeVersion(key, t.state.Version), encodeOptionalValue(value))
}

// upperBoundInclusive turns an inclusive upper bound into the exclusive
// bound storage.Engine.Scan expects, by appending a zero byte. Every
// well-formed encoded key is strictly shorter than its own value with a
// trailing zero appended, so this always sorts immediately after key and
// before anything that would otherwise be considered greater than it.
func upperBoundInclusive(key []byte) []byte {
	end := make([]byte, len(key)+1)
	copy(end, key)
	return end
}

// Package mvcc provides a transactional key-value layer with snapshot
// isolation over an ordered byte-keyed storage engine (pkg/storage). It
// allocates monotonically increasing versions, tracks which versions are
// still open, and uses that information to decide which historical value
// of a key each transaction is allowed to see.
package mvcc

import (
	"encoding/binary"
	"log/slog"
	"sync"

	"transact/pkg/keycodec"
	"transact/pkg/storage"
)

// MVCC is a transactional front end for a storage.Engine. It supports any
// number of concurrent Transaction handles, but every individual read or
// write operation against the underlying engine is serialized through a
// single mutex: the engine itself makes no concurrency guarantees of its
// own, and correctness of the version-allocation and conflict-detection
// logic below depends on nothing else ever observing the engine mid-step.
type MVCC struct {
	mu     sync.Mutex
	engine storage.Engine
	logger *slog.Logger

	purgeWriteLogOnCommit bool
}

// Option configures an MVCC at construction time.
type Option func(*MVCC)

// WithLogger overrides the default logger, which is slog.Default() with a
// "component=mvcc" attribute. Transaction lifecycle events (begin, commit,
// rollback, write conflicts) are logged at Debug, except conflicts, which
// are logged at Warn.
func WithLogger(logger *slog.Logger) Option {
	return func(m *MVCC) { m.logger = logger }
}

// WithPurgeWriteLogOnCommit controls whether Commit also deletes the
// committing transaction's own TxnWrite(version, *) records. They are
// otherwise left in place forever, addressed only by a scan prefixed with
// that exact version, which a finished transaction's own version never is
// again - so leaving them costs nothing but space. Off by default.
func WithPurgeWriteLogOnCommit(purge bool) Option {
	return func(m *MVCC) { m.purgeWriteLogOnCommit = purge }
}

// New wraps an existing storage engine with MVCC transaction semantics.
func New(engine storage.Engine, opts ...Option) *MVCC {
	m := &MVCC{
		engine: engine,
		logger: slog.Default().With("component", "mvcc"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin starts a new read-write transaction. It allocates a fresh version,
// records it in the active set, and - if the active set was non-empty -
// persists a snapshot of it for later time-travel reads at this version.
func (m *MVCC) Begin() (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return beginReadWrite(m)
}

// BeginReadOnly starts a read-only transaction observing the database as
// of the current version, including the writes of any transaction that
// has already committed.
func (m *MVCC) BeginReadOnly() (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return beginReadOnly(m, nil)
}

// BeginAsOf starts a read-only transaction that sees the database exactly
// as a read-write transaction would have seen it at the start of the given
// version: visibility is computed from that version's persisted active-set
// snapshot rather than the current one.
func (m *MVCC) BeginAsOf(version uint64) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return beginReadOnly(m, &version)
}

// Resume reconstructs a Transaction handle from a previously exported
// TransactionState, e.g. after shipping it across a process boundary. For
// a read-write state, it verifies the version is still recorded active
// before allowing further writes.
func (m *MVCC) Resume(state TransactionState) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return resume(m, state)
}

// GetUnversioned fetches the value of a key in the unversioned namespace,
// which is entirely independent of any versioned key of the same name.
func (m *MVCC) GetUnversioned(key []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.Get(keycodec.EncodeUnversioned(key))
}

// SetUnversioned sets the value of a key in the unversioned namespace.
// Unversioned keys are typically used for metadata that sits outside the
// transaction log, such as schema or configuration.
func (m *MVCC) SetUnversioned(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.Set(keycodec.EncodeUnversioned(key), value)
}

// Status reports the number of versions allocated so far, the number of
// currently active transactions, and a description of the underlying
// storage engine.
type Status struct {
	Storage    string
	Versions   uint64
	ActiveTxns uint64
}

// Status computes the current Status of the MVCC and storage engines.
func (m *MVCC) Status() (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := readNextVersion(m.engine)
	if err != nil {
		return Status{}, err
	}

	active, err := scanActive(m.engine)
	if err != nil {
		return Status{}, err
	}

	versions := uint64(0)
	if next > 0 {
		versions = next - 1
	}

	return Status{
		Storage:    m.engine.String(),
		Versions:   versions,
		ActiveTxns: uint64(len(active)),
	}, nil
}

// readNextVersion returns the next version to allocate, defaulting to 1
// when the counter has never been written.
func readNextVersion(engine storage.Engine) (uint64, error) {
	raw, err := engine.Get(keycodec.EncodeNextVersion())
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 1, nil
	}
	if len(raw) != 8 {
		return 0, internalErrorf("malformed NextVersion record of length %d", len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// scanActive returns the set of versions currently recorded as active
// (open read-write transactions).
func scanActive(engine storage.Engine) (map[uint64]struct{}, error) {
	active := make(map[uint64]struct{})

	it := engine.ScanPrefix(keycodec.PrefixTxnActive())
	defer it.Close()

	for {
		rawKey, _, ok := it.Next()
		if !ok {
			break
		}
		k, err := keycodec.Decode(rawKey)
		if err != nil {
			return nil, err
		}
		if k.Kind != keycodec.KindTxnActive {
			return nil, internalErrorf("expected TxnActive key, got %s", k.Kind)
		}
		active[k.Version] = struct{}{}
	}
	return active, nil
}

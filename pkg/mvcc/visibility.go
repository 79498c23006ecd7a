package mvcc

import "github.com/google/uuid"

// TransactionState is a transaction's isolation snapshot: the version it
// runs at, whether it can write, and the set of read-write transactions
// that were still open when it began. It is deliberately kept separate
// from Transaction so that it can be exported via Transaction.State,
// persisted or shipped elsewhere, and later used to resume an equivalent
// Transaction with Resume.
type TransactionState struct {
	// ID correlates a transaction across log lines and a resume round
	// trip. It carries no semantic weight for visibility: two states with
	// the same Version and Active but different ID are interchangeable.
	ID uuid.UUID

	// Version is the version this transaction reads at, and - for
	// read-write transactions - the version it writes new values at.
	Version uint64

	// ReadOnly marks a transaction that may not write.
	ReadOnly bool

	// Active holds the versions of read-write transactions that had not
	// yet committed or rolled back when this transaction began. Their
	// writes are invisible to this transaction regardless of version
	// ordering.
	Active map[uint64]struct{}
}

// IsVisible reports whether a value written at the given version is
// visible to this transaction.
//
// A version in the active set is always invisible, no matter how it
// compares numerically to this transaction's version: it belonged to a
// transaction that had not committed as of the start of this one. A
// read-write transaction sees its own writes, made at its own version, so
// it uses an inclusive bound; a read-only transaction uses an exclusive
// bound, so that it sees a consistent view both before and after a
// transaction at the same version commits.
func (s TransactionState) IsVisible(version uint64) bool {
	if _, active := s.Active[version]; active {
		return false
	}
	if s.ReadOnly {
		return version < s.Version
	}
	return version <= s.Version
}

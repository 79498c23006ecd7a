// Package storage defines the ordered byte-keyed engine contract the MVCC
// layer is built on, and provides the default in-process implementation
// backed by pkg/memtree.
//
// The engine itself knows nothing about versions, transactions, or the key
// namespace encoded by pkg/keycodec - it just stores and scans raw byte
// strings in lexicographic order. Everything transactional is layered on
// top by pkg/mvcc, which is also the component responsible for serializing
// concurrent access; Engine implementations are not expected to be safe for
// unsynchronized concurrent writers on their own.
package storage

import (
	"fmt"

	"transact/pkg/memtree"
)

// Engine is the ordered byte-keyed storage contract the MVCC layer is built
// on top of.
type Engine interface {
	// Get returns the value for key, or (nil, nil) if key is absent.
	Get(key []byte) ([]byte, error)

	// Set inserts or overwrites the value stored at key.
	Set(key, value []byte) error

	// Delete removes key. It is not an error to delete an absent key.
	Delete(key []byte) error

	// Scan returns a double-ended iterator over [start, end) in key order.
	// A nil start scans from the beginning of the keyspace; a nil end
	// scans to the end.
	Scan(start, end []byte) Iterator

	// ScanPrefix returns a double-ended iterator over every key that has
	// prefix as a byte prefix.
	ScanPrefix(prefix []byte) Iterator

	// String describes the engine, e.g. for diagnostics.
	String() string
}

// Iterator is a bidirectional cursor over a bounded range of an Engine. It
// can be drained from the front with Next, from the back with NextBack, or
// both at once; the two directions meet in the middle rather than
// overlapping. Close must be called when the caller is done, since it may
// be holding resources (e.g. an epoch guard) on the underlying engine.
type Iterator interface {
	// Next returns the next key/value pair in ascending order, or
	// ok == false once the range (or the back cursor) is exhausted.
	Next() (key, value []byte, ok bool)

	// NextBack returns the next key/value pair in descending order, or
	// ok == false once the range (or the front cursor) is exhausted.
	NextBack() (key, value []byte, ok bool)

	// Close releases any resources held by the iterator.
	Close()
}

// BTreeEngine is the default Engine, an in-process ordered byte-keyed store
// backed by a skip list (see pkg/memtree). The name predates the switch
// away from a tree-shaped backing store; it is kept because this is still
// the ordered, in-process Engine callers reach for by default.
type BTreeEngine struct {
	tree *memtree.Tree
}

// NewBTreeEngine creates an empty in-memory engine.
func NewBTreeEngine() *BTreeEngine {
	return &BTreeEngine{tree: memtree.NewTree()}
}

func (e *BTreeEngine) Get(key []byte) ([]byte, error) {
	v, err := e.tree.Get(key)
	if err == memtree.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (e *BTreeEngine) Set(key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return e.tree.Insert(key, value)
}

func (e *BTreeEngine) Delete(key []byte) error {
	err := e.tree.Delete(key)
	if err == memtree.ErrKeyNotFound {
		return nil
	}
	return err
}

func (e *BTreeEngine) Scan(start, end []byte) Iterator {
	return newBTreeIterator(e.tree, start, end)
}

func (e *BTreeEngine) ScanPrefix(prefix []byte) Iterator {
	return e.Scan(prefix, prefixEnd(prefix))
}

func (e *BTreeEngine) String() string {
	return fmt.Sprintf("memtree engine (%d keys)", e.tree.KeyCount())
}

// Close releases the underlying tree's resources.
func (e *BTreeEngine) Close() error {
	return e.tree.Close()
}

// prefixEnd computes the exclusive upper bound for a prefix scan: the
// smallest key that is strictly greater than every key starting with
// prefix. If prefix consists entirely of 0xff bytes (or is empty), every
// key is a potential match and there is no finite upper bound, so nil is
// returned to mean "scan to the end of the keyspace".
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

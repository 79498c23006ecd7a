package storage

import (
	"bytes"

	"transact/pkg/memtree"
)

// btreeIterator is a double-ended cursor over a bounded range of a
// memtree.Tree. It drives two independent memtree.Cursor values, one
// walking forward from the start of the range and one walking backward from
// the end, and stops either side once it would cross the other - so
// interleaved Next/NextBack calls never yield the same key twice and never
// skip one.
type btreeIterator struct {
	front *memtree.Cursor
	back  *memtree.Cursor

	start, end []byte // range bounds: [start, end), nil means unbounded

	frontStarted, backStarted bool
	frontDone, backDone       bool

	// lastFront/lastBack record the most recently yielded key on each
	// side, so the other side knows where it must stop.
	lastFront, lastBack []byte
}

func newBTreeIterator(t *memtree.Tree, start, end []byte) *btreeIterator {
	return &btreeIterator{
		front: t.Cursor(),
		back:  t.Cursor(),
		start: start,
		end:   end,
	}
}

func (it *btreeIterator) Next() (key, value []byte, ok bool) {
	if it.frontDone {
		return nil, nil, false
	}

	if !it.frontStarted {
		it.frontStarted = true
		if it.start != nil {
			it.front.Seek(it.start)
		} else {
			it.front.First()
		}
	}

	if !it.front.Valid() {
		it.frontDone = true
		return nil, nil, false
	}

	k := it.front.Key()
	if it.end != nil && bytes.Compare(k, it.end) >= 0 {
		it.frontDone = true
		return nil, nil, false
	}
	if it.lastBack != nil && bytes.Compare(k, it.lastBack) >= 0 {
		it.frontDone = true
		return nil, nil, false
	}

	v := it.front.Value()
	it.lastFront = k
	it.front.Next()
	return k, v, true
}

func (it *btreeIterator) NextBack() (key, value []byte, ok bool) {
	if it.backDone {
		return nil, nil, false
	}

	if !it.backStarted {
		it.backStarted = true
		if it.end != nil {
			it.back.Seek(it.end)
			if it.back.Valid() {
				it.back.Prev()
			} else {
				it.back.Last()
			}
		} else {
			it.back.Last()
		}
	}

	if !it.back.Valid() {
		it.backDone = true
		return nil, nil, false
	}

	k := it.back.Key()
	if it.start != nil && bytes.Compare(k, it.start) < 0 {
		it.backDone = true
		return nil, nil, false
	}
	if it.lastFront != nil && bytes.Compare(k, it.lastFront) <= 0 {
		it.backDone = true
		return nil, nil, false
	}

	v := it.back.Value()
	it.lastBack = k
	it.back.Prev()
	return k, v, true
}

func (it *btreeIterator) Close() {
	it.front.Close()
	it.back.Close()
}

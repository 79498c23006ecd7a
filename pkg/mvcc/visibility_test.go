package mvcc

import "testing"

func TestIsVisibleActiveVersionAlwaysInvisible(t *testing.T) {
	s := TransactionState{Version: 10, Active: map[uint64]struct{}{5: {}}}
	if s.IsVisible(5) {
		t.Errorf("version in active set should never be visible")
	}
}

func TestIsVisibleReadWriteSeesOwnVersion(t *testing.T) {
	s := TransactionState{Version: 5, ReadOnly: false, Active: map[uint64]struct{}{}}
	if !s.IsVisible(5) {
		t.Errorf("read-write transaction should see its own version")
	}
	if s.IsVisible(6) {
		t.Errorf("future version should not be visible")
	}
	if !s.IsVisible(4) {
		t.Errorf("past committed version should be visible")
	}
}

func TestIsVisibleReadOnlyExcludesOwnVersion(t *testing.T) {
	s := TransactionState{Version: 5, ReadOnly: true, Active: map[uint64]struct{}{}}
	if s.IsVisible(5) {
		t.Errorf("read-only transaction must not see its own version number")
	}
	if !s.IsVisible(4) {
		t.Errorf("read-only transaction should see versions strictly below its own")
	}
}

func TestIsVisibleNilActiveSet(t *testing.T) {
	s := TransactionState{Version: 3}
	if !s.IsVisible(3) {
		t.Errorf("nil active set should behave like an empty one")
	}
}

package memtree

import (
	"bytes"
	"fmt"
	"testing"
)

func TestTreeBasicOperations(t *testing.T) {
	tree := NewTree()
	defer tree.Close()

	key := []byte("test-key")
	value := []byte("test-value")

	if err := tree.Insert(key, value); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := tree.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, value) {
		t.Errorf("Got %q, want %q", got, value)
	}

	if _, err := tree.Get([]byte("nonexistent")); err != ErrKeyNotFound {
		t.Errorf("Get of absent key: got %v, want ErrKeyNotFound", err)
	}

	if err := tree.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := tree.Get(key); err != ErrKeyNotFound {
		t.Errorf("Get after delete: got %v, want ErrKeyNotFound", err)
	}
	if err := tree.Delete(key); err != ErrKeyNotFound {
		t.Errorf("Delete of absent key: got %v, want ErrKeyNotFound", err)
	}
}

func TestTreeMultipleInserts(t *testing.T) {
	tree := NewTree()
	defer tree.Close()

	n := 1000
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%05d", i))
		value := []byte(fmt.Sprintf("value-%05d", i))
		if err := tree.Insert(key, value); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}

	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%05d", i))
		want := []byte(fmt.Sprintf("value-%05d", i))
		got, err := tree.Get(key)
		if err != nil {
			t.Fatalf("Get %d failed: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("key %d: got %q, want %q", i, got, want)
		}
	}

	if tree.KeyCount() != n {
		t.Errorf("KeyCount: got %d, want %d", tree.KeyCount(), n)
	}
}

func TestTreeUpdateOverwritesValueNotCount(t *testing.T) {
	tree := NewTree()
	defer tree.Close()

	key := []byte("update-key")
	if err := tree.Insert(key, []byte("value-1")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tree.Insert(key, []byte("value-2")); err != nil {
		t.Fatalf("Insert (update): %v", err)
	}

	got, err := tree.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte("value-2")) {
		t.Errorf("Got %q, want %q", got, "value-2")
	}
	if tree.KeyCount() != 1 {
		t.Errorf("KeyCount: got %d, want 1", tree.KeyCount())
	}
}

func TestCursorForwardOrder(t *testing.T) {
	tree := NewTree()
	defer tree.Close()

	n := 100
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		tree.Insert(key, []byte(fmt.Sprintf("value-%03d", i)))
	}

	c := tree.Cursor()
	defer c.Close()
	c.First()

	count := 0
	for c.Valid() {
		want := fmt.Sprintf("key-%03d", count)
		if string(c.Key()) != want {
			t.Fatalf("position %d: got key %q, want %q", count, c.Key(), want)
		}
		count++
		c.Next()
	}
	if count != n {
		t.Errorf("visited %d keys, want %d", count, n)
	}
}

func TestCursorBackwardOrder(t *testing.T) {
	tree := NewTree()
	defer tree.Close()

	n := 100
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		tree.Insert(key, []byte(fmt.Sprintf("value-%03d", i)))
	}

	c := tree.Cursor()
	defer c.Close()
	c.Last()

	count := 0
	for c.Valid() {
		want := fmt.Sprintf("key-%03d", n-1-count)
		if string(c.Key()) != want {
			t.Fatalf("position %d: got key %q, want %q", count, c.Key(), want)
		}
		count++
		c.Prev()
	}
	if count != n {
		t.Errorf("visited %d keys, want %d", count, n)
	}
}

func TestCursorSeekFindsSmallestKeyGreaterOrEqual(t *testing.T) {
	tree := NewTree()
	defer tree.Close()

	for _, k := range []string{"b", "d", "f"} {
		tree.Insert([]byte(k), []byte(k))
	}

	c := tree.Cursor()
	defer c.Close()

	c.Seek([]byte("c"))
	if !c.Valid() || string(c.Key()) != "d" {
		t.Fatalf("Seek(c): got %q, want %q", c.Key(), "d")
	}

	c.Seek([]byte("d"))
	if !c.Valid() || string(c.Key()) != "d" {
		t.Fatalf("Seek(d): got %q, want %q", c.Key(), "d")
	}

	c.Seek([]byte("g"))
	if c.Valid() {
		t.Fatalf("Seek(g): got valid position %q, want none", c.Key())
	}
}

func TestCursorSeekExact(t *testing.T) {
	tree := NewTree()
	defer tree.Close()
	tree.Insert([]byte("k"), []byte("v"))

	c := tree.Cursor()
	defer c.Close()

	if !c.SeekExact([]byte("k")) {
		t.Error("SeekExact(k): want true")
	}
	if c.SeekExact([]byte("missing")) {
		t.Error("SeekExact(missing): want false")
	}
}

func TestDeleteRelinksNeighbors(t *testing.T) {
	tree := NewTree()
	defer tree.Close()

	for _, k := range []string{"a", "b", "c"} {
		tree.Insert([]byte(k), []byte(k))
	}
	if err := tree.Delete([]byte("b")); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	c := tree.Cursor()
	defer c.Close()
	c.First()
	var got []string
	for c.Valid() {
		got = append(got, string(c.Key()))
		c.Next()
	}
	want := []string{"a", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	c.Last()
	if !c.Valid() || string(c.Key()) != "c" {
		t.Fatalf("Last after delete: got %q, want %q", c.Key(), "c")
	}
}

package ordmap

import (
	"math/rand"
	"reflect"
	"testing"

	"diplomacy/client/internal/phase"
)

func TestPutKeepsInsertionOrderIndependent(t *testing.T) {
	codes := []string{"S1901M", "F1901M", "W1901A", "S1902M", "F1902R"}

	sorted := New[string, int](phase.MustRank)
	for i, code := range codes {
		sorted.Put(code, i)
	}

	shuffled := New[string, int](phase.MustRank)
	perm := rand.New(rand.NewSource(7)).Perm(len(codes))
	for _, i := range perm {
		shuffled.Put(codes[i], i)
	}

	if !reflect.DeepEqual(sorted.Keys(), shuffled.Keys()) {
		t.Fatalf("key order differs: %v vs %v", sorted.Keys(), shuffled.Keys())
	}
	if !reflect.DeepEqual(sorted.Keys(), codes) {
		t.Fatalf("expected phase order %v, got %v", codes, sorted.Keys())
	}
}

func TestRemoveThenContains(t *testing.T) {
	m := New[int64, string](Int64Rank)
	m.Put(10, "a")
	m.Put(20, "b")

	if !m.Remove(10) {
		t.Fatalf("Remove(10) reported absent key")
	}
	if m.Contains(10) {
		t.Fatalf("Contains(10) true after removal")
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 entry after removal, got %d", m.Len())
	}
	if m.Remove(10) {
		t.Fatalf("second Remove(10) reported success")
	}
}

func TestPutReplacesInPlace(t *testing.T) {
	m := New[string, string](phase.MustRank)
	m.Put("S1901M", "first")
	m.Put("F1901M", "second")
	m.Put("S1901M", "replaced")

	if m.Len() != 2 {
		t.Fatalf("replace duplicated the key, len=%d", m.Len())
	}
	value, ok := m.Get("S1901M")
	if !ok || value != "replaced" {
		t.Fatalf("expected replaced value, got %q ok=%v", value, ok)
	}
	if keys := m.Keys(); keys[0] != "S1901M" || keys[1] != "F1901M" {
		t.Fatalf("replace reordered keys: %v", keys)
	}
}

func TestPositionalAccess(t *testing.T) {
	m := New[int64, string](Int64Rank)
	m.Put(30, "c")
	m.Put(10, "a")
	m.Put(20, "b")

	key, ok := m.KeyAt(1)
	if !ok || key != 20 {
		t.Fatalf("KeyAt(1) = %d, ok=%v", key, ok)
	}
	value, ok := m.ValueAt(2)
	if !ok || value != "c" {
		t.Fatalf("ValueAt(2) = %q, ok=%v", value, ok)
	}
	if _, ok := m.KeyAt(3); ok {
		t.Fatalf("KeyAt(3) reported a key beyond the end")
	}
	first, _ := m.First()
	last, _ := m.Last()
	if first != 10 || last != 30 {
		t.Fatalf("First/Last = %d/%d", first, last)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	m := New[int64, []string](Int64Rank)
	m.Put(1, []string{"x"})

	clone := m.Clone(func(v []string) []string {
		return append([]string(nil), v...)
	})
	clone.Put(2, []string{"y"})
	if v, _ := clone.Get(1); len(v) != 1 {
		t.Fatalf("clone lost value: %v", v)
	}
	v, _ := clone.Get(1)
	v[0] = "mutated"
	if original, _ := m.Get(1); original[0] != "x" {
		t.Fatalf("clone shares backing storage with original")
	}
	if m.Len() != 1 {
		t.Fatalf("clone mutation leaked into original, len=%d", m.Len())
	}
}

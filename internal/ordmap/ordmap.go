// Package ordmap provides an associative container whose entries stay
// sorted by an injected comparison key.
package ordmap

import "sort"

// RankFunc projects a key onto the totally ordered axis the map sorts by.
type RankFunc[K comparable] func(K) int64

// Int64Rank is the identity projection for maps keyed by timestamps.
func Int64Rank(key int64) int64 { return key }

type entry[K comparable, V any] struct {
	key   K
	rank  int64
	value V
}

// Map keeps key/value pairs ordered by the rank of their keys. Replacing
// the value of an existing key never moves the entry.
type Map[K comparable, V any] struct {
	rank    RankFunc[K]
	entries []entry[K, V]
	present map[K]struct{}
}

// New constructs an empty map ordered by the provided rank function.
func New[K comparable, V any](rank RankFunc[K]) *Map[K, V] {
	if rank == nil {
		panic("ordmap: rank function must be provided")
	}
	return &Map[K, V]{
		rank:    rank,
		present: make(map[K]struct{}),
	}
}

// Len reports the number of stored entries.
func (m *Map[K, V]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Contains reports whether the key is present.
func (m *Map[K, V]) Contains(key K) bool {
	if m == nil {
		return false
	}
	_, ok := m.present[key]
	return ok
}

// Get returns the value stored under key, if any.
func (m *Map[K, V]) Get(key K) (V, bool) {
	var zero V
	if m == nil {
		return zero, false
	}
	if _, ok := m.present[key]; !ok {
		return zero, false
	}
	idx := m.locate(key)
	if idx < 0 {
		return zero, false
	}
	return m.entries[idx].value, true
}

// Put inserts the pair at its sorted position, or replaces the value in
// place when the key already exists.
func (m *Map[K, V]) Put(key K, value V) {
	rank := m.rank(key)
	if _, ok := m.present[key]; ok {
		idx := m.locate(key)
		if idx >= 0 {
			m.entries[idx].value = value
			return
		}
	}
	//1.- Binary search for the insertion point among the ordered ranks.
	pos := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].rank > rank })
	//2.- Shift the tail one slot and place the new entry.
	m.entries = append(m.entries, entry[K, V]{})
	copy(m.entries[pos+1:], m.entries[pos:])
	m.entries[pos] = entry[K, V]{key: key, rank: rank, value: value}
	m.present[key] = struct{}{}
}

// Remove deletes the key and reports whether it was present.
func (m *Map[K, V]) Remove(key K) bool {
	if m == nil {
		return false
	}
	if _, ok := m.present[key]; !ok {
		return false
	}
	idx := m.locate(key)
	if idx < 0 {
		return false
	}
	m.entries = append(m.entries[:idx], m.entries[idx+1:]...)
	delete(m.present, key)
	return true
}

// KeyAt returns the nth key in sorted order.
func (m *Map[K, V]) KeyAt(index int) (K, bool) {
	var zero K
	if m == nil || index < 0 || index >= len(m.entries) {
		return zero, false
	}
	return m.entries[index].key, true
}

// ValueAt returns the nth value in sorted order.
func (m *Map[K, V]) ValueAt(index int) (V, bool) {
	var zero V
	if m == nil || index < 0 || index >= len(m.entries) {
		return zero, false
	}
	return m.entries[index].value, true
}

// First returns the lowest-ranked key.
func (m *Map[K, V]) First() (K, bool) {
	return m.KeyAt(0)
}

// Last returns the highest-ranked key.
func (m *Map[K, V]) Last() (K, bool) {
	return m.KeyAt(m.Len() - 1)
}

// Keys returns all keys in sorted order.
func (m *Map[K, V]) Keys() []K {
	if m == nil {
		return nil
	}
	keys := make([]K, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.key
	}
	return keys
}

// Values returns all values in key-sorted order.
func (m *Map[K, V]) Values() []V {
	if m == nil {
		return nil
	}
	values := make([]V, len(m.entries))
	for i, e := range m.entries {
		values[i] = e.value
	}
	return values
}

// Range visits entries in sorted order until fn returns false.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	if m == nil || fn == nil {
		return
	}
	for _, e := range m.entries {
		if !fn(e.key, e.value) {
			return
		}
	}
}

// Clone produces an independent map; copyValue, when provided, deep
// copies each stored value.
func (m *Map[K, V]) Clone(copyValue func(V) V) *Map[K, V] {
	if m == nil {
		return nil
	}
	clone := &Map[K, V]{
		rank:    m.rank,
		entries: make([]entry[K, V], len(m.entries)),
		present: make(map[K]struct{}, len(m.present)),
	}
	copy(clone.entries, m.entries)
	for key := range m.present {
		clone.present[key] = struct{}{}
	}
	if copyValue != nil {
		for i := range clone.entries {
			clone.entries[i].value = copyValue(clone.entries[i].value)
		}
	}
	return clone
}

// locate finds the exact index of key, scanning neighbours with an equal
// rank, and returns -1 when the key is absent.
func (m *Map[K, V]) locate(key K) int {
	rank := m.rank(key)
	idx := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].rank >= rank })
	for ; idx < len(m.entries) && m.entries[idx].rank == rank; idx++ {
		if m.entries[idx].key == key {
			return idx
		}
	}
	return -1
}

package lsmap

import (
	"github.com/google/btree"
)

// btreeDegree is the branching factor of the B-tree back-end.
const btreeDegree = 32

type btreeEntry struct {
	key   Sector
	value *Mapping
}

func btreeEntryLess(a, b btreeEntry) bool {
	return a.key < b.key
}

// btreeMap is the "bt" back-end. It is synchronous; the dispatcher
// serializes access with a mutex.
type btreeMap struct {
	tr *btree.BTreeG[btreeEntry]
}

func newBTreeMap() *btreeMap {
	return &btreeMap{tr: btree.NewG(btreeDegree, btreeEntryLess)}
}

func (m *btreeMap) lookup(key Sector) *Mapping {
	entry, found := m.tr.Get(btreeEntry{key: key})
	if !found {
		return nil
	}

	return entry.value
}

func (m *btreeMap) insert(key Sector, v *Mapping) error {
	if key == 0 {
		return ErrZeroKey
	}

	if _, found := m.tr.Get(btreeEntry{key: key}); found {
		return ErrDuplicateKey
	}

	m.tr.ReplaceOrInsert(btreeEntry{key: key, value: v})

	return nil
}

func (m *btreeMap) remove(key Sector) bool {
	_, removed := m.tr.Delete(btreeEntry{key: key})
	return removed
}

func (m *btreeMap) predecessor(key Sector) (Sector, *Mapping, bool) {
	if key == 0 {
		return 0, nil, false
	}

	var (
		prevKey   Sector
		prevValue *Mapping
		found     bool
	)

	m.tr.DescendLessOrEqual(btreeEntry{key: key - 1}, func(entry btreeEntry) bool {
		prevKey = entry.key
		prevValue = entry.value
		found = true

		return false
	})

	return prevKey, prevValue, found
}

func (m *btreeMap) greatestKey() Sector {
	entry, found := m.tr.Max()
	if !found {
		return 0
	}

	return entry.key
}

func (m *btreeMap) isEmpty() bool {
	return m.tr.Len() == 0
}

func (m *btreeMap) destroy() {
	m.tr.Clear(false)
}

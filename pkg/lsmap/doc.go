// Package lsmap provides the ordered LBA→PBA indirection map behind a
// log-structured block device, in four interchangeable back-ends.
//
// # Basic Usage
//
//	m, err := lsmap.New(lsmap.BackendSkipList)
//	if err != nil {
//	    // unknown back-end tag
//	}
//	defer m.Destroy()
//
//	_ = m.Insert(key, &lsmap.Mapping{PBA: pba, Length: size})
//	v, found := m.Lookup(key)
//	prevKey, prev, found := m.Predecessor(key)
//
// # Back-ends
//
// The tag passed to [New] selects the implementation:
//   - "sl" — lock-free skip list
//   - "ht" — hash table of lock-free sorted linked lists
//   - "bt" — B-tree
//   - "rb" — red-black tree
//
// # Concurrency
//
// The skip list and hash table are non-blocking: concurrent Insert, Remove,
// Lookup and Predecessor calls are safe and linearizable. The tree back-ends
// are synchronous; [New] wraps them in a mutex so every [Map] returned is
// safe for concurrent use.
//
// # Lifetime
//
// Map nodes come from typed arenas (pkg/slab) and are reclaimed in bulk by
// [Map.Destroy]. Nodes removed from a lock-free back-end are parked on a
// retired stack until then, so concurrent readers never observe freed memory.
// Destroy must only be called once all readers and writers have quiesced.
package lsmap

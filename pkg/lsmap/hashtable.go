package lsmap

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/qrutyy/ls-bdd/pkg/slab"
)

const (
	// htBits sizes the bucket array at 1<<17.
	htBits = 17
	// bucketCount is the number of buckets.
	bucketCount = 1 << htBits
	// chunkSize groups 2048 consecutive sectors of key space per bucket,
	// so a bucket's list stays short and sorted.
	chunkSize = 2048
)

// bucketIndex hashes the key's chunk number into the bucket array.
func bucketIndex(key Sector) uint32 {
	var b [8]byte

	binary.LittleEndian.PutUint64(b[:], uint64(key)/chunkSize)

	return uint32(xxhash.Sum64(b[:]) & (bucketCount - 1))
}

// hashMap is an array of 2^17 buckets, each an independent lock-free sorted
// linked list. Keys are ordered within a bucket only; the cached lastEl and
// maxBucket stand in for the global order the array does not have.
type hashMap struct {
	buckets   [bucketCount]atomic.Pointer[lfList]
	lastEl    atomic.Pointer[listNode]
	maxBucket atomic.Int64
	size      atomic.Int64
	nodes     *slab.Arena[listNode]
	log       *zap.Logger
}

func newHashMap(nodes *slab.Arena[listNode], log *zap.Logger) *hashMap {
	return &hashMap{nodes: nodes, log: log}
}

// bucket returns the list at idx, creating it on first touch. Buckets are
// materialized lazily; most of the array never sees a key.
func (h *hashMap) bucket(idx uint32) *lfList {
	if l := h.buckets[idx].Load(); l != nil {
		return l
	}

	fresh := newLFList(h.nodes, h.log)
	if h.buckets[idx].CompareAndSwap(nil, fresh) {
		return fresh
	}

	return h.buckets[idx].Load()
}

// peekBucket returns the list at idx without materializing it.
func (h *hashMap) peekBucket(idx uint32) *lfList {
	return h.buckets[idx].Load()
}

func (h *hashMap) insert(key Sector, v *Mapping) error {
	if key == 0 {
		return ErrZeroKey
	}

	idx := bucketIndex(key)

	node, err := h.bucket(idx).insert(key, v)
	if err != nil {
		return err
	}

	h.size.Add(1)
	h.bumpMaxBucket(int64(idx))
	h.bumpLastEl(node)

	return nil
}

func (h *hashMap) bumpMaxBucket(idx int64) {
	for {
		old := h.maxBucket.Load()
		if idx <= old {
			return
		}

		if h.maxBucket.CompareAndSwap(old, idx) {
			return
		}
	}
}

// bumpLastEl advances the cached maximum-keyed node. Never decreases;
// removal of the maximum leaves the cache stale, matching the cache's role
// as a high-water mark for system-I/O classification.
func (h *hashMap) bumpLastEl(node *listNode) {
	if node == nil {
		return
	}

	for {
		old := h.lastEl.Load()
		if old != nil && old.key >= node.key {
			return
		}

		if h.lastEl.CompareAndSwap(old, node) {
			return
		}
	}
}

func (h *hashMap) lookup(key Sector) *Mapping {
	list := h.peekBucket(bucketIndex(key))
	if list == nil {
		return nil
	}

	node := list.lookup(key)
	if node == nil {
		return nil
	}

	return node.value
}

// predecessor searches key's own bucket first; when that bucket has no
// usable left neighbor the search falls back to the previous bucket index,
// clamped to the highest ever populated. Buckets are hashed, so the
// fallback is best-effort — absent a hit, there is no predecessor.
func (h *hashMap) predecessor(key Sector) (Sector, *Mapping, bool) {
	idx := bucketIndex(key)

	if list := h.peekBucket(idx); list != nil {
		if node := list.predecessor(key); node != nil {
			return node.key, node.value, true
		}
	}

	if idx == 0 {
		return 0, nil, false
	}

	fallback := min(int64(idx)-1, h.maxBucket.Load())
	if fallback < 0 {
		return 0, nil, false
	}

	list := h.peekBucket(uint32(fallback))
	if list == nil {
		return 0, nil, false
	}

	node := list.predecessor(key)
	if node == nil {
		return 0, nil, false
	}

	return node.key, node.value, true
}

func (h *hashMap) remove(key Sector) bool {
	list := h.peekBucket(bucketIndex(key))
	if list == nil {
		return false
	}

	if !list.remove(key) {
		return false
	}

	h.size.Add(-1)

	return true
}

func (h *hashMap) greatestKey() Sector {
	node := h.lastEl.Load()
	if node == nil {
		return 0
	}

	return node.key
}

func (h *hashMap) isEmpty() bool {
	return h.size.Load() == 0
}

func (h *hashMap) destroy() {
	for i := range h.buckets {
		if list := h.buckets[i].Load(); list != nil {
			list.destroy()
			h.buckets[i].Store(nil)
		}
	}

	h.lastEl.Store(nil)
	h.size.Store(0)
	h.maxBucket.Store(0)
}

package lsmap

import (
	"math/bits"
	"math/rand/v2"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"

	"github.com/qrutyy/ls-bdd/pkg/slab"
)

// maxLevels caps skip list tower height.
const maxLevels = 24

// unlinkMode controls how the skip list search treats marked nodes it
// encounters on the way down.
type unlinkMode int

const (
	// dontUnlink skips marked nodes without touching the structure.
	dontUnlink unlinkMode = iota
	// assistUnlink unlinks marked nodes opportunistically.
	assistUnlink
	// forceUnlink sweeps the target's tower out of every level.
	forceUnlink
)

// slNode is a skip list tower. Every next[i] carries the deletion mark in
// its low-order bit. value is swapped to nil by the winning remover, so a
// reader holding the node can tell a live entry from a dying one.
type slNode struct {
	key    Sector
	value  atomic.Pointer[Mapping]
	height int32
	next   [maxLevels]atomic.Uintptr
}

func slRef(n *slNode) uintptr {
	return uintptr(unsafe.Pointer(n))
}

func slDeref(v uintptr) *slNode {
	return (*slNode)(stripMark(v))
}

// skipList is a lock-free ordered map over up to 24 levels. The head guard
// spans the full height; lists are nil-terminated on the right.
type skipList struct {
	head     *slNode
	maxLevel atomic.Int32
	lastKey  atomic.Uint64
	nodes    *slab.Arena[slNode]
	log      *zap.Logger
}

func newSkipList(nodes *slab.Arena[slNode], log *zap.Logger) *skipList {
	s := &skipList{nodes: nodes, log: log}
	s.maxLevel.Store(1)
	s.head = nodes.Get()
	s.head.height = maxLevels

	return s
}

// randomLevels draws a tower height from the trailing zeros of a random
// word, halved. Beating the current high-water mark raises it by one.
func (s *skipList) randomLevels() int {
	levels := bits.TrailingZeros32(rand.Uint32()) / 2
	if levels == 0 {
		levels = 1
	}

	if levels > maxLevels {
		levels = maxLevels
	}

	if int32(levels) > s.maxLevel.Load() {
		levels = int(s.maxLevel.Add(1))
	}

	return levels
}

// findPreds is the traversal workhorse: a top-down descent that fills
// preds/succs for the bottom n levels and returns the node matching key, if
// any. Marked nodes are skipped or unlinked per mode; losing an unlink CAS
// to a concurrent marker restarts the descent from the head.
func (s *skipList) findPreds(preds, succs *[maxLevels]*slNode, n int, key Sector, mode unlinkMode) *slNode {
restart:
	for {
		pred := s.head

		var node *slNode

		found := false

		for level := int(s.maxLevel.Load()) - 1; level >= 0; level-- {
			next := pred.next[level].Load()

			if next == 0 && level >= n {
				continue
			}

			if isMarked(next) {
				// pred got marked under us; its links are dying.
				continue restart
			}

			node = slDeref(next)

			for node != nil {
				next = node.next[level].Load()

				for isMarked(next) {
					if mode == dontUnlink {
						node = slDeref(next)
						if node == nil {
							break
						}

						next = node.next[level].Load()

						continue
					}

					// Unlink the dying node from this level.
					if pred.next[level].CompareAndSwap(slRef(node), uintptr(stripMark(next))) {
						node = slDeref(next)
					} else {
						other := pred.next[level].Load()
						if isMarked(other) {
							continue restart
						}

						node = slDeref(other)
					}

					if node == nil {
						break
					}

					next = node.next[level].Load()
				}

				if node == nil {
					break
				}

				if node.key >= key {
					found = node.key == key
					break
				}

				pred = node
				node = slDeref(next)
			}

			if level < n {
				if preds != nil {
					preds[level] = pred
				}

				if succs != nil {
					succs[level] = node
				}
			}
		}

		if found {
			return node
		}

		return nil
	}
}

// lookup returns the live value for key, or nil. A node whose value has been
// swapped out belongs to a completed remove and reads as absent.
func (s *skipList) lookup(key Sector) *Mapping {
	node := s.findPreds(nil, nil, 0, key, dontUnlink)
	if node == nil {
		return nil
	}

	return node.value.Load()
}

// insert links a tower for key, or updates the value in place when the key
// already exists. Losing the value CAS to a concurrent remover retries the
// whole insert, so the operation always leaves the key live on success.
func (s *skipList) insert(key Sector, v *Mapping) error {
	if key == 0 {
		return ErrZeroKey
	}

	var preds, succs [maxLevels]*slNode

	for {
		n := s.randomLevels()

		old := s.findPreds(&preds, &succs, n, key, assistUnlink)
		if old != nil {
			if s.updateNode(old, v) {
				s.bumpLastKey(key)
				return nil
			}

			// Lost to a remover mid-update; insert fresh.
			continue
		}

		node := s.nodes.Get()
		node.key = key
		node.height = int32(n)
		node.value.Store(v)

		for level := 0; level < n; level++ {
			node.next[level].Store(slRef(succs[level]))
		}

		// Linking the bottom level makes the node part of the list.
		if !casLink(preds[0], succs[0], node, 0) {
			continue
		}

		s.linkUpperLevels(&preds, &succs, node, key)
		s.bumpLastKey(key)

		return nil
	}
}

// casLink links node between pred and succ at the given level.
func casLink(pred, succ, node *slNode, level int) bool {
	return pred.next[level].CompareAndSwap(slRef(succ), slRef(node))
}

// updateNode swaps the value of an existing node. Returns false when the
// node's value is already the removal sentinel, meaning a remover won.
func (s *skipList) updateNode(node *slNode, v *Mapping) bool {
	for {
		old := node.value.Load()
		if old == nil {
			return false
		}

		if node.value.CompareAndSwap(old, v) {
			return true
		}
	}
}

// linkUpperLevels links node into levels 1..height-1, re-resolving preds on
// contention. If the node is observed marked while still being linked, a
// concurrent remove won; a force sweep finishes the disconnect.
func (s *skipList) linkUpperLevels(preds, succs *[maxLevels]*slNode, node *slNode, key Sector) {
	height := int(node.height)

	for level := 1; level < height; level++ {
		for {
			if casLink(preds[level], succs[level], node, level) {
				break
			}

			// Lost the race at this level: recompute the windows and
			// repair the node's own next pointers before retrying.
			s.findPreds(preds, succs, height, key, assistUnlink)

			for i := level; i < height; i++ {
				oldNext := node.next[i].Load()
				if slRef(succs[i]) == oldNext {
					continue
				}

				if !node.next[i].CompareAndSwap(oldNext, slRef(succs[i])) && isMarked(node.next[i].Load()) {
					s.findPreds(nil, nil, 0, key, forceUnlink)
					return
				}
			}
		}
	}

	if isMarked(node.next[height-1].Load()) {
		s.findPreds(nil, nil, 0, key, forceUnlink)
	}
}

// remove marks key's tower top-down; the bottom-level mark decides which
// remover wins. The winner swaps the value to the sentinel and sweeps the
// tower out. Returns false when the key is absent or another remover won.
func (s *skipList) remove(key Sector) bool {
	var preds [maxLevels]*slNode

	node := s.findPreds(&preds, nil, int(s.maxLevel.Load()), key, assistUnlink)
	if node == nil {
		return false
	}

	for level := int(node.height) - 1; level >= 0; level-- {
		for {
			old := node.next[level].Load()
			if isMarked(old) {
				if level == 0 {
					return false
				}

				break
			}

			if node.next[level].CompareAndSwap(old, mark(old)) {
				break
			}
		}
	}

	// Swap, not store: the order against a concurrent value update decides
	// which operation is logically first.
	node.value.Swap(nil)
	s.findPreds(nil, nil, 0, key, forceUnlink)

	return true
}

// predecessor returns the rightmost live entry with key strictly less than
// key. A candidate gutted by a concurrent remove shifts the search window
// left and the descent repeats.
func (s *skipList) predecessor(key Sector) (Sector, *Mapping, bool) {
	for retry := 0; retry < maxLookupRetries; retry++ {
		pred := s.head

		for level := int(s.maxLevel.Load()) - 1; level >= 0; level-- {
			for {
				node := slDeref(pred.next[level].Load())
				if node == nil || node.key >= key {
					break
				}

				pred = node
			}
		}

		if pred == s.head {
			return 0, nil, false
		}

		if v := pred.value.Load(); v != nil {
			return pred.key, v, true
		}

		key = pred.key
	}

	s.log.Warn("skiplist: predecessor retry budget exhausted", zap.Uint64("key", uint64(key)))

	return 0, nil, false
}

// bumpLastKey raises the cached greatest key. It never decreases: the cache
// tracks the largest key ever inserted, mirroring the write-path's
// monotonically growing key space.
func (s *skipList) bumpLastKey(key Sector) {
	for {
		old := s.lastKey.Load()
		if uint64(key) <= old {
			return
		}

		if s.lastKey.CompareAndSwap(old, uint64(key)) {
			return
		}
	}
}

func (s *skipList) greatestKey() Sector {
	return Sector(s.lastKey.Load())
}

func (s *skipList) isEmpty() bool {
	return stripMark(s.head.next[0].Load()) == nil
}

// destroy severs the bottom-level chain. Tower memory goes back with the
// arena, released by the owning dispatcher after this returns.
func (s *skipList) destroy() {
	node := slDeref(s.head.next[0].Load())
	for node != nil {
		next := slDeref(node.next[0].Load())
		node.value.Store(nil)
		node.next[0].Store(0)
		node = next
	}

	for level := range s.head.next {
		s.head.next[level].Store(0)
	}

	s.lastKey.Store(0)
}

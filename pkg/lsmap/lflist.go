package lsmap

import (
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"

	"github.com/qrutyy/ls-bdd/pkg/slab"
)

// maxLookupRetries bounds livelock in the window search. A search that loses
// this many CAS races in a row gives up with [ErrContention].
const maxLookupRetries = 10000

const (
	listHeadKey = Sector(0)
	listTailKey = ^Sector(0)
)

// listNode is one entry of a lock-free sorted linked list. next carries the
// deletion mark in its low-order bit. Nodes never move once linked;
// retiredLink threads logically deleted nodes onto the list's retired stack.
type listNode struct {
	key         Sector
	value       *Mapping
	next        atomic.Uintptr
	retiredLink *listNode
}

func listRef(n *listNode) uintptr {
	return uintptr(unsafe.Pointer(n))
}

func listDeref(v uintptr) *listNode {
	return (*listNode)(stripMark(v))
}

// lfList is a sorted singly linked list anchored by two guard nodes
// (head key 0, tail key MaxUint64). Insert, remove and the window search are
// non-blocking; physical unlinking of marked nodes happens opportunistically
// inside the search.
type lfList struct {
	head    *listNode
	tail    *listNode
	retired atomic.Pointer[listNode]
	size    atomic.Int64
	nodes   *slab.Arena[listNode]
	log     *zap.Logger
}

func newLFList(nodes *slab.Arena[listNode], log *zap.Logger) *lfList {
	l := &lfList{nodes: nodes, log: log}

	l.head = nodes.Get()
	l.head.key = listHeadKey
	l.tail = nodes.Get()
	l.tail.key = listTailKey
	l.head.next.Store(listRef(l.tail))

	return l
}

// search locates the window (left, right) with left.key < key <= right.key
// where left is unmarked. Marked runs found between the two are physically
// unlinked by swinging left.next onto right. Returns ok=false when key is 0,
// when the retry budget runs out, or on structural corruption.
func (l *lfList) search(key Sector) (right, left *listNode, ok bool) {
	if key == 0 {
		return nil, nil, false
	}

	for retry := 0; retry < maxLookupRetries; retry++ {
		left = l.head
		leftNextSnap := l.head.next.Load()

		t := l.head
		tNext := t.next.Load()

		// Walk until the first unmarked node with key >= key. Marked
		// nodes are stepped over; the last unmarked predecessor and the
		// snapshot of its next pointer delimit the dirty run.
		for isMarked(tNext) || (t != l.tail && t.key < key) {
			if t == listDeref(tNext) {
				l.log.Error("lflist: node points to itself, aborting search",
					zap.Uint64("key", uint64(key)))
				return nil, nil, false
			}

			if !isMarked(tNext) {
				left = t
				leftNextSnap = tNext
			}

			t = listDeref(tNext)
			if t == l.tail {
				break
			}

			tNext = t.next.Load()
		}

		right = t

		if listDeref(leftNextSnap) == right {
			// Clean window. If right itself is being deleted the
			// window is stale regardless; search again.
			if right != l.tail && isMarked(right.next.Load()) {
				continue
			}

			return right, left, true
		}

		// Dirty window: marked nodes sit between left and right. Unlink
		// them in one swing. Either way the list changed under us, so
		// retry the search.
		left.next.CompareAndSwap(leftNextSnap, listRef(right))
	}

	l.log.Warn("lflist: search retry budget exhausted", zap.Uint64("key", uint64(key)))

	return nil, nil, false
}

// insert links a new node for key. Returns ErrDuplicateKey if the key is
// already present, ErrZeroKey for key 0, ErrContention when the search gives
// up. An abandoned node stays in the arena until destroy.
func (l *lfList) insert(key Sector, v *Mapping) (*listNode, error) {
	if key == 0 {
		return nil, ErrZeroKey
	}

	node := l.nodes.Get()
	node.key = key
	node.value = v

	for {
		right, left, ok := l.search(key)
		if !ok {
			return nil, ErrContention
		}

		if right != l.tail && right.key == key {
			return nil, ErrDuplicateKey
		}

		node.next.Store(listRef(right))

		if left.next.CompareAndSwap(listRef(right), listRef(node)) {
			l.size.Add(1)
			return node, nil
		}
	}
}

// lookup returns the node with exactly key, or nil.
func (l *lfList) lookup(key Sector) *listNode {
	right, _, ok := l.search(key)
	if !ok || right == l.tail || right.key != key {
		return nil
	}

	return right
}

// predecessor returns the rightmost node with key strictly less than key,
// or nil when no such node exists (the window's left guard is the head).
func (l *lfList) predecessor(key Sector) *listNode {
	_, left, ok := l.search(key)
	if !ok || left == nil || left == l.head {
		return nil
	}

	return left
}

// remove logically deletes key by marking its node's next pointer. The
// marking CAS is the linearization point; the winner parks the node on the
// retired stack. Removing an absent key returns false.
func (l *lfList) remove(key Sector) bool {
	for {
		right, _, ok := l.search(key)
		if !ok {
			return false
		}

		if right == l.tail || right.key != key {
			return false
		}

		succ := right.next.Load()
		if isMarked(succ) {
			// Another remover already won; the key is gone.
			return true
		}

		if right.next.CompareAndSwap(succ, mark(succ)) {
			l.size.Add(-1)
			l.pushRetired(right)

			return true
		}
	}
}

// pushRetired parks a logically deleted node for destroy-time reclamation
// (Treiber stack). The self-link check catches double removal, which would
// otherwise cycle the stack.
func (l *lfList) pushRetired(node *listNode) {
	for {
		old := l.retired.Load()
		if old == node {
			l.log.Warn("lflist: node already heads the retired stack, not re-adding",
				zap.Uint64("key", uint64(node.key)))
			return
		}

		node.retiredLink = old

		if l.retired.CompareAndSwap(old, node) {
			return
		}
	}
}

// destroy walks the live chain and the retired stack, severing every node.
// The lastSevered watermark detects structural corruption (a node reachable
// twice) and skips it instead of looping. Node memory itself goes back with
// the arena, which the owning back-end releases after this returns.
func (l *lfList) destroy() {
	var lastSevered *listNode

	node := listDeref(l.head.next.Load())
	for node != nil && node != l.tail {
		next := listDeref(node.next.Load())

		if node == lastSevered {
			l.log.Warn("lflist: node reachable twice in live chain, skipping",
				zap.Uint64("key", uint64(node.key)))
		} else {
			node.value = nil
			node.next.Store(0)
			lastSevered = node
		}

		node = next
	}

	retired := l.retired.Swap(nil)
	lastSevered = nil

	for node = retired; node != nil; {
		next := node.retiredLink

		if node == lastSevered {
			l.log.Warn("lflist: node reachable twice in retired stack, skipping",
				zap.Uint64("key", uint64(node.key)))
		} else {
			node.value = nil
			node.retiredLink = nil
			lastSevered = node
		}

		node = next
	}

	l.head.next.Store(listRef(l.tail))
	l.size.Store(0)
}

package lsmap

import "unsafe"

// Low-bit pointer tagging for the lock-free back-ends. A node's next pointer
// carries a 1-bit deletion mark in its low-order bit: a marked next means the
// node holding it is logically deleted. Nodes come from pkg/slab arenas, whose
// records are at least 8-byte aligned, so the bit is free.
//
// The arena also keeps every node strongly reachable for the GC, which is
// what makes storing bare uintptrs in atomics safe here.

const markBit uintptr = 0x1

func mark(v uintptr) uintptr {
	return v | markBit
}

func isMarked(v uintptr) bool {
	return v&markBit != 0
}

func stripMark(v uintptr) unsafe.Pointer {
	return unsafe.Pointer(v &^ markBit) //nolint:govet // tagged pointers are arena-pinned
}

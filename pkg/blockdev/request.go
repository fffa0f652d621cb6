package blockdev

import (
	"sync"
	"sync/atomic"

	"github.com/qrutyy/ls-bdd/pkg/lsmap"
)

// Op is an I/O opcode. Values other than [OpRead] and [OpWrite] are passed
// through to the backing device without redirection.
type Op uint8

const (
	// OpRead reads through the indirection map.
	OpRead Op = iota
	// OpWrite appends at the log head and updates the map.
	OpWrite
	// OpFlush is an example of a non-mapped opcode; the engine forwards it
	// unchanged.
	OpFlush
)

// String returns the opcode mnemonic.
func (op Op) String() string {
	switch op {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpFlush:
		return "flush"
	default:
		return "unknown"
	}
}

// Request is one I/O descriptor entering the engine. Data's length is the
// request's byte size and must be a positive multiple of the sector size for
// reads and writes. OnComplete fires exactly once, after the last derived
// clone has completed.
type Request struct {
	Device     string
	Op         Op
	Sector     lsmap.Sector
	Data       []byte
	OnComplete func(error)
}

// completion chains a request's clones back to its callback: the original
// completes exactly when every derived clone has.
type completion struct {
	pending atomic.Int32
	errOnce sync.Once
	err     error
	done    func(error)
}

func newCompletion(done func(error)) *completion {
	c := &completion{done: done}
	c.pending.Store(1)

	return c
}

// fork accounts for one more clone in flight.
func (c *completion) fork() {
	c.pending.Add(1)
}

// complete retires one clone. The first error wins; the callback fires when
// the last clone retires.
func (c *completion) complete(err error) {
	if err != nil {
		c.errOnce.Do(func() { c.err = err })
	}

	if c.pending.Add(-1) == 0 && c.done != nil {
		c.done(c.err)
	}
}

// clone is a derived descriptor targeting the backing device. sector is the
// target in backing-device space; data aliases a window of the original
// request's buffer.
type clone struct {
	dev    *VirtualDevice
	op     Op
	sector lsmap.Sector
	data   []byte
	parent *completion
}

// split peels the first n bytes off the clone into a child that is submitted
// immediately and chained to the parent completion. The tail advances both
// its target sector and its buffer window.
func (c *clone) split(n uint32) {
	child := &clone{
		dev:    c.dev,
		op:     c.op,
		sector: c.sector,
		data:   c.data[:n],
		parent: c.parent,
	}

	c.parent.fork()
	child.submit()

	c.sector += lsmap.Sector(n / lsmap.SectorSize)
	c.data = c.data[n:]
}

// submit performs the clone's I/O against the backing device and retires it.
func (c *clone) submit() {
	off := int64(c.sector) * lsmap.SectorSize

	var err error

	switch c.op {
	case OpRead:
		_, err = c.dev.Backing.ReadAt(c.data, off)
	case OpWrite:
		_, err = c.dev.Backing.WriteAt(c.data, off)
	default:
		// Non-mapped opcode: nothing to transfer.
	}

	c.parent.complete(err)
}

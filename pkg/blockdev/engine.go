package blockdev

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/qrutyy/ls-bdd/pkg/lsmap"
	"github.com/qrutyy/ls-bdd/pkg/slab"
)

// SectorOffset is the initial value of the log head. Physical sector 0 and
// the sectors below the offset are never handed out, which also keeps key 0
// out of the maps (their head guards own it).
const SectorOffset = 32

// Option configures an [Engine].
type Option func(*Engine)

// WithLogger routes engine diagnostics to log instead of discarding them.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// Engine is the I/O redirection core. The only state shared across requests
// is the log head and the per-device indirection maps, so Submit may be
// called from any number of goroutines.
type Engine struct {
	registry *Registry
	nextFree atomic.Uint64
	values   *slab.Arena[lsmap.Mapping]
	log      *zap.Logger
}

// NewEngine creates an engine over the registry with the log head at
// [SectorOffset].
func NewEngine(registry *Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		values:   slab.New[lsmap.Mapping](0),
		log:      zap.NewNop(),
	}
	e.nextFree.Store(SectorOffset)

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// NextFreeSector exposes the current log head, mainly for the control
// surface and tests.
func (e *Engine) NextFreeSector() lsmap.Sector {
	return lsmap.Sector(e.nextFree.Load())
}

// Submit routes one request: resolve the target device, derive a clone onto
// its backing device, redirect by opcode, submit. The request's OnComplete
// fires exactly once, when the last derived clone has completed.
func (e *Engine) Submit(req *Request) {
	done := newCompletion(req.OnComplete)

	// Lookup and in-flight registration share the registry lock, so an
	// Unbind either makes the lookup fail or waits for this request.
	var dev *VirtualDevice

	e.registry.mu.Lock()
	for _, d := range e.registry.devices {
		if d.Name == req.Device {
			dev = d
			dev.inflight.Add(1)
		}
	}
	e.registry.mu.Unlock()

	if dev == nil {
		done.complete(fmt.Errorf("%w: %s", ErrNoDevice, req.Device))
		return
	}

	defer dev.inflight.Done()

	var err error

	if (req.Op == OpRead || req.Op == OpWrite) && !aligned(req.Data) {
		done.complete(fmt.Errorf("%w: %d bytes", ErrUnaligned, len(req.Data)))
		return
	}

	c := &clone{
		dev:    dev,
		op:     req.Op,
		sector: req.Sector,
		data:   req.Data,
		parent: done,
	}

	switch req.Op {
	case OpRead:
		err = e.setupRead(req, c, dev)
	case OpWrite:
		err = e.setupWrite(req, c, dev)
	default:
		e.log.Warn("unknown opcode, passing through",
			zap.String("device", dev.Name),
			zap.Uint8("op", uint8(req.Op)))
	}

	if err != nil {
		done.complete(err)
		return
	}

	c.submit()
}

func aligned(data []byte) bool {
	return len(data) > 0 && len(data)%lsmap.SectorSize == 0
}

// setupWrite allocates a fresh PBA range at the log head, replaces any prior
// mapping for the LBA and retargets the clone. The log head advances exactly
// once per accepted write, duplicate LBA or not, so handed-out PBA ranges
// are always disjoint.
func (e *Engine) setupWrite(req *Request, c *clone, dev *VirtualDevice) error {
	sectors := uint64(len(req.Data) / lsmap.SectorSize)
	pba := lsmap.Sector(e.nextFree.Add(sectors) - sectors)

	v := e.values.Get()
	v.PBA = pba
	v.Length = uint32(len(req.Data))

	if _, ok := dev.Map.Lookup(req.Sector); ok {
		// The old value's PBA range becomes dead; there is no cleaning.
		dev.Map.Remove(req.Sector)
	}

	if err := dev.Map.Insert(req.Sector, v); err != nil {
		return fmt.Errorf("map write for %s: %w", dev.Name, err)
	}

	c.sector = pba

	e.log.Debug("write redirected",
		zap.String("device", dev.Name),
		zap.Uint64("lba", uint64(req.Sector)),
		zap.Uint64("pba", uint64(pba)),
		zap.Int("bytes", len(req.Data)))

	return nil
}

// setupRead resolves a read against the map: exact-match reads start at
// their segment head, interior reads start at an offset into their
// predecessor segment, and anything outside the mapped key space passes
// through as system I/O.
func (e *Engine) setupRead(req *Request, c *clone, dev *VirtualDevice) error {
	lba := req.Sector

	if v, ok := dev.Map.Lookup(lba); ok {
		e.resolveSegments(c, dev, lba, v, 0)
		return nil
	}

	prevKey, prev, found := dev.Map.Predecessor(lba)

	if classifySystemIO(dev.Map, lba, prevKey, prev, found) {
		c.sector = lba

		e.log.Debug("system I/O pass-through",
			zap.String("device", dev.Name),
			zap.Uint64("lba", uint64(lba)))

		return nil
	}

	if !found {
		// Unmapped and no predecessor: complete the clone as-is.
		c.sector = lba
		return nil
	}

	e.resolveSegments(c, dev, prevKey, prev, int64(lba-prevKey)*lsmap.SectorSize)

	return nil
}

// classifySystemIO reports whether a read at lba must not be redirected:
// bring-up probes poll at arbitrary sectors before anything is mapped, and
// anything outside every mapped segment and beyond the greatest mapped key
// was never written through us. A read inside the extent of its predecessor
// segment is interior, never system I/O — the greatest key is a segment
// start, so the comparison alone would misclassify reads into the tail of
// the last segment.
func classifySystemIO(m lsmap.Map, lba, prevKey lsmap.Sector, prev *lsmap.Mapping, found bool) bool {
	if m.IsEmpty() || lba == 0 {
		return true
	}

	if found && lba < prevKey+prev.Sectors() {
		return false
	}

	return lba > m.GreatestKey()
}

// resolveSegments drives the split loop. seg is the segment the read begins
// in, segLBA its key, offset the byte offset of the read's start within it.
// Whenever the remainder crosses the segment end, the covered prefix is
// peeled off as a child clone and the tail is retargeted at the next mapped
// segment; if no next segment exists the remainder completes against the
// current segment's boundary.
func (e *Engine) resolveSegments(c *clone, dev *VirtualDevice, segLBA lsmap.Sector, seg *lsmap.Mapping, offset int64) {
	c.sector = seg.PBA + lsmap.Sector(offset/lsmap.SectorSize)
	toEnd := int64(seg.Length) - offset

	if toEnd <= 0 {
		// The read starts in the gap past the segment's end; serve it
		// contiguously from the redirected offset, like any other
		// remainder with no next segment.
		return
	}

	for int64(len(c.data)) > toEnd {
		c.split(uint32(toEnd))

		segLBA += seg.Sectors()

		next, ok := dev.Map.Lookup(segLBA)
		if !ok {
			e.log.Debug("read remainder has no next segment",
				zap.String("device", dev.Name),
				zap.Uint64("lba", uint64(segLBA)),
				zap.Int("remaining", len(c.data)))

			return
		}

		seg = next
		c.sector = seg.PBA
		toEnd = int64(seg.Length)
	}
}

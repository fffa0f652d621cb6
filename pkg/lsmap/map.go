package lsmap

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/qrutyy/ls-bdd/pkg/slab"
)

// Backend tags one of the four ordered-map implementations.
type Backend string

const (
	// BackendBTree selects the B-tree ("bt").
	BackendBTree Backend = "bt"
	// BackendSkipList selects the lock-free skip list ("sl").
	BackendSkipList Backend = "sl"
	// BackendHashTable selects the hash table of lock-free sorted lists ("ht").
	BackendHashTable Backend = "ht"
	// BackendRBTree selects the red-black tree ("rb").
	BackendRBTree Backend = "rb"
)

// Backends lists the recognized back-end tags in presentation order.
func Backends() []Backend {
	return []Backend{BackendBTree, BackendSkipList, BackendHashTable, BackendRBTree}
}

// Valid reports whether b names a known back-end.
func (b Backend) Valid() bool {
	switch b {
	case BackendBTree, BackendSkipList, BackendHashTable, BackendRBTree:
		return true
	default:
		return false
	}
}

// Concurrent reports whether the back-end is safe for concurrent use without
// external serialization. The dispatcher wraps the others in a mutex, so
// every [Map] returned by [New] is concurrency-safe either way; this only
// tells callers which ones are non-blocking.
func (b Backend) Concurrent() bool {
	return b == BackendSkipList || b == BackendHashTable
}

// Map is the ordered-map contract the redirection engine programs against.
//
// Keys are unique. Predecessor respects the total order on [Sector].
// The tree back-ends derive GreatestKey from the in-order traversal; the
// skip list and hash table cache it, raising the cache on every insert that
// exceeds it and never lowering it on remove.
type Map interface {
	// Lookup returns the value stored at exactly key.
	Lookup(key Sector) (*Mapping, bool)

	// Insert stores v at key. The caller guarantees key is absent;
	// back-ends report ErrDuplicateKey defensively if it is not.
	Insert(key Sector, v *Mapping) error

	// Remove deletes key, reporting whether it was present. Removing an
	// absent key is a logged no-op.
	Remove(key Sector) bool

	// Predecessor returns the entry with the greatest key strictly less
	// than key.
	Predecessor(key Sector) (Sector, *Mapping, bool)

	// GreatestKey returns the greatest key, or 0 when nothing was ever
	// inserted. For "bt" and "rb" it is the greatest key present. For "sl"
	// and "ht" it is the greatest key ever inserted: removing that key, or
	// every key, does not lower it.
	GreatestKey() Sector

	// IsEmpty reports whether the map holds no entries.
	IsEmpty() bool

	// Destroy tears the back-end down and reclaims every node. No other
	// method may be called concurrently with or after Destroy.
	Destroy()
}

// ordered is the internal back-end surface the dispatcher routes to.
type ordered interface {
	lookup(key Sector) *Mapping
	insert(key Sector, v *Mapping) error
	remove(key Sector) bool
	predecessor(key Sector) (Sector, *Mapping, bool)
	greatestKey() Sector
	isEmpty() bool
	destroy()
}

// Option configures a map created by [New].
type Option func(*options)

type options struct {
	log *zap.Logger
}

// WithLogger routes the map's diagnostics to log instead of discarding them.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// dispatched owns one back-end and its arenas, and adapts the internal
// surface to [Map]. It is the only writer of the backend tag.
type dispatched struct {
	backend Backend
	impl    ordered
	release func()
	log     *zap.Logger
}

// locked adds the per-map mutex required by the synchronous tree back-ends.
type locked struct {
	mu sync.Mutex
	dispatched
}

// New constructs the back-end named by backend behind the uniform [Map]
// contract. The returned map owns its node storage until Destroy.
func New(backend Backend, opts ...Option) (Map, error) {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	switch backend {
	case BackendSkipList:
		nodes := slab.New[slNode](0)

		return &dispatched{
			backend: backend,
			impl:    newSkipList(nodes, o.log),
			release: nodes.Release,
			log:     o.log,
		}, nil

	case BackendHashTable:
		nodes := slab.New[listNode](0)

		return &dispatched{
			backend: backend,
			impl:    newHashMap(nodes, o.log),
			release: nodes.Release,
			log:     o.log,
		}, nil

	case BackendBTree:
		return &locked{dispatched: dispatched{
			backend: backend,
			impl:    newBTreeMap(),
			log:     o.log,
		}}, nil

	case BackendRBTree:
		return &locked{dispatched: dispatched{
			backend: backend,
			impl:    newRBTree(),
			log:     o.log,
		}}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

func (d *dispatched) Lookup(key Sector) (*Mapping, bool) {
	v := d.impl.lookup(key)
	return v, v != nil
}

func (d *dispatched) Insert(key Sector, v *Mapping) error {
	if err := d.impl.insert(key, v); err != nil {
		return fmt.Errorf("%s insert key %d: %w", d.backend, key, err)
	}

	return nil
}

func (d *dispatched) Remove(key Sector) bool {
	removed := d.impl.remove(key)
	if !removed {
		d.log.Warn("remove of absent key",
			zap.String("backend", string(d.backend)),
			zap.Uint64("key", uint64(key)))
	}

	return removed
}

func (d *dispatched) Predecessor(key Sector) (Sector, *Mapping, bool) {
	return d.impl.predecessor(key)
}

func (d *dispatched) GreatestKey() Sector {
	return d.impl.greatestKey()
}

func (d *dispatched) IsEmpty() bool {
	return d.impl.isEmpty()
}

func (d *dispatched) Destroy() {
	d.impl.destroy()

	if d.release != nil {
		d.release()
	}
}

func (l *locked) Lookup(key Sector) (*Mapping, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.dispatched.Lookup(key)
}

func (l *locked) Insert(key Sector, v *Mapping) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.dispatched.Insert(key, v)
}

func (l *locked) Remove(key Sector) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.dispatched.Remove(key)
}

func (l *locked) Predecessor(key Sector) (Sector, *Mapping, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.dispatched.Predecessor(key)
}

func (l *locked) GreatestKey() Sector {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.dispatched.GreatestKey()
}

func (l *locked) IsEmpty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.dispatched.IsEmpty()
}

func (l *locked) Destroy() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.dispatched.Destroy()
}

// Compile-time interface satisfaction checks.
var (
	_ Map     = (*dispatched)(nil)
	_ Map     = (*locked)(nil)
	_ ordered = (*skipList)(nil)
	_ ordered = (*hashMap)(nil)
	_ ordered = (*btreeMap)(nil)
	_ ordered = (*rbTree)(nil)
)

package blockdev

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/c2h5oh/datasize"
	"github.com/google/uuid"

	"github.com/qrutyy/ls-bdd/pkg/lsmap"
)

// BackingDevice is the object the engine actually submits I/O to.
type BackingDevice interface {
	io.ReaderAt
	io.WriterAt
	io.Closer

	// Size returns the device capacity in bytes.
	Size() int64
}

// VirtualDevice is one bound device record: the name the upper layer issues
// I/O against, the backing device clones are submitted to, and the
// indirection map between them. Capacity mirrors the backing device.
type VirtualDevice struct {
	ID          uuid.UUID
	Name        string
	BackingName string
	Backing     BackingDevice
	Map         lsmap.Map
	Capacity    int64

	inflight sync.WaitGroup
}

// quiesce blocks until every submitted request against the device has
// completed. Called by the registry before tearing the map down.
func (d *VirtualDevice) quiesce() {
	d.inflight.Wait()
}

// memPrefix selects an in-memory backing device, e.g. "mem:64MB".
const memPrefix = "mem:"

// OpenBacking opens the backing device at path. A regular file or block
// device node is opened read-write; a "mem:<size>" path creates a volatile
// in-memory device, which is handy for exercising the engine without
// touching disk.
func OpenBacking(path string) (BackingDevice, error) {
	if strings.HasPrefix(path, memPrefix) {
		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(strings.TrimPrefix(path, memPrefix))); err != nil {
			return nil, fmt.Errorf("parse mem device size: %w", err)
		}

		return NewMemDevice(int64(size.Bytes())), nil
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open backing device: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat backing device: %w", err)
	}

	return &fileDevice{f: f, size: info.Size()}, nil
}

// fileDevice backs a virtual device with a regular file or device node.
// Reads past the written extent zero-fill, the way a fresh block device
// reads zeroes.
type fileDevice struct {
	f    *os.File
	size int64
}

func (d *fileDevice) ReadAt(p []byte, off int64) (int, error) {
	n, err := d.f.ReadAt(p, off)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		for i := n; i < len(p); i++ {
			p[i] = 0
		}

		return len(p), nil
	}

	return n, err
}

func (d *fileDevice) WriteAt(p []byte, off int64) (int, error) {
	return d.f.WriteAt(p, off)
}

func (d *fileDevice) Size() int64 {
	return d.size
}

func (d *fileDevice) Close() error {
	return d.f.Close()
}

// MemDevice is a volatile in-memory backing device.
type MemDevice struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemDevice creates an in-memory device of the given byte size.
func NewMemDevice(size int64) *MemDevice {
	return &MemDevice{data: make([]byte, size)}
}

func (d *MemDevice) ReadAt(p []byte, off int64) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if off < 0 || off >= int64(len(d.data)) {
		return 0, fmt.Errorf("mem device: read offset %d outside capacity %d", off, len(d.data))
	}

	n := copy(p, d.data[off:])
	if n < len(p) {
		for i := n; i < len(p); i++ {
			p[i] = 0
		}
	}

	return len(p), nil
}

func (d *MemDevice) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if off < 0 || off+int64(len(p)) > int64(len(d.data)) {
		return 0, fmt.Errorf("mem device: write [%d, %d) outside capacity %d", off, off+int64(len(p)), len(d.data))
	}

	return copy(d.data[off:], p), nil
}

func (d *MemDevice) Size() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return int64(len(d.data))
}

func (d *MemDevice) Close() error {
	return nil
}

// Compile-time interface satisfaction checks.
var (
	_ BackingDevice = (*fileDevice)(nil)
	_ BackingDevice = (*MemDevice)(nil)
)

package blockdev

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qrutyy/ls-bdd/pkg/lsmap"
)

// NamePrefix is the virtual-device naming scheme: "lsvbd" + decimal index.
const NamePrefix = "lsvbd"

// VirtualName returns the virtual device name for a bind index.
func VirtualName(index int) string {
	return NamePrefix + strconv.Itoa(index)
}

// Registry is the list of bound virtual devices. The list is the source of
// truth: devices are addressed both by name and by 1-based position.
type Registry struct {
	mu      sync.Mutex
	devices []*VirtualDevice
	log     *zap.Logger
}

// NewRegistry creates an empty registry. A nil logger discards diagnostics.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}

	return &Registry{log: log}
}

// Bind registers virtual device "lsvbd<index>" over the opened backing
// device, creating the device's indirection map with the given back-end.
// The backing device is closed if the bind fails.
func (r *Registry) Bind(index int, backing BackingDevice, backingName string, backend lsmap.Backend) (*VirtualDevice, error) {
	name := VirtualName(index)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, dev := range r.devices {
		if dev.Name == name {
			_ = backing.Close()
			return nil, fmt.Errorf("%w: %s", ErrNameTaken, name)
		}
	}

	m, err := lsmap.New(backend, lsmap.WithLogger(r.log))
	if err != nil {
		_ = backing.Close()
		return nil, fmt.Errorf("create map for %s: %w", name, err)
	}

	dev := &VirtualDevice{
		ID:          uuid.New(),
		Name:        name,
		BackingName: backingName,
		Backing:     backing,
		Map:         m,
		Capacity:    backing.Size(),
	}

	r.devices = append(r.devices, dev)

	r.log.Info("bound virtual device",
		zap.String("name", name),
		zap.String("backing", backingName),
		zap.String("backend", string(backend)),
		zap.Int64("capacity", dev.Capacity),
		zap.String("id", dev.ID.String()))

	return dev, nil
}

// ByName returns the device with the given virtual name.
func (r *Registry) ByName(name string) (*VirtualDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, dev := range r.devices {
		if dev.Name == name {
			return dev, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNoDevice, name)
}

// ByIndex returns the device at the 1-based list position.
func (r *Registry) ByIndex(index int) (*VirtualDevice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index < 1 || index > len(r.devices) {
		return nil, fmt.Errorf("%w: %d", ErrBadIndex, index)
	}

	return r.devices[index-1], nil
}

// List returns a snapshot of the bound devices in bind order.
func (r *Registry) List() []*VirtualDevice {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*VirtualDevice, len(r.devices))
	copy(out, r.devices)

	return out
}

// Unbind destroys the device at the 1-based list position: drop the record
// from the list, quiesce I/O, destroy the map (reclaiming its nodes), release
// the backing handle.
func (r *Registry) Unbind(index int) error {
	r.mu.Lock()

	if index < 1 || index > len(r.devices) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrBadIndex, index)
	}

	dev := r.devices[index-1]
	r.devices = append(r.devices[:index-1], r.devices[index:]...)
	r.mu.Unlock()

	dev.quiesce()
	dev.Map.Destroy()

	if err := dev.Backing.Close(); err != nil {
		r.log.Warn("closing backing device",
			zap.String("name", dev.Name), zap.Error(err))
	}

	r.log.Info("unbound virtual device",
		zap.String("name", dev.Name),
		zap.String("backing", dev.BackingName))

	return nil
}

// Close unbinds every remaining device in list order.
func (r *Registry) Close() {
	for {
		r.mu.Lock()
		empty := len(r.devices) == 0
		r.mu.Unlock()

		if empty {
			return
		}

		if err := r.Unbind(1); err != nil {
			return
		}
	}
}

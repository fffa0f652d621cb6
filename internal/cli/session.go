package cli

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/c2h5oh/datasize"
	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/qrutyy/ls-bdd/pkg/blockdev"
	"github.com/qrutyy/ls-bdd/pkg/lsmap"
)

// Session is the operator-facing control surface: one engine, one registry,
// and the back-end tag used for subsequent bindings. It lives for the length
// of a shell invocation; all devices are unbound when the session closes.
type Session struct {
	registry *blockdev.Registry
	engine   *blockdev.Engine
	backend  lsmap.Backend
	log      *zap.Logger
}

// NewSession creates a session with the configured default back-end.
func NewSession(cfg Config, log *zap.Logger) *Session {
	registry := blockdev.NewRegistry(log)

	return &Session{
		registry: registry,
		engine:   blockdev.NewEngine(registry, blockdev.WithLogger(log)),
		backend:  lsmap.Backend(cfg.Backend),
		log:      log,
	}
}

// Close unbinds every remaining device.
func (s *Session) Close() {
	s.registry.Close()
}

// SetDataStructure selects the back-end used by subsequent bindings.
func (s *Session) SetDataStructure(tag string) error {
	backend := lsmap.Backend(tag)
	if !backend.Valid() {
		return fmt.Errorf("%w: %q", errUnknownBackend, tag)
	}

	s.backend = backend

	return nil
}

// SetRedirectBD opens the backing device at path and binds virtual device
// "lsvbd<index>" over it with the session's selected back-end.
func (s *Session) SetRedirectBD(indexArg, path string) (string, error) {
	index, err := parseIndex(indexArg)
	if err != nil {
		return "", err
	}

	if path == "" {
		return "", errPathRequired
	}

	backing, err := blockdev.OpenBacking(path)
	if err != nil {
		return "", err
	}

	dev, err := s.registry.Bind(index, backing, path, s.backend)
	if err != nil {
		return "", err
	}

	return dev.Name, nil
}

// DeleteBD destroys the virtual device at the 1-based registry position.
func (s *Session) DeleteBD(indexArg string) error {
	index, err := parseIndex(indexArg)
	if err != nil {
		return err
	}

	return s.registry.Unbind(index)
}

// VBDNames returns one line per bound device: "N. <virtual> -> <backing>".
func (s *Session) VBDNames() []string {
	devices := s.registry.List()

	lines := make([]string, 0, len(devices))
	for i, dev := range devices {
		lines = append(lines, fmt.Sprintf("%d. %s -> %s", i+1, dev.Name, dev.BackingName))
	}

	return lines
}

// DataStructures returns one line per recognized back-end tag: "N. <tag>".
func (s *Session) DataStructures() []string {
	backends := lsmap.Backends()

	lines := make([]string, 0, len(backends))
	for i, b := range backends {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, b))
	}

	return lines
}

// Write issues a synthetic write of the given size at lba through the
// engine. The payload is a deterministic pattern derived from the LBA, so a
// later Read can be eyeballed against it. Returns a one-line summary.
func (s *Session) Write(device, lbaArg, sizeArg string) (string, error) {
	lba, size, err := parseIOArgs(device, lbaArg, sizeArg)
	if err != nil {
		return "", err
	}

	data := make([]byte, size)
	fillPattern(data, lba)

	if err := s.submit(device, blockdev.OpWrite, lba, data); err != nil {
		return "", err
	}

	return fmt.Sprintf("wrote %d bytes at lba %d (xxh64=%016x), log head now %d",
		size, lba, xxhash.Sum64(data), s.engine.NextFreeSector()), nil
}

// Read issues a synthetic read through the engine and returns a one-line
// summary with the payload digest.
func (s *Session) Read(device, lbaArg, sizeArg string) (string, error) {
	lba, size, err := parseIOArgs(device, lbaArg, sizeArg)
	if err != nil {
		return "", err
	}

	data := make([]byte, size)

	if err := s.submit(device, blockdev.OpRead, lba, data); err != nil {
		return "", err
	}

	return fmt.Sprintf("read %d bytes at lba %d (xxh64=%016x)", size, lba, xxhash.Sum64(data)), nil
}

// submit runs one request through the engine and waits for its completion.
func (s *Session) submit(device string, op blockdev.Op, lba lsmap.Sector, data []byte) error {
	errCh := make(chan error, 1)

	s.engine.Submit(&blockdev.Request{
		Device:     device,
		Op:         op,
		Sector:     lba,
		Data:       data,
		OnComplete: func(err error) { errCh <- err },
	})

	return <-errCh
}

func parseIOArgs(device, lbaArg, sizeArg string) (lsmap.Sector, int, error) {
	if device == "" {
		return 0, 0, errDeviceRequired
	}

	lba, err := strconv.ParseUint(lbaArg, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", errSectorNotANumber, lbaArg)
	}

	var size datasize.ByteSize
	if err := size.UnmarshalText([]byte(sizeArg)); err != nil {
		return 0, 0, fmt.Errorf("%w: %q", errSizeInvalid, sizeArg)
	}

	if size.Bytes() == 0 || size.Bytes()%lsmap.SectorSize != 0 {
		return 0, 0, fmt.Errorf("%w: %s", errSizeInvalid, size.HR())
	}

	return lsmap.Sector(lba), int(size.Bytes()), nil
}

// fillPattern stamps each sector of data with its LBA, so reads can be
// traced back to the write that produced them.
func fillPattern(data []byte, lba lsmap.Sector) {
	for off := 0; off+8 <= len(data); off += lsmap.SectorSize {
		binary.LittleEndian.PutUint64(data[off:], uint64(lba)+uint64(off/lsmap.SectorSize))
	}
}

func parseIndex(arg string) (int, error) {
	if arg == "" {
		return 0, errIndexRequired
	}

	index, err := strconv.Atoi(arg)
	if err != nil || index <= 0 {
		return 0, fmt.Errorf("%w: %q", errIndexNotANumber, arg)
	}

	return index, nil
}

package blockdev

import "errors"

// Sentinel errors returned by the engine and registry.
//
// Callers classify with [errors.Is].
var (
	// ErrNoDevice indicates a request or control operation named a virtual
	// device that is not bound.
	ErrNoDevice = errors.New("blockdev: no such virtual device")

	// ErrNameTaken indicates a bind would reuse an existing virtual name.
	ErrNameTaken = errors.New("blockdev: virtual device name already bound")

	// ErrBadIndex indicates a control operation used an index outside the
	// device list.
	ErrBadIndex = errors.New("blockdev: device index out of range")

	// ErrUnaligned indicates a request whose size is zero or not a
	// multiple of the sector size.
	ErrUnaligned = errors.New("blockdev: request not sector aligned")
)

package cli

import "errors"

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigFileRead     = errors.New("cannot read config file")
	errConfigInvalid      = errors.New("invalid config file")
	errUnknownBackend     = errors.New("unknown data structure tag (expected bt, sl, ht or rb)")
	errIndexRequired      = errors.New("device index is required")
	errIndexNotANumber    = errors.New("device index must be a positive integer")
	errPathRequired       = errors.New("backing device path is required")
	errDeviceRequired     = errors.New("virtual device name is required")
	errSectorNotANumber   = errors.New("sector must be a non-negative integer")
	errSizeInvalid        = errors.New("size must be a positive multiple of 512 bytes")
)

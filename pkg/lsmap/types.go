package lsmap

// Sector is a 64-bit block address, the unit of logical and physical
// addressing. All arithmetic is in sectors unless multiplied by [SectorSize].
type Sector uint64

// SectorSize is the fixed sector size in bytes.
const SectorSize = 512

// Mapping is the value record stored against an LBA key: where the most
// recent write for that key landed on the backing device, and how long it
// was. Length is always a positive multiple of [SectorSize].
//
// A Mapping is owned by the back-end that stores it and is only handed back
// to its arena when the map is destroyed.
type Mapping struct {
	PBA    Sector
	Length uint32
}

// Sectors returns the mapping's length in sectors.
func (m *Mapping) Sectors() Sector {
	return Sector(m.Length / SectorSize)
}

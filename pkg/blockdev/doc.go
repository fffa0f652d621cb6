// Package blockdev implements the I/O redirection engine of a log-structured
// virtual block device and the registry of bound devices.
//
// Every write handed to the [Engine] is redirected from its logical block
// address to a physical block address drawn from a single monotonic log head,
// turning random writes into sequential appends on the backing device. Reads
// consult the device's indirection map (pkg/lsmap) and are split across
// discontiguous mapped segments when they span more than one prior write.
// Reads on an empty map, and reads that land outside every mapped segment
// beyond the greatest mapped key, are treated as system I/O and pass through
// unmodified.
//
// A [Registry] tracks virtual devices: binding opens a backing device and
// creates the device's map; unbinding removes the record from the list,
// waits for its in-flight I/O, then destroys the map and releases the
// backing handle. That quiescing step is what makes the maps' destroy-time
// node reclamation safe.
package blockdev

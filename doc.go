// Package fileio is a uniform, cross-platform file I/O layer for
// data-processing runtimes: sequential writable output, random-access
// readable input and memory-mapped read/write access behind one logical
// contract (read, write, positional read/write, seek, tell, size, close).
//
// The memory-mapped handle serves zero-copy read buffers backed directly by
// mapped memory and supports growing or shrinking the mapping without ever
// invalidating memory an outstanding buffer still references: each zero-copy
// buffer holds a lease on the mapping, and resizing fails fast while any
// lease is alive.
//
// Key properties:
//   - One open/read/write/seek/size/close contract across plain and mapped files
//   - Zero-copy reads from mapped files, with deterministic lease release
//   - Lease-gated resize: never remaps under a live buffer
//   - Owned reads through a pluggable Allocator
//   - Thread-safe positional reads over a shared handle
//   - Owned or borrowed descriptors; double close is always a no-op
//
// Basic usage:
//
//	w, err := fileio.OpenWriter("data.bin", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := w.Write(payload); err != nil {
//	    log.Fatal(err)
//	}
//	if err := w.Close(); err != nil {
//	    log.Fatal(err)
//	}
//
//	f, err := fileio.OpenMapped("data.bin", fileio.ModeRead)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer f.Close()
//
//	buf, err := f.ReadBufferAt(0, int64(len(payload))) // zero-copy view
//	if err != nil {
//	    log.Fatal(err)
//	}
//	process(buf.Bytes())
//	buf.Release()
package fileio

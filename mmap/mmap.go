// Package mmap manages one OS memory mapping over a byte range of a file.
// It is the mapping primitive underneath fileio's memory-mapped file handle;
// lease tracking and resize gating live in the caller, this package only
// creates, flushes, resizes and tears down the mapping itself.
package mmap

// Map is one contiguous mapping of a file region. The mapped length is
// whatever was requested; the kernel pads the final page, so a Map may
// address a sub-page logical length.
type Map struct {
	data     []byte // mapped memory, nil after Close
	fd       int    // descriptor the region is backed by
	size     int64  // requested mapped length
	writable bool
	// Windows section handles, zero on other platforms.
	handle  uintptr
	mapping uintptr
}

// Data returns the mapped byte slice, or nil when unmapped.
func (m *Map) Data() []byte {
	return m.data
}

// Size returns the mapped length.
func (m *Map) Size() int64 {
	return m.size
}

// Writable reports whether the mapping was created with write permission.
func (m *Map) Writable() bool {
	return m.writable
}

// Fd returns the descriptor the mapping is backed by.
func (m *Map) Fd() int {
	return m.fd
}

// Error represents an mmap error.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "mmap: " + e.Op + ": " + e.Err.Error()
	}
	return "mmap: " + e.Op
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Common errors
var (
	ErrInvalidSize  = &Error{Op: "invalid size"}
	ErrInvalidRange = &Error{Op: "invalid range"}
	ErrNotMapped    = &Error{Op: "not mapped"}
	ErrEmptyFile    = &Error{Op: "empty file"}
)

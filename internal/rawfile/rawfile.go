// Package rawfile wraps the OS file primitives the fileio layer is built on:
// descriptor ownership, sequential and positional reads and writes, seeking,
// truncation and pipes. Higher layers never issue file syscalls directly.
package rawfile

import (
	"io"
	"os"
	"sync"
)

// DataFilePerm is the permission mode for files created by this layer.
const DataFilePerm = 0644

// File wraps one OS file descriptor. A File either owns its descriptor
// (created by Open/Create/Adopt, closed on Close) or borrows it (created
// by Borrow, never closed by this package).
type File struct {
	mu     sync.Mutex // guards closed and the owned-close transition
	fd     int
	owned  bool
	closed bool
}

// Adopt wraps an externally opened descriptor and takes ownership of it.
func Adopt(fd int) *File {
	return &File{fd: fd, owned: true}
}

// Borrow wraps an externally opened descriptor without taking ownership.
// Close marks the File closed but leaves the descriptor open.
func Borrow(fd int) *File {
	return &File{fd: fd}
}

// Open opens an existing file, read-only or read-write.
func Open(path string, writable bool) (*File, error) {
	fd, err := sysOpen(path, writable)
	if err != nil {
		return nil, err
	}
	return &File{fd: fd, owned: true}, nil
}

// Create opens a file for writing, creating it if it does not exist.
func Create(path string, truncate bool) (*File, error) {
	fd, err := sysCreate(path, truncate)
	if err != nil {
		return nil, err
	}
	return &File{fd: fd, owned: true}, nil
}

// Fd returns the underlying descriptor.
func (f *File) Fd() int {
	return f.fd
}

// Owned reports whether Close releases the descriptor.
func (f *File) Owned() bool {
	return f.owned
}

// Closed reports whether Close has been called.
func (f *File) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Close releases the descriptor if owned. It is idempotent: the first call
// performs the close, later calls return nil.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if !f.owned {
		return nil
	}
	return sysClose(f.fd)
}

// Read reads up to len(p) bytes at the kernel file position, retrying short
// counts. At end of file it returns the bytes read so far and no error.
func (f *File) Read(p []byte) (int, error) {
	if f.Closed() {
		return 0, os.ErrClosed
	}
	total := 0
	for total < len(p) {
		n, err := sysRead(f.fd, p[total:])
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

// ReadAt reads up to len(p) bytes at the given offset without moving the
// sequential position on platforms with an atomic positional read. It is
// safe for concurrent use.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.Closed() {
		return 0, os.ErrClosed
	}
	total := 0
	for total < len(p) {
		n, err := sysPread(f.fd, p[total:], off+int64(total))
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

// Write writes len(p) bytes at the kernel file position, retrying short
// counts.
func (f *File) Write(p []byte) (int, error) {
	if f.Closed() {
		return 0, os.ErrClosed
	}
	total := 0
	for total < len(p) {
		n, err := sysWrite(f.fd, p[total:])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// WriteAt writes len(p) bytes at the given offset.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	if f.Closed() {
		return 0, os.ErrClosed
	}
	total := 0
	for total < len(p) {
		n, err := sysPwrite(f.fd, p[total:], off+int64(total))
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Seek moves the kernel file position. Whence values follow package io.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.Closed() {
		return 0, os.ErrClosed
	}
	return sysSeek(f.fd, offset, whence)
}

// Tell reports the current kernel file position.
func (f *File) Tell() (int64, error) {
	return f.Seek(0, io.SeekCurrent)
}

// Size reports the current on-disk size without moving the file position.
func (f *File) Size() (int64, error) {
	if f.Closed() {
		return 0, os.ErrClosed
	}
	return sysSize(f.fd)
}

// Truncate resizes the backing file to the given length.
func (f *File) Truncate(length int64) error {
	if f.Closed() {
		return os.ErrClosed
	}
	return sysTruncate(f.fd, length)
}

// Sync flushes file data to stable storage.
func (f *File) Sync() error {
	if f.Closed() {
		return os.ErrClosed
	}
	return sysSync(f.fd)
}

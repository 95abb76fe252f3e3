package fileio

import (
	"io"
	"sync"

	"fileio/internal/rawfile"
)

// FileReader reads a file through both a sequential cursor and explicit
// positional reads.
//
// Positional reads (ReadAt, ReadBufferAt) are safe for concurrent use from
// any number of goroutines: the underlying primitive addresses the file by
// explicit offset, so no goroutine ever observes another's position.
// Sequential reads use the kernel file position and are serialized by an
// internal mutex. After any positional read the sequential position is
// considered indeterminate and the next sequential Read fails until Seek is
// called.
type FileReader struct {
	mu       sync.Mutex // guards the sequential cursor and needSeek
	file     *rawfile.File
	alloc    Allocator
	needSeek bool
}

// OpenReader opens path for reading. Owned reads allocate from the default
// Go allocator.
func OpenReader(path string) (*FileReader, error) {
	return OpenReaderWithAllocator(path, GoAllocator{})
}

// OpenReaderWithAllocator opens path for reading with owned reads allocated
// from alloc.
func OpenReaderWithAllocator(path string, alloc Allocator) (*FileReader, error) {
	f, err := rawfile.Open(path, false)
	if err != nil {
		return nil, WrapError(CodeIO, err, "opening %s for reading", path)
	}
	return &FileReader{file: f, alloc: alloc}, nil
}

// ReaderFromDescriptor wraps an already-open descriptor and takes ownership
// of it. The descriptor must be seekable; pipes and sockets are rejected
// with an I/O error, in which case the caller keeps ownership.
func ReaderFromDescriptor(fd int) (*FileReader, error) {
	return newReaderFromFile(fd, true)
}

// ReaderFromBorrowedDescriptor wraps an already-open descriptor without
// taking ownership: Close marks the reader closed but the caller remains
// responsible for closing the descriptor.
func ReaderFromBorrowedDescriptor(fd int) (*FileReader, error) {
	return newReaderFromFile(fd, false)
}

func newReaderFromFile(fd int, own bool) (*FileReader, error) {
	// Probe seekability before taking ownership so a rejected descriptor
	// stays with the caller.
	if _, err := rawfile.Borrow(fd).Tell(); err != nil {
		return nil, WrapError(CodeIO, err, "descriptor %d is not seekable", fd)
	}
	f := rawfile.Borrow(fd)
	if own {
		f = rawfile.Adopt(fd)
	}
	return &FileReader{file: f, alloc: GoAllocator{}}, nil
}

// Read reads up to len(p) bytes at the sequential position, returning fewer
// only at end of file. FileReader implements io.Reader except that it
// reports end of file as a zero count, not io.EOF.
func (r *FileReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file.Closed() {
		return 0, NewError(CodeClosed, "read on a closed reader")
	}
	if r.needSeek {
		return 0, NewError(CodeInvalid, "sequential position is undefined after a positional read, call Seek first")
	}
	n, err := r.file.Read(p)
	if err != nil {
		return n, WrapError(CodeIO, err, "read of %d bytes failed after %d", len(p), n)
	}
	return n, nil
}

// ReadBuffer reads up to n bytes at the sequential position into a buffer
// owned by the reader's allocator. The buffer is shorter than n only at end
// of file.
func (r *FileReader) ReadBuffer(n int64) (*Buffer, error) {
	if n < 0 {
		return nil, NewError(CodeInvalid, "negative read length %d", n)
	}
	buf := r.alloc.Allocate(int(n))
	read, err := r.Read(buf)
	if err != nil {
		r.alloc.Free(buf)
		return nil, err
	}
	if int64(read) < n {
		buf = r.alloc.Reallocate(buf, read)
	}
	return &Buffer{data: buf, alloc: r.alloc}, nil
}

// ReadAt reads up to len(p) bytes at the given offset, returning fewer only
// when the range extends past end of file. It never moves the sequential
// position and is safe for concurrent use.
func (r *FileReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, NewError(CodeInvalid, "negative read offset %d", off)
	}
	if r.file.Closed() {
		return 0, NewError(CodeClosed, "read on a closed reader")
	}
	r.mu.Lock()
	r.needSeek = true
	r.mu.Unlock()
	n, err := r.file.ReadAt(p, off)
	if err != nil {
		return n, WrapError(CodeIO, err, "read of %d bytes at offset %d failed after %d", len(p), off, n)
	}
	return n, nil
}

// ReadBufferAt reads up to n bytes at the given offset into a buffer owned
// by the reader's allocator.
func (r *FileReader) ReadBufferAt(off, n int64) (*Buffer, error) {
	if n < 0 {
		return nil, NewError(CodeInvalid, "negative read length %d", n)
	}
	buf := r.alloc.Allocate(int(n))
	read, err := r.ReadAt(buf, off)
	if err != nil {
		r.alloc.Free(buf)
		return nil, err
	}
	if int64(read) < n {
		buf = r.alloc.Reallocate(buf, read)
	}
	return &Buffer{data: buf, alloc: r.alloc}, nil
}

// Seek sets the sequential position. Seeking past end of file is legal and
// only manifests as a short read later.
func (r *FileReader) Seek(offset int64) error {
	if offset < 0 {
		return NewError(CodeInvalid, "negative seek offset %d", offset)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file.Closed() {
		return NewError(CodeClosed, "seek on a closed reader")
	}
	if _, err := r.file.Seek(offset, io.SeekStart); err != nil {
		return WrapError(CodeIO, err, "seek to %d failed", offset)
	}
	r.needSeek = false
	return nil
}

// Tell reports the sequential position.
func (r *FileReader) Tell() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file.Closed() {
		return 0, NewError(CodeClosed, "tell on a closed reader")
	}
	pos, err := r.file.Tell()
	if err != nil {
		return 0, WrapError(CodeIO, err, "tell failed")
	}
	return pos, nil
}

// Size reports the current on-disk size without moving the sequential
// position.
func (r *FileReader) Size() (int64, error) {
	if r.file.Closed() {
		return 0, NewError(CodeClosed, "size on a closed reader")
	}
	size, err := r.file.Size()
	if err != nil {
		return 0, WrapError(CodeIO, err, "size failed")
	}
	return size, nil
}

// Peek is not supported on a plain file reader.
func (r *FileReader) Peek(n int64) ([]byte, error) {
	return nil, NewError(CodeNotImplemented, "peek is not supported on a plain file reader")
}

// WillNeed is not supported on a plain file reader; prefetch hints require a
// memory mapping.
func (r *FileReader) WillNeed() error {
	return NewError(CodeNotImplemented, "prefetch hints are not supported on a plain file reader")
}

// SupportsZeroCopy reports whether reads can return views into shared
// memory. Plain file reads always copy.
func (r *FileReader) SupportsZeroCopy() bool {
	return false
}

// Close releases the descriptor if owned. It is idempotent: later calls
// return nil.
func (r *FileReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file.Closed() {
		return nil
	}
	if err := r.file.Close(); err != nil {
		return WrapError(CodeIO, err, "close failed")
	}
	return nil
}

// Closed reports whether the reader has been closed.
func (r *FileReader) Closed() bool {
	return r.file.Closed()
}

// Fd returns the underlying descriptor.
func (r *FileReader) Fd() int {
	return r.file.Fd()
}

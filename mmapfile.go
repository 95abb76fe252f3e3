package fileio

import (
	"sync"

	"fileio/internal/rawfile"
	"fileio/mmap"
)

// FileMode fixes a mapped file's access mode at open time.
type FileMode int

const (
	// ModeRead maps the file read-only; writes and resizes are rejected.
	ModeRead FileMode = iota

	// ModeReadWrite maps the file for reading and writing.
	ModeReadWrite
)

// MappedFile is a file handle backed by an OS memory mapping. It exposes the
// same read/write/seek/size contract as the plain-file handles, plus
// zero-copy reads and resizing.
//
// Zero-copy reads return Buffers that reference mapped memory directly. Each
// outstanding Buffer holds a lease on the mapping: while any lease is alive,
// Resize fails rather than remapping under the holder's feet, and Close
// defers the unmap until the last lease is released. All state transitions
// happen under one mutex, so the lease count the resize decision sees is
// exact, never a heuristic.
//
// Concurrent positional reads from multiple goroutines are supported; the
// handle mutex serializes them against writes, resizes and each other.
type MappedFile struct {
	mu     sync.Mutex
	file   *rawfile.File
	mode   FileMode
	m      *mmap.Map // nil while the logical size is zero or after teardown
	offset int64     // file offset the region starts at
	size   int64     // logical region size; the kernel pads the mapping to granularity
	pos    int64
	leases int64 // outstanding zero-copy buffers
	closed bool

	// region maps (explicit offset/length) cannot be resized
	resizable bool

	// set when Close ran with leases outstanding; the last release unmaps
	unmapOnRelease bool
}

// OpenMapped memory-maps the whole file at path. A zero-length file is legal
// and produces a zero-length handle that a later Resize can grow.
func OpenMapped(path string, mode FileMode) (*MappedFile, error) {
	f, err := rawfile.Open(path, mode == ModeReadWrite)
	if err != nil {
		return nil, WrapError(CodeIO, err, "opening %s for mapping", path)
	}
	size, err := f.Size()
	if err != nil {
		f.Close()
		return nil, WrapError(CodeIO, err, "sizing %s", path)
	}
	mf := &MappedFile{file: f, mode: mode, size: size, resizable: true}
	if size > 0 {
		m, err := mmap.New(f.Fd(), 0, int(size), mode == ModeReadWrite)
		if err != nil {
			f.Close()
			return nil, WrapError(CodeIO, err, "mapping %s", path)
		}
		mf.m = m
	}
	return mf, nil
}

// OpenMappedRegion memory-maps length bytes of the file at path starting at
// offset. The offset must be a multiple of the platform mapping granularity
// and the range must lie within the file. Region handles cannot be resized;
// offsets passed to their operations are relative to the region start.
func OpenMappedRegion(path string, mode FileMode, offset, length int64) (*MappedFile, error) {
	if offset < 0 || length < 0 {
		return nil, NewError(CodeInvalid, "negative mapping range [%d, %d)", offset, offset+length)
	}
	if gran := mmap.Granularity(); offset%gran != 0 {
		return nil, NewError(CodeIO, "mapping offset %d is not aligned to the %d-byte mapping granularity", offset, gran)
	}
	f, err := rawfile.Open(path, mode == ModeReadWrite)
	if err != nil {
		return nil, WrapError(CodeIO, err, "opening %s for mapping", path)
	}
	size, err := f.Size()
	if err != nil {
		f.Close()
		return nil, WrapError(CodeIO, err, "sizing %s", path)
	}
	if offset+length > size {
		f.Close()
		return nil, NewError(CodeInvalid, "mapping range [%d, %d) exceeds the file size %d", offset, offset+length, size)
	}
	mf := &MappedFile{file: f, mode: mode, offset: offset, size: length}
	if length > 0 {
		m, err := mmap.New(f.Fd(), offset, int(length), mode == ModeReadWrite)
		if err != nil {
			f.Close()
			return nil, WrapError(CodeIO, err, "mapping %s", path)
		}
		mf.m = m
	}
	return mf, nil
}

// ReadBufferAt returns a zero-copy view of up to n bytes at the given
// offset. The view is clamped at the logical size; a zero-length result
// carries no lease and never touches backing memory. The returned Buffer
// must be released before the mapping can be resized.
func (mf *MappedFile) ReadBufferAt(off, n int64) (*Buffer, error) {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	if mf.closed {
		return nil, NewError(CodeClosed, "read on a closed mapped file")
	}
	if off < 0 || n < 0 {
		return nil, NewError(CodeInvalid, "negative read range (offset %d, length %d)", off, n)
	}
	return mf.leaseLocked(off, n), nil
}

// ReadBuffer returns a zero-copy view of up to n bytes at the current
// position and advances it past the bytes returned.
func (mf *MappedFile) ReadBuffer(n int64) (*Buffer, error) {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	if mf.closed {
		return nil, NewError(CodeClosed, "read on a closed mapped file")
	}
	if n < 0 {
		return nil, NewError(CodeInvalid, "negative read length %d", n)
	}
	buf := mf.leaseLocked(mf.pos, n)
	mf.pos += int64(buf.Len())
	return buf, nil
}

// leaseLocked clamps the range to the logical size and issues the lease.
// Callers hold mf.mu.
func (mf *MappedFile) leaseLocked(off, n int64) *Buffer {
	if off > mf.size {
		off = mf.size
	}
	if rest := mf.size - off; n > rest {
		n = rest
	}
	if n == 0 {
		return &Buffer{}
	}
	mf.leases++
	return &Buffer{data: mf.m.Data()[off : off+n : off+n], region: mf}
}

// releaseLease is called by Buffer.Release. If the handle was closed while
// the lease was alive, the last release tears the mapping down.
func (mf *MappedFile) releaseLease() {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	mf.leases--
	if mf.leases == 0 && mf.unmapOnRelease {
		mf.m.Close()
		mf.m = nil
		mf.unmapOnRelease = false
	}
}

// ReadAt copies up to len(p) bytes at the given offset into p, returning
// fewer only when the range extends past the logical size. Reading zero
// bytes never touches backing memory.
func (mf *MappedFile) ReadAt(p []byte, off int64) (int, error) {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	if mf.closed {
		return 0, NewError(CodeClosed, "read on a closed mapped file")
	}
	if off < 0 {
		return 0, NewError(CodeInvalid, "negative read offset %d", off)
	}
	return mf.copyOutLocked(p, off), nil
}

// Read copies up to len(p) bytes at the current position and advances it.
func (mf *MappedFile) Read(p []byte) (int, error) {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	if mf.closed {
		return 0, NewError(CodeClosed, "read on a closed mapped file")
	}
	n := mf.copyOutLocked(p, mf.pos)
	mf.pos += int64(n)
	return n, nil
}

func (mf *MappedFile) copyOutLocked(p []byte, off int64) int {
	if off >= mf.size {
		return 0
	}
	n := int64(len(p))
	if rest := mf.size - off; n > rest {
		n = rest
	}
	if n == 0 {
		return 0
	}
	return copy(p, mf.m.Data()[off:off+n])
}

// Write copies p into the mapping at the current position and advances it.
// Writing past the mapped length fails with an I/O error and leaves the
// position unchanged.
func (mf *MappedFile) Write(p []byte) (int, error) {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	if err := mf.writeLocked(p, mf.pos); err != nil {
		return 0, err
	}
	mf.pos += int64(len(p))
	return len(p), nil
}

// WriteAt copies p into the mapping at the given offset. On success the
// position moves past the written bytes; on failure it is unchanged.
func (mf *MappedFile) WriteAt(off int64, p []byte) (int, error) {
	if off < 0 {
		return 0, NewError(CodeInvalid, "negative write offset %d", off)
	}
	mf.mu.Lock()
	defer mf.mu.Unlock()
	if err := mf.writeLocked(p, off); err != nil {
		return 0, err
	}
	mf.pos = off + int64(len(p))
	return len(p), nil
}

func (mf *MappedFile) writeLocked(p []byte, off int64) error {
	if mf.closed {
		return NewError(CodeClosed, "write on a closed mapped file")
	}
	if mf.mode != ModeReadWrite {
		return NewError(CodeIO, "write on a read-only mapping")
	}
	if off+int64(len(p)) > mf.size {
		return NewError(CodeIO, "write of %d bytes at offset %d exceeds the mapped length %d", len(p), off, mf.size)
	}
	if len(p) == 0 {
		return nil
	}
	copy(mf.m.Data()[off:], p)
	return nil
}

// Resize grows or shrinks the mapping and the backing file to newSize bytes.
//
// Resize fails fast with an I/O error while any zero-copy Buffer is
// outstanding, leaving the mapping fully usable at its prior size; callers
// release their buffers and retry. Region handles and read-only handles
// cannot be resized. The on-disk length becomes exactly newSize; the kernel
// pads the mapping itself to the granularity, so sub-page logical sizes are
// legal. Shrinking below the current position clamps it, so a later write
// resumes exactly at the new boundary.
func (mf *MappedFile) Resize(newSize int64) error {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	if mf.closed {
		return NewError(CodeClosed, "resize on a closed mapped file")
	}
	if newSize < 0 {
		return NewError(CodeInvalid, "negative size %d", newSize)
	}
	if mf.mode != ModeReadWrite {
		return NewError(CodeIO, "resize on a read-only mapping")
	}
	if !mf.resizable {
		return NewError(CodeIO, "cannot resize a partial file mapping")
	}
	if newSize == mf.size {
		return nil
	}
	if mf.leases > 0 {
		return NewError(CodeIO, "cannot resize: %d buffers still reference the mapping", mf.leases)
	}

	switch {
	case newSize == 0:
		if err := mf.m.Close(); err != nil {
			return WrapError(CodeIO, err, "unmapping for resize")
		}
		mf.m = nil
		if err := mf.file.Truncate(0); err != nil {
			return WrapError(CodeIO, err, "truncating to 0")
		}
	case mf.m == nil:
		if err := mf.file.Truncate(newSize); err != nil {
			return WrapError(CodeIO, err, "growing file to %d", newSize)
		}
		m, err := mmap.New(mf.file.Fd(), 0, int(newSize), true)
		if err != nil {
			return WrapError(CodeIO, err, "mapping %d bytes", newSize)
		}
		mf.m = m
	case newSize > mf.size:
		// Grow the file before the mapping: pages past end of file fault.
		if err := mf.file.Truncate(newSize); err != nil {
			return WrapError(CodeIO, err, "growing file to %d", newSize)
		}
		if err := mf.m.Remap(newSize); err != nil {
			return WrapError(CodeIO, err, "remapping to %d bytes", newSize)
		}
	default:
		// Shrink the mapping before the file for the same reason.
		if err := mf.m.Remap(newSize); err != nil {
			return WrapError(CodeIO, err, "remapping to %d bytes", newSize)
		}
		if err := mf.file.Truncate(newSize); err != nil {
			return WrapError(CodeIO, err, "truncating to %d", newSize)
		}
	}

	mf.size = newSize
	if mf.pos > newSize {
		mf.pos = newSize
	}
	return nil
}

// Seek sets the current position.
func (mf *MappedFile) Seek(offset int64) error {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	if mf.closed {
		return NewError(CodeClosed, "seek on a closed mapped file")
	}
	if offset < 0 {
		return NewError(CodeInvalid, "negative seek offset %d", offset)
	}
	mf.pos = offset
	return nil
}

// Tell reports the current position.
func (mf *MappedFile) Tell() (int64, error) {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	if mf.closed {
		return 0, NewError(CodeClosed, "tell on a closed mapped file")
	}
	return mf.pos, nil
}

// Size reports the logical size of the mapped region.
func (mf *MappedFile) Size() (int64, error) {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	if mf.closed {
		return 0, NewError(CodeClosed, "size on a closed mapped file")
	}
	return mf.size, nil
}

// Sync flushes modified mapped pages to stable storage.
func (mf *MappedFile) Sync() error {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	if mf.closed {
		return NewError(CodeClosed, "sync on a closed mapped file")
	}
	if mf.m == nil {
		return nil
	}
	if err := mf.m.Sync(); err != nil {
		return WrapError(CodeIO, err, "sync failed")
	}
	return nil
}

// WillNeed hints to the kernel that the mapped pages will be needed soon.
func (mf *MappedFile) WillNeed() error {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	if mf.closed {
		return NewError(CodeClosed, "prefetch hint on a closed mapped file")
	}
	if mf.m == nil {
		return nil
	}
	if err := mf.m.AdviseWillNeed(); err != nil {
		return WrapError(CodeIO, err, "prefetch hint failed")
	}
	return nil
}

// SupportsZeroCopy reports whether reads can return views into shared
// memory. Mapped reads always can.
func (mf *MappedFile) SupportsZeroCopy() bool {
	return true
}

// Close closes the descriptor and tears down the mapping. It is idempotent.
// If zero-copy Buffers are still outstanding the unmap is deferred until the
// last one is released, so handed-out views stay valid.
func (mf *MappedFile) Close() error {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	if mf.closed {
		return nil
	}
	mf.closed = true
	var err error
	if mf.m != nil {
		if mf.leases == 0 {
			err = mf.m.Close()
			mf.m = nil
		} else {
			mf.unmapOnRelease = true
		}
	}
	if cerr := mf.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return WrapError(CodeIO, err, "close failed")
	}
	return nil
}

// Closed reports whether the handle has been closed.
func (mf *MappedFile) Closed() bool {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	return mf.closed
}

// Fd returns the underlying descriptor.
func (mf *MappedFile) Fd() int {
	return mf.file.Fd()
}

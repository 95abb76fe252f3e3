package fileio

import (
	"io"
	"sync"

	"github.com/gofrs/flock"

	"fileio/internal/rawfile"
)

// FileWriter writes sequentially to a file or pipe descriptor. Writes land
// at the logical position, which only ever moves forward.
type FileWriter struct {
	mu   sync.Mutex // guards pos and close
	file *rawfile.File
	pos  int64
	flk  *flock.Flock // non-nil when opened exclusively
}

// OpenWriter opens path for sequential writing, creating it if needed.
// Without append the file is truncated; with append the position starts at
// the current end so existing content is never overwritten.
func OpenWriter(path string, appendTo bool) (*FileWriter, error) {
	return openWriter(path, appendTo, nil)
}

// OpenWriterExclusive is OpenWriter plus an advisory lock: while the writer
// is open, other OpenWriterExclusive calls on the same path fail with an I/O
// error. The lock is released on Close.
func OpenWriterExclusive(path string, appendTo bool) (*FileWriter, error) {
	flk := flock.New(path + ".lock")
	locked, err := flk.TryLock()
	if err != nil {
		return nil, WrapError(CodeIO, err, "locking %s", path)
	}
	if !locked {
		return nil, NewError(CodeIO, "%s is locked by another writer", path)
	}
	w, err := openWriter(path, appendTo, flk)
	if err != nil {
		flk.Unlock()
		return nil, err
	}
	return w, nil
}

func openWriter(path string, appendTo bool, flk *flock.Flock) (*FileWriter, error) {
	f, err := rawfile.Create(path, !appendTo)
	if err != nil {
		return nil, WrapError(CodeIO, err, "opening %s for writing", path)
	}
	w := &FileWriter{file: f, flk: flk}
	if appendTo {
		end, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			f.Close()
			return nil, WrapError(CodeIO, err, "seeking to end of %s", path)
		}
		w.pos = end
	}
	return w, nil
}

// WriterFromDescriptor wraps an already-open descriptor and takes ownership
// of it: Close releases the descriptor. The logical position starts at the
// descriptor's current offset, or zero for non-seekable descriptors such as
// pipes.
func WriterFromDescriptor(fd int) (*FileWriter, error) {
	return newWriterFromFile(rawfile.Adopt(fd))
}

// WriterFromBorrowedDescriptor wraps an already-open descriptor without
// taking ownership: Close marks the writer closed but the caller remains
// responsible for closing the descriptor.
func WriterFromBorrowedDescriptor(fd int) (*FileWriter, error) {
	return newWriterFromFile(rawfile.Borrow(fd))
}

func newWriterFromFile(f *rawfile.File) (*FileWriter, error) {
	w := &FileWriter{file: f}
	if pos, err := f.Tell(); err == nil {
		w.pos = pos
	}
	return w, nil
}

// Write appends p at the current logical position and advances it.
// FileWriter implements io.Writer.
func (w *FileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file.Closed() {
		return 0, NewError(CodeClosed, "write on a closed writer")
	}
	n, err := w.file.Write(p)
	w.pos += int64(n)
	if err != nil {
		return n, WrapError(CodeIO, err, "write of %d bytes failed after %d", len(p), n)
	}
	return n, nil
}

// Tell reports the logical write position.
func (w *FileWriter) Tell() (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file.Closed() {
		return 0, NewError(CodeClosed, "tell on a closed writer")
	}
	return w.pos, nil
}

// Sync flushes written data to stable storage.
func (w *FileWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file.Closed() {
		return NewError(CodeClosed, "sync on a closed writer")
	}
	if err := w.file.Sync(); err != nil {
		return WrapError(CodeIO, err, "sync failed")
	}
	return nil
}

// Close releases the descriptor if owned and the advisory lock if held.
// It is idempotent: later calls return nil.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file.Closed() {
		return nil
	}
	err := w.file.Close()
	if w.flk != nil {
		if uerr := w.flk.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
		w.flk = nil
	}
	if err != nil {
		return WrapError(CodeIO, err, "close failed")
	}
	return nil
}

// Closed reports whether the writer has been closed.
func (w *FileWriter) Closed() bool {
	return w.file.Closed()
}

// Fd returns the underlying descriptor.
func (w *FileWriter) Fd() int {
	return w.file.Fd()
}

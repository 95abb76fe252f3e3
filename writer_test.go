package fileio

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fileio/internal/rawfile"
)

func writerTestPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "out.dat")
}

func TestWriterWriteAndClose(t *testing.T) {
	path := writerTestPath(t)

	w, err := OpenWriter(path, false)
	require.Nil(t, err)

	n, err := w.Write([]byte("testdata"))
	assert.Nil(t, err)
	assert.Equal(t, 8, n)

	assert.False(t, w.Closed())
	err = w.Close()
	assert.Nil(t, err)
	assert.True(t, w.Closed())

	// writes after close fail
	_, err = w.Write([]byte("x"))
	assert.True(t, IsClosed(err))

	// idempotent
	assert.Nil(t, w.Close())

	content, err := os.ReadFile(path)
	require.Nil(t, err)
	assert.Equal(t, []byte("testdata"), content)
}

func TestWriterTell(t *testing.T) {
	w, err := OpenWriter(writerTestPath(t), false)
	require.Nil(t, err)
	defer w.Close()

	pos, err := w.Tell()
	assert.Nil(t, err)
	assert.Equal(t, int64(0), pos)

	_, err = w.Write([]byte("testdata"))
	require.Nil(t, err)

	pos, err = w.Tell()
	assert.Nil(t, err)
	assert.Equal(t, int64(8), pos)
}

func TestWriterTruncatesExistingFile(t *testing.T) {
	path := writerTestPath(t)

	w, err := OpenWriter(path, false)
	require.Nil(t, err)
	_, err = w.Write([]byte("testdata"))
	require.Nil(t, err)
	require.Nil(t, w.Close())

	// reopening without append truncates
	w, err = OpenWriter(path, false)
	require.Nil(t, err)
	require.Nil(t, w.Close())

	content, err := os.ReadFile(path)
	require.Nil(t, err)
	assert.Empty(t, content)
}

func TestWriterAppend(t *testing.T) {
	path := writerTestPath(t)

	w, err := OpenWriter(path, false)
	require.Nil(t, err)
	_, err = w.Write([]byte("test"))
	require.Nil(t, err)
	require.Nil(t, w.Close())

	// append mode resumes after the previously written content
	w, err = OpenWriter(path, true)
	require.Nil(t, err)

	pos, err := w.Tell()
	assert.Nil(t, err)
	assert.Equal(t, int64(4), pos)

	_, err = w.Write([]byte("data"))
	require.Nil(t, err)
	require.Nil(t, w.Close())

	content, err := os.ReadFile(path)
	require.Nil(t, err)
	assert.Equal(t, []byte("testdata"), content)
}

func TestWriterFromDescriptor(t *testing.T) {
	path := writerTestPath(t)

	w, err := OpenWriter(path, false)
	require.Nil(t, err)
	_, err = w.Write([]byte("test"))
	require.Nil(t, err)
	require.Nil(t, w.Close())

	// reopen a raw descriptor positioned at the end, hand it to the writer
	f, err := rawfile.Create(path, false)
	require.Nil(t, err)
	_, err = f.Seek(0, io.SeekEnd)
	require.Nil(t, err)

	w, err = WriterFromDescriptor(f.Fd())
	require.Nil(t, err)
	assert.Equal(t, f.Fd(), w.Fd())

	pos, err := w.Tell()
	assert.Nil(t, err)
	assert.Equal(t, int64(4), pos)

	_, err = w.Write([]byte("data"))
	require.Nil(t, err)
	require.Nil(t, w.Close())

	content, err := os.ReadFile(path)
	require.Nil(t, err)
	assert.Equal(t, []byte("testdata"), content)
}

func TestWriterBorrowedDescriptorStaysOpen(t *testing.T) {
	path := writerTestPath(t)

	f, err := rawfile.Create(path, true)
	require.Nil(t, err)
	defer f.Close()

	w, err := WriterFromBorrowedDescriptor(f.Fd())
	require.Nil(t, err)
	_, err = w.Write([]byte("test"))
	require.Nil(t, err)
	require.Nil(t, w.Close())

	// the descriptor still belongs to the caller
	_, err = f.Write([]byte("data"))
	assert.Nil(t, err)

	content, err := os.ReadFile(path)
	require.Nil(t, err)
	assert.Equal(t, []byte("testdata"), content)
}

func TestWriterExclusiveLock(t *testing.T) {
	path := writerTestPath(t)

	w, err := OpenWriterExclusive(path, false)
	require.Nil(t, err)

	_, err = OpenWriterExclusive(path, false)
	assert.True(t, IsIO(err))

	require.Nil(t, w.Close())

	// releasing the lock makes the path writable again
	w, err = OpenWriterExclusive(path, false)
	assert.Nil(t, err)
	require.Nil(t, w.Close())
}

func TestWriterPipe(t *testing.T) {
	rfd, wfd, err := rawfile.Pipe()
	require.Nil(t, err)
	r := rawfile.Adopt(rfd)
	defer r.Close()

	w, err := WriterFromDescriptor(wfd)
	require.Nil(t, err)

	_, err = w.Write([]byte("test"))
	require.Nil(t, err)

	buf := make([]byte, 4)
	n, err := r.Read(buf)
	require.Nil(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("test"), buf)

	_, err = w.Write([]byte("data!"))
	require.Nil(t, err)
	n, err = r.Read(buf)
	require.Nil(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("data"), buf)

	require.Nil(t, w.Close())

	// draining after the writer closes returns the tail, then EOF
	n, err = r.Read(buf[:2])
	require.Nil(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte('!'), buf[0])

	n, err = r.Read(buf[:2])
	require.Nil(t, err)
	assert.Equal(t, 0, n)
}

func TestWriterSync(t *testing.T) {
	w, err := OpenWriter(writerTestPath(t), false)
	require.Nil(t, err)

	_, err = w.Write([]byte("testdata"))
	require.Nil(t, err)
	assert.Nil(t, w.Sync())
	require.Nil(t, w.Close())

	assert.True(t, IsClosed(w.Sync()))
}

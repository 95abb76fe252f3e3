package fileio

import (
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fileio/mmap"
)

func randomBytes(n int) []byte {
	b := make([]byte, n)
	rand.Read(b)
	return b
}

// initMapped creates a file of the given size and maps it read-write.
func initMapped(t *testing.T, size int64) (*MappedFile, string) {
	path := filepath.Join(t.TempDir(), "map.dat")
	require.Nil(t, os.WriteFile(path, make([]byte, size), 0644))
	mf, err := OpenMapped(path, ModeReadWrite)
	require.Nil(t, err)
	return mf, path
}

func diskSize(t *testing.T, path string) int64 {
	st, err := os.Stat(path)
	require.Nil(t, err)
	return st.Size()
}

func TestMappedZeroSizeFile(t *testing.T) {
	mf, _ := initMapped(t, 0)
	defer mf.Close()

	pos, err := mf.Tell()
	assert.Nil(t, err)
	assert.Equal(t, int64(0), pos)

	size, err := mf.Size()
	assert.Nil(t, err)
	assert.Equal(t, int64(0), size)
}

func TestMappedRegion(t *testing.T) {
	gran := mmap.Granularity()
	offset := 16 * gran
	path := filepath.Join(t.TempDir(), "map.dat")
	require.Nil(t, os.WriteFile(path, make([]byte, 32*gran), 0644))

	// unaligned offset is rejected
	_, err := OpenMappedRegion(path, ModeReadWrite, offset+1024, 4096)
	assert.True(t, IsIO(err))

	// a region reaching past end of file is rejected
	_, err = OpenMappedRegion(path, ModeReadWrite, offset, 32*gran)
	assert.True(t, IsInvalid(err))

	mf, err := OpenMappedRegion(path, ModeReadWrite, offset, 4096)
	require.Nil(t, err)
	defer mf.Close()

	size, err := mf.Size()
	assert.Nil(t, err)
	assert.Equal(t, int64(4096), size)

	pos, err := mf.Tell()
	assert.Nil(t, err)
	assert.Equal(t, int64(0), pos)

	pattern := randomBytes(1024)
	_, err = mf.Write(pattern)
	require.Nil(t, err)

	out, err := mf.ReadBufferAt(0, 1024)
	require.Nil(t, err)
	assert.Equal(t, pattern, out.Bytes())
	out.Release()

	pos, err = mf.Tell()
	assert.Nil(t, err)
	assert.Equal(t, int64(1024), pos)

	require.Nil(t, mf.Seek(4096))
	pos, err = mf.Tell()
	assert.Nil(t, err)
	assert.Equal(t, int64(4096), pos)

	// a partial file mapping cannot be resized
	assert.True(t, IsIO(mf.Resize(4096*2)))

	// nor written past its mapped length
	_, err = mf.WriteAt(4096, pattern)
	assert.True(t, IsIO(err))
}

func TestMappedWriteRead(t *testing.T) {
	const reps = 5
	pattern := randomBytes(1024)
	mf, _ := initMapped(t, reps*1024)
	defer mf.Close()

	position := int64(0)
	for i := 0; i < reps; i++ {
		_, err := mf.Write(pattern)
		require.Nil(t, err)

		out, err := mf.ReadBufferAt(position, 1024)
		require.Nil(t, err)
		assert.Equal(t, pattern, out.Bytes())
		out.Release()

		position += 1024
	}
}

func TestMappedInvalidReads(t *testing.T) {
	mf, _ := initMapped(t, 4096)
	defer mf.Close()

	buf := make([]byte, 10)
	_, err := mf.ReadAt(buf, -1)
	assert.True(t, IsInvalid(err))
	_, err = mf.ReadBufferAt(-1, 1)
	assert.True(t, IsInvalid(err))
	_, err = mf.ReadBufferAt(1, -1)
	assert.True(t, IsInvalid(err))
	_, err = mf.ReadBuffer(-1)
	assert.True(t, IsInvalid(err))
}

func TestMappedWriteResizeRead(t *testing.T) {
	const reps = 5
	buffers := make([][]byte, reps)
	for i := range buffers {
		buffers[i] = randomBytes(1024)
	}

	mf, _ := initMapped(t, 1024)
	defer mf.Close()

	position := int64(0)
	for i := 0; i < reps; i++ {
		if i != 0 {
			require.Nil(t, mf.Resize(int64(1024*(i+1))))
		}
		_, err := mf.Write(buffers[i])
		require.Nil(t, err)

		out, err := mf.ReadBufferAt(position, 1024)
		require.Nil(t, err)
		assert.Equal(t, 1024, out.Len())
		assert.Equal(t, buffers[i], out.Bytes())
		out.Release()

		position += 1024
	}
}

func TestMappedResizeBlockedByLeases(t *testing.T) {
	pattern := randomBytes(1024)
	mf, path := initMapped(t, 1024)
	defer mf.Close()

	_, err := mf.Write(pattern)
	require.Nil(t, err)

	out1, err := mf.ReadBufferAt(0, 1024)
	require.Nil(t, err)
	out2, err := mf.ReadBufferAt(0, 1024)
	require.Nil(t, err)
	assert.Equal(t, pattern, out1.Bytes())
	assert.Equal(t, pattern, out2.Bytes())

	// resize must fail while either lease is alive
	assert.True(t, IsIO(mf.Resize(2048)))

	out1.Release()
	assert.True(t, IsIO(mf.Resize(2048)))

	out2.Release()
	require.Nil(t, mf.Resize(2048))

	size, err := mf.Size()
	assert.Nil(t, err)
	assert.Equal(t, int64(2048), size)
	assert.Equal(t, int64(2048), diskSize(t, path))
}

func TestMappedWriteReadZeroInitSize(t *testing.T) {
	pattern := randomBytes(1024)
	mf, _ := initMapped(t, 0)
	defer mf.Close()

	require.Nil(t, mf.Resize(1024))
	_, err := mf.Write(pattern)
	require.Nil(t, err)

	out, err := mf.ReadBufferAt(0, 1024)
	require.Nil(t, err)
	assert.Equal(t, pattern, out.Bytes())
	out.Release()

	size, err := mf.Size()
	assert.Nil(t, err)
	assert.Equal(t, int64(1024), size)
}

func TestMappedWriteThenShrink(t *testing.T) {
	pattern := randomBytes(1024)
	mf, path := initMapped(t, 2048)
	defer mf.Close()

	require.Nil(t, mf.Resize(1024))
	_, err := mf.Write(pattern)
	require.Nil(t, err)
	require.Nil(t, mf.Resize(512))

	out, err := mf.ReadBufferAt(0, 512)
	require.Nil(t, err)
	assert.Equal(t, pattern[:512], out.Bytes())
	out.Release()

	size, err := mf.Size()
	assert.Nil(t, err)
	assert.Equal(t, int64(512), size)
	assert.Equal(t, int64(512), diskSize(t, path))
}

func TestMappedShrinkThenWriteAtSeam(t *testing.T) {
	pattern := randomBytes(1024)
	mf, path := initMapped(t, 1024)
	defer mf.Close()

	_, err := mf.Write(pattern)
	require.Nil(t, err)
	require.Nil(t, mf.Resize(512))

	// shrinking clamps the position to the new boundary
	pos, err := mf.Tell()
	assert.Nil(t, err)
	assert.Equal(t, int64(512), pos)

	out, err := mf.ReadBufferAt(0, 512)
	require.Nil(t, err)
	assert.Equal(t, pattern[:512], out.Bytes())
	out.Release()

	// growing again resumes writing exactly at the seam
	require.Nil(t, mf.Resize(1024))
	_, err = mf.Write(pattern[512:])
	require.Nil(t, err)

	out, err = mf.ReadBufferAt(0, 1024)
	require.Nil(t, err)
	assert.Equal(t, pattern, out.Bytes())
	out.Release()

	size, err := mf.Size()
	assert.Nil(t, err)
	assert.Equal(t, int64(1024), size)
	assert.Equal(t, int64(1024), diskSize(t, path))
}

func TestMappedResizeToZeroThenWrite(t *testing.T) {
	pattern := randomBytes(1024)
	mf, path := initMapped(t, 1024)
	defer mf.Close()

	_, err := mf.Write(pattern)
	require.Nil(t, err)
	out, err := mf.ReadBufferAt(0, 1024)
	require.Nil(t, err)
	assert.Equal(t, pattern, out.Bytes())
	out.Release()

	require.Nil(t, mf.Resize(0))

	size, err := mf.Size()
	assert.Nil(t, err)
	assert.Equal(t, int64(0), size)

	pos, err := mf.Tell()
	assert.Nil(t, err)
	assert.Equal(t, int64(0), pos)

	assert.Equal(t, int64(0), diskSize(t, path))

	// a read into a non-empty destination must return zero bytes without
	// touching any backing memory
	shouldRemainEmpty := make([]byte, 1024)
	n, err := mf.ReadAt(shouldRemainEmpty[:1], 0)
	require.Nil(t, err)
	assert.Equal(t, 0, n)

	// growing back reproduces the same bytes as a straight write
	require.Nil(t, mf.Resize(1024))
	_, err = mf.Write(pattern)
	require.Nil(t, err)
	out, err = mf.ReadBufferAt(0, 1024)
	require.Nil(t, err)
	assert.Equal(t, pattern, out.Bytes())
	out.Release()
}

func TestMappedWriteAt(t *testing.T) {
	pattern := randomBytes(1024)
	mf, _ := initMapped(t, 1024)
	defer mf.Close()

	_, err := mf.WriteAt(0, pattern[:512])
	require.Nil(t, err)
	_, err = mf.WriteAt(512, pattern[512:])
	require.Nil(t, err)

	out, err := mf.ReadBufferAt(0, 1024)
	require.Nil(t, err)
	assert.Equal(t, pattern, out.Bytes())
	out.Release()
}

func TestMappedWriteBeyondEnd(t *testing.T) {
	pattern := randomBytes(1024)
	mf, _ := initMapped(t, 1024)
	defer mf.Close()

	require.Nil(t, mf.Seek(1))
	_, err := mf.Write(pattern)
	assert.True(t, IsIO(err))

	// the position is unchanged after a rejected write
	pos, err := mf.Tell()
	assert.Nil(t, err)
	assert.Equal(t, int64(1), pos)
}

func TestMappedWriteAtBeyondEnd(t *testing.T) {
	pattern := randomBytes(1024)
	mf, _ := initMapped(t, 1024)
	defer mf.Close()

	_, err := mf.WriteAt(1, pattern)
	assert.True(t, IsIO(err))

	pos, err := mf.Tell()
	assert.Nil(t, err)
	assert.Equal(t, int64(0), pos)
}

func TestMappedSize(t *testing.T) {
	mf, _ := initMapped(t, 16384)
	defer mf.Close()

	size, err := mf.Size()
	assert.Nil(t, err)
	assert.Equal(t, int64(16384), size)

	pos, err := mf.Tell()
	assert.Nil(t, err)
	assert.Equal(t, int64(0), pos)
}

func TestMappedReadOnly(t *testing.T) {
	const reps = 5
	pattern := randomBytes(1024)
	mf, path := initMapped(t, reps*1024)

	for i := 0; i < reps; i++ {
		_, err := mf.Write(pattern)
		require.Nil(t, err)
	}
	require.Nil(t, mf.Close())

	ro, err := OpenMapped(path, ModeRead)
	require.Nil(t, err)
	defer ro.Close()

	position := int64(0)
	for i := 0; i < reps; i++ {
		out, err := ro.ReadBufferAt(position, 1024)
		require.Nil(t, err)
		assert.Equal(t, pattern, out.Bytes())
		out.Release()
		position += 1024
	}

	assert.True(t, ro.SupportsZeroCopy())

	_, err = ro.Write(pattern)
	assert.True(t, IsIO(err))
	assert.True(t, IsIO(ro.Resize(2048)))
}

func TestMappedRetainBufferAfterClose(t *testing.T) {
	pattern := randomBytes(1024)
	mf, path := initMapped(t, 1024)

	_, err := mf.Write(pattern)
	require.Nil(t, err)
	assert.False(t, mf.Closed())
	require.Nil(t, mf.Close())
	assert.True(t, mf.Closed())

	ro, err := OpenMapped(path, ModeRead)
	require.Nil(t, err)

	out, err := ro.ReadBuffer(1024)
	require.Nil(t, err)
	assert.False(t, ro.Closed())
	require.Nil(t, ro.Close())
	assert.True(t, ro.Closed())

	// the mapping outlives Close for as long as the buffer does
	assert.Equal(t, pattern, out.Bytes())
	out.Release()
}

func TestMappedInvalidFile(t *testing.T) {
	_, err := OpenMapped(filepath.Join(t.TempDir(), "missing.dat"), ModeRead)
	assert.True(t, IsIO(err))
}

func TestMappedClosedOperations(t *testing.T) {
	mf, _ := initMapped(t, 1024)
	require.Nil(t, mf.Close())

	// double close is a no-op
	assert.Nil(t, mf.Close())

	_, err := mf.Write([]byte("x"))
	assert.True(t, IsClosed(err))
	_, err = mf.WriteAt(0, []byte("x"))
	assert.True(t, IsClosed(err))
	_, err = mf.Read(make([]byte, 1))
	assert.True(t, IsClosed(err))
	_, err = mf.ReadAt(make([]byte, 1), 0)
	assert.True(t, IsClosed(err))
	_, err = mf.ReadBuffer(1)
	assert.True(t, IsClosed(err))
	_, err = mf.ReadBufferAt(0, 1)
	assert.True(t, IsClosed(err))
	_, err = mf.Tell()
	assert.True(t, IsClosed(err))
	_, err = mf.Size()
	assert.True(t, IsClosed(err))
	assert.True(t, IsClosed(mf.Seek(0)))
	assert.True(t, IsClosed(mf.Resize(2048)))
	assert.True(t, IsClosed(mf.Sync()))
	assert.True(t, IsClosed(mf.WillNeed()))
}

func TestMappedThreadSafety(t *testing.T) {
	data := []byte("foobar")
	mf, _ := initMapped(t, int64(len(data)))
	defer mf.Close()

	_, err := mf.Write(data)
	require.Nil(t, err)

	const niter = 5000
	var correct atomic.Int64
	var wg sync.WaitGroup

	readData := func() {
		defer wg.Done()
		for i := 0; i < niter; i++ {
			off := int64(i % 3)
			out, err := mf.ReadBufferAt(off, 3)
			if err != nil {
				continue
			}
			if string(out.Bytes()) == string(data[off:off+3]) {
				correct.Add(1)
			}
			out.Release()
		}
	}

	wg.Add(2)
	go readData()
	go readData()
	wg.Wait()

	assert.Equal(t, int64(2*niter), correct.Load())
}

func TestMappedSyncAndWillNeed(t *testing.T) {
	pattern := randomBytes(1024)
	mf, path := initMapped(t, 1024)

	_, err := mf.Write(pattern)
	require.Nil(t, err)
	assert.Nil(t, mf.Sync())
	assert.Nil(t, mf.WillNeed())
	require.Nil(t, mf.Close())

	content, err := os.ReadFile(path)
	require.Nil(t, err)
	assert.Equal(t, pattern, content)
}

package fileio

import "sync/atomic"

// Allocator supplies memory for owned (copying) reads. Implementations may
// pool, count or recycle allocations. The zero-copy read path never calls
// the allocator.
type Allocator interface {
	// Allocate returns a slice of n bytes.
	Allocate(n int) []byte

	// Reallocate resizes b to n bytes, preserving its prefix.
	Reallocate(b []byte, n int) []byte

	// Free returns b to the allocator.
	Free(b []byte)
}

// GoAllocator allocates from the Go heap and lets the garbage collector
// reclaim freed buffers.
type GoAllocator struct{}

func (GoAllocator) Allocate(n int) []byte {
	return make([]byte, n)
}

func (GoAllocator) Reallocate(b []byte, n int) []byte {
	if n <= cap(b) {
		return b[:n]
	}
	nb := make([]byte, n)
	copy(nb, b)
	return nb
}

func (GoAllocator) Free(b []byte) {}

// Buffer is a byte view handed out by a read operation.
//
// Owned buffers carry storage obtained from an Allocator and are independent
// of the file they were read from. Zero-copy buffers reference memory owned
// by a MappedFile's mapping and pin it: the mapping cannot be resized, and is
// not unmapped on close, until every zero-copy buffer has been released.
//
// Release must be called when the holder is done with the bytes. It is
// idempotent and synchronous: when it returns, the lease (if any) has been
// given back.
type Buffer struct {
	data     []byte
	alloc    Allocator   // non-nil for owned buffers
	region   *MappedFile // non-nil for zero-copy buffers
	released atomic.Bool
}

// Bytes returns the buffer contents. The slice is invalid after Release.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the number of bytes in the buffer.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Release gives the buffer back: owned storage returns to its allocator,
// zero-copy views release their lease on the mapping.
func (b *Buffer) Release() {
	if !b.released.CompareAndSwap(false, true) {
		return
	}
	if b.region != nil {
		b.region.releaseLease()
		b.region = nil
	}
	if b.alloc != nil {
		b.alloc.Free(b.data)
		b.alloc = nil
	}
	b.data = nil
}

// Package ring implements a lock-free, single-producer/single-consumer byte
// ring buffer.
//
// Capacity is rounded up to the next power of two so that cursor-to-offset
// translation is a mask instead of a modulo, and so the reader/writer can
// use unbounded monotonic counters (wrapping arithmetic in the counter's
// width) rather than tracking a separate "is full" flag. Exactly one
// goroutine may call methods on the [Reader] half and exactly one goroutine
// may call methods on the [Writer] half; there is no further synchronization
// beyond the atomics here, matching the single-producer/single-consumer
// contract the [bridge] package builds on.
package ring

import (
	"sync/atomic"
)

// New creates a ring buffer with at least the requested capacity (rounded up
// to the next power of two) and returns its reader and writer halves.
func New(capacity int) (*Reader, *Writer) {
	capacity = nextPowerOfTwo(capacity)
	buf := &buffer{
		buf:  make([]byte, capacity),
		mask: uint64(capacity - 1),
	}
	return &Reader{buf: buf}, &Writer{buf: buf}
}

// buffer holds the shared ring state. read and write are unbounded counters;
// masking by (capacity-1) turns them into byte offsets. Occupancy is
// write-read (unsigned wraparound arithmetic keeps this correct even after
// the counters individually wrap, as long as capacity stays well under the
// width of uint64).
type buffer struct {
	buf  []byte
	mask uint64

	// read is only ever written by the Reader goroutine and read by the
	// Writer goroutine: store with Release, load with Acquire.
	read atomic.Uint64
	// write is only ever written by the Writer goroutine and read by the
	// Reader goroutine: store with Release, load with Acquire.
	write atomic.Uint64
}

func (b *buffer) capacity() int { return len(b.buf) }

// Reader is the read half of a ring buffer. Not safe for concurrent use by
// more than one goroutine.
type Reader struct {
	buf *buffer
}

// Peek returns the largest contiguous readable region, without following the
// wrap boundary. It is empty iff the ring is empty. Callers must call Peek
// again after Consume to see bytes that lie past a wrap boundary.
func (r *Reader) Peek() []byte {
	read := r.buf.read.Load()
	write := r.buf.write.Load() // acquire: pairs with the writer's release store
	avail := write - read
	if avail == 0 {
		return nil
	}

	off := read & r.buf.mask
	// Largest contiguous run starting at off: either up to the end of the
	// backing array, or the full available count if it doesn't cross the
	// wrap boundary.
	toEnd := uint64(r.buf.capacity()) - off
	n := avail
	if n > toEnd {
		n = toEnd
	}
	return r.buf.buf[off : off+n]
}

// Consume advances the read cursor by n bytes. n must be <= len(Peek()).
func (r *Reader) Consume(n int) {
	if n <= 0 {
		return
	}
	r.buf.read.Store(r.buf.read.Load() + uint64(n)) // release: pairs with the writer's acquire load
}

// Len returns the number of bytes currently available to read.
func (r *Reader) Len() int {
	read := r.buf.read.Load()
	write := r.buf.write.Load()
	return int(write - read)
}

// Writer is the write half of a ring buffer. Not safe for concurrent use by
// more than one goroutine.
type Writer struct {
	buf *buffer
}

// PeekMut returns the largest contiguous writable region, without following
// the wrap boundary. It is empty iff the ring is full.
func (w *Writer) PeekMut() []byte {
	write := w.buf.write.Load()
	read := w.buf.read.Load() // acquire: pairs with the reader's release store
	free := uint64(w.buf.capacity()) - (write - read)
	if free == 0 {
		return nil
	}

	off := write & w.buf.mask
	toEnd := uint64(w.buf.capacity()) - off
	n := free
	if n > toEnd {
		n = toEnd
	}
	return w.buf.buf[off : off+n]
}

// Consume advances the write cursor by n bytes. n must be <= len(PeekMut()).
func (w *Writer) Consume(n int) {
	if n <= 0 {
		return
	}
	w.buf.write.Store(w.buf.write.Load() + uint64(n)) // release: pairs with the reader's acquire load
}

// Free returns the number of bytes currently available to write.
func (w *Writer) Free() int {
	write := w.buf.write.Load()
	read := w.buf.read.Load()
	return w.buf.capacity() - int(write-read)
}

// Capacity returns the ring's total capacity in bytes.
func (w *Writer) Capacity() int { return w.buf.capacity() }

func nextPowerOfTwo(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

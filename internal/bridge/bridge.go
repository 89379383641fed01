// Package bridge lifts a [ring.Reader]/[ring.Writer] pair into two
// asynchronous half-duplex handles with cooperative wakeups and EOF
// propagation.
//
// Go has no poll-based futures, so the "poll, park, re-check" pattern from
// the original design is expressed directly as blocking methods: [Reader.Fill]
// and [Writer.Write] block on a context-aware channel receive instead of
// returning Pending to a scheduler. The race the original closes — the other
// side publishing between a first peek and waker registration — is closed
// here the same way: re-peek the ring after the wake channel delivers,
// before trusting that data (or space) is actually available.
package bridge

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/cpdt/mrvn-bot/internal/ring"
)

// wakeSlot holds at most one pending wakeup. A send that finds the channel
// already full is a no-op: by contract at most one goroutine ever parks on a
// slot, so the parked goroutine either already observed the condition that
// would make it stop waiting, or is about to from this wakeup.
type wakeSlot chan struct{}

func newWakeSlot() wakeSlot { return make(wakeSlot, 1) }

func (s wakeSlot) notify() {
	select {
	case s <- struct{}{}:
	default:
	}
}

// New creates a bridge over a ring buffer of the given capacity and returns
// its reader and writer halves.
func New(capacity int) (*Reader, *Writer) {
	rr, rw := ring.New(capacity)

	dataAvailable := newWakeSlot()
	spaceAvailable := newWakeSlot()

	shared := &sharedState{}

	reader := &Reader{
		ring:           rr,
		dataAvailable:  dataAvailable,
		spaceAvailable: spaceAvailable,
		shared:         shared,
	}
	writer := &Writer{
		ring:           rw,
		dataAvailable:  dataAvailable,
		spaceAvailable: spaceAvailable,
		shared:         shared,
	}
	return reader, writer
}

type sharedState struct {
	writerClosed atomic.Bool
	readerClosed atomic.Bool
	closeOnce    sync.Once
}

// Reader is the read half of a bridge. Exactly one goroutine may call its
// methods.
type Reader struct {
	ring           *ring.Reader
	dataAvailable  wakeSlot
	spaceAvailable wakeSlot
	shared         *sharedState
}

// Fill returns the next available readable region, parking until data is
// published, the writer closes (EOF — returns nil, io.EOF), or ctx is
// cancelled. The returned slice is only valid until the next call to Fill or
// Consume.
func (r *Reader) Fill(ctx context.Context) ([]byte, error) {
	if b := r.ring.Peek(); len(b) > 0 {
		return b, nil
	}

	for {
		writerClosed := r.shared.writerClosed.Load()

		select {
		case <-r.dataAvailable:
		default:
		}

		// Re-check after observing writerClosed and before parking, closing
		// the race where the writer both published bytes and closed between
		// our first peek and now.
		if b := r.ring.Peek(); len(b) > 0 {
			return b, nil
		}
		if writerClosed {
			return nil, io.EOF
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.dataAvailable:
			// Loop back around: re-peek, re-check writerClosed.
		}
	}
}

// Consume advances the ring by n bytes and wakes a parked writer, if any.
func (r *Reader) Consume(n int) {
	r.ring.Consume(n)
	r.spaceAvailable.notify()
}

// Close marks the reader as gone. Subsequent writer calls observe this and
// stop accepting data. Safe to call more than once.
func (r *Reader) Close() {
	r.shared.closeOnce.Do(func() {
		r.shared.readerClosed.Store(true)
		r.spaceAvailable.notify()
	})
}

// Writer is the write half of a bridge. Exactly one goroutine may call its
// methods.
type Writer struct {
	ring           *ring.Writer
	dataAvailable  wakeSlot
	spaceAvailable wakeSlot
	shared         *sharedState
}

// Write copies as much of p as fits in the ring's writable region, parking
// until space frees up, the reader closes (returns 0, nil — writes are now
// useless), or ctx is cancelled. It does not loop to write all of p; callers
// needing that should call Write again with the remainder.
func (w *Writer) Write(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for {
		if buf := w.ring.PeekMut(); len(buf) > 0 {
			n := copy(buf, p)
			w.ring.Consume(n)
			w.dataAvailable.notify()
			return n, nil
		}

		readerClosed := w.shared.readerClosed.Load()
		select {
		case <-w.spaceAvailable:
		default:
		}

		if buf := w.ring.PeekMut(); len(buf) > 0 {
			n := copy(buf, p)
			w.ring.Consume(n)
			w.dataAvailable.notify()
			return n, nil
		}
		if readerClosed {
			return 0, nil
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-w.spaceAvailable:
		}
	}
}

// Flush reports whether the ring currently has writable space. It never
// blocks.
func (w *Writer) Flush() bool {
	return len(w.ring.PeekMut()) > 0
}

// Close marks the writer as done, delivering EOF to the reader. Calling
// Close twice is a contract violation, matching the original design (callers
// own a single producer goroutine and call this exactly once on exit).
func (w *Writer) Close() {
	w.shared.writerClosed.Store(true)
	w.dataAvailable.notify()
}

package bridge_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/cpdt/mrvn-bot/internal/bridge"
	"github.com/stretchr/testify/require"
)

func TestWriteThenFill(t *testing.T) {
	ctx := context.Background()
	r, w := bridge.New(16)

	n, err := w.Write(ctx, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	got, err := r.Fill(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

// TestCloseEOF verifies close propagation: after writer close and draining,
// the reader's next fill returns EOF within one poll (spec.md §8 invariant).
func TestCloseEOF(t *testing.T) {
	ctx := context.Background()
	r, w := bridge.New(16)

	_, err := w.Write(ctx, []byte("data"))
	require.NoError(t, err)
	w.Close()

	got, err := r.Fill(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("data"), got)
	r.Consume(len(got))

	_, err = r.Fill(ctx)
	require.ErrorIs(t, err, io.EOF)
}

func TestFillParksUntilWriteWakesIt(t *testing.T) {
	ctx := context.Background()
	r, w := bridge.New(16)

	done := make(chan []byte, 1)
	go func() {
		b, err := r.Fill(ctx)
		require.NoError(t, err)
		cp := append([]byte(nil), b...)
		done <- cp
	}()

	time.Sleep(20 * time.Millisecond)
	_, err := w.Write(ctx, []byte("woke"))
	require.NoError(t, err)

	select {
	case got := <-done:
		require.Equal(t, []byte("woke"), got)
	case <-time.After(time.Second):
		t.Fatal("reader never woke up")
	}
}

func TestWriteParksUntilReaderFreesSpace(t *testing.T) {
	ctx := context.Background()
	r, w := bridge.New(4)

	n, err := w.Write(ctx, []byte("ABCD"))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	writeDone := make(chan int, 1)
	go func() {
		n, err := w.Write(ctx, []byte("E"))
		require.NoError(t, err)
		writeDone <- n
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-writeDone:
		t.Fatal("write should still be parked, buffer is full")
	default:
	}

	got, err := r.Fill(ctx)
	require.NoError(t, err)
	r.Consume(len(got))

	select {
	case n := <-writeDone:
		require.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("writer never woke up")
	}
}

func TestWriteAfterReaderCloseReturnsZero(t *testing.T) {
	ctx := context.Background()
	r, w := bridge.New(4)

	n, err := w.Write(ctx, []byte("ABCD"))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	r.Close()

	n, err = w.Write(ctx, []byte("E"))
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestFillRespectsContextCancellation(t *testing.T) {
	r, w := bridge.New(16)
	_ = w

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Fill(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

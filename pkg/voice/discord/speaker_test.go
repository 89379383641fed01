package discord

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func floatBytesLE(samples []float32) []byte {
	b := make([]byte, len(samples)*4)
	for i, f := range samples {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

func TestFloatLEToPCM16RoundTripsKnownValues(t *testing.T) {
	in := floatBytesLE([]float32{0, 1, -1, 0.5})
	out := floatLEToPCM16(in)
	if len(out) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(out))
	}

	pcm := bytesToInt16s(out)
	want := []int16{0, 32767, -32767, 16383}
	for i, w := range want {
		if pcm[i] != w {
			t.Errorf("sample %d: got %d want %d", i, pcm[i], w)
		}
	}
}

func TestClampToInt16ClampsOutOfRangeValues(t *testing.T) {
	if got := clampToInt16(2.0); got != 32767 {
		t.Errorf("expected clamp to 32767, got %d", got)
	}
	if got := clampToInt16(-2.0); got != -32768 {
		t.Errorf("expected clamp to -32768, got %d", got)
	}
}

func TestWaitWhilePausedReturnsImmediatelyWhenNotPaused(t *testing.T) {
	s := &Speaker{}
	ctx := context.Background()

	done := make(chan bool, 1)
	go func() { done <- s.waitWhilePaused(ctx) }()

	select {
	case cancelled := <-done:
		if cancelled {
			t.Fatal("expected waitWhilePaused to report no cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("waitWhilePaused blocked despite not being paused")
	}
}

func TestWaitWhilePausedUnblocksOnUnpause(t *testing.T) {
	s := &Speaker{}
	s.paused.Store(true)
	ctx := context.Background()

	done := make(chan bool, 1)
	go func() { done <- s.waitWhilePaused(ctx) }()

	select {
	case <-done:
		t.Fatal("waitWhilePaused returned before Unpause was called")
	case <-time.After(75 * time.Millisecond):
	}

	s.paused.Store(false)

	select {
	case cancelled := <-done:
		if cancelled {
			t.Fatal("expected waitWhilePaused to report no cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("waitWhilePaused did not unblock after Unpause")
	}
}

func TestWaitWhilePausedUnblocksOnContextCancel(t *testing.T) {
	s := &Speaker{}
	s.paused.Store(true)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() { done <- s.waitWhilePaused(ctx) }()

	cancel()

	select {
	case cancelled := <-done:
		if !cancelled {
			t.Fatal("expected waitWhilePaused to report cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("waitWhilePaused did not unblock on context cancellation")
	}
}

func TestPlayRejectsRoomMismatch(t *testing.T) {
	s := &Speaker{}
	err := s.Play(context.Background(), "room1", nil, func() {})
	if err == nil {
		t.Fatal("expected error when speaker has no active voice connection")
	}
}

package mediapipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/cpdt/mrvn-bot/internal/pkgerr"
)

func TestToStereoPassesStereoThrough(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3, 0.4}
	out := toStereo(in, 2)
	if &out[0] != &in[0] {
		t.Fatalf("expected stereo input to pass through unchanged (same backing array)")
	}
}

func TestToStereoDuplicatesMono(t *testing.T) {
	in := []float32{0.5, -0.25}
	out := toStereo(in, 1)
	want := []float32{0.5, 0.5, -0.25, -0.25}
	if len(out) != len(want) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestToStereoDropsExtraChannels(t *testing.T) {
	// 4 channels, one frame: L R C LFE -> keep L R.
	in := []float32{1, 2, 3, 4}
	out := toStereo(in, 4)
	want := []float32{1, 2}
	if len(out) != len(want) || out[0] != want[0] || out[1] != want[1] {
		t.Errorf("toStereo(4ch) = %v, want %v", out, want)
	}
}

func TestEncodeFloatLERoundTrips(t *testing.T) {
	samples := []float32{1, -1, 0, 0.5}
	raw := encodeFloatLE(samples)
	if len(raw) != len(samples)*4 {
		t.Fatalf("len(raw) = %d, want %d", len(raw), len(samples)*4)
	}
	for i, want := range samples {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		got := math.Float32frombits(bits)
		if got != want {
			t.Errorf("sample %d = %v, want %v", i, got, want)
		}
	}
}

// fakeTrack is a decodedTrack that yields a fixed number of samples before
// reporting io.EOF, optionally attaching a partial-fill remainder to the EOF.
type fakeTrack struct {
	sampleRate, channels int
	remaining            []float32
	chunk                int
}

func (f *fakeTrack) SampleRate() int { return f.sampleRate }
func (f *fakeTrack) Channels() int   { return f.channels }

func (f *fakeTrack) ReadFloat(buf []float32) (int, error) {
	if len(f.remaining) == 0 {
		return 0, io.EOF
	}
	n := f.chunk
	if n <= 0 || n > len(buf) {
		n = len(buf)
	}
	if n > len(f.remaining) {
		n = len(f.remaining)
	}
	copy(buf, f.remaining[:n])
	f.remaining = f.remaining[n:]
	if len(f.remaining) == 0 {
		return n, io.EOF
	}
	return n, nil
}

func TestReadFullAccumulatesAcrossShortReads(t *testing.T) {
	track := &fakeTrack{sampleRate: 48000, channels: 2, remaining: make([]float32, 10), chunk: 3}
	buf := make([]float32, 10)
	n, err := readFull(track, buf)
	if n != 10 {
		t.Errorf("n = %d, want 10", n)
	}
	if err != io.EOF {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestReadFullStopsOnNonEOFError(t *testing.T) {
	boom := errors.New("boom")
	track := &errTrack{err: boom}
	buf := make([]float32, 4)
	n, err := readFull(track, buf)
	if n != 0 {
		t.Errorf("n = %d, want 0", n)
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

type errTrack struct{ err error }

func (e *errTrack) SampleRate() int                      { return 44100 }
func (e *errTrack) Channels() int                        { return 2 }
func (e *errTrack) ReadFloat(buf []float32) (int, error) { return 0, e.err }

func TestNewDecodeSourceRejectsZeroChannels(t *testing.T) {
	_, err := newDecodeSource(&fakeTrack{sampleRate: 44100, channels: 0})
	if pkgerr.KindOf(err) != pkgerr.KindDecode {
		t.Fatalf("KindOf(err) = %v, want KindDecode", pkgerr.KindOf(err))
	}
}

func TestDecodeSourcePadsShortFinalBlockAndTerminates(t *testing.T) {
	// Fewer samples than one full chunk: decodeSource must zero-pad, still
	// resample and emit one final frame, then return io.EOF on the next Read.
	track := &fakeTrack{
		sampleRate: 48000,
		channels:   2,
		remaining:  make([]float32, 2*100), // 100 frames, well under decodeChunkFrames
	}
	src, err := newDecodeSource(track)
	if err != nil {
		t.Fatalf("newDecodeSource: %v", err)
	}

	ctx := context.Background()
	out, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("first Read: %v", err)
	}
	if len(out)%4 != 0 {
		t.Errorf("len(out) = %d, not a multiple of 4 (interleaved float32 LE)", len(out))
	}
	if len(out) == 0 {
		t.Errorf("expected a non-empty final frame even for a short final block")
	}

	if _, err := src.Read(ctx); err != io.EOF {
		t.Errorf("second Read err = %v, want io.EOF", err)
	}
}

func TestDecodeSourceFramedIsFalse(t *testing.T) {
	src, err := newDecodeSource(&fakeTrack{sampleRate: 48000, channels: 2, remaining: make([]float32, 2*decodeChunkFrames)})
	if err != nil {
		t.Fatalf("newDecodeSource: %v", err)
	}
	if src.Framed() {
		t.Errorf("decodeSource.Framed() = true, want false")
	}
}

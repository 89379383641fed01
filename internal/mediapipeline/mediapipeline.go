// Package mediapipeline wires a remotestream.ChunkStream into a playable
// audio source: a producer goroutine copies chunks into a ring buffer via
// the bridge package, a consumer probes the resulting byte stream for its
// container/codec and exposes either a framed passthrough source (already
// Opus @ 48kHz) or a decode-resample-interleave source (everything else).
//
// The producer and consumer are two independently cancellable halves tied
// together the way the original design ties an AbortOnDrop guard to a
// consumer handle: closing the returned Source cancels the producer, which
// unwinds the upstream HTTP chunk stream and closes the ring writer, which
// in turn unblocks anything still reading from the consumer side.
package mediapipeline

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cpdt/mrvn-bot/internal/bridge"
	"github.com/cpdt/mrvn-bot/internal/pkgerr"
	"github.com/cpdt/mrvn-bot/internal/remotestream"
)

// WireSampleRate and WireChannels describe the target wire format: Opus
// passthrough tracks already match it; decoded tracks are resampled and
// downmixed/upmixed to it.
const (
	WireSampleRate = 48000
	WireChannels   = 2
)

// Hint narrows container probing, mirroring the extractor's reported
// extension and MIME type for the resolved media URL.
type Hint struct {
	Extension string
	MIME      string
}

// Source is a playable audio source. Passthrough sources emit
// [len(u16 LE)][frame] envelopes of already-encoded Opus; decode sources
// emit a continuous stream of interleaved little-endian float32 PCM at
// WireSampleRate/WireChannels. Callers distinguish the two via Framed.
type Source interface {
	// Read returns the next chunk of output bytes, or io.EOF when the
	// source is exhausted.
	Read(ctx context.Context) ([]byte, error)
	// Framed reports whether Read returns length-prefixed Opus frames
	// (true) or a raw interleaved float32 PCM byte stream (false).
	Framed() bool
	// Close cancels the producer and releases pipeline resources. Safe to
	// call more than once.
	Close() error
}

// Config holds the pipeline tunables from the playback configuration block.
type Config struct {
	BufferCapacityBytes int
	ScanTimeout         time.Duration
}

// New builds a playable Source from chunks, probing its container/codec
// under cfg.ScanTimeout. The returned Source owns chunks: closing it (or an
// unrecoverable producer error) tears down the upstream stream too.
func New(parent context.Context, chunks remotestream.ChunkStream, hint Hint, cfg Config) (Source, error) {
	ctx, cancel := context.WithCancel(parent)

	capacity := cfg.BufferCapacityBytes
	if capacity <= 0 {
		capacity = 1 << 20
	}
	r, w := bridge.New(capacity)

	var wg sync.WaitGroup
	wg.Add(1)
	go runProducer(ctx, &wg, chunks, w)

	teardown := func() {
		cancel()
		r.Close()
		wg.Wait()
	}

	scanCtx := ctx
	var scanCancel context.CancelFunc
	if cfg.ScanTimeout > 0 {
		scanCtx, scanCancel = context.WithTimeout(ctx, cfg.ScanTimeout)
		defer scanCancel()
	}

	adapter := newRingReader(scanCtx, r)
	src, err := probeAndBuild(scanCtx, adapter, hint)
	if err != nil {
		teardown()
		if scanCtx.Err() != nil {
			return nil, pkgerr.New(pkgerr.KindScanTimedOut, "mediapipeline: container probe timed out")
		}
		return nil, err
	}

	return &pipelineSource{inner: src, cancel: cancel, reader: r, wg: &wg}, nil
}

func runProducer(ctx context.Context, wg *sync.WaitGroup, chunks remotestream.ChunkStream, w *bridge.Writer) {
	defer wg.Done()
	defer w.Close()
	defer chunks.Close()

	for {
		chunk, err := chunks.Next(ctx)
		if err != nil {
			if err != io.EOF {
				slog.Debug("mediapipeline: producer stream ended", "err", err)
			}
			return
		}
		for len(chunk) > 0 {
			n, werr := w.Write(ctx, chunk)
			if werr != nil {
				return
			}
			if n == 0 {
				// Reader closed: nothing more to do, stop pulling upstream.
				return
			}
			chunk = chunk[n:]
		}
	}
}

type pipelineSource struct {
	inner  Source
	cancel context.CancelFunc
	reader *bridge.Reader
	wg     *sync.WaitGroup

	closeOnce sync.Once
}

func (p *pipelineSource) Read(ctx context.Context) ([]byte, error) { return p.inner.Read(ctx) }
func (p *pipelineSource) Framed() bool                             { return p.inner.Framed() }

func (p *pipelineSource) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		p.reader.Close()
		p.wg.Wait()
	})
	return nil
}

// encodeFrameLength writes a passthrough envelope header, little-endian per
// the spec's resolved ambiguity about the original's native-endian framing.
func encodeFrameLength(n int) [2]byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(n))
	return b
}

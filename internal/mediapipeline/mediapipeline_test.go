package mediapipeline

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/cpdt/mrvn-bot/internal/pkgerr"
)

// chunkSliceStream replays a fixed list of chunks, then io.EOF.
type chunkSliceStream struct {
	chunks [][]byte
	i      int
}

func (c *chunkSliceStream) Next(ctx context.Context) ([]byte, error) {
	if c.i >= len(c.chunks) {
		return nil, io.EOF
	}
	chunk := c.chunks[c.i]
	c.i++
	return chunk, nil
}

func (c *chunkSliceStream) Close() error { return nil }

// blockingStream never produces a byte until ctx is cancelled, to exercise
// the scan-timeout path.
type blockingStream struct{}

func (blockingStream) Next(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingStream) Close() error { return nil }

func TestNewRejectsUnrecognizedContainer(t *testing.T) {
	stream := &chunkSliceStream{chunks: [][]byte{{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}}}
	src, err := New(context.Background(), stream, Hint{}, Config{})
	if err == nil {
		src.Close()
		t.Fatal("expected an error for an unrecognized container, got nil")
	}
	if pkgerr.KindOf(err) != pkgerr.KindNoTracks {
		t.Errorf("KindOf(err) = %v, want KindNoTracks", pkgerr.KindOf(err))
	}
}

func TestNewSurfacesScanTimeoutAsScanTimedOutKind(t *testing.T) {
	src, err := New(context.Background(), blockingStream{}, Hint{}, Config{ScanTimeout: 20 * time.Millisecond})
	if err == nil {
		src.Close()
		t.Fatal("expected a scan-timeout error, got nil")
	}
	if pkgerr.KindOf(err) != pkgerr.KindScanTimedOut {
		t.Errorf("KindOf(err) = %v, want KindScanTimedOut", pkgerr.KindOf(err))
	}
}

func TestNewCancelingParentContextUnblocksTeardown(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		New(parent, blockingStream{}, Hint{}, Config{})
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("New did not return after parent context cancellation")
	}
}

func TestEncodeFrameLengthIsLittleEndian(t *testing.T) {
	b := encodeFrameLength(0x0102)
	if b[0] != 0x02 || b[1] != 0x01 {
		t.Errorf("encodeFrameLength(0x0102) = %v, want [0x02 0x01]", b)
	}
}

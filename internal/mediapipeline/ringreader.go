package mediapipeline

import (
	"context"
	"io"

	"github.com/cpdt/mrvn-bot/internal/bridge"
)

// ringReader adapts a bridge.Reader into a synchronous io.Reader, the shape
// container probers and decoders expect. ctx bounds every Fill call, so a
// scan-timeout context cancels probing without the caller needing to know
// about the bridge underneath.
type ringReader struct {
	ctx     context.Context
	reader  *bridge.Reader
	pending []byte
}

func newRingReader(ctx context.Context, r *bridge.Reader) *ringReader {
	return &ringReader{ctx: ctx, reader: r}
}

func (rr *ringReader) Read(p []byte) (int, error) {
	if len(rr.pending) == 0 {
		b, err := rr.reader.Fill(rr.ctx)
		if err != nil {
			return 0, err
		}
		rr.pending = b
	}

	n := copy(p, rr.pending)
	rr.reader.Consume(n)
	rr.pending = rr.pending[n:]
	return n, nil
}

var _ io.Reader = (*ringReader)(nil)

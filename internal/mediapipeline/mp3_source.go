package mediapipeline

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"

	"github.com/cpdt/mrvn-bot/internal/pkgerr"
	"github.com/hajimehoshi/go-mp3"
)

const mp3Channels = 2

// mp3Track adapts go-mp3's int16 stereo PCM stream into decodedTrack.
type mp3Track struct {
	dec *mp3.Decoder
	buf []byte
}

func newMP3Source(ctx context.Context, r *bufio.Reader) (Source, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.KindDecode, err)
	}
	return newDecodeSource(&mp3Track{dec: dec})
}

func (t *mp3Track) SampleRate() int { return t.dec.SampleRate() }
func (t *mp3Track) Channels() int   { return mp3Channels }

func (t *mp3Track) ReadFloat(buf []float32) (int, error) {
	need := len(buf) * 2
	if cap(t.buf) < need {
		t.buf = make([]byte, need)
	}
	raw := t.buf[:need]

	n, err := io.ReadFull(t.dec, raw)
	samples := n / 2
	for i := 0; i < samples; i++ {
		v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		buf[i] = float32(v) / 32768.0
	}

	switch err {
	case nil:
		return samples, nil
	case io.ErrUnexpectedEOF:
		return samples, io.EOF
	case io.EOF:
		return samples, io.EOF
	default:
		return samples, pkgerr.Wrap(pkgerr.KindDecode, err)
	}
}

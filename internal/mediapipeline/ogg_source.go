package mediapipeline

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/cpdt/mrvn-bot/internal/pkgerr"
	"github.com/jfreymuth/oggvorbis"
	"github.com/pion/opus/pkg/oggreader"
)

const oggSniffWindow = 256

// newOggSource dispatches an Ogg container to either the Opus passthrough
// path or the Vorbis decode path, based on which codec identification
// header appears in the stream's opening bytes.
func newOggSource(ctx context.Context, r *bufio.Reader) (Source, error) {
	peek, _ := r.Peek(oggSniffWindow)

	switch {
	case bytes.Contains(peek, []byte("OpusHead")):
		return newOggOpusSource(r)
	case bytes.Contains(peek, []byte("vorbis")):
		return newOggVorbisSource(r)
	default:
		return nil, pkgerr.New(pkgerr.KindNoTracks, "mediapipeline: ogg container has neither Opus nor Vorbis headers")
	}
}

// oggOpusSource passes Opus pages straight through as wire frames: already
// the right codec, and commonly already close to 48kHz, matching the
// passthrough branch of the pipeline's codec-selection step.
type oggOpusSource struct {
	pages *oggreader.OggReader
}

func newOggOpusSource(r io.Reader) (Source, error) {
	pages, _, err := oggreader.NewWith(r)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.KindDecode, err)
	}
	return &oggOpusSource{pages: pages}, nil
}

func (s *oggOpusSource) Framed() bool { return true }

func (s *oggOpusSource) Read(ctx context.Context) ([]byte, error) {
	for {
		payload, _, err := s.pages.ParseNextPage()
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, pkgerr.Wrap(pkgerr.KindDecode, err)
		}
		if len(payload) == 0 || bytes.HasPrefix(payload, []byte("OpusHead")) || bytes.HasPrefix(payload, []byte("OpusTags")) {
			// Header/comment pages carry no audio; skip them.
			continue
		}
		hdr := encodeFrameLength(len(payload))
		out := make([]byte, 2+len(payload))
		copy(out[:2], hdr[:])
		copy(out[2:], payload)
		return out, nil
	}
}

// oggVorbisTrack adapts jfreymuth/oggvorbis into decodedTrack.
type oggVorbisTrack struct {
	dec *oggvorbis.Reader
}

func newOggVorbisSource(r io.Reader) (Source, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.KindDecode, err)
	}
	return newDecodeSource(&oggVorbisTrack{dec: dec})
}

func (t *oggVorbisTrack) SampleRate() int { return t.dec.SampleRate() }
func (t *oggVorbisTrack) Channels() int   { return t.dec.Channels() }

func (t *oggVorbisTrack) ReadFloat(buf []float32) (int, error) {
	return t.dec.Read(buf)
}

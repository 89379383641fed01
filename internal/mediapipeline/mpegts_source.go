package mediapipeline

import (
	"context"
	"io"

	"github.com/cpdt/mrvn-bot/internal/mpegts"
	"github.com/cpdt/mrvn-bot/internal/pkgerr"
	m4a "github.com/llehouerou/go-m4a"
)

// newMPEGTSSource demultiplexes ADTS/AAC out of a transport stream and
// decodes the first discovered track. AAC never matches the Opus wire
// target, so this path always decodes rather than passing through.
func newMPEGTSSource(ctx context.Context, r io.Reader) (Source, error) {
	demux, err := mpegts.NewReader(ctx, r)
	if err != nil {
		return nil, err
	}

	tracks := demux.Tracks()
	if len(tracks) == 0 {
		return nil, pkgerr.New(pkgerr.KindNoTracks, "mediapipeline: transport stream announced no ADTS audio tracks")
	}
	track := &aacTrack{
		ctx:        ctx,
		demux:      demux,
		trackID:    tracks[0].TrackID,
		decoder:    m4a.NewDecoder(),
		sampleRate: tracks[0].SampleRate,
		channels:   tracks[0].Channels,
	}
	return newDecodeSource(track)
}

// aacTrack adapts the ADTS packet stream from internal/mpegts plus a
// per-frame AAC decoder into the decodedTrack interface: ReadFloat decodes
// one ADTS frame (1024 samples per channel, occasionally fewer for the last
// frame of a stream) only once the previous frame's samples are used up, and
// each call returns samples from at most one decoded frame.
type aacTrack struct {
	ctx     context.Context
	demux   *mpegts.Reader
	trackID uint32
	decoder *m4a.Decoder

	sampleRate int
	channels   int

	pending []float32
}

func (t *aacTrack) SampleRate() int { return t.sampleRate }
func (t *aacTrack) Channels() int   { return t.channels }

func (t *aacTrack) ReadFloat(buf []float32) (int, error) {
	for len(t.pending) == 0 {
		pkt, err := t.nextOwnPacket()
		if err != nil {
			return 0, err
		}

		samples, derr := t.decoder.DecodeFrame(pkt.Data)
		if derr != nil {
			// A malformed frame is logged by the demuxer layer already;
			// decode failures here just skip the frame and try the next.
			continue
		}
		t.refreshParams()
		t.pending = samples
	}

	n := copy(buf, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *aacTrack) nextOwnPacket() (mpegts.Packet, error) {
	for {
		pkt, err := t.demux.NextPacket(t.ctx)
		if err != nil {
			return mpegts.Packet{}, err
		}
		if pkt.TrackID == t.trackID {
			return pkt, nil
		}
	}
}

func (t *aacTrack) refreshParams() {
	for _, tr := range t.demux.Tracks() {
		if tr.TrackID == t.trackID {
			t.sampleRate = tr.SampleRate
			t.channels = tr.Channels
			return
		}
	}
}

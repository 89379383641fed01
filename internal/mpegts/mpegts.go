// Package mpegts implements a narrow MPEG transport-stream demultiplexer
// specialized for a single concern: pulling ADTS/AAC elementary streams out
// of a .ts container for playback. It delegates PAT/PMT/PES demultiplexing
// to github.com/asticode/go-astits and layers ADTS frame parsing and track
// readiness tracking on top, matching the narrow reader contract described
// by the custom format reader this package replaces: no seeking, no cues,
// no general-purpose container metadata.
package mpegts

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/asticode/go-astits"
	"github.com/cpdt/mrvn-bot/internal/pkgerr"
)

const (
	tsPacketSize          = 188
	readTracksTimeoutPkts = 4096
)

// CodecParameters describes one discovered ADTS audio track. SamplesPerBlock
// is always 1024 (AAC's fixed samples-per-frame count); Duration on packets
// from this track is in units of this many samples, so the track's time
// base is SamplesPerBlock/SampleRate seconds per tick.
type CodecParameters struct {
	TrackID         uint32
	SampleRate      int
	Channels        int
	SamplesPerBlock int
}

// Packet is one ADTS frame extracted from the stream, including its raw
// header and payload bytes exactly as they appeared on the wire.
type Packet struct {
	TrackID  uint32
	PTS      uint64
	Duration uint64
	Data     []byte
}

// Reader demultiplexes ADTS audio out of an MPEG transport stream.
//
// Track(s) are not known until enough of the stream has been observed:
// NewReader blocks (pulling from r) until either some elementary stream has
// emitted data and every audio stream announced in the PMT has produced at
// least one frame, or a fixed byte budget is exhausted, in which case it
// fails with an unexpected-EOF style error. This mirrors a "probe" phase a
// general container reader would run internally.
type Reader struct {
	demux *astits.Demuxer
	count *countingReader

	adtsPIDs map[uint16]bool
	tracks   map[uint16]*trackState
	order    []uint16

	startedAny bool
	pending    []Packet
}

type trackState struct {
	pid        uint16
	leftover   []byte
	sampleRate int
	channels   int
	ts         uint64
	haveParams bool
}

type countingReader struct {
	r     io.Reader
	total int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.total += n
	return n, err
}

// NewReader probes r until the transport stream's audio tracks are ready or
// the discovery budget is exhausted.
func NewReader(ctx context.Context, r io.Reader) (*Reader, error) {
	cr := &countingReader{r: r}
	reader := &Reader{
		demux:    astits.NewDemuxer(ctx, cr),
		count:    cr,
		adtsPIDs: make(map[uint16]bool),
		tracks:   make(map[uint16]*trackState),
	}

	for !reader.ready() {
		if cr.total >= readTracksTimeoutPkts*tsPacketSize {
			return nil, pkgerr.Wrapf(pkgerr.KindIO, io.ErrUnexpectedEOF, "mpegts: no audio track became ready before the scan budget was exhausted")
		}
		data, err := reader.demux.NextData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, pkgerr.Wrap(pkgerr.KindIO, io.ErrUnexpectedEOF)
			}
			return nil, pkgerr.Wrap(pkgerr.KindIO, err)
		}
		reader.handle(data)
	}
	return reader, nil
}

func (r *Reader) ready() bool {
	return r.startedAny && len(r.order) >= len(r.adtsPIDs)
}

func (r *Reader) handle(data *astits.DemuxerData) {
	if data.PMT != nil {
		for _, es := range data.PMT.ElementaryStreams {
			if es.StreamType == astits.StreamTypeAACAudio {
				r.adtsPIDs[es.ElementaryPID] = true
			}
		}
	}

	if data.PES == nil {
		return
	}
	r.startedAny = true

	pid := data.PID
	if !r.adtsPIDs[pid] {
		// Elementary stream observed but not an ADTS audio stream: counted
		// toward "some stream has started" but otherwise ignored.
		return
	}

	ts, ok := r.tracks[pid]
	if !ok {
		ts = &trackState{pid: pid}
		r.tracks[pid] = ts
	}

	buf := append(ts.leftover, data.PES.Data...)
	frames, tail := parseADTSFrames(buf, func(err error) {
		slog.Warn("mpegts: adts parse error, resynchronizing", "pid", pid, "err", err)
	})
	ts.leftover = append([]byte(nil), tail...)

	for _, f := range frames {
		changed := !ts.haveParams || ts.sampleRate != f.sampleRate
		if f.channels != 0 && ts.channels != f.channels {
			changed = true
			ts.channels = f.channels
		}
		ts.sampleRate = f.sampleRate
		if !ts.haveParams {
			r.order = append(r.order, pid)
		}
		ts.haveParams = true
		_ = changed // callers re-read track params through Tracks()

		dur := uint64(f.blockCount)
		r.pending = append(r.pending, Packet{
			TrackID:  uint32(pid),
			PTS:      ts.ts,
			Duration: dur,
			Data:     f.data,
		})
		ts.ts += dur
	}
}

// NextPacket returns the next ADTS packet, or io.EOF when the underlying
// reader is exhausted. Non-EOF errors are I/O failures from r; malformed
// ADTS frames are logged and skipped rather than returned as errors.
func (r *Reader) NextPacket(ctx context.Context) (Packet, error) {
	for {
		if len(r.pending) > 0 {
			p := r.pending[0]
			r.pending = r.pending[1:]
			return p, nil
		}
		data, err := r.demux.NextData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Packet{}, io.EOF
			}
			return Packet{}, pkgerr.Wrap(pkgerr.KindIO, err)
		}
		r.handle(data)
	}
}

// Tracks returns the codec parameters discovered for each known track, in
// discovery order.
func (r *Reader) Tracks() []CodecParameters {
	out := make([]CodecParameters, 0, len(r.order))
	for _, pid := range r.order {
		ts := r.tracks[pid]
		out = append(out, CodecParameters{
			TrackID:         uint32(pid),
			SampleRate:      ts.sampleRate,
			Channels:        ts.channels,
			SamplesPerBlock: 1024,
		})
	}
	return out
}

// Seekable reports whether this reader supports seeking. It never does.
func (r *Reader) Seekable() bool { return false }

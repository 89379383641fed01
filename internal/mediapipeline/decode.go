package mediapipeline

import (
	"context"
	"encoding/binary"
	"io"
	"math"

	"github.com/cpdt/mrvn-bot/internal/pkgerr"
	"github.com/cpdt/mrvn-bot/pkg/resample"
)

// decodeChunkFrames is the fixed input block size (per channel) fed to the
// resampler on every pump iteration.
const decodeChunkFrames = 1024

// decodedTrack is the narrow capability every concrete decoder adapter
// implements: pull interleaved float32 samples at its own native rate and
// channel count.
type decodedTrack interface {
	// ReadFloat fills buf (interleaved samples, len(buf) a multiple of
	// Channels()) and returns the number of samples written. io.EOF when
	// exhausted; a partial fill alongside io.EOF is valid.
	ReadFloat(buf []float32) (int, error)
	SampleRate() int
	Channels() int
}

// decodeSource pumps a decodedTrack through a fixed in/out resampler,
// downmixes/upmixes to the wire channel count, and emits little-endian
// float32 PCM.
type decodeSource struct {
	track     decodedTrack
	resampler *resample.Resampler

	inBuf []float32
	done  bool
}

func newDecodeSource(track decodedTrack) (*decodeSource, error) {
	channels := track.Channels()
	if channels <= 0 {
		return nil, pkgerr.New(pkgerr.KindDecode, "mediapipeline: decoded track reports zero channels")
	}

	r, err := resample.New(track.SampleRate(), WireSampleRate, channels, decodeChunkFrames)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.KindResamplerConstruction, err)
	}

	return &decodeSource{
		track:     track,
		resampler: r,
		inBuf:     make([]float32, decodeChunkFrames*channels),
	}, nil
}

func (d *decodeSource) Framed() bool { return false }

func (d *decodeSource) Read(ctx context.Context) ([]byte, error) {
	if d.done {
		return nil, io.EOF
	}

	n, err := readFull(d.track, d.inBuf)
	if n > 0 {
		// Pad a short final block with silence so the fixed-size resampler
		// still has a complete block to work with.
		for i := n; i < len(d.inBuf); i++ {
			d.inBuf[i] = 0
		}
	}
	if err != nil {
		d.done = true
		if n == 0 {
			return nil, io.EOF
		}
	}

	resampled, rerr := d.resampler.Process(d.inBuf)
	if rerr != nil {
		return nil, pkgerr.Wrap(pkgerr.KindResample, rerr)
	}

	stereo := toStereo(resampled, d.track.Channels())
	return encodeFloatLE(stereo), nil
}

// readFull reads until buf is full or the track returns an error (including
// io.EOF), returning the number of samples actually written.
func readFull(track decodedTrack, buf []float32) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := track.ReadFloat(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.EOF
		}
	}
	return total, nil
}

// toStereo downmixes (>2 channels, dropping extras) or upmixes (mono,
// duplicated to both channels) interleaved samples to stereo. Stereo input
// passes through unchanged.
func toStereo(in []float32, channels int) []float32 {
	if channels == WireChannels {
		return in
	}
	frames := len(in) / channels
	out := make([]float32, frames*WireChannels)
	for i := 0; i < frames; i++ {
		if channels == 1 {
			v := in[i]
			out[i*2] = v
			out[i*2+1] = v
			continue
		}
		out[i*2] = in[i*channels]
		out[i*2+1] = in[i*channels+1]
	}
	return out
}

func encodeFloatLE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

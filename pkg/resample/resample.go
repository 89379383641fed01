// Package resample implements a fixed-in/out FFT resampler: given a fixed
// number of input frames per call, it produces a fixed number of output
// frames, per channel, using frequency-domain (spectrum truncate/pad)
// interpolation rather than time-domain linear interpolation.
//
// Decoded float PCM destined for the 48kHz wire format goes through here,
// matching a fixed block-size pipeline stage rather than a one-shot
// whole-buffer conversion.
package resample

import (
	"fmt"

	"github.com/cpdt/mrvn-bot/internal/pkgerr"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Resampler converts fixed-size blocks of interleaved multi-channel float32
// PCM from one sample rate to another. A single instance is not safe for
// concurrent use.
type Resampler struct {
	inRate, outRate int
	channels        int
	chunkIn         int
	chunkOut        int

	fftIn  *fourier.FFT
	fftOut *fourier.FFT

	scratchIn  []float64
	scratchOut []float64
}

// New constructs a resampler for a fixed chunkIn input frames per channel,
// computing the corresponding fixed chunkOut. chunkIn, inRate, outRate and
// channels must all be positive.
func New(inRate, outRate, channels, chunkIn int) (*Resampler, error) {
	if inRate <= 0 || outRate <= 0 || channels <= 0 || chunkIn <= 0 {
		return nil, pkgerr.New(pkgerr.KindResamplerConstruction, "resample: rates, channels and chunk size must be positive")
	}

	chunkOut := (chunkIn*outRate + inRate/2) / inRate
	if chunkOut < 1 {
		chunkOut = 1
	}

	return &Resampler{
		inRate:     inRate,
		outRate:    outRate,
		channels:   channels,
		chunkIn:    chunkIn,
		chunkOut:   chunkOut,
		fftIn:      fourier.NewFFT(chunkIn),
		fftOut:     fourier.NewFFT(chunkOut),
		scratchIn:  make([]float64, chunkIn),
		scratchOut: make([]float64, chunkOut),
	}, nil
}

// ChunkIn returns the number of input frames (per channel) Process expects.
func (r *Resampler) ChunkIn() int { return r.chunkIn }

// ChunkOut returns the number of output frames (per channel) Process
// produces.
func (r *Resampler) ChunkOut() int { return r.chunkOut }

// Process resamples one fixed-size block. in must hold exactly
// ChunkIn()*channels interleaved float32 samples; the returned slice holds
// exactly ChunkOut()*channels interleaved float32 samples.
func (r *Resampler) Process(in []float32) ([]float32, error) {
	if len(in) != r.chunkIn*r.channels {
		return nil, pkgerr.New(pkgerr.KindResample, fmt.Sprintf("resample: expected %d input frames, got %d", r.chunkIn, len(in)/r.channels))
	}

	out := make([]float32, r.chunkOut*r.channels)

	// gonum's Coefficients/Sequence pair is unnormalized: Coefficients scales
	// amplitude by its size (chunkIn) and Sequence sums the coefficients
	// without dividing, so dividing by chunkIn restores the input amplitude at
	// the new block size (a constant 0.5 block stays 0.5), matching the
	// scipy.signal.resample spectral-interpolation convention.
	norm := 1 / float64(r.chunkIn)

	for ch := 0; ch < r.channels; ch++ {
		for i := 0; i < r.chunkIn; i++ {
			r.scratchIn[i] = float64(in[i*r.channels+ch])
		}

		coeffs := r.fftIn.Coefficients(nil, r.scratchIn)
		resized := resizeSpectrum(coeffs, r.chunkOut)
		timeDomain := r.fftOut.Sequence(r.scratchOut, resized)

		for i := 0; i < r.chunkOut; i++ {
			out[i*r.channels+ch] = float32(clampFloat(timeDomain[i] * norm))
		}
	}

	return out, nil
}

// resizeSpectrum truncates or zero-pads a real-FFT coefficient slice (length
// nIn/2+1) to the coefficient count implied by nOut, acting as an ideal
// low-pass filter on downsampling and leaving high frequencies silent on
// upsampling.
func resizeSpectrum(coeffs []complex128, nOut int) []complex128 {
	outLen := nOut/2 + 1
	out := make([]complex128, outLen)
	n := len(coeffs)
	if n > outLen {
		n = outLen
	}
	copy(out[:n], coeffs[:n])
	return out
}

func clampFloat(v float64) float64 {
	const lim = 1.0
	if v > lim {
		return lim
	}
	if v < -lim {
		return -lim
	}
	return v
}

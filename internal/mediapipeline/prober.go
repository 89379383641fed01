package mediapipeline

import (
	"bufio"
	"context"
	"strings"

	"github.com/cpdt/mrvn-bot/internal/pkgerr"
)

type containerKind int

const (
	containerUnknown containerKind = iota
	containerMPEGTS
	containerOgg
	containerMP3
)

// classify decides which prober to run. A playlist hint forces MPEG-TS
// unconditionally, matching "paths ending .m3u8/.m3u or the HLS MIME types
// force MPEG-TS probing" — the hint here describes the playlist the segment
// came from, and HLS segments are transport-stream files regardless of their
// own extension.
func classify(hint Hint, peek []byte) containerKind {
	ext := strings.ToLower(hint.Extension)
	mime := strings.ToLower(hint.MIME)
	if ext == ".m3u8" || ext == ".m3u" ||
		mime == "application/vnd.apple.mpegurl" || mime == "audio/mpegurl" {
		return containerMPEGTS
	}

	switch {
	case len(peek) >= 1 && peek[0] == 0x47:
		return containerMPEGTS
	case len(peek) >= 4 && string(peek[:4]) == "OggS":
		return containerOgg
	case len(peek) >= 3 && string(peek[:3]) == "ID3":
		return containerMP3
	case len(peek) >= 2 && peek[0] == 0xFF && peek[1]&0xE0 == 0xE0:
		return containerMP3
	default:
		return containerUnknown
	}
}

// probeAndBuild sniffs r's container (honoring hint's forced-MPEG-TS rule)
// and builds the matching Source. r must not be read from again afterward
// except through the returned Source.
func probeAndBuild(ctx context.Context, r *ringReader, hint Hint) (Source, error) {
	br := bufio.NewReaderSize(r, 8192)
	peek, _ := br.Peek(8)

	switch classify(hint, peek) {
	case containerMPEGTS:
		return newMPEGTSSource(ctx, br)
	case containerOgg:
		return newOggSource(ctx, br)
	case containerMP3:
		return newMP3Source(ctx, br)
	default:
		return nil, pkgerr.New(pkgerr.KindNoTracks, "mediapipeline: no decodable audio track found")
	}
}

package remotestream

import (
	"io"

	"github.com/cpdt/mrvn-bot/internal/pkgerr"
	"github.com/grafov/m3u8"
)

// parsePlaylist decodes an m3u8 media playlist body into the subset of
// fields this package needs. Master playlists are rejected: a queue entry's
// media URL is expected to resolve directly to a media playlist.
func parsePlaylist(r io.Reader) (playlist, error) {
	p, listType, err := m3u8.DecodeFrom(r, true)
	if err != nil {
		return playlist{}, pkgerr.Wrap(pkgerr.KindParse, err)
	}
	if listType != m3u8.MEDIA {
		return playlist{}, pkgerr.New(pkgerr.KindParse, "expected a media playlist, got a master playlist")
	}
	mp, ok := p.(*m3u8.MediaPlaylist)
	if !ok {
		return playlist{}, pkgerr.New(pkgerr.KindParse, "unexpected playlist type")
	}

	out := playlist{
		targetDuration: mp.TargetDuration,
		endList:        mp.Closed,
		mediaSequence:  mp.SeqNo,
	}

	for _, seg := range mp.Segments {
		if seg == nil {
			// grafov/m3u8 pads Segments to a fixed window size with nils
			// past the last real entry.
			continue
		}
		encrypted := seg.Key != nil && seg.Key.Method != "" && seg.Key.Method != "NONE"
		out.segments = append(out.segments, rawSegment{
			uri:       seg.URI,
			duration:  seg.Duration,
			encrypted: encrypted,
			discontig: seg.Discontinuity,
		})
	}

	return out, nil
}

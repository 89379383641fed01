package mpegts

import "github.com/cpdt/mrvn-bot/internal/pkgerr"

// adtsSampleRates is the MPEG-4 sampling-frequency-index table referenced by
// the ADTS fixed header.
var adtsSampleRates = [16]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350, 0, 0, 0,
}

const adtsHeaderLen = 7

// adtsFrame is one decoded ADTS header plus the raw frame bytes (header
// included, matching the wire representation passed on to the decoder).
type adtsFrame struct {
	sampleRate int
	channels   int
	blockCount int // number_of_raw_data_blocks_in_frame + 1
	data       []byte
}

// adtsChannels maps the 3-bit channel configuration field to a channel
// count. 0 ("object type specific config") has no fixed count; callers treat
// it as "unknown" and keep the previous value.
func adtsChannels(cfg byte) int {
	switch cfg {
	case 1:
		return 1
	case 2:
		return 2
	case 3:
		return 3
	case 4:
		return 4
	case 5:
		return 5
	case 6:
		return 6
	case 7:
		return 8
	default:
		return 0
	}
}

// parseADTSFrames walks buf extracting complete ADTS frames. It returns the
// frames found and the unconsumed tail (a partial frame straddling the next
// chunk, or the last bytes, too few for a header, left after scanning). A bad sync
// word or an implausible frame length is reported via onError and the
// scanner resynchronizes by advancing one byte; it does not abort the
// stream, matching the "parse errors are decode errors, not termination"
// policy.
func parseADTSFrames(buf []byte, onError func(error)) (frames []adtsFrame, tail []byte) {
	i := 0
	for {
		if len(buf)-i < adtsHeaderLen {
			break
		}
		if buf[i] != 0xFF || buf[i+1]&0xF0 != 0xF0 {
			onError(pkgerr.New(pkgerr.KindDecode, "adts: bad sync word"))
			i++
			continue
		}

		protectionAbsent := buf[i+1] & 0x01
		freqIdx := (buf[i+2] >> 2) & 0x0F
		channelCfg := ((buf[i+2] & 0x01) << 2) | ((buf[i+3] >> 6) & 0x03)
		frameLen := (uint32(buf[i+3]&0x03) << 11) | (uint32(buf[i+4]) << 3) | (uint32(buf[i+5]) >> 5)
		numBlocks := buf[i+6] & 0x03

		headerLen := adtsHeaderLen
		if protectionAbsent == 0 {
			// A CRC-protected header carries two extra bytes; frameLen
			// already includes them, only the consumer's offset needs it.
			headerLen = adtsHeaderLen + 2
		}

		if int(frameLen) < headerLen || int(frameLen) > len(buf)-i {
			if int(frameLen) > len(buf)-i {
				// Might just be a partial frame at the end of this chunk.
				break
			}
			onError(pkgerr.New(pkgerr.KindDecode, "adts: bad frame length"))
			i++
			continue
		}

		sampleRate := adtsSampleRates[freqIdx]
		frames = append(frames, adtsFrame{
			sampleRate: sampleRate,
			channels:   adtsChannels(channelCfg),
			blockCount: int(numBlocks) + 1,
			data:       buf[i : i+int(frameLen)],
		})
		i += int(frameLen)
	}
	return frames, buf[i:]
}

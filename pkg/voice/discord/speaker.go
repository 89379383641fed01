// Package discord adapts a discordgo voice connection into the coordinator's
// playback contract: joining/leaving a voice room, and streaming a
// [mediapipeline.Source] into it as Opus packets.
//
// Unlike the original voice-agent connection this package is grounded on,
// a music bot's speakers never need to receive or demux incoming audio —
// there's no participant-audio pipeline here, only outbound playback — so
// this adapter carries none of the inbound SSRC-demuxing machinery.
package discord

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cpdt/mrvn-bot/internal/mediapipeline"
	"github.com/cpdt/mrvn-bot/internal/pkgerr"
	"github.com/cpdt/mrvn-bot/internal/queuemodel"
)

// Speaker is one voice-bot's connection to a single guild, adapted to
// satisfy both speakerpool.VoiceClient and coordinator.VoicePlayer.
type Speaker struct {
	session *discordgo.Session
	guildID string

	mu sync.Mutex
	vc *discordgo.VoiceConnection

	playMu sync.Mutex
	cancel context.CancelFunc
	paused atomic.Bool
}

// NewSpeaker wraps session for guildID. session must already be open.
func NewSpeaker(session *discordgo.Session, guildID string) *Speaker {
	return &Speaker{session: session, guildID: guildID}
}

// Join connects to room, not muted and deafened, matching a bot that only
// transmits.
func (s *Speaker) Join(ctx context.Context, room queuemodel.RoomID) error {
	vc, err := s.session.ChannelVoiceJoin(s.guildID, room, false, true)
	if err != nil {
		return pkgerr.Wrap(pkgerr.KindVoiceJoin, err)
	}
	s.mu.Lock()
	s.vc = vc
	s.mu.Unlock()
	return nil
}

// Leave disconnects from the current voice room, if any.
func (s *Speaker) Leave(ctx context.Context) error {
	s.StopTrack(ctx)

	s.mu.Lock()
	vc := s.vc
	s.vc = nil
	s.mu.Unlock()

	if vc == nil {
		return nil
	}
	if err := vc.Disconnect(); err != nil {
		return pkgerr.Wrap(pkgerr.KindVoiceControl, err)
	}
	return nil
}

// Play starts streaming src into the voice room this Speaker is currently
// connected to, invoking onEnded exactly once when playback stops for any
// reason. Any track already playing through this Speaker is stopped first.
func (s *Speaker) Play(ctx context.Context, room queuemodel.RoomID, src mediapipeline.Source, onEnded func()) error {
	s.mu.Lock()
	vc := s.vc
	s.mu.Unlock()
	if vc == nil || vc.ChannelID != room {
		return pkgerr.New(pkgerr.KindVoiceControl, "discord: speaker is not connected to the target room")
	}

	s.playMu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	playCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.paused.Store(false)
	s.playMu.Unlock()

	go s.runPlayback(playCtx, vc, src, onEnded)
	return nil
}

// Pause suspends sending audio without tearing down the track; the
// underlying source keeps buffering.
func (s *Speaker) Pause(ctx context.Context) error {
	s.paused.Store(true)
	return nil
}

// Unpause resumes a paused track.
func (s *Speaker) Unpause(ctx context.Context) error {
	s.paused.Store(false)
	return nil
}

// StopTrack cancels the currently playing track, if any; its onEnded
// callback still fires, from runPlayback's own teardown.
func (s *Speaker) StopTrack(ctx context.Context) error {
	s.playMu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.playMu.Unlock()
	return nil
}

// runPlayback drains src into vc.OpusSend until it's exhausted or cancelled,
// then tears it down and reports completion.
func (s *Speaker) runPlayback(ctx context.Context, vc *discordgo.VoiceConnection, src mediapipeline.Source, onEnded func()) {
	defer onEnded()
	defer src.Close()

	if err := vc.Speaking(true); err != nil {
		slog.Warn("discord: speaking(true) failed", "guild_id", s.guildID, "err", err)
	}
	defer func() {
		if err := vc.Speaking(false); err != nil {
			slog.Warn("discord: speaking(false) failed", "guild_id", s.guildID, "err", err)
		}
	}()

	if src.Framed() {
		s.runFramed(ctx, vc, src)
		return
	}
	s.runDecoded(ctx, vc, src)
}

// runFramed forwards already-Opus-encoded wire frames straight to Discord,
// one length-prefixed envelope per Read.
func (s *Speaker) runFramed(ctx context.Context, vc *discordgo.VoiceConnection, src mediapipeline.Source) {
	for {
		if s.waitWhilePaused(ctx) {
			return
		}

		chunk, err := src.Read(ctx)
		if err != nil {
			if err != io.EOF {
				slog.Warn("discord: framed source read failed", "guild_id", s.guildID, "err", err)
			}
			return
		}
		if len(chunk) < 2 {
			continue
		}
		payload := chunk[2:]

		select {
		case vc.OpusSend <- payload:
		case <-ctx.Done():
			return
		}
	}
}

// runDecoded encodes the raw interleaved little-endian float32 PCM a decode
// source emits into fixed-size Opus frames.
func (s *Speaker) runDecoded(ctx context.Context, vc *discordgo.VoiceConnection, src mediapipeline.Source) {
	enc, err := newOpusEncoder()
	if err != nil {
		slog.Error("discord: failed to create opus encoder", "guild_id", s.guildID, "err", err)
		return
	}

	var pcmBuf []byte
	for {
		if s.waitWhilePaused(ctx) {
			return
		}

		chunk, err := src.Read(ctx)
		if len(chunk) > 0 {
			pcmBuf = append(pcmBuf, floatLEToPCM16(chunk)...)
		}

		for len(pcmBuf) >= pcmFrameBytes {
			opus, eErr := enc.encode(pcmBuf[:pcmFrameBytes])
			pcmBuf = pcmBuf[pcmFrameBytes:]
			if eErr != nil {
				slog.Warn("discord: opus encode error", "guild_id", s.guildID, "err", eErr)
				continue
			}
			select {
			case vc.OpusSend <- opus:
			case <-ctx.Done():
				return
			}
		}

		if err != nil {
			if err != io.EOF {
				slog.Warn("discord: decode source read failed", "guild_id", s.guildID, "err", err)
			}
			return
		}
	}
}

// waitWhilePaused blocks while s.paused is set, polling at a short interval
// so Unpause (or cancellation) is picked up promptly. Returns true if ctx
// was cancelled while waiting.
func (s *Speaker) waitWhilePaused(ctx context.Context) bool {
	for s.paused.Load() {
		select {
		case <-ctx.Done():
			return true
		case <-time.After(50 * time.Millisecond):
		}
	}
	return false
}

// floatLEToPCM16 converts interleaved little-endian float32 samples
// (clamped to [-1, 1]) into little-endian int16 PCM bytes.
func floatLEToPCM16(b []byte) []byte {
	n := len(b) / 4
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		f := math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
		out[i*2], out[i*2+1] = int16ToLE(clampToInt16(f))
	}
	return out
}

func clampToInt16(f float32) int16 {
	v := f * 32767
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return int16(v)
	}
}

func int16ToLE(v int16) (byte, byte) {
	return byte(v), byte(v >> 8)
}

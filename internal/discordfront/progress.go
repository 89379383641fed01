package discordfront

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/cpdt/mrvn-bot/internal/config"
	"github.com/cpdt/mrvn-bot/internal/queuemodel"
)

// maxColumns is the total width (in glyphs) of a rendered progress bar,
// matching the original's message/time_bar.rs MAX_COLUMNS.
const maxColumns = 32

const (
	beforeBar = " ["
	afterBar  = "]"
)

// formatTime renders elapsed/duration as "m:ss / m:ss", or "m:ss / ?:??"
// when duration is unknown (durationSeconds == 0, per extractor convention).
func formatTime(elapsed time.Duration, durationSeconds int, r *renderer) string {
	elapsedStr := formatMinSec(elapsed)
	var durationStr string
	if durationSeconds <= 0 {
		durationStr = r.template("duration.unknown")
	} else {
		durationStr = formatMinSec(time.Duration(durationSeconds) * time.Second)
	}
	return fmt.Sprintf(r.template("time_and_duration"), elapsedStr, durationStr)
}

func formatMinSec(d time.Duration) string {
	total := int(d.Seconds())
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// formatTimeBar renders the full "m:ss / m:ss [====------]" progress line.
// When the track's duration is unknown there's nothing to bar against, so
// only the time portion is rendered — matching time_bar.rs's behavior of
// emitting an empty progress_str for that case.
func formatTimeBar(elapsed time.Duration, durationSeconds int, r *renderer) string {
	timeStr := formatTime(elapsed, durationSeconds, r)
	if durationSeconds <= 0 {
		return timeStr
	}

	width := maxColumns - len(timeStr) - len(beforeBar) - len(afterBar)
	if width < 1 {
		width = 1
	}
	progress := elapsed.Seconds() / float64(durationSeconds)
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(float64(width) * progress)

	var b strings.Builder
	b.WriteString(timeStr)
	b.WriteString(beforeBar)
	b.WriteString(strings.Repeat("=", filled))
	b.WriteString(strings.Repeat("-", width-filled))
	b.WriteString(afterBar)
	return b.String()
}

// tickInterval picks how often the progress bar should be redrawn so it
// advances by roughly one glyph, clamped to the configured min/max window.
func tickInterval(durationSeconds int, cfg config.ProgressConfig) time.Duration {
	min := time.Duration(cfg.MinUpdateSecs) * time.Second
	max := time.Duration(cfg.MaxUpdateSecs) * time.Second
	if min <= 0 {
		min = 5 * time.Second
	}
	if max <= min {
		max = min
	}
	if durationSeconds <= 0 {
		return max
	}

	perGlyph := time.Duration(durationSeconds) * time.Second / time.Duration(maxColumns)
	if perGlyph < min {
		return min
	}
	if perGlyph > max {
		return max
	}
	return perGlyph
}

// PlayingMessage owns the dedicated timer task that keeps one "now playing"
// message's progress bar current. Stop stops the ticker; a PlayingMessage
// that is never started (a speaker that never attached, or a build that
// failed before a message was sent) does nothing.
type PlayingMessage struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartPlayingMessage sends the initial "now playing" message for song in
// channelID and starts its progress ticker. start is the wall-clock time
// playback began, used to compute elapsed each tick.
func StartPlayingMessage(session *discordgo.Session, channelID string, song queuemodel.SongRequest, start time.Time, cfg config.ProgressConfig, messages map[string]string) (*PlayingMessage, error) {
	r := newRenderer(messages)
	content := fmt.Sprintf("**%s**%s", song.Title, formatTimeBar(0, song.DurationSeconds, r))

	msg, err := session.ChannelMessageSend(channelID, content)
	if err != nil {
		return nil, fmt.Errorf("discordfront: send playing message: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	pm := &PlayingMessage{cancel: cancel, done: make(chan struct{})}
	go pm.run(ctx, session, channelID, msg.ID, song, start, cfg, r)
	return pm, nil
}

func (pm *PlayingMessage) run(ctx context.Context, session *discordgo.Session, channelID, messageID string, song queuemodel.SongRequest, start time.Time, cfg config.ProgressConfig, r *renderer) {
	defer close(pm.done)

	interval := tickInterval(song.DurationSeconds, cfg)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			elapsed := time.Since(start)
			content := fmt.Sprintf("**%s**%s", song.Title, formatTimeBar(elapsed, song.DurationSeconds, r))
			_, err := session.ChannelMessageEdit(channelID, messageID, content)
			if err != nil {
				slog.Warn("discordfront: failed to edit playing message", "channel_id", channelID, "err", err)
			}
			// A known-duration track that has finished elapsing stops
			// refreshing itself; the coordinator doesn't expose a
			// track-ended notification to the frontend, so this is how a
			// stale ticker for a naturally-finished track gets reclaimed
			// even if the caller never issues another command in the room.
			if song.DurationSeconds > 0 && elapsed >= time.Duration(song.DurationSeconds)*time.Second {
				return
			}
		}
	}
}

// Stop cancels the ticker and waits for its goroutine to exit. Safe to call
// more than once.
func (pm *PlayingMessage) Stop() {
	if pm == nil {
		return
	}
	pm.cancel()
	<-pm.done
}

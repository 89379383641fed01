package discordfront

import (
	"fmt"

	"github.com/cpdt/mrvn-bot/internal/coordinator"
)

// defaultMessages are used for any key missing from Config.Messages, so a
// bot operator only needs to override the templates they actually want to
// customize.
var defaultMessages = map[string]string{
	"playing":               "Now playing **%s**.",
	"queued":                "Queued **%s**.",
	"queued_no_speakers":    "Queued **%s** — no voice bot is free to join right now.",
	"unsupported_url":       "That URL isn't supported here.",
	"no_data_provided":      "Couldn't find anything for that.",
	"extractor_error":       "The media extractor couldn't fetch that.",
	"needs_more_skip_votes": "Skip vote recorded — %d more needed.",
	"needs_more_stop_votes": "Stop vote recorded — %d more needed.",
	"already_voted":         "You've already voted on this.",
	"skip_success":          "Skipped.",
	"stop_success":          "Stopped playback in this room.",
	"nothing_playing":       "Nothing is playing here.",
	"paused":                "Paused.",
	"resumed":               "Resumed.",
	"resumed_queued":        "Started **%s**.",
	"nothing_to_resume":     "There's nothing queued to resume.",
	"replaced_queued":       "Replaced your queued track with **%s**.",
	"replaced_current":      "Replaced the current track with **%s**.",
	"not_in_room":           "Join a voice channel first.",
	"generic_error":         "Something went wrong.",
	"time_and_duration":     "%s / %s",
	"duration.unknown":      "?:??",
}

// renderer looks up message templates from a Config.Messages override map,
// falling back to defaultMessages.
type renderer struct {
	overrides map[string]string
}

func newRenderer(overrides map[string]string) *renderer {
	return &renderer{overrides: overrides}
}

func (r *renderer) template(key string) string {
	if r.overrides != nil {
		if v, ok := r.overrides[key]; ok {
			return v
		}
	}
	return defaultMessages[key]
}

// render formats the message response as the user-facing text for resp.
func (r *renderer) render(resp coordinator.Response) string {
	title := func() string {
		if resp.Song != nil {
			return resp.Song.Title
		}
		return ""
	}

	switch resp.Kind {
	case coordinator.RespPlaying:
		return fmt.Sprintf(r.template("playing"), title())
	case coordinator.RespQueued:
		return fmt.Sprintf(r.template("queued"), title())
	case coordinator.RespQueuedNoSpeakers:
		return fmt.Sprintf(r.template("queued_no_speakers"), title())
	case coordinator.RespUnsupportedURL:
		return r.template("unsupported_url")
	case coordinator.RespNoDataProvided:
		return r.template("no_data_provided")
	case coordinator.RespExtractorError:
		return r.template("extractor_error")
	case coordinator.RespNeedsMoreSkipVotes:
		return fmt.Sprintf(r.template("needs_more_skip_votes"), resp.Needed)
	case coordinator.RespNeedsMoreStopVotes:
		return fmt.Sprintf(r.template("needs_more_stop_votes"), resp.Needed)
	case coordinator.RespAlreadyVoted:
		return r.template("already_voted")
	case coordinator.RespSkipSuccess:
		return r.template("skip_success")
	case coordinator.RespStopSuccess:
		return r.template("stop_success")
	case coordinator.RespNothingPlaying:
		return r.template("nothing_playing")
	case coordinator.RespPaused:
		return r.template("paused")
	case coordinator.RespResumed:
		return r.template("resumed")
	case coordinator.RespResumedQueued:
		return fmt.Sprintf(r.template("resumed_queued"), title())
	case coordinator.RespNothingToResume:
		return r.template("nothing_to_resume")
	case coordinator.RespReplacedQueued:
		return fmt.Sprintf(r.template("replaced_queued"), title())
	case coordinator.RespReplacedCurrent:
		return fmt.Sprintf(r.template("replaced_current"), title())
	case coordinator.RespNotInRoom:
		return r.template("not_in_room")
	case coordinator.RespNowPlaying:
		return "" // handleNowPlaying sends its own text for this kind
	default:
		return r.template("generic_error")
	}
}

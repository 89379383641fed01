// Package config provides the configuration schema and loader for the
// voice music bot.
package config

import "time"

// Config is the root configuration structure, loaded from a JSON file via
// [Load] or [LoadFromReader].
type Config struct {
	Votes      VotesConfig       `json:"votes"`
	Inactivity InactivityConfig  `json:"inactivity"`
	Progress   ProgressConfig    `json:"progress"`
	Pipeline   PipelineConfig    `json:"pipeline"`
	Media      MediaConfig       `json:"media"`
	CommandBot CommandBotConfig  `json:"command_bot"`
	VoiceBots  []VoiceBotConfig  `json:"voice_bots"`
	Messages   map[string]string `json:"messages"`
}

// VotesConfig holds the vote thresholds for skip/stop.
type VotesConfig struct {
	SkipVotesRequired int `json:"skip_votes_required"`
	StopVotesRequired int `json:"stop_votes_required"`
}

// InactivityConfig tunes the speaker-pool sweeper.
type InactivityConfig struct {
	DisconnectMinInactiveSecs   int  `json:"disconnect_min_inactive_secs"`
	DisconnectCheckIntervalSecs int  `json:"disconnect_check_interval_secs"`
	OnlyDisconnectWhenAlone     bool `json:"only_disconnect_when_alone"`
}

// MinInactive returns the configured inactivity threshold as a Duration.
func (c InactivityConfig) MinInactive() time.Duration {
	return time.Duration(c.DisconnectMinInactiveSecs) * time.Second
}

// CheckInterval returns the configured sweep interval as a Duration.
func (c InactivityConfig) CheckInterval() time.Duration {
	return time.Duration(c.DisconnectCheckIntervalSecs) * time.Second
}

// ProgressConfig tunes how often the now-playing progress message is
// re-rendered: at least MinUpdateSecs apart, and at most MaxUpdateSecs apart
// even when nothing else would trigger an edit.
type ProgressConfig struct {
	MinUpdateSecs int `json:"progress_min_update_secs"`
	MaxUpdateSecs int `json:"progress_max_update_secs"`
}

// PipelineConfig carries the media pipeline tunables.
type PipelineConfig struct {
	BufferCapacityKB int `json:"buffer_capacity_kb"`
	ScanTimeoutSecs  int `json:"scan_timeout_secs"`
}

// MediaConfig configures the external media extractor.
type MediaConfig struct {
	// SearchPrefix is prepended ("prefix:term") to a play term that isn't a
	// URL.
	SearchPrefix string `json:"search_prefix"`
	// HostBlocklist rejects a URL whose host contains any of these
	// substrings.
	HostBlocklist []string `json:"host_blocklist"`
	YtdlName      string   `json:"ytdl_name"`
	YtdlArgs      []string `json:"ytdl_args"`
}

// CommandBotConfig is the credentials for the bot that registers and
// handles slash commands.
type CommandBotConfig struct {
	Token    string `json:"token"`
	AppID    string `json:"app_id"`
	ServerID string `json:"server_id,omitempty"`
}

// VoiceBotConfig is one entry in the pool of bots that actually join voice
// rooms and stream audio; the command bot dispatches work to whichever one
// [speakerpool.Pool] allocates.
type VoiceBotConfig struct {
	Token string `json:"token"`
	AppID string `json:"app_id"`
}

package config_test

import (
	"strings"
	"testing"

	"github.com/cpdt/mrvn-bot/internal/config"
)

const sampleJSON = `{
	"votes": {"skip_votes_required": 3, "stop_votes_required": 4},
	"inactivity": {"disconnect_min_inactive_secs": 120, "disconnect_check_interval_secs": 15, "only_disconnect_when_alone": true},
	"progress": {"progress_min_update_secs": 5, "progress_max_update_secs": 20},
	"pipeline": {"buffer_capacity_kb": 512, "scan_timeout_secs": 8},
	"media": {
		"search_prefix": "ytsearch",
		"host_blocklist": ["bad.example"],
		"ytdl_name": "yt-dlp",
		"ytdl_args": ["--no-cache-dir"]
	},
	"command_bot": {"token": "cmd-token", "app_id": "cmd-app"},
	"voice_bots": [
		{"token": "voice-token-1", "app_id": "voice-app-1"},
		{"token": "voice-token-2", "app_id": "voice-app-2"}
	],
	"messages": {"playing": "Now playing {name}"}
}`

func TestLoadFromReaderValid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleJSON))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Votes.SkipVotesRequired != 3 {
		t.Errorf("votes.skip_votes_required = %d, want 3", cfg.Votes.SkipVotesRequired)
	}
	if !cfg.Inactivity.OnlyDisconnectWhenAlone {
		t.Error("inactivity.only_disconnect_when_alone = false, want true")
	}
	if len(cfg.VoiceBots) != 2 {
		t.Fatalf("len(voice_bots) = %d, want 2", len(cfg.VoiceBots))
	}
	if cfg.VoiceBots[1].AppID != "voice-app-2" {
		t.Errorf("voice_bots[1].app_id = %q, want %q", cfg.VoiceBots[1].AppID, "voice-app-2")
	}
	if got := cfg.Messages["playing"]; got != "Now playing {name}" {
		t.Errorf("messages[playing] = %q", got)
	}
}

func TestLoadFromReaderRejectsMissingCredentials(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("{}"))
	if err == nil {
		t.Fatal("expected error for a config missing all credentials")
	}
	if !strings.Contains(err.Error(), "command_bot.token") {
		t.Errorf("error should mention command_bot.token, got: %v", err)
	}
	if !strings.Contains(err.Error(), "voice_bots") {
		t.Errorf("error should mention voice_bots, got: %v", err)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader(`{"not_a_real_field": true}`))
	if err == nil {
		t.Fatal("expected an error for an unknown top-level field")
	}
}

func TestLoadFromReaderRejectsInvertedProgressWindow(t *testing.T) {
	bad := `{
		"progress": {"progress_min_update_secs": 20, "progress_max_update_secs": 5},
		"command_bot": {"token": "t", "app_id": "a"},
		"voice_bots": [{"token": "t", "app_id": "a"}]
	}`
	_, err := config.LoadFromReader(strings.NewReader(bad))
	if err == nil {
		t.Fatal("expected error for inverted progress update window")
	}
}

func TestLoadFromReaderAppliesDefaults(t *testing.T) {
	minimal := `{
		"command_bot": {"token": "t", "app_id": "a"},
		"voice_bots": [{"token": "t", "app_id": "a"}]
	}`
	cfg, err := config.LoadFromReader(strings.NewReader(minimal))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Votes.SkipVotesRequired != 1 {
		t.Errorf("default skip_votes_required = %d, want 1", cfg.Votes.SkipVotesRequired)
	}
	if cfg.Media.YtdlName != "yt-dlp" {
		t.Errorf("default ytdl_name = %q, want %q", cfg.Media.YtdlName, "yt-dlp")
	}
	if cfg.Inactivity.MinInactive().Seconds() != 300 {
		t.Errorf("default MinInactive() = %v, want 300s", cfg.Inactivity.MinInactive())
	}
}

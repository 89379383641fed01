package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Load reads the JSON configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a JSON config from r, applies defaults for unset
// tunables, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode json: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in zero-valued tunables with sane defaults, matching
// the original's config-driven (not hardcoded) tunables while still working
// out of the box for an otherwise-minimal config file.
func applyDefaults(cfg *Config) {
	if cfg.Votes.SkipVotesRequired <= 0 {
		cfg.Votes.SkipVotesRequired = 1
	}
	if cfg.Votes.StopVotesRequired <= 0 {
		cfg.Votes.StopVotesRequired = 1
	}
	if cfg.Inactivity.DisconnectMinInactiveSecs <= 0 {
		cfg.Inactivity.DisconnectMinInactiveSecs = 300
	}
	if cfg.Inactivity.DisconnectCheckIntervalSecs <= 0 {
		cfg.Inactivity.DisconnectCheckIntervalSecs = 30
	}
	if cfg.Progress.MinUpdateSecs <= 0 {
		cfg.Progress.MinUpdateSecs = 5
	}
	if cfg.Progress.MaxUpdateSecs <= 0 {
		cfg.Progress.MaxUpdateSecs = 15
	}
	if cfg.Pipeline.BufferCapacityKB <= 0 {
		cfg.Pipeline.BufferCapacityKB = 1024
	}
	if cfg.Pipeline.ScanTimeoutSecs <= 0 {
		cfg.Pipeline.ScanTimeoutSecs = 10
	}
	if cfg.Media.YtdlName == "" {
		cfg.Media.YtdlName = "yt-dlp"
	}
	if cfg.Media.SearchPrefix == "" {
		cfg.Media.SearchPrefix = "ytsearch"
	}
}

// Validate checks that cfg contains a coherent set of values, returning a
// joined error listing every validation failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.CommandBot.Token == "" {
		errs = append(errs, errors.New("command_bot.token is required"))
	}
	if cfg.CommandBot.AppID == "" {
		errs = append(errs, errors.New("command_bot.app_id is required"))
	}
	if len(cfg.VoiceBots) == 0 {
		errs = append(errs, errors.New("at least one entry in voice_bots is required"))
	}
	for i, vb := range cfg.VoiceBots {
		prefix := fmt.Sprintf("voice_bots[%d]", i)
		if vb.Token == "" {
			errs = append(errs, fmt.Errorf("%s.token is required", prefix))
		}
		if vb.AppID == "" {
			errs = append(errs, fmt.Errorf("%s.app_id is required", prefix))
		}
	}

	if cfg.Progress.MinUpdateSecs > cfg.Progress.MaxUpdateSecs {
		errs = append(errs, fmt.Errorf("progress.progress_min_update_secs (%d) must not exceed progress_max_update_secs (%d)",
			cfg.Progress.MinUpdateSecs, cfg.Progress.MaxUpdateSecs))
	}

	if cfg.Media.YtdlName == "" {
		errs = append(errs, errors.New("media.ytdl_name is required"))
	}

	if len(cfg.VoiceBots) > 0 {
		seen := make(map[string]int, len(cfg.VoiceBots))
		for i, vb := range cfg.VoiceBots {
			if vb.AppID == "" {
				continue
			}
			if prev, ok := seen[vb.AppID]; ok {
				slog.Warn("voice_bots entries share an app_id", "app_id", vb.AppID, "indices", []int{prev, i})
			}
			seen[vb.AppID] = i
		}
	}

	return errors.Join(errs...)
}

package discordfront

import (
	"testing"
	"time"

	"github.com/cpdt/mrvn-bot/internal/config"
)

func TestFormatTimeKnownDuration(t *testing.T) {
	r := newRenderer(nil)
	got := formatTime(90*time.Second, 200, r)
	if got != "1:30 / 3:20" {
		t.Errorf("got %q", got)
	}
}

func TestFormatTimeUnknownDuration(t *testing.T) {
	r := newRenderer(nil)
	got := formatTime(5*time.Second, 0, r)
	if got != "0:05 / "+defaultMessages["duration.unknown"] {
		t.Errorf("got %q", got)
	}
}

func TestFormatTimeBarOmitsBarWhenDurationUnknown(t *testing.T) {
	r := newRenderer(nil)
	got := formatTimeBar(5*time.Second, 0, r)
	if got != formatTime(5*time.Second, 0, r) {
		t.Errorf("expected bar-less output, got %q", got)
	}
}

func TestFormatTimeBarFullyFilledAtEnd(t *testing.T) {
	r := newRenderer(nil)
	got := formatTimeBar(100*time.Second, 100, r)
	if got[len(got)-2] != '=' {
		t.Errorf("expected bar to be fully filled near completion, got %q", got)
	}
}

func TestFormatTimeBarClampsOvershoot(t *testing.T) {
	r := newRenderer(nil)
	// Elapsed past duration (can happen on the final tick before the
	// ticker self-terminates) must not panic or produce negative widths.
	got := formatTimeBar(200*time.Second, 100, r)
	if got == "" {
		t.Error("expected non-empty output")
	}
}

func TestTickIntervalUnknownDurationUsesMax(t *testing.T) {
	cfg := config.ProgressConfig{MinUpdateSecs: 5, MaxUpdateSecs: 15}
	got := tickInterval(0, cfg)
	if got != 15*time.Second {
		t.Errorf("got %v, want 15s", got)
	}
}

func TestTickIntervalClampsToMin(t *testing.T) {
	cfg := config.ProgressConfig{MinUpdateSecs: 5, MaxUpdateSecs: 15}
	// A very short track would compute a sub-minimum per-glyph interval.
	got := tickInterval(10, cfg)
	if got != 5*time.Second {
		t.Errorf("got %v, want 5s", got)
	}
}

func TestTickIntervalClampsToMax(t *testing.T) {
	cfg := config.ProgressConfig{MinUpdateSecs: 5, MaxUpdateSecs: 15}
	got := tickInterval(100000, cfg)
	if got != 15*time.Second {
		t.Errorf("got %v, want 15s", got)
	}
}

package extractor

import (
	"testing"

	"github.com/cpdt/mrvn-bot/internal/pkgerr"
)

func TestResolveTargetRejectsBlocklistedHost(t *testing.T) {
	e := New(Config{HostBlocklist: []string{"blocked.example"}})
	_, err := e.resolveTarget("https://blocked.example/watch?v=1")
	if pkgerr.KindOf(err) != pkgerr.KindUnsupportedURL {
		t.Fatalf("KindOf(err) = %v, want KindUnsupportedURL", pkgerr.KindOf(err))
	}
}

func TestResolveTargetAllowsNonBlocklistedURL(t *testing.T) {
	e := New(Config{HostBlocklist: []string{"blocked.example"}})
	target, err := e.resolveTarget("https://allowed.example/watch?v=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target != "https://allowed.example/watch?v=1" {
		t.Errorf("target = %q, want the URL unchanged", target)
	}
}

func TestResolveTargetPrefixesBareSearchTerm(t *testing.T) {
	e := New(Config{SearchPrefix: "ytsearch"})
	target, err := e.resolveTarget("some song name")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target != "ytsearch:some song name" {
		t.Errorf("target = %q, want %q", target, "ytsearch:some song name")
	}
}

func TestParseLinePrefersFullTitleOverTitle(t *testing.T) {
	song, err := parseLine(`{"title":"short","fulltitle":"the full title","extractor":"youtube","webpage_url":"https://example.com","url":"https://cdn.example.com/a.mp4","duration":120}`, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if song.Title != "the full title" {
		t.Errorf("Title = %q, want %q", song.Title, "the full title")
	}
	if song.DurationSeconds != 120 {
		t.Errorf("DurationSeconds = %d, want 120", song.DurationSeconds)
	}
	if song.RequesterUserID != "user-1" {
		t.Errorf("RequesterUserID = %q, want %q", song.RequesterUserID, "user-1")
	}
}

func TestParseLineFallsBackToTitleWhenFullTitleEmpty(t *testing.T) {
	song, err := parseLine(`{"title":"only a title","extractor":"youtube","webpage_url":"https://example.com","url":"https://cdn.example.com/a.mp4"}`, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if song.Title != "only a title" {
		t.Errorf("Title = %q, want %q", song.Title, "only a title")
	}
}

func TestParseLineUsesDescriptionForTwitchStream(t *testing.T) {
	song, err := parseLine(`{"title":"some stream title","fulltitle":"some stream title","description":"now playing a great set","extractor":"twitch:stream","webpage_url":"https://twitch.tv/x","url":"https://cdn.example.com/live.m3u8"}`, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if song.Title != "now playing a great set" {
		t.Errorf("Title = %q, want the description", song.Title)
	}
}

func TestParseLineNormalizesZeroDurationToUnknown(t *testing.T) {
	song, err := parseLine(`{"title":"t","extractor":"youtube","webpage_url":"https://example.com","url":"https://cdn.example.com/a.mp4","duration":0}`, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if song.DurationSeconds != 0 {
		t.Errorf("DurationSeconds = %d, want 0 (unknown)", song.DurationSeconds)
	}
}

func TestParseLineRejectsMalformedJSON(t *testing.T) {
	_, err := parseLine(`not json`, "user-1")
	if pkgerr.KindOf(err) != pkgerr.KindParse {
		t.Fatalf("KindOf(err) = %v, want KindParse", pkgerr.KindOf(err))
	}
}

func TestParseLineCarriesSortedHeaders(t *testing.T) {
	song, err := parseLine(`{"title":"t","extractor":"youtube","webpage_url":"https://example.com","url":"https://cdn.example.com/a.mp4","http_headers":{"User-Agent":"ua","Cookie":"c"}}`, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(song.Headers) != 2 {
		t.Fatalf("len(Headers) = %d, want 2", len(song.Headers))
	}
	if song.Headers[0].Name != "Cookie" || song.Headers[1].Name != "User-Agent" {
		t.Errorf("Headers = %+v, want sorted by name", song.Headers)
	}
}

func TestHeaderSliceEmptyMapReturnsNil(t *testing.T) {
	if got := headerSlice(nil); got != nil {
		t.Errorf("headerSlice(nil) = %+v, want nil", got)
	}
	if got := headerSlice(map[string]string{}); got != nil {
		t.Errorf("headerSlice({}) = %+v, want nil", got)
	}
}

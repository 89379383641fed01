// Package extractor shells out to an external media-extraction tool
// (yt-dlp-compatible) and turns its JSON-per-line output into
// [queuemodel.SongRequest] values.
package extractor

import (
	"bufio"
	"context"
	"encoding/json"
	"net/url"
	"os/exec"
	"sort"
	"strings"

	"github.com/cpdt/mrvn-bot/internal/pkgerr"
	"github.com/cpdt/mrvn-bot/internal/queuemodel"
	"github.com/google/uuid"
)

// Config carries the Media configuration block (§6).
type Config struct {
	// SearchPrefix is prepended (as "prefix:term") when the play term isn't
	// itself a URL, so the extractor runs a search instead of a direct
	// fetch.
	SearchPrefix string
	// HostBlocklist rejects any URL whose host contains one of these
	// substrings.
	HostBlocklist []string
	YtdlName      string
	YtdlArgs      []string
}

// Extractor runs the configured tool and parses its output.
type Extractor struct {
	cfg Config
}

// New returns an Extractor for cfg.
func New(cfg Config) *Extractor {
	return &Extractor{cfg: cfg}
}

// line mirrors the extractor's documented JSON-per-line output (§6).
type line struct {
	Title       string            `json:"title"`
	FullTitle   string            `json:"fulltitle"`
	Description string            `json:"description"`
	Extractor   string            `json:"extractor"`
	WebpageURL  string            `json:"webpage_url"`
	URL         string            `json:"url"`
	Thumbnail   string            `json:"thumbnail"`
	HTTPHeaders map[string]string `json:"http_headers"`
	Duration    *float64          `json:"duration"`
}

// Resolve runs the extractor against term, returning every song it
// reports. term is a URL or a search phrase; a bare search phrase is
// prefixed with cfg.SearchPrefix before being handed to the tool, matching
// a "<prefix>:<term>" search-engine target.
func (e *Extractor) Resolve(ctx context.Context, user queuemodel.UserID, term string) ([]queuemodel.SongRequest, error) {
	target, err := e.resolveTarget(term)
	if err != nil {
		return nil, err
	}

	args := append(append([]string{}, e.cfg.YtdlArgs...),
		"--dump-json", "--ignore-config", "--no-warnings", target, "-o", "-")

	lines, err := e.run(ctx, args)
	if err != nil {
		return nil, err
	}

	songs := make([]queuemodel.SongRequest, 0, len(lines))
	for _, raw := range lines {
		song, err := parseLine(raw, user)
		if err != nil {
			return nil, err
		}
		songs = append(songs, song)
	}
	return songs, nil
}

// Refresh re-resolves song's page URL with playlist expansion disabled,
// returning a fresh SongRequest with an up-to-date download URL. Used when
// a cached download URL has expired.
func (e *Extractor) Refresh(ctx context.Context, song queuemodel.SongRequest) (queuemodel.SongRequest, error) {
	args := append(append([]string{}, e.cfg.YtdlArgs...),
		"--dump-json", "--ignore-config", "--no-warnings", "--no-playlist", song.PageURL, "-o", "-")

	lines, err := e.run(ctx, args)
	if err != nil {
		return queuemodel.SongRequest{}, err
	}
	if len(lines) == 0 {
		return queuemodel.SongRequest{}, pkgerr.New(pkgerr.KindUnsupportedURL, "extractor: refresh produced no output for "+song.PageURL)
	}

	refreshed, err := parseLine(lines[0], song.RequesterUserID)
	if err != nil {
		return queuemodel.SongRequest{}, err
	}
	refreshed.ID = song.ID
	return refreshed, nil
}

// resolveTarget parses term as a URL, rejecting blocklisted hosts; a
// non-URL term becomes a "<prefix>:<term>" search target.
func (e *Extractor) resolveTarget(term string) (string, error) {
	parsed, err := url.Parse(term)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return e.cfg.SearchPrefix + ":" + term, nil
	}

	host := parsed.Host
	for _, blocked := range e.cfg.HostBlocklist {
		if strings.Contains(host, blocked) {
			return "", pkgerr.New(pkgerr.KindUnsupportedURL, "extractor: host "+host+" is blocklisted")
		}
	}
	return term, nil
}

// run spawns the configured tool with stdin null and stdout discarded,
// reading JSON-per-line output from stderr, matching the original tool's
// output convention where "-o -" reserves stdout for media bytes it never
// actually produces in --dump-json mode.
func (e *Extractor) run(ctx context.Context, args []string) ([]string, error) {
	cmd := exec.CommandContext(ctx, e.cfg.YtdlName, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.KindIO, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, pkgerr.Wrap(pkgerr.KindIO, err)
	}

	var lines []string
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if errText, ok := strings.CutPrefix(text, "ERROR: "); ok {
			cmd.Wait()
			return nil, pkgerr.New(pkgerr.KindExtractor, errText)
		}
		lines = append(lines, text)
	}
	if serr := scanner.Err(); serr != nil {
		cmd.Wait()
		return nil, pkgerr.Wrap(pkgerr.KindIO, serr)
	}

	if err := cmd.Wait(); err != nil {
		return nil, pkgerr.Wrap(pkgerr.KindIO, err)
	}
	return lines, nil
}

// parseLine converts one JSON output line into a SongRequest, applying the
// extractor-specific title selection and duration normalization rules.
func parseLine(raw string, user queuemodel.UserID) (queuemodel.SongRequest, error) {
	var l line
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return queuemodel.SongRequest{}, pkgerr.Wrapf(pkgerr.KindParse, err, "extractor: malformed output line %q", raw)
	}

	title := l.FullTitle
	if l.Extractor == "twitch:stream" {
		title = l.Description
	}
	if title == "" {
		title = l.Title
	}

	var duration int
	if l.Duration != nil && *l.Duration != 0 {
		duration = int(*l.Duration)
	}

	return queuemodel.SongRequest{
		ID:              uuid.New(),
		Title:           title,
		PageURL:         l.WebpageURL,
		ThumbnailURL:    l.Thumbnail,
		DurationSeconds: duration,
		RequesterUserID: user,
		DownloadURL:     l.URL,
		Headers:         headerSlice(l.HTTPHeaders),
	}, nil
}

// headerSlice converts a header map into a deterministically-ordered slice.
func headerSlice(m map[string]string) []queuemodel.Header {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]queuemodel.Header, len(keys))
	for i, k := range keys {
		out[i] = queuemodel.Header{Name: k, Value: m[k]}
	}
	return out
}

// Package remotestream produces lazy sequences of byte chunks from HTTP
// media sources: either a single downloadable object (resumed via Range
// requests when the server drops the connection early) or a live segmented
// playlist.
//
// Both variants implement [ChunkStream]. Transient per-chunk HTTP errors are
// logged and end the current response but do not propagate — playback
// continues from a resumed request or the next segment, matching the "log &
// drop" propagation policy for per-chunk failures.
package remotestream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cpdt/mrvn-bot/internal/pkgerr"
)

// httpClient returns the lazily-initialized, process-wide HTTP client with
// connection reuse. Its lifecycle is the process's — matching the "global
// HTTP client" design note.
var httpClient = sync.OnceValue(func() *http.Client {
	return &http.Client{
		Timeout: 0, // streaming bodies: rely on context cancellation, not a blanket deadline
	}
})

// Header is a single request header name/value pair, matching the
// extractor's http_headers contract (§6).
type Header struct {
	Name  string
	Value string
}

// ChunkStream produces a lazy sequence of byte chunks terminating in io.EOF.
type ChunkStream interface {
	// Next returns the next chunk of bytes, or io.EOF when the stream is
	// exhausted. A non-EOF error is an unrecoverable failure.
	Next(ctx context.Context) ([]byte, error)
	// Close releases any underlying connection or goroutine. Safe to call
	// after Next has already returned io.EOF. Safe to call more than once.
	Close() error
}

func newRequest(ctx context.Context, url string, headers []Header, rangeHeader string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.KindHTTP, err)
	}
	for _, h := range headers {
		req.Header.Set(h.Name, h.Value)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	return req, nil
}

func doGet(ctx context.Context, url string, headers []Header, rangeHeader string) (*http.Response, error) {
	req, err := newRequest(ctx, url, headers, rangeHeader)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.KindHTTP, err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, pkgerr.New(pkgerr.KindHTTP, resp.Status)
	}
	return resp, nil
}

// FileStream downloads a single URL-addressed object. If the server
// advertises a Content-Length and the connection ends before that many
// bytes were delivered (and at least one byte was delivered this attempt),
// it reissues the request with a Range header and continues.
type FileStream struct {
	url     string
	headers []Header

	mu            sync.Mutex
	resp          *http.Response
	contentLength int64 // -1 if unknown
	received      int64
	attemptStart  int64 // value of received when the current response began
	done          bool
}

// NewFileStream performs the initial GET and returns a ready-to-read stream.
func NewFileStream(ctx context.Context, url string, headers []Header) (*FileStream, error) {
	resp, err := doGet(ctx, url, headers, "")
	if err != nil {
		return nil, err
	}
	return &FileStream{
		url:           url,
		headers:       headers,
		resp:          resp,
		contentLength: resp.ContentLength,
	}, nil
}

const readChunkSize = 32 * 1024

// Next implements [ChunkStream].
func (f *FileStream) Next(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if f.done {
			return nil, io.EOF
		}

		buf := make([]byte, readChunkSize)
		n, err := f.resp.Body.Read(buf)
		if n > 0 {
			f.received += int64(n)
			return buf[:n], nil
		}
		if err != nil && err != io.EOF {
			slog.Warn("remotestream: error receiving file chunk", "url", f.url, "err", err)
		}

		// This attempt's response body is exhausted (EOF or a transient
		// read error). Decide whether to resume.
		receivedThisAttempt := f.received - f.attemptStart
		f.resp.Body.Close()

		if f.contentLength < 0 {
			f.done = true
			return nil, io.EOF
		}
		if f.received >= f.contentLength || receivedThisAttempt == 0 {
			f.done = true
			return nil, io.EOF
		}

		rangeHeader := rangeBytes(f.received, f.contentLength)
		resp, rerr := doGet(ctx, f.url, f.headers, rangeHeader)
		if rerr != nil {
			f.done = true
			return nil, rerr
		}
		f.resp = resp
		// Only the per-attempt count restarts here; the total f.received is
		// cumulative and unaffected.
		f.attemptStart = f.received
	}
}

func rangeBytes(from, total int64) string {
	return "bytes=" + itoa(from) + "-" + itoa(total)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Close releases the underlying HTTP response body.
func (f *FileStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resp != nil {
		return f.resp.Body.Close()
	}
	return nil
}

// now is overridable in tests to control playlist timing deterministically.
var now = time.Now

// segment is a playlist entry selected for download.
type segment struct {
	seq      uint64
	uri      string
	duration float64
	expiry   time.Time
}

// playlist is the subset of a parsed media playlist this package needs.
type playlist struct {
	targetDuration float64
	endList        bool
	mediaSequence  uint64
	segments       []rawSegment
}

type rawSegment struct {
	uri       string
	duration  float64
	encrypted bool
	discontig bool
}

type chunkResult struct {
	data []byte
	err  error
}

// PlaylistStream follows a live or VOD HLS media playlist, downloading each
// selected segment's bytes in order. Segments are fetched one at a time: the
// next segment's request is issued only after the previous segment's body has
// been read to its end, and at most one chunk is buffered ahead of Next.
type PlaylistStream struct {
	url     string
	headers []Header

	ctx    context.Context
	cancel context.CancelFunc
	out    chan chunkResult

	closeOnce sync.Once
}

// NewPlaylistStream starts following the playlist at url in a background
// goroutine and returns a stream of the selected segments' bytes.
func NewPlaylistStream(parent context.Context, url string, headers []Header) *PlaylistStream {
	ctx, cancel := context.WithCancel(parent)
	p := &PlaylistStream{
		url:     url,
		headers: headers,
		ctx:     ctx,
		cancel:  cancel,
		out:     make(chan chunkResult, 1),
	}
	go p.run()
	return p
}

// Next implements [ChunkStream].
func (p *PlaylistStream) Next(ctx context.Context) ([]byte, error) {
	select {
	case r, ok := <-p.out:
		if !ok {
			return nil, io.EOF
		}
		if r.err != nil {
			return nil, r.err
		}
		return r.data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops following the playlist and releases background resources.
func (p *PlaylistStream) Close() error {
	p.closeOnce.Do(p.cancel)
	return nil
}

func (p *PlaylistStream) run() {
	defer close(p.out)

	var lastSeenSeq uint64
	haveSeenAny := false
	var lastFingerprint string
	firstRefresh := true

	for {
		requestInstant := now()
		pl, err := fetchPlaylist(p.ctx, p.url, p.headers)
		if err != nil {
			p.emitErr(pkgerr.Wrap(pkgerr.KindIO, err))
			return
		}

		total := 0.0
		for _, s := range pl.segments {
			total += s.duration
		}

		fingerprint := playlistFingerprint(pl)
		changed := fingerprint != lastFingerprint
		lastFingerprint = fingerprint

		offset := 0.0
		var selected []segment
		prevSeq := lastSeenSeq
		gapLogged := false
		for i, raw := range pl.segments {
			seq := pl.mediaSequence + uint64(i)
			segOffset := offset
			offset += raw.duration

			if raw.encrypted {
				slog.Warn("remotestream: dropping encrypted segment, unsupported", "uri", raw.uri, "seq", seq)
				continue
			}

			if firstRefresh && !pl.endList {
				end := segOffset + raw.duration
				if end <= total-3*pl.targetDuration {
					continue
				}
			} else if haveSeenAny {
				if seq <= prevSeq {
					continue
				}
				if seq > prevSeq+1 && !gapLogged {
					slog.Warn("remotestream: playlist discontinuity detected", "expected_after", prevSeq, "got", seq)
					gapLogged = true
				}
			}

			if raw.discontig && haveSeenAny {
				slog.Warn("remotestream: EXT-X-DISCONTINUITY in playlist", "seq", seq)
			}

			expiry := requestInstant.Add(time.Duration((segOffset + total) * float64(time.Second)))
			selected = append(selected, segment{seq: seq, uri: raw.uri, duration: raw.duration, expiry: expiry})
		}
		firstRefresh = false

		for _, s := range selected {
			if now().After(s.expiry) {
				slog.Warn("remotestream: dropping expired segment", "uri", s.uri, "seq", s.seq)
				lastSeenSeq = s.seq
				haveSeenAny = true
				continue
			}
			if !p.streamSegment(s.uri) {
				return
			}
			lastSeenSeq = s.seq
			haveSeenAny = true
		}

		if pl.endList {
			return
		}

		wait := pl.targetDuration
		if !changed {
			wait = pl.targetDuration / 2
		}
		deadline := requestInstant.Add(time.Duration(wait * float64(time.Second)))
		if d := time.Until(deadline); d > 0 {
			select {
			case <-time.After(d):
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// streamSegment downloads one segment and forwards its chunks. Returns false
// if the stream's context was cancelled and run should exit.
func (p *PlaylistStream) streamSegment(uri string) bool {
	resp, err := doGet(p.ctx, uri, p.headers, "")
	if err != nil {
		slog.Warn("remotestream: failed to fetch segment, dropping", "uri", uri, "err", err)
		return true
	}
	defer resp.Body.Close()

	for {
		buf := make([]byte, readChunkSize)
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			select {
			case p.out <- chunkResult{data: buf[:n]}:
			case <-p.ctx.Done():
				return false
			}
		}
		if rerr != nil {
			if rerr != io.EOF {
				slog.Warn("remotestream: error receiving segment chunk, dropping rest", "uri", uri, "err", rerr)
			}
			return true
		}
	}
}

func (p *PlaylistStream) emitErr(err error) {
	select {
	case p.out <- chunkResult{err: err}:
	case <-p.ctx.Done():
	}
}

// resolveSegmentURIs rewrites each segment's URI to an absolute URL relative
// to the playlist's own URL, in place. Already-absolute URIs are unchanged.
func resolveSegmentURIs(base *url.URL, segments []rawSegment) {
	if base == nil {
		return
	}
	for i, s := range segments {
		u, err := url.Parse(s.uri)
		if err != nil {
			continue
		}
		segments[i].uri = base.ResolveReference(u).String()
	}
}

func playlistFingerprint(pl playlist) string {
	s := itoa(int64(pl.mediaSequence)) + "/" + itoa(int64(len(pl.segments)))
	if n := len(pl.segments); n > 0 {
		s += "/" + pl.segments[n-1].uri
	}
	return s
}

func fetchPlaylist(ctx context.Context, url string, headers []Header) (playlist, error) {
	resp, err := doGet(ctx, url, headers, "")
	if err != nil {
		return playlist{}, err
	}
	defer resp.Body.Close()
	pl, err := parsePlaylist(resp.Body)
	if err != nil {
		return playlist{}, err
	}
	resolveSegmentURIs(resp.Request.URL, pl.segments)
	return pl, nil
}

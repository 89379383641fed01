// Package coordinator wires the queue model, speaker pool, and media
// pipeline together into the play/resume/replace/pause/skip/stop/nowplaying
// command surface.
//
// Lock ordering: every handler acquires the server's [queuemodel.Model]
// lock before ever touching a [speakerpool.Speaker]'s own lock, and never
// holds the model lock across a media-build call (extractor I/O, HTTP
// connect, container probing) — those happen either before the model lock
// is taken or after it's released, matching the "release → do I/O →
// reacquire" pattern the track-ended callback uses.
package coordinator

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/cpdt/mrvn-bot/internal/mediapipeline"
	"github.com/cpdt/mrvn-bot/internal/pkgerr"
	"github.com/cpdt/mrvn-bot/internal/queuemodel"
	"github.com/cpdt/mrvn-bot/internal/remotestream"
	"github.com/cpdt/mrvn-bot/internal/speakerpool"
)

// ServerID identifies the server (guild) a command was issued in.
type ServerID = string

// Extractor resolves a search term or URL into playable song requests, and
// re-resolves a previously-created one whose download URL may have expired.
type Extractor interface {
	Resolve(ctx context.Context, user queuemodel.UserID, term string) ([]queuemodel.SongRequest, error)
	Refresh(ctx context.Context, song queuemodel.SongRequest) (queuemodel.SongRequest, error)
}

// RoomResolver reports which room (if any) a user is currently connected to
// within a server, and how many participants a room currently has.
type RoomResolver interface {
	queuemodel.Delegate
	speakerpool.Delegate
	CurrentRoom(server ServerID, user queuemodel.UserID) queuemodel.RoomID
}

// VoicePlayer is the playback capability a speaker's underlying voice
// connection exposes, beyond the bare join/leave speakerpool.VoiceClient
// contract. Concrete speakers (pkg/voice/discord) implement both.
type VoicePlayer interface {
	speakerpool.VoiceClient
	// Play starts src playing in room, invoking onEnded exactly once when
	// the track finishes, is stopped, or fails outright.
	Play(ctx context.Context, room queuemodel.RoomID, src mediapipeline.Source, onEnded func()) error
	Pause(ctx context.Context) error
	Unpause(ctx context.Context) error
	StopTrack(ctx context.Context) error
}

// Config carries the tunables from the configuration file's relevant
// sections (§6): vote thresholds and pipeline tunables.
type Config struct {
	SkipVotesRequired int
	StopVotesRequired int
	Pipeline          mediapipeline.Config
}

// ResponseKind classifies what a handler wants the front end to say.
type ResponseKind int

const (
	RespPlaying ResponseKind = iota
	RespQueued
	RespQueuedNoSpeakers
	RespUnsupportedURL
	RespNoDataProvided
	RespExtractorError
	RespNeedsMoreSkipVotes
	RespNeedsMoreStopVotes
	RespAlreadyVoted
	RespSkipSuccess
	RespStopSuccess
	RespNothingPlaying
	RespPaused
	RespResumed
	RespResumedQueued
	RespNothingToResume
	RespReplacedQueued
	RespReplacedCurrent
	RespNowPlaying
	RespNotInRoom
	RespGenericError
)

// Response is the outcome of a coordinator handler call, carrying whatever
// the caller's message template needs.
type Response struct {
	Kind   ResponseKind
	Song   *queuemodel.SongRequest
	Needed int
	Err    error
}

// Coordinator owns one [queuemodel.Model] per server and dispatches the
// full command surface against it plus a shared [speakerpool.Pool].
type Coordinator struct {
	extractor Extractor
	rooms     RoomResolver
	speakers  *speakerpool.Pool
	cfg       Config

	// buildSource is a seam over the real remotestream/mediapipeline
	// construction, overridable in tests; New wires it to c.buildSourceRemote.
	buildSource func(ctx context.Context, song queuemodel.SongRequest) (mediapipeline.Source, error)

	mu      sync.Mutex
	servers map[ServerID]*queuemodel.Model
}

// New builds a Coordinator.
func New(extractor Extractor, rooms RoomResolver, speakers *speakerpool.Pool, cfg Config) *Coordinator {
	c := &Coordinator{
		extractor: extractor,
		rooms:     rooms,
		speakers:  speakers,
		cfg:       cfg,
		servers:   make(map[ServerID]*queuemodel.Model),
	}
	c.buildSource = c.buildSourceRemote
	return c
}

func (c *Coordinator) modelFor(server ServerID) *queuemodel.Model {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.servers[server]
	if !ok {
		m = queuemodel.New()
		c.servers[server] = m
	}
	return m
}

// HandlePlay resolves term into song requests, enqueues them for user, and
// starts playback immediately if nothing else is playing in the caller's
// room.
func (c *Coordinator) HandlePlay(ctx context.Context, server ServerID, user queuemodel.UserID, term string) Response {
	room := c.rooms.CurrentRoom(server, user)

	songs, err := c.extractor.Resolve(ctx, user, term)
	if err != nil {
		return classifyExtractorError(err)
	}
	if len(songs) == 0 {
		return Response{Kind: RespNoDataProvided}
	}

	model := c.modelFor(server)
	entries := make([]queuemodel.QueueEntry, len(songs))
	for i, s := range songs {
		entries[i] = queuemodel.QueueEntry{Song: s}
	}
	model.Push(user, entries)

	if room == "" {
		return Response{Kind: RespQueued, Song: &songs[0]}
	}

	speaker := c.speakers.Allocate(room)
	if speaker == nil {
		return Response{Kind: RespQueuedNoSpeakers, Song: &songs[0]}
	}

	result, entry := model.AdvanceRoom(c.rooms, room)
	switch result {
	case queuemodel.AlreadyPlaying, queuemodel.NoneAvailable:
		return Response{Kind: RespQueued, Song: &songs[0]}
	}

	if err := c.startPlayback(ctx, model, server, room, speaker, entry); err != nil {
		return Response{Kind: RespGenericError, Err: err}
	}
	return Response{Kind: RespPlaying, Song: &entry.Song}
}

// HandleResume unpauses an already-playing track, or — if nothing is
// playing — starts the caller's next queued entry the same way HandlePlay
// would once it has a room and a speaker.
func (c *Coordinator) HandleResume(ctx context.Context, server ServerID, user queuemodel.UserID) Response {
	room := c.rooms.CurrentRoom(server, user)
	if room == "" {
		return Response{Kind: RespNotInRoom}
	}

	model := c.modelFor(server)
	if _, playing := model.CurrentRequester(room); playing {
		speaker := c.speakers.Allocate(room)
		if speaker == nil || speaker.Room() != room {
			return Response{Kind: RespGenericError}
		}
		if err := speaker.Client().(VoicePlayer).Unpause(ctx); err != nil {
			return Response{Kind: RespGenericError, Err: err}
		}
		return Response{Kind: RespResumed}
	}

	speaker := c.speakers.Allocate(room)
	if speaker == nil {
		return Response{Kind: RespQueuedNoSpeakers}
	}

	result, entry := model.AdvanceRoom(c.rooms, room)
	switch result {
	case queuemodel.AlreadyPlaying:
		return Response{Kind: RespResumed}
	case queuemodel.NoneAvailable:
		return Response{Kind: RespNothingToResume}
	}

	if err := c.startPlayback(ctx, model, server, room, speaker, entry); err != nil {
		return Response{Kind: RespGenericError, Err: err}
	}
	return Response{Kind: RespResumedQueued, Song: &entry.Song}
}

// HandleReplace swaps the caller's most recently queued entry for a freshly
// resolved one, or — if their queue was empty and they're the current
// requester — swaps the currently playing track outright.
func (c *Coordinator) HandleReplace(ctx context.Context, server ServerID, user queuemodel.UserID, term string) Response {
	room := c.rooms.CurrentRoom(server, user)

	songs, err := c.extractor.Resolve(ctx, user, term)
	if err != nil {
		return classifyExtractorError(err)
	}
	if len(songs) == 0 {
		return Response{Kind: RespNoDataProvided}
	}

	model := c.modelFor(server)
	result, _ := model.ReplaceLatest(user, room, queuemodel.QueueEntry{Song: songs[0]})

	switch result {
	case queuemodel.ReplacedCurrent:
		speaker := c.speakers.Allocate(room)
		if speaker == nil || speaker.Room() != room {
			return Response{Kind: RespReplacedCurrent, Song: &songs[0]}
		}
		entry := queuemodel.QueueEntry{Song: songs[0]}
		if err := c.startPlayback(ctx, model, server, room, speaker, entry); err != nil {
			return Response{Kind: RespGenericError, Err: err}
		}
		return Response{Kind: RespReplacedCurrent, Song: &songs[0]}
	default:
		return Response{Kind: RespReplacedQueued, Song: &songs[0]}
	}
}

// HandlePause pauses the current track in the caller's room.
func (c *Coordinator) HandlePause(ctx context.Context, server ServerID, user queuemodel.UserID) Response {
	room := c.rooms.CurrentRoom(server, user)
	if room == "" {
		return Response{Kind: RespNotInRoom}
	}

	model := c.modelFor(server)
	if _, playing := model.CurrentRequester(room); !playing {
		return Response{Kind: RespNothingPlaying}
	}

	speaker := c.speakers.Allocate(room)
	if speaker == nil || speaker.Room() != room {
		return Response{Kind: RespGenericError}
	}
	if err := speaker.Client().(VoicePlayer).Pause(ctx); err != nil {
		return Response{Kind: RespGenericError, Err: err}
	}
	return Response{Kind: RespPaused}
}

// HandleSkip casts user's skip vote against the caller's room.
func (c *Coordinator) HandleSkip(ctx context.Context, server ServerID, user queuemodel.UserID) Response {
	room := c.rooms.CurrentRoom(server, user)
	if room == "" {
		return Response{Kind: RespNotInRoom}
	}

	model := c.modelFor(server)
	result, needed := model.Vote(c.rooms, queuemodel.VoteSkip, room, user, c.cfg.SkipVotesRequired)
	switch result {
	case queuemodel.VoteNothingPlaying:
		return Response{Kind: RespNothingPlaying}
	case queuemodel.VoteAlreadyVoted:
		return Response{Kind: RespAlreadyVoted}
	case queuemodel.VoteNeedsMore:
		return Response{Kind: RespNeedsMoreSkipVotes, Needed: needed}
	}

	speaker := c.speakers.Allocate(room)
	if speaker != nil && speaker.Room() == room {
		if err := speaker.Client().(VoicePlayer).StopTrack(ctx); err != nil {
			slog.Warn("coordinator: skip failed to stop track", "room", room, "err", err)
		}
	}
	return Response{Kind: RespSkipSuccess}
}

// HandleStop casts user's stop vote against the caller's room; success sets
// the room to Stopped, suppressing auto-advance until the next play.
func (c *Coordinator) HandleStop(ctx context.Context, server ServerID, user queuemodel.UserID) Response {
	room := c.rooms.CurrentRoom(server, user)
	if room == "" {
		return Response{Kind: RespNotInRoom}
	}

	model := c.modelFor(server)
	result, needed := model.Vote(c.rooms, queuemodel.VoteStop, room, user, c.cfg.StopVotesRequired)
	switch result {
	case queuemodel.VoteNothingPlaying:
		return Response{Kind: RespNothingPlaying}
	case queuemodel.VoteAlreadyVoted:
		return Response{Kind: RespAlreadyVoted}
	case queuemodel.VoteNeedsMore:
		return Response{Kind: RespNeedsMoreStopVotes, Needed: needed}
	}

	model.SetStopped(room, true)
	speaker := c.speakers.Allocate(room)
	if speaker != nil && speaker.Room() == room {
		if err := speaker.Client().(VoicePlayer).StopTrack(ctx); err != nil {
			slog.Warn("coordinator: stop failed to stop track", "room", room, "err", err)
		}
	}
	return Response{Kind: RespStopSuccess}
}

// HandleNowPlaying reports the caller's room's current track, if any.
func (c *Coordinator) HandleNowPlaying(ctx context.Context, server ServerID, user queuemodel.UserID) Response {
	room := c.rooms.CurrentRoom(server, user)
	if room == "" {
		return Response{Kind: RespNotInRoom}
	}

	model := c.modelFor(server)
	if _, playing := model.CurrentRequester(room); !playing {
		return Response{Kind: RespNothingPlaying}
	}
	return Response{Kind: RespNowPlaying}
}

// startPlayback builds a media source for entry and attaches speaker to
// room, wiring the track-ended callback. It never holds the model lock
// across the build call — queuemodel.Model's own methods already release
// their lock before returning, so by the time startPlayback runs there is
// nothing left to release here.
func (c *Coordinator) startPlayback(ctx context.Context, model *queuemodel.Model, server ServerID, room queuemodel.RoomID, speaker *speakerpool.Speaker, entry queuemodel.QueueEntry) error {
	player := speaker.Client().(VoicePlayer)
	if speaker.Room() != room {
		if err := player.Join(ctx, room); err != nil {
			model.SetStopped(room, true)
			return pkgerr.Wrap(pkgerr.KindVoiceJoin, err)
		}
	}

	src, err := c.buildSourceWithRetry(ctx, entry.Song)
	if err != nil {
		model.SetStopped(room, true)
		return err
	}

	onEnded := func() {
		c.onTrackEnded(context.Background(), model, server, room, speaker)
	}
	if err := player.Play(ctx, room, src, onEnded); err != nil {
		src.Close()
		model.SetStopped(room, true)
		return err
	}
	speaker.MarkPlaying(room)
	return nil
}

// buildSourceWithRetry opens song's download URL and builds a media
// source, retrying once (with a re-resolved download URL) on any failure,
// per the play-start retry policy. A scan timeout is never retried.
func (c *Coordinator) buildSourceWithRetry(ctx context.Context, song queuemodel.SongRequest) (mediapipeline.Source, error) {
	src, err := c.buildSource(ctx, song)
	if err == nil {
		return src, nil
	}
	if pkgerr.KindOf(err) == pkgerr.KindScanTimedOut {
		return nil, err
	}

	refreshed, rerr := c.extractor.Refresh(ctx, song)
	if rerr != nil {
		return nil, err
	}
	return c.buildSource(ctx, refreshed)
}

// buildSourceRemote is the real source-building path: open song's download
// URL over HTTP (or follow it as a live playlist) and probe/decode it into
// a playable Source.
func (c *Coordinator) buildSourceRemote(ctx context.Context, song queuemodel.SongRequest) (mediapipeline.Source, error) {
	headers := make([]remotestream.Header, len(song.Headers))
	for i, h := range song.Headers {
		headers[i] = remotestream.Header{Name: h.Name, Value: h.Value}
	}

	var chunks remotestream.ChunkStream
	if isPlaylistURL(song.DownloadURL) {
		chunks = remotestream.NewPlaylistStream(ctx, song.DownloadURL, headers)
	} else {
		fs, err := remotestream.NewFileStream(ctx, song.DownloadURL, headers)
		if err != nil {
			return nil, err
		}
		chunks = fs
	}

	return mediapipeline.New(ctx, chunks, hintForURL(song.DownloadURL), c.cfg.Pipeline)
}

func isPlaylistURL(rawURL string) bool {
	ext := strings.ToLower(path.Ext(strings.SplitN(rawURL, "?", 2)[0]))
	return ext == ".m3u8" || ext == ".m3u"
}

func hintForURL(rawURL string) mediapipeline.Hint {
	clean := strings.SplitN(rawURL, "?", 2)[0]
	return mediapipeline.Hint{Extension: path.Ext(clean)}
}

// onTrackEnded implements the track-ended callback: re-acquire the model,
// check for stop/move since the track started, and otherwise advance to
// the next entry, retrying build failures against successive entries until
// one plays or the queue is exhausted.
func (c *Coordinator) onTrackEnded(ctx context.Context, model *queuemodel.Model, server ServerID, room queuemodel.RoomID, speaker *speakerpool.Speaker) {
	speaker.MarkEnded()

	if model.IsStopped(room) {
		return
	}
	if speaker.Room() != room {
		// The speaker was reallocated to a different room while this track
		// was playing; treat the original room as abandoned.
		model.SetStopped(room, true)
		return
	}

	for {
		result, entry := model.AdvanceRoomAfterEnd(c.rooms, room)
		if result != queuemodel.Entry {
			return
		}

		if err := c.startPlayback(ctx, model, server, room, speaker, entry); err != nil {
			slog.Warn("coordinator: failed to start next queued entry", "room", room, "err", err)
			continue
		}
		return
	}
}

func classifyExtractorError(err error) Response {
	switch pkgerr.KindOf(err) {
	case pkgerr.KindUnsupportedURL:
		return Response{Kind: RespUnsupportedURL, Err: err}
	case pkgerr.KindExtractor:
		return Response{Kind: RespExtractorError, Err: err}
	default:
		return Response{Kind: RespGenericError, Err: err}
	}
}

// Package queuemodel implements the per-server fair queue: round-robin
// playback across requesting users, vote-gated skip/stop, and the
// per-room playing/stopped state machine.
//
// A [Model] holds exactly one server's state and serializes every operation
// behind a single mutex — callers that need atomicity across multiple calls
// (e.g. push then advance) must not rely on anything holding between two
// separate Model calls; every individual method is already atomic.
package queuemodel

import (
	"sync"

	"github.com/google/uuid"
)

// UserID and RoomID mirror discordgo's string snowflake IDs; the model
// itself is Discord-agnostic and never parses or formats them.
type UserID = string
type RoomID = string

// SongRequest is an immutable, playable unit created by the media loader.
// It is destroyed (dropped) once played or evicted from a queue.
type SongRequest struct {
	ID              uuid.UUID
	Title           string
	PageURL         string
	ThumbnailURL    string
	DurationSeconds int
	RequesterUserID UserID
	DownloadURL     string
	Headers         []Header
}

// Header is a single request header the media pipeline must send when
// fetching DownloadURL.
type Header struct {
	Name  string
	Value string
}

// MessageRef points at a previously-sent status message so the caller can
// later edit it (e.g. to mark a queued entry "now playing" or "skipped").
type MessageRef struct {
	ChannelID string
	MessageID string
}

// QueueEntry is a SongRequest plus an optional reference to its queued
// status message.
type QueueEntry struct {
	Song    SongRequest
	Message *MessageRef
}

// Delegate answers questions about live voice-channel membership that the
// model itself has no way to know. Implementations are expected to be
// cheap and side-effect free; the model may call them while holding its
// lock.
type Delegate interface {
	// IsUserInRoom reports whether user is currently present in room.
	IsUserInRoom(user UserID, room RoomID) bool
}

// VoteKind distinguishes the two vote sets a playing room tracks.
type VoteKind int

const (
	VoteSkip VoteKind = iota
	VoteStop
)

// userQueue is one requesting user's pending entries, kept in push order.
type userQueue struct {
	userID  UserID
	entries []QueueEntry
}

// playingState describes an actively-playing room.
type playingState struct {
	requester   UserID
	skipVoters  map[UserID]struct{}
	stopVoters  map[UserID]struct{}
}

// roomState is a room's full queue-model state: either not playing, sticky
// stopped, or playing with live vote sets.
type roomState struct {
	stopped           bool
	playing           *playingState
	lastActionMessage any
}

// Model is a single server's fair-queue state.
type Model struct {
	mu             sync.Mutex
	messageChannel string
	queues         []*userQueue
	rooms          map[RoomID]*roomState
}

// New returns an empty Model ready to use.
func New() *Model {
	return &Model{rooms: make(map[RoomID]*roomState)}
}

// MessageChannel returns the channel the server's status/action messages
// are sent to, or "" if unset.
func (m *Model) MessageChannel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messageChannel
}

// SetMessageChannel sets the status-message channel for this server.
func (m *Model) SetMessageChannel(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messageChannel = channelID
}

// Push appends entries to user's queue, creating that user's round-robin
// slot at the end of the order if it doesn't already exist.
func (m *Model) Push(user UserID, entries []QueueEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.getOrCreateQueue(user)
	q.entries = append(q.entries, entries...)
}

// ReplaceResult is the outcome of [Model.ReplaceLatest].
type ReplaceResult int

const (
	// Queued means the replacement entry was pushed with no prior tail to
	// displace.
	Queued ReplaceResult = iota
	// ReplacedInQueue means a previously-queued (not yet playing) entry was
	// popped and replaced.
	ReplacedInQueue
	// ReplacedCurrent means the user's queue was empty and they are the
	// current requester in the room passed to ReplaceLatest.
	ReplacedCurrent
)

// ReplaceLatest pops user's queue tail (if any) and pushes entry in its
// place. room is the caller's current voice room, or "" if they aren't in
// one; if the queue was already empty and user is that room's current
// playing requester, the result is ReplacedCurrent instead of Queued — the
// caller is expected to treat that as "swap the currently playing track".
func (m *Model) ReplaceLatest(user UserID, room RoomID, entry QueueEntry) (ReplaceResult, QueueEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.getOrCreateQueue(user)
	if len(q.entries) == 0 {
		q.entries = append(q.entries, entry)
		if room != "" {
			if rs := m.rooms[room]; rs != nil && rs.playing != nil && rs.playing.requester == user {
				return ReplacedCurrent, QueueEntry{}
			}
		}
		return Queued, QueueEntry{}
	}

	last := len(q.entries) - 1
	old := q.entries[last]
	q.entries[last] = entry
	return ReplacedInQueue, old
}

// AdvanceResult is the outcome of [Model.AdvanceRoom] and
// [Model.AdvanceRoomAfterEnd].
type AdvanceResult int

const (
	AlreadyPlaying AdvanceResult = iota
	Entry
	NoneAvailable
)

// AdvanceRoom starts the next eligible entry playing in room, unless room
// is already playing (AlreadyPlaying) or no queued user is present in room
// (NoneAvailable). Unless room is already playing, it clears room's sticky
// stop.
func (m *Model) AdvanceRoom(delegate Delegate, room RoomID) (AdvanceResult, QueueEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rs := m.rooms[room]; rs != nil {
		if rs.playing != nil {
			return AlreadyPlaying, QueueEntry{}
		}
		rs.stopped = false
	}
	return m.advanceLocked(delegate, room)
}

// AdvanceRoomAfterEnd is identical to AdvanceRoom but without the
// already-playing gate, for use when the previous track has just ended.
func (m *Model) AdvanceRoomAfterEnd(delegate Delegate, room RoomID) (AdvanceResult, QueueEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.advanceLocked(delegate, room)
}

func (m *Model) advanceLocked(delegate Delegate, room RoomID) (AdvanceResult, QueueEntry) {
	rs := m.getOrCreateRoom(room)
	lastRequester := ""
	if rs.playing != nil {
		lastRequester = rs.playing.requester
	}

	nextUser, queueIndex := m.nextEligibleUser(delegate, room, lastRequester)
	if queueIndex < 0 {
		rs.playing = nil
		m.pruneLocked(room)
		return NoneAvailable, QueueEntry{}
	}

	q := m.queues[queueIndex]
	entry := q.entries[0]
	q.entries = q.entries[1:]

	rs.playing = &playingState{
		requester:  nextUser,
		skipVoters: make(map[UserID]struct{}),
		stopVoters: make(map[UserID]struct{}),
	}

	m.pruneLocked(room)
	return Entry, entry
}

// nextEligibleUser scans queues in round-robin order starting just after
// lastRequester's slot (or from the front if lastRequester has no slot, or
// is empty), returning the first user with a pending entry who is present
// in room.
func (m *Model) nextEligibleUser(delegate Delegate, room RoomID, lastRequester UserID) (UserID, int) {
	n := len(m.queues)
	if n == 0 {
		return "", -1
	}

	start := 0
	if lastRequester != "" {
		for i, q := range m.queues {
			if q.userID == lastRequester {
				start = i + 1
				break
			}
		}
	}

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		q := m.queues[idx]
		if len(q.entries) == 0 {
			continue
		}
		if delegate.IsUserInRoom(q.userID, room) {
			return q.userID, idx
		}
	}
	return "", -1
}

// VoteResult is the outcome of [Model.Vote].
type VoteResult int

const (
	VoteSuccess VoteResult = iota
	VoteAlreadyVoted
	VoteNeedsMore
	VoteNothingPlaying
)

// Vote casts user's vote of the given kind against room's currently
// playing track. threshold is the number of distinct votes required for
// success. needed carries the remaining-votes count when the result is
// VoteNeedsMore.
func (m *Model) Vote(delegate Delegate, kind VoteKind, room RoomID, user UserID, threshold int) (result VoteResult, needed int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rs := m.rooms[room]
	if rs == nil || rs.playing == nil {
		return VoteNothingPlaying, 0
	}
	playing := rs.playing

	if user == playing.requester {
		return VoteSuccess, 0
	}
	if !delegate.IsUserInRoom(playing.requester, room) {
		return VoteSuccess, 0
	}

	voters := playing.skipVoters
	if kind == VoteStop {
		voters = playing.stopVoters
	}

	if _, already := voters[user]; already {
		return VoteAlreadyVoted, 0
	}
	voters[user] = struct{}{}

	if len(voters) >= threshold {
		return VoteSuccess, 0
	}
	return VoteNeedsMore, threshold - len(voters)
}

// SetStopped marks room sticky-stopped: auto-advance is suppressed until
// the next explicit play request clears it via AdvanceRoom.
func (m *Model) SetStopped(room RoomID, stopped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rs := m.getOrCreateRoom(room)
	rs.stopped = stopped
	if stopped {
		rs.playing = nil
	}
}

// IsStopped reports whether room is currently sticky-stopped.
func (m *Model) IsStopped(room RoomID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rs := m.rooms[room]
	return rs != nil && rs.stopped
}

// SetLastActionMessage replaces room's action-message slot and returns the
// prior slot (nil if none) so the caller can tear it down (e.g. stop a
// progress-bar ticker attached to the old message).
func (m *Model) SetLastActionMessage(room RoomID, slot any) any {
	m.mu.Lock()
	defer m.mu.Unlock()

	rs := m.getOrCreateRoom(room)
	old := rs.lastActionMessage
	rs.lastActionMessage = slot
	return old
}

// CurrentRequester returns the user currently playing in room, and whether
// room is playing at all.
func (m *Model) CurrentRequester(room RoomID) (UserID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rs := m.rooms[room]
	if rs == nil || rs.playing == nil {
		return "", false
	}
	return rs.playing.requester, true
}

func (m *Model) getOrCreateQueue(user UserID) *userQueue {
	for _, q := range m.queues {
		if q.userID == user {
			return q
		}
	}
	q := &userQueue{userID: user}
	m.queues = append(m.queues, q)
	return q
}

func (m *Model) getOrCreateRoom(room RoomID) *roomState {
	rs, ok := m.rooms[room]
	if !ok {
		rs = &roomState{}
		m.rooms[room] = rs
	}
	return rs
}

// pruneLocked removes empty user queues and rooms with no playback state,
// mirroring the atomic queue/room pruning that advanceLocked must perform.
func (m *Model) pruneLocked(room RoomID) {
	kept := m.queues[:0]
	for _, q := range m.queues {
		if len(q.entries) > 0 {
			kept = append(kept, q)
		}
	}
	m.queues = kept

	if rs, ok := m.rooms[room]; ok && rs.playing == nil && !rs.stopped && rs.lastActionMessage == nil {
		delete(m.rooms, room)
	}
}

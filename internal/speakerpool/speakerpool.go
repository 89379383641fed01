// Package speakerpool allocates voice connections ("speakers") to rooms
// under a strict preference order, and sweeps idle speakers out of rooms
// they're no longer needed in.
//
// A speaker is an entry in the pool's flat list. The queue model holds no
// reference to a speaker; the coordinator gets a *Speaker handle from
// [Pool.Allocate] per request, and a speaker records only the id of the room
// it's attached to, so there is no cyclic ownership between speakers and the
// rooms/servers that use them.
package speakerpool

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RoomID mirrors discordgo's string snowflake IDs.
type RoomID = string

// VoiceClient is the thin capability a speaker needs from its underlying
// voice connection: join a room, or leave whichever room it's currently in.
type VoiceClient interface {
	Join(ctx context.Context, room RoomID) error
	Leave(ctx context.Context) error
}

// Delegate answers questions the pool can't know on its own.
type Delegate interface {
	// RoomParticipantCount returns how many humans (and bot speakers) are
	// currently present in room, used by the sweeper's only_when_alone
	// policy.
	RoomParticipantCount(room RoomID) int
}

// Speaker is one registered voice connection and its current attachment
// state.
type Speaker struct {
	id     string
	client VoiceClient

	mu          sync.Mutex
	room        RoomID // "" when not attached to any room
	playing     bool
	lastEndedAt time.Time
}

// ID returns the speaker's stable identifier.
func (s *Speaker) ID() string { return s.id }

// Client returns the underlying voice client, for the coordinator to start
// actual playback once a speaker has been allocated.
func (s *Speaker) Client() VoiceClient { return s.client }

// Room returns the room this speaker is currently attached to, or "" if
// none.
func (s *Speaker) Room() RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// MarkPlaying records that room is playing through this speaker, attaching
// it to room if it wasn't already.
func (s *Speaker) MarkPlaying(room RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = room
	s.playing = true
}

// MarkEnded records that this speaker's current track finished or was
// stopped; it remains attached to its room but becomes eligible for tier-3
// allocation and, after min_inactive_secs, the inactivity sweeper.
func (s *Speaker) MarkEnded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	s.lastEndedAt = time.Now()
}

// Pool holds every registered speaker for one process.
type Pool struct {
	mu       sync.Mutex
	speakers []*Speaker
}

// New returns an empty Pool.
func New() *Pool {
	return &Pool{}
}

// Register adds client to the pool under the given id and returns its
// [Speaker] handle.
func (p *Pool) Register(id string, client VoiceClient) *Speaker {
	s := &Speaker{id: id, client: client}
	p.mu.Lock()
	p.speakers = append(p.speakers, s)
	p.mu.Unlock()
	return s
}

// Allocate picks a speaker for room under the strict preference order: a
// speaker already attached to room; else a speaker attached to no room;
// else a speaker attached elsewhere but not currently playing; else nil.
func (p *Pool) Allocate(room RoomID) *Speaker {
	p.mu.Lock()
	defer p.mu.Unlock()

	var unattached, idleElsewhere *Speaker
	for _, s := range p.speakers {
		s.mu.Lock()
		switch {
		case s.room == room:
			s.mu.Unlock()
			return s
		case s.room == "" && unattached == nil:
			unattached = s
		case s.room != "" && !s.playing && idleElsewhere == nil:
			idleElsewhere = s
		}
		s.mu.Unlock()
	}

	if unattached != nil {
		return unattached
	}
	return idleElsewhere
}

// SweeperConfig tunes the inactivity sweeper.
type SweeperConfig struct {
	Interval      time.Duration
	MinInactive   time.Duration
	OnlyWhenAlone bool
}

// Sweeper periodically detaches idle speakers from their rooms.
type Sweeper struct {
	pool     *Pool
	delegate Delegate
	cfg      SweeperConfig

	done     chan struct{}
	stopOnce sync.Once
}

// StartSweeper launches a background sweeper over pool. Call Stop to halt
// it; it also stops when ctx is cancelled.
func StartSweeper(ctx context.Context, pool *Pool, delegate Delegate, cfg SweeperConfig) *Sweeper {
	sw := &Sweeper{pool: pool, delegate: delegate, cfg: cfg, done: make(chan struct{})}
	go sw.loop(ctx)
	return sw
}

// Stop halts the sweeper. Safe to call more than once.
func (sw *Sweeper) Stop() {
	sw.stopOnce.Do(func() { close(sw.done) })
}

func (sw *Sweeper) loop(ctx context.Context) {
	ticker := time.NewTicker(sw.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sw.done:
			return
		case <-ticker.C:
			sw.sweepOnce(ctx)
		}
	}
}

func (sw *Sweeper) sweepOnce(ctx context.Context) {
	sw.pool.mu.Lock()
	candidates := make([]*Speaker, len(sw.pool.speakers))
	copy(candidates, sw.pool.speakers)
	sw.pool.mu.Unlock()

	now := time.Now()
	for _, s := range candidates {
		s.mu.Lock()
		room := s.room
		eligible := room != "" && !s.playing && !s.lastEndedAt.IsZero() && now.Sub(s.lastEndedAt) >= sw.cfg.MinInactive
		s.mu.Unlock()
		if !eligible {
			continue
		}

		if sw.cfg.OnlyWhenAlone && sw.delegate.RoomParticipantCount(room) > 1 {
			continue
		}

		if err := s.client.Leave(ctx); err != nil {
			slog.Warn("speakerpool: inactivity sweep leave failed", "speaker_id", s.id, "room", room, "err", err)
			continue
		}
		s.mu.Lock()
		s.room = ""
		s.mu.Unlock()
	}
}

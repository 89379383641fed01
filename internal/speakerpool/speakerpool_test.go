package speakerpool

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClient struct {
	mu       sync.Mutex
	joined   []RoomID
	left     int
	leaveErr error
}

func (c *fakeClient) Join(ctx context.Context, room RoomID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = append(c.joined, room)
	return nil
}

func (c *fakeClient) Leave(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.left++
	return c.leaveErr
}

type fakeDelegate struct{ counts map[RoomID]int }

func (d fakeDelegate) RoomParticipantCount(room RoomID) int { return d.counts[room] }

func TestAllocatePrefersSpeakerAlreadyInRoom(t *testing.T) {
	p := New()
	a := p.Register("a", &fakeClient{})
	b := p.Register("b", &fakeClient{})
	a.MarkPlaying("room1")
	b.MarkPlaying("room2")

	got := p.Allocate("room2")
	if got != b {
		t.Fatalf("Allocate(room2) = %v, want speaker b", got.ID())
	}
}

func TestAllocatePrefersUnattachedOverIdleElsewhere(t *testing.T) {
	p := New()
	busy := p.Register("busy", &fakeClient{})
	busy.MarkPlaying("roomX")
	busy.MarkEnded() // attached, idle

	free := p.Register("free", &fakeClient{})

	got := p.Allocate("roomY")
	if got != free {
		t.Fatalf("Allocate(roomY) = %v, want the unattached speaker", got.ID())
	}
}

func TestAllocateFallsBackToIdleElsewhereWhenNoneFree(t *testing.T) {
	p := New()
	busy := p.Register("busy", &fakeClient{})
	busy.MarkPlaying("roomX")
	busy.MarkEnded()

	got := p.Allocate("roomY")
	if got != busy {
		t.Fatalf("Allocate(roomY) = %v, want the idle-elsewhere speaker", got.ID())
	}
}

func TestAllocateReturnsNilWhenAllBusyElsewhere(t *testing.T) {
	p := New()
	busy := p.Register("busy", &fakeClient{})
	busy.MarkPlaying("roomX")

	if got := p.Allocate("roomY"); got != nil {
		t.Fatalf("Allocate(roomY) = %v, want nil", got.ID())
	}
}

func TestSweeperLeavesIdleSpeakerPastThreshold(t *testing.T) {
	p := New()
	client := &fakeClient{}
	s := p.Register("s", client)
	s.MarkPlaying("room1")
	s.MarkEnded()
	s.lastEndedAt = time.Now().Add(-time.Hour) // force well past any threshold

	delegate := fakeDelegate{counts: map[RoomID]int{"room1": 1}}
	sw := StartSweeper(context.Background(), p, delegate, SweeperConfig{
		Interval:    5 * time.Millisecond,
		MinInactive: 10 * time.Millisecond,
	})
	defer sw.Stop()

	waitFor(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.left > 0
	})

	if s.Room() != "" {
		t.Errorf("speaker still attached to %q after sweep", s.Room())
	}
}

func TestSweeperSkipsLeaveWhenOnlyWhenAloneAndRoomOccupied(t *testing.T) {
	p := New()
	client := &fakeClient{}
	s := p.Register("s", client)
	s.MarkPlaying("room1")
	s.MarkEnded()
	s.lastEndedAt = time.Now().Add(-time.Hour)

	delegate := fakeDelegate{counts: map[RoomID]int{"room1": 2}}
	sw := StartSweeper(context.Background(), p, delegate, SweeperConfig{
		Interval:      5 * time.Millisecond,
		MinInactive:   10 * time.Millisecond,
		OnlyWhenAlone: true,
	})
	defer sw.Stop()

	time.Sleep(40 * time.Millisecond)

	client.mu.Lock()
	left := client.left
	client.mu.Unlock()
	if left != 0 {
		t.Errorf("left = %d, want 0 (room is occupied by others)", left)
	}
	if s.Room() != "room1" {
		t.Errorf("speaker room = %q, want room1 (should not have been swept)", s.Room())
	}
}

func TestSweeperIgnoresPlayingSpeakers(t *testing.T) {
	p := New()
	client := &fakeClient{}
	s := p.Register("s", client)
	s.MarkPlaying("room1")

	delegate := fakeDelegate{counts: map[RoomID]int{"room1": 1}}
	sw := StartSweeper(context.Background(), p, delegate, SweeperConfig{
		Interval:    5 * time.Millisecond,
		MinInactive: 1 * time.Millisecond,
	})
	defer sw.Stop()

	time.Sleep(30 * time.Millisecond)

	client.mu.Lock()
	left := client.left
	client.mu.Unlock()
	if left != 0 {
		t.Errorf("left = %d, want 0 (speaker is still playing)", left)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

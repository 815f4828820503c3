package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/models"
)

var room1 = NewRoomID(KindRegular, "c1")
var room2 = NewRoomID(KindSuper, "c2")

func student(conn, user string) Participant {
	return Participant{ConnectionID: conn, UserID: user, DisplayName: user, Role: models.RoleStudent}
}

func TestJoinReturnsStateIncludingNewMember(t *testing.T) {
	r := NewRegistry(time.Minute)
	r.Join(room1, student("a", "u1"), nil)
	snap, _, _ := r.Join(room1, student("b", "u2"), nil)

	if len(snap.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(snap.Members))
	}
	if snap.Members[0].ConnectionID != "a" || snap.Members[1].ConnectionID != "b" {
		t.Fatalf("members not in join order: %+v", snap.Members)
	}
	if snap.Controls != DefaultControls() {
		t.Fatalf("controls = %+v", snap.Controls)
	}
}

func TestRejoinSameConnectionOverwrites(t *testing.T) {
	r := NewRegistry(time.Minute)
	if _, _, rejoined := r.Join(room1, student("a", "u1"), nil); rejoined {
		t.Fatal("first join reported as rejoin")
	}
	p := student("a", "u1")
	p.DisplayName = "renamed"
	snap, prev, rejoined := r.Join(room1, p, nil)
	if len(snap.Members) != 1 || snap.Members[0].DisplayName != "renamed" {
		t.Fatalf("got %+v", snap.Members)
	}
	if !rejoined || prev.DisplayName != "u1" {
		t.Fatalf("rejoined = %v, prev = %+v", rejoined, prev)
	}
	if _, _, rejoined := r.Join(room2, p, nil); rejoined {
		t.Fatal("join of another room reported as rejoin")
	}
}

func TestLeaveRemovesOnlyThatConnection(t *testing.T) {
	r := NewRegistry(time.Minute)
	r.Join(room1, student("a", "u1"), nil)
	r.Join(room1, student("b", "u1"), nil)

	var left Participant
	var after Snapshot
	p, ok := r.Leave("a", room1, func(p Participant, s Snapshot) { left, after = p, s })
	if !ok || p.UserID != "u1" || left.ConnectionID != "a" {
		t.Fatalf("leave = %+v %v", p, ok)
	}
	if got := after.UserConnections("u1"); len(got) != 1 || got[0] != "b" {
		t.Fatalf("remaining connections = %v", got)
	}

	if _, ok := r.Leave("a", room1, nil); ok {
		t.Fatal("second leave should be a no-op")
	}
	if _, ok := r.Leave("zzz", NewRoomID(KindSuper, "nope"), nil); ok {
		t.Fatal("leave of unknown room should be a no-op")
	}
}

func TestLeaveAllCoversEveryRoom(t *testing.T) {
	r := NewRegistry(time.Minute)
	r.Join(room1, student("a", "u1"), nil)
	r.Join(room2, student("a", "u1"), nil)
	r.Join(room2, student("b", "u2"), nil)

	deps := r.LeaveAll("a", nil)
	if len(deps) != 2 {
		t.Fatalf("departures = %+v", deps)
	}
	s, _ := r.Snapshot(room2)
	if len(s.Members) != 1 || s.Members[0].ConnectionID != "b" {
		t.Fatalf("room2 = %+v", s.Members)
	}
	if deps := r.LeaveAll("a", nil); len(deps) != 0 {
		t.Fatalf("repeat LeaveAll = %+v", deps)
	}
}

func TestSetControl(t *testing.T) {
	r := NewRegistry(time.Minute)
	var committed Snapshot
	if err := r.SetControl(room1, FieldChat, true, func(s Snapshot) { committed = s }); err != nil {
		t.Fatal(err)
	}
	if !committed.Controls.ChatLocked {
		t.Fatal("commit did not see the new value")
	}
	if err := r.SetControl(room1, FieldWhiteboardVisible, false, nil); err != nil {
		t.Fatal(err)
	}

	err := r.SetControl(room1, ControlField("lasers"), true, func(Snapshot) { t.Fatal("commit on invalid field") })
	if !errors.Is(err, ErrInvalidControlField) {
		t.Fatalf("err = %v", err)
	}

	snap, _, _ := r.Join(room1, student("a", "u1"), nil)
	want := Controls{ChatLocked: true, WhiteboardVisible: false}
	if snap.Controls != want {
		t.Fatalf("late joiner controls = %+v, want %+v", snap.Controls, want)
	}
}

func TestInvalidFieldDoesNotCreateRoom(t *testing.T) {
	r := NewRegistry(time.Minute)
	_ = r.SetControl(room1, ControlField("x"), true, nil)
	if r.Rooms() != 0 {
		t.Fatalf("rooms = %d", r.Rooms())
	}
}

func TestHands(t *testing.T) {
	r := NewRegistry(time.Minute)
	r.RaiseHand(room1, "u1", nil)
	r.RaiseHand(room1, "u2", nil)
	r.RaiseHand(room1, "u1", nil)

	s, _ := r.Snapshot(room1)
	if fmt.Sprint(s.RaisedHands) != "[u1 u2]" {
		t.Fatalf("hands = %v", s.RaisedHands)
	}
	r.LowerHand(room1, "u1", nil)
	s, _ = r.Snapshot(room1)
	if fmt.Sprint(s.RaisedHands) != "[u2]" {
		t.Fatalf("hands = %v", s.RaisedHands)
	}
	var cleared Snapshot
	r.LowerAllHands(room1, func(s Snapshot) { cleared = s })
	if len(cleared.RaisedHands) != 0 {
		t.Fatalf("hands = %v", cleared.RaisedHands)
	}
}

func TestFanoutUnknownRoom(t *testing.T) {
	r := NewRegistry(time.Minute)
	if r.Fanout(room1, func(Snapshot) { t.Fatal("called") }) {
		t.Fatal("fanout on missing room should report false")
	}
}

// Concurrent toggles must leave the late joiner with the value of the last
// applied toggle, which is also the last value every member saw committed.
func TestConcurrentTogglesLateJoinerMatchesLastCommit(t *testing.T) {
	r := NewRegistry(time.Minute)
	var (
		mu   sync.Mutex
		last Controls
		wg   sync.WaitGroup
	)
	fields := []ControlField{FieldChat, FieldAudio, FieldVideo, FieldScreen, FieldWhiteboardVisible, FieldRecordingProtection}
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f := fields[i%len(fields)]
			_ = r.SetControl(room1, f, i%3 == 0, func(s Snapshot) {
				mu.Lock()
				last = s.Controls
				mu.Unlock()
			})
		}(i)
	}
	wg.Wait()

	snap, _, _ := r.Join(room1, student("late", "u9"), nil)
	if snap.Controls != last {
		t.Fatalf("late joiner %+v != last commit %+v", snap.Controls, last)
	}
}

func TestSweepCollectsIdleEmptyRooms(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	r := NewRegistry(2*time.Minute, WithClock(clock))

	r.Join(room1, student("a", "u1"), nil)
	_ = r.SetControl(room1, FieldChat, true, nil)
	r.Leave("a", room1, nil)

	if n := r.Sweep(now.Add(time.Minute)); n != 0 {
		t.Fatalf("swept %d inside grace", n)
	}
	if n := r.Sweep(now.Add(2 * time.Minute)); n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	// a collected room starts over with default controls
	snap, _, _ := r.Join(room1, student("b", "u2"), nil)
	if snap.Controls != DefaultControls() {
		t.Fatalf("controls = %+v", snap.Controls)
	}
}

func TestSweepKeepsOccupiedRooms(t *testing.T) {
	now := time.Now()
	r := NewRegistry(0, WithClock(func() time.Time { return now }))
	r.Join(room1, student("a", "u1"), nil)
	if n := r.Sweep(now.Add(time.Hour)); n != 0 {
		t.Fatalf("swept occupied room")
	}
}

func TestParseRoomID(t *testing.T) {
	tests := []struct {
		in      string
		want    RoomID
		wantErr bool
	}{
		{"abc", "regular:abc", false},
		{"super:abc", "super:abc", false},
		{"REGULAR:abc", "regular:abc", false},
		{"weird:abc", "", true},
		{"super:", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRoomID(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseRoomID(%q) = %q, %v", tt.in, got, err)
		}
	}
	id := NewRoomID(KindSuper, "x1")
	if id.Kind() != KindSuper || id.EntityID() != "x1" {
		t.Fatalf("split %q", id)
	}
}

// Package session keeps the in-memory state of live rooms: who is
// connected, the room-wide control flags and the raised-hand queue.
//
// Every mutation takes a commit callback that runs while the room is still
// locked. Callers use it to enqueue broadcasts, so every member observes
// mutations in exactly the order they were applied. Commit callbacks must
// not block and must not call back into the Registry.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/logger"
)

type Commit func(Snapshot)

type member struct {
	Participant
	seq uint64
}

type room struct {
	mu       sync.Mutex
	id       RoomID
	members  map[string]member // connection id -> entry
	controls Controls
	hands    []string
	seq      uint64
	touched  time.Time
	dead     bool
}

func (r *room) snapshot() Snapshot {
	ms := make([]member, 0, len(r.members))
	for _, m := range r.members {
		ms = append(ms, m)
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].seq < ms[j].seq })
	out := Snapshot{
		Room:        r.id,
		Controls:    r.controls,
		Members:     make([]Participant, len(ms)),
		RaisedHands: append([]string(nil), r.hands...),
	}
	for i, m := range ms {
		out.Members[i] = m.Participant
	}
	return out
}

// Departure is one roster entry removed by LeaveAll.
type Departure struct {
	Room        RoomID
	Participant Participant
}

type Registry struct {
	mu    sync.Mutex
	rooms map[RoomID]*room
	conns map[string]map[RoomID]struct{}

	grace time.Duration
	now   func() time.Time
	log   logger.Logger
}

type Option func(*Registry)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithLogger(l logger.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// NewRegistry builds an empty registry. Rooms with no members are dropped
// by Sweep once they have been idle for grace.
func NewRegistry(grace time.Duration, opts ...Option) *Registry {
	r := &Registry{
		rooms: make(map[RoomID]*room),
		conns: make(map[string]map[RoomID]struct{}),
		grace: grace,
		now:   time.Now,
		log:   logger.Nop{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// lock returns the live room for id, locked. A room collected between the
// map lookup and the lock is replaced by a fresh one.
func (r *Registry) lock(id RoomID, create bool) *room {
	for {
		r.mu.Lock()
		rm, ok := r.rooms[id]
		if !ok {
			if !create {
				r.mu.Unlock()
				return nil
			}
			rm = &room{
				id:       id,
				members:  make(map[string]member),
				controls: DefaultControls(),
				touched:  r.now(),
			}
			r.rooms[id] = rm
		}
		r.mu.Unlock()

		rm.mu.Lock()
		if !rm.dead {
			return rm
		}
		rm.mu.Unlock()
	}
}

func (r *Registry) track(connID string, id RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[connID]
	if !ok {
		set = make(map[RoomID]struct{})
		r.conns[connID] = set
	}
	set[id] = struct{}{}
}

func (r *Registry) untrack(connID string, id RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.conns[connID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.conns, connID)
		}
	}
}

// Join adds p to the room, creating the room on first use. Re-joining from
// the same connection overwrites the previous entry; prev is that entry and
// rejoined is true. The returned snapshot includes p.
func (r *Registry) Join(id RoomID, p Participant, commit Commit) (snap Snapshot, prev Participant, rejoined bool) {
	rm := r.lock(id, true)
	if old, ok := rm.members[p.ConnectionID]; ok {
		prev, rejoined = old.Participant, true
	}
	rm.seq++
	rm.members[p.ConnectionID] = member{Participant: p, seq: rm.seq}
	rm.touched = r.now()
	snap = rm.snapshot()
	if commit != nil {
		commit(snap)
	}
	rm.mu.Unlock()

	r.track(p.ConnectionID, id)
	return snap, prev, rejoined
}

// Leave removes the entry of connID in one room. The commit receives the
// departed participant and the room as it is afterwards. ok is false when
// the connection was not in the room.
func (r *Registry) Leave(connID string, id RoomID, commit func(Participant, Snapshot)) (p Participant, ok bool) {
	rm := r.lock(id, false)
	if rm == nil {
		r.untrack(connID, id)
		return Participant{}, false
	}
	m, ok := rm.members[connID]
	if ok {
		delete(rm.members, connID)
		rm.touched = r.now()
		if commit != nil {
			commit(m.Participant, rm.snapshot())
		}
	}
	rm.mu.Unlock()

	r.untrack(connID, id)
	return m.Participant, ok
}

// LeaveAll removes connID from every room it joined.
func (r *Registry) LeaveAll(connID string, commit func(Participant, Snapshot)) []Departure {
	r.mu.Lock()
	ids := make([]RoomID, 0, len(r.conns[connID]))
	for id := range r.conns[connID] {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []Departure
	for _, id := range ids {
		if p, ok := r.Leave(connID, id, commit); ok {
			out = append(out, Departure{Room: id, Participant: p})
		}
	}
	return out
}

// SetControl sets one flag. Unknown fields are rejected before the room is
// touched.
func (r *Registry) SetControl(id RoomID, field ControlField, value bool, commit Commit) error {
	if _, err := ParseControlField(string(field)); err != nil {
		return err
	}
	rm := r.lock(id, true)
	defer rm.mu.Unlock()
	if err := rm.controls.Set(field, value); err != nil {
		return err
	}
	rm.touched = r.now()
	if commit != nil {
		commit(rm.snapshot())
	}
	return nil
}

// RaiseHand appends userID to the queue unless it is already there.
func (r *Registry) RaiseHand(id RoomID, userID string, commit Commit) {
	rm := r.lock(id, true)
	defer rm.mu.Unlock()
	raised := false
	for _, u := range rm.hands {
		if u == userID {
			raised = true
			break
		}
	}
	if !raised {
		rm.hands = append(rm.hands, userID)
	}
	rm.touched = r.now()
	if commit != nil {
		commit(rm.snapshot())
	}
}

// LowerHand removes userID from the queue. Lowering a hand that is not
// raised still commits so clients converge.
func (r *Registry) LowerHand(id RoomID, userID string, commit Commit) {
	rm := r.lock(id, true)
	defer rm.mu.Unlock()
	kept := rm.hands[:0]
	for _, u := range rm.hands {
		if u != userID {
			kept = append(kept, u)
		}
	}
	rm.hands = kept
	rm.touched = r.now()
	if commit != nil {
		commit(rm.snapshot())
	}
}

func (r *Registry) LowerAllHands(id RoomID, commit Commit) {
	rm := r.lock(id, true)
	defer rm.mu.Unlock()
	rm.hands = nil
	rm.touched = r.now()
	if commit != nil {
		commit(rm.snapshot())
	}
}

// Fanout runs fn under the room lock without changing state. Relay events
// go through here so they interleave correctly with toggles. It returns
// false when the room does not exist.
func (r *Registry) Fanout(id RoomID, fn Commit) bool {
	rm := r.lock(id, false)
	if rm == nil {
		return false
	}
	defer rm.mu.Unlock()
	fn(rm.snapshot())
	return true
}

// Snapshot returns the current state of a room without creating it.
func (r *Registry) Snapshot(id RoomID) (Snapshot, bool) {
	rm := r.lock(id, false)
	if rm == nil {
		return Snapshot{}, false
	}
	defer rm.mu.Unlock()
	return rm.snapshot(), true
}

// Rooms returns the number of rooms currently held.
func (r *Registry) Rooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Sweep drops empty rooms idle for at least the grace period and returns
// how many were removed.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, rm := range r.rooms {
		rm.mu.Lock()
		if len(rm.members) == 0 && now.Sub(rm.touched) >= r.grace {
			rm.dead = true
			delete(r.rooms, id)
			removed++
		}
		rm.mu.Unlock()
	}
	return removed
}

// Run sweeps on every tick until ctx is done.
func (r *Registry) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Sweep(r.now()); n > 0 {
				r.log.Debug("[GATEWAY] collected idle rooms", n)
			}
		}
	}
}

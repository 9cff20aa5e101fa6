// Package rooms keeps the set of connection handles joined to each room.
package rooms

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Info is a read-only view of one room.
type Info struct {
	ID      string   `json:"id"`
	Members []string `json:"members"`
}

// room maps member handles to their join sequence so Members can return
// them in join order.
type room map[string]uint64

// Set owns room membership. Rooms are created on first join and dropped when
// their last member leaves.
type Set struct {
	mu    sync.RWMutex
	rooms map[string]room
	seq   uint64
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{rooms: make(map[string]room)}
}

// Join adds handle to roomID. Joining a room twice keeps the original position.
func (s *Set) Join(roomID, handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		r = make(room)
		s.rooms[roomID] = r
	}
	if _, in := r[handle]; in {
		return
	}
	s.seq++
	r[handle] = s.seq
}

// Leave removes handle from roomID and reports whether it was a member.
func (s *Set) Leave(roomID, handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaveLocked(roomID, handle)
}

// LeaveAll removes handle from every room it joined and returns those room ids.
func (s *Set) LeaveAll(handle string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var left []string
	for id, r := range s.rooms {
		if _, in := r[handle]; in {
			left = append(left, id)
		}
	}
	for _, id := range left {
		s.leaveLocked(id, handle)
	}
	sort.Strings(left)
	return left
}

func (s *Set) leaveLocked(roomID, handle string) bool {
	r, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	if _, in := r[handle]; !in {
		return false
	}
	delete(r, handle)
	if len(r) == 0 {
		delete(s.rooms, roomID)
	}
	return true
}

// Members returns the handles in roomID in join order. An unknown room has no
// members.
func (s *Set) Members(roomID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ordered(s.rooms[roomID])
}

// Len returns the number of non-empty rooms.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Snapshot returns every room sorted by id.
func (s *Set) Snapshot() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := lo.Keys(s.rooms)
	sort.Strings(ids)
	return lo.Map(ids, func(id string, _ int) Info {
		return Info{ID: id, Members: ordered(s.rooms[id])}
	})
}

func ordered(r room) []string {
	handles := lo.Keys(r)
	sort.Slice(handles, func(i, j int) bool { return r[handles[i]] < r[handles[j]] })
	return handles
}

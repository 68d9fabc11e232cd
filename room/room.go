package room

import (
	"sync"
	"time"

	"github.com/judgegodwins/chess-relay/rules"
)

const (
	ByPlayer = "player"
	ByEngine = "engine"
)

// Snapshot is the state sent to room members after every change.
type Snapshot struct {
	RoomID   string `json:"room_id"`
	Position string `json:"position"`
	Turn     string `json:"turn"`
	Status   string `json:"status"`
	LastMove string `json:"last_move,omitempty"`
	By       string `json:"by,omitempty"`
	Sessions int    `json:"sessions,omitempty"`
}

// Session is one connected member of a room.
type Session interface {
	ID() string
	// Send must not block. An error removes the session from the room.
	Send(snap Snapshot) error
}

// Room holds the in-memory game of one room id.
//
// guard serializes loading, moves, persistence and broadcasts.
// membersMu only protects members and emptySince so that Leave never waits
// on a move or an engine call.
type Room struct {
	id string

	guard    sync.Mutex
	loaded   bool
	evicted  bool
	position string
	turn     rules.Side
	status   rules.Status
	lastMove string
	by       string

	playerWhite string
	playerBlack string

	membersMu  sync.Mutex
	members    map[string]Session
	emptySince time.Time
}

func newRoom(id string, now time.Time) *Room {
	return &Room{
		id:         id,
		members:    make(map[string]Session),
		emptySince: now,
	}
}

// snapshot must be called with guard held.
func (rm *Room) snapshot() Snapshot {
	return Snapshot{
		RoomID:   rm.id,
		Position: rm.position,
		Turn:     string(rm.turn),
		Status:   string(rm.status),
		LastMove: rm.lastMove,
		By:       rm.by,
	}
}

func (rm *Room) attach(s Session) {
	rm.membersMu.Lock()
	defer rm.membersMu.Unlock()

	rm.members[s.ID()] = s
}

// detach reports whether the session was a member.
func (rm *Room) detach(sessionID string, now time.Time) bool {
	rm.membersMu.Lock()
	defer rm.membersMu.Unlock()

	if _, ok := rm.members[sessionID]; !ok {
		return false
	}

	delete(rm.members, sessionID)
	if len(rm.members) == 0 {
		rm.emptySince = now
	}

	return true
}

func (rm *Room) sessions() []Session {
	rm.membersMu.Lock()
	defer rm.membersMu.Unlock()

	list := make([]Session, 0, len(rm.members))
	for _, s := range rm.members {
		list = append(list, s)
	}

	return list
}

// idleSince reports when the room became empty, or false if it has members.
func (rm *Room) idleSince() (time.Time, bool) {
	rm.membersMu.Lock()
	defer rm.membersMu.Unlock()

	if len(rm.members) > 0 {
		return time.Time{}, false
	}

	return rm.emptySince, true
}

func (rm *Room) memberCount() int {
	rm.membersMu.Lock()
	defer rm.membersMu.Unlock()

	return len(rm.members)
}

// rooms.go defines the central datastructure that groups relay connections by session id.
package relay

import (
	"errors"
	"sync"

	"github.com/SpatiumPortae/lanbeam/protocol/signal"
	"golang.org/x/exp/slices"
)

const (
	// roomCapacity is the number of peers that can share a session.
	roomCapacity = 2
	// maxPendingCandidates bounds the candidates buffered for a late joiner.
	maxPendingCandidates = 64
	// memberQueueSize is the number of messages queued for a member before relayed messages are dropped.
	memberQueueSize = 128
)

var (
	ErrSessionFull   = errors.New("session full")
	ErrAlreadyJoined = errors.New("connection already joined another session")
)

// Member is a single relay connection.
type Member struct {
	ID  string
	out chan signal.Msg
}

// NewMember returns a member with an allocated outbound queue.
func NewMember(id string) *Member {
	return &Member{ID: id, out: make(chan signal.Msg, memberQueueSize)}
}

// Out returns the messages queued for the member.
func (m *Member) Out() <-chan signal.Msg {
	return m.out
}

// deliver queues the message without blocking, reporting whether it was queued.
func (m *Member) deliver(msg signal.Msg) bool {
	select {
	case m.out <- msg:
		return true
	default:
		return false
	}
}

// room links together the members of one session. While a member is alone, the latest
// offer it relayed and the candidates that followed it are kept for the next joiner.
type room struct {
	members []*Member

	pendingFrom       *Member
	pendingOffer      *signal.Msg
	pendingCandidates []signal.Msg
}

func (r *room) clearPending() {
	r.pendingFrom = nil
	r.pendingOffer = nil
	r.pendingCandidates = nil
}

// Rooms is safe for concurrent use by any number of relay handlers.
type Rooms struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]*room)}
}

// Join adds the member to the session, allocating the room if needed. Joining a session the
// member is already part of is a no-op. Returns the messages buffered for the joiner and
// the members that were already present.
func (rs *Rooms) Join(session string, m *Member) ([]signal.Msg, []*Member, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, ok := rs.rooms[session]
	if !ok {
		r = &room{}
		rs.rooms[session] = r
	}
	if slices.Contains(r.members, m) {
		return nil, nil, nil
	}
	if len(r.members) >= roomCapacity {
		return nil, nil, ErrSessionFull
	}
	present := slices.Clone(r.members)
	r.members = append(r.members, m)

	var flush []signal.Msg
	if r.pendingOffer != nil && r.pendingFrom != m {
		flush = append(flush, *r.pendingOffer)
		flush = append(flush, r.pendingCandidates...)
		r.clearPending()
	}
	return flush, present, nil
}

// Relay delivers the message to every other member of the session. The returned count is the
// number of members the message was queued for. Messages relayed into a session the sender is
// not part of are dropped.
func (rs *Rooms) Relay(session string, from *Member, msg signal.Msg) int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, ok := rs.rooms[session]
	if !ok || !slices.Contains(r.members, from) {
		return 0
	}
	delivered := 0
	for _, m := range r.members {
		if m == from {
			continue
		}
		if m.deliver(msg) {
			delivered++
		}
	}
	if len(r.members) > 1 {
		return delivered
	}

	// Alone in the room, keep what a late joiner needs to answer.
	switch msg.Type {
	case signal.Offer:
		r.pendingFrom = from
		r.pendingOffer = &msg
		r.pendingCandidates = nil
	case signal.ICECandidate:
		if r.pendingFrom == from && len(r.pendingCandidates) < maxPendingCandidates {
			r.pendingCandidates = append(r.pendingCandidates, msg)
		}
	}
	return delivered
}

// Leave removes the member from the session and returns the remaining members. The room is
// deallocated once empty.
func (rs *Rooms) Leave(session string, m *Member) []*Member {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, ok := rs.rooms[session]
	if !ok {
		return nil
	}
	if i := slices.Index(r.members, m); i >= 0 {
		r.members = slices.Delete(r.members, i, i+1)
	}
	if r.pendingFrom == m {
		r.clearPending()
	}
	if len(r.members) == 0 {
		delete(rs.rooms, session)
		return nil
	}
	return slices.Clone(r.members)
}

// Size returns the number of members in the session.
func (rs *Rooms) Size(session string) int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, ok := rs.rooms[session]
	if !ok {
		return 0
	}
	return len(r.members)
}

package livepoll

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RoomState folds hub pushes into the three derived room models: the poll
// tally, the user roster, and the activity log. Reducers run only from the
// dispatch context; accessors return copies and are safe from any goroutine.
type RoomState struct {
	mu       sync.RWMutex
	poll     *Poll
	roster   map[string]User
	activity []ActivityEvent

	now   func() time.Time
	newID func() string
}

// NewRoomState constructs an empty projection.
func NewRoomState() *RoomState {
	return &RoomState{
		roster: make(map[string]User),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Poll returns the latest poll snapshot, if one has arrived.
func (s *RoomState) Poll() (Poll, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.poll == nil {
		return Poll{}, false
	}
	return *s.poll, true
}

// Users returns the roster ordered by join time.
func (s *RoomState) Users() []User {
	s.mu.RLock()
	out := make([]User, 0, len(s.roster))
	for _, u := range s.roster {
		out = append(out, u)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// Activity returns the activity log, oldest first.
func (s *RoomState) Activity() []ActivityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ActivityEvent, len(s.activity))
	copy(out, s.activity)
	return out
}

// ApplyPollUpdated replaces the poll model wholesale. The server snapshot is
// the single source of truth; partial merges would reintroduce the
// lost-update anomalies full replacement exists to avoid.
func (s *RoomState) ApplyPollUpdated(p Poll) {
	s.mu.Lock()
	s.poll = &p
	s.mu.Unlock()
}

// ApplyUserList replaces the roster wholesale; this is the reconciliation
// point after missed incremental updates.
func (s *RoomState) ApplyUserList(users []User) {
	roster := make(map[string]User, len(users))
	for _, u := range users {
		roster[u.UserID] = u
	}
	s.mu.Lock()
	s.roster = roster
	s.mu.Unlock()
}

// ApplyUserJoined upserts a roster entry and records a join activity.
func (s *RoomState) ApplyUserJoined(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roster[u.UserID] = u
	s.appendActivity(ActivityJoin, u.UserID, u.UserName,
		displayName(u.UserName, u.UserID)+" joined the room")
}

// ApplyUserLeft removes the roster entry if present (late or duplicate leave
// notices are tolerated) and records a leave activity.
func (s *RoomState) ApplyUserLeft(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := ""
	if u, ok := s.roster[userID]; ok {
		name = u.UserName
		delete(s.roster, userID)
	}
	s.appendActivity(ActivityLeave, userID, name,
		displayName(name, userID)+" left the room")
}

// ApplyUserVoted marks the matching roster entry as voted, if it exists, and
// records a vote activity.
func (s *RoomState) ApplyUserVoted(ev UserVotedPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := ev.UserName
	if u, ok := s.roster[ev.UserID]; ok {
		if name == "" {
			name = u.UserName
		}
		u.HasVoted = true
		u.VotedOption = ev.Option
		s.roster[ev.UserID] = u
	}
	s.appendActivity(ActivityVote, ev.UserID, name,
		displayName(name, ev.UserID)+" voted for "+ev.Option)
}

// ApplyActivity appends a server-authored activity entry as-is.
func (s *RoomState) ApplyActivity(ev ActivityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.ID == "" {
		ev.ID = s.newID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}
	s.activity = append(s.activity, ev)
}

// appendActivity synthesizes a client-side entry. Callers hold s.mu.
func (s *RoomState) appendActivity(kind ActivityKind, userID, userName, message string) {
	s.activity = append(s.activity, ActivityEvent{
		ID:        s.newID(),
		Kind:      kind,
		UserID:    userID,
		UserName:  userName,
		Message:   message,
		Timestamp: s.now(),
	})
}

func displayName(name, userID string) string {
	if name != "" {
		return name
	}
	if len(userID) > 8 {
		return "user-" + userID[:8]
	}
	return "user-" + userID
}

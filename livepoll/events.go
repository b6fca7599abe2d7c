package livepoll

import (
	"encoding/json"
	"time"
)

// User describes one room participant as the hub reports it. Entries are
// keyed by UserID, which is stable for the lifetime of that participant's
// connection.
type User struct {
	UserID      string    `json:"userId"`
	UserName    string    `json:"userName,omitempty"`
	JoinedAt    time.Time `json:"joinedAt"`
	HasVoted    bool      `json:"hasVoted"`
	VotedOption string    `json:"votedOption,omitempty"`
}

// ActivityKind classifies an activity feed entry.
type ActivityKind string

const (
	ActivityJoin  ActivityKind = "join"
	ActivityVote  ActivityKind = "vote"
	ActivityLeave ActivityKind = "leave"
)

// ActivityEvent is one entry of the room activity feed, immutable once
// recorded. The ID is synthesized client-side for entries the hub pushes
// without one; it identifies the entry in a list, it is not a dedup key, so
// duplicate delivery after a reconnect is not filtered out.
type ActivityEvent struct {
	ID        string          `json:"id"`
	Kind      ActivityKind    `json:"type"`
	UserID    string          `json:"userId"`
	UserName  string          `json:"userName,omitempty"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

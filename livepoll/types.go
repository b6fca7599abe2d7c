package livepoll

import "encoding/json"

const (
	// client -> server
	typeInvoke = "invoke"

	// server -> client
	typeEvent = "event"
	typeError = "error"

	// hub commands
	targetJoinRoom = "JoinRoom"
	targetVote     = "Vote"
)

// Push event names the hub broadcasts to every subscriber of a connection.
const (
	EventPollUpdated    = "PollUpdated"
	EventJoinSuccess    = "JoinSuccess"
	EventJoinError      = "JoinError"
	EventUserListUpdate = "UserListUpdate"
	EventUserJoined     = "UserJoined"
	EventUserLeft       = "UserLeft"
	EventUserVoted      = "UserVoted"
	EventActivityUpdate = "ActivityUpdate"
)

// Invocation is the envelope client -> server. Sending one only yields a
// delivery acknowledgment; command outcomes arrive later as push events.
type Invocation struct {
	Type   string `json:"type"`
	Target string `json:"target"`
	Args   []any  `json:"args"`
}

// Push is the envelope server -> client.
type Push struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *WireError      `json:"error,omitempty"`
}

// WireError describes a protocol-level error pushed by the hub.
type WireError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *WireError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Msg
}

// JoinSuccessPayload is the payload of a JoinSuccess push.
type JoinSuccessPayload struct {
	Message string `json:"message"`
	RoomID  string `json:"roomId"`
}

// CommandErrorPayload is the payload shape of error pushes paired with a
// command, e.g. JoinError.
type CommandErrorPayload struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

// UserVotedPayload is the payload of a UserVoted push.
type UserVotedPayload struct {
	UserID   string `json:"userId"`
	Option   string `json:"option"`
	UserName string `json:"userName,omitempty"`
}

// UnmarshalData decodes RawMessage into target.
func UnmarshalData(data json.RawMessage, v any) error {
	return json.Unmarshal(data, v)
}

package livepoll

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// HubClient is the connection surface a Session drives. *Client implements
// it; tests substitute a fake.
type HubClient interface {
	EnsureConnected(ctx context.Context) error
	Disconnect() error
	Invoke(ctx context.Context, target string, args ...any) error
	Call(ctx context.Context, spec CallSpec) (json.RawMessage, error)
	Subscribe(event string, fn Handler) *Subscription
	Unsubscribe(sub *Subscription)
	OnClose(fn func(error))
}

// SessionState tracks where a session is in its join lifecycle.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionConnecting
	SessionAwaitingJoin
	SessionJoined

	// SessionRejected is retry-capable: Join may be called again, with a
	// password when NeedsPassword reports true.
	SessionRejected

	SessionClosed
)

// String returns the string representation of a SessionState.
func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionConnecting:
		return "connecting"
	case SessionAwaitingJoin:
		return "awaiting_join"
	case SessionJoined:
		return "joined"
	case SessionRejected:
		return "rejected"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// joinAttempt is the ephemeral record of one outstanding JoinRoom call. The
// hub's success/error pushes carry no request identifier, so at most one may
// exist per session; a second concurrent join could not be attributed.
type joinAttempt struct {
	roomID    string
	password  string
	startedAt time.Time
}

// Session coordinates joining one room and casting one vote over a hub
// client, and projects the room's pushes into a RoomState. A session owns
// its connection: Close tears the connection down, and a closed session must
// be reconstructed, not reused.
type Session struct {
	hub  HubClient
	room *RoomState

	mu            sync.Mutex
	logger        Logger
	st            SessionState
	roomID        string
	needsPassword bool
	voteLock      bool
	attempt       *joinAttempt
	subs          []*Subscription
	callTimeout   time.Duration
}

// NewSession constructs a session over the given hub client.
func NewSession(hub HubClient) *Session {
	s := &Session{
		hub:         hub,
		room:        NewRoomState(),
		logger:      noopLogger{},
		callTimeout: DefaultCallTimeout,
	}
	hub.OnClose(s.onConnectionClosed)
	return s
}

// SetLogger overrides the logger (optional).
func (s *Session) SetLogger(l Logger) {
	if l == nil {
		return
	}
	s.mu.Lock()
	s.logger = l
	s.mu.Unlock()
}

// SetCallTimeout overrides the join correlation deadline.
func (s *Session) SetCallTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.callTimeout = d
	s.mu.Unlock()
}

// Room exposes the projected poll, roster and activity models.
func (s *Session) Room() *RoomState { return s.room }

// State reports the session lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

// RoomID reports the joined room, empty before a successful join.
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// NeedsPassword reports whether the last rejection asked for a password.
func (s *Session) NeedsPassword() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsPassword
}

// HasVoted reports whether this session already cast its vote.
func (s *Session) HasVoted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voteLock
}

// Join connects to the hub if needed, invokes JoinRoom and waits for the
// paired JoinSuccess/JoinError push. Pass an empty password for open rooms.
// On rejection the session stays retry-capable: NeedsPassword reports
// whether retrying with a password can succeed, a room-not-found rejection
// needs a different room code, and timeouts or transport failures may simply
// be retried.
func (s *Session) Join(ctx context.Context, roomID, password string) error {
	s.mu.Lock()
	switch s.st {
	case SessionClosed:
		s.mu.Unlock()
		return NewError(ErrorSessionClosed, "session is closed")
	case SessionIdle, SessionRejected:
	default:
		s.mu.Unlock()
		if s.outstanding() {
			return NewError(ErrorJoinInProgress, "a join attempt is already outstanding")
		}
		return NewError(ErrorInvalidState, "join requires an idle or rejected session")
	}
	s.attempt = &joinAttempt{roomID: roomID, password: password, startedAt: time.Now()}
	s.st = SessionConnecting
	timeout := s.callTimeout
	s.mu.Unlock()

	if err := s.hub.EnsureConnected(ctx); err != nil {
		s.finishJoin(SessionRejected, false)
		return WrapError(ErrorConnection, "connect to hub", err)
	}

	s.ensureSubscriptions()

	s.mu.Lock()
	s.st = SessionAwaitingJoin
	s.mu.Unlock()

	args := []any{roomID}
	if password != "" {
		args = append(args, password)
	}
	data, err := s.hub.Call(ctx, CallSpec{
		Command:      targetJoinRoom,
		Args:         args,
		SuccessEvent: EventJoinSuccess,
		ErrorEvent:   EventJoinError,
		Timeout:      timeout,
	})
	if err != nil {
		s.finishJoin(SessionRejected, NeedsPassword(err))
		s.log().Warn("join rejected", map[string]any{"room": roomID, "error": err.Error()})
		return err
	}

	var ok JoinSuccessPayload
	if derr := UnmarshalData(data, &ok); derr != nil {
		s.log().Warn("undecodable JoinSuccess payload", map[string]any{"error": derr.Error()})
	}

	s.mu.Lock()
	s.st = SessionJoined
	s.roomID = roomID
	s.voteLock = false
	s.needsPassword = false
	s.attempt = nil
	s.mu.Unlock()
	s.log().Info("joined room", map[string]any{"room": roomID})
	return nil
}

// Vote casts this session's single vote. The hub defines no success/error
// push pair for Vote, so the only available signal is whether the transport
// accepted the invocation: acceptance locks further votes client-side, a
// transport failure leaves the lock clear for a retry. The server remains
// authoritative and may still reject the vote silently.
func (s *Session) Vote(ctx context.Context, option string) error {
	s.mu.Lock()
	if s.st != SessionJoined {
		s.mu.Unlock()
		return NewError(ErrorInvalidState, "vote requires a joined session")
	}
	if s.voteLock {
		s.mu.Unlock()
		return NewError(ErrorVoteLocked, "this session has already voted")
	}
	// Lock before sending so a concurrent second vote can never reach the
	// network; rolled back below if delivery fails.
	s.voteLock = true
	roomID := s.roomID
	s.mu.Unlock()

	if err := s.hub.Invoke(ctx, targetVote, roomID, option); err != nil {
		s.mu.Lock()
		s.voteLock = false
		s.mu.Unlock()
		return WrapError(ErrorConnection, "send vote", err)
	}
	s.log().Info("vote sent", map[string]any{"room": roomID, "option": option})
	return nil
}

// Close releases the connection and invalidates all subscriptions. Safe to
// call repeatedly.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.st == SessionClosed {
		s.mu.Unlock()
		return nil
	}
	s.st = SessionClosed
	s.subs = nil
	s.attempt = nil
	s.mu.Unlock()
	return s.hub.Disconnect()
}

// outstanding reports whether a join attempt is in flight. Callers hold no
// lock; the read is advisory, for error classification only.
func (s *Session) outstanding() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt != nil
}

func (s *Session) finishJoin(st SessionState, needsPassword bool) {
	s.mu.Lock()
	if s.st != SessionClosed {
		s.st = st
		s.needsPassword = needsPassword
	}
	s.attempt = nil
	s.mu.Unlock()
}

// ensureSubscriptions registers the projection handlers once per live
// connection. A connection teardown clears them (see onConnectionClosed), so
// a rejoin after an outage re-registers.
func (s *Session) ensureSubscriptions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) > 0 {
		return
	}
	sub := func(event string, fn Handler) {
		s.subs = append(s.subs, s.hub.Subscribe(event, fn))
	}
	sub(EventPollUpdated, s.onPollUpdated)
	sub(EventUserListUpdate, s.onUserList)
	sub(EventUserJoined, s.onUserJoined)
	sub(EventUserLeft, s.onUserLeft)
	sub(EventUserVoted, s.onUserVoted)
	sub(EventActivityUpdate, s.onActivity)
}

func (s *Session) onPollUpdated(data json.RawMessage) {
	var p Poll
	if err := UnmarshalData(data, &p); err != nil {
		s.dropPush(EventPollUpdated, err)
		return
	}
	s.room.ApplyPollUpdated(p)
}

func (s *Session) onUserList(data json.RawMessage) {
	var users []User
	if err := UnmarshalData(data, &users); err != nil {
		s.dropPush(EventUserListUpdate, err)
		return
	}
	s.room.ApplyUserList(users)
}

func (s *Session) onUserJoined(data json.RawMessage) {
	var u User
	if err := UnmarshalData(data, &u); err != nil {
		s.dropPush(EventUserJoined, err)
		return
	}
	s.room.ApplyUserJoined(u)
}

func (s *Session) onUserLeft(data json.RawMessage) {
	var userID string
	if err := UnmarshalData(data, &userID); err != nil {
		s.dropPush(EventUserLeft, err)
		return
	}
	s.room.ApplyUserLeft(userID)
}

func (s *Session) onUserVoted(data json.RawMessage) {
	var ev UserVotedPayload
	if err := UnmarshalData(data, &ev); err != nil {
		s.dropPush(EventUserVoted, err)
		return
	}
	s.room.ApplyUserVoted(ev)
}

func (s *Session) onActivity(data json.RawMessage) {
	var ev ActivityEvent
	if err := UnmarshalData(data, &ev); err != nil {
		s.dropPush(EventActivityUpdate, err)
		return
	}
	s.room.ApplyActivity(ev)
}

// onConnectionClosed marks the session stale when the connection goes away
// underneath it: a joined or joining session drops back to retry-capable
// rejection, and the (now invalidated) subscriptions are forgotten.
func (s *Session) onConnectionClosed(cause error) {
	s.mu.Lock()
	if s.st == SessionClosed {
		s.mu.Unlock()
		return
	}
	s.subs = nil
	switch s.st {
	case SessionConnecting, SessionAwaitingJoin, SessionJoined:
		s.st = SessionRejected
		s.needsPassword = false
	}
	s.mu.Unlock()

	fields := map[string]any{}
	if cause != nil {
		fields["error"] = cause.Error()
	}
	s.log().Warn("hub connection closed", fields)
}

func (s *Session) dropPush(event string, err error) {
	s.log().Warn("dropping malformed push payload", map[string]any{
		"event": event,
		"error": err.Error(),
	})
}

func (s *Session) log() Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}

package livepoll

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func joinSpec(timeout time.Duration) CallSpec {
	return CallSpec{
		Command:      targetJoinRoom,
		Args:         []any{"ROOM1"},
		SuccessEvent: EventJoinSuccess,
		ErrorEvent:   EventJoinError,
		Timeout:      timeout,
	}
}

func respondWith(d *Dispatcher, pushes ...Push) InvokeFunc {
	return func(ctx context.Context, target string, args ...any) error {
		for _, p := range pushes {
			d.Dispatch(p)
		}
		return nil
	}
}

func TestCorrelateSuccess(t *testing.T) {
	d := NewDispatcher()
	invoke := respondWith(d, eventPush(EventJoinSuccess, JoinSuccessPayload{Message: "ok", RoomID: "ROOM1"}))

	data, err := Correlate(context.Background(), d, invoke, joinSpec(time.Second))
	require.NoError(t, err)

	var payload JoinSuccessPayload
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, "ROOM1", payload.RoomID)
	assertNoListeners(t, d)
}

func TestCorrelateProtocolError(t *testing.T) {
	d := NewDispatcher()
	invoke := respondWith(d, eventPush(EventJoinError, CommandErrorPayload{
		Message:   "room requires a password",
		ErrorCode: "WRONG_PASSWORD",
	}))

	_, err := Correlate(context.Background(), d, invoke, joinSpec(time.Second))
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrorWrongPassword))
	assert.True(t, NeedsPassword(err))
	assert.True(t, IsProtocolError(err))

	var pe *PollError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "room requires a password", pe.Message)
	assertNoListeners(t, d)
}

func TestCorrelateUnknownErrorCodeKeepsMessage(t *testing.T) {
	d := NewDispatcher()
	invoke := respondWith(d, eventPush(EventJoinError, CommandErrorPayload{
		Message:   "room is archived",
		ErrorCode: "ROOM_ARCHIVED",
	}))

	_, err := Correlate(context.Background(), d, invoke, joinSpec(time.Second))
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrorUnknown))

	var pe *PollError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "room is archived", pe.Message)
}

func TestCorrelateMutualExclusion(t *testing.T) {
	d := NewDispatcher()
	// Both paired events arrive; only the first resolves the call.
	invoke := respondWith(d,
		eventPush(EventJoinSuccess, JoinSuccessPayload{Message: "ok", RoomID: "ROOM1"}),
		eventPush(EventJoinError, CommandErrorPayload{Message: "late", ErrorCode: "ROOM_NOT_FOUND"}),
	)

	data, err := Correlate(context.Background(), d, invoke, joinSpec(time.Second))
	require.NoError(t, err)
	assert.NotNil(t, data)
	assertNoListeners(t, d)
}

func TestCorrelateTransportFailure(t *testing.T) {
	d := NewDispatcher()
	invoke := func(ctx context.Context, target string, args ...any) error {
		return NewError(ErrorNotConnected, "hub connection is not established")
	}

	_, err := Correlate(context.Background(), d, invoke, joinSpec(time.Second))
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
	assertNoListeners(t, d)
}

func TestCorrelateTimeout(t *testing.T) {
	d := NewDispatcher()
	invoke := func(ctx context.Context, target string, args ...any) error { return nil }

	start := time.Now()
	_, err := Correlate(context.Background(), d, invoke, joinSpec(50*time.Millisecond))
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, HasCode(err, ErrorTimeout))
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assertNoListeners(t, d)

	// A push arriving after resolution lands on nothing.
	d.Dispatch(eventPush(EventJoinSuccess, JoinSuccessPayload{Message: "late", RoomID: "ROOM1"}))
	assertNoListeners(t, d)
}

func TestCorrelateContextCanceled(t *testing.T) {
	d := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	invoke := func(context.Context, string, ...any) error {
		cancel()
		return nil
	}

	_, err := Correlate(ctx, d, invoke, joinSpec(time.Second))
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
	assertNoListeners(t, d)
}

func assertNoListeners(t *testing.T, d *Dispatcher) {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	for event, subs := range d.handlers {
		if len(subs) > 0 {
			t.Fatalf("leaked %d listener(s) on %s", len(subs), event)
		}
	}
}

package livepoll

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func TestHubURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"http://localhost:5080", "http://localhost:5080/pollHub"},
		{"http://localhost:5080/", "http://localhost:5080/pollHub"},
		{"https://polls.example.com//", "https://polls.example.com/pollHub"},
	}
	for _, tc := range cases {
		if got := HubURL(tc.base); got != tc.want {
			t.Fatalf("HubURL(%q) = %q, want %q", tc.base, got, tc.want)
		}
	}
}

func TestClientInvokeNotConnected(t *testing.T) {
	c := NewClient(DefaultConfig())
	err := c.Invoke(testCtx(), targetVote, "ROOM1", "A")
	if err == nil {
		t.Fatal("expected error when not connected")
	}
	if !HasCode(err, ErrorNotConnected) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClientConnectEmptyURL(t *testing.T) {
	c := NewClient(DefaultConfig())
	err := c.Connect(context.Background())
	if !HasCode(err, ErrorInvalidConfig) {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("state after failed connect: %v", c.State())
	}
}

func TestClientDisconnectIsTerminal(t *testing.T) {
	c := NewClient(DefaultConfig())
	if err := c.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("repeated disconnect: %v", err)
	}
	if c.State() != StateClosed {
		t.Fatalf("state after disconnect: %v", c.State())
	}

	err := c.EnsureConnected(context.Background())
	if !HasCode(err, ErrorDisconnected) {
		t.Fatalf("expected disconnected error, got %v", err)
	}
}

func TestClientDisconnectNotifiesClose(t *testing.T) {
	c := NewClient(DefaultConfig())
	closed := false
	c.OnClose(func(error) { closed = true })

	if err := c.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if !closed {
		t.Fatal("close callback not invoked")
	}
}

func TestClientServerCloseDisconnectsAndNotifies(t *testing.T) {
	srv, conns := hubTestServer(t)

	cfg := DefaultConfig()
	cfg.URL = hubWSURL(srv)
	cfg.AutoReconnect = false
	c := NewClient(cfg)

	states := make(chan StateEvent, 8)
	c.OnStateChanged(func(ev StateEvent) { states <- ev })
	closed := make(chan error, 1)
	c.OnClose(func(err error) { closed <- err })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("expected second connect to be rejected")
	} else if !HasCode(err, ErrorConnection) {
		t.Fatalf("unexpected error from second connect: %v", err)
	}

	server := <-conns
	if err := server.Close(websocket.StatusGoingAway, "server restarting"); err != nil {
		t.Fatalf("server close: %v", err)
	}

	select {
	case err := <-closed:
		if err == nil {
			t.Fatal("close callback fired without the read error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("close callback never fired after server-side close")
	}
	waitForState(t, states, StateDisconnected)
	if c.State() != StateDisconnected {
		t.Fatalf("state after server close: %v", c.State())
	}
}

func TestClientReconnectsAfterServerClose(t *testing.T) {
	srv, conns := hubTestServer(t)

	cfg := DefaultConfig()
	cfg.URL = hubWSURL(srv)
	cfg.AutoReconnect = true
	cfg.ReconnectInterval = 20 * time.Millisecond
	c := NewClient(cfg)

	states := make(chan StateEvent, 16)
	c.OnStateChanged(func(ev StateEvent) { states <- ev })

	polls := make(chan Poll, 1)
	c.Subscribe(EventPollUpdated, func(data json.RawMessage) {
		var p Poll
		if err := UnmarshalData(data, &p); err == nil {
			polls <- p
		}
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	first := <-conns
	if err := first.Close(websocket.StatusGoingAway, "server restarting"); err != nil {
		t.Fatalf("server close: %v", err)
	}

	waitForState(t, states, StateReconnecting)
	waitForState(t, states, StateConnected)

	// Subscriptions survive the reconnect: a push over the new connection
	// still reaches the handler registered before the outage.
	second := <-conns
	raw, err := json.Marshal(map[string]any{"question": "Soup?", "options": map[string]int{"Pho": 2}})
	if err != nil {
		t.Fatalf("marshal poll: %v", err)
	}
	push := Push{Type: typeEvent, Event: EventPollUpdated, Data: raw}
	if err := wsjson.Write(context.Background(), second, push); err != nil {
		t.Fatalf("server push: %v", err)
	}

	select {
	case p := <-polls:
		if p.TotalVotes() != 2 {
			t.Fatalf("unexpected poll after reconnect: %+v", p)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("push after reconnect never dispatched")
	}
}

// hubTestServer runs a websocket endpoint that hands each accepted
// connection to the test over a channel.
func hubTestServer(t *testing.T) (*httptest.Server, <-chan *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conns <- ws
	}))
	t.Cleanup(srv.Close)
	return srv, conns
}

func hubWSURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitForState(t *testing.T, states <-chan StateEvent, want ConnectionState) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-states:
			if ev.NewState == want {
				return
			}
		case <-deadline:
			t.Fatalf("connection never reached %v", want)
		}
	}
}

// testCtx returns a canceled context for unit tests.
func testCtx() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

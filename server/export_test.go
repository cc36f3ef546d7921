package server

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/lab1702/robo-arena/config"
	"github.com/lab1702/robo-arena/game"
	"github.com/stretchr/testify/require"
)

// fakeClock records what the server asked of the turn clock. Tests fire it
// by calling onTurn or onReadyTimeout themselves.
type fakeClock struct {
	scheduled int
	minDelay  time.Duration
	maxDelay  time.Duration
	ready     bool
	paused    bool
	cancelled int
}

func (f *fakeClock) Schedule(minDelay, maxDelay time.Duration) {
	f.scheduled++
	f.minDelay = minDelay
	f.maxDelay = maxDelay
	f.ready = false
}

func (f *fakeClock) NotifyReady() { f.ready = true }
func (f *fakeClock) Pause()       { f.paused = true }
func (f *fakeClock) Resume()      { f.paused = false }
func (f *fakeClock) Shutdown()    {}

func (f *fakeClock) Cancel() {
	f.cancelled++
	f.ready = false
}

type testServer struct {
	*Server
	ready *fakeClock
	turn  *fakeClock
}

func newTestServer(t *testing.T, cfg config.ServerConfig, setup game.GameSetup, opts ...Option) *testServer {
	t.Helper()
	opts = append([]Option{WithSeed(1)}, opts...)
	s := NewServer(cfg, setup, opts...)
	s.Shutdown()
	ts := &testServer{Server: s, ready: &fakeClock{}, turn: &fakeClock{}}
	s.readyTimer = ts.ready
	s.turnTimer = ts.turn
	return ts
}

// connect registers a client that has not sent a handshake yet
func (ts *testServer) connect() *Client {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.nextClientID++
	c := &Client{
		ID:        ts.nextClientID,
		SessionID: fmt.Sprintf("session-%d", ts.nextClientID),
		Address:   BotAddress{Host: "127.0.0.1", Port: 5000 + ts.nextClientID},
		send:      make(chan ServerMessage, 1024),
		server:    ts.Server,
	}
	ts.clients[c.ID] = c
	return c
}

// disconnect does what the hub does when a read pump ends
func (ts *testServer) disconnect(c *Client) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.dropClient(c)
	ts.handleDisconnect(c)
}

func (ts *testServer) joinBot(t *testing.T, hs BotHandshake) *Client {
	t.Helper()
	c := ts.connect()
	ts.handleMessage(c, clientMsg(t, MsgTypeBotHandshake, hs))
	require.Equal(t, kindBot, c.kind)
	drain(c)
	return c
}

func (ts *testServer) joinController(t *testing.T) *Client {
	t.Helper()
	c := ts.connect()
	ts.handleMessage(c, clientMsg(t, MsgTypeControllerHandshake, ObserverHandshake{Name: "ctl"}))
	require.Equal(t, kindController, c.kind)
	drain(c)
	return c
}

// startMatch starts a game with every connected bot and readies all of them
func (ts *testServer) startMatch(t *testing.T, ctl *Client, setup *GameSetupMessage, bots ...*Client) {
	t.Helper()
	ts.handleMessage(ctl, clientMsg(t, MsgTypeStartGame, StartGame{GameSetup: setup}))
	require.Equal(t, StateWaitForReady, ts.State())
	for _, b := range bots {
		ts.handleMessage(b, clientMsg(t, MsgTypeBotReady, struct{}{}))
	}
	require.Equal(t, StateGameRunning, ts.State())
	drain(append([]*Client{ctl}, bots...)...)
}

func clientMsg(t *testing.T, msgType string, v interface{}) ClientMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return ClientMessage{Type: msgType, Data: data}
}

// drain empties the send buffers and returns what was queued, in order
func drain(clients ...*Client) []ServerMessage {
	var out []ServerMessage
	for _, c := range clients {
		out = append(out, pending(c)...)
	}
	return out
}

func pending(c *Client) []ServerMessage {
	var out []ServerMessage
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func ofType(msgs []ServerMessage, msgType string) []ServerMessage {
	var out []ServerMessage
	for _, m := range msgs {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

func types(msgs []ServerMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

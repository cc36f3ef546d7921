package botapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lab1702/robo-arena/config"
	"github.com/lab1702/robo-arena/game"
	"github.com/lab1702/robo-arena/server"
	"github.com/lab1702/robo-arena/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedMatches struct {
	mu      sync.Mutex
	records []*storage.MatchRecord
}

func (r *recordedMatches) Record(m *storage.MatchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, m)
	return nil
}

func (r *recordedMatches) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func startArena(t *testing.T, rec server.MatchRecorder) (*server.Server, string) {
	t.Helper()
	setup := game.DefaultGameSetup()
	setup.DefaultTurnsPerSecond = -1
	setup.TurnTimeout = 200 * time.Millisecond

	srv := server.NewServer(config.ServerConfig{
		Name:                  "test arena",
		EnableInitialPosition: true,
		SendBufferSize:        1024,
	}, setup, server.WithRecorder(rec), server.WithSeed(1))

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	t.Cleanup(func() {
		ts.Close()
		cancel()
		srv.Shutdown()
	})
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

type controller struct {
	conn *websocket.Conn
	msgs chan server.ClientMessage
}

func dialController(t *testing.T, url string) *controller {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var hello server.ClientMessage
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, server.MsgTypeServerHandshake, hello.Type)

	require.NoError(t, conn.WriteJSON(server.ServerMessage{
		Type: server.MsgTypeControllerHandshake,
		Data: server.ObserverHandshake{Name: "ctl"},
	}))

	c := &controller{conn: conn, msgs: make(chan server.ClientMessage, 4096)}
	go func() {
		defer close(c.msgs)
		for {
			var msg server.ClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			c.msgs <- msg
		}
	}()
	return c
}

// waitFor returns the first message of the given type accepted by match
func (c *controller) waitFor(t *testing.T, msgType string, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case msg, ok := <-c.msgs:
			require.True(t, ok, "controller connection closed while waiting for %s", msgType)
			if msg.Type == msgType && (match == nil || match(msg.Data)) {
				return msg.Data
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", msgType)
		}
	}
}

func at(x, y, dir float64) *game.InitialPosition {
	return &game.InitialPosition{X: &x, Y: &y, Direction: &dir}
}

func TestEndToEnd_PointBlankMatch(t *testing.T) {
	rec := &recordedMatches{}
	srv, url := startArena(t, rec)
	ctl := dialController(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	gunnerEnded := make(chan server.GameEndedEventForBot, 1)
	gunner, err := Dial(ctx, url, server.BotHandshake{
		Name:            "Gunner",
		Version:         "1.0",
		InitialPosition: at(100, 300, 0),
	}, Handlers{
		Tick: func(c *Client, tick *Tick) {
			assert.NoError(t, c.Intent().SetFirepower(game.MaxFirepower))
		},
		GameEnded: func(c *Client, e server.GameEndedEventForBot) { gunnerEnded <- e },
	})
	require.NoError(t, err)
	defer gunner.Close()

	died := make(chan struct{})
	target, err := Dial(ctx, url, server.BotHandshake{
		Name:            "Target",
		Version:         "1.0",
		InitialPosition: at(300, 300, 90),
	}, Handlers{})
	require.NoError(t, err)
	defer target.Close()
	var once sync.Once
	target.Dispatcher().On(game.EventBotDeath, func(e game.Event) {
		if e.(*game.BotDeathEvent).VictimID == target.MyID() {
			once.Do(func() { close(died) })
		}
	})

	go gunner.Run(ctx)
	go target.Run(ctx)

	ctl.waitFor(t, server.MsgTypeBotListUpdate, func(data json.RawMessage) bool {
		var u server.BotListUpdate
		return json.Unmarshal(data, &u) == nil && len(u.Bots) == 2
	})

	require.NoError(t, ctl.conn.WriteJSON(server.ServerMessage{
		Type: server.MsgTypeStartGame,
		Data: server.StartGame{GameSetup: &server.GameSetupMessage{NumberOfRounds: 1, GunCoolingRate: 0.5}},
	}))

	started := ctl.waitFor(t, server.MsgTypeGameStartedForObserver, nil)
	var gs server.GameStartedEventForObserver
	require.NoError(t, json.Unmarshal(started, &gs))
	require.Len(t, gs.Participants, 2)
	assert.Equal(t, int64(200_000), gs.GameSetup.TurnTimeout, "timeouts travel in microseconds")

	endedData := ctl.waitFor(t, server.MsgTypeGameEndedForObserver, nil)
	var ended server.GameEndedEventForObserver
	require.NoError(t, json.Unmarshal(endedData, &ended))
	require.Len(t, ended.Results, 2)
	assert.Equal(t, "Gunner", ended.Results[0].Name)
	assert.Equal(t, 1, ended.Results[0].Rank)
	assert.Equal(t, 2, ended.Results[1].Rank)
	assert.Greater(t, ended.Results[0].BulletDamage, 0.0)

	select {
	case e := <-gunnerEnded:
		assert.Equal(t, 1, e.NumberOfRounds)
		assert.Equal(t, 1, e.Results.Rank)
	case <-time.After(5 * time.Second):
		t.Fatal("gunner never got its result")
	}

	select {
	case <-died:
	case <-time.After(5 * time.Second):
		t.Fatal("target never saw its own death")
	}
	assert.Eventually(t, func() bool { return rec.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, server.StateGameStopped, srv.State())
}

func TestDial_RejectsWrongSecret(t *testing.T) {
	setup := game.DefaultGameSetup()
	srv := server.NewServer(config.ServerConfig{BotSecrets: []string{"letmein"}, SendBufferSize: 16}, setup)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Run(ctx)
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	defer ts.Close()
	defer srv.Shutdown()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	c, err := Dial(ctx, url, server.BotHandshake{Name: "Intruder", Secret: "guess"}, Handlers{})
	require.NoError(t, err, "the handshake is sent before the server answers")

	runErr := c.Run(ctx)
	require.Error(t, runErr)
	var closeErr *websocket.CloseError
	require.ErrorAs(t, runErr, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Empty(t, srv.Status().Bots)
}

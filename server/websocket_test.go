package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lab1702/robo-arena/config"
	"github.com/lab1702/robo-arena/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHub(t *testing.T, cfg config.ServerConfig) (*Server, string) {
	t.Helper()
	s := NewServer(cfg, game.DefaultGameSetup())
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(s.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		s.Shutdown()
	})
	return s, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialHub(t *testing.T, url string) (*websocket.Conn, ServerHandshake) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var msg struct {
		Type string          `json:"type"`
		Data ServerHandshake `json:"data"`
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, MsgTypeServerHandshake, msg.Type)
	return conn, msg.Data
}

func TestServerHandshake(t *testing.T) {
	_, url := serveHub(t, config.ServerConfig{Name: "arena", SendBufferSize: 8})

	_, hello := dialHub(t, url)
	assert.NotEmpty(t, hello.SessionID)
	assert.Equal(t, "arena", hello.Name)
	assert.Equal(t, ProtocolVersion, hello.Version)
	assert.Equal(t, []string{game.DefaultGameType}, hello.GameTypes)

	_, other := dialHub(t, url)
	assert.NotEqual(t, hello.SessionID, other.SessionID)
}

func TestSecrets(t *testing.T) {
	cfg := config.ServerConfig{
		BotSecrets:        []string{"bot-pass"},
		ControllerSecrets: []string{"ctl-pass"},
		SendBufferSize:    8,
	}

	tests := []struct {
		name     string
		msgType  string
		data     interface{}
		accepted bool
	}{
		{"bot with secret", MsgTypeBotHandshake, BotHandshake{Name: "ok", Secret: "bot-pass"}, true},
		{"bot with controller secret", MsgTypeBotHandshake, BotHandshake{Name: "no", Secret: "ctl-pass"}, false},
		{"bot without secret", MsgTypeBotHandshake, BotHandshake{Name: "no"}, false},
		{"controller with secret", MsgTypeControllerHandshake, ObserverHandshake{Name: "ok", Secret: "ctl-pass"}, true},
		{"controller with bot secret", MsgTypeControllerHandshake, ObserverHandshake{Name: "no", Secret: "bot-pass"}, false},
		{"observer with secret", MsgTypeObserverHandshake, ObserverHandshake{Name: "ok", Secret: "ctl-pass"}, true},
		{"observer without secret", MsgTypeObserverHandshake, ObserverHandshake{Name: "no"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, url := serveHub(t, cfg)
			conn, _ := dialHub(t, url)
			require.NoError(t, conn.WriteJSON(ServerMessage{Type: tt.msgType, Data: tt.data}))

			if tt.accepted {
				assert.Eventually(t, func() bool {
					st := s.Status()
					return len(st.Bots)+st.Observers+st.Controllers == 1
				}, 2*time.Second, 10*time.Millisecond)
				return
			}

			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			_, _, err := conn.ReadMessage()
			var closeErr *websocket.CloseError
			require.ErrorAs(t, err, &closeErr)
			assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
			assert.Eventually(t, func() bool {
				s.mu.Lock()
				defer s.mu.Unlock()
				return len(s.clients) == 0
			}, 2*time.Second, 10*time.Millisecond)
		})
	}
}

func TestWrongSessionIDIsRejected(t *testing.T) {
	_, url := serveHub(t, config.ServerConfig{SendBufferSize: 8})
	conn, _ := dialHub(t, url)

	require.NoError(t, conn.WriteJSON(ServerMessage{
		Type: MsgTypeBotHandshake,
		Data: BotHandshake{SessionID: "not-mine", Name: "Impostor"},
	}))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
}

func TestIsValidOrigin(t *testing.T) {
	s := NewServer(config.ServerConfig{}, game.DefaultGameSetup())
	defer s.Shutdown()

	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "arena.example:7654", true},
		{"http://arena.example:7654", "arena.example:7654", true},
		{"http://localhost:3000", "arena.example:7654", true},
		{"http://127.0.0.1", "arena.example:7654", true},
		{"http://evil.example", "arena.example:7654", false},
		{"://bad", "arena.example:7654", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, s.isValidOrigin(r))
		})
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name string
		addr net.Addr
		want BotAddress
	}{
		{"ipv4", &net.TCPAddr{IP: net.ParseIP("10.0.0.2"), Port: 51234}, BotAddress{Host: "10.0.0.2", Port: 51234}},
		{"ipv6", &net.TCPAddr{IP: net.ParseIP("::1"), Port: 80}, BotAddress{Host: "::1", Port: 80}},
		{"nil", nil, BotAddress{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseAddress(tt.addr))
		})
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := NewServer(config.ServerConfig{SendBufferSize: 8}, game.DefaultGameSetup())
	defer s.Shutdown()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(stopped)
	}()
	cancel()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	// late connections are turned away once the hub is gone
	srv := httptest.NewServer(http.HandlerFunc(s.HandleWebSocket))
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

package server

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// A tick for an observer carries every bot and bullet
	maxMessageSize = 1 << 20
)

// isValidOrigin checks if the origin is allowed to connect
func (s *Server) isValidOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// No origin header - bots are not browsers
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		s.log.Warn().Str("origin", origin).Msg("Invalid origin URL")
		return false
	}

	// Allow same-origin connections
	if r.Host == originURL.Host {
		return true
	}

	// Allow localhost connections for development
	if strings.HasPrefix(originURL.Host, "localhost:") ||
		strings.HasPrefix(originURL.Host, "127.0.0.1:") ||
		originURL.Host == "localhost" ||
		originURL.Host == "127.0.0.1" {
		return true
	}

	s.log.Warn().Str("origin", origin).Msg("Rejected WebSocket connection")
	return false
}

type clientKind int

const (
	kindUnknown clientKind = iota
	kindBot
	kindObserver
	kindController
)

func (k clientKind) String() string {
	switch k {
	case kindBot:
		return "bot"
	case kindObserver:
		return "observer"
	case kindController:
		return "controller"
	default:
		return "unknown"
	}
}

// Client is one WebSocket connection. Everything but the pumps is guarded
// by the server mutex.
type Client struct {
	ID        int
	SessionID string
	Address   BotAddress

	kind      clientKind
	handshake *BotHandshake
	observer  *ObserverHandshake
	botID     int // id in the running match, 0 when not participating
	closed    bool

	conn   *websocket.Conn
	send   chan ServerMessage
	server *Server
}

// HandleWebSocket upgrades the connection and greets the client
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	s.mu.Lock()
	s.nextClientID++
	clientID := s.nextClientID
	s.mu.Unlock()

	client := &Client{
		ID:        clientID,
		SessionID: uuid.NewString(),
		Address:   parseAddress(conn.RemoteAddr()),
		conn:      conn,
		send:      make(chan ServerMessage, s.cfg.SendBufferSize),
		server:    s,
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Run starts the hub loop. It returns when ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			for _, c := range s.clients {
				s.dropClient(c)
			}
			s.mu.Unlock()
			return

		case client := <-s.register:
			s.mu.Lock()
			s.clients[client.ID] = client
			client.trySend(ServerMessage{
				Type: MsgTypeServerHandshake,
				Data: ServerHandshake{
					SessionID: client.SessionID,
					Name:      s.cfg.Name,
					Version:   ProtocolVersion,
					GameTypes: []string{s.defaults.GameType},
				},
			})
			s.mu.Unlock()
			s.log.Debug().Int("client", client.ID).Str("address", client.conn.RemoteAddr().String()).Msg("Client connected")

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client.ID]; ok {
				s.dropClient(client)
				s.handleDisconnect(client)
			}
			s.mu.Unlock()
		}
	}
}

// dropClient removes the client and closes its send channel. Must hold s.mu.
func (s *Server) dropClient(c *Client) {
	delete(s.clients, c.ID)
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	s.log.Debug().Int("client", c.ID).Stringer("kind", c.kind).Msg("Client disconnected")
}

// trySend queues a message without blocking. A full buffer or a closed
// client drops it. Must hold s.mu.
func (c *Client) trySend(msg ServerMessage) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.server.log.Warn().Int("client", c.ID).Str("type", msg.Type).Msg("Client send buffer full, dropping message")
		return false
	}
}

// reject closes the connection with a policy violation. Must hold s.mu.
func (c *Client) reject(reason string) {
	c.server.log.Warn().Int("client", c.ID).Str("reason", reason).Msg("Rejecting client")
	deadline := time.Now().Add(writeWait)
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
	c.conn.Close()
}

// readPump handles incoming messages from the client
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.log.Debug().Err(err).Int("client", c.ID).Msg("WebSocket read error")
			}
			break
		}
		c.server.handleRaw(c, data)
	}
}

// writePump sends messages to the client
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func parseAddress(addr net.Addr) BotAddress {
	if addr == nil {
		return BotAddress{}
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return BotAddress{Host: addr.String()}
	}
	p, _ := strconv.Atoi(port)
	return BotAddress{Host: host, Port: p}
}

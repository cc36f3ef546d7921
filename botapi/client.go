package botapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lab1702/robo-arena/game"
	"github.com/lab1702/robo-arena/server"
	"github.com/rs/zerolog"
)

// Tick is the decoded per-turn view of a bot
type Tick struct {
	RoundNumber  int
	TurnNumber   int
	EnemyCount   int
	BotState     game.BotState
	BulletStates []game.BulletState
	Events       []game.Event
}

type wireTick struct {
	RoundNumber  int                `json:"roundNumber"`
	TurnNumber   int                `json:"turnNumber"`
	EnemyCount   int                `json:"enemyCount"`
	BotState     game.BotState      `json:"botState"`
	BulletStates []game.BulletState `json:"bulletStates"`
	Events       []json.RawMessage  `json:"events"`
}

type wireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Handlers are the callbacks of a bot. Every callback runs on the goroutine
// that called Run; nil callbacks are skipped. Tick runs before the tick's
// events are dispatched and the intent is sent after both.
type Handlers struct {
	GameStarted  func(c *Client, e server.GameStartedEventForBot)
	RoundStarted func(c *Client, e server.RoundStartedEvent)
	Tick         func(c *Client, t *Tick)
	RoundEnded   func(c *Client, e server.RoundEndedEventForBot)
	GameEnded    func(c *Client, e server.GameEndedEventForBot)
	GameAborted  func(c *Client)
}

// ClientOption configures a Client
type ClientOption func(*Client)

func WithClientLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// WithoutAutoReady makes the bot send ready only when Ready is called
func WithoutAutoReady() ClientOption {
	return func(c *Client) { c.autoReady = false }
}

// Client is a connected bot
type Client struct {
	conn       *websocket.Conn
	log        zerolog.Logger
	handlers   Handlers
	dispatcher *Dispatcher
	intent     *Intent
	autoReady  bool

	sessionID string
	myID      int

	writeMu sync.Mutex
}

const handshakeTimeout = 5 * time.Second

// Dial connects to the server and completes the handshake
func Dial(ctx context.Context, url string, hs server.BotHandshake, h Handlers, opts ...ClientOption) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{
		conn:       conn,
		log:        zerolog.Nop(),
		handlers:   h,
		dispatcher: NewDispatcher(),
		intent:     NewIntent(),
		autoReady:  true,
	}
	for _, opt := range opts {
		opt(c)
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var msg wireMessage
	if err := conn.ReadJSON(&msg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read server handshake: %w", err)
	}
	if msg.Type != server.MsgTypeServerHandshake {
		conn.Close()
		return nil, fmt.Errorf("expected %s, got %s", server.MsgTypeServerHandshake, msg.Type)
	}
	var greeting server.ServerHandshake
	if err := json.Unmarshal(msg.Data, &greeting); err != nil {
		conn.Close()
		return nil, fmt.Errorf("decode server handshake: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	c.sessionID = greeting.SessionID
	hs.SessionID = greeting.SessionID
	if err := c.send(server.MsgTypeBotHandshake, hs); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// SessionID is the id the server assigned to this connection
func (c *Client) SessionID() string { return c.sessionID }

// MyID is the bot id in the current match, 0 before the first game starts
func (c *Client) MyID() int { return c.myID }

// Intent returns the pending intent. Only use it from a callback.
func (c *Client) Intent() *Intent { return c.intent }

// Dispatcher returns the event dispatch table
func (c *Client) Dispatcher() *Dispatcher { return c.dispatcher }

// Ready tells the server the bot can start
func (c *Client) Ready() error {
	return c.send(server.MsgTypeBotReady, struct{}{})
}

// SendIntent sends whatever changed in the intent since the last send
func (c *Client) SendIntent() error {
	return c.send(server.MsgTypeBotIntent, c.intent.Flush())
}

// Close closes the connection
func (c *Client) Close() error {
	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) send(msgType string, data interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(server.ServerMessage{Type: msgType, Data: data}); err != nil {
		return fmt.Errorf("send %s: %w", msgType, err)
	}
	return nil
}

// Run reads server messages until the connection closes or ctx is done
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	for {
		var msg wireMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if err := c.handle(msg); err != nil {
			c.log.Warn().Err(err).Str("type", msg.Type).Msg("Failed to handle server message")
		}
	}
}

func (c *Client) handle(msg wireMessage) error {
	switch msg.Type {
	case server.MsgTypeGameStartedForBot:
		var e server.GameStartedEventForBot
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			return err
		}
		c.myID = e.MyID
		c.intent = NewIntent()
		if c.handlers.GameStarted != nil {
			c.handlers.GameStarted(c, e)
		}
		if c.autoReady {
			return c.Ready()
		}

	case server.MsgTypeRoundStarted:
		var e server.RoundStartedEvent
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			return err
		}
		if c.handlers.RoundStarted != nil {
			c.handlers.RoundStarted(c, e)
		}

	case server.MsgTypeTickForBot:
		tick, err := decodeTick(msg.Data)
		if err != nil {
			return err
		}
		if c.handlers.Tick != nil {
			c.handlers.Tick(c, tick)
		}
		c.dispatcher.Dispatch(tick.Events)
		return c.SendIntent()

	case server.MsgTypeSkippedTurn:
		e, err := game.DecodeEvent(msg.Data)
		if err != nil {
			return err
		}
		c.dispatcher.Dispatch([]game.Event{e})

	case server.MsgTypeRoundEndedForBot:
		var e server.RoundEndedEventForBot
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			return err
		}
		if c.handlers.RoundEnded != nil {
			c.handlers.RoundEnded(c, e)
		}

	case server.MsgTypeGameEndedForBot:
		var e server.GameEndedEventForBot
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			return err
		}
		if c.handlers.GameEnded != nil {
			c.handlers.GameEnded(c, e)
		}

	case server.MsgTypeGameAborted:
		if c.handlers.GameAborted != nil {
			c.handlers.GameAborted(c)
		}

	default:
		c.log.Debug().Str("type", msg.Type).Msg("Ignoring server message")
	}
	return nil
}

func decodeTick(data json.RawMessage) (*Tick, error) {
	var w wireTick
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode tick: %w", err)
	}
	t := &Tick{
		RoundNumber:  w.RoundNumber,
		TurnNumber:   w.TurnNumber,
		EnemyCount:   w.EnemyCount,
		BotState:     w.BotState,
		BulletStates: w.BulletStates,
		Events:       make([]game.Event, 0, len(w.Events)),
	}
	for _, raw := range w.Events {
		e, err := game.DecodeEvent(raw)
		if err != nil {
			return nil, err
		}
		t.Events = append(t.Events, e)
	}
	return t, nil
}

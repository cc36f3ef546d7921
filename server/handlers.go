package server

import (
	"encoding/json"
	"html"
	"strings"

	"github.com/lab1702/robo-arena/game"
)

// sanitizeText trims and escapes a display string sent by a client
func sanitizeText(text string, maxLen int) string {
	text = strings.TrimSpace(text)
	// count runes so a multi-byte character is never split
	if runes := []rune(text); len(runes) > maxLen {
		text = string(runes[:maxLen])
	}
	// html.EscapeString escapes <, >, &, ' and "
	return html.EscapeString(text)
}

const (
	maxNameLength    = 64
	maxVersionLength = 32
)

// secretAccepted reports whether secret is in the configured list. An
// empty list accepts everything.
func secretAccepted(secrets []string, secret string) bool {
	if len(secrets) == 0 {
		return true
	}
	return contains(secrets, secret)
}

// handleRaw decodes one frame and dispatches it
func (s *Server) handleRaw(c *Client, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.Warn().Err(err).Int("client", c.ID).Msg("Dropping malformed message")
		return
	}
	s.handleMessage(c, msg)
}

// handleMessage processes a message from the client
func (s *Server) handleMessage(c *Client, msg ClientMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Recover from any panic to prevent disconnection
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Int("client", c.ID).Str("type", msg.Type).Msg("PANIC in handleMessage")
		}
	}()

	if c.closed {
		return
	}

	switch msg.Type {
	case MsgTypeBotHandshake:
		s.handleBotHandshake(c, msg.Data)
	case MsgTypeObserverHandshake:
		s.handleObserverHandshake(c, msg.Data, kindObserver)
	case MsgTypeControllerHandshake:
		s.handleObserverHandshake(c, msg.Data, kindController)
	case MsgTypeBotReady:
		if c.kind == kindBot {
			s.botReady(c)
		}
	case MsgTypeBotIntent:
		s.handleBotIntent(c, msg.Data)
	case MsgTypeStartGame, MsgTypeStopGame, MsgTypePauseGame, MsgTypeResumeGame,
		MsgTypeNextTurn, MsgTypeChangeTPS:
		s.handleControl(c, msg)
	default:
		s.log.Warn().Int("client", c.ID).Str("type", msg.Type).Msg("Unknown message type")
	}
}

func (s *Server) handleBotHandshake(c *Client, data json.RawMessage) {
	var hs BotHandshake
	if err := json.Unmarshal(data, &hs); err != nil {
		s.log.Warn().Err(err).Int("client", c.ID).Msg("Invalid bot handshake")
		return
	}
	if c.kind != kindUnknown {
		s.log.Warn().Int("client", c.ID).Stringer("kind", c.kind).Msg("Repeated handshake ignored")
		return
	}
	if hs.SessionID != "" && hs.SessionID != c.SessionID {
		c.reject("wrong session id")
		return
	}
	if !secretAccepted(s.cfg.BotSecrets, hs.Secret) {
		c.reject("wrong secret")
		return
	}

	hs.Name = sanitizeText(hs.Name, maxNameLength)
	hs.Version = sanitizeText(hs.Version, maxVersionLength)
	hs.TeamName = sanitizeText(hs.TeamName, maxNameLength)
	hs.TeamVersion = sanitizeText(hs.TeamVersion, maxVersionLength)
	hs.Secret = ""
	if !s.cfg.EnableInitialPosition {
		hs.InitialPosition = nil
	}

	c.kind = kindBot
	c.handshake = &hs
	s.log.Info().Int("client", c.ID).Str("name", hs.Name).Str("version", hs.Version).Msg("Bot joined")
	s.broadcastBotList()
}

func (s *Server) handleObserverHandshake(c *Client, data json.RawMessage, kind clientKind) {
	var hs ObserverHandshake
	if err := json.Unmarshal(data, &hs); err != nil {
		s.log.Warn().Err(err).Int("client", c.ID).Stringer("kind", kind).Msg("Invalid handshake")
		return
	}
	if c.kind != kindUnknown {
		s.log.Warn().Int("client", c.ID).Stringer("kind", c.kind).Msg("Repeated handshake ignored")
		return
	}
	if hs.SessionID != "" && hs.SessionID != c.SessionID {
		c.reject("wrong session id")
		return
	}
	if !secretAccepted(s.cfg.ControllerSecrets, hs.Secret) {
		c.reject("wrong secret")
		return
	}

	hs.Name = sanitizeText(hs.Name, maxNameLength)
	hs.Secret = ""
	c.kind = kind
	c.observer = &hs
	s.log.Info().Int("client", c.ID).Str("name", hs.Name).Stringer("kind", kind).Msg("Client joined")
	c.trySend(ServerMessage{Type: MsgTypeBotListUpdate, Data: BotListUpdate{Bots: s.botList()}})
}

func (s *Server) handleBotIntent(c *Client, data json.RawMessage) {
	if c.kind != kindBot {
		return
	}
	var intent game.BotIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		s.log.Warn().Err(err).Int("client", c.ID).Msg("Invalid bot intent")
		return
	}
	s.botIntent(c, &intent)
}

// handleControl runs a controller command
func (s *Server) handleControl(c *Client, msg ClientMessage) {
	if c.kind != kindController {
		s.log.Warn().Int("client", c.ID).Str("type", msg.Type).Msg("Control command from non-controller dropped")
		return
	}

	switch msg.Type {
	case MsgTypeStartGame:
		var req StartGame
		if len(msg.Data) > 0 && string(msg.Data) != "null" {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				s.log.Warn().Err(err).Msg("Invalid start-game")
				return
			}
		}
		s.startGame(req)
	case MsgTypeStopGame:
		s.stopGame()
	case MsgTypePauseGame:
		s.pauseGame()
	case MsgTypeResumeGame:
		s.resumeGame()
	case MsgTypeNextTurn:
		s.nextTurn()
	case MsgTypeChangeTPS:
		var req ChangeTPS
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.log.Warn().Err(err).Msg("Invalid change-tps")
			return
		}
		s.changeTPS(req.TPS)
	}
}

package server

import (
	"encoding/json"
	"time"

	"github.com/lab1702/robo-arena/game"
)

// Inbound message types
const (
	MsgTypeBotHandshake        = "bot-handshake"
	MsgTypeObserverHandshake   = "observer-handshake"
	MsgTypeControllerHandshake = "controller-handshake"
	MsgTypeBotReady            = "bot-ready"
	MsgTypeBotIntent           = "bot-intent"
	MsgTypeStartGame           = "start-game"
	MsgTypeStopGame            = "stop-game"
	MsgTypePauseGame           = "pause-game"
	MsgTypeResumeGame          = "resume-game"
	MsgTypeNextTurn            = "next-turn"
	MsgTypeChangeTPS           = "change-tps"
)

// Outbound message types
const (
	MsgTypeServerHandshake        = "server-handshake"
	MsgTypeBotListUpdate          = "bot-list-update"
	MsgTypeGameStartedForBot      = "game-started-event-for-bot"
	MsgTypeGameStartedForObserver = "game-started-event-for-observer"
	MsgTypeRoundStarted           = "round-started-event"
	MsgTypeRoundEndedForBot       = "round-ended-event-for-bot"
	MsgTypeRoundEndedForObserver  = "round-ended-event-for-observer"
	MsgTypeTickForBot             = "tick-event-for-bot"
	MsgTypeTickForObserver        = "tick-event-for-observer"
	MsgTypeSkippedTurn            = "skipped-turn-event"
	MsgTypeGameEndedForBot        = "game-ended-event-for-bot"
	MsgTypeGameEndedForObserver   = "game-ended-event-for-observer"
	MsgTypeGameAborted            = "game-aborted-event"
	MsgTypeGamePausedForObserver  = "game-paused-event-for-observer"
	MsgTypeGameResumedForObserver = "game-resumed-event-for-observer"
	MsgTypeTPSChanged             = "tps-changed-event"
)

// ProtocolVersion is reported in the server handshake
const ProtocolVersion = "1.0.0"

// ClientMessage represents a message from client to server
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ServerMessage represents a message from server to client
type ServerMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ServerHandshake is the first message on every connection
type ServerHandshake struct {
	SessionID string   `json:"sessionId"`
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	GameTypes []string `json:"gameTypes"`
}

// BotHandshake identifies a bot
type BotHandshake struct {
	SessionID       string                `json:"sessionId"`
	Name            string                `json:"name"`
	Version         string                `json:"version"`
	Authors         []string              `json:"authors,omitempty"`
	Description     string                `json:"description,omitempty"`
	GameTypes       []string              `json:"gameTypes,omitempty"`
	TeamID          int                   `json:"teamId,omitempty"`
	TeamName        string                `json:"teamName,omitempty"`
	TeamVersion     string                `json:"teamVersion,omitempty"`
	IsDroid         bool                  `json:"isDroid,omitempty"`
	Secret          string                `json:"secret,omitempty"`
	InitialPosition *game.InitialPosition `json:"initialPosition,omitempty"`
}

// ObserverHandshake identifies an observer or a controller
type ObserverHandshake struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
	Version   string `json:"version,omitempty"`
	Author    string `json:"author,omitempty"`
	Secret    string `json:"secret,omitempty"`
}

// BotAddress is how a controller selects bots for a match
type BotAddress struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// BotInfo describes a connected bot to observers and controllers
type BotInfo struct {
	SessionID   string   `json:"sessionId"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Authors     []string `json:"authors,omitempty"`
	GameTypes   []string `json:"gameTypes,omitempty"`
	TeamID      int      `json:"teamId,omitempty"`
	TeamName    string   `json:"teamName,omitempty"`
	TeamVersion string   `json:"teamVersion,omitempty"`
	IsDroid     bool     `json:"isDroid,omitempty"`
	BotAddress
}

type BotListUpdate struct {
	Bots []BotInfo `json:"bots"`
}

// GameSetupMessage is the wire form of game.GameSetup. Zero fields take the
// server default. Timeouts are in microseconds.
type GameSetupMessage struct {
	GameType                string  `json:"gameType,omitempty"`
	ArenaWidth              int     `json:"arenaWidth,omitempty"`
	ArenaHeight             int     `json:"arenaHeight,omitempty"`
	MinNumberOfParticipants int     `json:"minNumberOfParticipants,omitempty"`
	MaxNumberOfParticipants int     `json:"maxNumberOfParticipants,omitempty"`
	NumberOfRounds          int     `json:"numberOfRounds,omitempty"`
	GunCoolingRate          float64 `json:"gunCoolingRate,omitempty"`
	MaxInactivityTurns      int     `json:"maxInactivityTurns,omitempty"`
	TurnTimeout             int64   `json:"turnTimeout,omitempty"`
	ReadyTimeout            int64   `json:"readyTimeout,omitempty"`
	DefaultTurnsPerSecond   int     `json:"defaultTurnsPerSecond,omitempty"`
}

func toSetupMessage(s game.GameSetup) GameSetupMessage {
	return GameSetupMessage{
		GameType:                s.GameType,
		ArenaWidth:              s.ArenaWidth,
		ArenaHeight:             s.ArenaHeight,
		MinNumberOfParticipants: s.MinNumberOfParticipants,
		MaxNumberOfParticipants: s.MaxNumberOfParticipants,
		NumberOfRounds:          s.NumberOfRounds,
		GunCoolingRate:          s.GunCoolingRate,
		MaxInactivityTurns:      s.MaxInactivityTurns,
		TurnTimeout:             s.TurnTimeout.Microseconds(),
		ReadyTimeout:            s.ReadyTimeout.Microseconds(),
		DefaultTurnsPerSecond:   s.DefaultTurnsPerSecond,
	}
}

// apply overlays the non-zero fields of m onto base
func (m GameSetupMessage) apply(base game.GameSetup) game.GameSetup {
	if m.GameType != "" {
		base.GameType = m.GameType
	}
	if m.ArenaWidth != 0 {
		base.ArenaWidth = m.ArenaWidth
	}
	if m.ArenaHeight != 0 {
		base.ArenaHeight = m.ArenaHeight
	}
	if m.MinNumberOfParticipants != 0 {
		base.MinNumberOfParticipants = m.MinNumberOfParticipants
	}
	if m.MaxNumberOfParticipants != 0 {
		base.MaxNumberOfParticipants = m.MaxNumberOfParticipants
	}
	if m.NumberOfRounds != 0 {
		base.NumberOfRounds = m.NumberOfRounds
	}
	if m.GunCoolingRate != 0 {
		base.GunCoolingRate = m.GunCoolingRate
	}
	if m.MaxInactivityTurns != 0 {
		base.MaxInactivityTurns = m.MaxInactivityTurns
	}
	if m.TurnTimeout != 0 {
		base.TurnTimeout = time.Duration(m.TurnTimeout) * time.Microsecond
	}
	if m.ReadyTimeout != 0 {
		base.ReadyTimeout = time.Duration(m.ReadyTimeout) * time.Microsecond
	}
	if m.DefaultTurnsPerSecond != 0 {
		base.DefaultTurnsPerSecond = m.DefaultTurnsPerSecond
	}
	return base
}

// StartGame is sent by a controller. No addresses means every eligible bot.
type StartGame struct {
	GameSetup    *GameSetupMessage `json:"gameSetup,omitempty"`
	BotAddresses []BotAddress      `json:"botAddresses,omitempty"`
}

type ChangeTPS struct {
	TPS int `json:"tps"`
}

type GameStartedEventForBot struct {
	MyID            int                   `json:"myId"`
	TeammateIDs     []int                 `json:"teammateIds"`
	GameSetup       GameSetupMessage      `json:"gameSetup"`
	InitialPosition *game.InitialPosition `json:"initialPosition,omitempty"`
}

// ParticipantInfo is a bot in a running match as shown to observers
type ParticipantInfo struct {
	ID          int    `json:"id"`
	SessionID   string `json:"sessionId"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	TeamID      int    `json:"teamId,omitempty"`
	TeamName    string `json:"teamName,omitempty"`
	TeamVersion string `json:"teamVersion,omitempty"`
	IsDroid     bool   `json:"isDroid,omitempty"`
	BotAddress
}

type GameStartedEventForObserver struct {
	GameSetup    GameSetupMessage  `json:"gameSetup"`
	Participants []ParticipantInfo `json:"participants"`
}

type RoundStartedEvent struct {
	RoundNumber int `json:"roundNumber"`
}

type RoundEndedEventForBot struct {
	RoundNumber int                    `json:"roundNumber"`
	TurnNumber  int                    `json:"turnNumber"`
	Results     game.ParticipantResult `json:"results"`
}

type RoundEndedEventForObserver struct {
	RoundNumber int                      `json:"roundNumber"`
	TurnNumber  int                      `json:"turnNumber"`
	Results     []game.ParticipantResult `json:"results"`
}

// TickEventForBot is the private view of one turn: the bot's own state and
// bullets plus the events addressed to it
type TickEventForBot struct {
	RoundNumber  int                `json:"roundNumber"`
	TurnNumber   int                `json:"turnNumber"`
	EnemyCount   int                `json:"enemyCount"`
	BotState     game.BotState      `json:"botState"`
	BulletStates []game.BulletState `json:"bulletStates"`
	Events       []game.Event       `json:"events"`
}

// TickEventForObserver is the unredacted view of one turn
type TickEventForObserver struct {
	RoundNumber  int                `json:"roundNumber"`
	TurnNumber   int                `json:"turnNumber"`
	BotStates    []game.BotState    `json:"botStates"`
	BulletStates []game.BulletState `json:"bulletStates"`
	Events       []game.Event       `json:"events"`
}

type GameEndedEventForBot struct {
	NumberOfRounds int                    `json:"numberOfRounds"`
	Results        game.ParticipantResult `json:"results"`
}

type GameEndedEventForObserver struct {
	NumberOfRounds int                      `json:"numberOfRounds"`
	Results        []game.ParticipantResult `json:"results"`
}

type TPSChangedEvent struct {
	TPS int `json:"tps"`
}

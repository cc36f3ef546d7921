package game

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEvent is returned by DecodeEvent for an unrecognized type tag
var ErrUnknownEvent = errors.New("unknown event type")

// EventType tags each event kind on the wire and in dispatch tables
type EventType string

const (
	EventBotDeath        EventType = "BotDeathEvent"
	EventBotHitBot       EventType = "BotHitBotEvent"
	EventBotHitWall      EventType = "BotHitWallEvent"
	EventBulletFired     EventType = "BulletFiredEvent"
	EventBulletHitBot    EventType = "BulletHitBotEvent"
	EventBulletHitBullet EventType = "BulletHitBulletEvent"
	EventBulletHitWall   EventType = "BulletHitWallEvent"
	EventScannedBot      EventType = "ScannedBotEvent"
	EventWonRound        EventType = "WonRoundEvent"
	EventTeamMessage     EventType = "TeamMessageEvent"
	EventSkippedTurn     EventType = "SkippedTurnEvent"
)

// Event is anything that happened during a turn
type Event interface {
	Kind() EventType
	Turn() int
}

// EventHeader is embedded by every event; it carries the discriminator
type EventHeader struct {
	Type       EventType `json:"type"`
	TurnNumber int       `json:"turnNumber"`
}

func (h EventHeader) Kind() EventType { return h.Type }
func (h EventHeader) Turn() int       { return h.TurnNumber }

func header(t EventType, turn int) EventHeader {
	return EventHeader{Type: t, TurnNumber: turn}
}

type BotDeathEvent struct {
	EventHeader
	VictimID int `json:"victimId"`
}

type BotHitBotEvent struct {
	EventHeader
	BotID    int     `json:"botId"`
	VictimID int     `json:"victimId"`
	Energy   float64 `json:"energy"` // victim energy after the hit
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rammed   bool    `json:"rammed"`
}

type BotHitWallEvent struct {
	EventHeader
	VictimID int `json:"victimId"`
}

type BulletFiredEvent struct {
	EventHeader
	Bullet BulletState `json:"bullet"`
}

type BulletHitBotEvent struct {
	EventHeader
	VictimID int         `json:"victimId"`
	Bullet   BulletState `json:"bullet"`
	Damage   float64     `json:"damage"`
	Energy   float64     `json:"energy"` // victim energy after the hit
}

type BulletHitBulletEvent struct {
	EventHeader
	Bullet    BulletState `json:"bullet"`
	HitBullet BulletState `json:"hitBullet"`
}

type BulletHitWallEvent struct {
	EventHeader
	Bullet BulletState `json:"bullet"`
}

type ScannedBotEvent struct {
	EventHeader
	ScannedByBotID int     `json:"scannedByBotId"`
	ScannedBotID   int     `json:"scannedBotId"`
	Energy         float64 `json:"energy"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Direction      float64 `json:"direction"`
	Speed          float64 `json:"speed"`
}

type WonRoundEvent struct {
	EventHeader
}

type TeamMessageEvent struct {
	EventHeader
	SenderID    int    `json:"senderId"`
	Message     string `json:"message"`
	MessageType string `json:"messageType,omitempty"`
}

type SkippedTurnEvent struct {
	EventHeader
}

// NewSkippedTurnEvent is produced by the server, not the updater
func NewSkippedTurnEvent(turn int) *SkippedTurnEvent {
	return &SkippedTurnEvent{EventHeader: header(EventSkippedTurn, turn)}
}

// DecodeEvent turns one JSON event back into its concrete type
func DecodeEvent(data json.RawMessage) (Event, error) {
	var h EventHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("decode event header: %w", err)
	}

	var e Event
	switch h.Type {
	case EventBotDeath:
		e = &BotDeathEvent{}
	case EventBotHitBot:
		e = &BotHitBotEvent{}
	case EventBotHitWall:
		e = &BotHitWallEvent{}
	case EventBulletFired:
		e = &BulletFiredEvent{}
	case EventBulletHitBot:
		e = &BulletHitBotEvent{}
	case EventBulletHitBullet:
		e = &BulletHitBulletEvent{}
	case EventBulletHitWall:
		e = &BulletHitWallEvent{}
	case EventScannedBot:
		e = &ScannedBotEvent{}
	case EventWonRound:
		e = &WonRoundEvent{}
	case EventTeamMessage:
		e = &TeamMessageEvent{}
	case EventSkippedTurn:
		e = &SkippedTurnEvent{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, h.Type)
	}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", h.Type, err)
	}
	return e, nil
}

// Package botapi is a small Go client for writing bots: it keeps the bot's
// pending intent, dispatches tick events by priority and talks to the
// server over WebSocket.
package botapi

import (
	"errors"
	"fmt"
	"math"

	"github.com/lab1702/robo-arena/game"
)

// ErrNaN is returned by every setter given a NaN
var ErrNaN = errors.New("value is NaN")

// ErrTooManyMessages is returned when more team messages are queued than a turn allows
var ErrTooManyMessages = errors.New("too many team messages this turn")

// ErrMessageTooLarge is returned for a team message over the size limit
var ErrMessageTooLarge = errors.New("team message too large")

// Intent collects what the bot wants to do next turn. Out-of-range values
// are clamped and the clamped value is what gets stored and sent. Limits
// set with the SetMax* methods bound every later setter.
type Intent struct {
	maxSpeed         float64
	maxTurnRate      float64
	maxGunTurnRate   float64
	maxRadarTurnRate float64

	targetSpeed   float64
	turnRate      float64
	gunTurnRate   float64
	radarTurnRate float64
	firepower     float64

	pending game.BotIntent
}

// NewIntent returns an intent bounded by the engine limits
func NewIntent() *Intent {
	return &Intent{
		maxSpeed:         game.MaxSpeed,
		maxTurnRate:      game.MaxTurnRate,
		maxGunTurnRate:   game.MaxGunTurnRate,
		maxRadarTurnRate: game.MaxRadarTurnRate,
	}
}

func checkNaN(name string, v float64) error {
	if math.IsNaN(v) {
		return fmt.Errorf("%s: %w", name, ErrNaN)
	}
	return nil
}

// SetTargetSpeed sets the speed the bot accelerates or brakes towards
func (i *Intent) SetTargetSpeed(v float64) error {
	if err := checkNaN("target speed", v); err != nil {
		return err
	}
	i.targetSpeed = game.Clamp(v, -i.maxSpeed, i.maxSpeed)
	i.pending.TargetSpeed = ptr(i.targetSpeed)
	return nil
}

// SetTurnRate sets the body turn rate in degrees per turn
func (i *Intent) SetTurnRate(v float64) error {
	if err := checkNaN("turn rate", v); err != nil {
		return err
	}
	i.turnRate = game.Clamp(v, -i.maxTurnRate, i.maxTurnRate)
	i.pending.TurnRate = ptr(i.turnRate)
	return nil
}

// SetGunTurnRate sets the gun turn rate in degrees per turn
func (i *Intent) SetGunTurnRate(v float64) error {
	if err := checkNaN("gun turn rate", v); err != nil {
		return err
	}
	i.gunTurnRate = game.Clamp(v, -i.maxGunTurnRate, i.maxGunTurnRate)
	i.pending.GunTurnRate = ptr(i.gunTurnRate)
	return nil
}

// SetRadarTurnRate sets the radar turn rate in degrees per turn
func (i *Intent) SetRadarTurnRate(v float64) error {
	if err := checkNaN("radar turn rate", v); err != nil {
		return err
	}
	i.radarTurnRate = game.Clamp(v, -i.maxRadarTurnRate, i.maxRadarTurnRate)
	i.pending.RadarTurnRate = ptr(i.radarTurnRate)
	return nil
}

// SetFirepower asks the gun to fire. Values under the minimum firepower
// do not fire.
func (i *Intent) SetFirepower(v float64) error {
	if err := checkNaN("firepower", v); err != nil {
		return err
	}
	i.firepower = game.Clamp(v, 0, game.MaxFirepower)
	i.pending.Firepower = ptr(i.firepower)
	return nil
}

// SetMaxSpeed limits the target speed. The current target speed is
// clamped into the new limit.
func (i *Intent) SetMaxSpeed(v float64) error {
	if err := checkNaN("max speed", v); err != nil {
		return err
	}
	i.maxSpeed = game.Clamp(v, 0, game.MaxSpeed)
	if math.Abs(i.targetSpeed) > i.maxSpeed {
		return i.SetTargetSpeed(i.targetSpeed)
	}
	return nil
}

// SetMaxTurnRate limits the body turn rate
func (i *Intent) SetMaxTurnRate(v float64) error {
	if err := checkNaN("max turn rate", v); err != nil {
		return err
	}
	i.maxTurnRate = game.Clamp(v, 0, game.MaxTurnRate)
	if math.Abs(i.turnRate) > i.maxTurnRate {
		return i.SetTurnRate(i.turnRate)
	}
	return nil
}

// SetMaxGunTurnRate limits the gun turn rate
func (i *Intent) SetMaxGunTurnRate(v float64) error {
	if err := checkNaN("max gun turn rate", v); err != nil {
		return err
	}
	i.maxGunTurnRate = game.Clamp(v, 0, game.MaxGunTurnRate)
	if math.Abs(i.gunTurnRate) > i.maxGunTurnRate {
		return i.SetGunTurnRate(i.gunTurnRate)
	}
	return nil
}

// SetMaxRadarTurnRate limits the radar turn rate
func (i *Intent) SetMaxRadarTurnRate(v float64) error {
	if err := checkNaN("max radar turn rate", v); err != nil {
		return err
	}
	i.maxRadarTurnRate = game.Clamp(v, 0, game.MaxRadarTurnRate)
	if math.Abs(i.radarTurnRate) > i.maxRadarTurnRate {
		return i.SetRadarTurnRate(i.radarTurnRate)
	}
	return nil
}

func (i *Intent) MaxSpeed() float64         { return i.maxSpeed }
func (i *Intent) MaxTurnRate() float64      { return i.maxTurnRate }
func (i *Intent) MaxGunTurnRate() float64   { return i.maxGunTurnRate }
func (i *Intent) MaxRadarTurnRate() float64 { return i.maxRadarTurnRate }
func (i *Intent) TargetSpeed() float64      { return i.targetSpeed }
func (i *Intent) TurnRate() float64         { return i.turnRate }
func (i *Intent) GunTurnRate() float64      { return i.gunTurnRate }
func (i *Intent) RadarTurnRate() float64    { return i.radarTurnRate }
func (i *Intent) Firepower() float64        { return i.firepower }

func (i *Intent) SetAdjustGunForBodyTurn(v bool)   { i.pending.AdjustGunForBodyTurn = ptr(v) }
func (i *Intent) SetAdjustRadarForBodyTurn(v bool) { i.pending.AdjustRadarForBodyTurn = ptr(v) }
func (i *Intent) SetAdjustRadarForGunTurn(v bool)  { i.pending.AdjustRadarForGunTurn = ptr(v) }

// Rescan repeats last turn's scan arc if the radar did not move
func (i *Intent) Rescan() { i.pending.Rescan = ptr(true) }

func (i *Intent) SetBodyColor(c string)   { i.pending.BodyColor = ptr(c) }
func (i *Intent) SetTurretColor(c string) { i.pending.TurretColor = ptr(c) }
func (i *Intent) SetRadarColor(c string)  { i.pending.RadarColor = ptr(c) }
func (i *Intent) SetBulletColor(c string) { i.pending.BulletColor = ptr(c) }
func (i *Intent) SetScanColor(c string)   { i.pending.ScanColor = ptr(c) }
func (i *Intent) SetTracksColor(c string) { i.pending.TracksColor = ptr(c) }
func (i *Intent) SetGunColor(c string)    { i.pending.GunColor = ptr(c) }

// SendTeamMessage queues a message for a teammate; receiverID 0 broadcasts
// to the whole team
func (i *Intent) SendTeamMessage(receiverID int, messageType, message string) error {
	if len(i.pending.TeamMessages) >= game.MaxTeamMessagesPerTurn {
		return ErrTooManyMessages
	}
	if len(message) > game.MaxTeamMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(message))
	}
	i.pending.TeamMessages = append(i.pending.TeamMessages, game.TeamMessage{
		ReceiverID:  receiverID,
		MessageType: messageType,
		Message:     message,
	})
	return nil
}

// Flush returns the fields changed since the last flush and starts a new
// overlay. Firepower is one-shot on the server, so it is resent only when
// set again.
func (i *Intent) Flush() *game.BotIntent {
	out := i.pending
	i.pending = game.BotIntent{}
	return &out
}

func ptr[T any](v T) *T { return &v }

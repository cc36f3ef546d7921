package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidSetup is returned for a game setup that cannot be played
	ErrInvalidSetup = errors.New("invalid game setup")
	// ErrArenaTooSmall is returned at round start when the arena cannot hold all bots
	ErrArenaTooSmall = errors.New("arena too small for participants")
	// ErrGameEnded is returned by Update once the last round has finished
	ErrGameEnded = errors.New("game has ended")
)

// Arena is the playing field; fixed for a match
type Arena struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// GameSetup holds the rules of a match
type GameSetup struct {
	GameType                string        `json:"gameType"`
	ArenaWidth              int           `json:"arenaWidth"`
	ArenaHeight             int           `json:"arenaHeight"`
	MinNumberOfParticipants int           `json:"minNumberOfParticipants"`
	MaxNumberOfParticipants int           `json:"maxNumberOfParticipants,omitempty"` // 0 = no limit
	NumberOfRounds          int           `json:"numberOfRounds"`
	GunCoolingRate          float64       `json:"gunCoolingRate"`
	MaxInactivityTurns      int           `json:"maxInactivityTurns"`
	TurnTimeout             time.Duration `json:"-"` // encoded in microseconds
	ReadyTimeout            time.Duration `json:"-"` // encoded in microseconds
	DefaultTurnsPerSecond   int           `json:"defaultTurnsPerSecond"`
}

// DefaultGameSetup returns the classic setup
func DefaultGameSetup() GameSetup {
	return GameSetup{
		GameType:                DefaultGameType,
		ArenaWidth:              DefaultArenaWidth,
		ArenaHeight:             DefaultArenaHeight,
		MinNumberOfParticipants: DefaultMinParticipants,
		NumberOfRounds:          DefaultNumberOfRounds,
		GunCoolingRate:          DefaultGunCoolingRate,
		MaxInactivityTurns:      DefaultMaxInactivityTurns,
		TurnTimeout:             DefaultTurnTimeout,
		ReadyTimeout:            DefaultReadyTimeout,
		DefaultTurnsPerSecond:   DefaultTurnsPerSecond,
	}
}

type setupJSON GameSetup

type setupWire struct {
	setupJSON
	TurnTimeout  int64 `json:"turnTimeout"`
	ReadyTimeout int64 `json:"readyTimeout"`
}

// MarshalJSON writes the timeouts in microseconds like the wire protocol
func (s GameSetup) MarshalJSON() ([]byte, error) {
	return json.Marshal(setupWire{
		setupJSON:    setupJSON(s),
		TurnTimeout:  s.TurnTimeout.Microseconds(),
		ReadyTimeout: s.ReadyTimeout.Microseconds(),
	})
}

func (s *GameSetup) UnmarshalJSON(data []byte) error {
	var w setupWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = GameSetup(w.setupJSON)
	s.TurnTimeout = time.Duration(w.TurnTimeout) * time.Microsecond
	s.ReadyTimeout = time.Duration(w.ReadyTimeout) * time.Microsecond
	return nil
}

// Arena returns the arena described by the setup
func (s GameSetup) Arena() Arena {
	return Arena{Width: s.ArenaWidth, Height: s.ArenaHeight}
}

// Validate checks that the setup describes a playable match
func (s GameSetup) Validate() error {
	switch {
	case s.ArenaWidth <= 0 || s.ArenaHeight <= 0:
		return fmt.Errorf("%w: arena %dx%d", ErrInvalidSetup, s.ArenaWidth, s.ArenaHeight)
	case s.NumberOfRounds <= 0:
		return fmt.Errorf("%w: %d rounds", ErrInvalidSetup, s.NumberOfRounds)
	case s.MinNumberOfParticipants < 1:
		return fmt.Errorf("%w: min participants %d", ErrInvalidSetup, s.MinNumberOfParticipants)
	case s.MaxNumberOfParticipants != 0 && s.MaxNumberOfParticipants < s.MinNumberOfParticipants:
		return fmt.Errorf("%w: max participants %d below min %d", ErrInvalidSetup, s.MaxNumberOfParticipants, s.MinNumberOfParticipants)
	case s.GunCoolingRate <= 0:
		return fmt.Errorf("%w: gun cooling rate %v", ErrInvalidSetup, s.GunCoolingRate)
	case s.TurnTimeout < 0 || s.ReadyTimeout < 0:
		return fmt.Errorf("%w: negative timeout", ErrInvalidSetup)
	}
	return nil
}

// Colors are cosmetic; empty strings mean "unchanged / default"
type Colors struct {
	Body   string `json:"bodyColor,omitempty"`
	Turret string `json:"turretColor,omitempty"`
	Radar  string `json:"radarColor,omitempty"`
	Bullet string `json:"bulletColor,omitempty"`
	Scan   string `json:"scanColor,omitempty"`
	Tracks string `json:"tracksColor,omitempty"`
	Gun    string `json:"gunColor,omitempty"`
}

// InitialPosition is a debug request for where a bot starts a round.
// Nil fields are randomized.
type InitialPosition struct {
	X         *float64 `json:"x,omitempty"`
	Y         *float64 `json:"y,omitempty"`
	Direction *float64 `json:"direction,omitempty"`
}

// Participant is a bot entering a match
type Participant struct {
	ID              int              `json:"id"`
	Name            string           `json:"name"`
	Version         string           `json:"version"`
	TeamID          int              `json:"teamId,omitempty"` // 0 = no team
	TeamName        string           `json:"teamName,omitempty"`
	TeamVersion     string           `json:"teamVersion,omitempty"`
	IsDroid         bool             `json:"isDroid,omitempty"`
	InitialPosition *InitialPosition `json:"initialPosition,omitempty"`
}

// ScoreID returns the id the participant is scored under: its team if teamed
func (p Participant) ScoreID() int {
	if p.TeamID != 0 {
		return p.TeamID
	}
	return p.ID
}

// BotState is the frozen state of a bot at the end of a turn
type BotState struct {
	ID              int     `json:"id"`
	IsDroid         bool    `json:"isDroid,omitempty"`
	Energy          float64 `json:"energy"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	Direction       float64 `json:"direction"`
	GunDirection    float64 `json:"gunDirection"`
	RadarDirection  float64 `json:"radarDirection"`
	RadarSweep      float64 `json:"radarSweep"`
	Speed           float64 `json:"speed"`
	TurnRate        float64 `json:"turnRate"`
	GunTurnRate     float64 `json:"gunTurnRate"`
	RadarTurnRate   float64 `json:"radarTurnRate"`
	GunHeat         float64 `json:"gunHeat"`
	EnemyCount      int     `json:"enemyCount"`
	IsDisabled      bool    `json:"isDisabled,omitempty"`
	Colors
}

// BulletState is the frozen state of a bullet at the end of a turn
type BulletState struct {
	ID        int     `json:"bulletId"`
	OwnerID   int     `json:"ownerId"`
	Power     float64 `json:"power"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Direction float64 `json:"direction"`
	Color     string  `json:"color,omitempty"`
}

// Turn is one simulation step
type Turn struct {
	TurnNumber     int             `json:"turnNumber"`
	Bots           []BotState      `json:"botStates"`
	Bullets        []BulletState   `json:"bulletStates"`
	BotEvents      map[int][]Event `json:"-"`
	ObserverEvents []Event         `json:"events"`
}

// Bot returns the snapshot of the given bot, if alive in this turn
func (t *Turn) Bot(id int) (BotState, bool) {
	for _, b := range t.Bots {
		if b.ID == id {
			return b, true
		}
	}
	return BotState{}, false
}

// BulletsOf returns the bullets owned by the given bot
func (t *Turn) BulletsOf(id int) []BulletState {
	bullets := make([]BulletState, 0)
	for _, b := range t.Bullets {
		if b.OwnerID == id {
			bullets = append(bullets, b)
		}
	}
	return bullets
}

// Round is an ordered sequence of turns
type Round struct {
	RoundNumber int     `json:"roundNumber"`
	Turns       []*Turn `json:"-"`
	RoundEnded  bool    `json:"roundEnded"`
}

// LastTurn returns the most recent turn, or nil
func (r *Round) LastTurn() *Turn {
	if len(r.Turns) == 0 {
		return nil
	}
	return r.Turns[len(r.Turns)-1]
}

// GameState is an ordered sequence of rounds
type GameState struct {
	Arena     Arena    `json:"arena"`
	Rounds    []*Round `json:"-"`
	GameEnded bool     `json:"gameEnded"`
}

// LastRound returns the most recent round, or nil
func (g *GameState) LastRound() *Round {
	if len(g.Rounds) == 0 {
		return nil
	}
	return g.Rounds[len(g.Rounds)-1]
}

// LastTurn returns the most recent turn of the most recent round, or nil
func (g *GameState) LastTurn() *Turn {
	if r := g.LastRound(); r != nil {
		return r.LastTurn()
	}
	return nil
}

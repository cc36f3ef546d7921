package botapi

import (
	"sort"

	"github.com/lab1702/robo-arena/game"
)

// Handler reacts to one event
type Handler func(e game.Event)

// Default priorities, highest first
var defaultPriorities = map[game.EventType]int{
	game.EventWonRound:        150,
	game.EventSkippedTurn:     140,
	game.EventTeamMessage:     110,
	game.EventBotDeath:        100,
	game.EventBulletHitWall:   90,
	game.EventBulletHitBullet: 80,
	game.EventBulletHitBot:    70,
	game.EventBulletFired:     60,
	game.EventBotHitWall:      40,
	game.EventBotHitBot:       30,
	game.EventScannedBot:      20,
}

// DefaultPriority returns the priority On registers a handler with
func DefaultPriority(kind game.EventType) int {
	return defaultPriorities[kind]
}

type registration struct {
	kind     game.EventType
	priority int
	seq      int
	handler  Handler
}

// Dispatcher is a single table of event handlers keyed by event type.
// Events of a tick are delivered in descending handler priority; equal
// priorities keep registration order, and one handler sees its events in
// the order they happened.
type Dispatcher struct {
	table []registration
	seq   int
}

// NewDispatcher returns an empty dispatch table
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Register adds a handler with an explicit priority
func (d *Dispatcher) Register(kind game.EventType, priority int, h Handler) {
	d.seq++
	d.table = append(d.table, registration{kind: kind, priority: priority, seq: d.seq, handler: h})
	sort.SliceStable(d.table, func(i, j int) bool {
		if d.table[i].priority != d.table[j].priority {
			return d.table[i].priority > d.table[j].priority
		}
		return d.table[i].seq < d.table[j].seq
	})
}

// On adds a handler with the default priority of its event type
func (d *Dispatcher) On(kind game.EventType, h Handler) {
	d.Register(kind, DefaultPriority(kind), h)
}

// Dispatch delivers the events of one tick
func (d *Dispatcher) Dispatch(events []game.Event) {
	for _, r := range d.table {
		for _, e := range events {
			if e.Kind() == r.kind {
				r.handler(e)
			}
		}
	}
}

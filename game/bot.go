package game

import "math"

// bot is the mutable working copy of a bot used while a turn is computed
type bot struct {
	id          int
	participant Participant

	energy         float64
	x, y           float64
	direction      float64
	gunDirection   float64
	radarDirection float64
	speed          float64

	// Rates actually applied this turn (after limits and adjustments)
	turnRate      float64
	gunTurnRate   float64
	radarTurnRate float64

	// Scan arc swept this turn
	scanStart float64
	scanEnd   float64

	gunHeat         float64
	hitWallLastTurn bool
	colors          Colors
}

func newBot(p Participant, x, y, direction float64) *bot {
	energy := StartEnergy
	if p.IsDroid {
		energy = DroidStartEnergy
	}
	direction = NormalAbsoluteAngle(direction)
	return &bot{
		id:             p.ID,
		participant:    p,
		energy:         energy,
		x:              x,
		y:              y,
		direction:      direction,
		gunDirection:   direction,
		radarDirection: direction,
		scanStart:      direction,
		scanEnd:        direction,
		gunHeat:        InitialGunHeat,
	}
}

func (b *bot) isDisabled() bool { return b.energy == 0 }
func (b *bot) isDead() bool     { return b.energy < 0 }
func (b *bot) isDroid() bool    { return b.participant.IsDroid }
func (b *bot) scoreID() int     { return b.participant.ScoreID() }
func (b *bot) teamID() int      { return b.participant.TeamID }
func (b *bot) position() Point  { return Point{X: b.x, Y: b.y} }

func (b *bot) isTeammate(other *bot) bool {
	return b.teamID() != 0 && b.teamID() == other.teamID()
}

func (b *bot) addDamage(damage float64) {
	b.energy -= damage
}

func (b *bot) addEnergy(energy float64) {
	b.energy = math.Min(b.energy+energy, MaxEnergy)
}

// isRamming reports whether b is driving into victim: heading within 90
// degrees of the bearing to the victim when moving forward, or facing away
// when reversing.
func (b *bot) isRamming(victim *bot) bool {
	bearing := NormalRelativeAngle(DirectionTo(b.x, b.y, victim.x, victim.y) - b.direction)
	ahead := bearing > -90 && bearing < 90
	behind := bearing < -90 || bearing > 90
	return (b.speed > 0 && ahead) || (b.speed < 0 && behind)
}

// bounceBack moves b the given distance directly away from other
func (b *bot) bounceBack(other *bot, dist float64) {
	if dist == 0 {
		return
	}
	rad := ToRadians(DirectionTo(other.x, other.y, b.x, b.y))
	b.x += dist * math.Cos(rad)
	b.y += dist * math.Sin(rad)
}

// constrain keeps the bounding circle inside the arena; reports whether it had to move
func (b *bot) constrain(arena Arena) bool {
	x := Clamp(b.x, BotBoundingCircleRadius, float64(arena.Width)-BotBoundingCircleRadius)
	y := Clamp(b.y, BotBoundingCircleRadius, float64(arena.Height)-BotBoundingCircleRadius)
	moved := x != b.x || y != b.y
	b.x, b.y = x, y
	return moved
}

func (b *bot) applyColors(intent *BotIntent) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&b.colors.Body, intent.BodyColor)
	set(&b.colors.Turret, intent.TurretColor)
	set(&b.colors.Radar, intent.RadarColor)
	set(&b.colors.Bullet, intent.BulletColor)
	set(&b.colors.Scan, intent.ScanColor)
	set(&b.colors.Tracks, intent.TracksColor)
	set(&b.colors.Gun, intent.GunColor)
}

func (b *bot) snapshot(enemyCount int) BotState {
	return BotState{
		ID:             b.id,
		IsDroid:        b.isDroid(),
		Energy:         b.energy,
		X:              b.x,
		Y:              b.y,
		Direction:      b.direction,
		GunDirection:   b.gunDirection,
		RadarDirection: b.radarDirection,
		RadarSweep:     NormalRelativeAngle(b.scanEnd - b.scanStart),
		Speed:          b.speed,
		TurnRate:       b.turnRate,
		GunTurnRate:    b.gunTurnRate,
		RadarTurnRate:  b.radarTurnRate,
		GunHeat:        b.gunHeat,
		EnemyCount:     enemyCount,
		IsDisabled:     b.isDisabled(),
		Colors:         b.colors,
	}
}

package game

import (
	"math"
	"time"
)

// Engine-wide rules
const (
	// Bots
	BotBoundingCircleRadius   = 18.0
	BotBoundingCircleDiameter = 2 * BotBoundingCircleRadius
	ScanRadius                = 1200.0
	StartEnergy               = 100.0
	DroidStartEnergy          = 120.0
	MaxEnergy                 = 1e6
	InitialGunHeat            = 3.0

	// Movement
	MaxSpeed     = 8.0
	Acceleration = 1.0
	Deceleration = 2.0

	// Turn rates in degrees per turn
	MaxTurnRate      = 10.0
	MaxGunTurnRate   = 20.0
	MaxRadarTurnRate = 45.0

	// Firing
	MinFirepower = 0.1
	MaxFirepower = 3.0

	// Damage
	RamDamage     = 0.6
	InactivityZap = 0.1

	// Start cell size used when placing bots at round start
	StartCellSize = 50

	// Team messages
	MaxTeamMessagesPerTurn = 4
	MaxTeamMessageSize     = 32 * 1024
)

// Score weights
const (
	ScorePerSurvival          = 50.0
	ScorePerLastSurvivor      = 10.0
	ScorePerBulletDamage      = 1.0
	BulletKillBonusPercentage = 0.20
	ScorePerRamDamage         = 2.0
	RamKillBonusPercentage    = 0.30
)

// Game setup defaults
const (
	DefaultGameType           = "classic"
	DefaultArenaWidth         = 800
	DefaultArenaHeight        = 600
	DefaultNumberOfRounds     = 10
	DefaultGunCoolingRate     = 0.1
	DefaultMaxInactivityTurns = 450
	DefaultTurnTimeout        = 30 * time.Millisecond
	DefaultReadyTimeout       = time.Second
	DefaultMinParticipants    = 2
	DefaultTurnsPerSecond     = 30
)

// BulletSpeed returns the speed (units per turn) of a bullet fired with the given power
func BulletSpeed(firepower float64) float64 {
	return 20 - 3*firepower
}

// GunHeat returns the heat added to the gun when firing with the given power
func GunHeat(firepower float64) float64 {
	return 1 + firepower/5
}

// BulletDamage returns the damage dealt by a bullet; power above 1 adds an extra penalty
func BulletDamage(firepower float64) float64 {
	damage := 4 * firepower
	if firepower > 1 {
		damage += 2 * (firepower - 1)
	}
	return damage
}

// BulletHitEnergyGain returns the energy returned to the shooter on a hit
func BulletHitEnergyGain(firepower float64) float64 {
	return 3 * firepower
}

// WallDamage returns damage taken when hitting a wall at the given speed
func WallDamage(speed float64) float64 {
	return math.Max(math.Abs(speed)/2-1, 0)
}

// MaxBodyTurnRate returns the body turn rate limit at the given speed
func MaxBodyTurnRate(speed float64) float64 {
	return MaxTurnRate - 0.75*math.Abs(Clamp(speed, -MaxSpeed, MaxSpeed))
}

// NewSpeed moves current speed towards target speed; accelerating away from
// zero gains at most Acceleration per turn, slowing down loses up to
// Deceleration per turn.
func NewSpeed(current, target float64) float64 {
	target = Clamp(target, -MaxSpeed, MaxSpeed)
	if current < 0 {
		return -NewSpeed(-current, -target)
	}

	// current >= 0 from here on
	if target >= current {
		return math.Min(current+Acceleration, target)
	}
	if target >= 0 || current >= Deceleration {
		return math.Max(current-Deceleration, target)
	}

	// Braking through zero: use the rest of the turn to accelerate backwards
	remaining := 1 - current/Deceleration
	return math.Max(-Acceleration*remaining, target)
}

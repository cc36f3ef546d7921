package game

import "math"

// bullet is a live projectile. Its position is never stored: it is derived
// from the start point, direction, power and the number of ticks flown.
type bullet struct {
	id        int
	ownerID   int
	power     float64
	direction float64
	startX    float64
	startY    float64
	tick      int
	color     string
}

func (b *bullet) speed() float64 {
	return BulletSpeed(b.power)
}

// positionAt returns where the bullet is after the given number of ticks
func (b *bullet) positionAt(tick int) Point {
	return BulletPosition(b.startX, b.startY, b.direction, b.power, tick)
}

func (b *bullet) position() Point     { return b.positionAt(b.tick) }
func (b *bullet) prevPosition() Point { return b.positionAt(b.tick - 1) }

func (b *bullet) isOutside(arena Arena) bool {
	p := b.position()
	return p.X < 0 || p.Y < 0 || p.X > float64(arena.Width) || p.Y > float64(arena.Height)
}

func (b *bullet) snapshot() BulletState {
	p := b.position()
	return BulletState{
		ID:        b.id,
		OwnerID:   b.ownerID,
		Power:     b.power,
		X:         p.X,
		Y:         p.Y,
		Direction: b.direction,
		Color:     b.color,
	}
}

// BulletPosition is start + unit(direction) * speed(power) * tick
func BulletPosition(startX, startY, direction, power float64, tick int) Point {
	dist := BulletSpeed(power) * float64(tick)
	rad := ToRadians(direction)
	return Point{
		X: startX + dist*math.Cos(rad),
		Y: startY + dist*math.Sin(rad),
	}
}

package game

import "math"

// Epsilon is the tolerance used by IsNearZero for speed, turn-rate and energy checks.
const Epsilon = 1e-5

// Point is a position in the arena. Angles are in degrees, 0 pointing east,
// increasing counter-clockwise (y axis pointing up).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance calculates distance between two points
func Distance(x1, y1, x2, y2 float64) float64 {
	dx := x2 - x1
	dy := y2 - y1
	return math.Sqrt(dx*dx + dy*dy)
}

// IsNearZero reports whether v is within Epsilon of zero
func IsNearZero(v float64) bool {
	return math.Abs(v) < Epsilon
}

// NormalAbsoluteAngle keeps angle (degrees) within [0, 360)
func NormalAbsoluteAngle(angle float64) float64 {
	angle = math.Mod(angle, 360)
	if angle < 0 {
		angle += 360
	}
	// math.Mod of a tiny negative value can round back up to 360
	if angle >= 360 {
		angle = 0
	}
	return angle
}

// NormalRelativeAngle keeps angle (degrees) within [-180, 180)
func NormalRelativeAngle(angle float64) float64 {
	angle = NormalAbsoluteAngle(angle)
	if angle >= 180 {
		angle -= 360
	}
	return angle
}

// ToRadians converts degrees to radians
func ToRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// ToDegrees converts radians to degrees
func ToDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// DirectionTo returns the absolute direction (degrees) from (x1,y1) towards (x2,y2)
func DirectionTo(x1, y1, x2, y2 float64) float64 {
	return NormalAbsoluteAngle(ToDegrees(math.Atan2(y2-y1, x2-x1)))
}

// Clamp bounds v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// IsLineIntersectingCircle reports whether the segment (x1,y1)-(x2,y2) touches
// the circle centered at (cx,cy) with radius r.
func IsLineIntersectingCircle(x1, y1, x2, y2, cx, cy, r float64) bool {
	dx := x2 - x1
	dy := y2 - y1
	lenSq := dx*dx + dy*dy

	// Closest point on the segment to the circle center
	t := 0.0
	if lenSq > 0 {
		t = Clamp(((cx-x1)*dx+(cy-y1)*dy)/lenSq, 0, 1)
	}
	px := x1 + t*dx
	py := y1 + t*dy

	return Distance(px, py, cx, cy) <= r
}

// IsLineIntersectingLine reports whether segment a1-a2 intersects segment b1-b2.
// Collinear overlapping segments count as intersecting.
func IsLineIntersectingLine(a1, a2, b1, b2 Point) bool {
	d1 := cross(b1, b2, a1)
	d2 := cross(b1, b2, a2)
	d3 := cross(a1, a2, b1)
	d4 := cross(a1, a2, b2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	return (d1 == 0 && onSegment(b1, b2, a1)) ||
		(d2 == 0 && onSegment(b1, b2, a2)) ||
		(d3 == 0 && onSegment(a1, a2, b1)) ||
		(d4 == 0 && onSegment(a1, a2, b2))
}

// cross is the z component of (b - a) x (c - a)
func cross(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// onSegment assumes p is collinear with a-b
func onSegment(a, b, p Point) bool {
	return math.Min(a.X, b.X) <= p.X && p.X <= math.Max(a.X, b.X) &&
		math.Min(a.Y, b.Y) <= p.Y && p.Y <= math.Max(a.Y, b.Y)
}

// IsCircleIntersectingCircleSector reports whether the circle (center, radius)
// touches the circle sector centered at sectorCenter with sectorRadius, swept
// from angle1 to angle2 (degrees) the short way round. A sector without width
// degrades to a ray of length sectorRadius.
func IsCircleIntersectingCircleSector(center Point, radius float64, sectorCenter Point, sectorRadius, angle1, angle2 float64) bool {
	dist := Distance(center.X, center.Y, sectorCenter.X, sectorCenter.Y)
	if dist > sectorRadius+radius {
		return false
	}
	// Sector apex inside the circle
	if dist <= radius {
		return true
	}

	start := NormalAbsoluteAngle(angle1)
	sweep := NormalRelativeAngle(angle2 - angle1)
	if sweep < 0 {
		start = NormalAbsoluteAngle(start + sweep)
		sweep = -sweep
	}

	if !IsNearZero(sweep) {
		// Circle center within the arc and reach
		if dist <= sectorRadius && angleWithin(DirectionTo(sectorCenter.X, sectorCenter.Y, center.X, center.Y), start, sweep) {
			return true
		}
	}

	// Either bounding edge of the sector touching the circle
	for _, a := range [2]float64{start, start + sweep} {
		rad := ToRadians(a)
		ex := sectorCenter.X + sectorRadius*math.Cos(rad)
		ey := sectorCenter.Y + sectorRadius*math.Sin(rad)
		if IsLineIntersectingCircle(sectorCenter.X, sectorCenter.Y, ex, ey, center.X, center.Y, radius) {
			return true
		}
	}

	if IsNearZero(sweep) {
		return false
	}

	// Circle crossing the outer arc away from both edges
	if dist > sectorRadius {
		dir := DirectionTo(sectorCenter.X, sectorCenter.Y, center.X, center.Y)
		if angleWithin(dir, start, sweep) {
			return true
		}
	}
	return false
}

// angleWithin reports whether a lies on the arc [start, start+sweep]
func angleWithin(a, start, sweep float64) bool {
	return NormalAbsoluteAngle(a-start) <= sweep
}

package game

import "math"

// TeamMessage is sent by a bot to one teammate or, with ReceiverID 0, all of them
type TeamMessage struct {
	ReceiverID  int    `json:"receiverId,omitempty"`
	Message     string `json:"message"`
	MessageType string `json:"messageType,omitempty"`
}

// BotIntent is a sparse overlay of the actions a bot wants; nil fields are
// "unchanged". Later writes win per field.
type BotIntent struct {
	TargetSpeed            *float64 `json:"targetSpeed,omitempty"`
	TurnRate               *float64 `json:"turnRate,omitempty"`
	GunTurnRate            *float64 `json:"gunTurnRate,omitempty"`
	RadarTurnRate          *float64 `json:"radarTurnRate,omitempty"`
	Firepower              *float64 `json:"firepower,omitempty"`
	AdjustGunForBodyTurn   *bool    `json:"adjustGunForBodyTurn,omitempty"`
	AdjustRadarForBodyTurn *bool    `json:"adjustRadarForBodyTurn,omitempty"`
	AdjustRadarForGunTurn  *bool    `json:"adjustRadarForGunTurn,omitempty"`
	Rescan                 *bool    `json:"rescan,omitempty"`

	BodyColor   *string `json:"bodyColor,omitempty"`
	TurretColor *string `json:"turretColor,omitempty"`
	RadarColor  *string `json:"radarColor,omitempty"`
	BulletColor *string `json:"bulletColor,omitempty"`
	ScanColor   *string `json:"scanColor,omitempty"`
	TracksColor *string `json:"tracksColor,omitempty"`
	GunColor    *string `json:"gunColor,omitempty"`

	// Not an overlay: messages are consumed by the turn they arrive in
	TeamMessages []TeamMessage `json:"teamMessages,omitempty"`
}

// Merge overlays every field set in other onto i
func (i *BotIntent) Merge(other *BotIntent) {
	if other == nil {
		return
	}
	mergeFloat(&i.TargetSpeed, other.TargetSpeed)
	mergeFloat(&i.TurnRate, other.TurnRate)
	mergeFloat(&i.GunTurnRate, other.GunTurnRate)
	mergeFloat(&i.RadarTurnRate, other.RadarTurnRate)
	mergeFloat(&i.Firepower, other.Firepower)
	mergeBool(&i.AdjustGunForBodyTurn, other.AdjustGunForBodyTurn)
	mergeBool(&i.AdjustRadarForBodyTurn, other.AdjustRadarForBodyTurn)
	mergeBool(&i.AdjustRadarForGunTurn, other.AdjustRadarForGunTurn)
	mergeBool(&i.Rescan, other.Rescan)
	mergeString(&i.BodyColor, other.BodyColor)
	mergeString(&i.TurretColor, other.TurretColor)
	mergeString(&i.RadarColor, other.RadarColor)
	mergeString(&i.BulletColor, other.BulletColor)
	mergeString(&i.ScanColor, other.ScanColor)
	mergeString(&i.TracksColor, other.TracksColor)
	mergeString(&i.GunColor, other.GunColor)
	i.TeamMessages = append(i.TeamMessages, other.TeamMessages...)
}

// Clamp forces numeric fields into their legal bounds. Non-finite values are
// dropped (treated as unset); the number of dropped fields is returned.
func (i *BotIntent) Clamp() (dropped int) {
	clampField := func(f **float64, lo, hi float64) {
		if *f == nil {
			return
		}
		v := **f
		if math.IsNaN(v) || math.IsInf(v, 0) {
			*f = nil
			dropped++
			return
		}
		v = Clamp(v, lo, hi)
		*f = &v
	}
	clampField(&i.TargetSpeed, -MaxSpeed, MaxSpeed)
	clampField(&i.TurnRate, -MaxTurnRate, MaxTurnRate)
	clampField(&i.GunTurnRate, -MaxGunTurnRate, MaxGunTurnRate)
	clampField(&i.RadarTurnRate, -MaxRadarTurnRate, MaxRadarTurnRate)
	// Firepower below the minimum is kept as-is: it means "do not fire"
	clampField(&i.Firepower, 0, MaxFirepower)

	if len(i.TeamMessages) > MaxTeamMessagesPerTurn {
		i.TeamMessages = i.TeamMessages[:MaxTeamMessagesPerTurn]
	}
	kept := i.TeamMessages[:0]
	for _, m := range i.TeamMessages {
		if len(m.Message) <= MaxTeamMessageSize {
			kept = append(kept, m)
		}
	}
	i.TeamMessages = kept
	return dropped
}

// disable clears everything a disabled bot must not act on
func (i *BotIntent) disable() {
	zero := 0.0
	i.TargetSpeed = &zero
	i.TurnRate = &zero
	i.GunTurnRate = &zero
	i.RadarTurnRate = &zero
	i.Firepower = &zero
}

func (i *BotIntent) targetSpeed() float64   { return floatOr(i.TargetSpeed, 0) }
func (i *BotIntent) turnRate() float64      { return floatOr(i.TurnRate, 0) }
func (i *BotIntent) gunTurnRate() float64   { return floatOr(i.GunTurnRate, 0) }
func (i *BotIntent) radarTurnRate() float64 { return floatOr(i.RadarTurnRate, 0) }
func (i *BotIntent) firepower() float64     { return floatOr(i.Firepower, 0) }

func floatOr(f *float64, def float64) float64 {
	if f == nil {
		return def
	}
	return *f
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func mergeFloat(dst **float64, src *float64) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

func mergeBool(dst **bool, src *bool) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

func mergeString(dst **string, src *string) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

package game

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// ModelUpdater advances the world by one turn per Update call. It is not
// safe for concurrent use; the caller owns the turn thread.
type ModelUpdater struct {
	setup        GameSetup
	arena        Arena
	participants []Participant
	rnd          *rand.Rand
	log          zerolog.Logger
	scores       *ScoreTracker

	state       *GameState
	round       *Round
	turn        *Turn
	roundNumber int
	turnNumber  int
	roundEnded  bool

	bots         map[int]*bot
	intents      map[int]*BotIntent
	bullets      []*bullet
	nextBulletID int
	inactivity   int
	grid         *SpatialGrid

	outbox     []queuedMessage
	lastRanked []ParticipantResult
}

type queuedMessage struct {
	senderID int
	msg      TeamMessage
}

// Option configures a ModelUpdater
type Option func(*ModelUpdater)

// WithRand sets the random source used for start positions
func WithRand(r *rand.Rand) Option {
	return func(u *ModelUpdater) { u.rnd = r }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(u *ModelUpdater) { u.log = l }
}

// WithScoreTracker makes the updater report into an existing tracker
func WithScoreTracker(st *ScoreTracker) Option {
	return func(u *ModelUpdater) { u.scores = st }
}

// NewModelUpdater validates the setup and participants. No round is started
// until the first Update.
func NewModelUpdater(setup GameSetup, participants []Participant, opts ...Option) (*ModelUpdater, error) {
	if err := setup.Validate(); err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return nil, fmt.Errorf("%w: no participants", ErrInvalidSetup)
	}
	sorted := make([]Participant, len(participants))
	copy(sorted, participants)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].ID == sorted[i-1].ID {
			return nil, fmt.Errorf("%w: duplicate participant id %d", ErrInvalidSetup, sorted[i].ID)
		}
	}

	u := &ModelUpdater{
		setup:        setup,
		arena:        setup.Arena(),
		participants: sorted,
		log:          zerolog.Nop(),
		state:        &GameState{Arena: setup.Arena()},
		roundEnded:   true,
		bots:         make(map[int]*bot),
		intents:      make(map[int]*BotIntent),
		nextBulletID: 1,
		grid:         NewSpatialGrid(setup.Arena()),
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.rnd == nil {
		u.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if u.scores == nil {
		u.scores = NewScoreTracker(sorted)
	}
	return u, nil
}

// Scores returns the tracker the updater reports into
func (u *ModelUpdater) Scores() *ScoreTracker { return u.scores }

// RoundNumber returns the current round, 0 before the first Update
func (u *ModelUpdater) RoundNumber() int { return u.roundNumber }

// TurnNumber returns the current turn within the round
func (u *ModelUpdater) TurnNumber() int { return u.turnNumber }

// RoundResults returns the ranking of the most recently ended round
func (u *ModelUpdater) RoundResults() []ParticipantResult { return u.lastRanked }

// State returns the game state built so far
func (u *ModelUpdater) State() *GameState { return u.state }

// Update runs one turn with the given intents (keyed by bot id; missing
// entries keep the previous intent) and returns the updated game state.
func (u *ModelUpdater) Update(intents map[int]*BotIntent) (*GameState, error) {
	if u.state.GameEnded {
		return u.state, ErrGameEnded
	}

	u.mergeIntents(intents)

	if u.roundEnded {
		if err := u.nextRound(); err != nil {
			return nil, err
		}
	}
	u.nextTurn()
	u.deliverTeamMessages()

	u.fireBullets()
	u.turnBots()
	u.moveBots()
	u.checkScans()
	u.checkWallCollisions()
	u.checkBotCollisions()
	u.constrainBots()
	u.moveBullets()
	u.checkBulletWallCollisions()
	u.checkBulletCollisions()
	u.checkBulletHits()
	u.checkInactivity()
	u.checkDisabled()
	u.removeDeadBots()
	u.checkRoundOver()
	u.snapshot()

	return u.state, nil
}

func (u *ModelUpdater) mergeIntents(intents map[int]*BotIntent) {
	ids := make([]int, 0, len(intents))
	for id := range intents {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		in := intents[id]
		if in == nil {
			continue
		}
		if _, alive := u.bots[id]; !alive {
			continue
		}
		current := u.intents[id]
		if current == nil {
			current = &BotIntent{}
			u.intents[id] = current
		}
		current.Merge(in)
		if dropped := current.Clamp(); dropped > 0 {
			u.log.Warn().Int("bot", id).Int("dropped", dropped).Msg("Dropped non-finite intent values")
		}
		for _, m := range current.TeamMessages {
			u.outbox = append(u.outbox, queuedMessage{senderID: id, msg: m})
		}
		current.TeamMessages = nil
	}
}

func (u *ModelUpdater) nextRound() error {
	positions, err := u.startPositions()
	if err != nil {
		return err
	}

	u.roundNumber++
	u.turnNumber = 0
	u.roundEnded = false
	u.round = &Round{RoundNumber: u.roundNumber}
	u.state.Rounds = append(u.state.Rounds, u.round)

	u.bullets = nil
	u.intents = make(map[int]*BotIntent)
	u.outbox = nil
	u.inactivity = 0
	u.scores.StartRound()

	u.bots = make(map[int]*bot, len(u.participants))
	for i, p := range u.participants {
		pos := positions[i]
		u.bots[p.ID] = newBot(p, pos.x, pos.y, pos.direction)
	}
	u.log.Debug().Int("round", u.roundNumber).Int("bots", len(u.bots)).Msg("Round started")
	return nil
}

type startPosition struct {
	x, y, direction float64
}

// startPositions places every participant in its own cell of a grid so that
// no two bounding circles overlap. Requested debug positions win.
func (u *ModelUpdater) startPositions() ([]startPosition, error) {
	cols := u.arena.Width / StartCellSize
	rows := u.arena.Height / StartCellSize
	if cols*rows < len(u.participants) {
		return nil, fmt.Errorf("%w: %d cells for %d bots in %dx%d arena",
			ErrArenaTooSmall, cols*rows, len(u.participants), u.arena.Width, u.arena.Height)
	}

	const cell = float64(StartCellSize)
	jitter := cell - BotBoundingCircleDiameter
	cells := u.rnd.Perm(cols * rows)

	positions := make([]startPosition, len(u.participants))
	for i, p := range u.participants {
		c, r := cells[i]%cols, cells[i]/cols
		pos := startPosition{
			x:         float64(c)*cell + BotBoundingCircleRadius + u.rnd.Float64()*jitter,
			y:         float64(r)*cell + BotBoundingCircleRadius + u.rnd.Float64()*jitter,
			direction: u.rnd.Float64() * 360,
		}
		if ip := p.InitialPosition; ip != nil {
			if ip.X != nil {
				pos.x = Clamp(*ip.X, BotBoundingCircleRadius, float64(u.arena.Width)-BotBoundingCircleRadius)
			}
			if ip.Y != nil {
				pos.y = Clamp(*ip.Y, BotBoundingCircleRadius, float64(u.arena.Height)-BotBoundingCircleRadius)
			}
			if ip.Direction != nil {
				pos.direction = NormalAbsoluteAngle(*ip.Direction)
			}
		}
		positions[i] = pos
	}
	return positions, nil
}

func (u *ModelUpdater) nextTurn() {
	u.turnNumber++
	u.turn = &Turn{
		TurnNumber: u.turnNumber,
		BotEvents:  make(map[int][]Event),
	}
}

// publish records an event for observers and for the given bots
func (u *ModelUpdater) publish(e Event, botIDs ...int) {
	u.turn.ObserverEvents = append(u.turn.ObserverEvents, e)
	for _, id := range botIDs {
		u.turn.BotEvents[id] = append(u.turn.BotEvents[id], e)
	}
}

// sortedBots returns the live bots in id order so every step is deterministic
func (u *ModelUpdater) sortedBots() []*bot {
	bots := make([]*bot, 0, len(u.bots))
	for _, b := range u.bots {
		bots = append(bots, b)
	}
	sort.Slice(bots, func(i, j int) bool { return bots[i].id < bots[j].id })
	return bots
}

func (u *ModelUpdater) intentOf(id int) *BotIntent {
	if in := u.intents[id]; in != nil {
		return in
	}
	return &BotIntent{}
}

func (u *ModelUpdater) deliverTeamMessages() {
	for _, q := range u.outbox {
		sender, ok := u.bots[q.senderID]
		if !ok || sender.teamID() == 0 {
			continue
		}
		e := &TeamMessageEvent{
			EventHeader: header(EventTeamMessage, u.turnNumber),
			SenderID:    q.senderID,
			Message:     q.msg.Message,
			MessageType: q.msg.MessageType,
		}
		var receivers []int
		for _, b := range u.sortedBots() {
			if b.id == sender.id || !sender.isTeammate(b) {
				continue
			}
			if q.msg.ReceiverID == 0 || q.msg.ReceiverID == b.id {
				receivers = append(receivers, b.id)
			}
		}
		if len(receivers) > 0 {
			u.publish(e, receivers...)
		}
	}
	u.outbox = nil
}

func (u *ModelUpdater) fireBullets() {
	for _, b := range u.sortedBots() {
		b.gunHeat = math.Max(b.gunHeat-u.setup.GunCoolingRate, 0)
		if IsNearZero(b.gunHeat) {
			b.gunHeat = 0
		}

		intent := u.intents[b.id]
		if intent == nil || b.isDisabled() {
			continue
		}
		power := intent.firepower()
		if power < MinFirepower || b.gunHeat > 0 || b.energy < power {
			continue
		}

		bl := &bullet{
			id:        u.nextBulletID,
			ownerID:   b.id,
			power:     power,
			direction: b.gunDirection,
			startX:    b.x,
			startY:    b.y,
			color:     b.colors.Bullet,
		}
		u.nextBulletID++
		u.bullets = append(u.bullets, bl)

		b.gunHeat = GunHeat(power)
		b.energy -= power
		intent.Firepower = nil

		u.publish(&BulletFiredEvent{
			EventHeader: header(EventBulletFired, u.turnNumber),
			Bullet:      bl.snapshot(),
		}, b.id)
	}
}

func (u *ModelUpdater) turnBots() {
	for _, b := range u.sortedBots() {
		intent := u.intentOf(b.id)
		b.applyColors(intent)

		prevStart, prevEnd := b.scanStart, b.scanEnd

		if b.isDisabled() {
			b.turnRate, b.gunTurnRate, b.radarTurnRate = 0, 0, 0
		} else {
			limit := MaxBodyTurnRate(b.speed)
			turnRate := Clamp(intent.turnRate(), -limit, limit)
			gunTurnRate := Clamp(intent.gunTurnRate(), -MaxGunTurnRate, MaxGunTurnRate)
			radarTurnRate := Clamp(intent.radarTurnRate(), -MaxRadarTurnRate, MaxRadarTurnRate)

			if boolOr(intent.AdjustGunForBodyTurn, false) {
				gunTurnRate -= turnRate
			}
			if boolOr(intent.AdjustRadarForGunTurn, false) {
				radarTurnRate -= gunTurnRate
			}
			if boolOr(intent.AdjustRadarForBodyTurn, false) {
				radarTurnRate -= turnRate
			}
			b.turnRate, b.gunTurnRate, b.radarTurnRate = turnRate, gunTurnRate, radarTurnRate
		}

		// gun rides on the body, radar rides on the gun
		b.direction = NormalAbsoluteAngle(b.direction + b.turnRate)
		b.gunDirection = NormalAbsoluteAngle(b.gunDirection + b.turnRate + b.gunTurnRate)
		newRadar := NormalAbsoluteAngle(b.radarDirection + b.turnRate + b.gunTurnRate + b.radarTurnRate)

		b.scanStart, b.scanEnd = b.radarDirection, newRadar
		b.radarDirection = newRadar

		if boolOr(intent.Rescan, false) {
			intent.Rescan = nil
			if IsNearZero(NormalRelativeAngle(b.scanEnd - b.scanStart)) {
				b.scanStart, b.scanEnd = prevStart, prevEnd
			}
		}
	}
}

func (u *ModelUpdater) moveBots() {
	for _, b := range u.sortedBots() {
		if b.isDisabled() {
			b.speed = 0
			continue
		}
		b.speed = NewSpeed(b.speed, u.intentOf(b.id).targetSpeed())
		rad := ToRadians(b.direction)
		b.x += b.speed * math.Cos(rad)
		b.y += b.speed * math.Sin(rad)
	}
}

func (u *ModelUpdater) checkScans() {
	bots := u.sortedBots()
	for _, scanner := range bots {
		if scanner.isDroid() {
			continue
		}
		for _, target := range bots {
			if target.id == scanner.id {
				continue
			}
			if !IsCircleIntersectingCircleSector(target.position(), BotBoundingCircleRadius,
				scanner.position(), ScanRadius, scanner.scanStart, scanner.scanEnd) {
				continue
			}
			e := &ScannedBotEvent{
				EventHeader:    header(EventScannedBot, u.turnNumber),
				ScannedByBotID: scanner.id,
				ScannedBotID:   target.id,
				Energy:         target.energy,
				X:              target.x,
				Y:              target.y,
				Direction:      target.direction,
				Speed:          target.speed,
			}
			u.publish(e, scanner.id)
		}
	}
}

func (u *ModelUpdater) checkWallCollisions() {
	for _, b := range u.sortedBots() {
		speed := b.speed
		if !b.constrain(u.arena) {
			b.hitWallLastTurn = false
			continue
		}
		b.speed = 0
		if b.hitWallLastTurn {
			continue
		}
		b.hitWallLastTurn = true
		b.addDamage(WallDamage(speed))
		u.publish(&BotHitWallEvent{
			EventHeader: header(EventBotHitWall, u.turnNumber),
			VictimID:    b.id,
		}, b.id)
	}
}

func (u *ModelUpdater) checkBotCollisions() {
	bots := u.sortedBots()
	for i := 0; i < len(bots); i++ {
		for j := i + 1; j < len(bots); j++ {
			a, b := bots[i], bots[j]
			dist := Distance(a.x, a.y, b.x, b.y)
			if dist >= BotBoundingCircleDiameter {
				continue
			}
			u.resolveBotCollision(a, b, BotBoundingCircleDiameter-dist)
		}
	}
}

func (u *ModelUpdater) resolveBotCollision(a, b *bot, overlap float64) {
	aRams := a.isRamming(b)
	bRams := b.isRamming(a)

	aAlive, bAlive := !a.isDead(), !b.isDead()
	a.addDamage(RamDamage)
	b.addDamage(RamDamage)
	aKilled := aAlive && a.isDead()
	bKilled := bAlive && b.isDead()

	switch {
	case aRams && bRams:
		a.speed, b.speed = 0, 0
		a.bounceBack(b, overlap/2)
		b.bounceBack(a, overlap/2)
	case aRams:
		a.speed = 0
		a.bounceBack(b, overlap)
	case bRams:
		b.speed = 0
		b.bounceBack(a, overlap)
	default:
		a.bounceBack(b, overlap/2)
		b.bounceBack(a, overlap/2)
	}

	if aRams {
		u.scores.RegisterRamHit(a.id, b.id, RamDamage, bKilled)
	}
	if bRams {
		u.scores.RegisterRamHit(b.id, a.id, RamDamage, aKilled)
	}

	u.publish(&BotHitBotEvent{
		EventHeader: header(EventBotHitBot, u.turnNumber),
		BotID:       a.id,
		VictimID:    b.id,
		Energy:      b.energy,
		X:           b.x,
		Y:           b.y,
		Rammed:      aRams,
	}, a.id)
	u.publish(&BotHitBotEvent{
		EventHeader: header(EventBotHitBot, u.turnNumber),
		BotID:       b.id,
		VictimID:    a.id,
		Energy:      a.energy,
		X:           a.x,
		Y:           a.y,
		Rammed:      bRams,
	}, b.id)
}

func (u *ModelUpdater) constrainBots() {
	for _, b := range u.bots {
		b.constrain(u.arena)
	}
}

func (u *ModelUpdater) moveBullets() {
	for _, bl := range u.bullets {
		bl.tick++
	}
}

func (u *ModelUpdater) checkBulletWallCollisions() {
	kept := u.bullets[:0]
	for _, bl := range u.bullets {
		if !bl.isOutside(u.arena) {
			kept = append(kept, bl)
			continue
		}
		u.publish(&BulletHitWallEvent{
			EventHeader: header(EventBulletHitWall, u.turnNumber),
			Bullet:      bl.snapshot(),
		}, bl.ownerID)
	}
	u.bullets = kept
}

func (u *ModelUpdater) checkBulletCollisions() {
	removed := make(map[int]bool)
	for i := 0; i < len(u.bullets); i++ {
		a := u.bullets[i]
		if removed[a.id] {
			continue
		}
		aEnd := a.position()
		for j := i + 1; j < len(u.bullets); j++ {
			b := u.bullets[j]
			if removed[b.id] {
				continue
			}
			bEnd := b.position()
			// each segment is one speed long, so they can only meet within the sum
			if Distance(aEnd.X, aEnd.Y, bEnd.X, bEnd.Y) > a.speed()+b.speed() {
				continue
			}
			if !IsLineIntersectingLine(a.prevPosition(), aEnd, b.prevPosition(), bEnd) {
				continue
			}
			removed[a.id], removed[b.id] = true, true

			as, bs := a.snapshot(), b.snapshot()
			u.publish(&BulletHitBulletEvent{
				EventHeader: header(EventBulletHitBullet, u.turnNumber),
				Bullet:      as,
				HitBullet:   bs,
			}, a.ownerID)
			u.publish(&BulletHitBulletEvent{
				EventHeader: header(EventBulletHitBullet, u.turnNumber),
				Bullet:      bs,
				HitBullet:   as,
			}, b.ownerID)
			break
		}
	}
	u.removeBullets(removed)
}

func (u *ModelUpdater) checkBulletHits() {
	u.grid.indexBots(u.bots)

	removed := make(map[int]bool)
	for _, bl := range u.bullets {
		start, end := bl.prevPosition(), bl.position()
		for _, id := range u.grid.GetNearby(end.X, end.Y) {
			if id == bl.ownerID {
				continue
			}
			victim := u.bots[id]
			if !IsLineIntersectingCircle(start.X, start.Y, end.X, end.Y, victim.x, victim.y, BotBoundingCircleRadius) {
				continue
			}
			u.applyBulletHit(bl, victim)
			removed[bl.id] = true
			break
		}
	}
	u.removeBullets(removed)
}

func (u *ModelUpdater) applyBulletHit(bl *bullet, victim *bot) {
	u.inactivity = 0

	damage := BulletDamage(bl.power)
	before := victim.energy
	victim.addDamage(damage)
	killed := before >= 0 && victim.isDead()

	// overkill does not score
	u.scores.RegisterBulletHit(bl.ownerID, victim.id, math.Min(damage, math.Max(before, 0)), killed)

	if shooter, ok := u.bots[bl.ownerID]; ok {
		shooter.addEnergy(BulletHitEnergyGain(bl.power))
	}

	u.publish(&BulletHitBotEvent{
		EventHeader: header(EventBulletHitBot, u.turnNumber),
		VictimID:    victim.id,
		Bullet:      bl.snapshot(),
		Damage:      damage,
		Energy:      victim.energy,
	}, bl.ownerID, victim.id)
}

func (u *ModelUpdater) removeBullets(ids map[int]bool) {
	if len(ids) == 0 {
		return
	}
	kept := u.bullets[:0]
	for _, bl := range u.bullets {
		if !ids[bl.id] {
			kept = append(kept, bl)
		}
	}
	u.bullets = kept
}

func (u *ModelUpdater) checkInactivity() {
	u.inactivity++
	if u.inactivity <= u.setup.MaxInactivityTurns {
		return
	}
	for _, b := range u.bots {
		b.addDamage(InactivityZap)
	}
}

func (u *ModelUpdater) checkDisabled() {
	for _, b := range u.sortedBots() {
		if IsNearZero(b.energy) {
			b.energy = 0
		}
		if !b.isDisabled() {
			continue
		}
		intent := u.intents[b.id]
		if intent == nil {
			intent = &BotIntent{}
			u.intents[b.id] = intent
		}
		intent.disable()
		b.speed = 0
	}
}

func (u *ModelUpdater) removeDeadBots() {
	var dead []int
	for _, b := range u.sortedBots() {
		if b.isDead() {
			dead = append(dead, b.id)
		}
	}
	if len(dead) == 0 {
		return
	}

	for _, id := range dead {
		delete(u.bots, id)
		delete(u.intents, id)
	}
	// every participant still in the match hears about every death,
	// including the victim itself
	for _, id := range dead {
		receivers := append(u.aliveIDs(), id)
		u.publish(&BotDeathEvent{
			EventHeader: header(EventBotDeath, u.turnNumber),
			VictimID:    id,
		}, receivers...)
	}
	u.scores.RegisterDeaths(dead, u.aliveIDs())
	u.log.Debug().Ints("dead", dead).Int("round", u.roundNumber).Int("turn", u.turnNumber).Msg("Bots destroyed")
}

func (u *ModelUpdater) aliveIDs() []int {
	ids := make([]int, 0, len(u.bots))
	for id := range u.bots {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (u *ModelUpdater) checkRoundOver() {
	survivors := u.aliveIDs()
	sides := make(map[int]bool)
	for _, id := range survivors {
		sides[u.bots[id].scoreID()] = true
	}
	if len(sides) > 1 {
		return
	}

	u.roundEnded = true
	u.round.RoundEnded = true
	for _, id := range survivors {
		u.publish(&WonRoundEvent{EventHeader: header(EventWonRound, u.turnNumber)}, id)
	}
	u.lastRanked = u.scores.EndRound(survivors)

	if u.roundNumber >= u.setup.NumberOfRounds {
		u.state.GameEnded = true
	}
	u.log.Debug().Int("round", u.roundNumber).Int("turn", u.turnNumber).Ints("survivors", survivors).
		Bool("gameEnded", u.state.GameEnded).Msg("Round ended")
}

func (u *ModelUpdater) snapshot() {
	bots := u.sortedBots()
	u.turn.Bots = make([]BotState, 0, len(bots))
	for _, b := range bots {
		enemies := 0
		for _, o := range bots {
			if o.id != b.id && !b.isTeammate(o) {
				enemies++
			}
		}
		u.turn.Bots = append(u.turn.Bots, b.snapshot(enemies))
	}

	u.turn.Bullets = make([]BulletState, 0, len(u.bullets))
	for _, bl := range u.bullets {
		u.turn.Bullets = append(u.turn.Bullets, bl.snapshot())
	}
	sort.Slice(u.turn.Bullets, func(i, j int) bool { return u.turn.Bullets[i].ID < u.turn.Bullets[j].ID })

	u.round.Turns = append(u.round.Turns, u.turn)
}


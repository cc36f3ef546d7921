package game

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placed(id int, x, y, dir float64) Participant {
	return Participant{
		ID:              id,
		Name:            "bot",
		Version:         "1.0",
		InitialPosition: &InitialPosition{X: ptr(x), Y: ptr(y), Direction: ptr(dir)},
	}
}

func newTestUpdater(t *testing.T, setup GameSetup, participants ...Participant) *ModelUpdater {
	t.Helper()
	u, err := NewModelUpdater(setup, participants, WithRand(rand.New(rand.NewSource(1))))
	require.NoError(t, err)
	return u
}

// quickGunSetup cools a gun completely on the first turn
func quickGunSetup() GameSetup {
	setup := DefaultGameSetup()
	setup.GunCoolingRate = InitialGunHeat
	return setup
}

func eventsOf[T Event](events []Event) []T {
	var out []T
	for _, e := range events {
		if te, ok := e.(T); ok {
			out = append(out, te)
		}
	}
	return out
}

func update(t *testing.T, u *ModelUpdater, intents map[int]*BotIntent) *Turn {
	t.Helper()
	state, err := u.Update(intents)
	require.NoError(t, err)
	return state.LastTurn()
}

func TestNewModelUpdaterRejectsBadInput(t *testing.T) {
	_, err := NewModelUpdater(DefaultGameSetup(), nil)
	assert.ErrorIs(t, err, ErrInvalidSetup)

	_, err = NewModelUpdater(DefaultGameSetup(), []Participant{{ID: 1}, {ID: 1}})
	assert.ErrorIs(t, err, ErrInvalidSetup)
}

func TestPointBlankKillEndsGame(t *testing.T) {
	setup := quickGunSetup()
	setup.NumberOfRounds = 1
	u := newTestUpdater(t, setup, placed(1, 100, 300, 0), placed(2, 136, 300, 90))

	turn := update(t, u, nil)
	require.Len(t, turn.Bots, 2)
	u.bots[2].energy = 1

	state, err := u.Update(map[int]*BotIntent{1: {Firepower: ptr(0.5)}})
	require.NoError(t, err)
	turn = state.LastTurn()

	_, alive := turn.Bot(2)
	assert.False(t, alive)
	require.Len(t, turn.Bots, 1)
	assert.Equal(t, 1, turn.Bots[0].ID)

	deaths := eventsOf[*BotDeathEvent](turn.ObserverEvents)
	require.Len(t, deaths, 1)
	assert.Equal(t, 2, deaths[0].VictimID)
	assert.Len(t, eventsOf[*BotDeathEvent](turn.BotEvents[2]), 1)
	assert.Len(t, eventsOf[*BotDeathEvent](turn.BotEvents[1]), 1)

	hits := eventsOf[*BulletHitBotEvent](turn.BotEvents[1])
	require.Len(t, hits, 1)
	assert.InDelta(t, -1, hits[0].Energy, 1e-9)

	assert.True(t, state.LastRound().RoundEnded)
	assert.True(t, state.GameEnded)
	assert.Len(t, eventsOf[*WonRoundEvent](turn.BotEvents[1]), 1)

	results := u.Scores().Results()
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].ID)
	assert.InDelta(t, 1, results[0].BulletDamage, 1e-9)
	assert.InDelta(t, 0.2, results[0].BulletKillBonus, 1e-9)
	assert.InDelta(t, ScorePerSurvival, results[0].Survival, 1e-9)
	assert.InDelta(t, ScorePerLastSurvivor, results[0].LastSurvivorBonus, 1e-9)
	assert.Equal(t, 1, results[0].FirstPlaces)

	_, err = u.Update(nil)
	assert.ErrorIs(t, err, ErrGameEnded)
}

func TestDisabledBotCannotAct(t *testing.T) {
	u := newTestUpdater(t, quickGunSetup(), placed(1, 100, 300, 0), placed(2, 500, 300, 90))
	update(t, u, nil)

	u.bots[1].energy = 0
	turn := update(t, u, map[int]*BotIntent{1: {TargetSpeed: ptr(8.0), TurnRate: ptr(10.0), Firepower: ptr(1.0)}})

	state, ok := turn.Bot(1)
	require.True(t, ok)
	assert.True(t, state.IsDisabled)
	assert.Zero(t, state.Speed)
	assert.Zero(t, state.Direction)
	assert.Equal(t, 100.0, state.X)
	assert.Empty(t, turn.Bullets)
	assert.Empty(t, eventsOf[*BulletFiredEvent](turn.ObserverEvents))

	// energy back above zero re-enables the bot once it sends a new intent
	u.bots[1].energy = 10
	turn = update(t, u, map[int]*BotIntent{1: {TargetSpeed: ptr(8.0)}})
	state, _ = turn.Bot(1)
	assert.False(t, state.IsDisabled)
	assert.Equal(t, 1.0, state.Speed)
}

func TestFiring(t *testing.T) {
	tests := []struct {
		name         string
		power        float64
		victimX      float64
		wantFired    int
		wantShooter  float64
		wantVictim   float64
		wantInFlight int
	}{
		{"hit returns energy to the shooter", 0.5, 136, 1, StartEnergy - 0.5 + BulletHitEnergyGain(0.5), StartEnergy - BulletDamage(0.5), 0},
		{"below minimum never fires", MinFirepower / 2, 136, 0, StartEnergy, StartEnergy, 0},
		{"minimum power fires", MinFirepower, 500, 1, StartEnergy - MinFirepower, StartEnergy, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newTestUpdater(t, quickGunSetup(), placed(1, 100, 300, 0), placed(2, tt.victimX, 300, 90))
			update(t, u, nil)

			turn := update(t, u, map[int]*BotIntent{1: {Firepower: ptr(tt.power)}})

			assert.Len(t, eventsOf[*BulletFiredEvent](turn.ObserverEvents), tt.wantFired)
			assert.Len(t, turn.Bullets, tt.wantInFlight)
			shooter, _ := turn.Bot(1)
			victim, _ := turn.Bot(2)
			assert.InDelta(t, tt.wantShooter, shooter.Energy, 1e-9)
			assert.InDelta(t, tt.wantVictim, victim.Energy, 1e-9)
			if tt.wantFired == 0 {
				assert.Zero(t, shooter.GunHeat, "a refused shot leaves the gun cool")
			}
		})
	}
}

func TestRammingOnlyStopsRammer(t *testing.T) {
	u := newTestUpdater(t, DefaultGameSetup(), placed(1, 100, 300, 0), placed(2, 137, 300, 80))
	update(t, u, nil)

	intents := map[int]*BotIntent{
		1: {TargetSpeed: ptr(8.0)},
		2: {TargetSpeed: ptr(8.0)},
	}
	var turn *Turn
	for i := 0; i < 5; i++ {
		turn = update(t, u, intents)
		intents = nil
		if len(eventsOf[*BotHitBotEvent](turn.ObserverEvents)) > 0 {
			break
		}
	}

	rams := eventsOf[*BotHitBotEvent](turn.ObserverEvents)
	require.Len(t, rams, 2)

	byBot := map[int]*BotHitBotEvent{}
	for _, e := range rams {
		byBot[e.BotID] = e
	}
	assert.True(t, byBot[1].Rammed)
	assert.False(t, byBot[2].Rammed)

	a, _ := turn.Bot(1)
	b, _ := turn.Bot(2)
	assert.InDelta(t, StartEnergy-RamDamage, a.Energy, 1e-9)
	assert.InDelta(t, StartEnergy-RamDamage, b.Energy, 1e-9)
	assert.Zero(t, a.Speed)
	assert.Greater(t, b.Speed, 0.0)
	assert.InDelta(t, BotBoundingCircleDiameter, Distance(a.X, a.Y, b.X, b.Y), 1e-6)

	scores := u.Scores().RoundResults()
	require.Equal(t, 1, scores[0].ID)
	assert.InDelta(t, RamDamage*ScorePerRamDamage, scores[0].RamDamage, 1e-9)
}

func TestRoundTransitionResetsState(t *testing.T) {
	setup := quickGunSetup()
	setup.NumberOfRounds = 2
	u := newTestUpdater(t, setup, Participant{ID: 1}, Participant{ID: 2})
	update(t, u, nil)

	u.bots[2].energy = -1
	state, err := u.Update(map[int]*BotIntent{1: {Firepower: ptr(1.0), TargetSpeed: ptr(5.0)}})
	require.NoError(t, err)
	require.True(t, state.LastRound().RoundEnded)
	require.False(t, state.GameEnded)
	require.Len(t, u.bullets, 1)
	firedID := u.bullets[0].id

	turn := update(t, u, nil)
	assert.Equal(t, 2, u.RoundNumber())
	assert.Equal(t, 1, turn.TurnNumber)
	assert.Empty(t, u.bullets)
	assert.Empty(t, u.intents)
	assert.Equal(t, 1, u.inactivity)
	assert.Greater(t, u.nextBulletID, firedID)

	require.Len(t, turn.Bots, 2)
	for _, b := range turn.Bots {
		assert.Equal(t, StartEnergy, b.Energy)
		assert.Zero(t, b.Speed)
	}
	assert.GreaterOrEqual(t, Distance(turn.Bots[0].X, turn.Bots[0].Y, turn.Bots[1].X, turn.Bots[1].Y), BotBoundingCircleDiameter)
}

func TestStartPositionsDoNotCollide(t *testing.T) {
	var participants []Participant
	for id := 1; id <= 60; id++ {
		participants = append(participants, Participant{ID: id})
	}
	u := newTestUpdater(t, DefaultGameSetup(), participants...)
	turn := update(t, u, nil)

	require.Len(t, turn.Bots, 60)
	for i, a := range turn.Bots {
		assert.GreaterOrEqual(t, a.X, BotBoundingCircleRadius)
		assert.GreaterOrEqual(t, a.Y, BotBoundingCircleRadius)
		assert.LessOrEqual(t, a.X, float64(DefaultArenaWidth)-BotBoundingCircleRadius)
		assert.LessOrEqual(t, a.Y, float64(DefaultArenaHeight)-BotBoundingCircleRadius)
		assert.Equal(t, a.Direction, a.GunDirection)
		assert.Equal(t, a.Direction, a.RadarDirection)
		for _, b := range turn.Bots[i+1:] {
			assert.GreaterOrEqual(t, Distance(a.X, a.Y, b.X, b.Y), BotBoundingCircleDiameter)
		}
	}
	assert.Empty(t, eventsOf[*BotHitBotEvent](turn.ObserverEvents))
}

func TestArenaTooSmall(t *testing.T) {
	setup := DefaultGameSetup()
	setup.ArenaWidth, setup.ArenaHeight = 100, 100
	var participants []Participant
	for id := 1; id <= 5; id++ {
		participants = append(participants, Participant{ID: id})
	}
	u := newTestUpdater(t, setup, participants...)

	_, err := u.Update(nil)
	assert.ErrorIs(t, err, ErrArenaTooSmall)
	assert.Zero(t, u.RoundNumber())
	assert.Empty(t, u.State().Rounds)
}

func TestScanning(t *testing.T) {
	droid := placed(2, 400, 300, 180)
	droid.IsDroid = true
	u := newTestUpdater(t, DefaultGameSetup(), placed(1, 100, 300, 0), droid, placed(3, 100, 500, 0))

	turn := update(t, u, nil)

	scans := eventsOf[*ScannedBotEvent](turn.BotEvents[1])
	require.Len(t, scans, 1)
	assert.Equal(t, 2, scans[0].ScannedBotID)
	assert.Equal(t, 400.0, scans[0].X)
	assert.Empty(t, turn.BotEvents[2])
	assert.Empty(t, eventsOf[*ScannedBotEvent](turn.BotEvents[3]))

	d, _ := turn.Bot(2)
	assert.Equal(t, DroidStartEnergy, d.Energy)
}

func TestRescan(t *testing.T) {
	tests := []struct {
		name      string
		rescan    bool
		wantScans int
	}{
		{"rescan repeats the last sweep", true, 1},
		{"still radar only sees its own line", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// bot 2 sits about 27 degrees off bot 1's radar
			u := newTestUpdater(t, DefaultGameSetup(), placed(1, 100, 300, 0), placed(2, 300, 400, 90))
			turn := update(t, u, nil)
			require.Empty(t, eventsOf[*ScannedBotEvent](turn.BotEvents[1]))

			turn = update(t, u, map[int]*BotIntent{1: {RadarTurnRate: ptr(45.0)}})
			require.Len(t, eventsOf[*ScannedBotEvent](turn.BotEvents[1]), 1)

			turn = update(t, u, map[int]*BotIntent{1: {RadarTurnRate: ptr(0.0), Rescan: ptr(tt.rescan)}})
			assert.Len(t, eventsOf[*ScannedBotEvent](turn.BotEvents[1]), tt.wantScans)
		})
	}
}

func TestRadarSweepAndAdjustments(t *testing.T) {
	u := newTestUpdater(t, DefaultGameSetup(), placed(1, 100, 300, 0), placed(2, 600, 300, 0))
	update(t, u, nil)

	turn := update(t, u, map[int]*BotIntent{1: {
		TurnRate:              ptr(10.0),
		GunTurnRate:           ptr(20.0),
		RadarTurnRate:         ptr(45.0),
		AdjustGunForBodyTurn:  ptr(true),
		AdjustRadarForGunTurn: ptr(true),
	}})
	b, _ := turn.Bot(1)
	assert.InDelta(t, 10, b.Direction, 1e-9)
	assert.InDelta(t, 20, b.GunDirection, 1e-9)
	// radar compensates the gun's relative turn only, so it still rides the body
	assert.InDelta(t, 55, b.RadarDirection, 1e-9)
	assert.InDelta(t, 55, b.RadarSweep, 1e-9)
}

func TestWallHitDamagesOnce(t *testing.T) {
	u := newTestUpdater(t, DefaultGameSetup(), placed(1, 30, 300, 180), placed(2, 600, 300, 90))
	update(t, u, nil)

	intents := map[int]*BotIntent{1: {TargetSpeed: ptr(8.0)}}
	hits := 0
	for i := 0; i < 8; i++ {
		turn := update(t, u, intents)
		intents = nil
		hits += len(eventsOf[*BotHitWallEvent](turn.BotEvents[1]))
	}
	assert.Equal(t, 1, hits)

	b, _ := u.State().LastTurn().Bot(1)
	assert.InDelta(t, StartEnergy-WallDamage(5), b.Energy, 1e-9)
	assert.Equal(t, BotBoundingCircleRadius, b.X)
}

func TestBulletsCollide(t *testing.T) {
	u := newTestUpdater(t, quickGunSetup(), placed(1, 100, 300, 0), placed(2, 300, 100, 90))
	update(t, u, nil)

	intents := map[int]*BotIntent{1: {Firepower: ptr(1.0)}, 2: {Firepower: ptr(1.0)}}
	var collisions []*BulletHitBulletEvent
	for i := 0; i < 20 && len(collisions) == 0; i++ {
		turn := update(t, u, intents)
		intents = nil
		collisions = eventsOf[*BulletHitBulletEvent](turn.ObserverEvents)
		if len(collisions) > 0 {
			assert.Len(t, eventsOf[*BulletHitBulletEvent](turn.BotEvents[1]), 1)
			assert.Len(t, eventsOf[*BulletHitBulletEvent](turn.BotEvents[2]), 1)
			assert.Empty(t, turn.Bullets)
		}
	}
	require.Len(t, collisions, 2)
	assert.Equal(t, collisions[0].Bullet.ID, collisions[1].HitBullet.ID)
}

func TestBulletLeavesArena(t *testing.T) {
	u := newTestUpdater(t, quickGunSetup(), placed(1, 100, 300, 180), placed(2, 600, 300, 0))
	update(t, u, nil)

	intents := map[int]*BotIntent{1: {Firepower: ptr(3.0)}}
	var wallHits []*BulletHitWallEvent
	for i := 0; i < 15 && len(wallHits) == 0; i++ {
		turn := update(t, u, intents)
		intents = nil
		wallHits = eventsOf[*BulletHitWallEvent](turn.BotEvents[1])
	}
	require.Len(t, wallHits, 1)
	assert.Empty(t, u.State().LastTurn().Bullets)

	b, _ := u.State().LastTurn().Bot(1)
	assert.InDelta(t, StartEnergy-3, b.Energy, 1e-9)
}

func TestInactivityZap(t *testing.T) {
	setup := DefaultGameSetup()
	setup.MaxInactivityTurns = 2
	u := newTestUpdater(t, setup, placed(1, 100, 300, 90), placed(2, 600, 300, 90))

	for i := 0; i < 4; i++ {
		update(t, u, nil)
	}
	b, _ := u.State().LastTurn().Bot(1)
	assert.InDelta(t, StartEnergy-2*InactivityZap, b.Energy, 1e-9)
}

func TestTeamMessagesReachTeammatesOnly(t *testing.T) {
	a := placed(1, 100, 100, 90)
	b := placed(2, 300, 100, 90)
	c := placed(3, 500, 100, 90)
	a.TeamID, b.TeamID = 10, 10
	u := newTestUpdater(t, DefaultGameSetup(), a, b, c)
	update(t, u, nil)

	turn := update(t, u, map[int]*BotIntent{1: {TeamMessages: []TeamMessage{{Message: "go", MessageType: "cmd"}}}})
	msgs := eventsOf[*TeamMessageEvent](turn.BotEvents[2])
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, msgs[0].SenderID)
	assert.Equal(t, "go", msgs[0].Message)
	assert.Empty(t, eventsOf[*TeamMessageEvent](turn.BotEvents[3]))
	assert.Empty(t, eventsOf[*TeamMessageEvent](turn.BotEvents[1]))

	// delivered once
	turn = update(t, u, nil)
	assert.Empty(t, eventsOf[*TeamMessageEvent](turn.BotEvents[2]))

	bot, _ := turn.Bot(1)
	assert.Equal(t, 1, bot.EnemyCount)
}

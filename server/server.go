// Package server runs matches: it accepts bots, observers and controllers
// over WebSocket, drives the turn clock and turns game snapshots into
// per-recipient messages.
package server

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lab1702/robo-arena/config"
	"github.com/lab1702/robo-arena/game"
	"github.com/lab1702/robo-arena/storage"
	"github.com/lab1702/robo-arena/telemetry"
	"github.com/lab1702/robo-arena/timer"
	"github.com/rs/zerolog"
)

// State is the lifecycle state of the server
type State string

const (
	StateWaitForParticipants State = "WAIT_FOR_PARTICIPANTS_TO_JOIN"
	StateWaitForReady        State = "WAIT_FOR_READY_PARTICIPANTS"
	StateGameRunning         State = "GAME_RUNNING"
	StateGamePaused          State = "GAME_PAUSED"
	StateGameStopped         State = "GAME_STOPPED"
)

// MatchRecorder receives every finished match
type MatchRecorder interface {
	Record(m *storage.MatchRecord) error
}

// TurnObserver receives statistics for every computed turn
type TurnObserver interface {
	RecordTurn(ctx context.Context, s telemetry.TurnSample)
}

// MatchHistory lists finished matches for the HTTP API
type MatchHistory interface {
	RecentMatches(ctx context.Context, limit int) ([]storage.MatchRecord, error)
}

// clock is the part of timer.ResettableTimer the server drives
type clock interface {
	Schedule(minDelay, maxDelay time.Duration)
	NotifyReady()
	Pause()
	Resume()
	Cancel()
	Shutdown()
}

// Option configures a Server
type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

func WithRecorder(r MatchRecorder) Option {
	return func(s *Server) { s.recorder = r }
}

func WithTurnObserver(o TurnObserver) Option {
	return func(s *Server) { s.turns = o }
}

func WithHistory(h MatchHistory) Option {
	return func(s *Server) { s.history = h }
}

// WithSeed makes start positions reproducible
func WithSeed(seed int64) Option {
	return func(s *Server) { s.seed = &seed }
}

// Server manages connections and the match lifecycle
type Server struct {
	cfg      config.ServerConfig
	defaults game.GameSetup
	log      zerolog.Logger
	upgrader websocket.Upgrader
	recorder MatchRecorder
	turns    TurnObserver
	history  MatchHistory
	seed     *int64

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	readyTimer clock
	turnTimer  clock

	mu           sync.Mutex
	clients      map[int]*Client
	nextClientID int
	state        State
	tps          int
	match        *match
}

// match is the game in progress, from start-game until it ends or is aborted
type match struct {
	id           string
	setup        game.GameSetup
	startedAt    time.Time
	bots         map[int]*Client // bot id -> connection
	participants map[int]game.Participant
	ready        map[int]bool

	updater     *game.ModelUpdater
	intents     map[int]*game.BotIntent
	awaiting    map[int]bool // bots that got a tick and have not answered
	roundNumber int
	lastTick    int // turn number of the last tick sent, 0 when none is pending
	stepping    bool
}

// NewServer creates a game server. The hub loop must be started with Run.
func NewServer(cfg config.ServerConfig, defaults game.GameSetup, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		defaults:   defaults,
		log:        zerolog.Nop(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[int]*Client),
		state:      StateWaitForParticipants,
		tps:        cfg.DefaultTPS,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.SendBufferSize < 1 {
		s.cfg.SendBufferSize = 256
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin:       s.isValidOrigin,
		EnableCompression: true,
	}
	s.readyTimer = timer.New(s.onReadyTimeout, timer.WithLogger(s.log))
	s.turnTimer = timer.New(s.onTurn, timer.WithLogger(s.log))
	return s
}

// Shutdown stops the timers. Call after Run has returned or is returning.
func (s *Server) Shutdown() {
	s.readyTimer.Shutdown()
	s.turnTimer.Shutdown()
}

// State returns the current lifecycle state
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status is the snapshot served by /api/status
type Status struct {
	State       State     `json:"state"`
	TPS         int       `json:"tps"`
	MatchID     string    `json:"matchId,omitempty"`
	RoundNumber int       `json:"roundNumber"`
	TurnNumber  int       `json:"turnNumber"`
	Bots        []BotInfo `json:"bots"`
	Observers   int       `json:"observers"`
	Controllers int       `json:"controllers"`
}

// Status returns a snapshot of the server
func (s *Server) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State: s.state,
		TPS:   s.tps,
		Bots:  s.botList(),
	}
	for _, c := range s.clients {
		switch c.kind {
		case kindObserver:
			st.Observers++
		case kindController:
			st.Controllers++
		}
	}
	if m := s.match; m != nil {
		st.MatchID = m.id
		if m.updater != nil {
			st.RoundNumber = m.updater.RoundNumber()
			st.TurnNumber = m.updater.TurnNumber()
		}
	}
	return st
}

// botList returns every handshaken bot ordered by connection. Must hold s.mu.
func (s *Server) botList() []BotInfo {
	bots := make([]BotInfo, 0)
	for _, c := range s.sortedClients(kindBot) {
		hs := c.handshake
		bots = append(bots, BotInfo{
			SessionID:   c.SessionID,
			Name:        hs.Name,
			Version:     hs.Version,
			Authors:     hs.Authors,
			GameTypes:   hs.GameTypes,
			TeamID:      hs.TeamID,
			TeamName:    hs.TeamName,
			TeamVersion: hs.TeamVersion,
			IsDroid:     hs.IsDroid,
			BotAddress:  c.Address,
		})
	}
	return bots
}

// sortedClients returns the clients of the given kinds ordered by id. Must hold s.mu.
func (s *Server) sortedClients(kinds ...clientKind) []*Client {
	var out []*Client
	for _, c := range s.clients {
		for _, k := range kinds {
			if c.kind == k {
				out = append(out, c)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// toObservers sends to every observer and controller. Must hold s.mu.
func (s *Server) toObservers(msg ServerMessage) {
	for _, c := range s.sortedClients(kindObserver, kindController) {
		c.trySend(msg)
	}
}

// toParticipants sends to every connected bot of the match. Must hold s.mu.
func (s *Server) toParticipants(msg ServerMessage) {
	if s.match == nil {
		return
	}
	for _, id := range sortedIDs(s.match.bots) {
		s.match.bots[id].trySend(msg)
	}
}

func (s *Server) broadcastBotList() {
	s.toObservers(ServerMessage{Type: MsgTypeBotListUpdate, Data: BotListUpdate{Bots: s.botList()}})
}

func sortedIDs[V any](m map[int]V) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// startGame handles start-game from a controller
func (s *Server) startGame(req StartGame) {
	if s.state != StateWaitForParticipants && s.state != StateGameStopped {
		s.log.Warn().Str("state", string(s.state)).Msg("Ignoring start-game, a match is in progress")
		return
	}

	setup := s.defaults
	if req.GameSetup != nil {
		setup = req.GameSetup.apply(setup)
	}
	if err := setup.Validate(); err != nil {
		s.log.Warn().Err(err).Msg("Ignoring start-game")
		return
	}

	selected := s.selectBots(setup.GameType, req.BotAddresses)
	if len(selected) < setup.MinNumberOfParticipants {
		s.log.Warn().Int("bots", len(selected)).Int("min", setup.MinNumberOfParticipants).
			Msg("Ignoring start-game, not enough participants")
		return
	}
	if setup.MaxNumberOfParticipants > 0 && len(selected) > setup.MaxNumberOfParticipants {
		s.log.Warn().Int("bots", len(selected)).Int("max", setup.MaxNumberOfParticipants).
			Msg("Ignoring start-game, too many participants")
		return
	}

	m := &match{
		id:           uuid.NewString(),
		setup:        setup,
		bots:         make(map[int]*Client, len(selected)),
		participants: make(map[int]game.Participant, len(selected)),
		ready:        make(map[int]bool),
		intents:      make(map[int]*game.BotIntent),
		awaiting:     make(map[int]bool),
	}

	// Team ids come after the bot ids so the score tracker never confuses them
	teamIDs := make(map[int]int)
	nextTeamID := len(selected) + 1
	for i, c := range selected {
		id := i + 1
		hs := c.handshake
		p := game.Participant{
			ID:          id,
			Name:        hs.Name,
			Version:     hs.Version,
			TeamName:    hs.TeamName,
			TeamVersion: hs.TeamVersion,
			IsDroid:     hs.IsDroid,
		}
		if hs.TeamID != 0 {
			tid, ok := teamIDs[hs.TeamID]
			if !ok {
				tid = nextTeamID
				nextTeamID++
				teamIDs[hs.TeamID] = tid
			}
			p.TeamID = tid
		}
		if s.cfg.EnableInitialPosition {
			p.InitialPosition = hs.InitialPosition
		}
		c.botID = id
		m.bots[id] = c
		m.participants[id] = p
	}

	s.match = m
	s.state = StateWaitForReady
	s.tps = setup.DefaultTurnsPerSecond

	setupMsg := toSetupMessage(setup)
	for _, id := range sortedIDs(m.bots) {
		p := m.participants[id]
		teammates := make([]int, 0)
		for _, oid := range sortedIDs(m.participants) {
			if o := m.participants[oid]; oid != id && p.TeamID != 0 && o.TeamID == p.TeamID {
				teammates = append(teammates, oid)
			}
		}
		m.bots[id].trySend(ServerMessage{
			Type: MsgTypeGameStartedForBot,
			Data: GameStartedEventForBot{
				MyID:            id,
				TeammateIDs:     teammates,
				GameSetup:       setupMsg,
				InitialPosition: p.InitialPosition,
			},
		})
	}

	s.readyTimer.Schedule(setup.ReadyTimeout, setup.ReadyTimeout)
	s.log.Info().Str("match", m.id).Int("bots", len(m.bots)).Int("rounds", setup.NumberOfRounds).
		Msg("Game started, waiting for bots to be ready")
}

// selectBots returns the bots eligible for a match. Must hold s.mu.
func (s *Server) selectBots(gameType string, addresses []BotAddress) []*Client {
	var selected []*Client
	for _, c := range s.sortedClients(kindBot) {
		if len(c.handshake.GameTypes) > 0 && !contains(c.handshake.GameTypes, gameType) {
			continue
		}
		if len(addresses) > 0 && !containsAddress(addresses, c.Address) {
			continue
		}
		selected = append(selected, c)
	}
	return selected
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsAddress(list []BotAddress, a BotAddress) bool {
	for _, x := range list {
		if x.Port == a.Port && (x.Host == a.Host || (isLoopback(x.Host) && isLoopback(a.Host))) {
			return true
		}
	}
	return false
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// botReady handles bot-ready
func (s *Server) botReady(c *Client) {
	m := s.match
	if s.state != StateWaitForReady || m == nil || m.bots[c.botID] != c {
		s.log.Debug().Int("client", c.ID).Msg("Ignoring bot-ready outside of the ready phase")
		return
	}
	m.ready[c.botID] = true
	if len(m.ready) == len(m.bots) {
		s.readyTimer.Cancel()
		s.beginMatch()
	}
}

func (s *Server) onReadyTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.match
	if s.state != StateWaitForReady || m == nil {
		return
	}
	if len(m.ready) < m.setup.MinNumberOfParticipants {
		s.log.Warn().Int("ready", len(m.ready)).Int("min", m.setup.MinNumberOfParticipants).
			Msg("Not enough bots ready in time")
		s.abortMatch(StateWaitForParticipants)
		return
	}

	for _, id := range sortedIDs(m.bots) {
		if !m.ready[id] {
			c := m.bots[id]
			c.trySend(ServerMessage{Type: MsgTypeGameAborted, Data: struct{}{}})
			c.botID = 0
			delete(m.bots, id)
			delete(m.participants, id)
		}
	}
	s.beginMatch()
}

// beginMatch starts the first turn with the ready bots. Must hold s.mu.
func (s *Server) beginMatch() {
	m := s.match
	if len(m.participants) == 0 {
		s.abortMatch(StateWaitForParticipants)
		return
	}

	participants := make([]game.Participant, 0, len(m.participants))
	infos := make([]ParticipantInfo, 0, len(m.participants))
	for _, id := range sortedIDs(m.participants) {
		p := m.participants[id]
		c := m.bots[id]
		participants = append(participants, p)
		infos = append(infos, ParticipantInfo{
			ID:          id,
			SessionID:   c.SessionID,
			Name:        p.Name,
			Version:     p.Version,
			TeamID:      p.TeamID,
			TeamName:    p.TeamName,
			TeamVersion: p.TeamVersion,
			IsDroid:     p.IsDroid,
			BotAddress:  c.Address,
		})
	}

	opts := []game.Option{game.WithLogger(s.log.With().Str("match", m.id).Logger())}
	if s.seed != nil {
		opts = append(opts, game.WithRand(rand.New(rand.NewSource(*s.seed))))
	}
	updater, err := game.NewModelUpdater(m.setup, participants, opts...)
	if err != nil {
		s.log.Error().Err(err).Msg("Cannot start match")
		s.abortMatch(StateWaitForParticipants)
		return
	}

	m.updater = updater
	m.startedAt = time.Now().UTC()
	s.state = StateGameRunning

	s.toObservers(ServerMessage{
		Type: MsgTypeGameStartedForObserver,
		Data: GameStartedEventForObserver{GameSetup: toSetupMessage(m.setup), Participants: infos},
	})
	s.log.Info().Str("match", m.id).Int("participants", len(participants)).Msg("Match running")
	s.scheduleTurn()
}

// abortMatch cancels the timers, tells everyone and leaves the match
// behind. No results are produced. Must hold s.mu.
func (s *Server) abortMatch(next State) {
	s.readyTimer.Cancel()
	s.turnTimer.Cancel()
	s.turnTimer.Resume()

	msg := ServerMessage{Type: MsgTypeGameAborted, Data: struct{}{}}
	s.toParticipants(msg)
	s.toObservers(msg)
	s.finishMatch(next)
	s.log.Info().Str("state", string(next)).Msg("Game aborted")
}

// finishMatch detaches the bots from the match. Must hold s.mu.
func (s *Server) finishMatch(next State) {
	if s.match != nil {
		for _, c := range s.match.bots {
			c.botID = 0
		}
	}
	s.match = nil
	s.state = next
}

// turnDelay is the soft lower bound of a turn derived from the TPS
func (s *Server) turnDelay() time.Duration {
	if s.tps <= 0 {
		return 0
	}
	return time.Second / time.Duration(s.tps)
}

// scheduleTurn arms the turn clock. Must hold s.mu.
func (s *Server) scheduleTurn() {
	m := s.match
	minDelay := s.turnDelay()
	maxDelay := max(m.setup.TurnTimeout, minDelay)
	s.turnTimer.Schedule(minDelay, maxDelay)
	if s.state == StateGamePaused {
		s.turnTimer.Pause()
		return
	}
	if len(m.awaiting) == 0 {
		s.turnTimer.NotifyReady()
	}
}

// onTurn is the turn clock callback
func (s *Server) onTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.match
	if m == nil || m.updater == nil {
		return
	}
	switch {
	case s.state == StateGameRunning:
	case s.state == StateGamePaused && m.stepping:
		m.stepping = false
	case s.state == StateGamePaused:
		// a fire that raced with pause; keep the clock armed but frozen
		s.scheduleTurn()
		return
	default:
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("match", m.id).Msg("PANIC in turn")
			if s.match == m {
				s.scheduleTurn()
			}
		}
	}()
	s.runTurn()
}

// runTurn drains the intent buffer, advances the model and sends the
// results. Must hold s.mu.
func (s *Server) runTurn() {
	m := s.match

	intents := m.intents
	m.intents = make(map[int]*game.BotIntent)

	skipped := 0
	if m.lastTick > 0 {
		for _, id := range sortedIDs(m.awaiting) {
			if c := m.bots[id]; c != nil {
				c.trySend(ServerMessage{Type: MsgTypeSkippedTurn, Data: game.NewSkippedTurnEvent(m.lastTick)})
			}
			skipped++
		}
	}

	start := time.Now()
	state, err := m.updater.Update(intents)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, game.ErrArenaTooSmall) {
			s.log.Error().Err(err).Str("match", m.id).Msg("Cannot place bots")
			s.abortMatch(StateWaitForParticipants)
			return
		}
		s.log.Error().Err(err).Str("match", m.id).Msg("Turn update failed")
		s.scheduleTurn()
		return
	}

	round := state.LastRound()
	turn := round.LastTurn()
	if round.RoundNumber != m.roundNumber {
		m.roundNumber = round.RoundNumber
		msg := ServerMessage{Type: MsgTypeRoundStarted, Data: RoundStartedEvent{RoundNumber: round.RoundNumber}}
		s.toParticipants(msg)
		s.toObservers(msg)
	}

	s.sendTicks(round.RoundNumber, turn)

	m.awaiting = make(map[int]bool, len(turn.Bots))
	for _, b := range turn.Bots {
		if c := m.bots[b.ID]; c != nil && !c.closed {
			m.awaiting[b.ID] = true
		}
	}
	m.lastTick = turn.TurnNumber

	if s.turns != nil {
		s.turns.RecordTurn(context.Background(), telemetry.TurnSample{
			GameID:   m.id,
			Round:    round.RoundNumber,
			Turn:     turn.TurnNumber,
			Bots:     len(turn.Bots),
			Bullets:  len(turn.Bullets),
			Skipped:  skipped,
			Duration: elapsed,
		})
	}

	if round.RoundEnded {
		s.sendRoundEnded(round.RoundNumber, turn.TurnNumber)
		m.awaiting = make(map[int]bool)
		m.lastTick = 0
	}
	if state.GameEnded {
		s.endGame()
		return
	}
	s.scheduleTurn()
}

// sendTicks sends each bot its private view and observers the full one. A
// bot that died this turn gets one last tick carrying its death event.
func (s *Server) sendTicks(roundNumber int, turn *game.Turn) {
	m := s.match
	for _, id := range sortedIDs(m.bots) {
		state, alive := turn.Bot(id)
		events := turn.BotEvents[id]
		if !alive && len(events) == 0 {
			continue
		}
		if !alive {
			state = game.BotState{ID: id}
		}
		if events == nil {
			events = []game.Event{}
		}
		m.bots[id].trySend(ServerMessage{
			Type: MsgTypeTickForBot,
			Data: TickEventForBot{
				RoundNumber:  roundNumber,
				TurnNumber:   turn.TurnNumber,
				EnemyCount:   state.EnemyCount,
				BotState:     state,
				BulletStates: turn.BulletsOf(id),
				Events:       events,
			},
		})
	}

	events := turn.ObserverEvents
	if events == nil {
		events = []game.Event{}
	}
	s.toObservers(ServerMessage{
		Type: MsgTypeTickForObserver,
		Data: TickEventForObserver{
			RoundNumber:  roundNumber,
			TurnNumber:   turn.TurnNumber,
			BotStates:    turn.Bots,
			BulletStates: turn.Bullets,
			Events:       events,
		},
	})
}

func (s *Server) sendRoundEnded(roundNumber, turnNumber int) {
	m := s.match
	results := m.updater.RoundResults()
	for _, id := range sortedIDs(m.bots) {
		if r, ok := resultFor(results, m.participants[id]); ok {
			m.bots[id].trySend(ServerMessage{
				Type: MsgTypeRoundEndedForBot,
				Data: RoundEndedEventForBot{RoundNumber: roundNumber, TurnNumber: turnNumber, Results: r},
			})
		}
	}
	s.toObservers(ServerMessage{
		Type: MsgTypeRoundEndedForObserver,
		Data: RoundEndedEventForObserver{RoundNumber: roundNumber, TurnNumber: turnNumber, Results: results},
	})
}

// endGame publishes the final ranking and stores the match. Must hold s.mu.
func (s *Server) endGame() {
	m := s.match
	results := m.updater.Scores().Results()

	for _, id := range sortedIDs(m.bots) {
		if r, ok := resultFor(results, m.participants[id]); ok {
			m.bots[id].trySend(ServerMessage{
				Type: MsgTypeGameEndedForBot,
				Data: GameEndedEventForBot{NumberOfRounds: m.setup.NumberOfRounds, Results: r},
			})
		}
	}
	s.toObservers(ServerMessage{
		Type: MsgTypeGameEndedForObserver,
		Data: GameEndedEventForObserver{NumberOfRounds: m.setup.NumberOfRounds, Results: results},
	})

	if s.recorder != nil {
		rec := &storage.MatchRecord{
			ID:        m.id,
			Setup:     m.setup,
			StartedAt: m.startedAt,
			EndedAt:   time.Now().UTC(),
			Results:   results,
		}
		if err := s.recorder.Record(rec); err != nil {
			s.log.Warn().Err(err).Str("match", m.id).Msg("Match result not recorded")
		}
	}

	ev := s.log.Info().Str("match", m.id)
	if len(results) > 0 {
		ev = ev.Str("winner", results[0].Name).Float64("score", results[0].TotalScore)
	}
	ev.Msg("Game ended")
	s.finishMatch(StateGameStopped)
}

// resultFor finds the row a participant is ranked under
func resultFor(results []game.ParticipantResult, p game.Participant) (game.ParticipantResult, bool) {
	for _, r := range results {
		if r.ID == p.ScoreID() {
			return r, true
		}
	}
	return game.ParticipantResult{}, false
}

// botIntent buffers an intent for the next turn. Must hold s.mu.
func (s *Server) botIntent(c *Client, intent *game.BotIntent) {
	m := s.match
	if m == nil || m.updater == nil || c.botID == 0 || m.bots[c.botID] != c {
		return
	}
	if existing, ok := m.intents[c.botID]; ok {
		existing.Merge(intent)
	} else {
		m.intents[c.botID] = intent
	}

	if m.awaiting[c.botID] {
		delete(m.awaiting, c.botID)
		if len(m.awaiting) == 0 && s.state == StateGameRunning {
			s.turnTimer.NotifyReady()
		}
	}
}

func (s *Server) pauseGame() {
	if s.state != StateGameRunning {
		return
	}
	s.state = StateGamePaused
	s.turnTimer.Pause()
	s.toObservers(ServerMessage{Type: MsgTypeGamePausedForObserver, Data: struct{}{}})
	s.log.Info().Msg("Game paused")
}

func (s *Server) resumeGame() {
	if s.state != StateGamePaused {
		return
	}
	s.state = StateGameRunning
	s.match.stepping = false
	s.turnTimer.Resume()
	if len(s.match.awaiting) == 0 {
		s.turnTimer.NotifyReady()
	}
	s.toObservers(ServerMessage{Type: MsgTypeGameResumedForObserver, Data: struct{}{}})
	s.log.Info().Msg("Game resumed")
}

// nextTurn advances a paused game by exactly one turn
func (s *Server) nextTurn() {
	if s.state != StateGamePaused {
		return
	}
	s.match.stepping = true
	s.turnTimer.Resume()
	s.turnTimer.Schedule(0, 0)
}

func (s *Server) stopGame() {
	switch s.state {
	case StateWaitForReady, StateGameRunning, StateGamePaused:
		s.abortMatch(StateGameStopped)
	}
}

func (s *Server) changeTPS(tps int) {
	if tps == s.tps {
		return
	}
	s.tps = tps
	s.toObservers(ServerMessage{Type: MsgTypeTPSChanged, Data: TPSChangedEvent{TPS: tps}})
	if s.state == StateGameRunning {
		s.scheduleTurn()
	}
	s.log.Info().Int("tps", tps).Msg("TPS changed")
}

// handleDisconnect releases whatever the client held. Must hold s.mu.
func (s *Server) handleDisconnect(c *Client) {
	if c.kind != kindBot {
		return
	}
	s.broadcastBotList()

	m := s.match
	if m == nil || c.botID == 0 || m.bots[c.botID] != c {
		return
	}
	switch s.state {
	case StateWaitForReady:
		delete(m.bots, c.botID)
		delete(m.participants, c.botID)
		delete(m.ready, c.botID)
		if len(m.bots) == 0 {
			s.abortMatch(StateWaitForParticipants)
		} else if len(m.ready) == len(m.bots) {
			s.readyTimer.Cancel()
			s.beginMatch()
		}
	case StateGameRunning, StateGamePaused:
		if m.awaiting[c.botID] {
			delete(m.awaiting, c.botID)
			if len(m.awaiting) == 0 && s.state == StateGameRunning {
				s.turnTimer.NotifyReady()
			}
		}
	}
}

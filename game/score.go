package game

import (
	"sort"
)

// Score holds the raw score components of one participant (bot or team)
type Score struct {
	ParticipantID     int     `json:"participantId"`
	Survival          float64 `json:"survival"`
	LastSurvivorBonus float64 `json:"lastSurvivorBonus"`
	BulletDamage      float64 `json:"bulletDamage"`
	BulletKillBonus   float64 `json:"bulletKillBonus"`
	RamDamage         float64 `json:"ramDamage"`
	RamKillBonus      float64 `json:"ramKillBonus"`
	FirstPlaces       int     `json:"firstPlaces"`
	SecondPlaces      int     `json:"secondPlaces"`
	ThirdPlaces       int     `json:"thirdPlaces"`
}

// Total is the weighted sum of the components. Weights are applied when
// the components are registered, so the sum itself is unweighted.
func (s Score) Total() float64 {
	return s.Survival + s.LastSurvivorBonus + s.BulletDamage + s.BulletKillBonus + s.RamDamage + s.RamKillBonus
}

func (s *Score) add(o *Score) {
	s.Survival += o.Survival
	s.LastSurvivorBonus += o.LastSurvivorBonus
	s.BulletDamage += o.BulletDamage
	s.BulletKillBonus += o.BulletKillBonus
	s.RamDamage += o.RamDamage
	s.RamKillBonus += o.RamKillBonus
}

// ParticipantResult is one ranked row of a result table
type ParticipantResult struct {
	Rank       int     `json:"rank"`
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	Version    string  `json:"version"`
	IsTeam     bool    `json:"isTeam"`
	TotalScore float64 `json:"totalScore"`
	Score
}

// ScoreTracker accumulates scores per participant across rounds. Bots in a
// team are scored under the team id.
type ScoreTracker struct {
	participants map[int]Participant // bot id -> participant
	scoreIDs     []int               // distinct score ids, ascending

	round       map[int]*Score
	accumulated map[int]*Score

	// attacker score id -> victim bot id -> damage dealt this round
	bulletDamage map[int]map[int]float64
	ramDamage    map[int]map[int]float64
}

// NewScoreTracker creates a tracker for the given participants
func NewScoreTracker(participants []Participant) *ScoreTracker {
	st := &ScoreTracker{
		participants: make(map[int]Participant, len(participants)),
		accumulated:  make(map[int]*Score),
	}
	seen := make(map[int]bool)
	for _, p := range participants {
		st.participants[p.ID] = p
		if !seen[p.ScoreID()] {
			seen[p.ScoreID()] = true
			st.scoreIDs = append(st.scoreIDs, p.ScoreID())
			st.accumulated[p.ScoreID()] = &Score{ParticipantID: p.ScoreID()}
		}
	}
	sort.Ints(st.scoreIDs)
	st.StartRound()
	return st
}

// StartRound clears the per-round tables
func (st *ScoreTracker) StartRound() {
	st.round = make(map[int]*Score, len(st.scoreIDs))
	for _, id := range st.scoreIDs {
		st.round[id] = &Score{ParticipantID: id}
	}
	st.bulletDamage = make(map[int]map[int]float64)
	st.ramDamage = make(map[int]map[int]float64)
}

func (st *ScoreTracker) scoreIDOf(botID int) (int, bool) {
	p, ok := st.participants[botID]
	if !ok {
		return 0, false
	}
	return p.ScoreID(), true
}

// sameSide reports whether two bots are scored under the same participant
func (st *ScoreTracker) sameSide(botA, botB int) bool {
	a, okA := st.scoreIDOf(botA)
	b, okB := st.scoreIDOf(botB)
	return okA && okB && a == b
}

// RegisterBulletHit credits the shooter for damage dealt to the victim and,
// if the hit was fatal, the bullet kill bonus.
func (st *ScoreTracker) RegisterBulletHit(shooterID, victimID int, damage float64, killed bool) {
	if st.sameSide(shooterID, victimID) {
		return
	}
	sid, ok := st.scoreIDOf(shooterID)
	if !ok {
		return
	}
	dealt := addDamage(st.bulletDamage, sid, victimID, damage)
	st.round[sid].BulletDamage += damage * ScorePerBulletDamage
	if killed {
		st.round[sid].BulletKillBonus += dealt * BulletKillBonusPercentage
	}
}

// RegisterRamHit credits the rammer for ram damage and, if fatal, the ram kill bonus
func (st *ScoreTracker) RegisterRamHit(rammerID, victimID int, damage float64, killed bool) {
	if st.sameSide(rammerID, victimID) {
		return
	}
	sid, ok := st.scoreIDOf(rammerID)
	if !ok {
		return
	}
	dealt := addDamage(st.ramDamage, sid, victimID, damage)
	st.round[sid].RamDamage += damage * ScorePerRamDamage
	if killed {
		st.round[sid].RamKillBonus += dealt * RamKillBonusPercentage
	}
}

func addDamage(table map[int]map[int]float64, attacker, victim int, damage float64) float64 {
	if table[attacker] == nil {
		table[attacker] = make(map[int]float64)
	}
	table[attacker][victim] += damage
	return table[attacker][victim]
}

// RegisterDeaths awards the survival score: every participant with a bot
// still alive outlives each dead bot of another participant.
func (st *ScoreTracker) RegisterDeaths(deadIDs, aliveIDs []int) {
	alive := st.distinctScoreIDs(aliveIDs)
	for _, dead := range deadIDs {
		deadSID, ok := st.scoreIDOf(dead)
		if !ok {
			continue
		}
		for _, sid := range alive {
			if sid != deadSID {
				st.round[sid].Survival += ScorePerSurvival
			}
		}
	}
}

// EndRound awards the last survivor bonus, folds the round into the
// accumulated scores and updates placement counters. It returns the ranked
// results of the round.
func (st *ScoreTracker) EndRound(survivorIDs []int) []ParticipantResult {
	survivors := st.distinctScoreIDs(survivorIDs)
	if len(survivors) == 1 {
		st.round[survivors[0]].LastSurvivorBonus += ScorePerLastSurvivor * float64(len(st.scoreIDs)-1)
	}

	roundResults := st.rank(st.round)
	for _, r := range roundResults {
		acc := st.accumulated[r.ID]
		acc.add(st.round[r.ID])
		switch r.Rank {
		case 1:
			acc.FirstPlaces++
		case 2:
			acc.SecondPlaces++
		case 3:
			acc.ThirdPlaces++
		}
	}
	return roundResults
}

// RoundResults returns the ranked scores of the current round so far
func (st *ScoreTracker) RoundResults() []ParticipantResult {
	return st.rank(st.round)
}

// Results returns the ranked accumulated scores of the match
func (st *ScoreTracker) Results() []ParticipantResult {
	return st.rank(st.accumulated)
}

func (st *ScoreTracker) distinctScoreIDs(botIDs []int) []int {
	seen := make(map[int]bool)
	var ids []int
	for _, id := range botIDs {
		if sid, ok := st.scoreIDOf(id); ok && !seen[sid] {
			seen[sid] = true
			ids = append(ids, sid)
		}
	}
	sort.Ints(ids)
	return ids
}

// rank orders participants by descending total score and assigns competition ranks
func (st *ScoreTracker) rank(scores map[int]*Score) []ParticipantResult {
	results := make([]ParticipantResult, 0, len(st.scoreIDs))
	for _, sid := range st.scoreIDs {
		s := scores[sid]
		r := ParticipantResult{
			ID:         sid,
			TotalScore: s.Total(),
			Score:      *s,
		}
		r.Name, r.Version, r.IsTeam = st.describe(sid)
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].TotalScore > results[j].TotalScore
	})
	totals := make([]float64, len(results))
	for i := range results {
		totals[i] = results[i].TotalScore
	}
	for i, rank := range CompetitionRanks(totals) {
		results[i].Rank = rank
	}
	return results
}

// describe returns the display name of a score id: the team if any bot is teamed under it
func (st *ScoreTracker) describe(sid int) (name, version string, isTeam bool) {
	for _, p := range st.participants {
		if p.TeamID != 0 && p.TeamID == sid {
			return p.TeamName, p.TeamVersion, true
		}
	}
	if p, ok := st.participants[sid]; ok {
		return p.Name, p.Version, false
	}
	return "", "", false
}

// CompetitionRanks assigns "1224" ranking to scores (higher is better): equal
// scores share a rank and consume rank slots, so each rank is one more than the
// number of scores strictly greater. Ranks are returned in input order.
func CompetitionRanks(scores []float64) []int {
	ranks := make([]int, len(scores))
	for i, s := range scores {
		ahead := 0
		for _, o := range scores {
			if o > s {
				ahead++
			}
		}
		ranks[i] = ahead + 1
	}
	return ranks
}

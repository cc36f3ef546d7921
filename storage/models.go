package storage

import (
	"time"

	"gorm.io/datatypes"
)

// DatabaseModels lists every table owned by the store
var DatabaseModels = []interface{}{
	&Match{},
	&MatchResult{},
}

// Match is one finished game
type Match struct {
	ID             uint           `gorm:"primarykey"`
	UUID           string         `gorm:"size:36;uniqueIndex"`
	GameType       string         `gorm:"size:64"`
	NumberOfRounds int            `gorm:"not null"`
	Setup          datatypes.JSON `json:"setup"`
	StartedAt      time.Time      `gorm:"index"`
	EndedAt        time.Time
	Results        []MatchResult `gorm:"constraint:OnDelete:CASCADE"`
}

// MatchResult is one ranked row of a finished game
type MatchResult struct {
	ID                uint   `gorm:"primarykey"`
	MatchID           uint   `gorm:"index"`
	Rank              int    `gorm:"not null"`
	ParticipantID     int    `gorm:"not null"`
	Name              string `gorm:"size:127"`
	Version           string `gorm:"size:64"`
	IsTeam            bool
	TotalScore        float64
	Survival          float64
	LastSurvivorBonus float64
	BulletDamage      float64
	BulletKillBonus   float64
	RamDamage         float64
	RamKillBonus      float64
	FirstPlaces       int
	SecondPlaces      int
	ThirdPlaces       int
}

// Package storage persists the results of finished matches.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/lab1702/robo-arena/config"
	"github.com/lab1702/robo-arena/game"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MatchRecord is a finished match as handed over by the game server
type MatchRecord struct {
	ID        string                   `json:"id"`
	Setup     game.GameSetup           `json:"setup"`
	StartedAt time.Time                `json:"startedAt"`
	EndedAt   time.Time                `json:"endedAt"`
	Results   []game.ParticipantResult `json:"results"`
}

// ResultStore is implemented by every storage backend
type ResultStore interface {
	SaveMatch(ctx context.Context, m *MatchRecord) error
	RecentMatches(ctx context.Context, limit int) ([]MatchRecord, error)
	Close() error
}

// Open returns the store selected by cfg.Driver
func Open(cfg config.StorageConfig, log zerolog.Logger) (ResultStore, error) {
	gormCfg := &gorm.Config{
		SkipDefaultTransaction: false,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "none":
		log.Info().Msg("Match results are not persisted")
		return nopStore{}, nil
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(cfg.DSN), gormCfg)
	case "postgres":
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  cfg.DSN,
			PreferSimpleProtocol: true,
		}), gormCfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	store, err := newGormStore(db)
	if err != nil {
		return nil, err
	}
	log.Info().Str("driver", cfg.Driver).Msg("Connected to result database")
	return store, nil
}

type gormStore struct {
	db *gorm.DB
}

func newGormStore(db *gorm.DB) (*gormStore, error) {
	if err := db.AutoMigrate(DatabaseModels...); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &gormStore{db: db}, nil
}

func (s *gormStore) SaveMatch(ctx context.Context, m *MatchRecord) error {
	setup, err := json.Marshal(m.Setup)
	if err != nil {
		return fmt.Errorf("encode setup: %w", err)
	}

	row := Match{
		UUID:           m.ID,
		GameType:       m.Setup.GameType,
		NumberOfRounds: m.Setup.NumberOfRounds,
		Setup:          datatypes.JSON(setup),
		StartedAt:      m.StartedAt,
		EndedAt:        m.EndedAt,
	}
	for _, r := range m.Results {
		row.Results = append(row.Results, MatchResult{
			Rank:              r.Rank,
			ParticipantID:     r.ID,
			Name:              r.Name,
			Version:           r.Version,
			IsTeam:            r.IsTeam,
			TotalScore:        r.TotalScore,
			Survival:          r.Survival,
			LastSurvivorBonus: r.LastSurvivorBonus,
			BulletDamage:      r.BulletDamage,
			BulletKillBonus:   r.BulletKillBonus,
			RamDamage:         r.RamDamage,
			RamKillBonus:      r.RamKillBonus,
			FirstPlaces:       r.FirstPlaces,
			SecondPlaces:      r.SecondPlaces,
			ThirdPlaces:       r.ThirdPlaces,
		})
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("save match %s: %w", m.ID, err)
	}
	return nil
}

func (s *gormStore) RecentMatches(ctx context.Context, limit int) ([]MatchRecord, error) {
	var rows []Match
	err := s.db.WithContext(ctx).
		Preload("Results", func(db *gorm.DB) *gorm.DB { return db.Order("rank, participant_id") }).
		Order("ended_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load matches: %w", err)
	}

	records := make([]MatchRecord, 0, len(rows))
	for _, row := range rows {
		rec := MatchRecord{
			ID:        row.UUID,
			StartedAt: row.StartedAt,
			EndedAt:   row.EndedAt,
		}
		if err := json.Unmarshal(row.Setup, &rec.Setup); err != nil {
			return nil, fmt.Errorf("decode setup of match %s: %w", row.UUID, err)
		}
		for _, r := range row.Results {
			rec.Results = append(rec.Results, game.ParticipantResult{
				Rank:       r.Rank,
				ID:         r.ParticipantID,
				Name:       r.Name,
				Version:    r.Version,
				IsTeam:     r.IsTeam,
				TotalScore: r.TotalScore,
				Score: game.Score{
					ParticipantID:     r.ParticipantID,
					Survival:          r.Survival,
					LastSurvivorBonus: r.LastSurvivorBonus,
					BulletDamage:      r.BulletDamage,
					BulletKillBonus:   r.BulletKillBonus,
					RamDamage:         r.RamDamage,
					RamKillBonus:      r.RamKillBonus,
					FirstPlaces:       r.FirstPlaces,
					SecondPlaces:      r.SecondPlaces,
					ThirdPlaces:       r.ThirdPlaces,
				},
			})
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Persistent reports whether store keeps anything it is given
func Persistent(store ResultStore) bool {
	_, nop := store.(nopStore)
	return !nop
}

// nopStore drops everything
type nopStore struct{}

func (nopStore) SaveMatch(context.Context, *MatchRecord) error { return nil }
func (nopStore) RecentMatches(context.Context, int) ([]MatchRecord, error) {
	return []MatchRecord{}, nil
}
func (nopStore) Close() error { return nil }

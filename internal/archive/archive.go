// Package archive persists finished matches. Live matches only ever
// exist in the shared store's event log; a row lands here once the
// match reaches its terminal phase.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"battleship-backend/internal/engine"
)

var ErrNotFound = errors.New("match not archived")

type Archiver interface {
	Archive(ctx context.Context, final engine.State) error
}

type MatchRecord struct {
	MatchID    string `gorm:"primaryKey"`
	PlayerA    string
	PlayerB    string
	Winner     string
	BoardSize  int
	ShotCount  int
	FinishedAt time.Time
	Shots      []ShotRecord `gorm:"foreignKey:MatchID;references:MatchID"`
}

type ShotRecord struct {
	ID      uint   `gorm:"primaryKey"`
	MatchID string `gorm:"index"`
	Seq     int
	Shooter string
	Row     int
	Col     int
	Result  string
	FiredAt time.Time
}

// Records flattens a terminal match state into archive rows.
func Records(final engine.State, finishedAt time.Time) MatchRecord {
	rec := MatchRecord{
		MatchID:    final.MatchID,
		PlayerA:    string(final.Players[0]),
		PlayerB:    string(final.Players[1]),
		Winner:     string(final.Winner),
		BoardSize:  final.Size,
		ShotCount:  len(final.Shots),
		FinishedAt: finishedAt,
	}
	for i, sh := range final.Shots {
		rec.Shots = append(rec.Shots, ShotRecord{
			MatchID: final.MatchID,
			Seq:     i,
			Shooter: string(sh.Shooter),
			Row:     sh.Target.Row,
			Col:     sh.Target.Col,
			Result:  string(sh.Result),
			FiredAt: sh.At,
		})
	}
	return rec
}

type Postgres struct {
	db  *gorm.DB
	log *zap.Logger
}

var _ Archiver = (*Postgres)(nil)

func OpenPostgres(dsn string, log *zap.Logger) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	if err := db.AutoMigrate(&MatchRecord{}, &ShotRecord{}); err != nil {
		return nil, fmt.Errorf("migrate archive schema: %w", err)
	}
	return &Postgres{db: db, log: log}, nil
}

func (p *Postgres) Archive(ctx context.Context, final engine.State) error {
	if final.Phase != engine.PhaseFinished {
		return fmt.Errorf("refusing to archive unfinished match %s", final.MatchID)
	}
	rec := Records(final, time.Now().UTC())
	if err := p.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("archive match %s: %w", final.MatchID, err)
	}
	p.log.Info("match archived",
		zap.String("match_id", rec.MatchID),
		zap.String("winner", rec.Winner),
		zap.Int("shots", rec.ShotCount))
	return nil
}

func (p *Postgres) GetMatch(ctx context.Context, matchID string) (MatchRecord, error) {
	var rec MatchRecord
	err := p.db.WithContext(ctx).Preload("Shots").First(&rec, "match_id = ?", matchID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return MatchRecord{}, ErrNotFound
	}
	if err != nil {
		return MatchRecord{}, err
	}
	return rec, nil
}

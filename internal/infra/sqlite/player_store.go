// Package sqlite implements the player-data lookup over the bundled
// snap-count database.
package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/seanwh01/football-player-trivia-sub000/internal/domain"
)

type snapCount struct {
	bun.BaseModel `bun:"table:snap_counts"`

	PlayerID     string `bun:"player_id"`
	PlayerName   string `bun:"player_name"`
	Season       int    `bun:"season"`
	Team         string `bun:"team"`
	Position     string `bun:"position"`
	OffenseSnaps int    `bun:"offense_snaps"`
	DefenseSnaps int    `bun:"defense_snaps"`
	STSnaps      int    `bun:"st_snaps"`
}

// PlayerStore answers top-snap queries against the snap_counts table.
type PlayerStore struct {
	db *bun.DB
}

// Open connects to the sqlite database at path ("file::memory:?cache=shared"
// works for tests).
func Open(path string) (*PlayerStore, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, path)
	if err != nil {
		return nil, err
	}
	if err := sqldb.Ping(); err != nil {
		return nil, err
	}
	return &PlayerStore{db: bun.NewDB(sqldb, sqlitedialect.New())}, nil
}

func (s *PlayerStore) Close() error { return s.db.Close() }

// Migrate creates the snap_counts table when it does not exist yet; the
// shipped database already has it.
func (s *PlayerStore) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*snapCount)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Insert adds one snap-count row (fixtures and the data refresh job).
func (s *PlayerStore) Insert(ctx context.Context, playerID, playerName, team, position string, season, offense, defense, st int) error {
	row := &snapCount{
		PlayerID:     playerID,
		PlayerName:   playerName,
		Season:       season,
		Team:         team,
		Position:     position,
		OffenseSnaps: offense,
		DefenseSnaps: defense,
		STSnaps:      st,
	}
	_, err := s.db.NewInsert().Model(row).Exec(ctx)
	return err
}

// TopPlayers returns up to f.Limit players for the filter cell, ordered by
// the relevant snap column descending. An empty slice means the cell admits
// no valid question.
func (s *PlayerStore) TopPlayers(ctx context.Context, f domain.PlayerFilter) ([]domain.PlayerRecord, error) {
	var rows []snapCount
	err := s.db.NewSelect().
		Model(&rows).
		Where("position = ?", f.Position).
		Where("team = ?", f.Team).
		Where("season = ?", f.Season).
		OrderExpr("? DESC", bun.Ident(snapColumn(f.Side))).
		Limit(f.Limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	players := make([]domain.PlayerRecord, 0, len(rows))
	for _, row := range rows {
		players = append(players, splitName(row.PlayerName))
	}
	return players, nil
}

func snapColumn(side domain.SnapSide) string {
	switch side {
	case domain.SnapDefense:
		return "defense_snaps"
	case domain.SnapSpecial:
		return "st_snaps"
	default:
		return "offense_snaps"
	}
}

func splitName(full string) domain.PlayerRecord {
	fields := strings.Fields(full)
	switch len(fields) {
	case 0:
		return domain.PlayerRecord{}
	case 1:
		return domain.PlayerRecord{LastName: fields[0]}
	default:
		return domain.PlayerRecord{
			FirstName: fields[0],
			LastName:  strings.Join(fields[1:], " "),
		}
	}
}

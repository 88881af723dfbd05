// Package memory provides an in-memory player-data lookup for tests and
// demo games.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/seanwh01/football-player-trivia-sub000/internal/domain"
)

// PlayerStore is a static in-memory implementation of the player lookup.
type PlayerStore struct {
	mu    sync.RWMutex
	cells map[string][]domain.PlayerRecord
}

func NewPlayerStore() *PlayerStore {
	return &PlayerStore{cells: make(map[string][]domain.PlayerRecord)}
}

// Add registers candidate answers for one (position, team, season) cell, in
// rank order.
func (s *PlayerStore) Add(position, team string, season int, players ...domain.PlayerRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := cellKey(position, team, season)
	s.cells[key] = append(s.cells[key], players...)
}

func (s *PlayerStore) TopPlayers(_ context.Context, f domain.PlayerFilter) ([]domain.PlayerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	players := s.cells[cellKey(f.Position, f.Team, f.Season)]
	if f.Limit > 0 && len(players) > f.Limit {
		players = players[:f.Limit]
	}
	out := make([]domain.PlayerRecord, len(players))
	copy(out, players)
	return out, nil
}

func cellKey(position, team string, season int) string {
	return fmt.Sprintf("%s|%s|%d", position, team, season)
}

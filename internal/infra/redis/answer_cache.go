// Package redis caches candidate answer sets so repeated question sampling
// does not hammer the player database.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/seanwh01/football-player-trivia-sub000/internal/domain"
	"github.com/seanwh01/football-player-trivia-sub000/internal/game"
)

// AnswerCache decorates a PlayerLookup with a Redis cache. Entries are stored
// as JSON lists keyed per filter cell:
//
//	players:{position}:{team}:{season}:{side} -> [{firstName,lastName}, ...]
//
// Only non-empty results are cached: an empty cell means "resample", and
// re-checking it is cheap.
type AnswerCache struct {
	client *redis.Client
	next   game.PlayerLookup
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewAnswerCache(client *redis.Client, next game.PlayerLookup, ttl time.Duration) *AnswerCache {
	return &AnswerCache{
		client: client,
		next:   next,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *AnswerCache) TopPlayers(ctx context.Context, f domain.PlayerFilter) ([]domain.PlayerRecord, error) {
	key := c.key(f)

	if players, ok := c.fetch(ctx, key); ok {
		return players, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check in case another goroutine filled the key meanwhile.
		if players, ok := c.fetch(ctx, key); ok {
			return players, nil
		}
		players, err := c.next.TopPlayers(ctx, f)
		if err != nil {
			return nil, err
		}
		if len(players) > 0 {
			if data, err := json.Marshal(players); err == nil {
				_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()
			}
		}
		return players, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.PlayerRecord), nil
}

func (c *AnswerCache) fetch(ctx context.Context, key string) ([]domain.PlayerRecord, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var players []domain.PlayerRecord
	if err := json.Unmarshal(data, &players); err != nil {
		return nil, false
	}
	return players, true
}

func (c *AnswerCache) key(f domain.PlayerFilter) string {
	return fmt.Sprintf("players:%s:%s:%d:%s", f.Position, f.Team, f.Season, f.Side)
}

// ttlWithJitter spreads expirations by up to 10%.
func (c *AnswerCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

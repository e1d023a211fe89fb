package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const liveStateTTL = 2 * time.Hour

// LiveCache keeps the session-wide live snapshot and the score leaderboard in
// Redis so reconnecting clients and the hub's state-sync path do not hit the
// durable store on every request.
type LiveCache struct {
	redis *redis.Client
}

func NewLiveCache(client *redis.Client) *LiveCache {
	return &LiveCache{redis: client}
}

func (c *LiveCache) stateKey(code string) string {
	return fmt.Sprintf("session:%s:state", code)
}

func (c *LiveCache) leaderboardKey(sessionID uint) string {
	return fmt.Sprintf("session:%d:lb", sessionID)
}

func (c *LiveCache) GetState(ctx context.Context, code string) *GameState {
	data, err := c.redis.Get(ctx, c.stateKey(code)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("redis: get state for %s: %v", code, err)
		}
		return nil
	}

	var state GameState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		log.Printf("redis: unmarshal state for %s: %v", code, err)
		return nil
	}
	return &state
}

func (c *LiveCache) SetState(ctx context.Context, code string, state *GameState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal game state: %w", err)
	}
	return c.redis.Set(ctx, c.stateKey(code), data, liveStateTTL).Err()
}

func (c *LiveCache) DeleteState(ctx context.Context, code string) {
	if err := c.redis.Del(ctx, c.stateKey(code)).Err(); err != nil {
		log.Printf("redis: delete state for %s: %v", code, err)
	}
}

// UpdateLeaderboard overwrites a participant's score in the session ZSET.
func (c *LiveCache) UpdateLeaderboard(ctx context.Context, sessionID, userID uint, score int) error {
	return c.redis.ZAdd(ctx, c.leaderboardKey(sessionID), redis.Z{
		Score:  float64(score),
		Member: fmt.Sprintf("%d", userID),
	}).Err()
}

// TopScores returns up to limit (userID, score) pairs ordered by score
// descending. Best-effort live mirror; the durable store stays authoritative.
func (c *LiveCache) TopScores(ctx context.Context, sessionID uint, limit int) ([]LiveScore, error) {
	res, err := c.redis.ZRevRangeWithScores(ctx, c.leaderboardKey(sessionID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	scores := make([]LiveScore, 0, len(res))
	for _, z := range res {
		var userID uint
		if _, err := fmt.Sscanf(z.Member, "%d", &userID); err != nil {
			continue
		}
		scores = append(scores, LiveScore{UserID: userID, Score: int(z.Score)})
	}
	return scores, nil
}

func (c *LiveCache) ClearLeaderboard(ctx context.Context, sessionID uint) {
	if err := c.redis.Del(ctx, c.leaderboardKey(sessionID)).Err(); err != nil {
		log.Printf("redis: clear leaderboard for session %d: %v", sessionID, err)
	}
}

type LiveScore struct {
	UserID uint `json:"userId"`
	Score  int  `json:"score"`
}

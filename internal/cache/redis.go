// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list the room action journal is appended to.
const DefaultQueueName = "quizboard_actions"

// ActionRecord is one applied room command, as consumed by external tooling
// (replays, post-game statistics). Rooms are never rebuilt from it.
type ActionRecord struct {
	Room      string      `json:"room"`
	Index     int         `json:"index"`
	Actor     string      `json:"actor"`
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Journal receives applied room commands.
type Journal interface {
	Publish(ctx context.Context, rec ActionRecord) error
}

// NopJournal drops every record. Used when no Redis address is configured.
type NopJournal struct{}

func (NopJournal) Publish(context.Context, ActionRecord) error { return nil }

// RedisJournal pushes records onto a Redis list.
type RedisJournal struct {
	rdb   *redis.Client
	queue string
}

// ConnectRedis creates the journal client and checks the server answers.
func ConnectRedis(ctx context.Context, addr string, db int, queue string) (*RedisJournal, error) {
	if queue == "" {
		queue = DefaultQueueName
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &RedisJournal{rdb: rdb, queue: queue}, nil
}

// Publish serializes the record to JSON and appends it to the queue.
func (j *RedisJournal) Publish(ctx context.Context, rec ActionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal ActionRecord: %w", err)
	}
	if err := j.rdb.RPush(ctx, j.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", j.queue, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (j *RedisJournal) Close() error {
	return j.rdb.Close()
}

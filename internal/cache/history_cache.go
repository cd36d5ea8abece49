package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"docchat/internal/model"
)

// HistoryCache keeps a session's message history in redis. A nil
// *HistoryCache is a disabled cache: reads miss and writes are no-ops.
//
// Invalidate also sets a short-lived dirty marker. While it exists Store
// refuses to write, so a reader that loaded rows before the invalidating
// write cannot put stale history back.
type HistoryCache struct {
	client         *redisv9.Client
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

func NewHistoryCache(client *redisv9.Client, historyTTL, dirtyMarkerTTL time.Duration) *HistoryCache {
	if client == nil {
		return nil
	}
	if historyTTL <= 0 {
		historyTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &HistoryCache{
		client:         client,
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *HistoryCache) Load(ctx context.Context, sessionID uint) ([]model.Message, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, historyKey(sessionID)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var messages []model.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return messages, true, nil
}

// Store caches messages unless the session was invalidated recently. It
// reports whether the value was written.
func (c *HistoryCache) Store(ctx context.Context, sessionID uint, messages []model.Message) (bool, error) {
	if c == nil {
		return false, nil
	}
	dirty, err := c.client.Exists(ctx, dirtyKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	if dirty > 0 {
		return false, nil
	}

	payload, err := json.Marshal(messages)
	if err != nil {
		return false, fmt.Errorf("marshal history cache failed: %w", err)
	}
	if err := c.client.Set(ctx, historyKey(sessionID), payload, c.historyTTL).Err(); err != nil {
		return false, fmt.Errorf("redis set history failed: %w", err)
	}
	return true, nil
}

// Invalidate drops the cached history and marks the session dirty.
func (c *HistoryCache) Invalidate(ctx context.Context, sessionID uint) error {
	if c == nil {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		pipe.Del(ctx, historyKey(sessionID))
		pipe.Set(ctx, dirtyKey(sessionID), "1", c.dirtyMarkerTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate history failed: %w", err)
	}
	return nil
}

func historyKey(sessionID uint) string {
	return fmt.Sprintf("docchat:history:%d", sessionID)
}

func dirtyKey(sessionID uint) string {
	return fmt.Sprintf("docchat:history:dirty:%d", sessionID)
}

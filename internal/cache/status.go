package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"imagine/internal/domain"
)

const (
	taskKeyPrefix = "image:task:"
	taskTTL       = 10 * time.Minute
)

// StatusCache keeps snapshots of terminal tasks in redis so the read path
// can serve them without hitting the repository. Only terminal tasks are
// cached: they are immutable, so a stale entry cannot exist. The cache is
// never consulted for precondition checks; the repository stays the single
// source of truth.
type StatusCache struct {
	client *redis.Client
}

// NewStatusCache wraps a connected redis client.
func NewStatusCache(client *redis.Client) *StatusCache {
	return &StatusCache{client: client}
}

// Get returns the cached snapshot, or (nil, nil) on a miss.
func (c *StatusCache) Get(ctx context.Context, taskID string) (*domain.ImageTask, error) {
	data, err := c.client.Get(ctx, taskKeyPrefix+taskID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var task domain.ImageTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return &task, nil
}

// Set stores a terminal task snapshot. Non-terminal tasks are skipped.
func (c *StatusCache) Set(ctx context.Context, task *domain.ImageTask) error {
	if task == nil || !task.Status.IsTerminal() {
		return nil
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	return c.client.Set(ctx, taskKeyPrefix+task.ID, data, taskTTL).Err()
}

// Delete drops a cached snapshot, used when the owner removes the task.
func (c *StatusCache) Delete(ctx context.Context, taskID string) error {
	return c.client.Del(ctx, taskKeyPrefix+taskID).Err()
}

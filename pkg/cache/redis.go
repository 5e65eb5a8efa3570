package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"lms-system/internal/models"
)

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr string) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisCache{client: client}
}

func chatKey(userID uint, role string) string {
	return fmt.Sprintf("chat:history:%d:%s", userID, role)
}

func quotaKey(userID uint, role, date string) string {
	return fmt.Sprintf("chat:quota:%d:%s:%s", userID, role, date)
}

// AppendChatMessage pushes one message onto the end of the per-role
// transcript list.
func (c *RedisCache) AppendChatMessage(ctx context.Context, userID uint, role string, msg models.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.client.RPush(ctx, chatKey(userID, role), data).Err()
}

// LoadChatHistory returns the full transcript in append order. A missing key
// is an empty transcript, not an error.
func (c *RedisCache) LoadChatHistory(ctx context.Context, userID uint, role string) ([]models.ChatMessage, error) {
	raw, err := c.client.LRange(ctx, chatKey(userID, role), 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	messages := make([]models.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg models.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// IncrementDailyCount bumps the per-day message counter and returns the new
// value. The key is date-qualified so the quota resets on the next calendar
// day; the TTL only keeps stale keys from piling up.
func (c *RedisCache) IncrementDailyCount(ctx context.Context, userID uint, role, date string) (int64, error) {
	key := quotaKey(userID, role, date)
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		c.client.Expire(ctx, key, 48*time.Hour)
	}
	return count, nil
}

// DailyCount reads the per-day message counter without modifying it.
func (c *RedisCache) DailyCount(ctx context.Context, userID uint, role, date string) (int64, error) {
	count, err := c.client.Get(ctx, quotaKey(userID, role, date)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

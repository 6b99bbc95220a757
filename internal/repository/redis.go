package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"clinicbook/internal/config"
	"clinicbook/internal/domain"
	"clinicbook/internal/models"

	"github.com/redis/go-redis/v9"
)

// versionTTL outlives any slot entry so a dropped version key cannot
// resurrect stale availability.
const versionTTL = 48 * time.Hour

// RedisSlotCache stores computed availability in Redis. Every
// (professional, date) has a version counter that is part of the slot keys;
// bumping it orphans all cached lists of that day at once.
type RedisSlotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient builds a client from the redis config section.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisSlotCache(client *redis.Client, ttl time.Duration) *RedisSlotCache {
	return &RedisSlotCache{
		client: client,
		ttl:    ttl,
	}
}

func versionKey(professionalID int64, date string) string {
	return fmt.Sprintf("slots_version:%d:%s", professionalID, date)
}

func slotsKey(key domain.SlotKey, version int64) string {
	return fmt.Sprintf("slots:%d:%s:%d:v%d", key.ProfessionalID, key.Date, key.ServiceID, version)
}

func parseVersion(val string, err error) (int64, error) {
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get slots version from redis: %w", err)
	}
	v, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid slots version %q: %w", val, err)
	}
	return v, nil
}

func (r *RedisSlotCache) SlotVersion(ctx context.Context, professionalID int64, date string) (int64, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	return parseVersion(r.client.Get(ctx, versionKey(professionalID, date)).Result())
}

func (r *RedisSlotCache) GetSlots(ctx context.Context, key domain.SlotKey) ([]models.Slot, bool, error) {
	if r.client == nil {
		return nil, false, fmt.Errorf("redis client is nil")
	}
	v, err := r.SlotVersion(ctx, key.ProfessionalID, key.Date)
	if err != nil {
		return nil, false, err
	}

	val, err := r.client.Get(ctx, slotsKey(key, v)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get slots from redis: %w", err)
	}

	var slots []models.Slot
	if err := json.Unmarshal([]byte(val), &slots); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal slots: %w", err)
	}
	return slots, true, nil
}

// SetSlots writes under version inside a WATCH on the version key, so a list
// computed before a concurrent Invalidate is dropped instead of stored.
func (r *RedisSlotCache) SetSlots(ctx context.Context, key domain.SlotKey, version int64, slots []models.Slot) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if slots == nil {
		slots = []models.Slot{}
	}
	data, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("failed to marshal slots: %w", err)
	}

	vkey := versionKey(key.ProfessionalID, key.Date)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := parseVersion(tx.Get(ctx, vkey).Result())
		if err != nil {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, slotsKey(key, version), data, r.ttl)
			return nil
		})
		return err
	}, vkey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to set slots in redis: %w", err)
	}
	return nil
}

func (r *RedisSlotCache) Invalidate(ctx context.Context, professionalID int64, date string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	key := versionKey(professionalID, date)
	pipe := r.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, versionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to bump slots version: %w", err)
	}
	return nil
}

func (r *RedisSlotCache) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	key := fmt.Sprintf("rate_limit:booking:%d", userID)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

// Ping checks the connection.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close is nil-safe.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}

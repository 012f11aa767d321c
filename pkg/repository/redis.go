package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/example/crashkart/pkg/config"
	"github.com/example/crashkart/pkg/models"
)

type RedisRepository struct {
	client *redis.Client
	config *config.RedisConfig
}

func NewRedisRepository(cfg *config.RedisConfig) *RedisRepository {
	return &RedisRepository{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		}),
		config: cfg,
	}
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisRepository) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, expiration).Err()
}

func (r *RedisRepository) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

const chargeRulesKey = "charge-rules"

// CacheChargeRules stores the full rule set read at checkout. Admin writes
// invalidate it; slightly stale reads are acceptable because the computed
// fees are snapshotted into the order anyway.
func (r *RedisRepository) CacheChargeRules(ctx context.Context, rules []models.ChargeRule) error {
	return r.SetJSON(ctx, chargeRulesKey, rules, 10*time.Minute)
}

func (r *RedisRepository) GetChargeRulesCache(ctx context.Context) ([]models.ChargeRule, error) {
	var rules []models.ChargeRule
	if err := r.GetJSON(ctx, chargeRulesKey, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *RedisRepository) InvalidateChargeRules(ctx context.Context) error {
	return r.Del(ctx, chargeRulesKey)
}

// InvalidateOrder drops the cached order summary after a transition.
func (r *RedisRepository) InvalidateOrder(ctx context.Context, orderID string) error {
	return r.Del(ctx, fmt.Sprintf("order:%s", orderID))
}

// CacheOrder stores a read-side order summary for the tracking poll
// endpoint.
func (r *RedisRepository) CacheOrder(ctx context.Context, order *models.Order) error {
	return r.SetJSON(ctx, fmt.Sprintf("order:%s", order.ID), order, 30*time.Minute)
}

func (r *RedisRepository) GetOrderCache(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	if err := r.GetJSON(ctx, fmt.Sprintf("order:%s", orderID), &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkProcessed records a batch-job idempotency mark. It returns false when
// the mark already exists, signalling the item was handled by an earlier
// (possibly crashed) run.
func (r *RedisRepository) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, fmt.Sprintf("processed:%s", key), 1, ttl).Result()
}

// IsCacheMiss reports whether err is a plain cache miss rather than a
// transport failure.
func IsCacheMiss(err error) bool {
	return err == redis.Nil
}

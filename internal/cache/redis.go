package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/Ibrahimalmari/storefront-core/internal/domain"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 15 * time.Minute

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: defaultTTL,
	}
}

// RedisCache implements both CartCache and StoreCoordinates.
type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisCache) Get(ctx context.Context, key domain.CartKey) (*domain.CartSnapshot, error) {
	var snapshot domain.CartSnapshot
	if err := r.getJSON(ctx, cartKey(key), &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *RedisCache) Set(ctx context.Context, snapshot *domain.CartSnapshot) error {
	key := cartKey(domain.CartKey{CustomerID: snapshot.CustomerID, StoreID: snapshot.StoreID})
	return r.setJSON(ctx, key, snapshot)
}

func (r *RedisCache) Delete(ctx context.Context, key domain.CartKey) error {
	if err := r.client.Del(ctx, cartKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisCache) GetCoordinate(ctx context.Context, storeID string) (domain.Coordinate, error) {
	var c domain.Coordinate
	if err := r.getJSON(ctx, coordinateKey(storeID), &c); err != nil {
		return domain.Coordinate{}, err
	}
	return c, nil
}

func (r *RedisCache) SetCoordinate(ctx context.Context, storeID string, c domain.Coordinate) error {
	return r.setJSON(ctx, coordinateKey(storeID), c)
}

func (r *RedisCache) getJSON(ctx context.Context, key string, out any) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("redis get failed: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal %s failed: %w", key, err)
	}
	return nil
}

func (r *RedisCache) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s failed: %w", key, err)
	}
	if err := r.client.Set(ctx, key, data, r.ttl()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// ttl spreads expiry over a few minutes so entries written together do not
// expire together.
func (r *RedisCache) ttl() time.Duration {
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	return r.baseTTL + jitter
}

func cartKey(key domain.CartKey) string {
	return fmt.Sprintf("cart:%s:%s", key.CustomerID, key.StoreID)
}

func coordinateKey(storeID string) string {
	return fmt.Sprintf("store:geo:%s", storeID)
}

package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Ibrahimalmari/storefront-core/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and returns a RedisCache instance
func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := NewRedisCache(client)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return cache, mr, cleanup
}

var testKey = domain.CartKey{CustomerID: "42", StoreID: "7"}

func testSnapshot() *domain.CartSnapshot {
	return &domain.CartSnapshot{
		CustomerID: testKey.CustomerID,
		StoreID:    testKey.StoreID,
		StoreName:  "Bakery",
		Lines: []domain.CartLine{
			{ID: "11", ProductID: 1, UnitPrice: 1500, Quantity: 2},
			{ID: "12", ProductID: 2, UnitPrice: 750, Quantity: 3},
		},
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestGet_Success(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	data, _ := json.Marshal(testSnapshot())
	require.NoError(t, mr.Set("cart:42:7", string(data)))

	result, err := cache.Get(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, "Bakery", result.StoreName)
	assert.Len(t, result.Lines, 2)
	assert.Equal(t, int64(1), result.Lines[0].ProductID)
}

func TestGet_CacheMiss(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()

	result, err := cache.Get(context.Background(), domain.CartKey{CustomerID: "x", StoreID: "y"})
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, result)
}

func TestGet_InvalidJSON(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	data, _ := json.Marshal(testSnapshot())
	require.NoError(t, mr.Set(cartKey(testKey), string(data[:10])))

	_, err := cache.Get(context.Background(), testKey)
	require.ErrorContains(t, err, "unmarshal cart:42:7 failed")
}

func TestSet_RoundTrip(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	snapshot := testSnapshot()
	require.NoError(t, cache.Set(ctx, snapshot))
	assert.True(t, mr.Exists("cart:42:7"))

	got, err := cache.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, snapshot.Lines, got.Lines)
	assert.True(t, snapshot.UpdatedAt.Equal(got.UpdatedAt))
}

func TestSet_WithTTL(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	require.NoError(t, cache.Set(context.Background(), testSnapshot()))

	ttl := mr.TTL(cartKey(testKey))
	assert.GreaterOrEqual(t, ttl, 15*time.Minute, "TTL should be at least base TTL")
	assert.LessOrEqual(t, ttl, 19*time.Minute, "TTL should be base + max jitter")
}

func TestDelete(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, testSnapshot()))
	require.NoError(t, cache.Delete(ctx, testKey))
	assert.False(t, mr.Exists(cartKey(testKey)))

	// Deleting a missing key is not an error.
	assert.NoError(t, cache.Delete(ctx, testKey))
}

func TestCoordinates(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	_, err := cache.GetCoordinate(ctx, "3")
	assert.ErrorIs(t, err, ErrCacheMiss)

	want := domain.Coordinate{Latitude: 33.5138, Longitude: 36.2765}
	require.NoError(t, cache.SetCoordinate(ctx, "3", want))
	assert.True(t, mr.Exists("store:geo:3"))

	got, err := cache.GetCoordinate(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRedisDown(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	mr.Close()

	_, err := cache.Get(context.Background(), testKey)
	assert.ErrorContains(t, err, "redis get failed")
	assert.NotErrorIs(t, err, ErrCacheMiss)

	err = cache.SetCoordinate(context.Background(), "3", domain.Coordinate{})
	assert.ErrorContains(t, err, "redis set failed")
}

func TestKeyFormat(t *testing.T) {
	assert.Equal(t, "cart:42:7", cartKey(testKey))
	assert.Equal(t, "store:geo:9", coordinateKey("9"))
}

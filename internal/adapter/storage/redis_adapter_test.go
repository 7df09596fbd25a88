package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/coffee-order/internal/core/domain"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisLocker_SingleHolder(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	key := "payment:lock:" + uuid.NewString()
	defer client.Del(ctx, key)

	locker := NewRedisLocker(client)

	first, ok, err := locker.TryAcquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, first)

	_, ok, err = locker.TryAcquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// not the holder: must leave the lock in place
	require.NoError(t, locker.Release(ctx, key, "someone-else"))
	require.NoError(t, locker.Release(ctx, key, ""))
	assert.Equal(t, int64(1), client.Exists(ctx, key).Val())

	require.NoError(t, locker.Release(ctx, key, first))
	second, ok, err := locker.TryAcquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, locker.Release(ctx, key, second))
}

func TestRedisLocker_ExpiredLeaseNotReleasedByOldHolder(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	key := "payment:lock:" + uuid.NewString()
	defer client.Del(ctx, key)

	// one instance for both holders, as in the server
	locker := NewRedisLocker(client)

	stale, ok, err := locker.TryAcquire(ctx, key, 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	time.Sleep(100 * time.Millisecond)

	current, ok, err := locker.TryAcquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, locker.Release(ctx, key, stale))
	assert.Equal(t, int64(1), client.Exists(ctx, key).Val())

	_, ok, err = locker.TryAcquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "third holder must not get in while the current one holds the lease")

	require.NoError(t, locker.Release(ctx, key, current))
	assert.Equal(t, int64(0), client.Exists(ctx, key).Val())
}

func TestRedisLocker_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	key := "payment:lock:" + uuid.NewString()
	defer client.Del(ctx, key)

	locker := NewRedisLocker(client)
	var acquired atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := locker.TryAcquire(ctx, key, time.Minute)
			if err == nil && ok {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), acquired.Load())
}

type countingCatalog struct {
	products map[uuid.UUID]domain.Product
	calls    atomic.Int32
}

func (c *countingCatalog) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	c.calls.Add(1)
	p, ok := c.products[id]
	if !ok {
		return nil, domain.NotFound("product %s not found", id)
	}
	return &p, nil
}

func (c *countingCatalog) GetVariation(ctx context.Context, id uuid.UUID) (*domain.Variation, error) {
	c.calls.Add(1)
	for _, p := range c.products {
		for _, v := range p.Variations {
			if v.ID == id {
				return &v, nil
			}
		}
	}
	return nil, domain.NotFound("variation %s not found", id)
}

func (c *countingCatalog) ListProducts(ctx context.Context) ([]domain.Product, error) {
	c.calls.Add(1)
	var out []domain.Product
	for _, p := range c.products {
		out = append(out, p)
	}
	return out, nil
}

func TestCachedCatalog_ReadThrough(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()

	catalog := DefaultCatalog()
	latte := catalog[0]
	backing := &countingCatalog{products: map[uuid.UUID]domain.Product{latte.ID: latte}}
	client.Del(ctx, productKeyPrefix+latte.ID.String(), variationPrefix+latte.Variations[0].ID.String())

	cached := NewCachedCatalog(backing, client, time.Minute, nil)

	first, err := cached.GetProduct(ctx, latte.ID)
	require.NoError(t, err)
	second, err := cached.GetProduct(ctx, latte.ID)
	require.NoError(t, err)

	assert.Equal(t, int32(1), backing.calls.Load())
	assert.Equal(t, first.Name, second.Name)
	assert.True(t, second.BasePrice.Equal(latte.BasePrice))
	assert.Len(t, second.Variations, len(latte.Variations))

	v, err := cached.GetVariation(ctx, latte.Variations[0].ID)
	require.NoError(t, err)
	assert.Equal(t, latte.Variations[0].Name, v.Name)

	_, err = cached.GetProduct(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

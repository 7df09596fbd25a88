package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/coffee-order/internal/core/domain"
	"github.com/rl1809/coffee-order/internal/port"
)

const (
	menuCacheKey     = "catalog:menu"
	productKeyPrefix = "catalog:product:"
	variationPrefix  = "catalog:variation:"
)

// releaseLockScript deletes the key only while it still holds our token, so an
// expired lease taken over by another instance is left alone.
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker is an advisory lock built on SET NX PX. It does not fence: a
// holder whose lease expires mid-operation is not stopped.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// TryAcquire returns the holder's token, or ok=false when key is taken.
func (r *RedisLocker) TryAcquire(ctx context.Context, key string, lease time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, lease).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release deletes key only while it still holds token.
func (r *RedisLocker) Release(ctx context.Context, key, token string) error {
	if token == "" {
		return nil
	}
	if err := releaseLockScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

// CachedCatalog serves catalog reads from Redis and falls back to the
// wrapped repository on a miss. Cache failures never fail a read.
type CachedCatalog struct {
	next   port.CatalogRepository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedCatalog(next port.CatalogRepository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedCatalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedCatalog{next: next, client: client, ttl: ttl, logger: logger}
}

func (c *CachedCatalog) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	var cached productRecord
	if c.get(ctx, productKeyPrefix+id.String(), &cached) {
		if p, err := cached.toDomain(); err == nil {
			return &p, nil
		}
	}

	p, err := c.next.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	c.set(ctx, productKeyPrefix+id.String(), recordOf(*p))
	return p, nil
}

func (c *CachedCatalog) GetVariation(ctx context.Context, id uuid.UUID) (*domain.Variation, error) {
	var cached variationRecord
	if c.get(ctx, variationPrefix+id.String(), &cached) {
		if v, err := cached.toDomain(); err == nil {
			return &v, nil
		}
	}

	v, err := c.next.GetVariation(ctx, id)
	if err != nil {
		return nil, err
	}
	c.set(ctx, variationPrefix+id.String(), variationRecordOf(*v))
	return v, nil
}

func (c *CachedCatalog) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var cached []productRecord
	if c.get(ctx, menuCacheKey, &cached) {
		products := make([]domain.Product, 0, len(cached))
		for _, rec := range cached {
			p, err := rec.toDomain()
			if err != nil {
				products = nil
				break
			}
			products = append(products, p)
		}
		if products != nil {
			return products, nil
		}
	}

	products, err := c.next.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]productRecord, len(products))
	for i, p := range products {
		records[i] = recordOf(p)
	}
	c.set(ctx, menuCacheKey, records)
	return products, nil
}

func (c *CachedCatalog) get(ctx context.Context, key string, dst any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.WarnContext(ctx, "catalog cache read failed", "key", key, "error", err)
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func (c *CachedCatalog) set(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "catalog cache write failed", "key", key, "error", err)
	}
}

type productRecord struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	ImageURL    string            `json:"image_url"`
	BasePrice   decimal.Decimal   `json:"base_price"`
	Currency    string            `json:"currency"`
	Available   bool              `json:"available"`
	Variations  []variationRecord `json:"variations"`
}

type variationRecord struct {
	ID              uuid.UUID       `json:"id"`
	ProductID       uuid.UUID       `json:"product_id"`
	Name            string          `json:"name"`
	PriceAdjustment decimal.Decimal `json:"price_adjustment"`
	Currency        string          `json:"currency"`
}

func recordOf(p domain.Product) productRecord {
	rec := productRecord{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		ImageURL:    p.ImageURL,
		BasePrice:   p.BasePrice.Amount(),
		Currency:    p.BasePrice.Currency(),
		Available:   p.Available,
	}
	for _, v := range p.Variations {
		rec.Variations = append(rec.Variations, variationRecordOf(v))
	}
	return rec
}

func variationRecordOf(v domain.Variation) variationRecord {
	return variationRecord{
		ID:              v.ID,
		ProductID:       v.ProductID,
		Name:            v.Name,
		PriceAdjustment: v.PriceAdjustment.Amount(),
		Currency:        v.PriceAdjustment.Currency(),
	}
}

func (r productRecord) toDomain() (domain.Product, error) {
	price, err := domain.NewMoney(r.BasePrice, r.Currency)
	if err != nil {
		return domain.Product{}, err
	}
	p := domain.Product{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		ImageURL:    r.ImageURL,
		BasePrice:   price,
		Available:   r.Available,
	}
	for _, vr := range r.Variations {
		v, err := vr.toDomain()
		if err != nil {
			return domain.Product{}, err
		}
		p.Variations = append(p.Variations, v)
	}
	return p, nil
}

func (r variationRecord) toDomain() (domain.Variation, error) {
	adj, err := domain.NewMoney(r.PriceAdjustment, r.Currency)
	if err != nil {
		return domain.Variation{}, err
	}
	return domain.Variation{ID: r.ID, ProductID: r.ProductID, Name: r.Name, PriceAdjustment: adj}, nil
}

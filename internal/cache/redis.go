package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fjod/storefront/internal/domain"
)

const DefaultTTL = 15 * time.Minute

// maxJitter spreads expiry so carts cached together do not expire together.
const maxJitter = 5 * time.Minute

// tombstoneVersion outranks any real cart version.
const tombstoneVersion = math.MaxInt64

// setIfNewer stores ARGV[1] only when the cached entry is missing or carries
// an older version, so a slow reader cannot overwrite a newer write.
var setIfNewer = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, decoded = pcall(cjson.decode, cur)
  if ok and decoded['version'] and tonumber(decoded['version']) >= tonumber(ARGV[2]) then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{
		client:  client,
		baseTTL: ttl,
	}
}

// entry is the cached form. Version is not part of the cart's JSON, so it is
// carried explicitly.
type entry struct {
	Cart    *domain.Cart `json:"cart"`
	Version int64        `json:"version"`
}

func (r *RedisCache) Get(ctx context.Context, cartID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(cartID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	if e.Cart == nil {
		return nil, ErrCacheMiss
	}
	e.Cart.Version = e.Version
	if e.Cart.Items == nil {
		e.Cart.Items = []domain.CartItem{}
	}
	return e.Cart, nil
}

func (r *RedisCache) Set(ctx context.Context, cart *domain.Cart) error {
	data, err := json.Marshal(entry{Cart: cart, Version: cart.Version})
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	ttl := r.ttl()
	err = setIfNewer.Run(ctx, r.client,
		[]string{cacheKey(cart.ID)},
		data, strconv.FormatInt(cart.Version, 10), ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete leaves a tombstone rather than removing the key, which keeps a
// concurrent reader from refilling the entry with the cart it read earlier.
// Get treats a tombstone as a miss.
func (r *RedisCache) Delete(ctx context.Context, cartID string) error {
	data, err := json.Marshal(entry{Version: tombstoneVersion})
	if err != nil {
		return fmt.Errorf("marshal tombstone failed: %w", err)
	}
	if err := r.client.Set(ctx, cacheKey(cartID), data, r.baseTTL).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisCache) ttl() time.Duration {
	return r.baseTTL + time.Duration(rand.Int63n(int64(maxJitter)))
}

func cacheKey(cartID string) string {
	return fmt.Sprintf("cart:%s", cartID)
}

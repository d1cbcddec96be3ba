package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"eduquiz-ledger/internal/domain"
)

// DetailsLoader produces the authoritative quiz snapshot on a cache miss.
// The app.Ledger satisfies it.
type DetailsLoader interface {
	GetQuizDetails(id domain.QuizID) (domain.Details, error)
}

// DetailsCache is a cache-aside read model for quiz details: JSON snapshots
// in Redis with a jittered TTL, singleflight on misses, explicit invalidation
// on writes.
type DetailsCache struct {
	client *redis.Client
	loader DetailsLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewDetailsCache(client *redis.Client, loader DetailsLoader, ttl time.Duration) *DetailsCache {
	return &DetailsCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *DetailsCache) GetQuizDetails(ctx context.Context, id domain.QuizID) (domain.Details, error) {
	key := c.key(id)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var details domain.Details
		if err := json.Unmarshal(raw, &details); err == nil {
			return details, nil
		}
		// Corrupt entry; fall through and rebuild it.
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check in case another goroutine filled it.
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var details domain.Details
			if err := json.Unmarshal(raw, &details); err == nil {
				return details, nil
			}
		}

		details, err := c.loader.GetQuizDetails(id)
		if err != nil {
			return domain.Details{}, err
		}

		if raw, err := json.Marshal(details); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return details, nil
	})
	if err != nil {
		return domain.Details{}, err
	}
	return result.(domain.Details), nil
}

// Invalidate drops the cached snapshot after a mutating operation.
func (c *DetailsCache) Invalidate(ctx context.Context, id domain.QuizID) {
	_ = c.client.Del(ctx, c.key(id)).Err()
}

func (c *DetailsCache) key(id domain.QuizID) string {
	return "quiz:" + strconv.FormatUint(uint64(id), 10) + ":details"
}

func (c *DetailsCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

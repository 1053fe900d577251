package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-session-service/internal/domain"
)

// CategoryLoader fetches category content from a backing store.
type CategoryLoader interface {
	LoadCategory(ctx context.Context, categoryID string) (domain.Category, error)
}

// CategoryRepository caches whole categories in Redis as JSON under
// quiz:category:{id} and falls back to a loader on cache miss.
type CategoryRepository struct {
	client *redis.Client
	loader CategoryLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCategoryRepository(client *redis.Client, loader CategoryLoader, ttl time.Duration) *CategoryRepository {
	return &CategoryRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CategoryRepository) LoadCategory(ctx context.Context, categoryID string) (domain.Category, error) {
	key := r.key(categoryID)

	if category, ok, err := r.fromCache(ctx, key); err == nil && ok {
		return category, nil
	}

	result, err, _ := r.sf.Do(categoryID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if category, ok, err := r.fromCache(ctx, key); err == nil && ok {
			return category, nil
		}

		category, err := r.loader.LoadCategory(ctx, categoryID)
		if err != nil {
			return domain.Category{}, err
		}

		data, err := json.Marshal(category)
		if err != nil {
			return domain.Category{}, fmt.Errorf("marshal category: %w", err)
		}
		// best-effort fill
		_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()
		return category, nil
	})
	if err != nil {
		return domain.Category{}, err
	}
	return result.(domain.Category), nil
}

func (r *CategoryRepository) fromCache(ctx context.Context, key string) (domain.Category, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Category{}, false, nil
	}
	if err != nil {
		return domain.Category{}, false, err
	}
	var category domain.Category
	if err := json.Unmarshal(data, &category); err != nil {
		return domain.Category{}, false, err
	}
	return category, true, nil
}

func (r *CategoryRepository) key(categoryID string) string {
	return "quiz:category:" + categoryID
}

func (r *CategoryRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

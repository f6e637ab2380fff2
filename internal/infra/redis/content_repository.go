package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/jhollyfer/cyber-sub000/internal/app"
	"github.com/jhollyfer/cyber-sub000/internal/domain"
)

// ContentRepository caches module and question content in Redis with TTL and
// falls back to a loader (typically the Postgres repository) on cache miss.
// Cache writes are best-effort: a Redis fault degrades to loader reads, it
// never fails the request. Keys:
//
//	content:modules                     JSON array of active modules
//	content:module:{id}                 JSON module
//	content:questions:{moduleID}        JSON array of active questions
//	content:question:{id}               JSON question
type ContentRepository struct {
	client *redis.Client
	loader app.ContentRepository
	ttl    time.Duration
	sf     singleflight.Group
}

func NewContentRepository(client *redis.Client, loader app.ContentRepository, ttl time.Duration) *ContentRepository {
	return &ContentRepository{client: client, loader: loader, ttl: ttl}
}

func (r *ContentRepository) FindModuleByID(ctx context.Context, id string) (domain.Module, error) {
	var module domain.Module
	err := r.cached(ctx, "content:module:"+id, &module, func() (interface{}, error) {
		return r.loader.FindModuleByID(ctx, id)
	})
	return module, err
}

func (r *ContentRepository) FindActiveModulesOrdered(ctx context.Context) ([]domain.Module, error) {
	var modules []domain.Module
	err := r.cached(ctx, "content:modules", &modules, func() (interface{}, error) {
		return r.loader.FindActiveModulesOrdered(ctx)
	})
	return modules, err
}

func (r *ContentRepository) FindActiveQuestionsByModule(ctx context.Context, moduleID string) ([]domain.Question, error) {
	var questions []domain.Question
	err := r.cached(ctx, "content:questions:"+moduleID, &questions, func() (interface{}, error) {
		return r.loader.FindActiveQuestionsByModule(ctx, moduleID)
	})
	return questions, err
}

func (r *ContentRepository) FindQuestionByID(ctx context.Context, id string) (domain.Question, error) {
	var question domain.Question
	err := r.cached(ctx, "content:question:"+id, &question, func() (interface{}, error) {
		return r.loader.FindQuestionByID(ctx, id)
	})
	return question, err
}

// cached reads key into dest, collapsing concurrent misses for the same key
// through singleflight and refilling the cache from load.
func (r *ContentRepository) cached(ctx context.Context, key string, dest interface{}, load func() (interface{}, error)) error {
	if raw, err := r.client.Get(ctx, key).Bytes(); err == nil {
		if err := json.Unmarshal(raw, dest); err == nil {
			return nil
		}
		// Corrupt cache entry; drop it and reload.
		_ = r.client.Del(ctx, key).Err()
	}

	raw, err, _ := r.sf.Do(key, func() (interface{}, error) {
		if raw, err := r.client.Get(ctx, key).Bytes(); err == nil {
			return raw, nil
		}
		value, err := load()
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		_ = r.client.Set(ctx, key, encoded, r.ttl).Err()
		return encoded, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), dest)
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coursehub/internal/microservices/http-api/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// generationGrace keeps a key's generation alive past its cached value, so a
// fill that started before a write can never see the counter vanish and restart at zero.
const generationGrace = 10 * time.Minute

// fillScript stores the value only if the key's generation is still the one
// observed before the store was read. KEYS[1]=value KEYS[2]=generation.
var fillScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// cachedProgressRepository serves Get from Redis. Every write bumps the key's
// generation and drops the cached value; a miss only fills the cache when no
// write happened between reading the generation and reading the store.
// A nil client turns it into a pass-through.
type cachedProgressRepository struct {
	next   ProgressRepository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedProgressRepository(next ProgressRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) ProgressRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &cachedProgressRepository{next: next, client: client, ttl: ttl, logger: logger}
}

func progressCacheKey(userID, lessonID string) string {
	return fmt.Sprintf("progress:user:%s:lesson:%s", userID, lessonID)
}

func progressGenerationKey(userID, lessonID string) string {
	return progressCacheKey(userID, lessonID) + ":gen"
}

func (r *cachedProgressRepository) Get(ctx context.Context, userID, lessonID string) (*models.ProgressRecord, error) {
	if r.client == nil {
		return r.next.Get(ctx, userID, lessonID)
	}
	key := progressCacheKey(userID, lessonID)

	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p models.ProgressRecord
		if jerr := json.Unmarshal(raw, &p); jerr == nil {
			return &p, nil
		}
		r.logger.Warn("progress_cache_corrupt", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("progress_cache_read_failed", zap.String("key", key), zap.Error(err))
	}

	genKey := progressGenerationKey(userID, lessonID)
	gen, genErr := r.client.Get(ctx, genKey).Result()
	switch {
	case errors.Is(genErr, redis.Nil):
		gen, genErr = "0", nil
	case genErr != nil:
		r.logger.Warn("progress_cache_read_failed", zap.String("key", genKey), zap.Error(genErr))
	}

	p, err := r.next.Get(ctx, userID, lessonID)
	if err != nil || p == nil || genErr != nil {
		return p, err
	}
	r.fill(ctx, key, genKey, gen, p)
	return p, nil
}

func (r *cachedProgressRepository) fill(ctx context.Context, key, genKey, gen string, p *models.ProgressRecord) {
	b, err := json.Marshal(p)
	if err != nil {
		return
	}
	stored, err := fillScript.Run(ctx, r.client, []string{key, genKey}, gen, b, r.ttl.Milliseconds()).Int()
	if err != nil {
		r.logger.Warn("progress_cache_write_failed", zap.String("key", key), zap.Error(err))
		return
	}
	if stored == 0 {
		r.logger.Debug("progress_cache_fill_skipped", zap.String("key", key), zap.String("generation", gen))
	}
}

func (r *cachedProgressRepository) Upsert(ctx context.Context, userID, lessonID string, fields ProgressFields) (*models.ProgressRecord, error) {
	p, err := r.next.Upsert(ctx, userID, lessonID, fields)
	r.invalidate(ctx, userID, lessonID)
	return p, err
}

func (r *cachedProgressRepository) Reset(ctx context.Context, userID, lessonID string) (*models.ProgressRecord, error) {
	p, err := r.next.Reset(ctx, userID, lessonID)
	r.invalidate(ctx, userID, lessonID)
	return p, err
}

func (r *cachedProgressRepository) ListByUser(ctx context.Context, userID string, lessonIDs []string) (map[string]*models.ProgressRecord, error) {
	return r.next.ListByUser(ctx, userID, lessonIDs)
}

func (r *cachedProgressRepository) ListRecent(ctx context.Context, userID string, limit int) ([]models.ProgressRecord, error) {
	return r.next.ListRecent(ctx, userID, limit)
}

func (r *cachedProgressRepository) invalidate(ctx context.Context, userID, lessonID string) {
	if r.client == nil {
		return
	}
	key := progressCacheKey(userID, lessonID)
	genKey := progressGenerationKey(userID, lessonID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.PExpire(ctx, genKey, r.ttl+generationGrace)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		r.logger.Warn("progress_cache_invalidate_failed", zap.String("key", key), zap.Error(err))
	}
}

package incomelimits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	limitsKeyPrefix = "ami:limits:"
	limitsTTL       = 24 * time.Hour
)

// CachedReader caches limits lookups in redis. Limits change at most
// yearly, so a 24h TTL keeps the external service out of the hot path.
// A nil redis client makes the cache a passthrough; cache failures fall
// through to the inner reader and are logged, never surfaced.
type CachedReader struct {
	inner  Reader
	client *redis.Client
	logger *slog.Logger
}

func NewCachedReader(inner Reader, client *redis.Client, logger *slog.Logger) *CachedReader {
	return &CachedReader{inner: inner, client: client, logger: logger}
}

func limitsKey(state, county string, year int) string {
	return fmt.Sprintf("%s%s:%s:%d", limitsKeyPrefix, state, county, year)
}

func (r *CachedReader) FetchLimits(ctx context.Context, state, county string, year int) (*LimitSet, error) {
	key := limitsKey(state, county, year)
	if r.client != nil {
		raw, err := r.client.Get(ctx, key).Result()
		if err == nil {
			var limits LimitSet
			if jsonErr := json.Unmarshal([]byte(raw), &limits); jsonErr == nil {
				return &limits, nil
			}
			// A corrupt entry is treated as a miss and rewritten below.
		} else if !errors.Is(err, redis.Nil) {
			r.logger.WarnContext(ctx, "limits cache read failed", "error", err, "key", key)
		}
	}

	limits, err := r.inner.FetchLimits(ctx, state, county, year)
	if err != nil {
		return nil, err
	}

	if r.client != nil {
		if raw, jsonErr := json.Marshal(limits); jsonErr == nil {
			if err := r.client.Set(ctx, key, raw, limitsTTL).Err(); err != nil {
				r.logger.WarnContext(ctx, "limits cache write failed", "error", err, "key", key)
			}
		}
	}
	return limits, nil
}

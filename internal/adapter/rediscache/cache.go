// Package rediscache keeps FeatureServer query results in Redis so repeated
// runs do not refetch unchanged layers.
package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/knifflig/ChargeApp/internal/adapter/arcgis"
	"github.com/knifflig/ChargeApp/internal/observability"
)

const keyPrefix = "chargeapp:arcgis:"

// Cmdable is the subset of the Redis client used by the cache.
type Cmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Querier is an arcgis.Querier decorator backed by Redis. Redis failures are
// logged and the query falls through to the inner querier.
type Querier struct {
	inner   arcgis.Querier
	rdb     Cmdable
	source  string
	baseURL string
	ttl     time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New wraps inner with a Redis cache whose entries expire after ttl. Keys are
// derived from baseURL and the query, so layers sharing a source label do not collide.
func New(inner arcgis.Querier, rdb Cmdable, source, baseURL string, ttl time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Querier {
	return &Querier{
		inner:   inner,
		rdb:     rdb,
		source:  source,
		baseURL: baseURL,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

// NewClient opens a Redis client and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func (q *Querier) Query(ctx context.Context, query arcgis.Query) ([]arcgis.Feature, error) {
	key := cacheKey(q.source, q.baseURL, query)

	data, err := q.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var features []arcgis.Feature
		if err := json.Unmarshal(data, &features); err == nil {
			q.metrics.APICache.WithLabelValues(q.source, "redis", "hit").Inc()
			return features, nil
		}
		q.logger.Warn("discarding corrupt cache entry", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		q.logger.Warn("redis get failed", "key", key, "error", err)
	}
	q.metrics.APICache.WithLabelValues(q.source, "redis", "miss").Inc()

	features, err := q.inner.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(features) == 0 {
		return features, nil
	}
	payload, err := json.Marshal(features)
	if err != nil {
		q.logger.Warn("encode cache entry failed", "key", key, "error", err)
		return features, nil
	}
	if err := q.rdb.Set(ctx, key, payload, q.ttl).Err(); err != nil {
		q.logger.Warn("redis set failed", "key", key, "error", err)
	}
	return features, nil
}

func (q *Querier) ObjectIDs(ctx context.Context, query arcgis.Query) ([]int64, error) {
	return q.inner.ObjectIDs(ctx, query)
}

func cacheKey(source, baseURL string, query arcgis.Query) string {
	sum := sha256.Sum256([]byte(baseURL + "?" + query.Values().Encode()))
	return keyPrefix + source + ":" + hex.EncodeToString(sum[:])
}

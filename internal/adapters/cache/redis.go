package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

const defaultKeyPrefix = "polyarb:quotes:"

// payload is the JSON stored under each sport key.
type payload struct {
	FetchedAt time.Time               `json:"fetched_at"`
	Quotes    []domain.ReferenceQuote `json:"quotes"`
}

// Redis implements ports.QuoteCache on a Redis string key per sport.
//
// Key schema:
//
//	{prefix}{sport} - JSON payload, expires after retention
type Redis struct {
	rdb       *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedis connects using a redis:// URL and pings the server. Entries expire
// after retention; freshness is still decided by the caller from fetched_at.
func NewRedis(ctx context.Context, url, prefix string, retention time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache.NewRedis: parse url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache.NewRedis: ping: %w", err)
	}
	return newRedis(rdb, prefix, retention), nil
}

func newRedis(rdb *redis.Client, prefix string, retention time.Duration) *Redis {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Redis{rdb: rdb, prefix: prefix, retention: retention}
}

func (r *Redis) key(sport string) string { return r.prefix + sport }

// Get reads the sport's payload. A missing key is a miss, not an error.
func (r *Redis) Get(ctx context.Context, sport string) ([]domain.ReferenceQuote, time.Time, bool, error) {
	raw, err := r.rdb.Get(ctx, r.key(sport)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("cache.Redis.Get %s: %w", sport, err)
	}
	p, err := decodePayload(raw)
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("cache.Redis.Get %s: %w", sport, err)
	}
	return p.Quotes, p.FetchedAt, true, nil
}

// Put overwrites the sport's payload.
func (r *Redis) Put(ctx context.Context, sport string, quotes []domain.ReferenceQuote, fetchedAt time.Time) error {
	raw, err := encodePayload(quotes, fetchedAt)
	if err != nil {
		return fmt.Errorf("cache.Redis.Put %s: %w", sport, err)
	}
	if err := r.rdb.Set(ctx, r.key(sport), raw, r.retention).Err(); err != nil {
		return fmt.Errorf("cache.Redis.Put %s: %w", sport, err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

func encodePayload(quotes []domain.ReferenceQuote, fetchedAt time.Time) ([]byte, error) {
	return json.Marshal(payload{FetchedAt: fetchedAt.UTC(), Quotes: quotes})
}

func decodePayload(raw []byte) (payload, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return payload{}, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}

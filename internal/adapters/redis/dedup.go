package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"riskgate/internal/services/alerts"
	"riskgate/pkg/errors"
)

// Compile-time check
var _ alerts.Deduper = (*AlertDeduper)(nil)

// keyValue is the subset of *redis.Client the deduper needs
type keyValue interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

const dedupPrefix = "risk:alert:dedup:"

// AlertDeduper keeps alert cool-down windows in Redis so that every engine
// instance sees the same windows
type AlertDeduper struct {
	kv keyValue
}

// NewAlertDeduper creates a Redis-backed deduper
func NewAlertDeduper(kv keyValue) *AlertDeduper {
	return &AlertDeduper{kv: kv}
}

// Claim sets the key if absent. When it is taken the stored alert id is returned.
func (d *AlertDeduper) Claim(ctx context.Context, key string, alertID uuid.UUID, ttl time.Duration) (uuid.UUID, bool, error) {
	k := dedupPrefix + key

	// the owner can expire between SETNX and GET, so try twice
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := d.kv.SetNX(ctx, k, alertID.String(), ttl).Result()
		if err != nil {
			return uuid.Nil, false, errors.Wrap(err, "claim alert cool-down")
		}
		if ok {
			return alertID, true, nil
		}

		owner, err := d.kv.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return uuid.Nil, false, errors.Wrap(err, "read alert cool-down owner")
		}
		id, err := uuid.Parse(owner)
		if err != nil {
			return uuid.Nil, false, errors.Wrapf(err, "malformed cool-down owner %q", owner)
		}
		return id, false, nil
	}
	return uuid.Nil, false, errors.Wrap(errors.ErrDependencyUnavailable, "alert cool-down key is flapping")
}

// Release drops the cool-down window
func (d *AlertDeduper) Release(ctx context.Context, key string) error {
	if err := d.kv.Del(ctx, dedupPrefix+key).Err(); err != nil {
		return errors.Wrap(err, "release alert cool-down")
	}
	return nil
}

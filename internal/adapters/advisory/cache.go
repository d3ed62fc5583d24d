package advisory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"riskscan/internal/domain"
	"riskscan/internal/ports"
)

const keyPrefix = "riskscan:advisory:"

// Cache memoises advisory lookups in Redis. Redis errors never fail a
// lookup; they only bypass the cache.
type Cache struct {
	next   ports.Advisories
	client *redis.Client
	ttl    time.Duration
	log    logrus.FieldLogger
}

func NewCache(next ports.Advisories, client *redis.Client, ttl time.Duration, log logrus.FieldLogger) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{next: next, client: client, ttl: ttl, log: log.WithField("component", "advisory-cache")}
}

func (c *Cache) Lookup(ctx context.Context, ref string) (domain.Advisory, error) {
	key := keyPrefix + ref
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var adv domain.Advisory
		if err := json.Unmarshal(data, &adv); err == nil {
			return adv, nil
		}
		c.log.WithField("ref", ref).Warn("discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		c.log.WithError(err).WithField("ref", ref).Warn("advisory cache read failed")
	}

	adv, err := c.next.Lookup(ctx, ref)
	if err != nil {
		// Failures are not cached so a recovered service is asked again.
		return adv, err
	}
	if data, err := json.Marshal(adv); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.WithError(err).WithField("ref", ref).Warn("advisory cache write failed")
		}
	}
	return adv, nil
}

package clock

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Redis reads the shared clock of a Redis server with TIME, so every worker
// stamps jobs from the same source.
type Redis struct {
	client  *redis.Client
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewRedis(client *redis.Client, timeout time.Duration, log logrus.FieldLogger) *Redis {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Redis{client: client, timeout: timeout, log: log.WithField("component", "clock")}
}

func (c *Redis) Now(ctx context.Context) time.Time {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	t, err := c.client.Time(ctx).Result()
	if err != nil {
		c.log.WithError(err).Debug("redis TIME failed, using local clock")
		return Local{}.Now(ctx)
	}
	return t.UTC()
}

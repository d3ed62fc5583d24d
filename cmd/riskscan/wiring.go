package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"

	"riskscan/internal/adapters/advisory"
	"riskscan/internal/adapters/clock"
	pg "riskscan/internal/adapters/postgres"
	"riskscan/internal/adapters/rabbitmq"
	"riskscan/internal/adapters/sqlite"
	"riskscan/internal/enrichment"
	"riskscan/internal/ports"
	"riskscan/internal/scanner"
)

type store interface {
	ports.JobRepository
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) ([]int64, error)
}

func (a *app) openStore(ctx context.Context) (store, func(), error) {
	db := a.cfg.Database
	switch db.Driver {
	case "sqlite":
		path := db.URL
		if path == "" {
			path = "riskscan.db"
		}
		s, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		if db.URL == "" {
			return nil, nil, fmt.Errorf("database.url (RISKSCAN_DATABASE_URL) is required for postgres")
		}
		s, err := pg.Connect(ctx, db.URL, db.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
}

// redisClient returns nil when no Redis is configured.
func (a *app) redisClient() *redis.Client {
	if a.cfg.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
}

func (a *app) clock(rdb *redis.Client) ports.Clock {
	c := a.cfg.Clock
	switch c.Provider {
	case "http":
		return clock.NewHTTP(c.URL, c.Timeout, a.log)
	case "redis":
		if rdb != nil {
			return clock.NewRedis(rdb, c.Timeout, a.log)
		}
	}
	return clock.Local{}
}

func (a *app) advisories(rdb *redis.Client) ports.Advisories {
	c := a.cfg.Advisory
	if c.URL == "" {
		return nil
	}
	client := advisory.New(c.URL, c.Timeout)
	if rdb == nil {
		return client
	}
	return advisory.NewCache(client, rdb, c.CacheTTL, a.log)
}

func (a *app) executor() *scanner.Executor {
	s := a.cfg.Scanner
	return scanner.New(scanner.Config{Binary: s.Binary, Timeout: s.Timeout, TempDir: s.TempDir}, a.log)
}

func (a *app) enricher(rdb *redis.Client) *enrichment.Pipeline {
	return enrichment.New(a.advisories(rdb), a.log)
}

func (a *app) brokerConfig() rabbitmq.Config {
	b := a.cfg.Broker
	return rabbitmq.Config{URL: b.URL, Queue: b.Queue, ReconnectBase: b.ReconnectBase, ReconnectMax: b.ReconnectMax}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}

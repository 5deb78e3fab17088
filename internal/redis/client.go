package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Endpoint names a Redis server either by URL or by its split parts. A
// non-empty URL wins and may also carry the database number and TLS.
type Endpoint struct {
	URL      string
	Addr     string
	Username string
	Password string
}

// Options resolves the endpoint and applies the pool settings shared by the
// doctor locks and the rate limiter.
func (e Endpoint) Options() (*redis.Options, error) {
	opts := &redis.Options{Addr: e.Addr, Username: e.Username, Password: e.Password}
	if e.URL != "" {
		parsed, err := redis.ParseURL(e.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}

	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	opts.PoolSize = 20
	opts.MinIdleConns = 2
	return opts, nil
}

// Connect opens a client for the endpoint and pings it before returning.
func Connect(ctx context.Context, e Endpoint) (*redis.Client, error) {
	opts, err := e.Options()
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

// Package redis stores each arena namespace as one Redis hash.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/DoyleJ11/arena-sessions/internal/store"
)

const DefaultPrefix = "arena:"

type Store struct {
	rdb    *goredis.Client
	prefix string
}

var _ store.Store = (*Store)(nil)

// Open parses a redis:// URL, connects and pings.
func Open(ctx context.Context, redisURL string) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, DefaultPrefix), nil
}

func New(rdb *goredis.Client, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) hash(ns string) string { return s.prefix + ns }

func (s *Store) Get(ctx context.Context, ns, key string) ([]byte, error) {
	b, err := s.rdb.HGet(ctx, s.hash(ns), key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", ns, key, err)
	}
	return b, nil
}

func (s *Store) Put(ctx context.Context, ns, key string, value []byte) error {
	if err := s.rdb.HSet(ctx, s.hash(ns), key, value).Err(); err != nil {
		return fmt.Errorf("put %s/%s: %w", ns, key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, ns, key string) error {
	if err := s.rdb.HDel(ctx, s.hash(ns), key).Err(); err != nil {
		return fmt.Errorf("delete %s/%s: %w", ns, key, err)
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context, ns string) error {
	if err := s.rdb.Del(ctx, s.hash(ns)).Err(); err != nil {
		return fmt.Errorf("delete all %s: %w", ns, err)
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, key string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		hk := iter.Val()
		b, err := s.rdb.HGet(ctx, hk, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", key, err)
		}
		out[strings.TrimPrefix(hk, s.prefix)] = b
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", key, err)
	}
	return out, nil
}

// Package store is the durable key-value storage behind arena actors. Keys are
// partitioned by namespace; each arena id owns exactly one namespace.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

type Store interface {
	Get(ctx context.Context, ns, key string) ([]byte, error)
	Put(ctx context.Context, ns, key string, value []byte) error
	Delete(ctx context.Context, ns, key string) error
	DeleteAll(ctx context.Context, ns string) error
	// Scan returns the value stored under key in every namespace that has it.
	Scan(ctx context.Context, key string) (map[string][]byte, error)
	Close() error
}

// Scoped is a Store view bound to one namespace.
type Scoped struct {
	s  Store
	ns string
}

func Scope(s Store, ns string) Scoped {
	return Scoped{s: s, ns: ns}
}

func (sc Scoped) Namespace() string { return sc.ns }

func (sc Scoped) Get(ctx context.Context, key string) ([]byte, error) {
	return sc.s.Get(ctx, sc.ns, key)
}

func (sc Scoped) Put(ctx context.Context, key string, value []byte) error {
	return sc.s.Put(ctx, sc.ns, key, value)
}

func (sc Scoped) Delete(ctx context.Context, key string) error {
	return sc.s.Delete(ctx, sc.ns, key)
}

func (sc Scoped) DeleteAll(ctx context.Context) error {
	return sc.s.DeleteAll(ctx, sc.ns)
}

// GetJSON decodes key into v. It returns ErrNotFound when the key is absent.
func (sc Scoped) GetJSON(ctx context.Context, key string, v any) error {
	b, err := sc.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", sc.ns, key, err)
	}
	return nil
}

func (sc Scoped) PutJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", sc.ns, key, err)
	}
	return sc.Put(ctx, key, b)
}

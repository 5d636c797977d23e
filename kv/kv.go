// Package kv is the typed wrapper over hash/list/set/string primitives (C1)
// that every other component is built on. spec.md §1 treats the concrete
// KV store as an external collaborator; this package only defines the
// operations the core consumes and the two backends the module ships
// (Redis, and a degraded in-process fallback).
package kv

import (
	"context"
	"time"
)

// Store is the full set of operations components are allowed to use.
// All values are byte strings; nested structures are JSON-encoded by the
// caller before reaching this interface.
type Store interface {
	GetString(ctx context.Context, key string) (string, bool, error)
	SetString(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	KeysMatching(ctx context.Context, pattern string) ([]string, error)

	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	HashGet(ctx context.Context, key, field string) (string, bool, error)
	HashSet(ctx context.Context, key string, mapping map[string]string) error
	HashIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)

	ListPushRight(ctx context.Context, key string, value string) error
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ListTrim(ctx context.Context, key string, start, stop int64) error
	ListLen(ctx context.Context, key string) (int64, error)

	SetAdd(ctx context.Context, key string, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
	SetRemove(ctx context.Context, key string, member string) error

	// SetStringIfAbsent sets key to value only if it does not already
	// exist, returning whether this call was the one that set it. Used by
	// profile.GetOrCreateUserID to make first-write idempotent under
	// concurrent callers (spec.md §3's "idempotent mapping record").
	SetStringIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Info returns a short human-readable backend description, surfaced on
	// GET /health.
	Info(ctx context.Context) string
}

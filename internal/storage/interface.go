package storage

import (
	"context"
	"time"
)

// KeyType represents the type of a Redis key as tracked by the sidecar
// key_type table.
type KeyType string

const (
	TypeString KeyType = "string"
	TypeHash   KeyType = "hash"
	TypeList   KeyType = "list"
	TypeSet    KeyType = "set"
	TypeNone   KeyType = "none"
)

// Operations defines the command surface available both directly against
// the pool and inside an open transaction. Every method takes the calling
// context only; the executor (pool vs. transaction) is bound to the
// receiver, so EXEC can thread one Transaction through a buffered command
// list without any command needing an optional trailing handle.
type Operations interface {
	// String commands
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	MGet(ctx context.Context, keys []string) ([]interface{}, error)

	// Key commands
	Del(ctx context.Context, keys []string) (int64, error)
	Exists(ctx context.Context, keys []string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	TTL(ctx context.Context, key string) (int64, error)
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Hash commands
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HSet(ctx context.Context, key string, fields map[string]string) (int64, error)
	HDel(ctx context.Context, key string, fields []string) (int64, error)
	HMGet(ctx context.Context, key string, fields []string) ([]interface{}, error)

	// List commands
	LPush(ctx context.Context, key string, values []string) (int64, error)
	RPush(ctx context.Context, key string, values []string) (int64, error)
	LPop(ctx context.Context, key string) (string, bool, error)
	RPop(ctx context.Context, key string) (string, bool, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	RPopLPush(ctx context.Context, source, destination string) (string, bool, error)

	// Set commands
	SAdd(ctx context.Context, key string, members []string) (int64, error)
	SRem(ctx context.Context, key string, members []string) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)

	// Server commands
	DBSize(ctx context.Context) (int64, error)
}

// Backend extends Operations with lifecycle and transaction support.
type Backend interface {
	Operations

	// FlushDB truncates every store. Not available inside a transaction,
	// since it targets the whole database rather than a key set.
	FlushDB(ctx context.Context) error

	BeginTx(ctx context.Context) (Transaction, error)

	Close() error
}

// Transaction extends Operations with commit/rollback.
type Transaction interface {
	Operations

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Ensure Store implements Backend.
var _ Backend = (*Store)(nil)

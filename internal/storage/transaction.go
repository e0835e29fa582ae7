package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TxStore wraps a SQLite transaction and implements the Transaction
// interface, threading the same queryOps used by Store through an open
// *sql.Tx instead of the pool.
type TxStore struct {
	tx    *sql.Tx
	store *Store
	ops   queryOps
	done  bool
}

func (t *TxStore) table(name string) string {
	return t.store.table(name)
}

// Commit commits the transaction.
func (t *TxStore) Commit(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("transaction already completed")
	}
	t.done = true
	return t.tx.Commit()
}

// Rollback aborts the transaction.
func (t *TxStore) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

// ============== String commands ==============

func (t *TxStore) Get(ctx context.Context, key string) (string, bool, error) {
	return t.ops.get(ctx, t, t.tx, key)
}

func (t *TxStore) Set(ctx context.Context, key, value string) error {
	return t.ops.set(ctx, t, t.tx, key, value)
}

func (t *TxStore) MGet(ctx context.Context, keys []string) ([]interface{}, error) {
	return t.ops.mGet(ctx, t, t.tx, keys)
}

// ============== Key commands ==============

func (t *TxStore) Del(ctx context.Context, keys []string) (int64, error) {
	return t.ops.del(ctx, t, t.tx, keys)
}

func (t *TxStore) Exists(ctx context.Context, keys []string) (int64, error) {
	return t.ops.exists(ctx, t, t.tx, keys)
}

func (t *TxStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return t.ops.expire(ctx, t, t.tx, key, ttl)
}

func (t *TxStore) TTL(ctx context.Context, key string) (int64, error) {
	return t.ops.ttl(ctx, t, t.tx, key)
}

func (t *TxStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	return t.ops.keys(ctx, t, t.tx, pattern)
}

// ============== Hash commands ==============

func (t *TxStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	return t.ops.hGet(ctx, t, t.tx, key, field)
}

func (t *TxStore) HSet(ctx context.Context, key string, fields map[string]string) (int64, error) {
	return t.ops.hSet(ctx, t, t.tx, key, fields)
}

func (t *TxStore) HDel(ctx context.Context, key string, fields []string) (int64, error) {
	return t.ops.hDel(ctx, t, t.tx, key, fields)
}

func (t *TxStore) HMGet(ctx context.Context, key string, fields []string) ([]interface{}, error) {
	return t.ops.hMGet(ctx, t, t.tx, key, fields)
}

// ============== List commands ==============

func (t *TxStore) LPush(ctx context.Context, key string, values []string) (int64, error) {
	n, err := t.ops.lPush(ctx, t, t.tx, key, values)
	if err == nil {
		t.store.wake(key)
	}
	return n, err
}

func (t *TxStore) RPush(ctx context.Context, key string, values []string) (int64, error) {
	n, err := t.ops.rPush(ctx, t, t.tx, key, values)
	if err == nil {
		t.store.wake(key)
	}
	return n, err
}

func (t *TxStore) LPop(ctx context.Context, key string) (string, bool, error) {
	return t.ops.lPop(ctx, t, t.tx, key)
}

func (t *TxStore) RPop(ctx context.Context, key string) (string, bool, error) {
	return t.ops.rPop(ctx, t, t.tx, key)
}

func (t *TxStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return t.ops.lRange(ctx, t, t.tx, key, start, stop)
}

func (t *TxStore) RPopLPush(ctx context.Context, source, destination string) (string, bool, error) {
	v, ok, err := t.ops.rPopLPush(ctx, t, t.tx, source, destination)
	if err == nil && ok {
		t.store.wake(destination)
	}
	return v, ok, err
}

// ============== Set commands ==============

func (t *TxStore) SAdd(ctx context.Context, key string, members []string) (int64, error) {
	return t.ops.sAdd(ctx, t, t.tx, key, members)
}

func (t *TxStore) SRem(ctx context.Context, key string, members []string) (int64, error) {
	return t.ops.sRem(ctx, t, t.tx, key, members)
}

func (t *TxStore) SMembers(ctx context.Context, key string) ([]string, error) {
	return t.ops.sMembers(ctx, t, t.tx, key)
}

func (t *TxStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return t.ops.sIsMember(ctx, t, t.tx, key, member)
}

// ============== Server commands ==============

func (t *TxStore) DBSize(ctx context.Context) (int64, error) {
	return t.ops.dbSize(ctx, t, t.tx)
}

// Ensure TxStore implements Transaction.
var _ Transaction = (*TxStore)(nil)

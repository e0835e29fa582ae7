// Package storage provides SQLite-backed storage for Redis data types.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"
)

// Waker is notified whenever a list-mutating command writes to a key, so
// blocked BRPOPLPUSH callers can be woken without the storage layer
// depending on the blocking coordinator's package.
type Waker interface {
	Wake(key string)
}

// Store provides SQLite-backed storage for Redis operations. All reads and
// writes funnel through a connection pool pinned to a single open
// connection, since SQLite serializes writers regardless and a second
// concurrent writer simply fails with SQLITE_BUSY.
type Store struct {
	db     *sql.DB
	prefix string
	ops    queryOps
	log    *zap.Logger
	waker  Waker

	cancel context.CancelFunc
	done   chan struct{}
}

// Config holds SQLite connection configuration.
type Config struct {
	// Path is the database file path, or ":memory:" for an ephemeral
	// in-process database.
	Path string
	// Prefix names every table, so multiple logical databases can share
	// one file. Defaults to "redis_".
	Prefix string
}

// New opens (creating if necessary) the SQLite database at cfg.Path,
// creates the schema idempotently, and starts the background expiry
// reaper.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*Store, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "redis_"
	}
	if log == nil {
		log = zap.NewNop()
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite has a single writer; a connection pool larger than one
	// produces spurious SQLITE_BUSY errors under concurrent command load.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=OFF"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set foreign_keys: %w", err)
	}

	reaperCtx, cancel := context.WithCancel(context.Background())
	store := &Store{
		db:     db,
		prefix: cfg.Prefix,
		log:    log,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if err := store.initSchema(ctx); err != nil {
		cancel()
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	go store.cleanupExpiredKeys(reaperCtx)

	return store, nil
}

// SetWaker attaches the Blocking Coordinator so list writes can signal it.
func (s *Store) SetWaker(w Waker) {
	s.waker = w
}

// Close stops the expiry reaper and closes the underlying database handle.
func (s *Store) Close() error {
	s.cancel()
	<-s.done
	return s.db.Close()
}

func (s *Store) table(name string) string {
	return s.prefix + name
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			expiry INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_expiry ON %[1]s(expiry) WHERE expiry IS NOT NULL;

		CREATE TABLE IF NOT EXISTS %[2]s (
			key TEXT NOT NULL,
			field TEXT NOT NULL,
			value BLOB NOT NULL,
			expiry INTEGER,
			PRIMARY KEY (key, field)
		);
		CREATE INDEX IF NOT EXISTS idx_%[2]s_expiry ON %[2]s(expiry) WHERE expiry IS NOT NULL;

		CREATE TABLE IF NOT EXISTS %[3]s (
			key TEXT NOT NULL,
			idx INTEGER NOT NULL,
			value BLOB NOT NULL,
			expiry INTEGER,
			PRIMARY KEY (key, idx)
		);
		CREATE INDEX IF NOT EXISTS idx_%[3]s_expiry ON %[3]s(expiry) WHERE expiry IS NOT NULL;

		CREATE TABLE IF NOT EXISTS %[4]s (
			key TEXT NOT NULL,
			member BLOB NOT NULL,
			expiry INTEGER,
			PRIMARY KEY (key, member)
		);
		CREATE INDEX IF NOT EXISTS idx_%[4]s_expiry ON %[4]s(expiry) WHERE expiry IS NOT NULL;

		CREATE TABLE IF NOT EXISTS %[5]s (
			key TEXT PRIMARY KEY,
			key_type TEXT NOT NULL,
			expiry INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_%[5]s_expiry ON %[5]s(expiry) WHERE expiry IS NOT NULL;
	`,
		s.table("string_store"),
		s.table("hash_store"),
		s.table("list_store"),
		s.table("set_store"),
		s.table("key_type"),
	)
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) cleanupExpiredKeys(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.deleteExpiredKeys(context.Background()); err != nil {
				s.log.Warn("expiry reaper tick failed", zap.Error(err))
			}
		}
	}
}

func (s *Store) deleteExpiredKeys(ctx context.Context) error {
	now := nowMillis()
	tables := []string{
		s.table("string_store"),
		s.table("hash_store"),
		s.table("list_store"),
		s.table("set_store"),
		s.table("key_type"),
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf("DELETE FROM %s WHERE expiry IS NOT NULL AND expiry <= ?", t), now,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// withTx opens a transaction, runs fn against it, and commits; fn's error
// triggers a rollback.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// BeginTx starts a new transaction whose Operations thread through that
// same *sql.Tx for every buffered command.
func (s *Store) BeginTx(ctx context.Context) (Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &TxStore{tx: tx, store: s}, nil
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// ============== String Commands ==============

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	return s.ops.get(ctx, s, s.db, key)
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.ops.set(ctx, s, tx, key, value)
	})
}

func (s *Store) MGet(ctx context.Context, keys []string) ([]interface{}, error) {
	return s.ops.mGet(ctx, s, s.db, keys)
}

// ============== Key Commands ==============

func (s *Store) Del(ctx context.Context, keys []string) (int64, error) {
	var result int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		result, err = s.ops.del(ctx, s, tx, keys)
		return err
	})
	return result, err
}

func (s *Store) Exists(ctx context.Context, keys []string) (int64, error) {
	return s.ops.exists(ctx, s, s.db, keys)
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var result bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		result, err = s.ops.expire(ctx, s, tx, key, ttl)
		return err
	})
	return result, err
}

func (s *Store) TTL(ctx context.Context, key string) (int64, error) {
	return s.ops.ttl(ctx, s, s.db, key)
}

func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	return s.ops.keys(ctx, s, s.db, pattern)
}

func (s *Store) FlushDB(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.ops.flushAll(ctx, s, tx)
	})
}

// ============== Hash Commands ==============

func (s *Store) HGet(ctx context.Context, key, field string) (string, bool, error) {
	return s.ops.hGet(ctx, s, s.db, key, field)
}

func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) (int64, error) {
	var result int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		result, err = s.ops.hSet(ctx, s, tx, key, fields)
		return err
	})
	return result, err
}

func (s *Store) HDel(ctx context.Context, key string, fields []string) (int64, error) {
	var result int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		result, err = s.ops.hDel(ctx, s, tx, key, fields)
		return err
	})
	return result, err
}

func (s *Store) HMGet(ctx context.Context, key string, fields []string) ([]interface{}, error) {
	return s.ops.hMGet(ctx, s, s.db, key, fields)
}

// ============== List Commands ==============

func (s *Store) LPush(ctx context.Context, key string, values []string) (int64, error) {
	var result int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		result, err = s.ops.lPush(ctx, s, tx, key, values)
		return err
	})
	if err == nil {
		s.wake(key)
	}
	return result, err
}

func (s *Store) RPush(ctx context.Context, key string, values []string) (int64, error) {
	var result int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		result, err = s.ops.rPush(ctx, s, tx, key, values)
		return err
	})
	if err == nil {
		s.wake(key)
	}
	return result, err
}

func (s *Store) LPop(ctx context.Context, key string) (string, bool, error) {
	var value string
	var ok bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		value, ok, err = s.ops.lPop(ctx, s, tx, key)
		return err
	})
	return value, ok, err
}

func (s *Store) RPop(ctx context.Context, key string) (string, bool, error) {
	var value string
	var ok bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		value, ok, err = s.ops.rPop(ctx, s, tx, key)
		return err
	})
	return value, ok, err
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.ops.lRange(ctx, s, s.db, key, start, stop)
}

func (s *Store) RPopLPush(ctx context.Context, source, destination string) (string, bool, error) {
	var value string
	var ok bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		value, ok, err = s.ops.rPopLPush(ctx, s, tx, source, destination)
		return err
	})
	if err == nil && ok {
		s.wake(destination)
	}
	return value, ok, err
}

// ============== Set Commands ==============

func (s *Store) SAdd(ctx context.Context, key string, members []string) (int64, error) {
	var result int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		result, err = s.ops.sAdd(ctx, s, tx, key, members)
		return err
	})
	return result, err
}

func (s *Store) SRem(ctx context.Context, key string, members []string) (int64, error) {
	var result int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		result, err = s.ops.sRem(ctx, s, tx, key, members)
		return err
	})
	return result, err
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.ops.sMembers(ctx, s, s.db, key)
}

func (s *Store) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return s.ops.sIsMember(ctx, s, s.db, key, member)
}

// ============== Server Commands ==============

func (s *Store) DBSize(ctx context.Context) (int64, error) {
	return s.ops.dbSize(ctx, s, s.db)
}

// wake is a no-op unless a Blocking Coordinator has been attached via
// SetWaker; list-mutating commands call it unconditionally so the
// signaling path does not depend on whether blocking support is wired in.
func (s *Store) wake(key string) {
	if s.waker != nil {
		s.waker.Wake(key)
	}
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Querier is the common interface implemented by both *sql.DB and *sql.Tx,
// letting every command run unchanged whether it is called standalone or
// threaded through an open MULTI/EXEC transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// tableNamer supplies the prefixed table names; *Store and *TxStore both
// wrap the same underlying prefix.
type tableNamer interface {
	table(name string) string
}

// queryOps provides the actual implementation of storage operations using
// a Querier. It is shared between Store (pool) and TxStore (transaction).
type queryOps struct{}

// ErrWrongType is returned by any command applied to a key already holding
// a different Redis type, per the sidecar key_type table.
var ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

var errWrongType = ErrWrongType

// ============== Helper methods ==============

func (queryOps) getKeyType(ctx context.Context, tn tableNamer, q Querier, key string) (KeyType, error) {
	var keyType string
	err := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT key_type FROM %s WHERE key = ? AND (expiry IS NULL OR expiry > ?)", tn.table("key_type")),
		key, nowMillis(),
	).Scan(&keyType)

	if errors.Is(err, sql.ErrNoRows) {
		return TypeNone, nil
	}
	if err != nil {
		return TypeNone, err
	}
	return KeyType(keyType), nil
}

func (queryOps) setMeta(ctx context.Context, tn tableNamer, q Querier, key string, keyType KeyType, expiry *int64) error {
	_, err := q.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (key, key_type, expiry) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET key_type = excluded.key_type, expiry = excluded.expiry`,
			tn.table("key_type")),
		key, string(keyType), expiry,
	)
	return err
}

// setMetaType records a key's type in the sidecar without touching any
// expiry it may already carry. Every write command except SET (which
// explicitly threads the key's current expiry through setMeta) and EXPIRE
// itself must use this, matching Redis's rule that ordinary writes to an
// existing key preserve its TTL.
func (queryOps) setMetaType(ctx context.Context, tn tableNamer, q Querier, key string, keyType KeyType) error {
	_, err := q.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (key, key_type, expiry) VALUES (?, ?, NULL)
		 ON CONFLICT (key) DO UPDATE SET key_type = excluded.key_type`,
			tn.table("key_type")),
		key, string(keyType),
	)
	return err
}

// checkType fails WRONGTYPE unless key is unset or already of wanted type.
// This consults the sidecar across all four type pairs, not just
// string-vs-other.
func (o queryOps) checkType(ctx context.Context, tn tableNamer, q Querier, key string, wanted KeyType) error {
	existing, err := o.getKeyType(ctx, tn, q, key)
	if err != nil {
		return err
	}
	if existing != TypeNone && existing != wanted {
		return errWrongType
	}
	return nil
}

func (queryOps) deleteKeyFromAllTables(ctx context.Context, tn tableNamer, q Querier, key string) error {
	tables := []string{
		tn.table("string_store"),
		tn.table("hash_store"),
		tn.table("list_store"),
		tn.table("set_store"),
		tn.table("key_type"),
	}
	for _, t := range tables {
		if _, err := q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE key = ?", t), key); err != nil {
			return err
		}
	}
	return nil
}

// ============== String commands ==============

func (o queryOps) get(ctx context.Context, tn tableNamer, q Querier, key string) (string, bool, error) {
	var value []byte
	err := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT value FROM %s WHERE key = ? AND (expiry IS NULL OR expiry > ?)", tn.table("string_store")),
		key, nowMillis(),
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(value), true, nil
}

func (o queryOps) set(ctx context.Context, tn tableNamer, q Querier, key, value string) error {
	if err := o.checkType(ctx, tn, q, key, TypeString); err != nil {
		return err
	}

	// Preserve any existing expiry unless the caller later issues EXPIRE;
	// SET itself carries no TTL options in the recognized command set.
	var expiry *int64
	err := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT expiry FROM %s WHERE key = ?", tn.table("string_store")), key,
	).Scan(&expiry)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	_, err = q.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (key, value, expiry) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, expiry = excluded.expiry`,
			tn.table("string_store")),
		key, []byte(value), expiry,
	)
	if err != nil {
		return err
	}

	return o.setMeta(ctx, tn, q, key, TypeString, expiry)
}

func (o queryOps) mGet(ctx context.Context, tn tableNamer, q Querier, keys []string) ([]interface{}, error) {
	results := make([]interface{}, len(keys))
	for i, key := range keys {
		value, ok, err := o.get(ctx, tn, q, key)
		if err != nil {
			return nil, err
		}
		if ok {
			results[i] = value
		}
	}
	return results, nil
}

// ============== Key commands ==============

func (o queryOps) del(ctx context.Context, tn tableNamer, q Querier, keys []string) (int64, error) {
	var removed int64
	for _, key := range keys {
		existing, err := o.getKeyType(ctx, tn, q, key)
		if err != nil {
			return removed, err
		}
		if existing == TypeNone {
			continue
		}
		if err := o.deleteKeyFromAllTables(ctx, tn, q, key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (o queryOps) exists(ctx context.Context, tn tableNamer, q Querier, keys []string) (int64, error) {
	var count int64
	for _, key := range keys {
		existing, err := o.getKeyType(ctx, tn, q, key)
		if err != nil {
			return count, err
		}
		if existing != TypeNone {
			count++
		}
	}
	return count, nil
}

func (o queryOps) expire(ctx context.Context, tn tableNamer, q Querier, key string, ttl time.Duration) (bool, error) {
	keyType, err := o.getKeyType(ctx, tn, q, key)
	if err != nil {
		return false, err
	}
	if keyType == TypeNone {
		return false, nil
	}

	expiry := time.Now().Add(ttl).UnixMilli()
	var table string
	switch keyType {
	case TypeString:
		table = tn.table("string_store")
	case TypeHash:
		table = tn.table("hash_store")
	case TypeList:
		table = tn.table("list_store")
	case TypeSet:
		table = tn.table("set_store")
	}

	result, err := q.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET expiry = ? WHERE key = ?", table), expiry, key)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	if err := o.setMeta(ctx, tn, q, key, keyType, &expiry); err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (o queryOps) ttl(ctx context.Context, tn tableNamer, q Querier, key string) (int64, error) {
	var expiry *int64
	err := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT expiry FROM %s WHERE key = ? AND (expiry IS NULL OR expiry > ?)", tn.table("key_type")),
		key, nowMillis(),
	).Scan(&expiry)

	if errors.Is(err, sql.ErrNoRows) {
		return -2, nil
	}
	if err != nil {
		return 0, err
	}
	if expiry == nil {
		return -1, nil
	}

	remainingMs := *expiry - nowMillis()
	if remainingMs <= 0 {
		return -2, nil
	}
	seconds := (remainingMs + 999) / 1000
	return seconds, nil
}

func (o queryOps) keys(ctx context.Context, tn tableNamer, q Querier, pattern string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		fmt.Sprintf("SELECT key FROM %s WHERE (expiry IS NULL OR expiry > ?) AND key LIKE ? ESCAPE '\\'", tn.table("key_type")),
		nowMillis(), likePrefix(pattern),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// The LIKE clause only narrows candidates down to the pattern's literal
	// prefix; matchGlob still does the precise match against the full glob
	// grammar ('*', '?', '[...]' classes) that SQL LIKE can't express.
	var matched []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		if matchGlob(pattern, key) {
			matched = append(matched, key)
		}
	}
	sort.Strings(matched)
	return matched, rows.Err()
}

// likePrefix builds a SQL LIKE pattern anchored to the literal prefix of a
// Redis glob pattern, i.e. everything before its first unescaped '*', '?',
// or '['. Literal '%', '_', and '\' in that prefix are escaped so they
// aren't mistaken for LIKE wildcards; a trailing '%' is appended once a
// glob metacharacter is reached, since anything after it is unconstrained
// by this narrowing pass.
func likePrefix(pattern string) string {
	var b strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '*', '?', '[':
			b.WriteByte('%')
			return b.String()
		case '\\':
			if i+1 < len(runes) {
				i++
				r = runes[i]
			}
		}
		switch r {
		case '%', '_', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (o queryOps) flushAll(ctx context.Context, tn tableNamer, q Querier) error {
	tables := []string{
		tn.table("string_store"),
		tn.table("hash_store"),
		tn.table("list_store"),
		tn.table("set_store"),
		tn.table("key_type"),
	}
	for _, t := range tables {
		if _, err := q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", t)); err != nil {
			return err
		}
	}
	return nil
}

// ============== Hash commands ==============

func (o queryOps) hGet(ctx context.Context, tn tableNamer, q Querier, key, field string) (string, bool, error) {
	if err := o.checkType(ctx, tn, q, key, TypeHash); err != nil {
		return "", false, err
	}

	var value []byte
	err := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT value FROM %s WHERE key = ? AND field = ? AND (expiry IS NULL OR expiry > ?)", tn.table("hash_store")),
		key, field, nowMillis(),
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(value), true, nil
}

func (o queryOps) hSet(ctx context.Context, tn tableNamer, q Querier, key string, fields map[string]string) (int64, error) {
	if err := o.checkType(ctx, tn, q, key, TypeHash); err != nil {
		return 0, err
	}

	var added int64
	for field, value := range fields {
		var dummy int
		err := q.QueryRowContext(ctx,
			fmt.Sprintf("SELECT 1 FROM %s WHERE key = ? AND field = ?", tn.table("hash_store")),
			key, field,
		).Scan(&dummy)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return added, err
		}
		existed := err == nil

		_, err = q.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (key, field, value) VALUES (?, ?, ?)
			 ON CONFLICT (key, field) DO UPDATE SET value = excluded.value`,
				tn.table("hash_store")),
			key, field, []byte(value),
		)
		if err != nil {
			return added, err
		}
		if !existed {
			added++
		}
	}

	if err := o.setMetaType(ctx, tn, q, key, TypeHash); err != nil {
		return added, err
	}
	return added, nil
}

func (o queryOps) hDel(ctx context.Context, tn tableNamer, q Querier, key string, fields []string) (int64, error) {
	if err := o.checkType(ctx, tn, q, key, TypeHash); err != nil {
		return 0, err
	}

	placeholders := make([]string, len(fields))
	args := make([]any, 0, len(fields)+1)
	args = append(args, key)
	for i, f := range fields {
		placeholders[i] = "?"
		args = append(args, f)
	}

	result, err := q.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE key = ? AND field IN (%s)", tn.table("hash_store"), strings.Join(placeholders, ",")),
		args...,
	)
	if err != nil {
		return 0, err
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	var remaining int64
	if err := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE key = ?", tn.table("hash_store")), key,
	).Scan(&remaining); err != nil {
		return removed, err
	}
	if remaining == 0 {
		if _, err := q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE key = ?", tn.table("key_type")), key); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (o queryOps) hMGet(ctx context.Context, tn tableNamer, q Querier, key string, fields []string) ([]interface{}, error) {
	if err := o.checkType(ctx, tn, q, key, TypeHash); err != nil {
		return nil, err
	}

	results := make([]interface{}, len(fields))
	for i, field := range fields {
		value, ok, err := o.hGet(ctx, tn, q, key, field)
		if err != nil {
			return nil, err
		}
		if ok {
			results[i] = value
		}
	}
	return results, nil
}

// ============== List commands ==============

func (o queryOps) listLen(ctx context.Context, tn tableNamer, q Querier, key string) (int64, error) {
	var count int64
	err := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE key = ? AND (expiry IS NULL OR expiry > ?)", tn.table("list_store")),
		key, nowMillis(),
	).Scan(&count)
	return count, err
}

func (o queryOps) lPush(ctx context.Context, tn tableNamer, q Querier, key string, values []string) (int64, error) {
	if err := o.checkType(ctx, tn, q, key, TypeList); err != nil {
		return 0, err
	}

	n := int64(len(values))
	// Shift in two steps so no row passes through an idx another row still
	// holds under the (key, idx) primary key: first to a distinct negative
	// slot, then to its final idx + n.
	if _, err := q.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET idx = -idx - 1 WHERE key = ?", tn.table("list_store")), key,
	); err != nil {
		return 0, err
	}
	if _, err := q.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET idx = -idx - 1 + ? WHERE key = ?", tn.table("list_store")), n, key,
	); err != nil {
		return 0, err
	}

	// Last argument becomes the new head (index 0).
	for i, value := range values {
		idx := n - 1 - int64(i)
		if _, err := q.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (key, idx, value) VALUES (?, ?, ?)", tn.table("list_store")),
			key, idx, []byte(value),
		); err != nil {
			return 0, err
		}
	}

	if err := o.setMetaType(ctx, tn, q, key, TypeList); err != nil {
		return 0, err
	}
	return o.listLen(ctx, tn, q, key)
}

func (o queryOps) rPush(ctx context.Context, tn tableNamer, q Querier, key string, values []string) (int64, error) {
	if err := o.checkType(ctx, tn, q, key, TypeList); err != nil {
		return 0, err
	}

	var maxIdx int64 = -1
	if err := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COALESCE(MAX(idx), -1) FROM %s WHERE key = ?", tn.table("list_store")), key,
	).Scan(&maxIdx); err != nil {
		return 0, err
	}

	for i, value := range values {
		if _, err := q.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (key, idx, value) VALUES (?, ?, ?)", tn.table("list_store")),
			key, maxIdx+int64(i)+1, []byte(value),
		); err != nil {
			return 0, err
		}
	}

	if err := o.setMetaType(ctx, tn, q, key, TypeList); err != nil {
		return 0, err
	}
	return o.listLen(ctx, tn, q, key)
}

func (o queryOps) lPop(ctx context.Context, tn tableNamer, q Querier, key string) (string, bool, error) {
	if err := o.checkType(ctx, tn, q, key, TypeList); err != nil {
		return "", false, err
	}

	var value []byte
	err := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT value FROM %s WHERE key = ? AND (expiry IS NULL OR expiry > ?) ORDER BY idx ASC LIMIT 1", tn.table("list_store")),
		key, nowMillis(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if _, err := q.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE key = ? AND idx = 0", tn.table("list_store")), key,
	); err != nil {
		return "", false, err
	}
	// Renumber the remainder so indices stay contiguous at 0..n-1.
	if _, err := q.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET idx = idx - 1 WHERE key = ? AND idx > 0", tn.table("list_store")), key,
	); err != nil {
		return "", false, err
	}

	if err := o.dropEmptyList(ctx, tn, q, key); err != nil {
		return "", false, err
	}
	return string(value), true, nil
}

func (o queryOps) rPop(ctx context.Context, tn tableNamer, q Querier, key string) (string, bool, error) {
	if err := o.checkType(ctx, tn, q, key, TypeList); err != nil {
		return "", false, err
	}

	var idx int64
	var value []byte
	err := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT idx, value FROM %s WHERE key = ? AND (expiry IS NULL OR expiry > ?) ORDER BY idx DESC LIMIT 1", tn.table("list_store")),
		key, nowMillis(),
	).Scan(&idx, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	// Tail removal leaves the remainder already contiguous; no renumber.
	if _, err := q.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE key = ? AND idx = ?", tn.table("list_store")), key, idx,
	); err != nil {
		return "", false, err
	}

	if err := o.dropEmptyList(ctx, tn, q, key); err != nil {
		return "", false, err
	}
	return string(value), true, nil
}

func (o queryOps) dropEmptyList(ctx context.Context, tn tableNamer, q Querier, key string) error {
	length, err := o.listLen(ctx, tn, q, key)
	if err != nil {
		return err
	}
	if length == 0 {
		_, err := q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE key = ?", tn.table("key_type")), key)
		return err
	}
	return nil
}

func (o queryOps) lRange(ctx context.Context, tn tableNamer, q Querier, key string, start, stop int64) ([]string, error) {
	if err := o.checkType(ctx, tn, q, key, TypeList); err != nil {
		return nil, err
	}

	total, err := o.listLen(ctx, tn, q, key)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return []string{}, nil
	}

	if start < 0 {
		start = total + start
	}
	if stop < 0 {
		stop = total + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= total {
		stop = total - 1
	}
	if start > stop {
		return []string{}, nil
	}

	rows, err := q.QueryContext(ctx,
		fmt.Sprintf("SELECT value FROM %s WHERE key = ? AND (expiry IS NULL OR expiry > ?) ORDER BY idx ASC LIMIT ? OFFSET ?", tn.table("list_store")),
		key, nowMillis(), stop-start+1, start,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []string{}
	for rows.Next() {
		var value []byte
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		result = append(result, string(value))
	}
	return result, rows.Err()
}

func (o queryOps) rPopLPush(ctx context.Context, tn tableNamer, q Querier, source, destination string) (string, bool, error) {
	value, ok, err := o.rPop(ctx, tn, q, source)
	if err != nil || !ok {
		return "", false, err
	}
	if _, err := o.lPush(ctx, tn, q, destination, []string{value}); err != nil {
		return "", false, err
	}
	return value, true, nil
}

// ============== Set commands ==============

func (o queryOps) sAdd(ctx context.Context, tn tableNamer, q Querier, key string, members []string) (int64, error) {
	if err := o.checkType(ctx, tn, q, key, TypeSet); err != nil {
		return 0, err
	}

	var added int64
	for _, member := range members {
		result, err := q.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (key, member) VALUES (?, ?) ON CONFLICT (key, member) DO NOTHING", tn.table("set_store")),
			key, []byte(member),
		)
		if err != nil {
			return added, err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return added, err
		}
		added += rows
	}

	if err := o.setMetaType(ctx, tn, q, key, TypeSet); err != nil {
		return added, err
	}
	return added, nil
}

func (o queryOps) sRem(ctx context.Context, tn tableNamer, q Querier, key string, members []string) (int64, error) {
	placeholders := make([]string, len(members))
	args := make([]any, 0, len(members)+1)
	args = append(args, key)
	for i, m := range members {
		placeholders[i] = "?"
		args = append(args, []byte(m))
	}

	result, err := q.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE key = ? AND member IN (%s)", tn.table("set_store"), strings.Join(placeholders, ",")),
		args...,
	)
	if err != nil {
		return 0, err
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	var remaining int64
	if err := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE key = ?", tn.table("set_store")), key,
	).Scan(&remaining); err != nil {
		return removed, err
	}
	if remaining == 0 {
		if _, err := q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE key = ?", tn.table("key_type")), key); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (o queryOps) sMembers(ctx context.Context, tn tableNamer, q Querier, key string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		fmt.Sprintf("SELECT member FROM %s WHERE key = ? AND (expiry IS NULL OR expiry > ?) ORDER BY member ASC", tn.table("set_store")),
		key, nowMillis(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var member []byte
		if err := rows.Scan(&member); err != nil {
			return nil, err
		}
		members = append(members, string(member))
	}
	return members, rows.Err()
}

func (o queryOps) sIsMember(ctx context.Context, tn tableNamer, q Querier, key, member string) (bool, error) {
	var count int64
	err := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE key = ? AND member = ? AND (expiry IS NULL OR expiry > ?)", tn.table("set_store")),
		key, []byte(member), nowMillis(),
	).Scan(&count)
	return count > 0, err
}

// ============== Server commands ==============

func (o queryOps) dbSize(ctx context.Context, tn tableNamer, q Querier) (int64, error) {
	var count int64
	err := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE expiry IS NULL OR expiry > ?", tn.table("key_type")),
		nowMillis(),
	).Scan(&count)
	return count, err
}

// matchGlob reports whether s matches a Redis-style glob pattern
// supporting '*', '?', and '[...]' character classes (including negation
// with a leading '^' and escaping with '\').
func matchGlob(pattern, s string) bool {
	return globMatch([]rune(pattern), []rune(s))
}

func globMatch(pattern, s []rune) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 1 && pattern[1] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if globMatch(pattern[1:], s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			s = s[1:]
			pattern = pattern[1:]
		case '[':
			end := 1
			for end < len(pattern) && pattern[end] != ']' {
				end++
			}
			if end >= len(pattern) {
				// Unterminated class: treat '[' as a literal.
				if len(s) == 0 || s[0] != '[' {
					return false
				}
				s = s[1:]
				pattern = pattern[1:]
				continue
			}
			if len(s) == 0 {
				return false
			}
			class := pattern[1:end]
			negate := false
			if len(class) > 0 && class[0] == '^' {
				negate = true
				class = class[1:]
			}
			if classMatch(class, s[0]) == negate {
				return false
			}
			s = s[1:]
			pattern = pattern[end+1:]
		case '\\':
			if len(pattern) > 1 {
				pattern = pattern[1:]
			}
			if len(s) == 0 || s[0] != pattern[0] {
				return false
			}
			s = s[1:]
			pattern = pattern[1:]
		default:
			if len(s) == 0 || s[0] != pattern[0] {
				return false
			}
			s = s[1:]
			pattern = pattern[1:]
		}
	}
	return len(s) == 0
}

func classMatch(class []rune, c rune) bool {
	for i := 0; i < len(class); i++ {
		if i+2 < len(class) && class[i+1] == '-' {
			if class[i] <= c && c <= class[i+2] {
				return true
			}
			i += 2
			continue
		}
		if class[i] == c {
			return true
		}
	}
	return false
}

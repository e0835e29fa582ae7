package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MockStore provides an in-memory implementation of Backend for handler
// unit tests that don't need a real SQLite file.
type MockStore struct {
	mu       sync.RWMutex
	strings  map[string]string
	hashes   map[string]map[string]string
	lists    map[string][]string
	sets     map[string]map[string]struct{}
	keyTypes map[string]KeyType
	expireAt map[string]time.Time
	waker    Waker
}

// SetWaker attaches the Blocking Coordinator, mirroring Store.SetWaker so
// BRPOPLPUSH can be exercised against the mock the same way it runs against
// a real database.
func (m *MockStore) SetWaker(w Waker) {
	m.waker = w
}

func (m *MockStore) wake(key string) {
	if m.waker != nil {
		m.waker.Wake(key)
	}
}

// NewMockStore creates a new in-memory mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		strings:  make(map[string]string),
		hashes:   make(map[string]map[string]string),
		lists:    make(map[string][]string),
		sets:     make(map[string]map[string]struct{}),
		keyTypes: make(map[string]KeyType),
		expireAt: make(map[string]time.Time),
	}
}

func (m *MockStore) Close() error { return nil }

func (m *MockStore) isExpired(key string) bool {
	if exp, ok := m.expireAt[key]; ok {
		if time.Now().After(exp) {
			m.deleteKey(key)
			return true
		}
	}
	return false
}

func (m *MockStore) deleteKey(key string) {
	delete(m.strings, key)
	delete(m.hashes, key)
	delete(m.lists, key)
	delete(m.sets, key)
	delete(m.keyTypes, key)
	delete(m.expireAt, key)
}

func (m *MockStore) checkType(key string, wanted KeyType) error {
	if t, ok := m.keyTypes[key]; ok && t != wanted {
		return errWrongType
	}
	return nil
}

// ============== String commands ==============

func (m *MockStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isExpired(key) {
		return "", false, nil
	}
	if err := m.checkType(key, TypeString); err != nil {
		return "", false, err
	}
	v, ok := m.strings[key]
	return v, ok, nil
}

func (m *MockStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkType(key, TypeString); err != nil {
		return err
	}
	m.strings[key] = value
	m.keyTypes[key] = TypeString
	return nil
}

func (m *MockStore) MGet(ctx context.Context, keys []string) ([]interface{}, error) {
	results := make([]interface{}, len(keys))
	for i, key := range keys {
		v, ok, err := m.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			results[i] = v
		}
	}
	return results, nil
}

// ============== Key commands ==============

func (m *MockStore) Del(ctx context.Context, keys []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for _, key := range keys {
		if m.isExpired(key) {
			continue
		}
		if _, ok := m.keyTypes[key]; ok {
			m.deleteKey(key)
			removed++
		}
	}
	return removed, nil
}

func (m *MockStore) Exists(ctx context.Context, keys []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, key := range keys {
		if m.isExpired(key) {
			continue
		}
		if _, ok := m.keyTypes[key]; ok {
			count++
		}
	}
	return count, nil
}

func (m *MockStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isExpired(key) {
		return false, nil
	}
	if _, ok := m.keyTypes[key]; !ok {
		return false, nil
	}
	m.expireAt[key] = time.Now().Add(ttl)
	return true, nil
}

func (m *MockStore) TTL(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isExpired(key) {
		return -2, nil
	}
	if _, ok := m.keyTypes[key]; !ok {
		return -2, nil
	}
	exp, ok := m.expireAt[key]
	if !ok {
		return -1, nil
	}
	remaining := time.Until(exp)
	if remaining <= 0 {
		return -2, nil
	}
	return int64(remaining.Seconds()) + 1, nil
}

func (m *MockStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []string
	for key := range m.keyTypes {
		if m.isExpired(key) {
			continue
		}
		if matchGlob(pattern, key) {
			matched = append(matched, key)
		}
	}
	sort.Strings(matched)
	if matched == nil {
		matched = []string{}
	}
	return matched, nil
}

func (m *MockStore) FlushDB(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.strings = make(map[string]string)
	m.hashes = make(map[string]map[string]string)
	m.lists = make(map[string][]string)
	m.sets = make(map[string]map[string]struct{})
	m.keyTypes = make(map[string]KeyType)
	m.expireAt = make(map[string]time.Time)
	return nil
}

// ============== Hash commands ==============

func (m *MockStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isExpired(key) {
		return "", false, nil
	}
	if err := m.checkType(key, TypeHash); err != nil {
		return "", false, err
	}
	h, ok := m.hashes[key]
	if !ok {
		return "", false, nil
	}
	v, ok := h[field]
	return v, ok, nil
}

func (m *MockStore) HSet(ctx context.Context, key string, fields map[string]string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkType(key, TypeHash); err != nil {
		return 0, err
	}
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}

	var added int64
	for field, value := range fields {
		if _, exists := h[field]; !exists {
			added++
		}
		h[field] = value
	}
	m.keyTypes[key] = TypeHash
	return added, nil
}

func (m *MockStore) HDel(ctx context.Context, key string, fields []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkType(key, TypeHash); err != nil {
		return 0, err
	}
	h, ok := m.hashes[key]
	if !ok {
		return 0, nil
	}

	var removed int64
	for _, field := range fields {
		if _, exists := h[field]; exists {
			delete(h, field)
			removed++
		}
	}
	if len(h) == 0 {
		m.deleteKey(key)
	}
	return removed, nil
}

func (m *MockStore) HMGet(ctx context.Context, key string, fields []string) ([]interface{}, error) {
	results := make([]interface{}, len(fields))
	for i, field := range fields {
		v, ok, err := m.HGet(ctx, key, field)
		if err != nil {
			return nil, err
		}
		if ok {
			results[i] = v
		}
	}
	return results, nil
}

// ============== List commands ==============

func (m *MockStore) LPush(ctx context.Context, key string, values []string) (int64, error) {
	m.mu.Lock()
	if err := m.checkType(key, TypeList); err != nil {
		m.mu.Unlock()
		return 0, err
	}
	for _, v := range values {
		m.lists[key] = append([]string{v}, m.lists[key]...)
	}
	m.keyTypes[key] = TypeList
	n := int64(len(m.lists[key]))
	m.mu.Unlock()
	m.wake(key)
	return n, nil
}

func (m *MockStore) RPush(ctx context.Context, key string, values []string) (int64, error) {
	m.mu.Lock()
	if err := m.checkType(key, TypeList); err != nil {
		m.mu.Unlock()
		return 0, err
	}
	m.lists[key] = append(m.lists[key], values...)
	m.keyTypes[key] = TypeList
	n := int64(len(m.lists[key]))
	m.mu.Unlock()
	m.wake(key)
	return n, nil
}

func (m *MockStore) LPop(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkType(key, TypeList); err != nil {
		return "", false, err
	}
	list := m.lists[key]
	if len(list) == 0 {
		return "", false, nil
	}
	v := list[0]
	m.lists[key] = list[1:]
	if len(m.lists[key]) == 0 {
		m.deleteKey(key)
	}
	return v, true, nil
}

func (m *MockStore) RPop(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkType(key, TypeList); err != nil {
		return "", false, err
	}
	list := m.lists[key]
	if len(list) == 0 {
		return "", false, nil
	}
	v := list[len(list)-1]
	m.lists[key] = list[:len(list)-1]
	if len(m.lists[key]) == 0 {
		m.deleteKey(key)
	}
	return v, true, nil
}

func (m *MockStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkType(key, TypeList); err != nil {
		return nil, err
	}
	list := m.lists[key]
	total := int64(len(list))
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
	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return out, nil
}

func (m *MockStore) RPopLPush(ctx context.Context, source, destination string) (string, bool, error) {
	v, ok, err := m.RPop(ctx, source)
	if err != nil || !ok {
		return "", false, err
	}
	if _, err := m.LPush(ctx, destination, []string{v}); err != nil {
		return "", false, err
	}
	return v, true, nil
}

// ============== Set commands ==============

func (m *MockStore) SAdd(ctx context.Context, key string, members []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkType(key, TypeSet); err != nil {
		return 0, err
	}
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}

	var added int64
	for _, member := range members {
		if _, exists := set[member]; !exists {
			set[member] = struct{}{}
			added++
		}
	}
	m.keyTypes[key] = TypeSet
	return added, nil
}

func (m *MockStore) SRem(ctx context.Context, key string, members []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sets[key]
	if !ok {
		return 0, nil
	}

	var removed int64
	for _, member := range members {
		if _, exists := set[member]; exists {
			delete(set, member)
			removed++
		}
	}
	if len(set) == 0 {
		m.deleteKey(key)
	}
	return removed, nil
}

func (m *MockStore) SMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sets[key]
	if !ok {
		return []string{}, nil
	}
	members := make([]string, 0, len(set))
	for member := range set {
		members = append(members, member)
	}
	sort.Strings(members)
	return members, nil
}

func (m *MockStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sets[key]
	if !ok {
		return false, nil
	}
	_, exists := set[member]
	return exists, nil
}

// ============== Server commands ==============

func (m *MockStore) DBSize(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key := range m.keyTypes {
		if !m.isExpired(key) {
			count++
		}
	}
	return count, nil
}

// ============== Transaction support ==============

// MockTransaction delegates straight to the parent MockStore; the mock has
// no WAL to isolate against, so Commit/Rollback only guard against reuse.
type MockTransaction struct {
	parent     *MockStore
	committed  bool
	rolledBack bool
}

func (m *MockStore) BeginTx(ctx context.Context) (Transaction, error) {
	return &MockTransaction{parent: m}, nil
}

func (t *MockTransaction) Commit(ctx context.Context) error {
	if t.committed || t.rolledBack {
		return fmt.Errorf("transaction already completed")
	}
	t.committed = true
	return nil
}

func (t *MockTransaction) Rollback(ctx context.Context) error {
	if t.committed || t.rolledBack {
		return nil
	}
	t.rolledBack = true
	return nil
}

func (t *MockTransaction) Get(ctx context.Context, key string) (string, bool, error) {
	return t.parent.Get(ctx, key)
}

func (t *MockTransaction) Set(ctx context.Context, key, value string) error {
	return t.parent.Set(ctx, key, value)
}

func (t *MockTransaction) MGet(ctx context.Context, keys []string) ([]interface{}, error) {
	return t.parent.MGet(ctx, keys)
}

func (t *MockTransaction) Del(ctx context.Context, keys []string) (int64, error) {
	return t.parent.Del(ctx, keys)
}

func (t *MockTransaction) Exists(ctx context.Context, keys []string) (int64, error) {
	return t.parent.Exists(ctx, keys)
}

func (t *MockTransaction) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return t.parent.Expire(ctx, key, ttl)
}

func (t *MockTransaction) TTL(ctx context.Context, key string) (int64, error) {
	return t.parent.TTL(ctx, key)
}

func (t *MockTransaction) Keys(ctx context.Context, pattern string) ([]string, error) {
	return t.parent.Keys(ctx, pattern)
}

func (t *MockTransaction) HGet(ctx context.Context, key, field string) (string, bool, error) {
	return t.parent.HGet(ctx, key, field)
}

func (t *MockTransaction) HSet(ctx context.Context, key string, fields map[string]string) (int64, error) {
	return t.parent.HSet(ctx, key, fields)
}

func (t *MockTransaction) HDel(ctx context.Context, key string, fields []string) (int64, error) {
	return t.parent.HDel(ctx, key, fields)
}

func (t *MockTransaction) HMGet(ctx context.Context, key string, fields []string) ([]interface{}, error) {
	return t.parent.HMGet(ctx, key, fields)
}

func (t *MockTransaction) LPush(ctx context.Context, key string, values []string) (int64, error) {
	return t.parent.LPush(ctx, key, values)
}

func (t *MockTransaction) RPush(ctx context.Context, key string, values []string) (int64, error) {
	return t.parent.RPush(ctx, key, values)
}

func (t *MockTransaction) LPop(ctx context.Context, key string) (string, bool, error) {
	return t.parent.LPop(ctx, key)
}

func (t *MockTransaction) RPop(ctx context.Context, key string) (string, bool, error) {
	return t.parent.RPop(ctx, key)
}

func (t *MockTransaction) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return t.parent.LRange(ctx, key, start, stop)
}

func (t *MockTransaction) RPopLPush(ctx context.Context, source, destination string) (string, bool, error) {
	return t.parent.RPopLPush(ctx, source, destination)
}

func (t *MockTransaction) SAdd(ctx context.Context, key string, members []string) (int64, error) {
	return t.parent.SAdd(ctx, key, members)
}

func (t *MockTransaction) SRem(ctx context.Context, key string, members []string) (int64, error) {
	return t.parent.SRem(ctx, key, members)
}

func (t *MockTransaction) SMembers(ctx context.Context, key string) ([]string, error) {
	return t.parent.SMembers(ctx, key)
}

func (t *MockTransaction) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return t.parent.SIsMember(ctx, key, member)
}

func (t *MockTransaction) DBSize(ctx context.Context) (int64, error) {
	return t.parent.DBSize(ctx)
}

// Ensure MockStore implements Backend and MockTransaction implements
// Transaction.
var (
	_ Backend     = (*MockStore)(nil)
	_ Transaction = (*MockTransaction)(nil)
)

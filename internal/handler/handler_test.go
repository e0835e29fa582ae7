package handler

import (
	"context"
	"strings"
	"testing"

	"github.com/mnorrsken/redisqlite/internal/resp"
	"github.com/mnorrsken/redisqlite/internal/storage"
)

func bulkArgs(ss ...string) []resp.Value {
	out := make([]resp.Value, len(ss))
	for i, s := range ss {
		out[i] = resp.Bulk(s)
	}
	return out
}

func newTestHandler() *Handler {
	return New(storage.NewMockStore(), "", nil)
}

func TestHandlePing(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	v := h.Handle(ctx, "PING", nil)
	if v.Type != resp.SimpleString || v.Str != "PONG" {
		t.Fatalf("PING = %+v", v)
	}

	v = h.Handle(ctx, "PING", bulkArgs("hello"))
	if v.Type != resp.BulkString || v.Bulk != "hello" {
		t.Fatalf("PING hello = %+v", v)
	}
}

func TestHandleSetGet(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	v := h.Handle(ctx, "SET", bulkArgs("k", "v"))
	if v.Type != resp.SimpleString || v.Str != "OK" {
		t.Fatalf("SET = %+v", v)
	}

	v = h.Handle(ctx, "GET", bulkArgs("k"))
	if v.Type != resp.BulkString || v.Bulk != "v" {
		t.Fatalf("GET = %+v", v)
	}

	v = h.Handle(ctx, "GET", bulkArgs("missing"))
	if v.Type != resp.BulkString || !v.Null {
		t.Fatalf("GET missing = %+v", v)
	}
}

func TestHandleMGet(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	h.Handle(ctx, "SET", bulkArgs("k1", "v1"))
	h.Handle(ctx, "SET", bulkArgs("k2", "v2"))

	v := h.Handle(ctx, "MGET", bulkArgs("k1", "missing", "k2"))
	if v.Type != resp.Array || len(v.Array) != 3 {
		t.Fatalf("MGET = %+v", v)
	}
	if v.Array[0].Bulk != "v1" || !v.Array[1].Null || v.Array[2].Bulk != "v2" {
		t.Fatalf("MGET values = %+v", v.Array)
	}
}

func TestHandleWrongType(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	h.Handle(ctx, "LPUSH", bulkArgs("k", "a"))
	v := h.Handle(ctx, "GET", bulkArgs("k"))
	if v.Type != resp.Error || !strings.HasPrefix(v.Str, "WRONGTYPE") {
		t.Fatalf("expected WRONGTYPE, got %+v", v)
	}
}

func TestHandleExpireTTL(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	h.Handle(ctx, "SET", bulkArgs("k", "v"))

	v := h.Handle(ctx, "TTL", bulkArgs("k"))
	if v.Type != resp.Integer || v.Num != -1 {
		t.Fatalf("TTL before expire = %+v", v)
	}

	v = h.Handle(ctx, "EXPIRE", bulkArgs("k", "100"))
	if v.Type != resp.Integer || v.Num != 1 {
		t.Fatalf("EXPIRE = %+v", v)
	}

	v = h.Handle(ctx, "TTL", bulkArgs("k"))
	if v.Type != resp.Integer || v.Num <= 0 {
		t.Fatalf("TTL after expire = %+v", v)
	}

	v = h.Handle(ctx, "TTL", bulkArgs("missing"))
	if v.Type != resp.Integer || v.Num != -2 {
		t.Fatalf("TTL missing = %+v", v)
	}
}

func TestHandleDelExists(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	h.Handle(ctx, "SET", bulkArgs("a", "1"))
	h.Handle(ctx, "SET", bulkArgs("b", "2"))

	v := h.Handle(ctx, "EXISTS", bulkArgs("a", "b", "c"))
	if v.Type != resp.Integer || v.Num != 2 {
		t.Fatalf("EXISTS = %+v", v)
	}

	v = h.Handle(ctx, "DEL", bulkArgs("a", "b", "c"))
	if v.Type != resp.Integer || v.Num != 2 {
		t.Fatalf("DEL = %+v", v)
	}
}

func TestHandleKeys(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	h.Handle(ctx, "SET", bulkArgs("user:1", "a"))
	h.Handle(ctx, "SET", bulkArgs("user:2", "b"))
	h.Handle(ctx, "SET", bulkArgs("other", "c"))

	v := h.Handle(ctx, "KEYS", bulkArgs("user:*"))
	if v.Type != resp.Array || len(v.Array) != 2 {
		t.Fatalf("KEYS = %+v", v)
	}
}

func TestHandleHashOperations(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	v := h.Handle(ctx, "HSET", bulkArgs("h", "f1", "v1", "f2", "v2"))
	if v.Type != resp.Integer || v.Num != 2 {
		t.Fatalf("HSET = %+v", v)
	}

	v = h.Handle(ctx, "HSET", bulkArgs("h", "f1", "v1-updated"))
	if v.Type != resp.Integer || v.Num != 0 {
		t.Fatalf("HSET re-set existing field should add 0, got %+v", v)
	}

	v = h.Handle(ctx, "HMSET", bulkArgs("h", "f3", "v3"))
	if v.Type != resp.SimpleString || v.Str != "OK" {
		t.Fatalf("HMSET = %+v", v)
	}

	v = h.Handle(ctx, "HGET", bulkArgs("h", "f1"))
	if v.Type != resp.BulkString || v.Bulk != "v1-updated" {
		t.Fatalf("HGET = %+v", v)
	}

	v = h.Handle(ctx, "HMGET", bulkArgs("h", "f1", "missing", "f3"))
	if v.Type != resp.Array || len(v.Array) != 3 || v.Array[0].Bulk != "v1-updated" || !v.Array[1].Null || v.Array[2].Bulk != "v3" {
		t.Fatalf("HMGET = %+v", v)
	}

	v = h.Handle(ctx, "HDEL", bulkArgs("h", "f1", "missing"))
	if v.Type != resp.Integer || v.Num != 1 {
		t.Fatalf("HDEL = %+v", v)
	}
}

func TestHandleListOperations(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	h.Handle(ctx, "RPUSH", bulkArgs("l", "a", "b", "c"))
	v := h.Handle(ctx, "LPUSH", bulkArgs("l", "z"))
	if v.Type != resp.Integer || v.Num != 4 {
		t.Fatalf("LPUSH = %+v", v)
	}

	v = h.Handle(ctx, "LRANGE", bulkArgs("l", "0", "-1"))
	if v.Type != resp.Array || len(v.Array) != 4 {
		t.Fatalf("LRANGE = %+v", v)
	}
	want := []string{"z", "a", "b", "c"}
	for i, exp := range want {
		if v.Array[i].Bulk != exp {
			t.Fatalf("LRANGE[%d] = %q, want %q", i, v.Array[i].Bulk, exp)
		}
	}

	v = h.Handle(ctx, "LPOP", bulkArgs("l"))
	if v.Type != resp.BulkString || v.Bulk != "z" {
		t.Fatalf("LPOP = %+v", v)
	}

	v = h.Handle(ctx, "RPOP", bulkArgs("l"))
	if v.Type != resp.BulkString || v.Bulk != "c" {
		t.Fatalf("RPOP = %+v", v)
	}
}

func TestHandleRPopLPush(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	h.Handle(ctx, "RPUSH", bulkArgs("src", "a", "b", "c"))

	v := h.Handle(ctx, "RPOPLPUSH", bulkArgs("src", "dst"))
	if v.Type != resp.BulkString || v.Bulk != "c" {
		t.Fatalf("RPOPLPUSH = %+v", v)
	}

	v = h.Handle(ctx, "LRANGE", bulkArgs("dst", "0", "-1"))
	if v.Type != resp.Array || len(v.Array) != 1 || v.Array[0].Bulk != "c" {
		t.Fatalf("dst after RPOPLPUSH = %+v", v)
	}
}

func TestHandleBRPopLPushNonBlockingWithoutCoordinator(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	v := h.Handle(ctx, "BRPOPLPUSH", bulkArgs("empty-src", "dst", "0"))
	if v.Type != resp.BulkString || !v.Null {
		t.Fatalf("BRPOPLPUSH on empty source with no coordinator should return nil, got %+v", v)
	}
}

func TestHandleSetOperations(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	v := h.Handle(ctx, "SADD", bulkArgs("s", "a", "b", "a"))
	if v.Type != resp.Integer || v.Num != 2 {
		t.Fatalf("SADD = %+v", v)
	}

	v = h.Handle(ctx, "SISMEMBER", bulkArgs("s", "a"))
	if v.Type != resp.Integer || v.Num != 1 {
		t.Fatalf("SISMEMBER = %+v", v)
	}

	v = h.Handle(ctx, "SMEMBERS", bulkArgs("s"))
	if v.Type != resp.Array || len(v.Array) != 2 {
		t.Fatalf("SMEMBERS = %+v", v)
	}

	v = h.Handle(ctx, "SREM", bulkArgs("s", "a"))
	if v.Type != resp.Integer || v.Num != 1 {
		t.Fatalf("SREM = %+v", v)
	}
}

func TestAuthGateHelpers(t *testing.T) {
	h := New(storage.NewMockStore(), "secret", nil)

	if !h.RequiresAuth() {
		t.Fatal("expected RequiresAuth() true when password configured")
	}
	if h.CheckAuth("wrong") {
		t.Fatal("expected CheckAuth to reject wrong password")
	}
	if !h.CheckAuth("secret") {
		t.Fatal("expected CheckAuth to accept correct password")
	}

	v := h.Handle(context.Background(), "AUTH", bulkArgs("wrong"))
	if v.Type != resp.Error || v.Str != "ERR invalid password" {
		t.Fatalf("AUTH wrong password = %+v", v)
	}

	v = h.Handle(context.Background(), "AUTH", bulkArgs("secret"))
	if v.Type != resp.SimpleString || v.Str != "OK" {
		t.Fatalf("AUTH correct password = %+v", v)
	}
}

func TestAuthWithoutPasswordConfigured(t *testing.T) {
	h := newTestHandler()
	v := h.Handle(context.Background(), "AUTH", bulkArgs("anything"))
	if v.Type != resp.Error || v.Str != "ERR Client sent AUTH, but no password is set" {
		t.Fatalf("AUTH without configured password = %+v", v)
	}
}

// fakeTxClient is a minimal TransactionClientState for exercising
// HandleMulti/HandleExec/HandleDiscard without a real connection.
type fakeTxClient struct {
	inTx  bool
	queue []resp.Value
}

func (c *fakeTxClient) InTransaction() bool { return c.inTx }

func (c *fakeTxClient) StartTransaction() error {
	c.inTx = true
	c.queue = nil
	return nil
}

func (c *fakeTxClient) QueueCommand(cmd resp.Value) {
	c.queue = append(c.queue, cmd)
}

func (c *fakeTxClient) GetQueuedCommands() []resp.Value {
	cmds := c.queue
	c.queue = nil
	c.inTx = false
	return cmds
}

func (c *fakeTxClient) DiscardTransaction() error {
	c.inTx = false
	c.queue = nil
	return nil
}

func cmdArray(name string, args ...string) resp.Value {
	values := make([]resp.Value, 0, len(args)+1)
	values = append(values, resp.Bulk(name))
	for _, a := range args {
		values = append(values, resp.Bulk(a))
	}
	return resp.Arr(values...)
}

func TestTransactionLifecycle(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()
	client := &fakeTxClient{}

	v := h.HandleMulti(client)
	if v.Type != resp.SimpleString || v.Str != "OK" {
		t.Fatalf("MULTI = %+v", v)
	}

	client.QueueCommand(cmdArray("SET", "k", "v"))
	client.QueueCommand(cmdArray("GET", "k"))
	client.QueueCommand(cmdArray("GET", "nonexistent-wrongtype-key"))

	v = h.HandleExec(ctx, client)
	if v.Type != resp.Array || len(v.Array) != 3 {
		t.Fatalf("EXEC = %+v", v)
	}
	if v.Array[0].Str != "OK" {
		t.Fatalf("EXEC[0] = %+v", v.Array[0])
	}
	if v.Array[1].Bulk != "v" {
		t.Fatalf("EXEC[1] = %+v", v.Array[1])
	}
	if !v.Array[2].Null {
		t.Fatalf("EXEC[2] = %+v", v.Array[2])
	}

	if client.InTransaction() {
		t.Fatal("expected transaction to end after EXEC")
	}
}

func TestTransactionPerCommandErrorDoesNotAbortBatch(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()
	client := &fakeTxClient{}

	h.HandleMulti(client)
	client.QueueCommand(cmdArray("RPUSH", "k", "a"))
	client.QueueCommand(cmdArray("GET", "k")) // WRONGTYPE: k is a list
	client.QueueCommand(cmdArray("RPUSH", "k", "b"))

	v := h.HandleExec(ctx, client)
	if v.Type != resp.Array || len(v.Array) != 3 {
		t.Fatalf("EXEC = %+v", v)
	}
	if v.Array[0].Type != resp.Integer {
		t.Fatalf("EXEC[0] should succeed, got %+v", v.Array[0])
	}
	if v.Array[1].Type != resp.Error || !strings.HasPrefix(v.Array[1].Str, "WRONGTYPE") {
		t.Fatalf("EXEC[1] should be WRONGTYPE, got %+v", v.Array[1])
	}
	if v.Array[2].Type != resp.Integer || v.Array[2].Num != 2 {
		t.Fatalf("EXEC[2] should still run despite prior error, got %+v", v.Array[2])
	}
}

func TestExecWithoutMulti(t *testing.T) {
	h := newTestHandler()
	client := &fakeTxClient{}

	v := h.HandleExec(context.Background(), client)
	if v.Type != resp.Error || v.Str != "ERR EXEC without MULTI" {
		t.Fatalf("EXEC without MULTI = %+v", v)
	}
}

func TestDiscard(t *testing.T) {
	h := newTestHandler()
	client := &fakeTxClient{}

	h.HandleMulti(client)
	client.QueueCommand(cmdArray("SET", "k", "v"))

	v := h.HandleDiscard(client)
	if v.Type != resp.SimpleString || v.Str != "OK" {
		t.Fatalf("DISCARD = %+v", v)
	}
	if client.InTransaction() {
		t.Fatal("expected transaction to end after DISCARD")
	}

	v = h.Handle(context.Background(), "GET", bulkArgs("k"))
	if v.Type != resp.BulkString || !v.Null {
		t.Fatalf("discarded SET should never have run, got %+v", v)
	}
}

func TestFlushDB(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	h.Handle(ctx, "SET", bulkArgs("k", "v"))
	v := h.Handle(ctx, "FLUSHDB", nil)
	if v.Type != resp.SimpleString || v.Str != "OK" {
		t.Fatalf("FLUSHDB = %+v", v)
	}

	v = h.Handle(ctx, "EXISTS", bulkArgs("k"))
	if v.Type != resp.Integer || v.Num != 0 {
		t.Fatalf("EXISTS after FLUSHDB = %+v", v)
	}
}

func TestWrongArgsErrors(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	v := h.Handle(ctx, "GET", nil)
	if v.Type != resp.Error || !strings.Contains(v.Str, "wrong number of arguments") {
		t.Fatalf("GET with no args = %+v", v)
	}
}

func TestUnknownCommand(t *testing.T) {
	h := newTestHandler()
	v := h.Handle(context.Background(), "NOTACOMMAND", nil)
	if v.Type != resp.Error || !strings.Contains(v.Str, "unknown command") {
		t.Fatalf("unknown command = %+v", v)
	}
}

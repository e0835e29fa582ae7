// Package handler implements the Command Engine: one method per recognized
// RESP command, operating against a storage.Operations so the same logic
// runs standalone or threaded through a MULTI/EXEC transaction.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mnorrsken/redisqlite/internal/blocking"
	"github.com/mnorrsken/redisqlite/internal/metrics"
	"github.com/mnorrsken/redisqlite/internal/resp"
	"github.com/mnorrsken/redisqlite/internal/storage"
)

// TransactionClientState is the per-connection state the Transaction
// Controller needs: whether the caller is buffering, and the buffer itself.
type TransactionClientState interface {
	InTransaction() bool
	StartTransaction() error
	QueueCommand(cmd resp.Value)
	GetQueuedCommands() []resp.Value
	DiscardTransaction() error
}

// Handler implements the Command Engine and the connection-level commands
// (AUTH, PING, INFO, QUIT) that sit outside the storage Operations surface.
type Handler struct {
	store       storage.Backend
	password    string
	coordinator *blocking.Coordinator
	startTime   time.Time
}

// New creates a command handler backed by store. coordinator may be nil, in
// which case BRPOPLPUSH never blocks and returns nil immediately on an
// empty source (matching its behavior inside a transaction).
func New(store storage.Backend, password string, coordinator *blocking.Coordinator) *Handler {
	return &Handler{
		store:       store,
		password:    password,
		coordinator: coordinator,
		startTime:   time.Now(),
	}
}

// RequiresAuth reports whether a password is configured.
func (h *Handler) RequiresAuth() bool {
	return h.password != ""
}

// CheckAuth reports whether the provided password matches.
func (h *Handler) CheckAuth(password string) bool {
	return h.password == password
}

// Handle parses cmd into a name and arguments, dispatches it, and records
// command metrics. It does not enforce the auth gate or transaction
// buffering — those are the TCP Dispatcher's job, since they depend on
// per-connection state this handler doesn't own.
func (h *Handler) Handle(ctx context.Context, cmdName string, args []resp.Value) resp.Value {
	start := time.Now()
	result := h.dispatch(ctx, cmdName, args)
	metrics.RecordCommand(cmdName, time.Since(start), result.Type == resp.Error)
	return result
}

func (h *Handler) dispatch(ctx context.Context, cmdName string, args []resp.Value) resp.Value {
	switch cmdName {
	case "PING":
		return h.ping(args)
	case "AUTH":
		return h.auth(args)
	case "INFO":
		return h.info()
	case "QUIT":
		return resp.OK()
	case "WATCH", "UNWATCH":
		return resp.OK()
	case "BRPOPLPUSH":
		return h.brpoplpush(ctx, h.store, args)
	case "FLUSHDB", "FLUSHALL":
		return h.flushdb(ctx, args)
	case "MULTI", "EXEC", "DISCARD":
		return resp.Err(cmdName + " must be handled by the transaction controller")
	default:
		return h.ExecuteWithOps(ctx, h.store, cmdName, args)
	}
}

// ExecuteWithOps runs the storage-backed commands (every recognized command
// except the connection commands and FLUSHDB/FLUSHALL, which only exist on
// the full Backend) against ops. Called directly for normal execution and
// once per buffered command during EXEC, threading the same transaction
// through every call.
func (h *Handler) ExecuteWithOps(ctx context.Context, ops storage.Operations, cmdName string, args []resp.Value) resp.Value {
	switch cmdName {
	case "SET":
		return h.set(ctx, ops, args)
	case "GET":
		return h.get(ctx, ops, args)
	case "MGET":
		return h.mget(ctx, ops, args)
	case "DEL":
		return h.del(ctx, ops, args)
	case "EXISTS":
		return h.exists(ctx, ops, args)
	case "EXPIRE":
		return h.expire(ctx, ops, args)
	case "TTL":
		return h.ttl(ctx, ops, args)
	case "KEYS":
		return h.keys(ctx, ops, args)
	case "HSET":
		return h.hset(ctx, ops, args, true)
	case "HMSET":
		return h.hset(ctx, ops, args, false)
	case "HGET":
		return h.hget(ctx, ops, args)
	case "HMGET":
		return h.hmget(ctx, ops, args)
	case "HDEL":
		return h.hdel(ctx, ops, args)
	case "LPUSH":
		return h.lpush(ctx, ops, args)
	case "RPUSH":
		return h.rpush(ctx, ops, args)
	case "LPOP":
		return h.lpop(ctx, ops, args)
	case "RPOP":
		return h.rpop(ctx, ops, args)
	case "LRANGE":
		return h.lrange(ctx, ops, args)
	case "RPOPLPUSH":
		return h.rpoplpush(ctx, ops, args)
	case "BRPOPLPUSH":
		// Blocking inside a transaction would hold the single writer
		// connection hostage; real Redis runs blocking commands
		// non-blocking when buffered, and so do we.
		return h.rpoplpush(ctx, ops, args)
	case "SADD":
		return h.sadd(ctx, ops, args)
	case "SREM":
		return h.srem(ctx, ops, args)
	case "SISMEMBER":
		return h.sismember(ctx, ops, args)
	case "SMEMBERS":
		return h.smembers(ctx, ops, args)
	case "WATCH", "UNWATCH":
		return resp.OK()
	default:
		return resp.Err(fmt.Sprintf("unknown command '%s'", cmdName))
	}
}

// HandleMulti starts a buffered transaction for client.
func (h *Handler) HandleMulti(client TransactionClientState) resp.Value {
	if err := client.StartTransaction(); err != nil {
		return resp.Err(err.Error())
	}
	return resp.OK()
}

// HandleDiscard drops client's buffered commands.
func (h *Handler) HandleDiscard(client TransactionClientState) resp.Value {
	if err := client.DiscardTransaction(); err != nil {
		return resp.Err(err.Error())
	}
	return resp.OK()
}

// HandleExec runs every buffered command inside one SQL transaction and
// returns their results as a RESP array, one (error-or-value) slot per
// command. A per-command failure is captured in its own slot; only a
// failure at the SQL layer itself rolls back and aborts the whole batch.
func (h *Handler) HandleExec(ctx context.Context, client TransactionClientState) resp.Value {
	if !client.InTransaction() {
		return resp.Err("EXEC without MULTI")
	}

	commands := client.GetQueuedCommands()

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		return resp.Err(fmt.Sprintf("transaction start failed: %v", err))
	}

	results := make([]resp.Value, len(commands))
	for i, cmd := range commands {
		if cmd.Type != resp.Array || len(cmd.Array) == 0 {
			results[i] = resp.Err("invalid command format")
			continue
		}
		cmdName := strings.ToUpper(cmd.Array[0].Bulk)
		results[i] = h.ExecuteWithOps(ctx, tx, cmdName, cmd.Array[1:])
	}

	if err := tx.Commit(ctx); err != nil {
		tx.Rollback(ctx)
		return resp.Err(fmt.Sprintf("transaction commit failed: %v", err))
	}

	metrics.RecordCommand("EXEC", 0, false)
	return resp.Arr(results...)
}

// ============== Connection commands ==============

func (h *Handler) ping(args []resp.Value) resp.Value {
	if len(args) == 0 {
		return resp.Value{Type: resp.SimpleString, Str: "PONG"}
	}
	if len(args) != 1 {
		return resp.ErrWrongArgs("ping")
	}
	return resp.Bulk(args[0].Bulk)
}

func (h *Handler) auth(args []resp.Value) resp.Value {
	if !h.RequiresAuth() {
		return resp.Err("Client sent AUTH, but no password is set")
	}
	if len(args) != 1 {
		return resp.ErrWrongArgs("auth")
	}
	if !h.CheckAuth(args[0].Bulk) {
		return resp.Err("invalid password")
	}
	return resp.OK()
}

func (h *Handler) info() resp.Value {
	uptime := int64(time.Since(h.startTime).Seconds())
	lines := fmt.Sprintf(
		"# Server\r\nuptime_in_seconds:%d\r\n# Clients\r\nconnected_clients:%d\r\n# Commands\r\nrecognized_commands:%d\r\n",
		uptime, metrics.ActiveConnectionsValue(), recognizedCommandCount,
	)
	return resp.Bulk(lines)
}

// recognizedCommandCount mirrors the 35 commands SPEC_FULL.md §6.1 lists:
// AUTH, PING, SET, GET, MGET, LPUSH, RPUSH, LPOP, RPOP, LRANGE, RPOPLPUSH,
// BRPOPLPUSH, HSET, HMSET, HGET, HMGET, HDEL, SADD, SREM, SISMEMBER,
// SMEMBERS, DEL, EXISTS, EXPIRE, TTL, FLUSHDB, FLUSHALL, KEYS, INFO, MULTI,
// EXEC, DISCARD, WATCH, UNWATCH, QUIT.
const recognizedCommandCount = 35

func (h *Handler) flushdb(ctx context.Context, args []resp.Value) resp.Value {
	if len(args) != 0 {
		return resp.ErrWrongArgs("flushdb")
	}
	if err := h.store.FlushDB(ctx); err != nil {
		return resp.Err(err.Error())
	}
	return resp.OK()
}

// ============== Blocking list commands ==============

func (h *Handler) brpoplpush(ctx context.Context, ops storage.Operations, args []resp.Value) resp.Value {
	if len(args) != 3 {
		return resp.ErrWrongArgs("brpoplpush")
	}
	source, destination := args[0].Bulk, args[1].Bulk

	timeoutSec, err := strconv.ParseFloat(args[2].Bulk, 64)
	if err != nil || timeoutSec < 0 {
		return resp.Err("timeout is not a float or out of range")
	}

	for {
		value, ok, err := ops.RPopLPush(ctx, source, destination)
		if err != nil {
			return mapError(err)
		}
		if ok {
			return resp.Bulk(value)
		}
		if h.coordinator == nil {
			return resp.NullBulk()
		}

		waitCtx := ctx
		var cancel context.CancelFunc
		if timeoutSec > 0 {
			waitCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSec*float64(time.Second)))
		}
		woken := h.coordinator.Wait(waitCtx, source)
		if cancel != nil {
			cancel()
		}
		if !woken {
			return resp.NullBulk()
		}
	}
}

// mapError translates a storage-layer error into its RESP error value,
// preserving the WRONGTYPE prefix verbatim when present.
func mapError(err error) resp.Value {
	if errors.Is(err, storage.ErrWrongType) {
		return resp.ErrWrongType()
	}
	return resp.Err(err.Error())
}

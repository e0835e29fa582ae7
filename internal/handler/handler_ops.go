package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/mnorrsken/redisqlite/internal/resp"
	"github.com/mnorrsken/redisqlite/internal/storage"
)

// ============== String commands ==============

func (h *Handler) set(ctx context.Context, ops storage.Operations, args []resp.Value) resp.Value {
	if len(args) != 2 {
		return resp.ErrWrongArgs("set")
	}
	if err := ops.Set(ctx, args[0].Bulk, args[1].Bulk); err != nil {
		return mapError(err)
	}
	return resp.OK()
}

func (h *Handler) get(ctx context.Context, ops storage.Operations, args []resp.Value) resp.Value {
	if len(args) != 1 {
		return resp.ErrWrongArgs("get")
	}
	value, ok, err := ops.Get(ctx, args[0].Bulk)
	if err != nil {
		return mapError(err)
	}
	if !ok {
		return resp.NullBulk()
	}
	return resp.Bulk(value)
}

func (h *Handler) mget(ctx context.Context, ops storage.Operations, args []resp.Value) resp.Value {
	if len(args) == 0 {
		return resp.ErrWrongArgs("mget")
	}
	keys := bulkStrings(args)
	values, err := ops.MGet(ctx, keys)
	if err != nil {
		return mapError(err)
	}
	return resp.Arr(interfacesToValues(values)...)
}

// ============== Key commands ==============

func (h *Handler) del(ctx context.Context, ops storage.Operations, args []resp.Value) resp.Value {
	if len(args) == 0 {
		return resp.ErrWrongArgs("del")
	}
	n, err := ops.Del(ctx, bulkStrings(args))
	if err != nil {
		return mapError(err)
	}
	return resp.Int(n)
}

func (h *Handler) exists(ctx context.Context, ops storage.Operations, args []resp.Value) resp.Value {
	if len(args) == 0 {
		return resp.ErrWrongArgs("exists")
	}
	n, err := ops.Exists(ctx, bulkStrings(args))
	if err != nil {
		return mapError(err)
	}
	return resp.Int(n)
}

func (h *Handler) expire(ctx context.Context, ops storage.Operations, args []resp.Value) resp.Value {
	if len(args) != 2 {
		return resp.ErrWrongArgs("expire")
	}
	seconds, err := strconv.ParseInt(args[1].Bulk, 10, 64)
	if err != nil {
		return resp.Err("value is not an integer or out of range")
	}
	updated, err := ops.Expire(ctx, args[0].Bulk, time.Duration(seconds)*time.Second)
	if err != nil {
		return mapError(err)
	}
	if updated {
		return resp.Int(1)
	}
	return resp.Int(0)
}

func (h *Handler) ttl(ctx context.Context, ops storage.Operations, args []resp.Value) resp.Value {
	if len(args) != 1 {
		return resp.ErrWrongArgs("ttl")
	}
	seconds, err := ops.TTL(ctx, args[0].Bulk)
	if err != nil {
		return mapError(err)
	}
	return resp.Int(seconds)
}

func (h *Handler) keys(ctx context.Context, ops storage.Operations, args []resp.Value) resp.Value {
	if len(args) != 1 {
		return resp.ErrWrongArgs("keys")
	}
	matched, err := ops.Keys(ctx, args[0].Bulk)
	if err != nil {
		return mapError(err)
	}
	values := make([]resp.Value, len(matched))
	for i, k := range matched {
		values[i] = resp.Bulk(k)
	}
	return resp.Arr(values...)
}

// ============== Hash commands ==============

// hset implements both HSET (multi-field) and HMSET. wantCount selects
// HSET's "number of new fields" reply over HMSET's "OK".
func (h *Handler) hset(ctx context.Context, ops storage.Operations, args []resp.Value, wantCount bool) resp.Value {
	name := "hmset"
	if wantCount {
		name = "hset"
	}
	if len(args) < 3 || len(args)%2 != 1 {
		return resp.ErrWrongArgs(name)
	}
	key := args[0].Bulk
	fields := make(map[string]string, (len(args)-1)/2)
	for i := 1; i < len(args); i += 2 {
		fields[args[i].Bulk] = args[i+1].Bulk
	}
	added, err := ops.HSet(ctx, key, fields)
	if err != nil {
		return mapError(err)
	}
	if wantCount {
		return resp.Int(added)
	}
	return resp.OK()
}

func (h *Handler) hget(ctx context.Context, ops storage.Operations, args []resp.Value) resp.Value {
	if len(args) != 2 {
		return resp.ErrWrongArgs("hget")
	}
	value, ok, err := ops.HGet(ctx, args[0].Bulk, args[1].Bulk)
	if err != nil {
		return mapError(err)
	}
	if !ok {
		return resp.NullBulk()
	}
	return resp.Bulk(value)
}

func (h *Handler) hmget(ctx context.Context, ops storage.Operations, args []resp.Value) resp.Value {
	if len(args) < 2 {
		return resp.ErrWrongArgs("hmget")
	}
	values, err := ops.HMGet(ctx, args[0].Bulk, bulkStrings(args[1:]))
	if err != nil {
		return mapError(err)
	}
	return resp.Arr(interfacesToValues(values)...)
}

func (h *Handler) hdel(ctx context.Context, ops storage.Operations, args []resp.Value) resp.Value {
	if len(args) < 2 {
		return resp.ErrWrongArgs("hdel")
	}
	n, err := ops.HDel(ctx, args[0].Bulk, bulkStrings(args[1:]))
	if err != nil {
		return mapError(err)
	}
	return resp.Int(n)
}

// ============== List commands ==============

func (h *Handler) lpush(ctx context.Context, ops storage.Operations, args []resp.Value) resp.Value {
	if len(args) < 2 {
		return resp.ErrWrongArgs("lpush")
	}
	n, err := ops.LPush(ctx, args[0].Bulk, bulkStrings(args[1:]))
	if err != nil {
		return mapError(err)
	}
	return resp.Int(n)
}

func (h *Handler) rpush(ctx context.Context, ops storage.Operations, args []resp.Value) resp.Value {
	if len(args) < 2 {
		return resp.ErrWrongArgs("rpush")
	}
	n, err := ops.RPush(ctx, args[0].Bulk, bulkStrings(args[1:]))
	if err != nil {
		return mapError(err)
	}
	return resp.Int(n)
}

func (h *Handler) lpop(ctx context.Context, ops storage.Operations, args []resp.Value) resp.Value {
	if len(args) != 1 {
		return resp.ErrWrongArgs("lpop")
	}
	value, ok, err := ops.LPop(ctx, args[0].Bulk)
	if err != nil {
		return mapError(err)
	}
	if !ok {
		return resp.NullBulk()
	}
	return resp.Bulk(value)
}

func (h *Handler) rpop(ctx context.Context, ops storage.Operations, args []resp.Value) resp.Value {
	if len(args) != 1 {
		return resp.ErrWrongArgs("rpop")
	}
	value, ok, err := ops.RPop(ctx, args[0].Bulk)
	if err != nil {
		return mapError(err)
	}
	if !ok {
		return resp.NullBulk()
	}
	return resp.Bulk(value)
}

func (h *Handler) lrange(ctx context.Context, ops storage.Operations, args []resp.Value) resp.Value {
	if len(args) != 3 {
		return resp.ErrWrongArgs("lrange")
	}
	start, err := strconv.ParseInt(args[1].Bulk, 10, 64)
	if err != nil {
		return resp.Err("value is not an integer or out of range")
	}
	stop, err := strconv.ParseInt(args[2].Bulk, 10, 64)
	if err != nil {
		return resp.Err("value is not an integer or out of range")
	}
	values, err := ops.LRange(ctx, args[0].Bulk, start, stop)
	if err != nil {
		return mapError(err)
	}
	out := make([]resp.Value, len(values))
	for i, v := range values {
		out[i] = resp.Bulk(v)
	}
	return resp.Arr(out...)
}

func (h *Handler) rpoplpush(ctx context.Context, ops storage.Operations, args []resp.Value) resp.Value {
	if len(args) != 2 {
		return resp.ErrWrongArgs("rpoplpush")
	}
	value, ok, err := ops.RPopLPush(ctx, args[0].Bulk, args[1].Bulk)
	if err != nil {
		return mapError(err)
	}
	if !ok {
		return resp.NullBulk()
	}
	return resp.Bulk(value)
}

// ============== Set commands ==============

func (h *Handler) sadd(ctx context.Context, ops storage.Operations, args []resp.Value) resp.Value {
	if len(args) < 2 {
		return resp.ErrWrongArgs("sadd")
	}
	n, err := ops.SAdd(ctx, args[0].Bulk, bulkStrings(args[1:]))
	if err != nil {
		return mapError(err)
	}
	return resp.Int(n)
}

func (h *Handler) srem(ctx context.Context, ops storage.Operations, args []resp.Value) resp.Value {
	if len(args) < 2 {
		return resp.ErrWrongArgs("srem")
	}
	n, err := ops.SRem(ctx, args[0].Bulk, bulkStrings(args[1:]))
	if err != nil {
		return mapError(err)
	}
	return resp.Int(n)
}

func (h *Handler) sismember(ctx context.Context, ops storage.Operations, args []resp.Value) resp.Value {
	if len(args) != 2 {
		return resp.ErrWrongArgs("sismember")
	}
	isMember, err := ops.SIsMember(ctx, args[0].Bulk, args[1].Bulk)
	if err != nil {
		return mapError(err)
	}
	if isMember {
		return resp.Int(1)
	}
	return resp.Int(0)
}

func (h *Handler) smembers(ctx context.Context, ops storage.Operations, args []resp.Value) resp.Value {
	if len(args) != 1 {
		return resp.ErrWrongArgs("smembers")
	}
	members, err := ops.SMembers(ctx, args[0].Bulk)
	if err != nil {
		return mapError(err)
	}
	out := make([]resp.Value, len(members))
	for i, m := range members {
		out[i] = resp.Bulk(m)
	}
	return resp.Arr(out...)
}

// ============== Helpers ==============

func bulkStrings(args []resp.Value) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = a.Bulk
	}
	return out
}

// interfacesToValues converts a []interface{} of string/nil (as returned by
// MGet/HMGet) into RESP bulk-string/null values, preserving position.
func interfacesToValues(values []interface{}) []resp.Value {
	out := make([]resp.Value, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = resp.NullBulk()
			continue
		}
		out[i] = resp.Bulk(v.(string))
	}
	return out
}

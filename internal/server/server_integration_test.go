package server_test

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/mnorrsken/redisqlite/internal/blocking"
	"github.com/mnorrsken/redisqlite/internal/handler"
	"github.com/mnorrsken/redisqlite/internal/server"
	"github.com/mnorrsken/redisqlite/internal/storage"
)

// testServer wires a real TCP listener to the Command Engine over a
// MockStore, the same way the handler unit tests do, but driven end-to-end
// through a real go-redis client so the RESP codec and the TCP Dispatcher
// are exercised along with the Command Engine.
type testServer struct {
	srv         *server.Server
	client      *redis.Client
	coordinator *blocking.Coordinator
	addr        string
}

func newTestServer(t *testing.T, password string) *testServer {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()

	store := storage.NewMockStore()
	coordinator := blocking.New()
	store.SetWaker(coordinator)
	h := handler.New(store, password, coordinator)
	srv := server.New(addr, h, nil)

	require.NoError(t, srv.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)

	opts := &redis.Options{Addr: addr}
	if password != "" {
		opts.Password = password
	}
	client := redis.NewClient(opts)

	return &testServer{srv: srv, client: client, coordinator: coordinator, addr: addr}
}

func (ts *testServer) Close() {
	ts.client.Close()
	ts.srv.Stop()
}

func TestServerPing(t *testing.T) {
	ts := newTestServer(t, "")
	defer ts.Close()

	result, err := ts.client.Ping(context.Background()).Result()
	require.NoError(t, err)
	require.Equal(t, "PONG", result)
}

func TestServerStringSetGetExpire(t *testing.T) {
	ts := newTestServer(t, "")
	defer ts.Close()
	ctx := context.Background()

	require.NoError(t, ts.client.Set(ctx, "mykey", "myvalue", 0).Err())

	val, err := ts.client.Get(ctx, "mykey").Result()
	require.NoError(t, err)
	require.Equal(t, "myvalue", val)

	_, err = ts.client.Get(ctx, "nonexistent").Result()
	require.ErrorIs(t, err, redis.Nil)

	require.NoError(t, ts.client.Expire(ctx, "mykey", 10*time.Second).Err())

	ttl, err := ts.client.TTL(ctx, "mykey").Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))
	require.LessOrEqual(t, ttl, 10*time.Second)
}

func TestServerListOrdering(t *testing.T) {
	ts := newTestServer(t, "")
	defer ts.Close()
	ctx := context.Background()

	require.NoError(t, ts.client.RPush(ctx, "mylist", "a", "b", "c").Err())
	require.NoError(t, ts.client.LPush(ctx, "mylist", "z").Err())

	values, err := ts.client.LRange(ctx, "mylist", 0, -1).Result()
	require.NoError(t, err)
	require.Equal(t, []string{"z", "a", "b", "c"}, values)
}

func TestServerHashUpsertSemantics(t *testing.T) {
	ts := newTestServer(t, "")
	defer ts.Close()
	ctx := context.Background()

	added, err := ts.client.HSet(ctx, "myhash", "field1", "value1", "field2", "value2").Result()
	require.NoError(t, err)
	require.Equal(t, int64(2), added)

	added, err = ts.client.HSet(ctx, "myhash", "field1", "updated").Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), added, "overwriting an existing field must not count as newly added")

	val, err := ts.client.HGet(ctx, "myhash", "field1").Result()
	require.NoError(t, err)
	require.Equal(t, "updated", val)
}

func TestServerPipelineWithPerCommandError(t *testing.T) {
	ts := newTestServer(t, "")
	defer ts.Close()
	ctx := context.Background()

	require.NoError(t, ts.client.RPush(ctx, "listkey", "a").Err())

	pipe := ts.client.TxPipeline()
	setCmd := pipe.Set(ctx, "strkey", "v", 0)
	getWrongType := pipe.Get(ctx, "listkey")
	incrAfter := pipe.Set(ctx, "strkey2", "v2", 0)

	_, err := pipe.Exec(ctx)
	// One command in the pipeline failed (WRONGTYPE); go-redis surfaces
	// this as a non-nil error from Exec while still populating every
	// command's own result.
	require.Error(t, err)

	require.NoError(t, setCmd.Err())
	require.Error(t, getWrongType.Err())
	require.Contains(t, getWrongType.Err().Error(), "WRONGTYPE")
	require.NoError(t, incrAfter.Err(), "a command queued after a failing one must still run")
}

func TestServerRPopLPushAtomicity(t *testing.T) {
	ts := newTestServer(t, "")
	defer ts.Close()
	ctx := context.Background()

	require.NoError(t, ts.client.RPush(ctx, "src", "a", "b", "c").Err())

	val, err := ts.client.RPopLPush(ctx, "src", "dst").Result()
	require.NoError(t, err)
	require.Equal(t, "c", val)

	srcValues, err := ts.client.LRange(ctx, "src", 0, -1).Result()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, srcValues)

	dstValues, err := ts.client.LRange(ctx, "dst", 0, -1).Result()
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, dstValues)
}

func TestServerBRPopLPushWakesOnPush(t *testing.T) {
	ts := newTestServer(t, "")
	defer ts.Close()
	ctx := context.Background()

	done := make(chan string, 1)
	go func() {
		val, err := ts.client.BRPopLPush(ctx, "bsrc", "bdst", 2*time.Second).Result()
		if err != nil {
			done <- ""
			return
		}
		done <- val
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, ts.client.RPush(ctx, "bsrc", "woken").Err())

	select {
	case val := <-done:
		require.Equal(t, "woken", val)
	case <-time.After(3 * time.Second):
		t.Fatal("BRPOPLPUSH did not wake after RPUSH")
	}
}

func TestServerAuthGating(t *testing.T) {
	ts := newTestServer(t, "s3cret")
	defer ts.Close()
	ctx := context.Background()

	// ts.client sends AUTH on connect; this client does not, so its first
	// command reaches the server unauthenticated.
	client := redis.NewClient(&redis.Options{Addr: ts.addr})
	defer client.Close()

	err := client.Get(ctx, "anykey").Err()
	require.Error(t, err)
	require.Contains(t, err.Error(), "NOAUTH")

	require.NoError(t, client.Do(ctx, "AUTH", "s3cret").Err())
	require.NoError(t, client.Set(ctx, "anykey", "v", 0).Err())
}

func TestServerPingAndInfoBypassAuthGate(t *testing.T) {
	ts := newTestServer(t, "s3cret")
	defer ts.Close()
	ctx := context.Background()

	// ts.client sends AUTH on connect; this client never authenticates.
	client := redis.NewClient(&redis.Options{Addr: ts.addr})
	defer client.Close()

	pong, err := client.Ping(ctx).Result()
	require.NoError(t, err)
	require.Equal(t, "PONG", pong)

	info, err := client.Do(ctx, "INFO").Result()
	require.NoError(t, err)
	require.NotEmpty(t, info)
}

func TestServerQuitClosesConnection(t *testing.T) {
	ts := newTestServer(t, "")
	defer ts.Close()

	conn, err := net.Dial("tcp", ts.addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("*1\r\n$4\r\nQUIT\r\n"))
	require.NoError(t, err)

	reply := make([]byte, len("+OK\r\n"))
	_, err = io.ReadFull(conn, reply)
	require.NoError(t, err)
	require.Equal(t, "+OK\r\n", string(reply))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(make([]byte, 1))
	require.Equal(t, 0, n)
	require.Error(t, err, "connection must be closed after QUIT's reply")
}

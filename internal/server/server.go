// Package server implements the TCP Dispatcher: it accepts RESP
// connections, owns per-connection auth and transaction state, and routes
// parsed commands to the Command Engine.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mnorrsken/redisqlite/internal/handler"
	"github.com/mnorrsken/redisqlite/internal/metrics"
	"github.com/mnorrsken/redisqlite/internal/resp"
)

// Server accepts RESP connections and dispatches their commands to a
// *handler.Handler.
type Server struct {
	addr     string
	handler  *handler.Handler
	log      *zap.Logger
	listener net.Listener
	quit     chan struct{}
	wg       sync.WaitGroup
}

// New creates a server bound to addr, dispatching to h. log may be nil, in
// which case a no-op logger is used.
func New(addr string, h *handler.Handler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		addr:    addr,
		handler: h,
		log:     log,
		quit:    make(chan struct{}),
	}
}

// Start opens the listening socket and begins accepting connections in the
// background.
func (s *Server) Start(ctx context.Context) error {
	var err error
	s.listener, err = net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.log.Info("server listening", zap.String("addr", s.addr))
	go s.acceptLoop(ctx)
	return nil
}

// Stop closes the listener and waits for every in-flight connection
// goroutine to finish.
func (s *Server) Stop() {
	close(s.quit)
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				s.log.Warn("accept error", zap.Error(err))
				continue
			}
		}

		metrics.ConnectionsTotal.Inc()
		metrics.IncActiveConnections()
		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	defer metrics.DecActiveConnections()

	reader := resp.NewReader(conn)
	writer := resp.NewWriter(conn)
	client := NewClientState(conn)

	if !s.handler.RequiresAuth() {
		client.SetAuthenticated()
	}

	for {
		select {
		case <-s.quit:
			return
		case <-ctx.Done():
			return
		default:
		}

		cmd, err := reader.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("read error", zap.String("addr", client.Addr), zap.Error(err))
			}
			return
		}

		response := s.route(ctx, cmd, client)

		if response.Type == resp.Error {
			s.log.Debug("command error", zap.String("addr", client.Addr), zap.String("error", response.Str))
		}

		if err := writer.WriteValue(response); err != nil {
			s.log.Debug("write error", zap.String("addr", client.Addr), zap.Error(err))
			return
		}
		if err := writer.Flush(); err != nil {
			s.log.Debug("flush error", zap.String("addr", client.Addr), zap.Error(err))
			return
		}

		if isQuit(cmd) {
			return
		}
	}
}

// isQuit reports whether cmd is a QUIT command; the caller closes the
// connection right after flushing QUIT's "OK" reply.
func isQuit(cmd resp.Value) bool {
	return cmd.Type == resp.Array && len(cmd.Array) > 0 && strings.EqualFold(cmd.Array[0].Bulk, "QUIT")
}

// route applies the Auth Gate and Transaction Controller before handing a
// command to the Command Engine.
func (s *Server) route(ctx context.Context, cmd resp.Value, client *ClientState) resp.Value {
	if cmd.Type != resp.Array || len(cmd.Array) == 0 {
		return resp.Err("invalid command format")
	}
	cmdName := strings.ToUpper(cmd.Array[0].Bulk)
	args := cmd.Array[1:]

	if cmdName == "AUTH" {
		response := s.handler.Handle(ctx, cmdName, args)
		if response.Type == resp.SimpleString {
			client.SetAuthenticated()
		}
		return response
	}

	// PING and INFO carry no data-plane risk and must stay reachable as
	// connection-liveness checks even before AUTH, matching real Redis.
	if cmdName == "PING" || cmdName == "INFO" {
		return s.handler.Handle(ctx, cmdName, args)
	}

	if s.handler.RequiresAuth() && !client.Authenticated() {
		return resp.ErrNoAuth()
	}

	switch cmdName {
	case "MULTI":
		return s.handler.HandleMulti(client)
	case "EXEC":
		return s.handler.HandleExec(ctx, client)
	case "DISCARD":
		return s.handler.HandleDiscard(client)
	}

	if client.InTransaction() {
		client.QueueCommand(cmd)
		return resp.Value{Type: resp.SimpleString, Str: "QUEUED"}
	}

	return s.handler.Handle(ctx, cmdName, args)
}

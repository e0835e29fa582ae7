package server

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mnorrsken/redisqlite/internal/resp"
)

var clientIDCounter uint64

// ClientState holds per-connection state owned exclusively by that
// connection's goroutine: the Auth Gate flag and the Transaction
// Controller's buffering mode and command queue.
type ClientState struct {
	ID        uint64
	Addr      string
	CreatedAt time.Time

	mu             sync.Mutex
	authenticated  bool
	inTransaction  bool
	queuedCommands []resp.Value
}

// NewClientState creates per-connection state for conn.
func NewClientState(conn net.Conn) *ClientState {
	return &ClientState{
		ID:        atomic.AddUint64(&clientIDCounter, 1),
		Addr:      conn.RemoteAddr().String(),
		CreatedAt: time.Now(),
	}
}

// Authenticated reports whether this connection has passed AUTH.
func (c *ClientState) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// SetAuthenticated marks this connection as having passed AUTH.
func (c *ClientState) SetAuthenticated() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authenticated = true
}

// InTransaction reports whether MULTI has been called without a matching
// EXEC or DISCARD yet.
func (c *ClientState) InTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inTransaction
}

// StartTransaction transitions to BUFFERING mode.
func (c *ClientState) StartTransaction() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inTransaction {
		return errors.New("MULTI calls can not be nested")
	}
	c.inTransaction = true
	c.queuedCommands = nil
	return nil
}

// QueueCommand appends cmd to the buffer.
func (c *ClientState) QueueCommand(cmd resp.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queuedCommands = append(c.queuedCommands, cmd)
}

// GetQueuedCommands returns the buffered commands and transitions back to
// NORMAL mode.
func (c *ClientState) GetQueuedCommands() []resp.Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmds := c.queuedCommands
	c.queuedCommands = nil
	c.inTransaction = false
	return cmds
}

// DiscardTransaction drops the buffer and transitions back to NORMAL mode.
func (c *ClientState) DiscardTransaction() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inTransaction {
		return errors.New("DISCARD without MULTI")
	}
	c.inTransaction = false
	c.queuedCommands = nil
	return nil
}

package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
)

var (
	// ErrBackpressure is returned when a client's send queue is full.
	// The hub closes such connections: a reader that cannot keep up
	// must reconnect rather than stall dispatch fan-out.
	ErrBackpressure = errors.New("send queue overflow")

	ErrConnClosed = errors.New("connection closed")
)

// sendQueueSize bounds the per-connection outbound buffer.
const sendQueueSize = 32

// Transport is the write side of a websocket connection. Satisfied by
// *websocket.Conn; tests substitute an in-memory transport.
type Transport interface {
	WriteJSON(v any) error
	Close() error
}

// Conn is one registered client channel. All writes go through a
// bounded queue drained by a single writer goroutine, so concurrent
// senders never interleave frames and a slow client never blocks
// the caller.
type Conn struct {
	transport Transport
	entityID  uuid.UUID

	queue   chan any
	doneCtx context.Context
	cancel  context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

func NewConn(ctx context.Context, entityID uuid.UUID, transport Transport) *Conn {
	ctx, cancel := context.WithCancel(ctx)

	c := &Conn{
		transport: transport,
		entityID:  entityID,
		queue:     make(chan any, sendQueueSize),
		doneCtx:   ctx,
		cancel:    cancel,
	}

	go c.writeLoop()

	return c
}

func (c *Conn) EntityID() uuid.UUID { return c.entityID }

// Done is closed when the connection is no longer usable.
func (c *Conn) Done() <-chan struct{} { return c.doneCtx.Done() }

// writeLoop — единственный писатель в transport.
func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.doneCtx.Done():
			return
		case msg := <-c.queue:
			if err := c.transport.WriteJSON(msg); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

// Send enqueues a message for the writer goroutine. It never blocks:
// a full queue closes the connection and returns ErrBackpressure.
func (c *Conn) Send(msg any) error {
	select {
	case <-c.doneCtx.Done():
		return ErrConnClosed
	default:
	}

	select {
	case c.queue <- msg:
		return nil
	default:
		_ = c.Close()
		return fmt.Errorf("entity %s: %w", c.entityID, ErrBackpressure)
	}
}

// Close stops the writer and closes the transport. Safe to call from
// multiple goroutines; only the first call does the work.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.closeErr = c.transport.Close()
	})
	return c.closeErr
}

// drainTimeout gives the writer a moment to flush queued messages
// before a graceful close.
const drainTimeout = 2 * time.Second

// CloseGraceful waits briefly for the queue to drain, then closes.
func (c *Conn) CloseGraceful() error {
	deadline := time.NewTimer(drainTimeout)
	defer deadline.Stop()

	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-c.doneCtx.Done():
			return c.Close()
		case <-deadline.C:
			return c.Close()
		case <-tick.C:
			if len(c.queue) == 0 {
				return c.Close()
			}
		}
	}
}

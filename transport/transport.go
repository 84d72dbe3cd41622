// Package transport implements the framed TCP connection (spec.md §4.1,
// L0): one net.Conn plus a chosen codec, exposing Send/Recv of whole frames.
package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/meniwap/telecraftor-core/bin"
	"github.com/meniwap/telecraftor-core/transport/codec"
)

// ErrClosed is returned by Send/Recv once the connection has been closed,
// so upper layers can distinguish "connection gone" from a protocol error
// (spec.md §4.1, "Connection close is reported as a distinct error").
var ErrClosed = errors.New("transport: connection closed")

// Conn is a framed connection: it knows how to carve whole frames out of a
// byte stream but does not interpret their payload.
type Conn interface {
	Send(ctx context.Context, b *bin.Buffer) error
	Recv(ctx context.Context, b *bin.Buffer) error
	Close() error
}

type connection struct {
	conn  net.Conn
	codec codec.Codec

	headerOnce sync.Once
	headerErr  error

	closeOnce sync.Once
	closed    chan struct{}
}

// New wraps conn with the given codec, sending the codec's header on first
// use.
func New(conn net.Conn, c codec.Codec) Conn {
	return &connection{
		conn:   conn,
		codec:  c,
		closed: make(chan struct{}),
	}
}

func (c *connection) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *connection) writeHeader() error {
	c.headerOnce.Do(func() {
		c.headerErr = c.codec.WriteHeader(c.conn)
	})
	return c.headerErr
}

// Send writes one frame, applying ctx's deadline to the underlying socket.
func (c *connection) Send(ctx context.Context, b *bin.Buffer) error {
	if c.isClosed() {
		return ErrClosed
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(dl)
	} else {
		_ = c.conn.SetWriteDeadline(time.Time{})
	}
	if err := c.writeHeader(); err != nil {
		return errors.Wrap(err, "write header")
	}
	if err := c.codec.Write(c.conn, b.Buf); err != nil {
		if c.isClosed() {
			return ErrClosed
		}
		return errors.Wrap(err, "send")
	}
	return nil
}

// Recv reads one frame into b, applying ctx's deadline to the underlying
// socket. Quick-ack frames (spec.md §4.1) carry no payload and are skipped
// transparently; Recv only returns once it has a real frame, an error, or
// ctx is done.
func (c *connection) Recv(ctx context.Context, b *bin.Buffer) error {
	for {
		if c.isClosed() {
			return ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if dl, ok := ctx.Deadline(); ok {
			_ = c.conn.SetReadDeadline(dl)
		} else {
			_ = c.conn.SetReadDeadline(time.Time{})
		}
		data, err := c.codec.Read(c.conn)
		if err != nil {
			if errors.Is(err, codec.ErrQuickAck) {
				continue
			}
			if c.isClosed() {
				return ErrClosed
			}
			return errors.Wrap(err, "recv")
		}
		b.ResetTo(data)
		return nil
	}
}

// Close closes the underlying socket; subsequent Send/Recv return ErrClosed.
func (c *connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/static/errs"
	"github.com/vishnukl-alation/hive/internal/tcp/defs"
)

// ErrClosed is reported by Err after a local Close
var ErrClosed = errors.New("channel closed")

const receiveBuffer = 64

// Channel is a bidirectional, ordered message transport between a
// coordinator and an executor
type Channel interface {
	primary.MessageSender
	// Receive yields incoming messages in order and is closed on disconnect
	Receive() <-chan defs.Message
	// Done is closed once the channel is unusable
	Done() <-chan struct{}
	// Err returns the reason the channel terminated, nil while open
	Err() error
	Close() error
}

var _ Channel = (*connChannel)(nil)

type connChannel struct {
	conn   net.Conn
	logger primary.Logger

	writeMu sync.Mutex
	in      chan defs.Message
	done    chan struct{}

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// NewConnChannel frames messages over conn and starts the reader goroutine
func NewConnChannel(conn net.Conn, logger primary.Logger) Channel {
	c := &connChannel{
		conn:   conn,
		logger: logger,
		in:     make(chan defs.Message, receiveBuffer),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Dial connects to an executor
func Dial(ctx context.Context, address string, logger primary.Logger) (Channel, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial executor %s: %w", address, err)
	}
	logger.Info("Connected to executor", "address", address)
	return NewConnChannel(conn, logger), nil
}

// Pipe returns two connected in-process channels. Closing either end
// disconnects both.
func Pipe(logger primary.Logger) (Channel, Channel) {
	a, b := net.Pipe()
	return NewConnChannel(a, logger), NewConnChannel(b, logger)
}

func (c *connChannel) Send(msgType byte, payload []byte) error {
	select {
	case <-c.done:
		return c.terminalErr()
	default:
	}

	// an oversized message is refused before anything reaches the wire, so
	// the stream stays in sync and the channel remains usable
	if len(payload) > defs.MaxPayloadSize {
		return &errs.CodecError{
			PayloadType: defs.MessageName(msgType),
			Err:         fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload)),
		}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := WriteFrame(c.conn, msgType, payload); err != nil {
		c.shutdown(err)
		return err
	}
	return nil
}

func (c *connChannel) Receive() <-chan defs.Message {
	return c.in
}

func (c *connChannel) Done() <-chan struct{} {
	return c.done
}

func (c *connChannel) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *connChannel) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

func (c *connChannel) terminalErr() error {
	if err := c.Err(); err != nil {
		return err
	}
	return ErrClosed
}

func (c *connChannel) shutdown(reason error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = reason
		c.errMu.Unlock()

		close(c.done)
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("Failed to close connection", "error", err)
		}
	})
}

func (c *connChannel) readLoop() {
	defer close(c.in)

	for {
		msg, err := ReadFrame(c.conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
				c.shutdown(io.EOF)
			} else {
				c.logger.Error("Failed to read message", "error", err)
				c.shutdown(err)
			}
			return
		}

		select {
		case c.in <- msg:
		case <-c.done:
			return
		}
	}
}

// SendJSON marshals v and sends it as one message
func SendJSON(s primary.MessageSender, msgType byte, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return &errs.CodecError{PayloadType: defs.MessageName(msgType), Err: err}
	}
	return s.Send(msgType, payload)
}

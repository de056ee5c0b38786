package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mikey-austin/tandem/internal/core"
	"github.com/mikey-austin/tandem/internal/ports"
	"github.com/mikey-austin/tandem/pkg/tandem"
	"go.uber.org/zap"
)

// Conn is one established link to the coordinator.
type Conn interface {
	// Receive blocks for the next envelope. An error ends the link.
	Receive(ctx context.Context) (tandem.Envelope, error)
	Send(env tandem.Envelope) error
	Close() error
}

// Dialer opens links to the coordinator.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Channel is a reconnecting ports.Channel over any Dialer. Messages sent
// while the link is down are dropped, never queued.
type Channel struct {
	log      *zap.Logger
	dialer   Dialer
	interval time.Duration

	mu        sync.Mutex
	state     ports.ChannelState
	conn      Conn
	closed    bool
	cancel    context.CancelFunc
	onMessage func(tandem.Envelope)
	onState   func(ports.ChannelState)
}

// NewChannel creates a channel that redials every interval after a close.
func NewChannel(log *zap.Logger, dialer Dialer, interval time.Duration) *Channel {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Channel{log: log, dialer: dialer, interval: interval, state: ports.StateClosed}
}

// OnMessage registers the inbound handler. Call before Run.
func (c *Channel) OnMessage(fn func(tandem.Envelope)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

// OnStateChange registers the state observer. Call before Run.
func (c *Channel) OnStateChange(fn func(ports.ChannelState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// State returns the current state.
func (c *Channel) State() ports.ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run connects and keeps reconnecting until ctx ends or Close is called.
func (c *Channel) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.cancel = cancel
	c.mu.Unlock()

	for {
		c.setState(ports.StateConnecting)
		conn, err := c.dialer.Dial(ctx)
		if err == nil {
			c.attach(conn)
			err = c.readLoop(ctx, conn)
			c.detach(conn)
		}
		c.setState(ports.StateClosed)

		if ctx.Err() != nil || c.isClosed() {
			return nil
		}
		c.log.Warn("channel closed; reconnecting", zap.Duration("interval", c.interval), zap.Error(err))

		wait := time.NewTimer(c.interval)
		select {
		case <-ctx.Done():
			wait.Stop()
			return nil
		case <-wait.C:
		}
	}
}

// Send delivers a message if the link is open. It never blocks on a
// reconnect and never retries.
func (c *Channel) Send(msgType string, body any) error {
	env, err := tandem.NewEnvelope(msgType, body)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	open := c.state == ports.StateOpen
	c.mu.Unlock()
	if !open || conn == nil {
		c.log.Warn("dropping message while offline", zap.String("type", msgType))
		return core.ErrNotConnected
	}
	if err := conn.Send(env); err != nil {
		c.log.Warn("send failed; closing link", zap.String("type", msgType), zap.Error(err))
		_ = conn.Close()
		return errors.Join(core.ErrNotConnected, err)
	}
	return nil
}

// Close tears the channel down permanently.
func (c *Channel) Close() error {
	c.mu.Lock()
	c.closed = true
	cancel := c.cancel
	conn := c.conn
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Channel) readLoop(ctx context.Context, conn Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		env, err := conn.Receive(ctx)
		if err != nil {
			return err
		}
		c.mu.Lock()
		handler := c.onMessage
		c.mu.Unlock()
		if handler != nil {
			handler(env)
		}
	}
}

func (c *Channel) attach(conn Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(ports.StateOpen)
}

func (c *Channel) detach(conn Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}

func (c *Channel) setState(state ports.ChannelState) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

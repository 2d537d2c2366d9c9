package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/parcel/protocol"
)

var (
	ErrNotConnected = errors.New("Client is not connected")
	ErrNoHandshake  = errors.New("Client must complete the handshake before sending frames")
)

// Conn is the client end of a parcel connection. Sends are serialised so a
// Conn may be shared between goroutines.
type Conn struct {
	mu        sync.Mutex
	conn      net.Conn
	handshook bool

	log *zap.Logger
}

func New(log *zap.Logger) *Conn {
	if log == nil {
		log = zap.NewNop()
	}

	return &Conn{log: log}
}

func (c *Conn) Connect(ctx context.Context, addr string) error {
	var d net.Dialer

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: failed to connect to %s (%v)", protocol.ErrTransport, addr, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.handshook = false
	c.mu.Unlock()

	c.log.Info("Connected", zap.String("addr", addr))
	return nil
}

// Handshake runs the client side of the handshake. A rejected handshake
// closes the connection.
func (c *Conn) Handshake() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	if err := protocol.ClientHandshake(c.conn); err != nil {
		c.log.Error("Handshake failed, disconnecting", zap.Error(err))
		err = multierr.Append(err, c.conn.Close())
		c.conn = nil
		return err
	}

	c.handshook = true
	c.log.Info("Handshake OK")

	return nil
}

func (c *Conn) SendMessage(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ready(); err != nil {
		return err
	}

	if err := protocol.WriteMessage(c.conn, text); err != nil {
		return fmt.Errorf("Failed to send message: %w", err)
	}

	return nil
}

// SendPacket writes p to the server. p is consumed even if the write fails.
func (c *Conn) SendPacket(p *protocol.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ready(); err != nil {
		return err
	}

	if _, err := p.WriteTo(c.conn); err != nil {
		return fmt.Errorf("Failed to send packet: %w", err)
	}

	c.log.Debug("Sent packet", zap.Int("fields", p.Len()), zap.Int("size", p.Size()))
	return nil
}

func (c *Conn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	c.handshook = false

	return err
}

func (c *Conn) ready() error {
	if c.conn == nil {
		return ErrNotConnected
	}

	if !c.handshook {
		return ErrNoHandshake
	}

	return nil
}

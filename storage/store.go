package storage

import (
	"context"
	"errors"
)

var (
	ErrUnknownConn   = errors.New("No journal entries for that connection")
	ErrClosed        = errors.New("Journal is closed")
	ErrInvalidBackup = errors.New("Journal backup is not valid JSON")
)

// Journal keeps what each connection sent, in the order it arrived. It
// satisfies transport.Handler so the dispatcher can feed it directly.
type Journal interface {
	HandleMessage(ctx context.Context, connID string, text string) error
	HandlePacket(ctx context.Context, connID string, fields [][]byte) error

	// Get returns the JSON array of entries for one connection.
	Get(ctx context.Context, connID string) ([]byte, error)
	Conns() []string

	Restore(values []byte) error
	Backup() ([]byte, error)
	Reset()

	Close() error
}

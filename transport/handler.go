package transport

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Handler receives decoded frames from a connection. It is called from the
// connection's own goroutine, implementations shared between connections must
// be safe for concurrent use.
type Handler interface {
	HandleMessage(ctx context.Context, connID string, text string) error
	HandlePacket(ctx context.Context, connID string, fields [][]byte) error
}

// LogHandler logs everything it receives.
type LogHandler struct {
	log *zap.Logger
}

func NewLogHandler(log *zap.Logger) *LogHandler {
	return &LogHandler{log: log}
}

func (l *LogHandler) HandleMessage(ctx context.Context, connID string, text string) error {
	l.log.Info("Received message",
		zap.String("conn", connID),
		zap.String("message", text))

	return nil
}

func (l *LogHandler) HandlePacket(ctx context.Context, connID string, fields [][]byte) error {
	l.log.Info("Received packet",
		zap.String("conn", connID),
		zap.Int("fields", len(fields)))

	for i, field := range fields {
		l.log.Info("Packet field",
			zap.String("conn", connID),
			zap.Int("index", i),
			zap.ByteString("value", field))
	}

	return nil
}

type handlers []Handler

// Handlers fans every frame out to each of hs in turn. All of them are called
// even if one fails.
func Handlers(hs ...Handler) Handler {
	return handlers(hs)
}

func (h handlers) HandleMessage(ctx context.Context, connID string, text string) (err error) {
	for _, handler := range h {
		err = multierr.Append(err, handler.HandleMessage(ctx, connID, text))
	}

	return err
}

func (h handlers) HandlePacket(ctx context.Context, connID string, fields [][]byte) (err error) {
	for _, handler := range h {
		err = multierr.Append(err, handler.HandlePacket(ctx, connID, fields))
	}

	return err
}

var _ Handler = (*LogHandler)(nil)
var _ Handler = handlers(nil)

package transport

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/luma/parcel/internal/metrics"
	"github.com/luma/parcel/protocol"
)

type DispatcherOptions struct {
	Handler    Handler
	Limits     protocol.Limits
	FrameRate  float64
	FrameBurst int
	Log        *zap.Logger
}

// Dispatcher runs the receive loop for a single connection. It is not safe to
// share one between connections.
type Dispatcher struct {
	handler Handler
	limits  protocol.Limits
	limiter *rate.Limiter
	log     *zap.Logger
}

func NewDispatcher(options DispatcherOptions) *Dispatcher {
	d := &Dispatcher{
		handler: options.Handler,
		limits:  options.Limits,
		log:     options.Log,
	}

	if d.log == nil {
		d.log = zap.NewNop()
	}

	if d.handler == nil {
		d.handler = NewLogHandler(d.log)
	}

	if options.FrameRate > 0 {
		burst := options.FrameBurst
		if burst < 1 {
			burst = 1
		}

		d.limiter = rate.NewLimiter(rate.Limit(options.FrameRate), burst)
	}

	return d
}

// Run reads and dispatches frames from r until the peer disconnects, the
// stream breaks, or ctx is done.
//
// A peer that disconnects between frames ends the loop with
// protocol.ErrPeerClosed. Unknown opcodes, malformed packets and handler
// errors are logged and the loop carries on with the next frame.
func (d *Dispatcher) Run(ctx context.Context, connID string, r io.Reader) error {
	log := d.log.With(zap.String("conn", connID))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		default:
		}

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		req, err := protocol.ReadRequest(r, d.limits)
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedPacket) {
				// The frame was read in full, we are still on a frame boundary
				metrics.RecordFrame(protocol.OpPacket)
				metrics.RecordMalformedPacket()

				log.Error("Received malformed packet, skipping it", zap.Error(err))
				continue
			}

			return err
		}

		switch c := req.(type) {
		case *protocol.DisconnectRequest:
			return protocol.ErrPeerClosed

		case *protocol.MessageRequest:
			metrics.RecordFrame(protocol.OpMessage)

			if err := d.handler.HandleMessage(ctx, connID, c.Text); err != nil {
				log.Warn("Failed to handle message", zap.Error(err))
			}

		case *protocol.PacketRequest:
			metrics.RecordFrame(protocol.OpPacket)

			if err := d.handler.HandlePacket(ctx, connID, c.Fields); err != nil {
				log.Warn("Failed to handle packet",
					zap.Int("fields", len(c.Fields)),
					zap.Error(err))
			}

		case *protocol.UnknownRequest:
			metrics.RecordFrame(c.Op)

			log.Warn("Unknown opcode, ignoring frame",
				zap.Int32("opcode", int32(c.Op)),
				zap.Int("payloadSize", len(c.Payload)))
		}
	}
}

package transport

import (
	"net"

	"go.uber.org/zap"

	"github.com/luma/parcel/protocol"
)

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on, 0 picks a free port
	Port int

	// Reuseport controls setting SO_REUSEPORT. Without it only a single
	// listener can be opened.
	Reuseport bool

	// NumListeners defaults to one per CPU when Reuseport is set
	NumListeners int

	// SingleClient closes Done() once the first client connection has ended
	SingleClient bool

	Limits protocol.Limits

	// FrameRate caps the frames per second read from each connection, 0 means
	// no cap
	FrameRate  float64
	FrameBurst int

	// Handler receives every MESSAGE and PACKET
	Handler Handler

	// Listen replaces the default listener constructor, used by tests
	Listen func(network, addr string) (net.Listener, error)

	Log *zap.Logger
}

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/parcel/internal/metrics"
	"github.com/luma/parcel/protocol"
)

type TCP struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	addr      string
	reuseport bool

	numListeners int
	listeners    []*TCPListener

	options Options
	connSeq uint64

	mu       sync.Mutex
	doneChan chan struct{}
	err      error

	log *zap.Logger
}

func NewTCP(options Options) *TCP {
	numListeners := options.NumListeners

	if numListeners < 1 {
		numListeners = runtime.NumCPU()
	}

	if !options.Reuseport {
		// Only one socket can be bound to the port without SO_REUSEPORT
		numListeners = 1
	}

	if options.Log == nil {
		options.Log = zap.NewNop()
	}

	if options.Handler == nil {
		options.Handler = NewLogHandler(options.Log.Named("handler"))
	}

	return &TCP{
		addr:         net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		reuseport:    options.Reuseport,
		numListeners: numListeners,
		listeners:    make([]*TCPListener, 0, numListeners),
		options:      options,
		doneChan:     make(chan struct{}),
		log:          options.Log,
	}
}

// Start binds every listener and then accepts connections in the background.
// It only returns once the server is reachable.
func (w *TCP) Start(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	w.cancel = cancel

	w.log.Info("Starting tcp listeners", zap.Int("count", w.numListeners))

	addr := w.addr
	for i := 0; i < w.numListeners; i++ {
		listener, err := w.listen(ctx, addr)
		if err != nil {
			cancel()
			for _, l := range w.listeners {
				l.Close()
			}
			w.listeners = w.listeners[:0]

			return fmt.Errorf("%w: failed to listen on %s (%v)", protocol.ErrTransport, addr, err)
		}

		// With port 0 every listener after the first must share its port
		addr = listener.Addr().String()
		w.startListener(listener)
	}

	return nil
}

func (w *TCP) listen(ctx context.Context, addr string) (*TCPListener, error) {
	var (
		l   net.Listener
		err error
	)

	switch {
	case w.options.Listen != nil:
		l, err = w.options.Listen("tcp", addr)
	case w.reuseport:
		l, err = reuseport.Listen("tcp", addr)
	default:
		l, err = net.Listen("tcp", addr)
	}

	if err != nil {
		return nil, err
	}

	return NewTCPListener(
		ctx,
		l,
		w,
		w.log.Named("listener").With(zap.Int("listener", len(w.listeners))),
	), nil
}

func (w *TCP) startListener(listener *TCPListener) {
	w.listeners = append(w.listeners, listener)
	w.stopWaiter.Add(1)

	go func() {
		defer w.stopWaiter.Done()

		if err := listener.Serve(); err != nil {
			// A listener that can't accept is fatal, the caller sees it
			// through Done() and Err()
			w.log.Error("Listener failed", zap.Error(err))
			w.fail(err)
		}
	}()
}

// Err is the error that stopped the server, if any. It is only meaningful once
// Done() is closed.
func (w *TCP) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.err
}

func (w *TCP) fail(err error) {
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.mu.Unlock()

	w.closeDoneChan()
}

// Addr is the address the server is bound to, nil before Start.
func (w *TCP) Addr() net.Addr {
	if len(w.listeners) == 0 {
		return nil
	}

	return w.listeners[0].Addr()
}

// Done is closed once the server has stopped, once a listener has failed, or
// in SingleClient mode once the first client has gone.
func (w *TCP) Done() <-chan struct{} {
	return w.doneChan
}

// Close immediately closes all listeners and active connections.
//
// For a graceful shutdown, use Shutdown()
func (w *TCP) Close() (err error) {
	w.log.Info("Stopping TCP server")

	if w.cancel != nil {
		w.cancel()
	}

	for _, listener := range w.listeners {
		err = multierr.Append(err, listener.Close())
	}

	w.stopWaiter.Wait()

	for _, listener := range w.listeners {
		listener.Wait()
	}

	w.log.Info("TCP server stopped")
	w.closeDoneChan()

	return err
}

// Shutdown stops accepting new connections and waits for the active ones to
// end on their own. If ctx is done first the remaining connections are closed.
func (w *TCP) Shutdown(ctx context.Context) error {
	for _, listener := range w.listeners {
		if err := listener.StopAccepting(); err != nil {
			w.log.Warn("TCP Listener did not close cleanly", zap.Error(err))
		}
	}

	drained := make(chan struct{})
	go func() {
		// No more connections can be added once the accept loops are gone
		w.stopWaiter.Wait()

		for _, listener := range w.listeners {
			listener.Wait()
		}
		close(drained)
	}()

	select {
	case <-drained:
		return w.Close()

	case <-ctx.Done():
		return multierr.Append(ctx.Err(), w.Close())
	}
}

func (w *TCP) nextConnID() string {
	return "conn-" + strconv.FormatUint(atomic.AddUint64(&w.connSeq, 1), 10)
}

func (w *TCP) connDone() {
	if w.options.SingleClient {
		w.closeDoneChan()
	}
}

func (w *TCP) closeDoneChan() {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.doneChan:
		// Already closed.
	default:
		close(w.doneChan)
	}
}

type TCPListener struct {
	ctx context.Context

	listener net.Listener
	server   *TCP
	log      *zap.Logger

	mu          sync.Mutex
	activeConns map[*TCPConn]struct{}
	connWaiter  sync.WaitGroup
}

func NewTCPListener(
	ctx context.Context,
	listener net.Listener,
	server *TCP,
	log *zap.Logger,
) *TCPListener {
	return &TCPListener{
		ctx:         ctx,
		listener:    listener,
		server:      server,
		activeConns: make(map[*TCPConn]struct{}),
		log:         log,
	}
}

func (t *TCPListener) Addr() net.Addr {
	return t.listener.Addr()
}

// Serve accepts connections until the listener is closed. Every connection is
// served on its own goroutine.
func (t *TCPListener) Serve() error {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				// The listener was closed while we were waiting for new
				// connections, that's fine.
				t.log.Info("Stopped accepting new connections")
				return nil
			}

			return fmt.Errorf("%w: accept (%v)", protocol.ErrTransport, err)
		}

		tcpConn := NewTCPConn(t.ctx, t.server.nextConnID(), conn, t.server.options, t.log.Named("conn"))
		t.addConn(tcpConn)
		t.connWaiter.Add(1)

		go func() {
			defer t.connWaiter.Done()
			defer t.server.connDone()
			defer t.removeConn(tcpConn)

			// Serve logs its own outcome
			_ = tcpConn.Serve()
		}()
	}
}

// StopAccepting closes the listening socket, active connections are left alone.
func (t *TCPListener) StopAccepting() error {
	if err := t.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}

// Close stops accepting and closes every active connection.
func (t *TCPListener) Close() error {
	err := t.StopAccepting()

	t.mu.Lock()
	defer t.mu.Unlock()

	for conn := range t.activeConns {
		err = multierr.Append(err, conn.Close())
	}

	return err
}

// Wait blocks until every connection accepted so far has finished.
func (t *TCPListener) Wait() {
	t.connWaiter.Wait()
}

func (t *TCPListener) addConn(conn *TCPConn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.activeConns[conn] = struct{}{}
}

func (t *TCPListener) removeConn(conn *TCPConn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.activeConns, conn)
}

// TCPConn serves a single client: the handshake, then the dispatch loop.
type TCPConn struct {
	ctx    context.Context
	cancel context.CancelFunc

	id         string
	conn       net.Conn
	dispatcher *Dispatcher
	closeOnce  sync.Once

	log *zap.Logger
}

func NewTCPConn(
	parentCtx context.Context,
	id string,
	conn net.Conn,
	options Options,
	log *zap.Logger,
) *TCPConn {
	ctx, cancel := context.WithCancel(parentCtx)
	log = log.With(zap.String("conn", id), zap.String("remote", conn.RemoteAddr().String()))

	return &TCPConn{
		ctx:    ctx,
		cancel: cancel,
		id:     id,
		conn:   conn,
		dispatcher: NewDispatcher(DispatcherOptions{
			Handler:    options.Handler,
			Limits:     options.Limits,
			FrameRate:  options.FrameRate,
			FrameBurst: options.FrameBurst,
			Log:        log.Named("dispatcher"),
		}),
		log: log,
	}
}

func (t *TCPConn) ID() string {
	return t.id
}

// Serve blocks until the client goes away, the handshake fails, or the
// server closes the connection. The connection is always closed on return.
func (t *TCPConn) Serve() error {
	defer metrics.ConnectionOpened()()
	defer t.Close()

	// Reads don't watch the context, closing the socket unblocks them
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-t.ctx.Done():
			t.Close()
		case <-stop:
		}
	}()

	t.log.Info("Client connected")

	if err := protocol.ServerHandshake(t.conn); err != nil {
		if errors.Is(err, protocol.ErrHandshakeMismatch) {
			metrics.RecordHandshake(false)
		}

		t.log.Warn("Handshake failed, closing connection", zap.Error(err))
		return err
	}

	metrics.RecordHandshake(true)
	t.log.Info("Handshake OK")

	err := t.dispatcher.Run(t.ctx, t.id, t.conn)

	switch {
	case errors.Is(err, protocol.ErrPeerClosed):
		t.log.Info("Client disconnected")

	case t.ctx.Err() != nil:
		t.log.Info("Connection closed by server")

	default:
		t.log.Warn("Connection ended", zap.Error(err))
	}

	return err
}

func (t *TCPConn) Close() (err error) {
	t.closeOnce.Do(func() {
		t.cancel()

		if cerr := t.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	})

	return err
}

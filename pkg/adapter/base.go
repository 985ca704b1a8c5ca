package adapter

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittosftp/internal/logger"
)

// ConnectionHandler serves a single accepted TCP connection. Serve blocks
// until the peer disconnects or ctx is cancelled.
type ConnectionHandler interface {
	Serve(ctx context.Context)
}

// ConnectionFactory builds a ConnectionHandler for every accepted socket.
type ConnectionFactory interface {
	NewConnection(conn net.Conn) ConnectionHandler
}

// BaseConfig holds the listener settings shared by protocol adapters.
type BaseConfig struct {
	// BindAddress is the IP to bind. "" or "0.0.0.0" binds every interface.
	BindAddress string

	// Port is the TCP port. 0 picks an ephemeral port.
	Port int

	// MaxConnections caps concurrent connections. 0 means unlimited.
	MaxConnections int

	// MaxConnectionsPerIP caps concurrent connections from one client
	// address. Excess sockets are closed before the SSH handshake. 0 means
	// unlimited.
	MaxConnectionsPerIP int

	// ShutdownTimeout bounds how long shutdown waits for sessions to drain.
	ShutdownTimeout time.Duration

	// KeepAlive is the TCP keepalive period. 0 uses the OS default, negative
	// disables keepalives.
	KeepAlive time.Duration

	// MetricsLogInterval enables a periodic connection count log line.
	MetricsLogInterval time.Duration
}

// MetricsRecorder receives connection lifecycle events. metrics.SFTPMetrics
// satisfies it.
type MetricsRecorder interface {
	RecordConnectionAccepted()
	RecordConnectionClosed()
	RecordConnectionForceClosed()
	SetActiveConnections(count int32)
}

// BaseAdapter owns the TCP side of a protocol adapter: the listener, the
// connection limits, connection tracking and graceful shutdown. Protocol
// behavior is injected through ConnectionFactory.
//
// All exported methods are safe for concurrent use and shutdown runs once.
type BaseAdapter struct {
	Config BaseConfig

	// Metrics is optional.
	Metrics MetricsRecorder

	// ShutdownCtx is handed to every ConnectionHandler and cancelled when
	// shutdown starts.
	ShutdownCtx context.Context

	protocolName string
	cancel       context.CancelFunc

	listenerMu sync.RWMutex
	listener   net.Listener
	bound      chan struct{}
	ready      atomic.Bool

	shutdownOnce sync.Once
	shutdown     chan struct{}

	// slots has MaxConnections capacity, or is nil when unlimited.
	slots chan struct{}

	// conns maps remote address to net.Conn for forced closure.
	conns   sync.Map
	active  atomic.Int32
	running sync.WaitGroup

	perIPMu sync.Mutex
	perIP   map[string]int
}

// NewBaseAdapter creates a stopped BaseAdapter. Call ServeWithFactory to start it.
func NewBaseAdapter(config BaseConfig, protocol string) *BaseAdapter {
	ctx, cancel := context.WithCancel(context.Background())

	b := &BaseAdapter{
		Config:       config,
		ShutdownCtx:  ctx,
		protocolName: protocol,
		cancel:       cancel,
		bound:        make(chan struct{}),
		shutdown:     make(chan struct{}),
		perIP:        make(map[string]int),
	}
	if config.MaxConnections > 0 {
		b.slots = make(chan struct{}, config.MaxConnections)
	}

	logger.Debug(protocol+" connection limits",
		"max_connections", config.MaxConnections,
		"max_connections_per_ip", config.MaxConnectionsPerIP)
	return b
}

// ServeWithFactory binds the listener and runs the accept loop until ctx is
// cancelled or Stop is called.
//
// preAccept is an optional hook run right after accept. Returning false
// closes the socket without handing it to factory.
func (b *BaseAdapter) ServeWithFactory(
	ctx context.Context,
	factory ConnectionFactory,
	preAccept func(net.Conn) bool,
) error {
	addr := net.JoinHostPort(b.Config.BindAddress, strconv.Itoa(b.Config.Port))
	lc := net.ListenConfig{KeepAlive: b.Config.KeepAlive}
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create %s listener on %s: %w", b.protocolName, addr, err)
	}

	b.listenerMu.Lock()
	b.listener = listener
	b.listenerMu.Unlock()
	b.ready.Store(true)
	close(b.bound)

	logger.Info(b.protocolName+" server listening", "address", listener.Addr().String())

	go func() {
		select {
		case <-ctx.Done():
			logger.Info(b.protocolName+" shutdown signal received", "error", ctx.Err())
			b.initiateShutdown()
		case <-b.shutdown:
		}
	}()

	if b.Config.MetricsLogInterval > 0 {
		go b.logMetrics(ctx)
	}

	for {
		if !b.acquireSlot() {
			return b.drain()
		}

		conn, err := listener.Accept()
		if err != nil {
			b.releaseSlot()
			if b.shuttingDown() {
				return b.drain()
			}
			logger.Debug("Error accepting "+b.protocolName+" connection", "error", err)
			continue
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}

		host := remoteHost(conn)
		if (preAccept != nil && !preAccept(conn)) || !b.acquireIP(host) {
			_ = conn.Close()
			b.releaseSlot()
			continue
		}

		b.track(conn)
		handler := factory.NewConnection(conn)

		go func() {
			defer b.untrack(conn, host)
			handler.Serve(b.ShutdownCtx)
		}()
	}
}

func (b *BaseAdapter) acquireSlot() bool {
	if b.slots == nil {
		return true
	}
	select {
	case b.slots <- struct{}{}:
		return true
	case <-b.shutdown:
		return false
	}
}

func (b *BaseAdapter) releaseSlot() {
	if b.slots != nil {
		<-b.slots
	}
}

func (b *BaseAdapter) acquireIP(host string) bool {
	limit := b.Config.MaxConnectionsPerIP
	if limit <= 0 {
		return true
	}

	b.perIPMu.Lock()
	defer b.perIPMu.Unlock()
	if b.perIP[host] >= limit {
		logger.Warn(b.protocolName+" per-IP connection limit reached",
			logger.KeyClientIP, host, "limit", limit)
		return false
	}
	b.perIP[host]++
	return true
}

func (b *BaseAdapter) releaseIP(host string) {
	if b.Config.MaxConnectionsPerIP <= 0 {
		return
	}

	b.perIPMu.Lock()
	defer b.perIPMu.Unlock()
	if b.perIP[host] <= 1 {
		delete(b.perIP, host)
		return
	}
	b.perIP[host]--
}

func (b *BaseAdapter) track(conn net.Conn) {
	b.running.Add(1)
	current := b.active.Add(1)
	b.conns.Store(conn.RemoteAddr().String(), conn)

	if b.Metrics != nil {
		b.Metrics.RecordConnectionAccepted()
		b.Metrics.SetActiveConnections(current)
	}
	logger.Debug(b.protocolName+" connection accepted",
		"address", conn.RemoteAddr().String(), "active", current)
}

func (b *BaseAdapter) untrack(conn net.Conn, host string) {
	addr := conn.RemoteAddr().String()
	b.conns.Delete(addr)
	remaining := b.active.Add(-1)
	b.releaseIP(host)
	b.releaseSlot()
	b.running.Done()

	if b.Metrics != nil {
		b.Metrics.RecordConnectionClosed()
		b.Metrics.SetActiveConnections(remaining)
	}
	logger.Debug(b.protocolName+" connection closed", "address", addr, "active", remaining)
}

func remoteHost(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func (b *BaseAdapter) shuttingDown() bool {
	select {
	case <-b.shutdown:
		return true
	default:
		return false
	}
}

// initiateShutdown stops accepting, wakes goroutines parked in Read and
// cancels ShutdownCtx. Safe to call repeatedly.
func (b *BaseAdapter) initiateShutdown() {
	b.shutdownOnce.Do(func() {
		logger.Debug(b.protocolName + " shutdown initiated")

		b.ready.Store(false)
		close(b.shutdown)

		b.listenerMu.Lock()
		if b.listener != nil {
			_ = b.listener.Close()
		}
		b.listenerMu.Unlock()

		deadline := time.Now().Add(100 * time.Millisecond)
		b.conns.Range(func(_, value any) bool {
			_ = value.(net.Conn).SetReadDeadline(deadline)
			return true
		})

		b.cancel()
	})
}

// drained is closed once every connection goroutine has exited.
func (b *BaseAdapter) drained() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		b.running.Wait()
		close(done)
	}()
	return done
}

// drain waits up to ShutdownTimeout for sessions, then force-closes the rest.
func (b *BaseAdapter) drain() error {
	logger.Info(b.protocolName+" graceful shutdown: waiting for active connections",
		"active", b.active.Load(), "timeout", b.Config.ShutdownTimeout)

	select {
	case <-b.drained():
		logger.Info(b.protocolName + " graceful shutdown complete")
		return nil
	case <-time.After(b.Config.ShutdownTimeout):
	}

	remaining := b.active.Load()
	logger.Warn(b.protocolName+" shutdown timeout exceeded, forcing closure",
		"active", remaining, "timeout", b.Config.ShutdownTimeout)

	closed := 0
	b.conns.Range(func(_, value any) bool {
		if value.(net.Conn).Close() == nil {
			closed++
			if b.Metrics != nil {
				b.Metrics.RecordConnectionForceClosed()
			}
		}
		return true
	})
	logger.Info("Force-closed "+b.protocolName+" connections", "count", closed)

	return fmt.Errorf("%s shutdown timeout: %d connections force-closed", b.protocolName, remaining)
}

// Stop initiates shutdown and waits for connections until ctx is done. A nil
// ctx falls back to ShutdownTimeout.
func (b *BaseAdapter) Stop(ctx context.Context) error {
	b.initiateShutdown()

	if ctx == nil {
		return b.drain()
	}

	select {
	case <-b.drained():
		return nil
	case <-ctx.Done():
		logger.Warn(b.protocolName+" shutdown context cancelled",
			"active", b.active.Load(), "error", ctx.Err())
		return ctx.Err()
	}
}

func (b *BaseAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(b.Config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info(b.protocolName+" metrics", "active_connections", b.active.Load())
		}
	}
}

// GetActiveConnections returns the number of connections being served.
func (b *BaseAdapter) GetActiveConnections() int32 {
	return b.active.Load()
}

// GetListenerAddr blocks until the listener is bound and returns its address.
func (b *BaseAdapter) GetListenerAddr() string {
	<-b.bound

	b.listenerMu.RLock()
	defer b.listenerMu.RUnlock()
	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

// Ready reports whether the listener is bound and shutdown has not started.
func (b *BaseAdapter) Ready() bool {
	return b.ready.Load()
}

// Port returns the configured TCP port.
func (b *BaseAdapter) Port() int {
	return b.Config.Port
}

// Protocol returns the protocol name.
func (b *BaseAdapter) Protocol() string {
	return b.protocolName
}

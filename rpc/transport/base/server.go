package base

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dRelay/rpc/common"
	"github.com/ValentinKolb/dRelay/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector IServerConnector
	handler   transport.ServerHandleFunc
	config    common.ServerConfig
	codec     FrameCodec

	mu       sync.Mutex
	listener net.Listener
	closing  atomic.Bool

	nextConnID atomic.Uint64
	conns      *xsync.MapOf[uint64, net.Conn]
	wg         sync.WaitGroup
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport with the specified connector
func NewBaseServerTransport(connector IServerConnector) transport.IRelayServerTransport {
	return &serverTransport{
		connector: connector,
		conns:     xsync.NewMapOf[uint64, net.Conn](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRelayServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}
	return t.Serve(listener, config)
}

func (t *serverTransport) Serve(listener net.Listener, config common.ServerConfig) error {
	if t.handler == nil {
		_ = listener.Close()
		return fmt.Errorf("no handler registered")
	}

	t.mu.Lock()
	if t.closing.Load() {
		t.mu.Unlock()
		_ = listener.Close()
		return net.ErrClosed
	}
	t.config = config
	t.codec = FrameCodec{MaxFrameSize: config.MaxFrameSize}
	t.listener = listener
	// the accept loop counts as a worker, so connection workers are never added to an idle group
	t.wg.Add(1)
	t.mu.Unlock()
	defer t.wg.Done()

	Logger.Infof("Starting %s responder on %s", t.connector.GetName(), listener.Addr())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.closing.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			Logger.Errorf("Accept error: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		id := t.nextConnID.Add(1)
		t.conns.Store(id, conn)
		t.wg.Add(1)

		// Handle the connection in a goroutine
		go t.handleConnection(id, conn)
	}
}

func (t *serverTransport) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *serverTransport) Close() error {
	t.closing.Store(true)

	t.mu.Lock()
	var err error
	if t.listener != nil {
		err = t.listener.Close()
	}
	t.mu.Unlock()

	t.conns.Range(func(id uint64, conn net.Conn) bool {
		_ = conn.Close()
		return true
	})
	t.wg.Wait()

	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleConnection answers the frames of one connection strictly in order
func (t *serverTransport) handleConnection(id uint64, conn net.Conn) {
	defer t.wg.Done()
	defer t.conns.Delete(id)
	defer conn.Close()

	// Close may have run between Accept and Store
	if t.closing.Load() {
		return
	}

	if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
		Logger.Errorf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
		return
	}

	Logger.Debugf("Accepted connection from %s", conn.RemoteAddr())

	for {
		if t.config.IdleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(t.config.IdleTimeout)); err != nil {
				Logger.Errorf("Failed to set read deadline: %v", err)
				return
			}
		}

		req, err := t.codec.ReadFrame(conn)
		if err != nil {
			t.logReadError(conn, err)
			return
		}

		start := time.Now()
		resp := t.handler(req)
		Logger.Debugf("Answered %d byte request with %d bytes in %s", len(req), len(resp), time.Since(start))

		if t.config.IdleTimeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(t.config.IdleTimeout)); err != nil {
				Logger.Errorf("Failed to set write deadline: %v", err)
				return
			}
		}

		if err := WriteFrame(conn, resp); err != nil {
			if !t.closing.Load() {
				Logger.Errorf("Failed to write response: %v", err)
			}
			return
		}
	}
}

func (t *serverTransport) logReadError(conn net.Conn, err error) {
	var netErr net.Error
	switch {
	case t.closing.Load():
	case errors.Is(err, common.ErrTruncatedHeader) && errors.Is(err, io.EOF):
		Logger.Debugf("Connection closed by client %s", conn.RemoteAddr())
	case errors.As(err, &netErr) && netErr.Timeout():
		Logger.Infof("Closing idle connection from %s", conn.RemoteAddr())
	default:
		Logger.Warningf("Closing connection from %s: %v", conn.RemoteAddr(), err)
	}
}

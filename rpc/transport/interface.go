package transport

import (
	"io"
	"net"
	"time"

	"github.com/ValentinKolb/dRelay/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc handles one request frame and returns the response frame.
// It is called sequentially per connection, since the wire protocol has no request IDs.
type ServerHandleFunc func(req []byte) (resp []byte)

// IRelayServerTransport is the transport of the remote end of the relay
type IRelayServerTransport interface {
	// RegisterHandler registers the handler called for every received frame.
	// It must be called before Listen or Serve.
	RegisterHandler(handler ServerHandleFunc)
	// Listen creates a listener for config.Endpoint and serves it until Close is called
	Listen(config common.ServerConfig) error
	// Serve serves an existing listener until Close is called
	Serve(l net.Listener, config common.ServerConfig) error
	// Addr returns the address of the listener, nil before Listen or Serve
	Addr() net.Addr
	// Close stops accepting and closes all open connections
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// Stats is a snapshot of the counters of a relay client transport
type Stats struct {
	Submitted      uint64
	Completed      uint64
	Failed         uint64
	Connects       uint64
	ConnectFailure uint64
	QueueLength    int
	Running        bool
}

// IRelayClientTransport is the persistent connection manager of the relay. It owns at most one
// connection to the configured target and processes submitted requests strictly in order.
type IRelayClientTransport interface {
	// Configure sets the target. It may be called at any time and only affects future connects.
	Configure(host string, port int) error
	// Start launches the dispatcher. It is a no-op if already running and fails with
	// common.ErrConfigurationMissing if no target is configured.
	Start() error
	// Stop halts the dispatcher and closes the connection. Requests still queued are completed
	// with common.ErrStopped. It is a no-op if not running.
	Stop() error
	// Enqueue adds the request to the queue without waiting for the result
	Enqueue(req *common.PendingRequest) error
	// Submit enqueues the payload and waits up to timeout for the response
	Submit(payload []byte, timeout time.Duration) ([]byte, error)
	// Stats returns a snapshot of the counters
	Stats() Stats
	// WriteMetrics writes all metrics in Prometheus text format to w
	WriteMetrics(w io.Writer)
}

// IRelayForwarder sends one request over a fresh connection and closes it afterward
type IRelayForwarder interface {
	Forward(host string, port int, payload []byte, timeout time.Duration) ([]byte, error)
}

package base

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ValentinKolb/dRelay/lib/queue"
	"github.com/ValentinKolb/dRelay/lib/target"
	"github.com/ValentinKolb/dRelay/rpc/common"
	"github.com/ValentinKolb/dRelay/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger(common.LoggerTransport)

// probeTimeout is how long the liveness probe waits for the peer before the connection is considered alive
const probeTimeout = time.Millisecond

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to endpoint. It fails after timeout or when ctx is done.
	Connect(ctx context.Context, endpoint string, timeout time.Duration) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// clientTransport is the connection manager. Submitters push onto the queue, a single
// dispatcher goroutine owns the connection and processes the queue in order.
type clientTransport struct {
	connector IClientConnector
	config    common.ClientConfig
	codec     FrameCodec
	metrics   *relayMetrics

	target atomic.Pointer[target.Target]

	// lifecycleMu serializes Start and Stop
	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}

	// queueMu orders pushes against closing the queue in Stop, so no request is pushed
	// onto a queue nobody drains anymore
	queueMu sync.RWMutex
	queue   *queue.LockFreeMPSC[common.PendingRequest]
	running bool
}

// dispatcher holds the state only the dispatcher goroutine touches
type dispatcher struct {
	t     *clientTransport
	ctx   context.Context
	queue *queue.LockFreeMPSC[common.PendingRequest]

	conn     net.Conn
	endpoint string
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new connection manager with the specified connector.
// The target of the config is applied as if Configure was called.
func NewBaseClientTransport(connector IClientConnector, config common.ClientConfig) transport.IRelayClientTransport {
	config = config.WithDefaults()

	t := &clientTransport{
		connector: connector,
		config:    config,
		codec:     NewFrameCodec(config),
	}
	t.metrics = newRelayMetrics(connector.GetName(), t.queueLength)

	if config.Target.IsConfigured() {
		tgt := target.New(config.Target.Host, config.Target.Port)
		t.target.Store(&tgt)
	}

	return t
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRelayClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Configure(host string, port int) error {
	tgt := target.New(host, port)
	if err := tgt.Validate(); err != nil {
		return common.WrapError(common.RetCConfigurationMissing, tgt.String(), err)
	}
	t.target.Store(&tgt)
	Logger.Infof("Relay target set to %s", tgt)
	return nil
}

func (t *clientTransport) Start() error {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	if t.isRunning() {
		return nil
	}

	tgt := t.target.Load()
	if tgt == nil {
		return common.NewError(common.RetCConfigurationMissing, "no relay target configured")
	}
	if err := tgt.Validate(); err != nil {
		return common.WrapError(common.RetCConfigurationMissing, tgt.String(), err)
	}

	q := queue.NewBoundedMPSC[common.PendingRequest](t.config.QueueCapacity)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	t.queueMu.Lock()
	t.queue = q
	t.running = true
	t.queueMu.Unlock()

	t.cancel = cancel
	t.done = done

	d := &dispatcher{t: t, ctx: ctx, queue: q}
	go d.run(done)

	Logger.Infof("Relay started using %s transport, target %s", t.connector.GetName(), tgt)
	return nil
}

func (t *clientTransport) Stop() error {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	t.queueMu.Lock()
	if !t.running {
		t.queueMu.Unlock()
		return nil
	}
	t.running = false
	q := t.queue
	q.Close()
	t.queueMu.Unlock()

	// interrupts the empty-queue wait, a back-off and blocked socket I/O
	t.cancel()
	<-t.done

	// complete everything that was queued but not processed
	cancelled := 0
	for req := range q.Recv() {
		t.complete(req, nil, common.NewError(common.RetCStopped, "relay stopped before the request was sent"))
		cancelled++
	}

	if cancelled > 0 {
		Logger.Infof("Relay stopped, %d queued requests cancelled", cancelled)
	} else {
		Logger.Infof("Relay stopped")
	}
	return nil
}

func (t *clientTransport) Enqueue(req *common.PendingRequest) error {
	t.queueMu.RLock()
	defer t.queueMu.RUnlock()

	if !t.running {
		err := common.NewError(common.RetCStopped, "relay is not running")
		req.Complete(nil, err)
		return err
	}

	if !t.queue.Push(req) {
		err := common.NewError(common.RetCQueueFull, fmt.Sprintf("%d requests already queued", t.queue.Cap()))
		t.metrics.failed.Inc()
		req.Complete(nil, err)
		return err
	}

	t.metrics.submitted.Inc()
	return nil
}

func (t *clientTransport) Submit(payload []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = t.config.RequestTimeout
	}

	req := common.NewPendingRequest(payload, timeout)
	if err := t.Enqueue(req); err != nil {
		return nil, err
	}
	return req.Wait()
}

func (t *clientTransport) Stats() transport.Stats {
	t.queueMu.RLock()
	running := t.running
	t.queueMu.RUnlock()

	return transport.Stats{
		Submitted:      t.metrics.submitted.Get(),
		Completed:      t.metrics.completed.Get(),
		Failed:         t.metrics.failed.Get(),
		Connects:       t.metrics.connects.Get(),
		ConnectFailure: t.metrics.connectFailures.Get(),
		QueueLength:    int(t.queueLength()),
		Running:        running,
	}
}

func (t *clientTransport) WriteMetrics(w io.Writer) {
	t.metrics.set.WritePrometheus(w)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *clientTransport) isRunning() bool {
	t.queueMu.RLock()
	defer t.queueMu.RUnlock()
	return t.running
}

func (t *clientTransport) queueLength() float64 {
	t.queueMu.RLock()
	defer t.queueMu.RUnlock()
	if t.queue == nil {
		return 0
	}
	return float64(t.queue.Len())
}

// complete completes the request and counts the outcome
func (t *clientTransport) complete(req *common.PendingRequest, resp []byte, err error) {
	if err != nil {
		t.metrics.failed.Inc()
	} else {
		t.metrics.completed.Inc()
	}
	req.Complete(resp, err)
}

// run is the dispatcher loop. It processes one request at a time until the context is
// cancelled or the queue is closed and drained.
func (d *dispatcher) run(done chan struct{}) {
	defer close(done)
	defer d.closeConn()

	for {
		select {
		case <-d.ctx.Done():
			return
		case req, ok := <-d.queue.Recv():
			if !ok {
				return
			}
			if d.ctx.Err() != nil {
				d.t.complete(req, nil, common.NewError(common.RetCStopped, "relay stopped before the request was sent"))
				return
			}
			d.process(req)
		}
	}
}

// process relays a single request. Every path completes the request exactly once and no
// failure ends the loop.
func (d *dispatcher) process(req *common.PendingRequest) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("Recovered from panic while relaying request: %v", r)
			d.closeConn()
			d.t.complete(req, nil, common.NewError(common.RetCInternal, fmt.Sprintf("panic: %v", r)))
		}
	}()

	if err := d.ensureConnected(); err != nil {
		d.t.complete(req, nil, err)
		if common.CodeOf(err) != common.RetCConfigurationMissing {
			d.backoff()
		}
		return
	}

	start := time.Now()
	resp, err := d.roundTrip(d.conn, req.Payload())
	d.t.metrics.roundTrip.UpdateDuration(start)

	if err != nil {
		// the stream position is unknown now, a fresh connection is needed for the next request
		if common.DiscardsConnection(err) || d.ctx.Err() != nil {
			d.closeConn()
		}

		if d.ctx.Err() != nil {
			d.t.complete(req, nil, common.WrapError(common.RetCStopped, "relay stopped while the request was in flight", err))
			return
		}

		if len(resp) > 0 && d.t.codec.AllowPartial && errors.Is(err, common.ErrTruncatedBody) {
			Logger.Warningf("Delivering partial response (%d bytes): %v", len(resp), err)
			d.t.complete(req, resp, nil)
			return
		}

		Logger.Warningf("Relaying request to %s failed: %v", d.endpoint, err)
		d.t.complete(req, nil, err)
		return
	}

	Logger.Debugf("Relayed %d bytes, got %d bytes in %s", len(req.Payload()), len(resp), time.Since(start))
	d.t.complete(req, resp, nil)
}

// ensureConnected reuses the live connection if the peer did not close it, otherwise it
// dials the currently configured target
func (d *dispatcher) ensureConnected() error {
	if d.conn != nil {
		if isAlive(d.conn) {
			return nil
		}
		Logger.Infof("Connection to %s lost, reconnecting", d.endpoint)
		d.closeConn()
	}

	tgt := d.t.target.Load()
	if tgt == nil || tgt.Validate() != nil {
		return common.NewError(common.RetCConfigurationMissing, "no relay target configured")
	}
	endpoint := tgt.Endpoint()

	conn, err := d.t.connector.Connect(d.ctx, endpoint, d.t.config.ConnectTimeout)
	if err != nil {
		if d.ctx.Err() != nil {
			return common.WrapError(common.RetCStopped, "relay stopped while connecting to "+endpoint, err)
		}
		d.t.metrics.connectFailures.Inc()
		err = classifyConnectError(endpoint, err)
		Logger.Warningf("Failed to connect to %s: %v", endpoint, err)
		return err
	}

	if err := d.t.connector.UpgradeConnection(conn, d.t.config); err != nil {
		_ = conn.Close()
		d.t.metrics.connectFailures.Inc()
		return common.WrapError(common.RetCConnectFailed, "upgrade connection to "+endpoint, err)
	}

	d.t.metrics.connects.Inc()
	d.conn = conn
	d.endpoint = endpoint
	Logger.Infof("Connected to %s", endpoint)
	return nil
}

// roundTrip writes the request frame and reads the response frame within the read timeout.
// Stopping the manager moves the deadline to now, which aborts blocked I/O.
func (d *dispatcher) roundTrip(conn net.Conn, payload []byte) ([]byte, error) {
	if err := conn.SetDeadline(time.Now().Add(d.t.config.ReadTimeout)); err != nil {
		return nil, common.WrapError(common.RetCIO, "set deadline", err)
	}

	// registered after SetDeadline so a concurrent Stop always wins
	stop := context.AfterFunc(d.ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := WriteFrame(conn, payload); err != nil {
		return nil, err
	}
	return d.t.codec.ReadFrame(conn)
}

// backoff pauses after a failed connect, returning early if the manager is stopped
func (d *dispatcher) backoff() {
	if d.t.config.ReconnectBackoff <= 0 {
		return
	}
	timer := time.NewTimer(d.t.config.ReconnectBackoff)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-d.ctx.Done():
	}
}

func (d *dispatcher) closeConn() {
	if d.conn != nil {
		_ = d.conn.Close()
		d.conn = nil
	}
}

// isAlive probes the connection with a short read. A timeout means the peer is idle and the
// connection can be reused. EOF or a reset means it was closed, and unsolicited bytes mean
// the stream no longer lines up with our requests.
func isAlive(conn net.Conn) bool {
	if err := conn.SetReadDeadline(time.Now().Add(probeTimeout)); err != nil {
		return false
	}

	var b [1]byte
	n, err := conn.Read(b[:])
	if n > 0 {
		Logger.Warningf("Discarding connection to %s: received unsolicited data", conn.RemoteAddr())
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// classifyConnectError maps a dial error to the relay error taxonomy
func classifyConnectError(endpoint string, err error) error {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout(), errors.Is(err, context.DeadlineExceeded):
		return common.WrapError(common.RetCConnectTimeout, endpoint, err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return common.WrapError(common.RetCConnectRefused, endpoint, err)
	default:
		return common.WrapError(common.RetCConnectFailed, endpoint, err)
	}
}

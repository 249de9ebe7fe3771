package tcp

import (
	"context"
	"net"
	"time"

	"github.com/ValentinKolb/dRelay/rpc/common"
	"github.com/ValentinKolb/dRelay/rpc/transport"
	"github.com/ValentinKolb/dRelay/rpc/transport/base"
)

// clientConnector implements the IClientConnector interface for TCP sockets
type clientConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "tcp"
}

func (c *clientConnector) Connect(ctx context.Context, endpoint string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	return d.DialContext(ctx, "tcp", endpoint)
}

func (c *clientConnector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	return upgradeConnection(conn, config.SocketConf, config.TCPConf)
}

// --------------------------------------------------------------------------
// Client Transport Factory Methods
// --------------------------------------------------------------------------

// NewTCPClientTransport creates a new TCP connection manager
func NewTCPClientTransport(config common.ClientConfig) transport.IRelayClientTransport {
	return base.NewBaseClientTransport(&clientConnector{}, config)
}

// NewTCPForwarder creates a new TCP one-shot forwarder
func NewTCPForwarder(config common.ClientConfig) transport.IRelayForwarder {
	return base.NewBaseForwarder(&clientConnector{}, config)
}

package base

import (
	"context"
	"errors"
	"time"

	"github.com/ValentinKolb/dRelay/lib/target"
	"github.com/ValentinKolb/dRelay/rpc/common"
	"github.com/ValentinKolb/dRelay/rpc/transport"
)

// forwarder implements the one-shot path: connect, send one frame, read one frame, close
type forwarder struct {
	connector IClientConnector
	config    common.ClientConfig
	codec     FrameCodec
}

// NewBaseForwarder creates a one-shot forwarder with the specified connector
func NewBaseForwarder(connector IClientConnector, config common.ClientConfig) transport.IRelayForwarder {
	config = config.WithDefaults()
	return &forwarder{
		connector: connector,
		config:    config,
		codec:     NewFrameCodec(config),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRelayForwarder)
// --------------------------------------------------------------------------

// Forward uses timeout as connect timeout and as I/O deadline, a timeout <= 0 uses the
// configured connect timeout. There is no retry.
func (f *forwarder) Forward(host string, port int, payload []byte, timeout time.Duration) ([]byte, error) {
	tgt := target.New(host, port)
	if err := tgt.Validate(); err != nil {
		return nil, common.WrapError(common.RetCConfigurationMissing, tgt.String(), err)
	}
	if timeout <= 0 {
		timeout = f.config.ConnectTimeout
	}
	endpoint := tgt.Endpoint()

	conn, err := f.connector.Connect(context.Background(), endpoint, timeout)
	if err != nil {
		return nil, classifyConnectError(endpoint, err)
	}
	defer conn.Close()

	if err := f.connector.UpgradeConnection(conn, f.config); err != nil {
		return nil, common.WrapError(common.RetCConnectFailed, "upgrade connection to "+endpoint, err)
	}

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, common.WrapError(common.RetCIO, "set deadline", err)
	}

	if err := WriteFrame(conn, payload); err != nil {
		return nil, err
	}

	resp, err := f.codec.ReadFrame(conn)
	if err != nil {
		if len(resp) > 0 && f.codec.AllowPartial && errors.Is(err, common.ErrTruncatedBody) {
			Logger.Warningf("Delivering partial response (%d bytes) from %s: %v", len(resp), endpoint, err)
			return resp, nil
		}
		Logger.Debugf("Forward to %s failed: %v", endpoint, err)
		return nil, err
	}

	return resp, nil
}

package client

import (
	"sync"

	"github.com/ValentinKolb/dRelay/lib/target"
	"github.com/ValentinKolb/dRelay/rpc/common"
	"github.com/ValentinKolb/dRelay/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger(common.LoggerRelay)
)

// RelayClient is the card-emulation side of the relay: every command APDU handed to
// ProcessCommand is relayed to the configured target and the response APDU is returned.
type RelayClient struct {
	mu        sync.Mutex
	config    common.ClientConfig
	manager   transport.IRelayClientTransport
	forwarder transport.IRelayForwarder
}

// NewRelayClient creates a new client. The manager serves the persistent mode, the forwarder
// the one-shot mode; the one not needed by config.Mode may be nil.
func NewRelayClient(
	config common.ClientConfig,
	manager transport.IRelayClientTransport,
	forwarder transport.IRelayForwarder,
) *RelayClient {
	config = config.WithDefaults()

	if manager != nil && config.Target.IsConfigured() {
		if err := manager.Configure(config.Target.Host, config.Target.Port); err != nil {
			Logger.Warningf("Ignoring invalid relay target %s: %v", config.Target, err)
			config.Target = target.Target{}
		}
	}

	return &RelayClient{
		config:    config,
		manager:   manager,
		forwarder: forwarder,
	}
}

// ProcessCommand relays the command APDU and returns the response APDU. It never returns nil:
// a missing target or any relay failure is answered with the status word 6F00.
func (c *RelayClient) ProcessCommand(apdu []byte) []byte {
	c.mu.Lock()
	tgt := c.config.Target
	mode := c.config.Mode
	timeout := c.config.RequestTimeout
	c.mu.Unlock()

	if !tgt.IsConfigured() {
		Logger.Warningf("Relay target not configured, answering %s", common.FormatAPDU(common.StatusWord(common.SWUnknown)))
		return common.StatusWord(common.SWUnknown)
	}

	var (
		resp []byte
		err  error
	)
	switch mode {
	case common.ModeOneShot:
		if c.forwarder == nil {
			Logger.Errorf("One-shot mode without forwarder")
			return common.StatusWord(common.SWUnknown)
		}
		resp, err = c.forwarder.Forward(tgt.Host, tgt.Port, apdu, timeout)
	default:
		if c.manager == nil {
			Logger.Errorf("Persistent mode without connection manager")
			return common.StatusWord(common.SWUnknown)
		}
		// no-op while running, restarts the dispatcher after SetTarget or Close
		if err = c.manager.Start(); err == nil {
			resp, err = c.manager.Submit(apdu, timeout)
		}
	}

	if err != nil {
		Logger.Warningf("Relaying %s to %s failed: %v", common.FormatAPDU(apdu), tgt, err)
		return common.StatusWord(common.SWUnknown)
	}
	if resp == nil {
		return common.StatusWord(common.SWUnknown)
	}
	return resp
}

// SetTarget changes the relay target. A running persistent connection is stopped so the next
// command connects to the new target.
func (c *RelayClient) SetTarget(host string, port int) error {
	tgt := target.New(host, port)
	if err := tgt.Validate(); err != nil {
		return common.WrapError(common.RetCConfigurationMissing, tgt.String(), err)
	}

	c.mu.Lock()
	changed := c.config.Target != tgt
	c.config.Target = tgt
	c.mu.Unlock()

	if c.manager == nil {
		return nil
	}
	if err := c.manager.Configure(tgt.Host, tgt.Port); err != nil {
		return err
	}
	if changed {
		return c.manager.Stop()
	}
	return nil
}

// LoadTarget reads the target from the store and applies it with SetTarget
func (c *RelayClient) LoadTarget(store target.IStore) error {
	tgt, err := store.Load()
	if err != nil {
		return err
	}
	if !tgt.IsConfigured() {
		return common.NewError(common.RetCConfigurationMissing, "no relay target stored")
	}
	return c.SetTarget(tgt.Host, tgt.Port)
}

// Target returns the current relay target
func (c *RelayClient) Target() target.Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config.Target
}

// Deactivated is called when the reader leaves the field. The connection is kept open for the
// next session.
func (c *RelayClient) Deactivated(reason int) {
	Logger.Infof("Card emulation deactivated (reason %d)", reason)
}

// Close stops the connection manager, queued commands are answered with 6F00
func (c *RelayClient) Close() error {
	if c.manager == nil {
		return nil
	}
	return c.manager.Stop()
}

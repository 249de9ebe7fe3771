// Package client implements the card-emulation side of the relay. A RelayClient takes the
// command APDUs received from a reader and relays them to the remote endpoint, either over the
// persistent connection of a transport.IRelayClientTransport or with a one-shot
// transport.IRelayForwarder.
//
// ProcessCommand never fails: the card-emulation callback must always answer, so a missing
// target and every relay failure are answered with the status word 6F00 (no precise
// diagnosis). Details are logged by the "relay" logger.
//
// Usage Example:
//
//	config := common.DefaultClientConfig()
//	config.Target = target.New("127.0.0.1", 9999)
//
//	c := client.NewRelayClient(
//		config,
//		tcp.NewTCPClientTransport(config),
//		tcp.NewTCPForwarder(config),
//	)
//	defer c.Close()
//
//	resp := c.ProcessCommand([]byte{0x00, 0xA4, 0x04, 0x00})
//
// Thread Safety:
//
//	RelayClient is safe for concurrent use. Commands of concurrent callers are relayed in
//	the order they reach the connection manager.
package client

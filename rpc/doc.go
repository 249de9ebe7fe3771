// Package rpc provides the relay: it carries opaque request payloads (command APDUs) from
// a card-emulation endpoint to a remote endpoint and returns the correlated responses.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the relay, including the
//     PendingRequest, the error taxonomy, configuration structures, APDU helpers and logging.
//
//   - transport: Transport interfaces. The base subpackage holds the frame codec, the
//     persistent connection manager, the one-shot forwarder and the server loop, the tcp
//     subpackage plugs TCP into them.
//
//   - client: The card-emulation adapter, answering every command APDU with a response
//     APDU or the status word 6F00.
//
//   - server: The responder, the remote end of the relay used for tests and lab setups,
//     with handlers and a middleware chain.
package rpc

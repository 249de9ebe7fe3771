// Package transport defines the interfaces of the relay transport. It provides a common
// contract that all transport implementations must fulfill, so the card-emulation adapter
// and the CLI do not depend on a specific network medium.
//
// Key Components:
//
//   - IRelayClientTransport: the persistent connection manager. One dispatcher owns one
//     connection and processes a FIFO queue of requests, one in flight at a time.
//
//   - IRelayForwarder: the stateless alternative that connects, sends one frame, reads one
//     frame and closes.
//
//   - IRelayServerTransport: the remote end that reads frames, calls a ServerHandleFunc
//     and writes the returned frame.
package transport

// Package tcp implements the TCP transport of the relay. It provides the TCP specific
// implementations of the base package's connector interfaces; framing, queueing and
// reconnect handling are inherited from the base package.
//
// Key Components:
//
//   - clientConnector: dials with a connect timeout and applies the socket options
//     (TCP_NODELAY, buffer sizes, keep-alive, linger) of the client config.
//
//   - serverConnector: listens on the configured endpoint and applies the socket options
//     of the server config to every accepted connection.
//
// Factories: NewTCPClientTransport (persistent connection manager), NewTCPForwarder
// (one-shot path) and NewTCPServerTransport (responder).
package tcp

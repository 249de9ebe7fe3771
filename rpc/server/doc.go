// Package server implements the responder, the remote end of the relay. It answers each
// request frame with the result of a handler, which makes it usable as a stand-in card in
// tests and lab setups.
//
// Key Components:
//
//   - RelayServer: binds a handler to a server transport. NewRelayServerFromConfig derives
//     handler and middlewares from a common.ServerConfig.
//
//   - Handlers: EchoHandler, StaticHandler and TableHandler (fixed answers per request,
//     e.g. a scripted SELECT / READ RECORD exchange).
//
//   - Middleware: Chain, LoggingMiddleware, RateLimitMiddleware (token bucket) and
//     TimeoutMiddleware. Rejections are answered with a status word instead of an error,
//     since the wire protocol has no error frames.
package server

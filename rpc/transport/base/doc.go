// Package base implements the relay transport independent of the specific network medium.
// Medium specific parts (dialing, listening, socket options) are injected through the
// IClientConnector and IServerConnector interfaces, see the tcp package.
//
// Wire Format:
//
//	[4 bytes length, uint32 big endian][length bytes payload]
//
// Both directions use the same frame. There is no handshake, no versioning and no request ID,
// so responses are matched to requests purely by order.
//
// Key Components:
//
//   - FrameCodec: reads frames with a cap on the declared length. Oversized frames fail
//     before any body byte is read. A body that ends early fails with ErrTruncatedBody, or
//     returns the bytes received so far if AllowPartial is set.
//
//   - clientTransport: the connection manager. Submitters push PendingRequests onto a
//     lock-free MPSC queue; one dispatcher goroutine owns the connection and relays one
//     request at a time, so responses are delivered in submission order. The connection is
//     probed before reuse and dropped after any framing or I/O error. A failed connect
//     completes the request with an error and pauses for the reconnect back-off.
//
//   - forwarder: the one-shot path. One connection per request, closed on every path.
//
//   - serverTransport: the remote end. Reads frames, calls the handler and writes the
//     response, sequentially per connection. Open connections are tracked so Close can
//     shut them down.
//
// Failure Handling:
//
//	Every failure of a single request is converted into an error result for that request.
//	The dispatcher loop only ends when the manager is stopped. On Stop, blocked socket I/O is
//	interrupted through the connection deadline and requests still in the queue are
//	completed with ErrStopped.
//
// Thread Safety:
//
//	All public methods are thread-safe. The connection of a manager is only touched by its
//	dispatcher goroutine.
package base

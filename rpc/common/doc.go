// Package common provides the data structures shared by all parts of the relay.
//
// Key Components:
//
//   - PendingRequest: one unit of relay work (payload, timeout, result slot). It is completed
//     exactly once by whoever processes it and waited on by the submitter, who gives up
//     locally after its own timeout without affecting the processing side.
//
//   - Error / RetCode: the error taxonomy of the relay (configuration missing, connect
//     timeout/refused, truncated or oversized frames, local timeout, stopped, queue full).
//     Errors compare by code, so errors.Is(err, ErrOversizedFrame) works for every
//     oversized frame regardless of message and cause.
//
//   - ClientConfig / ServerConfig: configuration of the relay client and the responder
//     server, including the frame cap and partial delivery knobs. The defaults are strict:
//     4096 byte frames and no partial delivery.
//
//   - Logger: custom formatting for the dragonboat logger facade used by every package.
package common

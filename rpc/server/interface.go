package server

import (
	"context"
)

// HandlerFunc answers one request frame of the responder. The context carries the deadline
// set by TimeoutMiddleware, if any.
type HandlerFunc func(ctx context.Context, req []byte) []byte

// Middleware wraps a handler with additional behavior
type Middleware func(next HandlerFunc) HandlerFunc

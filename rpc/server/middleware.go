package server

import (
	"context"
	"time"

	"github.com/ValentinKolb/dRelay/rpc/common"
	"golang.org/x/time/rate"
)

// Chain combines the middlewares into one. The first middleware is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// LoggingMiddleware logs every request and response at debug level
func LoggingMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req []byte) []byte {
			start := time.Now()
			resp := next(ctx, req)
			Logger.Debugf("C-APDU %s -> R-APDU %s (%s)", common.FormatAPDU(req), common.FormatAPDU(resp), time.Since(start))
			return resp
		}
	}
}

// RateLimitMiddleware answers with rejectResp once more than r requests per second
// (token bucket with the given burst) arrive
func RateLimitMiddleware(r float64, burst int, rejectResp []byte) Middleware {
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req []byte) []byte {
			if !limiter.Allow() {
				Logger.Warningf("Rate limit exceeded, rejecting %s", common.FormatAPDU(req))
				return rejectResp
			}
			return next(ctx, req)
		}
	}
}

// TimeoutMiddleware answers with timeoutResp if the handler does not return within timeout.
// The handler keeps running in the background, its context is cancelled.
func TimeoutMiddleware(timeout time.Duration, timeoutResp []byte) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req []byte) []byte {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan []byte, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				Logger.Warningf("Handler timed out after %s", timeout)
				return timeoutResp
			}
		}
	}
}

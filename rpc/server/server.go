package server

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/ValentinKolb/dRelay/rpc/common"
	"github.com/ValentinKolb/dRelay/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger(common.LoggerServer)

// RelayServer is the remote end of the relay: it answers every request frame with the
// response of its handler
type RelayServer struct {
	config    common.ServerConfig
	transport transport.IRelayServerTransport
	handler   HandlerFunc
}

// NewRelayServer creates a new responder with the given handler wrapped in the middlewares
//
// Usage:
//
//	s := server.NewRelayServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		server.EchoHandler(),
//		server.LoggingMiddleware(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRelayServer(
	config common.ServerConfig,
	transport transport.IRelayServerTransport,
	handler HandlerFunc,
	middlewares ...Middleware,
) *RelayServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &RelayServer{
		config:    config,
		transport: transport,
		handler:   Chain(middlewares...)(handler),
	}
}

// NewRelayServerFromConfig creates a responder whose handler and middlewares are derived from
// the config: the responder mode selects the handler, rate limit and handler timeout add the
// corresponding middleware. Rejected and timed out requests are answered with 6985.
func NewRelayServerFromConfig(config common.ServerConfig, transport transport.IRelayServerTransport) (*RelayServer, error) {
	var handler HandlerFunc
	switch config.Responder {
	case common.ResponderEcho, "":
		handler = EchoHandler()
	case common.ResponderStatic:
		handler = StaticHandler(config.StaticResponse)
	case common.ResponderTable:
		h, err := TableHandler(config.ResponseTable, config.StaticResponse)
		if err != nil {
			return nil, fmt.Errorf("invalid response table: %w", err)
		}
		handler = h
	default:
		return nil, fmt.Errorf("invalid responder %q", config.Responder)
	}

	reject := common.StatusWord(common.SWConditionsNotSatisfied)
	middlewares := []Middleware{LoggingMiddleware()}
	if config.RateLimit > 0 {
		middlewares = append(middlewares, RateLimitMiddleware(config.RateLimit, config.RateBurst, reject))
	}
	if config.HandlerTimeout > 0 {
		middlewares = append(middlewares, TimeoutMiddleware(config.HandlerTimeout, reject))
	}

	return NewRelayServer(config, transport, handler, middlewares...), nil
}

// Serve listens on the configured endpoint and blocks until Close is called
func (s *RelayServer) Serve() error {
	s.registerTransportHandler()
	Logger.Infof("Created responder%s", s.config.String())
	return s.transport.Listen(s.config)
}

// ServeListener serves an existing listener and blocks until Close is called
func (s *RelayServer) ServeListener(l net.Listener) error {
	s.registerTransportHandler()
	return s.transport.Serve(l, s.config)
}

// Addr returns the listening address, nil before Serve
func (s *RelayServer) Addr() net.Addr {
	return s.transport.Addr()
}

// Close stops the responder and closes all connections
func (s *RelayServer) Close() error {
	return s.transport.Close()
}

func (s *RelayServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(req []byte) []byte {
		return s.handler(context.Background(), req)
	})
}

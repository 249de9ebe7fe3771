package server

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/ValentinKolb/dRelay/lib/target"
	"github.com/ValentinKolb/dRelay/rpc/common"
	"github.com/ValentinKolb/dRelay/rpc/transport/tcp"
)

var reject = common.StatusWord(common.SWConditionsNotSatisfied)

func slowHandler(ctx context.Context, req []byte) []byte {
	time.Sleep(200 * time.Millisecond)
	return req
}

func TestHandlers(t *testing.T) {
	ctx := context.Background()
	req := []byte{0x00, 0xA4, 0x04, 0x00}

	if got := EchoHandler()(ctx, req); !bytes.Equal(got, req) {
		t.Errorf("echo: got % X", got)
	}
	if got := StaticHandler([]byte{0x90, 0x00})(ctx, req); !bytes.Equal(got, []byte{0x90, 0x00}) {
		t.Errorf("static: got % X", got)
	}

	table, err := TableHandler(map[string]string{
		"00 A4 04 00": "6F 10 90 00",
		"80ca9f7f":    "9F7F 9000",
	}, common.StatusWord(common.SWUnknown))
	if err != nil {
		t.Fatal(err)
	}
	if got := table(ctx, req); !bytes.Equal(got, []byte{0x6F, 0x10, 0x90, 0x00}) {
		t.Errorf("table hit: got % X", got)
	}
	if got := table(ctx, []byte{0x80, 0xCA, 0x9F, 0x7F}); !bytes.Equal(got, []byte{0x9F, 0x7F, 0x90, 0x00}) {
		t.Errorf("table hit (lower case key): got % X", got)
	}
	if got := table(ctx, []byte{0x01}); !bytes.Equal(got, []byte{0x6F, 0x00}) {
		t.Errorf("table miss: got % X", got)
	}

	if _, err := TableHandler(map[string]string{"zz": "9000"}, nil); err == nil {
		t.Error("invalid table should fail")
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	ctx := context.Background()

	pass := TimeoutMiddleware(500*time.Millisecond, reject)(EchoHandler())
	if got := pass(ctx, []byte{0x01}); !bytes.Equal(got, []byte{0x01}) {
		t.Fatalf("fast handler should pass, got % X", got)
	}

	exceeded := TimeoutMiddleware(50*time.Millisecond, reject)(slowHandler)
	start := time.Now()
	if got := exceeded(ctx, []byte{0x01}); !bytes.Equal(got, reject) {
		t.Fatalf("slow handler should time out, got % X", got)
	}
	if d := time.Since(start); d > 150*time.Millisecond {
		t.Fatalf("timeout answered after %s", d)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	// 1 per second with burst 2: the first two pass, the third is rejected
	handler := RateLimitMiddleware(1, 2, reject)(EchoHandler())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if got := handler(ctx, []byte{0x01}); !bytes.Equal(got, []byte{0x01}) {
			t.Fatalf("request %d should pass, got % X", i, got)
		}
	}
	if got := handler(ctx, []byte{0x01}); !bytes.Equal(got, reject) {
		t.Fatalf("request 3 should be rate limited, got % X", got)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req []byte) []byte {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	Chain(mark("a"), mark("b"), LoggingMiddleware())(EchoHandler())(context.Background(), nil)

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expected a before b, got %v", order)
	}
}

func TestNewRelayServerFromConfig(t *testing.T) {
	cfg := common.DefaultServerConfig()
	cfg.Responder = "nonsense"
	if _, err := NewRelayServerFromConfig(cfg, tcp.NewTCPServerTransport()); err == nil {
		t.Fatal("unknown responder should fail")
	}

	cfg.Responder = common.ResponderTable
	cfg.ResponseTable = map[string]string{"0": "9000"}
	if _, err := NewRelayServerFromConfig(cfg, tcp.NewTCPServerTransport()); err == nil {
		t.Fatal("invalid table should fail")
	}
}

func TestRelayServerEndToEnd(t *testing.T) {
	cfg := common.DefaultServerConfig()
	cfg.Endpoint = "127.0.0.1:0"
	cfg.Responder = common.ResponderStatic
	cfg.StaticResponse = []byte{0x90, 0x00}

	s, err := NewRelayServerFromConfig(cfg, tcp.NewTCPServerTransport())
	if err != nil {
		t.Fatal(err)
	}

	l, err := net.Listen("tcp", cfg.Endpoint)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = s.ServeListener(l) }()
	defer s.Close()

	addr := l.Addr().(*net.TCPAddr)
	clientCfg := common.DefaultClientConfig()
	clientCfg.Target = target.New(addr.IP.String(), addr.Port)

	m := tcp.NewTCPClientTransport(clientCfg)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	resp, err := m.Submit([]byte{0x00, 0xA4, 0x04, 0x00}, 2*time.Second)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !bytes.Equal(resp, []byte{0x90, 0x00}) {
		t.Fatalf("expected 90 00, got % X", resp)
	}
}

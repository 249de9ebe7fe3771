package client

import (
	"bytes"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/dRelay/lib/target"
	"github.com/ValentinKolb/dRelay/rpc/common"
	"github.com/ValentinKolb/dRelay/rpc/server"
	"github.com/ValentinKolb/dRelay/rpc/transport/tcp"
)

var sw6F00 = []byte{0x6F, 0x00}

// startResponder starts a static responder on an ephemeral port and returns its target
func startResponder(t *testing.T, resp []byte) target.Target {
	t.Helper()

	cfg := common.DefaultServerConfig()
	s := server.NewRelayServer(cfg, tcp.NewTCPServerTransport(), server.StaticHandler(resp))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = s.ServeListener(l) }()
	t.Cleanup(func() { _ = s.Close() })

	addr := l.Addr().(*net.TCPAddr)
	return target.New(addr.IP.String(), addr.Port)
}

// closedPort returns a local port nothing listens on
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	return port
}

func newClient(t *testing.T, tgt target.Target, mode common.RelayMode) *RelayClient {
	t.Helper()

	cfg := common.DefaultClientConfig()
	cfg.Target = tgt
	cfg.Mode = mode
	cfg.ConnectTimeout = time.Second
	cfg.ReadTimeout = time.Second
	cfg.RequestTimeout = 2 * time.Second
	cfg.ReconnectBackoff = 50 * time.Millisecond

	c := NewRelayClient(cfg, tcp.NewTCPClientTransport(cfg), tcp.NewTCPForwarder(cfg))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestProcessCommandNotConfigured(t *testing.T) {
	c := newClient(t, target.Target{}, common.ModePersistent)

	if got := c.ProcessCommand([]byte{0x00, 0xA4, 0x04, 0x00}); !bytes.Equal(got, sw6F00) {
		t.Fatalf("expected 6F 00, got % X", got)
	}
}

func TestProcessCommandModes(t *testing.T) {
	resp := []byte{0x6F, 0x10, 0x90, 0x00}
	tgt := startResponder(t, resp)

	for _, mode := range []common.RelayMode{common.ModePersistent, common.ModeOneShot} {
		t.Run(string(mode), func(t *testing.T) {
			c := newClient(t, tgt, mode)
			for i := 0; i < 3; i++ {
				if got := c.ProcessCommand([]byte{0x00, 0xA4, 0x04, 0x00}); !bytes.Equal(got, resp) {
					t.Fatalf("command %d: expected % X, got % X", i, resp, got)
				}
			}
		})
	}
}

func TestProcessCommandFailure(t *testing.T) {
	tgt := target.New("127.0.0.1", closedPort(t))

	for _, mode := range []common.RelayMode{common.ModePersistent, common.ModeOneShot} {
		t.Run(string(mode), func(t *testing.T) {
			c := newClient(t, tgt, mode)
			if got := c.ProcessCommand([]byte{0x00, 0xB0, 0x00, 0x00}); !bytes.Equal(got, sw6F00) {
				t.Fatalf("expected 6F 00, got % X", got)
			}
		})
	}
}

func TestProcessCommandEmptyResponse(t *testing.T) {
	tgt := startResponder(t, []byte{})
	c := newClient(t, tgt, common.ModePersistent)

	got := c.ProcessCommand([]byte{0x00})
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil response, got % X", got)
	}
}

func TestSetTarget(t *testing.T) {
	first := startResponder(t, []byte{0x01, 0x90, 0x00})
	second := startResponder(t, []byte{0x02, 0x90, 0x00})

	c := newClient(t, first, common.ModePersistent)
	if got := c.ProcessCommand([]byte{0x00}); got[0] != 0x01 {
		t.Fatalf("expected answer of first responder, got % X", got)
	}

	if err := c.SetTarget(second.Host, second.Port); err != nil {
		t.Fatalf("SetTarget failed: %v", err)
	}
	if c.Target() != second {
		t.Fatalf("expected target %s, got %s", second, c.Target())
	}
	if got := c.ProcessCommand([]byte{0x00}); got[0] != 0x02 {
		t.Fatalf("expected answer of second responder, got % X", got)
	}

	err := c.SetTarget("", 0)
	if !errors.Is(err, common.ErrConfigurationMissing) {
		t.Fatalf("expected configuration missing, got %v", err)
	}
	if c.Target() != second {
		t.Fatal("invalid target must not replace the current one")
	}
}

func TestLoadTarget(t *testing.T) {
	tgt := startResponder(t, []byte{0x90, 0x00})
	store := target.NewFileStore(filepath.Join(t.TempDir(), "target.yaml"))

	c := newClient(t, target.Target{}, common.ModePersistent)
	if err := c.LoadTarget(store); !errors.Is(err, common.ErrConfigurationMissing) {
		t.Fatalf("empty store: expected configuration missing, got %v", err)
	}

	if err := store.Save(tgt); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := c.LoadTarget(store); err != nil {
		t.Fatalf("LoadTarget failed: %v", err)
	}
	if got := c.ProcessCommand([]byte{0x00}); !bytes.Equal(got, []byte{0x90, 0x00}) {
		t.Fatalf("expected 90 00, got % X", got)
	}
}

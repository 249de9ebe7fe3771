package tcp

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/ValentinKolb/dRelay/lib/target"
	"github.com/ValentinKolb/dRelay/rpc/common"
)

func startEchoServer(t *testing.T) *net.TCPAddr {
	t.Helper()

	cfg := common.DefaultServerConfig()
	cfg.Endpoint = "127.0.0.1:0"
	cfg.TCPKeepAliveSec = 30
	cfg.ReadBufferSize = 64 * 1024

	l, err := (&serverConnector{}).Listen(cfg)
	if err != nil {
		t.Fatal(err)
	}

	s := NewTCPServerTransport()
	s.RegisterHandler(func(req []byte) []byte { return req })
	go func() { _ = s.Serve(l, cfg) }()
	t.Cleanup(func() { _ = s.Close() })

	return l.Addr().(*net.TCPAddr)
}

func clientConfig(addr *net.TCPAddr) common.ClientConfig {
	cfg := common.DefaultClientConfig()
	cfg.Target = target.New(addr.IP.String(), addr.Port)
	cfg.TCPKeepAliveSec = 15
	cfg.WriteBufferSize = 32 * 1024
	cfg.ReadBufferSize = 32 * 1024
	cfg.TCPLingerSec = 0
	return cfg
}

func TestTCPClientTransport(t *testing.T) {
	addr := startEchoServer(t)

	m := NewTCPClientTransport(clientConfig(addr))
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	for _, payload := range [][]byte{{0x00, 0xA4, 0x04, 0x00, 0x07}, {}} {
		resp, err := m.Submit(payload, time.Second)
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if !bytes.Equal(resp, payload) {
			t.Fatalf("expected % X, got % X", payload, resp)
		}
	}

	if s := m.Stats(); s.Connects != 1 || s.Completed != 2 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestTCPForwarder(t *testing.T) {
	addr := startEchoServer(t)

	fwd := NewTCPForwarder(clientConfig(addr))
	resp, err := fwd.Forward(addr.IP.String(), addr.Port, []byte{0x80, 0xCA, 0x9F, 0x7F}, time.Second)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if !bytes.Equal(resp, []byte{0x80, 0xCA, 0x9F, 0x7F}) {
		t.Fatalf("unexpected response % X", resp)
	}
}

func TestUpgradeIgnoresNonTCPConnections(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	if err := upgradeConnection(a, common.SocketConf{ReadBufferSize: 1024}, common.TCPConf{TCPNoDelay: true}); err != nil {
		t.Fatalf("expected non-TCP connections to be skipped, got %v", err)
	}
}

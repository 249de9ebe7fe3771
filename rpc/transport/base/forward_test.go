package base

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ValentinKolb/dRelay/rpc/common"
)

func TestForward(t *testing.T) {
	peer := startPeer(t, echo)
	host, port := peer.hostPort()
	fwd := NewBaseForwarder(testConnector{}, common.DefaultClientConfig())

	for i := 0; i < 3; i++ {
		resp, err := fwd.Forward(host, port, []byte{0x00, 0xB0, byte(i)}, time.Second)
		if err != nil || !bytes.Equal(resp, []byte{0x00, 0xB0, byte(i)}) {
			t.Fatalf("forward %d: % X, %v", i, resp, err)
		}
	}

	// every forward uses its own connection
	if n := peer.accepted.Load(); n != 3 {
		t.Fatalf("expected 3 connections, got %d", n)
	}
}

func TestForwardZeroLength(t *testing.T) {
	peer := startPeer(t, echo)
	host, port := peer.hostPort()

	resp, err := NewBaseForwarder(testConnector{}, common.DefaultClientConfig()).Forward(host, port, []byte{}, time.Second)
	if err != nil || resp == nil || len(resp) != 0 {
		t.Fatalf("expected an empty response, got %#v, %v", resp, err)
	}
}

func TestForwardFailures(t *testing.T) {
	fwd := NewBaseForwarder(testConnector{}, common.DefaultClientConfig())

	t.Run("not configured", func(t *testing.T) {
		if _, err := fwd.Forward("", 0, []byte{0x01}, time.Second); !errors.Is(err, common.ErrConfigurationMissing) {
			t.Fatalf("expected ErrConfigurationMissing, got %v", err)
		}
	})

	t.Run("refused", func(t *testing.T) {
		resp, err := fwd.Forward("127.0.0.1", freePort(t), []byte{0x01}, time.Second)
		if resp != nil || !errors.Is(err, common.ErrConnectRefused) {
			t.Fatalf("expected ErrConnectRefused, got % X, %v", resp, err)
		}
	})

	t.Run("no answer", func(t *testing.T) {
		peer := startPeer(t, silent(make(chan []byte, 1)))
		host, port := peer.hostPort()

		start := time.Now()
		resp, err := fwd.Forward(host, port, []byte{0x01}, 50*time.Millisecond)
		if resp != nil || !errors.Is(err, common.ErrIO) {
			t.Fatalf("expected an i/o timeout, got % X, %v", resp, err)
		}
		var netErr net.Error
		if !errors.As(err, &netErr) || !netErr.Timeout() {
			t.Fatalf("expected the timeout as cause, got %v", err)
		}
		if d := time.Since(start); d > time.Second {
			t.Fatalf("forward took %s", d)
		}
	})

	t.Run("oversized", func(t *testing.T) {
		peer := startPeer(t, func(conn net.Conn) {
			if _, err := (FrameCodec{}).ReadFrame(conn); err != nil {
				return
			}
			_, _ = conn.Write(header(DefaultMaxFrameSize + 1))
		})
		host, port := peer.hostPort()

		if _, err := fwd.Forward(host, port, []byte{0x01}, time.Second); !errors.Is(err, common.ErrOversizedFrame) {
			t.Fatalf("expected ErrOversizedFrame, got %v", err)
		}
	})
	t.Run("partial zero bytes", func(t *testing.T) {
		peer := startPeer(t, func(conn net.Conn) {
			defer conn.Close()
			if _, err := (FrameCodec{}).ReadFrame(conn); err != nil {
				return
			}
			_, _ = conn.Write(header(10))
		})
		host, port := peer.hostPort()

		cfg := common.DefaultClientConfig()
		cfg.AllowPartial = true
		resp, err := NewBaseForwarder(testConnector{}, cfg).Forward(host, port, []byte{0x01}, time.Second)
		if resp != nil || !errors.Is(err, common.ErrTruncatedBody) {
			t.Fatalf("expected ErrTruncatedBody without response, got %#v, %v", resp, err)
		}
	})
}

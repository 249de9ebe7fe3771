package common

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPendingRequestCompleteOnce(t *testing.T) {
	req := NewPendingRequest([]byte{0x00, 0xA4}, time.Second)

	if req.IsCompleted() {
		t.Fatal("new request should not be completed")
	}
	if !req.Complete([]byte{0x90, 0x00}, nil) {
		t.Fatal("first Complete should report true")
	}
	if req.Complete(nil, ErrIO) {
		t.Fatal("second Complete should report false")
	}

	resp, err := req.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(resp, []byte{0x90, 0x00}) {
		t.Fatalf("expected first completion to win, got %X", resp)
	}
}

func TestPendingRequestLocalTimeout(t *testing.T) {
	req := NewPendingRequest(nil, 20*time.Millisecond)

	start := time.Now()
	resp, err := req.Wait()
	elapsed := time.Since(start)

	if resp != nil {
		t.Fatalf("expected no response, got %X", resp)
	}
	if !errors.Is(err, ErrLocalTimeout) {
		t.Fatalf("expected ErrLocalTimeout, got %v", err)
	}
	if elapsed < 20*time.Millisecond || elapsed > time.Second {
		t.Fatalf("wait returned after %s, expected about 20ms", elapsed)
	}

	// a late completion is recorded but does not fail
	if !req.Complete([]byte{0x01}, nil) {
		t.Fatal("late Complete should still be the first completion")
	}
	if !req.IsCompleted() {
		t.Fatal("request should be completed")
	}
}

func TestPendingRequestWaitContext(t *testing.T) {
	req := NewPendingRequest(nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := req.WaitContext(ctx)
	if !errors.Is(err, ErrLocalTimeout) {
		t.Fatalf("expected ErrLocalTimeout, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the context error to be wrapped, got %v", err)
	}
}

func TestPendingRequestConcurrentCompleters(t *testing.T) {
	req := NewPendingRequest(nil, time.Second)

	const n = 16
	var wg sync.WaitGroup
	wins := make(chan int, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			if req.Complete([]byte{byte(i)}, nil) {
				wins <- i
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	count := 0
	winner := -1
	for w := range wins {
		count++
		winner = w
	}
	if count != 1 {
		t.Fatalf("expected exactly one winning Complete, got %d", count)
	}

	resp, err := req.Wait()
	if err != nil || len(resp) != 1 || int(resp[0]) != winner {
		t.Fatalf("expected response of winner %d, got %X (%v)", winner, resp, err)
	}
}

func TestPendingRequestErrorCompletion(t *testing.T) {
	req := NewPendingRequest([]byte{0x01}, time.Second)
	req.Complete(nil, WrapError(RetCConnectRefused, "127.0.0.1:1", errors.New("refused")))

	resp, err := req.Wait()
	if resp != nil {
		t.Fatalf("expected nil response, got %X", resp)
	}
	if !errors.Is(err, ErrConnectRefused) {
		t.Fatalf("expected ErrConnectRefused, got %v", err)
	}
}

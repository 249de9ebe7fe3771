package common

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"same code", NewError(RetCOversizedFrame, "length 5000"), ErrOversizedFrame, true},
		{"other code", NewError(RetCOversizedFrame, ""), ErrTruncatedBody, false},
		{"wrapped with fmt", fmt.Errorf("dispatch: %w", ErrStopped), ErrStopped, true},
		{"cause visible", WrapError(RetCTruncatedBody, "", io.ErrUnexpectedEOF), io.ErrUnexpectedEOF, true},
		{"plain error", io.EOF, ErrIO, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.want)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	if c := CodeOf(fmt.Errorf("x: %w", ErrQueueFull)); c != RetCQueueFull {
		t.Errorf("expected %s, got %s", RetCQueueFull, c)
	}
	if c := CodeOf(io.EOF); c != 0 {
		t.Errorf("expected 0 for foreign errors, got %d", c)
	}
}

func TestDiscardsConnection(t *testing.T) {
	discard := []error{ErrTruncatedHeader, ErrTruncatedBody, ErrOversizedFrame, ErrIO, ErrInternal}
	keep := []error{ErrConnectRefused, ErrLocalTimeout, ErrStopped, ErrQueueFull, io.EOF}

	for _, err := range discard {
		if !DiscardsConnection(err) {
			t.Errorf("%v should discard the connection", err)
		}
	}
	for _, err := range keep {
		if DiscardsConnection(err) {
			t.Errorf("%v should not discard the connection", err)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	err := WrapError(RetCConnectTimeout, "10.0.0.1:9999", errors.New("i/o timeout"))
	if got, want := err.Error(), "connect timeout: 10.0.0.1:9999: i/o timeout"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got, want := ErrStopped.Error(), "stopped"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

package target

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	MinPort = 1
	MaxPort = 65535
)

var (
	// ErrNotConfigured is returned by Validate if the host is empty or the port is zero
	ErrNotConfigured = errors.New("relay target is not configured (empty host or port 0)")
	// ErrInvalidPort is returned by Validate if the port is outside 1-65535
	ErrInvalidPort = errors.New("relay target port must be within 1-65535")
)

// Target is the remote endpoint the relay forwards requests to.
type Target struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// New creates a target with surrounding whitespace removed from the host
func New(host string, port int) Target {
	return Target{Host: strings.TrimSpace(host), Port: port}
}

// IsConfigured reports whether both host and port are set.
// It does not check the port range, see Validate for that.
func (t Target) IsConfigured() bool {
	return strings.TrimSpace(t.Host) != "" && t.Port != 0
}

// Validate returns ErrNotConfigured or ErrInvalidPort if the target can not be dialed
func (t Target) Validate() error {
	if !t.IsConfigured() {
		return ErrNotConfigured
	}
	if t.Port < MinPort || t.Port > MaxPort {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, t.Port)
	}
	return nil
}

// Endpoint returns the dial address in host:port form (IPv6 hosts are bracketed)
func (t Target) Endpoint() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t Target) String() string {
	if !t.IsConfigured() {
		return "<not configured>"
	}
	return t.Endpoint()
}

// IStore persists the relay target between runs.
type IStore interface {
	// Load returns the stored target. A store without a target returns the zero Target and no error.
	Load() (Target, error)
	// Save validates and stores the target.
	Save(t Target) error
}

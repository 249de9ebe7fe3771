package common

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/dRelay/lib/target"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	// DefaultMaxFrameSize is the strict frame cap, large enough for any extended length APDU
	DefaultMaxFrameSize uint32 = 4096
	// LargeMaxFrameSize is the relaxed frame cap for peers that send bulk data over the relay
	LargeMaxFrameSize uint32 = 10_000_000

	DefaultConnectTimeout   = 5 * time.Second
	DefaultReadTimeout      = 5 * time.Second
	DefaultRequestTimeout   = 5 * time.Second
	DefaultReconnectBackoff = 500 * time.Millisecond
	DefaultIdleTimeout      = 60 * time.Second
)

// RelayMode selects how a request reaches the remote endpoint
type RelayMode string

const (
	// ModePersistent sends all requests over one long-lived connection owned by a dispatcher
	ModePersistent RelayMode = "persistent"
	// ModeOneShot opens a new connection for every request
	ModeOneShot RelayMode = "oneshot"
)

// ParseRelayMode converts a string to a RelayMode
func ParseRelayMode(s string) (RelayMode, error) {
	switch RelayMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModePersistent:
		return ModePersistent, nil
	case ModeOneShot, "one-shot":
		return ModeOneShot, nil
	default:
		return "", fmt.Errorf("invalid relay mode %q, must be one of %s, %s", s, ModePersistent, ModeOneShot)
	}
}

// --------------------------------------------------------------------------
// Socket options (shared by client and server)
// --------------------------------------------------------------------------

// SocketConf holds socket buffer sizes in bytes, 0 keeps the OS default
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP specific socket options
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	// TCPLingerSec < 0 keeps the OS default
	TCPLingerSec int
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

// ClientConfig configures the relay client side: where to send requests and how to frame them.
type ClientConfig struct {
	// Target is the remote endpoint
	Target target.Target
	Mode   RelayMode

	// ConnectTimeout bounds every dial
	ConnectTimeout time.Duration
	// ReadTimeout is the I/O deadline for writing a request and reading its response
	ReadTimeout time.Duration
	// RequestTimeout is how long a submitter waits for its response
	RequestTimeout time.Duration
	// ReconnectBackoff is the pause after a failed connect
	ReconnectBackoff time.Duration

	// MaxFrameSize caps the declared length of response frames
	MaxFrameSize uint32
	// AllowPartial delivers the bytes received so far if a response body is cut short
	AllowPartial bool
	// QueueCapacity bounds the request queue, 0 means unbounded
	QueueCapacity int

	SocketConf
	TCPConf
}

// DefaultClientConfig returns the strict defaults: 4096 byte frames, no partial delivery, unbounded queue
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Mode:             ModePersistent,
		ConnectTimeout:   DefaultConnectTimeout,
		ReadTimeout:      DefaultReadTimeout,
		RequestTimeout:   DefaultRequestTimeout,
		ReconnectBackoff: DefaultReconnectBackoff,
		MaxFrameSize:     DefaultMaxFrameSize,
		TCPConf: TCPConf{
			TCPNoDelay:   true,
			TCPLingerSec: -1,
		},
	}
}

// WithDefaults returns a copy where every zero duration, the zero frame cap and an all-zero
// TCPConf are replaced by the defaults. An all-zero TCPConf would otherwise disable TCP_NODELAY
// and set a linger of 0 (reset on close), so explicit socket options need at least one
// non-zero field, e.g. TCPLingerSec: -1.
func (c ClientConfig) WithDefaults() ClientConfig {
	if c.Mode == "" {
		c.Mode = ModePersistent
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.ReconnectBackoff < 0 {
		c.ReconnectBackoff = DefaultReconnectBackoff
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.TCPConf == (TCPConf{}) {
		c.TCPConf = DefaultClientConfig().TCPConf
	}
	return c
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Relay Client")
	addField("Target", c.Target.String())
	addField("Mode", string(c.Mode))
	addField("Connect Timeout", c.ConnectTimeout.String())
	addField("Read Timeout", c.ReadTimeout.String())
	addField("Request Timeout", c.RequestTimeout.String())
	addField("Reconnect Backoff", c.ReconnectBackoff.String())

	addSection("Framing")
	addField("Max Frame Size", fmt.Sprintf("%d bytes", c.MaxFrameSize))
	addField("Partial Delivery", strconv.FormatBool(c.AllowPartial))
	if c.QueueCapacity > 0 {
		addField("Queue Capacity", strconv.Itoa(c.QueueCapacity))
	} else {
		addField("Queue Capacity", "unbounded")
	}

	addSocketSection(addSection, addField, c.SocketConf, c.TCPConf)

	return sb.String()
}

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// ResponderMode selects the handler of the responder server
type ResponderMode string

const (
	// ResponderEcho answers every frame with its own payload
	ResponderEcho ResponderMode = "echo"
	// ResponderStatic answers every frame with a fixed payload
	ResponderStatic ResponderMode = "static"
	// ResponderTable looks the answer up in ResponseTable and falls back to StaticResponse
	ResponderTable ResponderMode = "table"
)

// ParseResponderMode converts a string to a ResponderMode
func ParseResponderMode(s string) (ResponderMode, error) {
	switch m := ResponderMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ResponderEcho, ResponderStatic, ResponderTable:
		return m, nil
	default:
		return "", fmt.Errorf("invalid responder %q, must be one of %s, %s, %s", s, ResponderEcho, ResponderStatic, ResponderTable)
	}
}

// ServerConfig configures the responder server, the remote end of the relay.
type ServerConfig struct {
	Endpoint string
	// IdleTimeout closes connections that send no request for this long, 0 disables it
	IdleTimeout  time.Duration
	MaxFrameSize uint32

	Responder      ResponderMode
	StaticResponse []byte
	// ResponseTable maps hex requests to hex responses
	ResponseTable map[string]string

	// RateLimit in requests per second per server, 0 disables it
	RateLimit float64
	RateBurst int
	// HandlerTimeout bounds a single handler call, 0 disables it
	HandlerTimeout time.Duration

	LogLevel string

	SocketConf
	TCPConf
}

// DefaultServerConfig returns an echo responder on 127.0.0.1:9999
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Endpoint:     "127.0.0.1:9999",
		IdleTimeout:  DefaultIdleTimeout,
		MaxFrameSize: DefaultMaxFrameSize,
		Responder:    ResponderEcho,
		LogLevel:     "info",
		TCPConf: TCPConf{
			TCPNoDelay:   true,
			TCPLingerSec: -1,
		},
	}
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Responder Server")
	addField("Endpoint", c.Endpoint)
	addField("Idle Timeout", c.IdleTimeout.String())
	addField("Max Frame Size", fmt.Sprintf("%d bytes", c.MaxFrameSize))

	addSection("Handler")
	addField("Responder", string(c.Responder))
	if c.Responder == ResponderStatic || c.Responder == ResponderTable {
		addField("Static Response", strings.ToUpper(hex.EncodeToString(c.StaticResponse)))
	}
	if c.Responder == ResponderTable {
		addField("Table Entries", strconv.Itoa(len(c.ResponseTable)))
	}
	if c.RateLimit > 0 {
		addField("Rate Limit", fmt.Sprintf("%.1f req/s (burst %d)", c.RateLimit, c.RateBurst))
	} else {
		addField("Rate Limit", "disabled")
	}
	if c.HandlerTimeout > 0 {
		addField("Handler Timeout", c.HandlerTimeout.String())
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	addSocketSection(addSection, addField, c.SocketConf, c.TCPConf)

	return sb.String()
}

func addSocketSection(addSection func(string), addField func(string, string), s SocketConf, t TCPConf) {
	addSection("Socket")
	addField("TCP NoDelay", strconv.FormatBool(t.TCPNoDelay))
	if t.TCPKeepAliveSec > 0 {
		addField("TCP KeepAlive", fmt.Sprintf("%d sec", t.TCPKeepAliveSec))
	}
	if t.TCPLingerSec >= 0 {
		addField("TCP Linger", fmt.Sprintf("%d sec", t.TCPLingerSec))
	}
	if s.WriteBufferSize > 0 {
		addField("Write Buffer", fmt.Sprintf("%d KB", s.WriteBufferSize/1024))
	}
	if s.ReadBufferSize > 0 {
		addField("Read Buffer", fmt.Sprintf("%d KB", s.ReadBufferSize/1024))
	}
}

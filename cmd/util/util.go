package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dRelay/lib/target"
	"github.com/ValentinKolb/dRelay/rpc/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// DefaultTargetFile is where the relay target is stored if no etcd endpoints are given
	DefaultTargetFile = "relay-target.yaml"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupRelayClientFlags adds the relay connection flags to a command
func SetupRelayClientFlags(cmd *cobra.Command) {
	defaults := common.DefaultClientConfig()

	key := "host"
	cmd.PersistentFlags().String(key, "", WrapString("Host of the remote relay endpoint. If empty, the target is loaded from the target store"))

	key = "port"
	cmd.PersistentFlags().Int(key, 0, WrapString("Port of the remote relay endpoint"))

	key = "mode"
	cmd.PersistentFlags().String(key, string(defaults.Mode), WrapString("How requests are relayed: persistent (one long-lived connection) or oneshot (a new connection per request)"))

	key = "connect-timeout"
	cmd.PersistentFlags().Duration(key, defaults.ConnectTimeout, WrapString("Timeout for establishing a connection"))

	key = "read-timeout"
	cmd.PersistentFlags().Duration(key, defaults.ReadTimeout, WrapString("I/O timeout for sending a request and reading its response"))

	key = "request-timeout"
	cmd.PersistentFlags().Duration(key, defaults.RequestTimeout, WrapString("How long a caller waits for a response"))

	key = "reconnect-backoff"
	cmd.PersistentFlags().Duration(key, defaults.ReconnectBackoff, WrapString("Pause after a failed connect"))

	key = "max-frame-size"
	cmd.PersistentFlags().Uint32(key, defaults.MaxFrameSize, WrapString(fmt.Sprintf("Largest accepted response frame in bytes (use %d for bulk data)", common.LargeMaxFrameSize)))

	key = "allow-partial"
	cmd.PersistentFlags().Bool(key, defaults.AllowPartial, WrapString("Deliver the bytes received so far if a response is cut short"))

	key = "queue-capacity"
	cmd.PersistentFlags().Int(key, defaults.QueueCapacity, WrapString("Maximum number of queued requests, 0 means unbounded"))

	key = "write-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The size of the socket write buffer (in KB, 0 keeps the OS default)"))

	key = "read-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The size of the socket read buffer (in KB, 0 keeps the OS default)"))

	key = "tcp-nodelay"
	cmd.PersistentFlags().Bool(key, defaults.TCPNoDelay, WrapString("Whether to enable TCP_NODELAY"))

	key = "tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval (in seconds, 0 keeps the OS default)"))

	key = "tcp-linger"
	cmd.PersistentFlags().Int(key, -1, WrapString("The linger time (in seconds, -1 keeps the OS default)"))

	SetupTargetStoreFlags(cmd)
	SetupLogFlags(cmd)
}

// SetupTargetStoreFlags adds the flags selecting where the relay target is persisted
func SetupTargetStoreFlags(cmd *cobra.Command) {
	key := "target-file"
	cmd.PersistentFlags().String(key, DefaultTargetFile, WrapString("Config file (yaml, json or toml) the relay target is stored in"))

	key = "etcd-endpoints"
	cmd.PersistentFlags().String(key, "", WrapString("Comma-separated etcd endpoints. If set, the relay target is stored in etcd instead of the target file"))

	key = "etcd-key"
	cmd.PersistentFlags().String(key, target.DefaultEtcdKey, WrapString("The etcd key of the relay target"))

	key = "etcd-timeout"
	cmd.PersistentFlags().Duration(key, common.DefaultConnectTimeout, WrapString("Timeout for etcd requests"))
}

// SetupLogFlags adds the log level flag
func SetupLogFlags(cmd *cobra.Command) {
	key := "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("The level at which logs will be output (debug, info, warn, error)"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("relay")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() (*common.ClientConfig, error) {
	mode, err := common.ParseRelayMode(viper.GetString("mode"))
	if err != nil {
		return nil, err
	}

	conf := &common.ClientConfig{
		Target:           target.New(viper.GetString("host"), viper.GetInt("port")),
		Mode:             mode,
		ConnectTimeout:   viper.GetDuration("connect-timeout"),
		ReadTimeout:      viper.GetDuration("read-timeout"),
		RequestTimeout:   viper.GetDuration("request-timeout"),
		ReconnectBackoff: viper.GetDuration("reconnect-backoff"),
		MaxFrameSize:     viper.GetUint32("max-frame-size"),
		AllowPartial:     viper.GetBool("allow-partial"),
		QueueCapacity:    viper.GetInt("queue-capacity"),
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("tcp-linger"),
		},
	}

	withDefaults := conf.WithDefaults()
	return &withDefaults, nil
}

// GetTargetStore creates the target store selected by the flags. The returned close function
// releases the etcd client and is a no-op for the file store.
func GetTargetStore() (target.IStore, func(), error) {
	if endpoints := viper.GetString("etcd-endpoints"); endpoints != "" {
		s, err := target.NewEtcdStore(strings.Split(endpoints, ","), viper.GetString("etcd-key"), viper.GetDuration("etcd-timeout"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to etcd: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	}

	path := viper.GetString("target-file")
	if path == "" {
		path = DefaultTargetFile
	}
	return target.NewFileStore(path), func() {}, nil
}

// InitLogging sets the level of all loggers from the log-level flag
func InitLogging() error {
	return common.InitLoggers(viper.GetString("log-level"))
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

package serve

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	cmdUtil "github.com/ValentinKolb/dRelay/cmd/util"
	"github.com/ValentinKolb/dRelay/rpc/common"
	"github.com/ValentinKolb/dRelay/rpc/server"
	"github.com/ValentinKolb/dRelay/rpc/transport/tcp"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start a responder for the relay",
		Long: `Start a responder: the remote end of the relay, answering every request frame.
Useful as stand-in card for tests and lab setups. The configuration can be set via
command line flags or environment variables. The format of the environment variables
is RELAY_<flag> (e.g. RELAY_IDLE_TIMEOUT=30s)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	defaults := common.DefaultServerConfig()

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, defaults.Endpoint, cmdUtil.WrapString("The address on which the responder will listen"))

	key = "idle-timeout"
	ServeCmd.PersistentFlags().Duration(key, defaults.IdleTimeout, cmdUtil.WrapString("Close connections that send no request for this long (0 disables it)"))

	key = "max-frame-size"
	ServeCmd.PersistentFlags().Uint32(key, defaults.MaxFrameSize, cmdUtil.WrapString("Largest accepted request frame in bytes"))

	key = "responder"
	ServeCmd.PersistentFlags().String(key, string(defaults.Responder), cmdUtil.WrapString("How requests are answered: echo (the request itself), static (--static-response) or table (--response-table, falling back to --static-response)"))

	key = "static-response"
	ServeCmd.PersistentFlags().String(key, "9000", cmdUtil.WrapString("Hex response of the static responder and fallback of the table responder"))

	key = "response-table"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Config file (yaml, json or toml) with a 'responses' map of hex request to hex response"))

	key = "rate-limit"
	ServeCmd.PersistentFlags().Float64(key, 0, cmdUtil.WrapString("Maximum requests per second, excess requests are answered with 6985 (0 disables it)"))

	key = "rate-burst"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("Burst size of the rate limit"))

	key = "handler-timeout"
	ServeCmd.PersistentFlags().Duration(key, 0, cmdUtil.WrapString("Answer with 6985 if a response takes longer (0 disables it)"))

	key = "tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, defaults.TCPNoDelay, cmdUtil.WrapString("Whether to enable TCP_NODELAY"))

	key = "tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval (in seconds, 0 keeps the OS default)"))

	key = "tcp-linger"
	ServeCmd.PersistentFlags().Int(key, -1, cmdUtil.WrapString("The linger time (in seconds, -1 keeps the OS default)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	responder, err := common.ParseResponderMode(viper.GetString("responder"))
	if err != nil {
		return err
	}

	staticResponse, err := common.ParseAPDU(viper.GetString("static-response"))
	if err != nil {
		return fmt.Errorf("invalid static response: %w", err)
	}

	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.IdleTimeout = viper.GetDuration("idle-timeout")
	serveCmdConfig.MaxFrameSize = viper.GetUint32("max-frame-size")
	serveCmdConfig.Responder = responder
	serveCmdConfig.StaticResponse = staticResponse
	serveCmdConfig.RateLimit = viper.GetFloat64("rate-limit")
	serveCmdConfig.RateBurst = viper.GetInt("rate-burst")
	serveCmdConfig.HandlerTimeout = viper.GetDuration("handler-timeout")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.TCPConf = common.TCPConf{
		TCPNoDelay:      viper.GetBool("tcp-nodelay"),
		TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
		TCPLingerSec:    viper.GetInt("tcp-linger"),
	}

	// parse the response table
	if path := viper.GetString("response-table"); path != "" {
		table, err := readResponseTable(path)
		if err != nil {
			return err
		}
		serveCmdConfig.ResponseTable = table
	} else if responder == common.ResponderTable {
		return fmt.Errorf("the table responder requires --response-table")
	}

	return nil
}

// run starts the responder and blocks until SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	if err := common.InitLoggers(serveCmdConfig.LogLevel); err != nil {
		return err
	}

	serv, err := server.NewRelayServerFromConfig(*serveCmdConfig, tcp.NewTCPServerTransport())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = serv.Close()
	}()

	return serv.Serve()
}

// readResponseTable reads the 'responses' map from a config file. A private viper instance
// is used, since viper lower-cases keys and the global instance also holds the flags.
func readResponseTable(path string) (map[string]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read response table: %w", err)
	}

	table := v.GetStringMapString("responses")
	if len(table) == 0 {
		return nil, fmt.Errorf("response table %s has no 'responses' entries", path)
	}
	return table, nil
}

// initConfig reads in ENV variables and .env files if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("relay")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

package relay

import (
	"github.com/ValentinKolb/dRelay/cmd/util"
	"github.com/ValentinKolb/dRelay/rpc/client"
	"github.com/ValentinKolb/dRelay/rpc/common"
	"github.com/ValentinKolb/dRelay/rpc/transport"
	"github.com/ValentinKolb/dRelay/rpc/transport/tcp"
	"github.com/spf13/cobra"
)

var (
	relayConfig    *common.ClientConfig
	relayManager   transport.IRelayClientTransport
	relayForwarder transport.IRelayForwarder
	relayClient    *client.RelayClient

	// RelayCommands represents the relay command group
	RelayCommands = &cobra.Command{
		Use:   "relay",
		Short: "Relay APDUs to a remote endpoint",
		Long: `Relay command APDUs to a remote endpoint over TCP and print the response APDUs.

The target is taken from --host/--port or, if those are not set, from the target
store (a local file or an etcd key, see "relay target").`,
		PersistentPreRunE: setupRelayClient,
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if relayClient != nil {
				return relayClient.Close()
			}
			return nil
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add relay flags to the relay command
	util.SetupRelayClientFlags(RelayCommands)

	// Add subcommands
	RelayCommands.AddCommand(submitCmd)
	RelayCommands.AddCommand(forwardCmd)
	RelayCommands.AddCommand(perfTestCmd)
	RelayCommands.AddCommand(targetCmd)
}

// setupRelayClient initializes the relay client
func setupRelayClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := util.InitLogging(); err != nil {
		return err
	}

	config, err := util.GetClientConfig()
	if err != nil {
		return err
	}
	relayConfig = config

	relayManager = tcp.NewTCPClientTransport(*config)
	relayForwarder = tcp.NewTCPForwarder(*config)
	relayClient = client.NewRelayClient(*config, relayManager, relayForwarder)

	// flags win over the stored target
	if config.Target.IsConfigured() {
		return nil
	}

	store, closeStore, err := util.GetTargetStore()
	if err != nil {
		return err
	}
	defer closeStore()

	// the target commands work without a stored target
	if err := relayClient.LoadTarget(store); err != nil && common.CodeOf(err) != common.RetCConfigurationMissing {
		return err
	}
	relayConfig.Target = relayClient.Target()
	return nil
}

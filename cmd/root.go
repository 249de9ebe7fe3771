package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dRelay/cmd/relay"
	"github.com/ValentinKolb/dRelay/cmd/serve"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "drelay",
		Short: "relay APDUs over TCP",
		Long: fmt.Sprintf(`dRelay (v%s)

Relays contactless-card command APDUs from a card-emulation endpoint to a remote
reader endpoint over TCP, using length-prefixed frames on one persistent connection
or a new connection per request.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dRelay",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dRelay v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(relay.RelayCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package relay

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ValentinKolb/dRelay/cmd/util"
	"github.com/ValentinKolb/dRelay/lib/target"
	"github.com/spf13/cobra"
)

var (
	targetCmd = &cobra.Command{
		Use:   "target",
		Short: "Show or change the stored relay target",
	}
	targetGetCmd = &cobra.Command{
		Use:   "get",
		Short: "Prints the stored relay target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := util.GetTargetStore()
			if err != nil {
				return err
			}
			defer closeStore()

			tgt, err := store.Load()
			if err != nil {
				return err
			}
			fmt.Println(tgt)
			return nil
		},
	}
	targetSetCmd = &cobra.Command{
		Use:   "set [host] [port]",
		Short: "Stores the relay target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("port must be a number: %w", err)
			}

			store, closeStore, err := util.GetTargetStore()
			if err != nil {
				return err
			}
			defer closeStore()

			tgt := target.New(args[0], port)
			if err := store.Save(tgt); err != nil {
				return err
			}
			fmt.Printf("relay target set to %s\n", tgt)
			return nil
		},
	}
	targetWatchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Prints every change of the relay target stored in etcd",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := util.GetTargetStore()
			if err != nil {
				return err
			}
			defer closeStore()

			etcdStore, ok := store.(*target.EtcdStore)
			if !ok {
				return fmt.Errorf("watch requires an etcd target store (--etcd-endpoints)")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = etcdStore.Watch(ctx, func(tgt target.Target) {
				if relayClient != nil && tgt.IsConfigured() {
					if err := relayClient.SetTarget(tgt.Host, tgt.Port); err != nil {
						fmt.Printf("ignoring invalid target %s: %v\n", tgt, err)
						return
					}
				}
				fmt.Println(tgt)
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
)

func init() {
	targetCmd.AddCommand(targetGetCmd)
	targetCmd.AddCommand(targetSetCmd)
	targetCmd.AddCommand(targetWatchCmd)
}

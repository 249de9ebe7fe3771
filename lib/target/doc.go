// Package target holds the remote endpoint of the relay and the stores that persist it
// between runs.
//
// A Target with an empty host or port 0 is "not configured". The relay refuses to start
// without a configured target and the card-emulation side answers every command with 6F00.
//
// Stores:
//
//   - NewFileStore: a local config file (yaml, json or toml, chosen by extension) read and
//     written through a private viper instance.
//
//   - NewEtcdStore: a JSON value under one etcd key. Several relay instances can share the
//     target, and Watch reports every change so a running relay can be reconfigured.
package target

// Package cmd implements the command-line interface of dRelay. It provides a
// hierarchical command structure for relaying APDUs and for running a responder
// that answers them.
//
// The package is organized into several subpackages:
//
//   - relay: Commands for relaying APDUs (submit, forward, perf) and for managing the
//     stored relay target (target get, set, watch)
//   - serve: Command for starting a responder (echo, static or table based answers)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See drelay -help for a list of all commands.
package cmd

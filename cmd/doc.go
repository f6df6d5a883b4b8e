// Package cmd implements the command-line interface of dTask. It provides a
// hierarchical command structure with operations for running the server and
// interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Commands for starting and configuring the dTask server
//   - task: Client commands for task operations (create, pending, done, batch, perf, ...)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set with an environment variable DTASK_<FLAG> (dashes
// become underscores), in a .env or .env.local file, or in the config file passed
// with --config.
//
// See dtask --help for a list of all commands.
package cmd

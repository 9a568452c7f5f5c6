// Package cmd implements the command-line interface for the keyval engine.
//
// The package is organized into several subpackages:
//
//   - serve: Commands for starting and configuring the keyval server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See keyval -help for a list of all commands.
package cmd

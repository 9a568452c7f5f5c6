package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keyvaldb/keyval/cmd/serve"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "keyval",
		Short: "transactional key-value store",
		Long: fmt.Sprintf(`keyval (v%s)

A transactional key-value storage engine with optimistic
concurrency control, full-text search indexes and operation
metrics, backed by SQLite.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of keyval",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("keyval v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Command riftd runs one RIFT node as a standalone daemon. Its show and set
// commands build a separate Node from the same configuration document and
// report that Node's state as of construction; they do not attach to a
// running daemon.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:     "riftd",
	Short:   "RIFT routing daemon",
	Long:    `riftd runs one RIFT node: adjacency bring-up, flooding, SPF, and RIB/FIB maintenance over a fat-tree fabric.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "node configuration file (YAML)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(setCmd)
}

// Commands are defined in separate files:
// - runCmd in run.go
// - showCmd and its subcommands in show.go
// - setCmd and its subcommands in set.go

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fabricrift/riftgo/internal/adjacency"
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Mutate a node's runtime state",
}

func init() {
	setCmd.AddCommand(setInterfaceFailureCmd)
}

var setInterfaceFailureCmd = &cobra.Command{
	Use:   "interface <name> failure <ok|failed|tx-failed|rx-failed>",
	Args:  cobra.ExactArgs(3),
	Short: "Inject one- or two-sided loss on an interface for testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, kw, mode := args[0], args[1], args[2]
		if kw != "failure" {
			return fmt.Errorf("unknown set interface sub-keyword %q, expected \"failure\"", kw)
		}
		fm, err := parseFailureMode(mode)
		if err != nil {
			return err
		}
		n, err := loadInspectNode()
		if err != nil {
			return err
		}
		if !n.SetInterfaceFailure(name, fm) {
			return fmt.Errorf("no such interface %q", name)
		}
		printf("%s: failure=%s\n", name, fm)
		return nil
	},
}

func parseFailureMode(s string) (adjacency.FailureMode, error) {
	switch s {
	case "ok":
		return adjacency.FailureOK, nil
	case "failed":
		return adjacency.FailureFailed, nil
	case "tx-failed":
		return adjacency.FailureTXFailed, nil
	case "rx-failed":
		return adjacency.FailureRXFailed, nil
	default:
		return 0, fmt.Errorf("unknown failure mode %q (want ok|failed|tx-failed|rx-failed)", s)
	}
}

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fabricrift/riftgo/internal/packet"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Inspect a node's state",
}

var showDetail bool
var showDirection string

func init() {
	showCmd.AddCommand(showInterfacesCmd, showFSMHistoryCmd, showQueuesCmd, showTIEsCmd, showSPFCmd, showRIBCmd, showFIBCmd)
	showInterfacesCmd.Flags().BoolVar(&showDetail, "detail", false, "include neighbor and failure-mode detail")
	showSPFCmd.Flags().StringVar(&showDirection, "direction", "", "south or north (default both)")
}

var showInterfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Args:  cobra.NoArgs,
	Short: "List configured interfaces and their adjacency state",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := loadInspectNode()
		if err != nil {
			return err
		}
		summaries := n.Interfaces()
		sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
		for _, s := range summaries {
			if !showDetail {
				printf("%-16s %s\n", s.Name, s.State)
				continue
			}
			neighbor := "-"
			if s.Neighbor != nil {
				neighbor = fmt.Sprintf("system=%d level=%s", s.Neighbor.SystemID, s.Neighbor.Level)
			}
			printf("%-16s state=%-10s failure=%-10s neighbor=%s\n", s.Name, s.State, s.FailureMode, neighbor)
		}
		return nil
	},
}

var showFSMHistoryCmd = &cobra.Command{
	Use:   "fsm-history <interface>",
	Args:  cobra.ExactArgs(1),
	Short: "Show an interface's adjacency FSM transition history",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := loadInspectNode()
		if err != nil {
			return err
		}
		history, ok := n.FSMHistory(args[0])
		if !ok {
			return fmt.Errorf("no such interface %q", args[0])
		}
		for _, e := range history {
			printf("%s  %-16s --[%v]--> %s\n", e.At.Format("15:04:05.000"), e.From, e.Event, e.To)
		}
		return nil
	},
}

var showQueuesCmd = &cobra.Command{
	Use:   "queues <interface>",
	Args:  cobra.ExactArgs(1),
	Short: "Show an interface's flood queue contents",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := loadInspectNode()
		if err != nil {
			return err
		}
		q, ok := n.Queues(args[0])
		if !ok {
			return fmt.Errorf("no such interface %q", args[0])
		}
		printQueue("TX", q.TX.Items())
		printQueue("RTX", q.RTX.Items())
		printQueue("REQ", q.REQ.Items())
		printQueue("ACK", q.ACK.Items())
		return nil
	},
}

func printQueue(name string, ids []packet.TIEID) {
	printf("%s (%d):\n", name, len(ids))
	for _, id := range ids {
		printf("  %s\n", id)
	}
}

var showTIEsCmd = &cobra.Command{
	Use:   "ties",
	Args:  cobra.NoArgs,
	Short: "List the ordered TIE database",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := loadInspectNode()
		if err != nil {
			return err
		}
		entries := n.Store().All()
		for _, e := range entries {
			printf("%-40s seq=%-6d lifetime=%-6d\n", e.Header.ID, e.Header.SeqNr, e.Header.RemainingLifetime)
		}
		return nil
	},
}

var showSPFCmd = &cobra.Command{
	Use:   "spf",
	Args:  cobra.NoArgs,
	Short: "Show the most recent SPF run's destination tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := loadInspectNode()
		if err != nil {
			return err
		}
		dirs := []packet.Direction{packet.South, packet.North}
		switch showDirection {
		case "south":
			dirs = []packet.Direction{packet.South}
		case "north":
			dirs = []packet.Direction{packet.North}
		}
		for _, dir := range dirs {
			result := n.SPFResult(dir)
			printf("== %s ==\n", dir)
			printf("nodes: %d, prefixes: %d\n", len(result.Nodes), len(result.Prefixes))
			for sysID, dest := range result.Nodes {
				printf("  node %-6d cost=%-4d next_hops=%v\n", sysID, dest.Cost, dest.NextHops)
			}
			for pfx, dest := range result.Prefixes {
				printf("  prefix %-20s cost=%-4d next_hops=%v\n", pfx, dest.Cost, dest.NextHops)
			}
		}
		return nil
	},
}

var showRIBCmd = &cobra.Command{
	Use:   "rib",
	Args:  cobra.NoArgs,
	Short: "List RIB routes",
	RunE:  showRoutes,
}

var showFIBCmd = &cobra.Command{
	Use:   "fib",
	Args:  cobra.NoArgs,
	Short: "List FIB routes (alias of show rib; the FIB is the RIB's installed view)",
	RunE:  showRoutes,
}

func showRoutes(cmd *cobra.Command, args []string) error {
	n, err := loadInspectNode()
	if err != nil {
		return err
	}
	for _, route := range n.RIB().All() {
		printf("%-20s owner=%-8s next_hops=%v\n", route.Prefix, route.Owner, route.NextHops)
	}
	return nil
}

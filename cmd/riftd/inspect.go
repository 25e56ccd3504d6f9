package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fabricrift/riftgo/internal/config"
	"github.com/fabricrift/riftgo/internal/logging"
	"github.com/fabricrift/riftgo/internal/metrics"
	"github.com/fabricrift/riftgo/internal/node"
	"github.com/fabricrift/riftgo/internal/packet"
)

// discardTransport satisfies node.Transport for the show/set commands.
// SPEC_FULL.md §A.3 specifies no separate RPC layer: riftd links the node
// package directly rather than attaching to a background daemon process,
// so these commands build a Node from the same configuration document
// run would use and report its state as of construction.
type discardTransport struct{}

func (discardTransport) Send(string, string, uint16, packet.ProtocolPacket) error { return nil }

// loadInspectNode builds a Node from --config for the show/set commands.
func loadInspectNode() (*node.Node, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("--config flag is required")
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logging.New(logging.Config{Level: logging.LevelError, Output: io.Discard})
	return node.New(cfg, discardTransport{}, nil, log, metrics.New()), nil
}

func printf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, format, args...)
}

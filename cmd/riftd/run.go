package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fabricrift/riftgo/internal/config"
	"github.com/fabricrift/riftgo/internal/logging"
	"github.com/fabricrift/riftgo/internal/metrics"
	"github.com/fabricrift/riftgo/internal/node"
	"github.com/fabricrift/riftgo/internal/packet"
	"github.com/fabricrift/riftgo/internal/transport"
)

var (
	logLevel   string
	logFormat  string
	metricsAddr string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Args:  cobra.NoArgs,
	Short: "Run a node until signaled",
	Long:  `Loads the node's configuration, binds its UDP sockets, and drives its event loop until SIGINT/SIGTERM.`,
	RunE:  runNode,
}

func init() {
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve /metrics on (empty disables)")
}

func runNode(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("--config flag is required")
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New(logging.Config{
		Level:  logging.Level(logLevel),
		Format: logging.Format(logFormat),
		Output: os.Stdout,
	}).With("node", cfg.Name)

	reg := metrics.New()

	codec := packet.NewGobCodec()
	udp, err := transport.New(cfg, codec, log)
	if err != nil {
		return fmt.Errorf("bind transport: %w", err)
	}
	defer udp.Close()

	n := node.New(cfg, udp, nil, log, reg)
	udp.Listen(n.Inbound())

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", reg.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server stopped", err)
			}
		}()
		defer srv.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info(fmt.Sprintf("starting node %q (system id %d)", cfg.Name, cfg.SystemID))
	n.Run(ctx)
	log.Info("node stopped")
	return nil
}

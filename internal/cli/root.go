// Package cli implements the scanrelay command line.
package cli

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/arloliu/scanrelay"
	"github.com/arloliu/scanrelay/internal/logging"
)

// version is set at build time with -ldflags "-X github.com/arloliu/scanrelay/internal/cli.version=...".
var version = "dev"

var (
	configPath string
	verbose    bool
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "scanrelay",
	Short: "Relay scanned pages to a document server over NATS",
	Long: `scanrelay moves scanned images from a scanner host to a document server.

The producer groups consecutive img_NNN images into PDF documents and sends
them as chunks over NATS JetStream. The consumer reassembles the documents,
logs the producer's status and pushes timeout changes back to it.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the --config file, or returns defaults when none is given.
func loadConfig() (scanrelay.Config, error) {
	if configPath == "" {
		cfg := scanrelay.DefaultConfig()
		return cfg, cfg.Validate()
	}

	return scanrelay.LoadConfig(configPath)
}

func newLogger(cmd *cobra.Command) (*logging.SlogLogger, error) {
	return logging.New(cmd.ErrOrStderr(), logFormat, verbose)
}

// connect dials the broker and logs connection state changes.
func connect(url, name string, log scanrelay.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected from NATS", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected to NATS", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", url, err)
	}

	return nc, nil
}

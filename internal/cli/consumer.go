package cli

import (
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/arloliu/scanrelay"
)

var consumerCmd = &cobra.Command{
	Use:   "consumer",
	Short: "Run the document server side",
	Long: `Reassembles documents from the chunk queue into the output directory,
records producer status snapshots and forwards timeout file changes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runService(cmd, "consumer", func(cfg *scanrelay.Config, nc *nats.Conn, opts ...scanrelay.Option) (service, error) {
			return scanrelay.NewConsumer(cfg, nc, opts...)
		})
	},
}

func init() {
	rootCmd.AddCommand(consumerCmd)
}

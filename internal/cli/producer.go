package cli

import (
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/arloliu/scanrelay"
)

var producerCmd = &cobra.Command{
	Use:   "producer",
	Short: "Run the scanner side",
	Long: `Watches the input directory for img_NNN images, assembles consecutive
images into PDF documents and publishes them on the chunk queue.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runService(cmd, "producer", func(cfg *scanrelay.Config, nc *nats.Conn, opts ...scanrelay.Option) (service, error) {
			return scanrelay.NewProducer(cfg, nc, opts...)
		})
	},
}

func init() {
	rootCmd.AddCommand(producerCmd)
}

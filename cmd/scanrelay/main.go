// Command scanrelay runs the scan relay producer or consumer.
package main

import (
	"os"

	"github.com/arloliu/scanrelay/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

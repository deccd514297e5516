package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/scanrelay/internal/ledger"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the consumer ledger",
	Long: `Reads the SQLite ledger written by the consumer. The database path comes
from consumer.ledgerPath in the config file, or from --db.`,
}

var ledgerDocumentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List reassembled documents, newest first",
	Args:  cobra.NoArgs,
	RunE:  runLedgerDocuments,
}

var ledgerSnapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List received status snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE:  runLedgerSnapshots,
}

var (
	ledgerDB    string
	ledgerLimit int
)

func init() {
	ledgerCmd.PersistentFlags().StringVar(&ledgerDB, "db", "", "ledger database (overrides consumer.ledgerPath)")
	ledgerCmd.PersistentFlags().IntVarP(&ledgerLimit, "limit", "n", 20, "maximum number of records")

	ledgerCmd.AddCommand(ledgerDocumentsCmd)
	ledgerCmd.AddCommand(ledgerSnapshotsCmd)
	rootCmd.AddCommand(ledgerCmd)
}

// openLedger opens an existing ledger; it never creates one.
func openLedger() (*ledger.Ledger, error) {
	path := ledgerDB
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.Consumer.LedgerPath
	}
	if path == "" {
		return nil, errors.New("no ledger configured: set consumer.ledgerPath or pass --db")
	}
	if ledgerLimit <= 0 {
		return nil, fmt.Errorf("--limit must be positive, got %d", ledgerLimit)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("ledger %s: %w", path, err)
	}

	return ledger.Open(path)
}

func runLedgerDocuments(cmd *cobra.Command, _ []string) error {
	led, err := openLedger()
	if err != nil {
		return err
	}
	defer led.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	docs, err := led.Documents(ctx, ledgerLimit)
	if err != nil {
		return err
	}

	if len(docs) == 0 {
		cmd.Println("No documents recorded")
		return nil
	}

	for _, d := range docs {
		cmd.Printf("%s  %s\n", d.WrittenAt.Local().Format(time.DateTime), d.Path)
		cmd.Printf("    Document:   %s\n", d.DocumentID)
		cmd.Printf("    Size:       %d bytes in %d chunks\n", d.Size, d.Chunks)
		cmd.Printf("    Digest:     %016x\n", d.Digest)
		if d.Violations > 0 {
			cmd.Printf("    Violations: %d\n", d.Violations)
		}
	}
	cmd.Printf("Total: %d documents\n", len(docs))

	return nil
}

func runLedgerSnapshots(cmd *cobra.Command, _ []string) error {
	led, err := openLedger()
	if err != nil {
		return err
	}
	defer led.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	snaps, err := led.Snapshots(ctx, ledgerLimit)
	if err != nil {
		return err
	}

	if len(snaps) == 0 {
		cmd.Println("No snapshots recorded")
		return nil
	}

	for _, s := range snaps {
		cmd.Printf("%s  %-10s  timeout %dms\n", s.Timestamp, s.Status, s.TimeoutMillis)
	}
	cmd.Printf("Total: %d snapshots\n", len(snaps))

	return nil
}

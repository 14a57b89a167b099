package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/librarian/internal/core/ledger"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the chapter image failure ledger",
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every recorded failure key",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		l := ledger.Load(ledger.PathIn(cfg.Maintenance.CachePath))
		for _, key := range l.Keys() {
			fmt.Println(key)
		}
		slog.Info("Ledger loaded", "path", l.Path(), "entries", l.Len())
	},
}

var ledgerClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget all failures so every item is retried",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		l := ledger.Load(ledger.PathIn(cfg.Maintenance.CachePath))
		n := l.Len()
		if err := l.Clear(); err != nil {
			slog.Error("Failed to clear ledger", "path", l.Path(), "error", err)
			os.Exit(1)
		}
		slog.Info("Ledger cleared", "path", l.Path(), "removed", n)
	},
}

func init() {
	ledgerCmd.AddCommand(ledgerShowCmd, ledgerClearCmd)
	rootCmd.AddCommand(ledgerCmd)
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/librarian/internal/control"
	"github.com/vietddude/librarian/internal/core/config"
	"github.com/vietddude/librarian/internal/maintenance/batch"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the chapter image task once and exit",
	Run:   runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := runChapters(ctx, cfg)
	stop()
	os.Exit(code)
}

// runChapters returns the process exit code. The app is always stopped before
// it returns so storage and redis are closed.
func runChapters(ctx context.Context, cfg *config.AppConfig) int {
	app, err := control.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize Librarian", "error", err)
		return 1
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := app.Stop(stopCtx); err != nil {
			slog.Warn("Error during shutdown", "error", err)
		}
	}()

	run, err := app.Chapters().RunNow(ctx)
	if errors.Is(err, batch.ErrRunInProgress) {
		slog.Error("Another run holds the lock")
		return 1
	}
	if run == nil {
		slog.Error("Run failed to start", "error", err)
		return 1
	}

	fmt.Printf("run %s %s: %d processed, %d failed, %d skipped of %d\n",
		run.ID, run.Status, run.Processed, run.Failed, run.Skipped, run.Total)
	if err != nil {
		slog.Error("Run did not complete", "error", err)
		return 1
	}
	return 0
}

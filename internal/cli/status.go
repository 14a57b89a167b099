package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/librarian/internal/core/config"
	"github.com/vietddude/librarian/internal/infra/gateway"
	"github.com/vietddude/librarian/internal/infra/storage/postgres"
	"github.com/vietddude/librarian/internal/maintenance/chapters"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent chapter image runs and provider reachability",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "number of runs to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	defer func() {
		_ = w.Flush()
	}()

	if cfg.Database.URL != "" {
		printRuns(ctx, w, cfg)
	} else {
		slog.Warn("No database configured, run history unavailable")
	}

	_, _ = fmt.Fprintln(w, "\nPROVIDER\tENABLED\tENDPOINT")
	printEndpoint(ctx, w, "requests", cfg.Requests)
	printEndpoint(ctx, w, "listings", cfg.Listings.EndpointConfig)
}

func printRuns(ctx context.Context, w *tabwriter.Writer, cfg *config.AppConfig) {
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	runs, err := postgres.NewRunRepo(db).ListRecent(ctx, chapters.Task, statusLimit)
	if err != nil {
		slog.Error("Failed to query runs", "error", err)
		os.Exit(1)
	}

	_, _ = fmt.Fprintln(w, "RUN\tSTATUS\tSTARTED\tTOTAL\tFAILED\tSKIPPED\tPROGRESS")
	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%.1f%%\n",
			r.ID, r.Status, r.StartedAt.Format(time.RFC3339), r.Total, r.Failed, r.Skipped, r.Progress)
	}
}

func printEndpoint(ctx context.Context, w *tabwriter.Writer, name string, ec config.EndpointConfig) {
	if !ec.Reachable() {
		_, _ = fmt.Fprintf(w, "%s\tno\t-\n", name)
		return
	}

	var prober gateway.Prober = gateway.NewHTTPProber(ec.ProbePath, ec.APIKey)
	if ec.ProbeGRPC {
		prober = &gateway.GRPCProber{}
	}
	url, ok := gateway.NewSelector(prober, ec.ProbeTimeout).SelectConcurrent(ctx, ec.URLs)
	if !ok {
		url = "unreachable"
	}
	_, _ = fmt.Fprintf(w, "%s\tyes\t%s\n", name, url)
}

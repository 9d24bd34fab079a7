package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the offline queue",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()

	app := openQueue(ctx, cfg)
	defer app.Close()

	items, err := app.Queue.Items(ctx)
	if err != nil {
		slog.Error("Failed to read queue", "error", err)
		os.Exit(1)
	}
	last, err := app.Queue.LastSyncAt(ctx)
	if err != nil {
		slog.Error("Failed to read last sync time", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tRETRIES\tCREATED\tERROR")
	for _, it := range items {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			it.ID,
			it.Type,
			it.Status,
			it.RetryCount,
			time.UnixMilli(it.CreatedAt).Format(time.RFC3339),
			it.ErrorMessage,
		)
	}
	_ = w.Flush()

	lastSync := "never"
	if !last.IsZero() {
		lastSync = last.Format(time.RFC3339)
	}
	fmt.Printf("\n%d/%d items, last sync: %s\n", len(items), app.Queue.Config().MaxSize, lastSync)
}

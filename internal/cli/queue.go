package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/vietddude/resilience/internal/core/domain"
)

var purgeAll bool

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <type> <json-payload>",
	Short: "Add an action to the offline queue",
	Args:  cobra.ExactArgs(2),
	Run:   runEnqueue,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Process pending queue items once",
	Run:   runSync,
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove failed items from the queue",
	Run:   runPurge,
}

func init() {
	purgeCmd.Flags().BoolVar(&purgeAll, "all", false, "remove every item, not only failed ones")
	rootCmd.AddCommand(enqueueCmd, syncCmd, purgeCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()

	typ := domain.ActionType(args[0])
	if !slices.Contains(domain.ActionTypes, typ) {
		slog.Error("Unknown action type", "type", typ, "known", domain.ActionTypes)
		os.Exit(1)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(args[1]), &payload); err != nil {
		slog.Error("Invalid payload", "error", err)
		os.Exit(1)
	}

	app := openQueue(ctx, cfg)
	defer app.Close()

	item, err := app.Queue.Enqueue(ctx, typ, payload)
	if err != nil {
		slog.Error("Failed to enqueue", "error", err)
		os.Exit(1)
	}
	fmt.Println(item.ID)
}

func runSync(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()

	app := openQueue(ctx, cfg)
	defer app.Close()

	res, _, err := app.SyncNow(ctx)
	if err != nil {
		slog.Error("Sync finished with errors", "error", err)
	}
	fmt.Printf("synced: %d, failed: %d\n", res.Success, res.Failed)
}

func runPurge(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()

	app := openQueue(ctx, cfg)
	defer app.Close()

	var statuses []domain.SyncStatus
	if !purgeAll {
		statuses = append(statuses, domain.SyncStatusFailed)
	}
	n, err := app.Queue.Purge(ctx, statuses...)
	if err != nil {
		slog.Error("Failed to purge queue", "error", err)
		os.Exit(1)
	}
	fmt.Printf("removed %d items\n", n)
}

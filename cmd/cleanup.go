package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/database"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete attendance sessions older than the retention period",
	Long: `Delete attendance sessions (and their per-student rows) created more
than --days days ago. Defaults to RETENTION_DAYS (30).`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().Int("days", 0, "Retention in days (default from RETENTION_DAYS)")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	days := cfg.Storage.RetentionDays
	if cmd.Flags().Changed("days") {
		days = mustGetInt(cmd, "days")
	}
	if days <= 0 {
		return errors.New("--days must be positive")
	}

	if err := connectDatabase(cfg); err != nil {
		return err
	}
	ctx := context.Background()
	store, err := database.GetSessionStore(ctx)
	if err != nil {
		return err
	}

	if last, err := store.LastCleanupRun(ctx); err == nil {
		fmt.Printf("Previous cleanup: %s (%d sessions)\n", last.RanAt.Format(time.RFC3339), last.DeletedSessions)
	} else if !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("failed to read cleanup history: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	deleted, err := store.DeleteSessionsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	fmt.Printf("Deleted %d sessions created before %s\n", deleted, cutoff.Format("2006-01-02"))
	return nil
}

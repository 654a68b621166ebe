package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/database"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List attendance sessions of a class",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print the stored result of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)

	sessionsCmd.Flags().String("class", "", "Class ID")
	sessionsCmd.Flags().Int("limit", constants.DefaultSessionPageSize, "Maximum number of sessions")
	_ = sessionsCmd.MarkFlagRequired("class")
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	classID := mustGetString(cmd, "class")

	cfg := config.Load()
	if err := connectDatabase(cfg); err != nil {
		return err
	}
	ctx := context.Background()
	store, err := database.GetSessionStore(ctx)
	if err != nil {
		return err
	}

	sessions, err := store.ListSessions(ctx, classID, mustGetInt(cmd, "limit"))
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Printf("No sessions for class %s\n", classID)
		return nil
	}

	fmt.Printf("%-36s %-17s %6s %9s %7s\n", "SESSION", "CREATED", "IMAGES", "THRESHOLD", "UNKNOWN")
	for _, s := range sessions {
		fmt.Printf("%-36s %-17s %6d %9.2f %7d\n",
			s.ID, s.CreatedAt.Format("2006-01-02 15:04"), s.ImagesCount, s.Threshold, s.UnknownFacesCount)
	}
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := connectDatabase(cfg); err != nil {
		return err
	}
	ctx := context.Background()
	store, err := database.GetSessionStore(ctx)
	if err != nil {
		return err
	}

	session, err := store.GetSession(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, session.Result, "", "  "); err != nil {
		return fmt.Errorf("stored result is not valid JSON: %w", err)
	}
	out.WriteByte('\n')
	_, err = out.WriteTo(os.Stdout)
	return err
}

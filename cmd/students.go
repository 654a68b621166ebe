package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/database"
)

var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "List the students of a class",
	Long: `List the students of a class with their number of enrollment embeddings.

Examples:
  class-attendance students --class 10A1
  class-attendance students --class 10A1 --q nguyen`,
	RunE: runStudents,
}

func init() {
	rootCmd.AddCommand(studentsCmd)

	studentsCmd.Flags().String("class", "", "Class ID")
	studentsCmd.Flags().String("q", "", "Filter names, ignoring case and diacritics")
	_ = studentsCmd.MarkFlagRequired("class")
}

func runStudents(cmd *cobra.Command, args []string) error {
	classID := mustGetString(cmd, "class")

	cfg := config.Load()
	if err := connectDatabase(cfg); err != nil {
		return err
	}
	ctx := context.Background()
	store, err := database.GetStudentStore(ctx)
	if err != nil {
		return err
	}

	students, err := store.ListStudents(ctx, classID, mustGetString(cmd, "q"))
	if err != nil {
		return fmt.Errorf("failed to list students: %w", err)
	}
	if len(students) == 0 {
		fmt.Printf("No students in class %s\n", classID)
		return nil
	}

	fmt.Printf("%-16s %-30s %s\n", "ID", "NAME", "EMBEDDINGS")
	for _, s := range students {
		fmt.Printf("%-16s %-30s %d\n", s.ID, s.Name, s.EmbeddingCount)
	}
	return nil
}

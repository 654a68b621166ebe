package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/database"
)

var classesCmd = &cobra.Command{
	Use:   "classes",
	Short: "List classes",
	RunE:  runClassesList,
}

var classesAddCmd = &cobra.Command{
	Use:   "add <class-id> [name]",
	Short: "Create a class or rename an existing one",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runClassesAdd,
}

func init() {
	rootCmd.AddCommand(classesCmd)
	classesCmd.AddCommand(classesAddCmd)
}

func runClassesList(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := connectDatabase(cfg); err != nil {
		return err
	}
	ctx := context.Background()
	store, err := database.GetClassStore(ctx)
	if err != nil {
		return err
	}

	classes, err := store.ListClasses(ctx)
	if err != nil {
		return fmt.Errorf("failed to list classes: %w", err)
	}
	if len(classes) == 0 {
		fmt.Println("No classes")
		return nil
	}

	fmt.Printf("%-16s %-30s %s\n", "ID", "NAME", "CREATED")
	for _, c := range classes {
		fmt.Printf("%-16s %-30s %s\n", c.ID, c.Name, c.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runClassesAdd(cmd *cobra.Command, args []string) error {
	id := args[0]
	name := id
	if len(args) == 2 {
		name = args[1]
	}

	cfg := config.Load()
	if err := connectDatabase(cfg); err != nil {
		return err
	}
	ctx := context.Background()
	store, err := database.GetClassStore(ctx)
	if err != nil {
		return err
	}

	if err := store.UpsertClass(ctx, id, name); err != nil {
		return fmt.Errorf("failed to save class: %w", err)
	}
	fmt.Printf("Saved class %s (%s)\n", id, name)
	return nil
}

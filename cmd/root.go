package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "class-attendance",
	Short: "Take classroom attendance from photos",
	Long: `Class Attendance enrolls students from portrait photos and marks them
present or absent from photos of the classroom. Faces are detected and
embedded by an external face service; enrollments and attendance sessions
are stored in PostgreSQL.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

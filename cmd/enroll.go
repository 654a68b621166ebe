package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/enroll"
	"github.com/kozaktomas/class-attendance/internal/faceclient"
	"github.com/kozaktomas/class-attendance/internal/imageutil"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <image|dir>...",
	Short: "Enroll a student from portrait photos",
	Long: `Enroll a student from one or more portrait photos.

The most confident face of every photo that passes the quality gate is
embedded and the mean embedding is stored for the student. The class is
created when it does not exist yet.

Examples:
  # Enroll from a directory of photos
  class-attendance enroll --class 10A1 --id HS001 --name "Nguyen Van An" ./photos/an

  # Replace the previous enrollment
  class-attendance enroll --class 10A1 --id HS001 --name "Nguyen Van An" --replace a.jpg b.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("class", "", "Class ID")
	enrollCmd.Flags().String("id", "", "Student ID")
	enrollCmd.Flags().String("name", "", "Student name")
	enrollCmd.Flags().Bool("replace", false, "Delete the student's previous embeddings first")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")
	_ = enrollCmd.MarkFlagRequired("class")
	_ = enrollCmd.MarkFlagRequired("id")
	_ = enrollCmd.MarkFlagRequired("name")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	cfg := config.Load()

	paths, err := collectImagePaths(args)
	if err != nil {
		return err
	}
	images, err := readImages(paths)
	if err != nil {
		return err
	}

	if err := connectDatabase(cfg); err != nil {
		return err
	}
	ctx := context.Background()
	classes, err := database.GetClassStore(ctx)
	if err != nil {
		return err
	}
	students, err := database.GetStudentStore(ctx)
	if err != nil {
		return err
	}
	embeddings, err := database.GetEmbeddingWriter(ctx)
	if err != nil {
		return err
	}

	faces := faceclient.New(cfg.FaceService.URL, cfg.FaceService.Timeout)
	bar := newProgressBar(len(images), "Enrolling")
	svc := enroll.NewService(imageutil.Decoder{}, progressDetector{Detector: faces, bar: bar}, faces,
		classes, students, embeddings, enroll.Options{
			Quality:           cfg.Attendance.Quality.Thresholds(),
			DuplicateDistance: cfg.Attendance.Enroll.DuplicateDistance,
			IndexDir:          cfg.Database.HNSWIndexPath,
		})

	result, err := svc.Enroll(ctx, enroll.Request{
		ClassID:     mustGetString(cmd, "class"),
		StudentID:   mustGetString(cmd, "id"),
		StudentName: mustGetString(cmd, "name"),
		Images:      images,
		Replace:     mustGetBool(cmd, "replace"),
	})
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("enrollment failed: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("Enrolled %s (%s) using %d of %d images\n",
		result.StudentName, result.StudentID, result.ImagesUsed, result.ImagesReceived)
	if d := result.PossibleDuplicateOf; d != nil {
		fmt.Printf("Warning: looks like already enrolled %s (%s), distance %.3f\n", d.StudentName, d.StudentID, d.Distance)
	}
	return nil
}

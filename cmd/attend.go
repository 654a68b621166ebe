package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/faceclient"
	"github.com/kozaktomas/class-attendance/internal/imageutil"
)

var attendCmd = &cobra.Command{
	Use:   "attend <image|dir>...",
	Short: "Take attendance from classroom photos",
	Long: `Detect every face in the classroom photos, match them against the
enrolled students of the class and print the attendance result as JSON.
The session is stored unless --no-save is given.

Examples:
  class-attendance attend --class 10A1 ./photos/monday
  class-attendance attend --class 10A1 --threshold 0.5 front.jpg back.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAttend,
}

func init() {
	rootCmd.AddCommand(attendCmd)

	attendCmd.Flags().String("class", "", "Class ID")
	attendCmd.Flags().Float64("threshold", 0, "Match threshold (default from ATTENDANCE_THRESHOLD)")
	attendCmd.Flags().Int("workers", 0, "Images processed in parallel (default from ATTENDANCE_WORKERS)")
	attendCmd.Flags().Bool("no-save", false, "Do not store the session")
	_ = attendCmd.MarkFlagRequired("class")
}

func runAttend(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	threshold := cfg.Attendance.Threshold
	if cmd.Flags().Changed("threshold") {
		threshold = mustGetFloat64(cmd, "threshold")
	}
	workers := cfg.Attendance.Workers
	if cmd.Flags().Changed("workers") {
		workers = mustGetInt(cmd, "workers")
	}

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
	galleries, err := database.GetGalleryReader(ctx)
	if err != nil {
		return err
	}
	var persister attendance.SessionPersister
	if !mustGetBool(cmd, "no-save") {
		sessions, err := database.GetSessionStore(ctx)
		if err != nil {
			return err
		}
		persister = sessions
	}

	faces := faceclient.New(cfg.FaceService.URL, cfg.FaceService.Timeout)
	bar := newProgressBar(len(images), "Processing")
	pipeline := attendance.NewPipeline(imageutil.Decoder{}, progressDetector{Detector: faces, bar: bar}, faces,
		galleries, persister, attendance.Options{
			Quality: cfg.Attendance.Quality.Thresholds(),
			Workers: workers,
		})

	result, err := pipeline.Run(ctx, attendance.Request{
		ClassID:   mustGetString(cmd, "class"),
		Threshold: threshold,
		Images:    images,
	})
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("attendance failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "%d of %d students present, %d unknown faces\n",
		result.CountPresent, result.CountTotal, result.UnknownFacesCount)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

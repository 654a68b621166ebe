package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/faceclient"
	"github.com/kozaktomas/class-attendance/internal/imageutil"
	"github.com/kozaktomas/class-attendance/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the attendance API server.
The server exposes enrollment, attendance and history endpoints under /api/v1.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" && !cmd.Flags().Changed("port") {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" && !cmd.Flags().Changed("host") {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if err := connectDatabase(cfg); err != nil {
		return err
	}

	faces := faceclient.New(cfg.FaceService.URL, cfg.FaceService.Timeout)
	healthCtx, healthCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := faces.Health(healthCtx); err != nil {
		fmt.Printf("Warning: face service is not reachable: %v\n", err)
		fmt.Printf("Enrollment and attendance requests will fail until it is available\n")
	}
	healthCancel()

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, port, host, imageutil.Decoder{}, faces)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting %s on http://%s:%d\n", cfg.App.Name, host, port)
	if cfg.Web.APIToken != "" {
		fmt.Println("API token authentication enabled")
	}
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/copwatch-uk/copwatch/internal/config"
	"github.com/copwatch-uk/copwatch/internal/web"
	"github.com/copwatch-uk/copwatch/internal/web/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the copwatch API server.
The server accepts media uploads, runs them through the detection pipeline,
and exposes the officer registry and merge workflow over a JSON API.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "Address to listen on (overrides LISTEN_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if listen := mustGetString(cmd, "listen"); listen != "" {
		cfg.Web.Listen = listen
	}

	ctx := context.Background()
	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	mediaHandler := handlers.NewMediaHandler(app.pipeline, app.media, app.officers, app.index)
	officerHandler := handlers.NewOfficerHandler(app.officers)
	mergeHandler := handlers.NewMergeHandler(app.merger, app.merges)

	server := web.NewServer(&cfg.Web, mediaHandler, officerHandler, mergeHandler)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting copwatch API on %s\n", cfg.Web.Listen)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/copwatch-uk/copwatch/internal/config"
	"github.com/copwatch-uk/copwatch/internal/database"
	"github.com/copwatch-uk/copwatch/internal/pipeline"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files or directories...]",
	Short: "Ingest media files through the detection pipeline",
	Long: `Ingest image and video files into the registry.
Each file is fingerprinted and checked against prior uploads; duplicates are
recorded but skip analysis. Non-duplicate files go through face detection,
OCR and identity resolution.

Examples:
  # Ingest a single file
  copwatch ingest march.jpg

  # Ingest a directory of footage with 8 workers
  copwatch ingest ./footage --workers 8 --source "court submission"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().Int("workers", 0, "Number of parallel workers (overrides PIPELINE_WORKERS)")
	ingestCmd.Flags().String("source", "import", "Source label stored with each media item")
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".webp": true,
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true,
}

// collectMediaFiles expands files and directories into a flat list of media
// paths, skipping anything with an unrecognized extension.
func collectMediaFiles(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if imageExtensions[ext] || videoExtensions[ext] {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", arg, err)
		}
	}
	return paths, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	source := mustGetString(cmd, "source")

	cfg := config.Load()
	if workers := mustGetInt(cmd, "workers"); workers > 0 {
		cfg.Pipeline.Workers = workers
	}

	paths, err := collectMediaFiles(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Println("No media files found")
		return nil
	}

	ctx := context.Background()
	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	uploads := make([]pipeline.Upload, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		mediaType := database.MediaTypeImage
		if videoExtensions[strings.ToLower(filepath.Ext(path))] {
			mediaType = database.MediaTypeVideo
		}

		uploads = append(uploads, pipeline.Upload{
			FileName:  filepath.Base(path),
			MediaType: mediaType,
			Source:    source,
			Data:      data,
		})
	}

	fmt.Printf("Ingesting %d files\n\n", len(uploads))

	bar := progressbar.NewOptions(len(uploads),
		progressbar.OptionSetDescription("Ingesting media"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var mu sync.Mutex
	var processed, duplicates, faces, errors int

	app.pipeline.IngestBatch(ctx, uploads, func(u pipeline.Upload, result *pipeline.ItemResult, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errors++
		} else if result.Duplicate.IsDuplicate {
			duplicates++
		} else {
			processed++
			faces += result.Faces
		}
		bar.Add(1)
	})

	fmt.Println()
	fmt.Printf("\nCompleted: %d processed, %d duplicates, %d errors\n", processed, duplicates, errors)
	fmt.Printf("Faces detected: %d\n", faces)

	officerCount, err := app.officers.Count(ctx)
	if err == nil {
		fmt.Printf("Officers in registry: %d\n", officerCount)
	}

	return nil
}

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/copwatch-uk/copwatch/internal/config"
	"github.com/copwatch-uk/copwatch/internal/database"
	"github.com/copwatch-uk/copwatch/internal/fingerprint"
)

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Check whether a file is a duplicate of prior uploads",
	Long: `Fingerprint a file and compare it against stored media without
ingesting it. Reports exact (byte-identical) and similar (perceptually
close) matches.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	ctx := context.Background()
	app, err := buildApp(ctx, config.Load())
	if err != nil {
		return err
	}
	defer app.Close()

	mediaType := database.MediaTypeImage
	var fp *fingerprint.Fingerprint
	if videoExtensions[strings.ToLower(filepath.Ext(path))] {
		mediaType = database.MediaTypeVideo
		fp, err = fingerprint.Video(bytes.NewReader(data), nil)
	} else {
		fp, err = fingerprint.Image(data)
	}
	if err != nil {
		return fmt.Errorf("fingerprinting %s: %w", path, err)
	}

	fmt.Printf("File:            %s\n", path)
	fmt.Printf("Content hash:    %s\n", fp.ContentHash)
	if fp.PerceptualHash != "" {
		fmt.Printf("Perceptual hash: %s\n", fp.PerceptualHash)
	}

	result, err := app.index.FindDuplicate(ctx, fp, mediaType)
	if err != nil {
		return fmt.Errorf("checking for duplicates: %w", err)
	}

	if !result.IsDuplicate {
		fmt.Println("\nNo duplicate found")
		return nil
	}

	switch result.Type {
	case database.DuplicateExact:
		fmt.Printf("\nExact duplicate of media item %d (byte-identical content)\n", result.OriginalID)
	case database.DuplicateSimilar:
		fmt.Printf("\nSimilar to media item %d (%d bits apart)\n", result.OriginalID, result.Distance)
	}
	return nil
}

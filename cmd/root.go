package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "copwatch",
	Short: "Identity resolution and duplicate detection for protest footage",
	Long: `Copwatch ingests images and video frames from protest footage, detects
faces, and builds a persistent registry of recurring police officers observed
across many separate media items. Repeated sightings of the same individual
are merged while tracking provenance (OCR badge text, AI vision analysis,
rule-based heuristics) and confidence.`,
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

	if level, err := log.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	}
}

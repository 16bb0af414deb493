package cmd

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/copwatch-uk/copwatch/internal/config"
	"github.com/copwatch-uk/copwatch/internal/database/postgres"
	"github.com/copwatch-uk/copwatch/internal/dedup"
	"github.com/copwatch-uk/copwatch/internal/detect"
	"github.com/copwatch-uk/copwatch/internal/facematch"
	"github.com/copwatch-uk/copwatch/internal/merge"
	"github.com/copwatch-uk/copwatch/internal/pipeline"
	"github.com/copwatch-uk/copwatch/internal/reconcile"
	"github.com/copwatch-uk/copwatch/internal/registry"
	"github.com/copwatch-uk/copwatch/internal/vision"
)

// mergeStore combines the officer and merge repositories into the surface
// the merge manager needs.
type mergeStore struct {
	*postgres.OfficerRepository
	*postgres.MergeRepository
}

// app holds the wired-up components shared by the CLI commands.
type app struct {
	cfg      *config.Config
	pool     *postgres.Pool
	media    *postgres.MediaRepository
	officers *postgres.OfficerRepository
	merges   *postgres.MergeRepository
	index    *dedup.Index
	registry *registry.Registry
	pipeline *pipeline.Pipeline
	merger   *merge.Manager
}

// buildApp connects to the database, runs migrations and wires the full
// processing stack from configuration.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.Connect(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}

	media := postgres.NewMediaRepository(pool)
	officers := postgres.NewOfficerRepository(pool)
	merges := postgres.NewMergeRepository(pool)

	index := dedup.NewIndex(media, dedup.Options{
		Threshold: cfg.Matching.PerceptualThreshold,
		BatchSize: cfg.Matching.ScanBatchSize,
		ScanCap:   cfg.Matching.ScanCap,
	})

	finder, onEmbedded, err := buildFinder(ctx, cfg, officers)
	if err != nil {
		pool.Close()
		return nil, err
	}
	matcher := facematch.NewMatcher(finder, cfg.Matching.MatchThreshold)

	reconciler := reconcile.NewReconciler(reconcile.DefaultVisionThreshold)
	reg := registry.New(officers, matcher, reconciler)
	if onEmbedded != nil {
		reg.OnOfficerEmbedded(onEmbedded)
	}

	provider, err := buildVisionProvider(ctx, &cfg.Vision)
	if err != nil {
		pool.Close()
		return nil, err
	}

	detector := detect.NewClient(cfg.Detect.FaceURL, cfg.Detect.OCRURL)
	if !detector.CanDetectFaces() {
		log.Warn("FACE_SERVICE_URL not set, faces will not be detected")
	}
	if !detector.CanReadText() {
		log.Warn("OCR_SERVICE_URL not set, badge text will not be read")
	}

	p := pipeline.New(media, index, detector, provider, reg, nil, pipeline.Options{
		Workers:       cfg.Pipeline.Workers,
		FrameInterval: cfg.Pipeline.FrameInterval,
	})

	merger := merge.NewManager(
		&mergeStore{OfficerRepository: officers, MergeRepository: merges},
		cfg.Matching.AutoMergeThreshold,
		cfg.Matching.ReviewThreshold,
	)

	return &app{
		cfg:      cfg,
		pool:     pool,
		media:    media,
		officers: officers,
		merges:   merges,
		index:    index,
		registry: reg,
		pipeline: p,
		merger:   merger,
	}, nil
}

// Close releases the database pool.
func (a *app) Close() {
	a.pool.Close()
}

// buildFinder picks the nearest-neighbour backend. With HNSW enabled, the
// index is built once from the stored embeddings and kept fresh through the
// registry hook.
func buildFinder(ctx context.Context, cfg *config.Config, officers *postgres.OfficerRepository) (facematch.NearestFinder, func(int64, []float32), error) {
	if !cfg.Matching.UseHNSW {
		return facematch.NewLinearFinder(officers), nil, nil
	}

	finder := facematch.NewHNSWFinder()
	if err := finder.Build(ctx, officers); err != nil {
		return nil, nil, fmt.Errorf("building HNSW index: %w", err)
	}
	log.WithField("embeddings", finder.Count()).Info("HNSW face index built")
	return finder, finder.Add, nil
}

// buildVisionProvider constructs the configured vision backend, or none when
// no credentials are present.
func buildVisionProvider(ctx context.Context, cfg *config.VisionConfig) (vision.Provider, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIToken == "" {
			log.Warn("OPENAI_TOKEN not set, vision analysis disabled")
			return nil, nil
		}
		return vision.NewOpenAIProvider(cfg.OpenAIToken, cfg.RequestsPerMinute), nil
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			log.Warn("GEMINI_API_KEY not set, vision analysis disabled")
			return nil, nil
		}
		return vision.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.RequestsPerMinute)
	case "ollama":
		return vision.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel), nil
	default:
		return nil, fmt.Errorf("unknown vision provider %q", cfg.Provider)
	}
}

package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/copwatch-uk/copwatch/internal/database"
)

type Config struct {
	Database  DatabaseConfig
	Detect    DetectConfig
	Vision    VisionConfig
	Matching  MatchingConfig
	Pipeline  PipelineConfig
	Web       WebConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// DetectConfig points at the external face-detection/embedding and OCR
// services. Empty URLs mean the capability is unavailable; the pipeline
// degrades instead of failing.
type DetectConfig struct {
	FaceURL      string // face detection + embedding service
	OCRURL       string // text recognition service
	EmbeddingDim int    // defaults to 512
}

type VisionConfig struct {
	Provider          string // openai, gemini or ollama (default openai)
	OpenAIToken       string
	GeminiAPIKey      string
	OllamaURL         string // defaults to http://localhost:11434
	OllamaModel       string // defaults to llama3.2-vision:11b
	RequestsPerMinute int    // client-side rate limit (default 20)
}

// MatchingConfig carries the similarity thresholds. The defaults are
// calibrated for 512-dim face embeddings and 64-bit perceptual hashes.
type MatchingConfig struct {
	PerceptualThreshold int     // Hamming bits for near-duplicate images
	ScanBatchSize       int     // candidates fetched per similarity-scan batch
	ScanCap             int     // hard cap on candidates examined per lookup
	MatchThreshold      float64 // Euclidean distance for face matching
	AutoMergeThreshold  float64 // cosine similarity for unattended merges
	ReviewThreshold     float64 // cosine similarity for proposed merge pairs
	UseHNSW             bool    // in-memory HNSW index instead of linear scan
}

type PipelineConfig struct {
	Workers       int     // concurrent media items (default 4)
	FrameInterval float64 // seconds between sampled video frames (default 1.0)
}

type WebConfig struct {
	Listen      string // defaults to :8080
	AuthToken   string // empty disables token auth
	CORSOrigins []string
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envList reads an environment variable as a comma-separated list.
func envList(key string) []string {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Detect: DetectConfig{
			FaceURL:      os.Getenv("FACE_SERVICE_URL"),
			OCRURL:       os.Getenv("OCR_SERVICE_URL"),
			EmbeddingDim: envInt("EMBEDDING_DIM", 512),
		},
		Vision: VisionConfig{
			Provider:          envDefault("VISION_PROVIDER", "openai"),
			OpenAIToken:       os.Getenv("OPENAI_TOKEN"),
			GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
			OllamaURL:         os.Getenv("OLLAMA_URL"),
			OllamaModel:       os.Getenv("OLLAMA_MODEL"),
			RequestsPerMinute: envInt("VISION_REQUESTS_PER_MINUTE", 20),
		},
		Matching: MatchingConfig{
			PerceptualThreshold: envInt("PERCEPTUAL_THRESHOLD", database.DefaultPerceptualThreshold),
			ScanBatchSize:       envInt("SCAN_BATCH_SIZE", database.DefaultScanBatchSize),
			ScanCap:             envInt("SCAN_CAP", database.DefaultScanCap),
			MatchThreshold:      envFloat("MATCH_THRESHOLD", database.DefaultMatchThreshold),
			AutoMergeThreshold:  envFloat("AUTO_MERGE_THRESHOLD", database.DefaultAutoMergeThreshold),
			ReviewThreshold:     envFloat("MERGE_REVIEW_THRESHOLD", database.DefaultMergeReviewThreshold),
			UseHNSW:             os.Getenv("USE_HNSW") == "true",
		},
		Pipeline: PipelineConfig{
			Workers:       envInt("PIPELINE_WORKERS", 4),
			FrameInterval: envFloat("FRAME_INTERVAL", 1.0),
		},
		Web: WebConfig{
			Listen:      envDefault("LISTEN_ADDR", ":8080"),
			AuthToken:   os.Getenv("AUTH_TOKEN"),
			CORSOrigins: envList("CORS_ORIGINS"),
		},
	}
}

func envDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

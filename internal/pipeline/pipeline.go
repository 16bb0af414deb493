// Package pipeline orchestrates ingestion of one media item: fingerprint,
// duplicate gate, frame and face extraction, detector fan-out and identity
// resolution. Frames within an item are processed in order; independent
// items run concurrently on a bounded worker pool.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/copwatch-uk/copwatch/internal/database"
	"github.com/copwatch-uk/copwatch/internal/dedup"
	"github.com/copwatch-uk/copwatch/internal/detect"
	"github.com/copwatch-uk/copwatch/internal/fingerprint"
	"github.com/copwatch-uk/copwatch/internal/registry"
	"github.com/copwatch-uk/copwatch/internal/vision"
)

// Frame is one decoded frame of a media item, as an encoded image.
type Frame struct {
	Number int
	Time   float64 // seconds from the start of the item
	Data   []byte
}

// FrameExtractor decodes video frames. Extraction itself happens outside
// this system; an extractor adapts whatever does it.
type FrameExtractor interface {
	ExtractFrames(ctx context.Context, videoData []byte, interval float64) ([]Frame, error)
}

// Detector is the face/OCR service surface the pipeline consumes.
// *detect.Client satisfies it.
type Detector interface {
	CanDetectFaces() bool
	CanReadText() bool
	DetectFaces(ctx context.Context, imageData []byte) ([]detect.Face, string, error)
	ReadText(ctx context.Context, imageData []byte) ([]detect.TextRegion, error)
}

var _ Detector = (*detect.Client)(nil)

// Upload is one file handed to the pipeline.
type Upload struct {
	FileName  string
	MediaType database.MediaType
	Source    string
	Data      []byte
}

// ItemResult summarizes what the pipeline did with one upload.
type ItemResult struct {
	Media     *database.MediaItem
	Duplicate *dedup.Result
	Frames    int
	Faces     int
	Outcomes  []*registry.Outcome
}

// Options tunes the pipeline.
type Options struct {
	// Workers bounds concurrent item processing in IngestBatch.
	Workers int
	// FrameInterval is the video sampling interval in seconds.
	FrameInterval float64
}

// Pipeline wires the ingestion stages together.
type Pipeline struct {
	media     database.MediaWriter
	index     *dedup.Index
	detector  Detector
	vision    vision.Provider
	registry  *registry.Registry
	extractor FrameExtractor

	workers       int
	frameInterval float64
}

// New creates a pipeline. The vision provider and frame extractor are
// optional; without an extractor, videos get fingerprinted but yield no
// frames for analysis.
func New(media database.MediaWriter, index *dedup.Index, detector Detector, provider vision.Provider, reg *registry.Registry, extractor FrameExtractor, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 1.0
	}
	return &Pipeline{
		media:         media,
		index:         index,
		detector:      detector,
		vision:        provider,
		registry:      reg,
		extractor:     extractor,
		workers:       opts.Workers,
		frameInterval: opts.FrameInterval,
	}
}

// Ingest runs one upload through the full pipeline. Duplicates are recorded
// with their fingerprints but skip frame and face analysis; detector
// failures on individual frames are logged and treated as no signal rather
// than failing the whole item.
func (p *Pipeline) Ingest(ctx context.Context, upload Upload) (*ItemResult, error) {
	frames, fp, err := p.fingerprintAndFrames(ctx, upload)
	if err != nil {
		return nil, err
	}

	dup, err := p.index.FindDuplicate(ctx, fp, upload.MediaType)
	if err != nil {
		return nil, fmt.Errorf("duplicate check for %s: %w", upload.FileName, err)
	}

	item := &database.MediaItem{
		UID:            uuid.New().String(),
		FileName:       upload.FileName,
		MediaType:      upload.MediaType,
		ContentHash:    fp.ContentHash,
		PerceptualHash: fp.PerceptualHash,
		FileSize:       fp.Size,
		Source:         upload.Source,
		IsDuplicate:    dup.IsDuplicate,
		DuplicateType:  dup.Type,
	}
	if dup.IsDuplicate {
		originalID := dup.OriginalID
		item.DuplicateOfID = &originalID
	}

	if err := p.media.Save(ctx, item); err != nil {
		return nil, fmt.Errorf("saving media item %s: %w", upload.FileName, err)
	}

	result := &ItemResult{Media: item, Duplicate: dup}

	if dup.IsDuplicate {
		log.WithFields(log.Fields{
			"media_id":    item.ID,
			"file":        upload.FileName,
			"type":        dup.Type,
			"original_id": dup.OriginalID,
		}).Info("Duplicate upload recorded, skipping analysis")
		return result, nil
	}

	for _, frame := range frames {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		faces := p.processFrame(ctx, item, frame)
		result.Frames++
		result.Faces += len(faces)
		result.Outcomes = append(result.Outcomes, faces...)
	}

	log.WithFields(log.Fields{
		"media_id": item.ID,
		"file":     upload.FileName,
		"frames":   result.Frames,
		"faces":    result.Faces,
	}).Info("Media item processed")

	return result, nil
}

// IngestBatch processes uploads concurrently on a bounded worker pool and
// reports each item through the callback. Per-item failures do not stop the
// batch. The callback may run from multiple goroutines.
func (p *Pipeline) IngestBatch(ctx context.Context, uploads []Upload, onDone func(Upload, *ItemResult, error)) {
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup

	for _, upload := range uploads {
		wg.Add(1)
		go func(u Upload) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := p.Ingest(ctx, u)
			if onDone != nil {
				onDone(u, result, err)
			}
		}(upload)
	}

	wg.Wait()
}

// fingerprintAndFrames computes the upload's fingerprints and the frames to
// analyze. For videos the first extracted frame doubles as the perceptual
// hash source.
func (p *Pipeline) fingerprintAndFrames(ctx context.Context, upload Upload) ([]Frame, *fingerprint.Fingerprint, error) {
	if upload.MediaType == database.MediaTypeVideo {
		var frames []Frame
		if p.extractor != nil {
			extracted, err := p.extractor.ExtractFrames(ctx, upload.Data, p.frameInterval)
			if err != nil {
				log.WithFields(log.Fields{
					"file":  upload.FileName,
					"error": err,
				}).Warn("Frame extraction failed, fingerprinting content only")
			} else {
				frames = extracted
			}
		}

		var firstFrame []byte
		if len(frames) > 0 {
			firstFrame = frames[0].Data
		}
		fp, err := fingerprint.Video(bytes.NewReader(upload.Data), firstFrame)
		if err != nil {
			return nil, nil, fmt.Errorf("fingerprinting %s: %w", upload.FileName, err)
		}
		return frames, fp, nil
	}

	fp, err := fingerprint.Image(upload.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("fingerprinting %s: %w", upload.FileName, err)
	}
	return []Frame{{Number: 0, Time: 0, Data: upload.Data}}, fp, nil
}

// processFrame detects faces in one frame and resolves each one through the
// registry, in detector order.
func (p *Pipeline) processFrame(ctx context.Context, item *database.MediaItem, frame Frame) []*registry.Outcome {
	if !p.detector.CanDetectFaces() {
		return nil
	}

	faces, model, err := p.detector.DetectFaces(ctx, frame.Data)
	if err != nil {
		log.WithFields(log.Fields{
			"media_id": item.ID,
			"frame":    frame.Number,
			"error":    err,
		}).Warn("Face detection failed for frame")
		return nil
	}

	var outcomes []*registry.Outcome
	for _, face := range faces {
		sighting := &registry.Sighting{
			MediaItemID:    item.ID,
			FrameNumber:    frame.Number,
			FrameTime:      frame.Time,
			BBox:           face.BBox,
			DetScore:       face.DetScore,
			Embedding:      face.Embedding,
			EmbeddingModel: model,
		}

		p.enrichSighting(ctx, sighting, frame.Data, face)

		outcome, err := p.registry.Process(ctx, sighting)
		if err != nil {
			log.WithFields(log.Fields{
				"media_id": item.ID,
				"frame":    frame.Number,
				"face":     face.FaceIndex,
				"error":    err,
			}).Error("Failed to resolve sighting")
			continue
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes
}

// enrichSighting runs OCR and vision analysis on the region around a face.
// Either source failing leaves the corresponding fields empty.
func (p *Pipeline) enrichSighting(ctx context.Context, s *registry.Sighting, frameData []byte, face detect.Face) {
	if !p.detector.CanReadText() && p.vision == nil {
		return
	}

	crop, err := cropUniformRegion(frameData, face.BBox)
	if err != nil {
		log.WithFields(log.Fields{
			"media_id": s.MediaItemID,
			"frame":    s.FrameNumber,
			"error":    err,
		}).Debug("Could not crop face region")
		return
	}

	if p.detector.CanReadText() {
		regions, err := p.detector.ReadText(ctx, crop)
		if err != nil {
			log.WithFields(log.Fields{
				"media_id": s.MediaItemID,
				"frame":    s.FrameNumber,
				"error":    err,
			}).Warn("OCR failed for face region")
		} else {
			s.OCRBadge, s.OCRBadgeConf = bestBadgeCandidate(regions)
			s.OCRName, s.OCRNameConf = bestNameCandidate(regions)
		}
	}

	if p.vision != nil {
		analysis, err := p.vision.AnalyzeUniform(ctx, crop)
		if err != nil {
			log.WithFields(log.Fields{
				"media_id": s.MediaItemID,
				"frame":    s.FrameNumber,
				"error":    err,
			}).Warn("Vision analysis failed for face region")
		} else {
			s.Vision = analysis
		}
	}
}

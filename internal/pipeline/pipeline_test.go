package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"

	"github.com/copwatch-uk/copwatch/internal/database"
	"github.com/copwatch-uk/copwatch/internal/database/mock"
	"github.com/copwatch-uk/copwatch/internal/dedup"
	"github.com/copwatch-uk/copwatch/internal/detect"
	"github.com/copwatch-uk/copwatch/internal/facematch"
	"github.com/copwatch-uk/copwatch/internal/reconcile"
	"github.com/copwatch-uk/copwatch/internal/registry"
)

type fakeDetector struct {
	mu          sync.Mutex
	faces       []detect.Face
	model       string
	detectCalls int
	detectErr   error
	regions     []detect.TextRegion
	canOCR      bool
}

func (d *fakeDetector) CanDetectFaces() bool { return true }
func (d *fakeDetector) CanReadText() bool    { return d.canOCR }

func (d *fakeDetector) DetectFaces(ctx context.Context, imageData []byte) ([]detect.Face, string, error) {
	d.mu.Lock()
	d.detectCalls++
	d.mu.Unlock()
	if d.detectErr != nil {
		return nil, "", d.detectErr
	}
	return d.faces, d.model, nil
}

func (d *fakeDetector) ReadText(ctx context.Context, imageData []byte) ([]detect.TextRegion, error) {
	return d.regions, nil
}

func (d *fakeDetector) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detectCalls
}

type fakeExtractor struct {
	frames []Frame
}

func (e *fakeExtractor) ExtractFrames(ctx context.Context, videoData []byte, interval float64) ([]Frame, error) {
	return e.frames, nil
}

func makeTestImage(t *testing.T, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for x := 0; x < 200; x++ {
		for y := 0; y < 200; y++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x*7) ^ seed,
				G: uint8(y*13) + seed,
				B: uint8((x + y)) * seed,
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func testFace(index int, seed float32) detect.Face {
	embedding := make([]float32, 512)
	embedding[0] = seed
	return detect.Face{
		FaceIndex: index,
		Dim:       512,
		Embedding: embedding,
		BBox:      []float64{60, 40, 100, 90},
		DetScore:  0.95,
	}
}

func newTestPipeline(detector Detector, extractor FrameExtractor) (*Pipeline, *mock.MediaStore, *mock.OfficerStore) {
	media := mock.NewMediaStore()
	officers := mock.NewOfficerStore()
	index := dedup.NewIndex(media, dedup.Options{})
	matcher := facematch.NewMatcher(facematch.NewLinearFinder(officers), database.DefaultMatchThreshold)
	reg := registry.New(officers, matcher, reconcile.NewReconciler(reconcile.DefaultVisionThreshold))
	p := New(media, index, detector, nil, reg, extractor, Options{Workers: 2})
	return p, media, officers
}

func TestIngestImageCreatesOfficer(t *testing.T) {
	detector := &fakeDetector{faces: []detect.Face{testFace(0, 1)}, model: "buffalo_l"}
	p, _, officers := newTestPipeline(detector, nil)

	result, err := p.Ingest(context.Background(), Upload{
		FileName:  "protest.jpg",
		MediaType: database.MediaTypeImage,
		Data:      makeTestImage(t, 3),
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if result.Duplicate.IsDuplicate {
		t.Error("first upload should not be a duplicate")
	}
	if result.Media.ContentHash == "" || result.Media.PerceptualHash == "" {
		t.Error("expected both fingerprints on the media item")
	}
	if result.Media.UID == "" {
		t.Error("expected a generated UID")
	}
	if result.Faces != 1 {
		t.Fatalf("expected 1 face, got %d", result.Faces)
	}
	if !result.Outcomes[0].Created {
		t.Error("first sighting should create a new officer")
	}

	count, _ := officers.Count(context.Background())
	if count != 1 {
		t.Errorf("expected 1 officer, got %d", count)
	}
}

func TestIngestExactDuplicateSkipsAnalysis(t *testing.T) {
	detector := &fakeDetector{faces: []detect.Face{testFace(0, 1)}}
	p, media, _ := newTestPipeline(detector, nil)

	data := makeTestImage(t, 7)
	first, err := p.Ingest(context.Background(), Upload{FileName: "a.jpg", MediaType: database.MediaTypeImage, Data: data})
	if err != nil {
		t.Fatalf("first Ingest failed: %v", err)
	}
	callsAfterFirst := detector.calls()

	second, err := p.Ingest(context.Background(), Upload{FileName: "b.jpg", MediaType: database.MediaTypeImage, Data: data})
	if err != nil {
		t.Fatalf("second Ingest failed: %v", err)
	}

	if !second.Duplicate.IsDuplicate || second.Duplicate.Type != database.DuplicateExact {
		t.Fatalf("expected exact duplicate, got %+v", second.Duplicate)
	}
	if second.Duplicate.OriginalID != first.Media.ID {
		t.Errorf("expected original %d, got %d", first.Media.ID, second.Duplicate.OriginalID)
	}
	if detector.calls() != callsAfterFirst {
		t.Error("duplicate upload should not reach the face detector")
	}
	if second.Media.ContentHash != first.Media.ContentHash {
		t.Error("duplicate record should still carry its fingerprints")
	}

	count, _ := media.Count(context.Background())
	if count != 2 {
		t.Errorf("expected both uploads recorded, got %d", count)
	}
}

func TestIngestSecondSightingMatchesOfficer(t *testing.T) {
	detector := &fakeDetector{faces: []detect.Face{testFace(0, 1)}, model: "buffalo_l"}
	frame := makeTestImage(t, 11)
	extractor := &fakeExtractor{frames: []Frame{{Number: 0, Time: 0, Data: frame}}}
	p, _, officers := newTestPipeline(detector, extractor)

	_, err := p.Ingest(context.Background(), Upload{
		FileName:  "first.jpg",
		MediaType: database.MediaTypeImage,
		Data:      makeTestImage(t, 9),
	})
	if err != nil {
		t.Fatalf("first Ingest failed: %v", err)
	}

	// Second sighting arrives in a video, same face embedding.
	result, err := p.Ingest(context.Background(), Upload{
		FileName:  "clip.mp4",
		MediaType: database.MediaTypeVideo,
		Data:      []byte("video bytes"),
	})
	if err != nil {
		t.Fatalf("second Ingest failed: %v", err)
	}

	if result.Faces != 1 {
		t.Fatalf("expected 1 face in video, got %d", result.Faces)
	}
	if result.Outcomes[0].Created {
		t.Error("same embedding should match the existing officer, not create a new one")
	}

	count, _ := officers.Count(context.Background())
	if count != 1 {
		t.Errorf("expected a single officer, got %d", count)
	}
}

func TestIngestVideoFramesInOrder(t *testing.T) {
	detector := &fakeDetector{faces: []detect.Face{testFace(0, 1)}, model: "buffalo_l"}
	frame := makeTestImage(t, 5)
	extractor := &fakeExtractor{frames: []Frame{
		{Number: 0, Time: 0, Data: frame},
		{Number: 1, Time: 1, Data: frame},
		{Number: 2, Time: 2, Data: frame},
	}}
	p, _, officers := newTestPipeline(detector, extractor)

	result, err := p.Ingest(context.Background(), Upload{
		FileName:  "march.mp4",
		MediaType: database.MediaTypeVideo,
		Data:      []byte("video bytes"),
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if result.Frames != 3 || result.Faces != 3 {
		t.Fatalf("expected 3 frames and 3 faces, got %d/%d", result.Frames, result.Faces)
	}

	appearances, err := officers.ListByMedia(context.Background(), result.Media.ID)
	if err != nil {
		t.Fatalf("ListByMedia failed: %v", err)
	}
	if len(appearances) != 3 {
		t.Fatalf("expected 3 appearances, got %d", len(appearances))
	}
	for i, a := range appearances {
		if a.FrameNumber != i {
			t.Errorf("appearance %d has frame number %d", i, a.FrameNumber)
		}
	}
}

func TestIngestDetectorFailureIsNotFatal(t *testing.T) {
	detector := &fakeDetector{detectErr: errors.New("model not loaded")}
	p, media, _ := newTestPipeline(detector, nil)

	result, err := p.Ingest(context.Background(), Upload{
		FileName:  "broken.jpg",
		MediaType: database.MediaTypeImage,
		Data:      makeTestImage(t, 4),
	})
	if err != nil {
		t.Fatalf("Ingest should survive a detector failure: %v", err)
	}
	if result.Faces != 0 {
		t.Errorf("expected no faces, got %d", result.Faces)
	}

	count, _ := media.Count(context.Background())
	if count != 1 {
		t.Error("media item should still be recorded")
	}
}

func TestIngestOCRFeedsReconciliation(t *testing.T) {
	detector := &fakeDetector{
		faces:  []detect.Face{testFace(0, 1)},
		model:  "buffalo_l",
		canOCR: true,
		regions: []detect.TextRegion{
			{Text: "POLICE", Confidence: 0.99},
			{Text: "PS4471", Confidence: 0.9},
		},
	}
	p, _, officers := newTestPipeline(detector, nil)

	result, err := p.Ingest(context.Background(), Upload{
		FileName:  "sergeant.jpg",
		MediaType: database.MediaTypeImage,
		Data:      makeTestImage(t, 6),
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if result.Faces != 1 {
		t.Fatalf("expected 1 face, got %d", result.Faces)
	}

	officer, err := officers.Get(context.Background(), result.Outcomes[0].Officer.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if officer.BadgeNumber != "PS4471" {
		t.Errorf("expected badge PS4471, got %q", officer.BadgeNumber)
	}
	if officer.Rank != "Sergeant" {
		t.Errorf("expected rank Sergeant from badge prefix, got %q", officer.Rank)
	}
	if result.Outcomes[0].Appearance.OCRBadge != "PS4471" {
		t.Errorf("appearance should record the OCR badge, got %q", result.Outcomes[0].Appearance.OCRBadge)
	}
}

func TestIngestBatchProcessesAllItems(t *testing.T) {
	detector := &fakeDetector{faces: []detect.Face{testFace(0, 1)}}
	p, media, _ := newTestPipeline(detector, nil)

	uploads := []Upload{
		{FileName: "one.jpg", MediaType: database.MediaTypeImage, Data: makeTestImage(t, 21)},
		{FileName: "two.jpg", MediaType: database.MediaTypeImage, Data: makeTestImage(t, 85)},
		{FileName: "three.jpg", MediaType: database.MediaTypeImage, Data: makeTestImage(t, 170)},
	}

	var mu sync.Mutex
	done := 0
	p.IngestBatch(context.Background(), uploads, func(u Upload, r *ItemResult, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			t.Errorf("ingest of %s failed: %v", u.FileName, err)
		}
		done++
	})

	if done != 3 {
		t.Errorf("expected 3 callbacks, got %d", done)
	}
	count, _ := media.Count(context.Background())
	if count != 3 {
		t.Errorf("expected 3 media items, got %d", count)
	}
}

func TestBestBadgeCandidate(t *testing.T) {
	tests := []struct {
		name     string
		regions  []detect.TextRegion
		expected string
		conf     float64
	}{
		{
			name: "prefixed shoulder number",
			regions: []detect.TextRegion{
				{Text: "POLICE", Confidence: 0.99},
				{Text: "AB 1234", Confidence: 0.85},
			},
			expected: "AB 1234",
			conf:     0.85,
		},
		{
			name: "highest confidence wins",
			regions: []detect.TextRegion{
				{Text: "U2517", Confidence: 0.6},
				{Text: "PS4471", Confidence: 0.9},
			},
			expected: "PS4471",
			conf:     0.9,
		},
		{
			name: "lowercase normalized",
			regions: []detect.TextRegion{
				{Text: "ab 1234", Confidence: 0.7},
			},
			expected: "AB 1234",
			conf:     0.7,
		},
		{
			name: "no badge-like text",
			regions: []detect.TextRegion{
				{Text: "METROPOLITAN POLICE", Confidence: 0.99},
			},
			expected: "",
			conf:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			badge, conf := bestBadgeCandidate(tt.regions)
			if badge != tt.expected || conf != tt.conf {
				t.Errorf("expected %q/%f, got %q/%f", tt.expected, tt.conf, badge, conf)
			}
		})
	}
}

func TestBestNameCandidate(t *testing.T) {
	regions := []detect.TextRegion{
		{Text: "POLICE", Confidence: 0.99},
		{Text: "COMMUNITY SUPPORT OFFICER", Confidence: 0.95},
		{Text: "A. O'Brien", Confidence: 0.8},
		{Text: "PS4471", Confidence: 0.9},
	}

	name, conf := bestNameCandidate(regions)
	if name != "A. O'Brien" {
		t.Errorf("expected name tag, got %q", name)
	}
	if conf != 0.8 {
		t.Errorf("expected confidence 0.8, got %f", conf)
	}
}

func TestCropUniformRegion(t *testing.T) {
	data := makeTestImage(t, 2)

	crop, err := cropUniformRegion(data, []float64{60, 40, 100, 90})
	if err != nil {
		t.Fatalf("cropUniformRegion failed: %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(crop))
	if err != nil {
		t.Fatalf("crop is not a valid JPEG: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 40 || bounds.Dy() <= 50 {
		t.Errorf("crop should extend beyond the face box, got %v", bounds)
	}
}

func TestCropUniformRegionInvalidInput(t *testing.T) {
	data := makeTestImage(t, 2)

	if _, err := cropUniformRegion(data, []float64{10, 10}); err == nil {
		t.Error("expected error for short bounding box")
	}
	if _, err := cropUniformRegion(data, []float64{100, 100, 50, 50}); err == nil {
		t.Error("expected error for degenerate bounding box")
	}
	if _, err := cropUniformRegion([]byte("not an image"), []float64{0, 0, 10, 10}); err == nil {
		t.Error("expected error for undecodable frame")
	}
}

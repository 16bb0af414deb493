package vision

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"
)

func TestParseAnalysis_FullObject(t *testing.T) {
	payload := []byte(`{
		"force": {"value": "Metropolitan Police", "confidence": 0.9, "indicators": ["cap badge"]},
		"rank": {"value": "Sergeant", "confidence": 0.85, "indicators": ["three chevrons on epaulette"]},
		"uniform_type": {"value": "public order / riot", "confidence": 0.7},
		"shoulder_number": {"value": "U4122", "confidence": 0.6},
		"equipment": ["baton", "body-worn camera"]
	}`)

	analysis, err := ParseAnalysis(payload)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if analysis.Force.Value != "Metropolitan Police" || analysis.Force.Confidence != 0.9 {
		t.Errorf("force field not parsed: %+v", analysis.Force)
	}
	if analysis.Rank.Indicators[0] != "three chevrons on epaulette" {
		t.Errorf("rank indicators not parsed: %v", analysis.Rank.Indicators)
	}
	if len(analysis.Equipment) != 2 {
		t.Errorf("expected 2 equipment entries, got %d", len(analysis.Equipment))
	}
	// Missing unit degrades to zero value, not an error.
	if analysis.Unit.Value != "" || analysis.Unit.Confidence != 0 {
		t.Errorf("expected zero unit field, got %+v", analysis.Unit)
	}
}

func TestParseAnalysis_BareStringField(t *testing.T) {
	// Some models return bare strings instead of scored objects.
	payload := []byte(`{"force": "West Midlands Police", "rank": {"value": "Constable", "confidence": 0.8}}`)

	analysis, err := ParseAnalysis(payload)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if analysis.Force.Value != "West Midlands Police" {
		t.Errorf("expected bare string accepted, got %+v", analysis.Force)
	}
	if analysis.Force.Confidence != 0 {
		t.Errorf("bare string must carry zero confidence, got %f", analysis.Force.Confidence)
	}
}

func TestParseAnalysis_ConfidenceClamped(t *testing.T) {
	payload := []byte(`{"force": {"value": "BTP", "confidence": 1.7}, "rank": {"value": "PC", "confidence": -0.2}}`)

	analysis, err := ParseAnalysis(payload)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if analysis.Force.Confidence != 1 {
		t.Errorf("expected confidence clamped to 1, got %f", analysis.Force.Confidence)
	}
	if analysis.Rank.Confidence != 0 {
		t.Errorf("expected confidence clamped to 0, got %f", analysis.Rank.Confidence)
	}
}

func TestParseAnalysis_InvalidJSON(t *testing.T) {
	if _, err := ParseAnalysis([]byte("not json at all")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"prose around object", `Here you go: {"a": {"b": 2}} hope that helps`, `{"a": {"b": 2}}`},
		{"no object", "no json here", "no json here"},
		{"unclosed object", `{"a": 1`, `{"a": 1`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.input); got != tt.expected {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	limiter := NewRateLimiter(3)
	ctx := context.Background()

	for i := range 3 {
		start := time.Now()
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("wait %d failed: %v", i, err)
		}
		if time.Since(start) > 100*time.Millisecond {
			t.Fatalf("wait %d blocked unexpectedly", i)
		}
	}

	if limiter.Available() != 0 {
		t.Errorf("expected 0 available slots, got %d", limiter.Available())
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	limiter := NewRateLimiter(1)
	limiter.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	if err == nil {
		t.Fatal("expected wait to be cancelled by context")
	}
	if err != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestRateLimiter_WindowRollsOver(t *testing.T) {
	limiter := NewRateLimiter(2)
	current := time.Now()
	limiter.now = func() time.Time { return current }

	ctx := context.Background()
	limiter.Wait(ctx)
	limiter.Wait(ctx)
	if limiter.Available() != 0 {
		t.Fatalf("expected 0 available, got %d", limiter.Available())
	}

	// After the window passes, both slots free up.
	current = current.Add(61 * time.Second)
	if limiter.Available() != 2 {
		t.Errorf("expected 2 available after window, got %d", limiter.Available())
	}
}

func TestRateLimiter_Unlimited(t *testing.T) {
	limiter := NewRateLimiter(0)
	ctx := context.Background()

	for range 100 {
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("unlimited limiter blocked: %v", err)
		}
	}
}

func TestResizeImage(t *testing.T) {
	// 1200x600 source must come back with the long edge capped at 800.
	src := image.NewRGBA(image.Rect(0, 0, 1200, 600))
	for y := range 600 {
		for x := range 1200 {
			src.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 100, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, nil); err != nil {
		t.Fatalf("could not encode test image: %v", err)
	}

	resized, err := ResizeImage(buf.Bytes(), 800)
	if err != nil {
		t.Fatalf("resize failed: %v", err)
	}

	img, _, err := image.Decode(bytes.NewReader(resized))
	if err != nil {
		t.Fatalf("could not decode resized image: %v", err)
	}
	if img.Bounds().Dx() != 800 {
		t.Errorf("expected width 800, got %d", img.Bounds().Dx())
	}
	if img.Bounds().Dy() != 400 {
		t.Errorf("expected height 400, got %d", img.Bounds().Dy())
	}
}

func TestResizeImage_SmallImageUntouched(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 80))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, nil); err != nil {
		t.Fatalf("could not encode test image: %v", err)
	}

	resized, err := ResizeImage(buf.Bytes(), 800)
	if err != nil {
		t.Fatalf("resize failed: %v", err)
	}

	img, _, err := image.Decode(bytes.NewReader(resized))
	if err != nil {
		t.Fatalf("could not decode resized image: %v", err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 80 {
		t.Errorf("small image should keep its dimensions, got %v", img.Bounds())
	}
}

func TestResizeImage_InvalidData(t *testing.T) {
	if _, err := ResizeImage([]byte("not an image"), 800); err == nil {
		t.Error("expected error for undecodable data")
	}
}

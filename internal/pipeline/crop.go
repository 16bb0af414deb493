package pipeline

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// cropUniformRegion cuts the area around a face bounding box, widened and
// extended downward so shoulder numbers and uniform markings below the face
// stay in frame. The crop is re-encoded as JPEG for the detector and vision
// services.
func cropUniformRegion(imageData []byte, bbox []float64) ([]byte, error) {
	if len(bbox) < 4 {
		return nil, fmt.Errorf("bounding box needs 4 coordinates, got %d", len(bbox))
	}

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}

	x1, y1, x2, y2 := bbox[0], bbox[1], bbox[2], bbox[3]
	w := x2 - x1
	h := y2 - y1
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("degenerate bounding box %v", bbox)
	}

	// One face-width of margin each side, half above, three below.
	region := image.Rect(
		int(x1-w),
		int(y1-h/2),
		int(x2+w),
		int(y2+3*h),
	).Intersect(img.Bounds())
	if region.Empty() {
		return nil, fmt.Errorf("bounding box %v outside image bounds %v", bbox, img.Bounds())
	}

	dst := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	draw.Copy(dst, image.Point{}, img, region, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encoding crop: %w", err)
	}
	return buf.Bytes(), nil
}

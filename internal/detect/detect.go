// Package detect wraps the external face-detection/embedding and OCR
// services. Both are black boxes reached over HTTP; whether a backend is
// configured at all is decided once at construction time.
package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

var (
	// ErrFacesUnavailable means no face service is configured.
	ErrFacesUnavailable = errors.New("face detection service not configured")
	// ErrOCRUnavailable means no OCR service is configured.
	ErrOCRUnavailable = errors.New("OCR service not configured")
)

// Face is a single detected face with its embedding.
type Face struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// faceResponse represents the response from the face detection endpoint.
type faceResponse struct {
	FacesCount int    `json:"faces_count"`
	Faces      []Face `json:"faces"`
	Model      string `json:"model"`
}

// TextRegion is one recognized text fragment with its confidence.
type TextRegion struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox,omitempty"`
}

// ocrResponse represents the response from the OCR endpoint.
type ocrResponse struct {
	Results []TextRegion `json:"results"`
}

// Client talks to the detector services.
type Client struct {
	faceURL string
	ocrURL  string
	client  *http.Client
}

// NewClient creates a detector client. Empty URLs disable the corresponding
// capability; callers check CanDetectFaces/CanReadText instead of probing
// for failures.
func NewClient(faceURL, ocrURL string) *Client {
	return &Client{
		faceURL: strings.TrimSuffix(faceURL, "/"),
		ocrURL:  strings.TrimSuffix(ocrURL, "/"),
		client:  &http.Client{},
	}
}

// CanDetectFaces reports whether a face service is configured.
func (c *Client) CanDetectFaces() bool {
	return c.faceURL != ""
}

// CanReadText reports whether an OCR service is configured.
func (c *Client) CanReadText() bool {
	return c.ocrURL != ""
}

// DetectFaces detects faces in an image and computes their embeddings.
// Faces come back in detector order, which downstream processing preserves.
func (c *Client) DetectFaces(ctx context.Context, imageData []byte) ([]Face, string, error) {
	if !c.CanDetectFaces() {
		return nil, "", ErrFacesUnavailable
	}

	body, err := c.postMultipartImage(ctx, c.faceURL+"/detect/face", imageData)
	if err != nil {
		return nil, "", err
	}

	var resp faceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", fmt.Errorf("failed to parse response: %w", err)
	}

	return resp.Faces, resp.Model, nil
}

// ReadText runs OCR on an image crop and returns recognized fragments with
// confidences.
func (c *Client) ReadText(ctx context.Context, imageData []byte) ([]TextRegion, error) {
	if !c.CanReadText() {
		return nil, ErrOCRUnavailable
	}

	body, err := c.postMultipartImage(ctx, c.ocrURL+"/ocr", imageData)
	if err != nil {
		return nil, err
	}

	var resp ocrResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return resp.Results, nil
}

// postMultipartImage constructs a multipart form with the image data and
// posts it to the given URL. The part carries an explicit Content-Type
// header based on magic byte detection.
func (c *Client) postMultipartImage(ctx context.Context, url string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image data.
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}

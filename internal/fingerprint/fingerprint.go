// Package fingerprint computes exact and perceptual fingerprints for
// uploaded media. The content hash is a streaming SHA-256 over the file
// bytes; the perceptual hash is a 64-bit DCT hash of the decoded image
// (or the first decodable video frame), stable under re-encoding,
// resizing and minor compression.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"sort"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// Fingerprint holds the computed fingerprints for one media file.
type Fingerprint struct {
	ContentHash    string `json:"content_hash"`    // SHA-256 hex digest of the file bytes
	PerceptualHash string `json:"perceptual_hash"` // 64-bit pHash as hex, empty if undecodable
	Size           int64  `json:"size"`
}

// ContentHash computes the SHA-256 digest of a byte stream without loading
// it wholesale. Returns the hex digest and the number of bytes read.
func ContentHash(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("hashing content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// PerceptualHash computes a 64-bit DCT perceptual hash of an encoded image,
// returned as a 16-character hex string.
func PerceptualHash(imageData []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return "", fmt.Errorf("decoding image: %w", err)
	}
	return fmt.Sprintf("%016x", computePHash(img)), nil
}

// Image fingerprints an encoded image. The content hash always succeeds;
// a decode failure only degrades the perceptual hash to empty.
func Image(data []byte) (*Fingerprint, error) {
	contentHash, size, err := ContentHash(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	fp := &Fingerprint{ContentHash: contentHash, Size: size}
	if phash, err := PerceptualHash(data); err == nil {
		fp.PerceptualHash = phash
	}
	return fp, nil
}

// Video fingerprints a video stream. The content hash covers the full byte
// stream; the perceptual hash is computed from the first successfully decoded
// frame, supplied by the caller as an encoded image. A nil or undecodable
// frame degrades to an empty perceptual hash, so a content-identical
// re-upload is still caught even when frame decoding fails.
func Video(r io.Reader, firstFrame []byte) (*Fingerprint, error) {
	contentHash, size, err := ContentHash(r)
	if err != nil {
		return nil, err
	}

	fp := &Fingerprint{ContentHash: contentHash, Size: size}
	if len(firstFrame) > 0 {
		if phash, err := PerceptualHash(firstFrame); err == nil {
			fp.PerceptualHash = phash
		}
	}
	return fp, nil
}

// computePHash computes a 64-bit perceptual hash using DCT.
func computePHash(img image.Image) uint64 {
	// 1. Resize to 32x32 for DCT processing
	resized := resizeImage(img, 32, 32)

	// 2. Convert to grayscale
	gray := toGrayscale(resized)

	// 3. Compute 32x32 DCT (Discrete Cosine Transform)
	dct := computeDCT(gray)

	// 4. Extract top-left 8x8 DCT coefficients (low frequencies)
	//    excluding DC component (0,0)
	lowFreq := make([]float64, 64)
	idx := 0
	for u := range 8 {
		for v := range 8 {
			if u == 0 && v == 0 {
				continue // Skip DC component
			}
			if idx < 64 {
				lowFreq[idx] = dct[u][v]
				idx++
			}
		}
	}
	// Fill remaining with the last few coefficients.
	for ; idx < 64; idx++ {
		lowFreq[idx] = dct[idx/8][idx%8]
	}

	// 5. Compute median of the 64 values
	median := computeMedian(lowFreq)

	// 6. Generate hash: 1 if value > median, 0 otherwise
	var hash uint64
	for i := range 64 {
		if lowFreq[i] > median {
			hash |= 1 << (63 - i)
		}
	}

	return hash
}

// resizeImage scales an image to the specified dimensions.
func resizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// toGrayscale converts an image to a 2D array of grayscale values (0-255).
func toGrayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma formula.
			luma := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			gray[x][y] = luma
		}
	}

	return gray
}

// computeDCT computes the Discrete Cosine Transform of a grayscale image.
func computeDCT(gray [][]float64) [][]float64 {
	size := len(gray)
	dct := make([][]float64, size)
	for i := range dct {
		dct[i] = make([]float64, size)
	}

	// Precompute cosine values for efficiency.
	cosTable := make([][]float64, size)
	for i := range cosTable {
		cosTable[i] = make([]float64, size)
		for j := range size {
			cosTable[i][j] = math.Cos(math.Pi * float64(i) * (2*float64(j) + 1) / (2 * float64(size)))
		}
	}

	// DCT-II formula.
	for u := range size {
		for v := range size {
			var sum float64
			for x := range size {
				for y := range size {
					sum += gray[x][y] * cosTable[u][x] * cosTable[v][y]
				}
			}
			dct[u][v] = sum
		}
	}

	return dct
}

// computeMedian returns the median value from a slice.
func computeMedian(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/copwatch-uk/copwatch/internal/database"
	"github.com/copwatch-uk/copwatch/internal/dedup"
	"github.com/copwatch-uk/copwatch/internal/fingerprint"
	"github.com/copwatch-uk/copwatch/internal/pipeline"
)

// MediaHandler handles media upload and lookup endpoints.
type MediaHandler struct {
	pipeline    *pipeline.Pipeline
	media       database.MediaReader
	appearances database.AppearanceReader
	index       *dedup.Index
}

// NewMediaHandler creates a new media handler.
func NewMediaHandler(p *pipeline.Pipeline, media database.MediaReader, appearances database.AppearanceReader, index *dedup.Index) *MediaHandler {
	return &MediaHandler{
		pipeline:    p,
		media:       media,
		appearances: appearances,
		index:       index,
	}
}

// MediaResponse represents a media item in API responses.
type MediaResponse struct {
	ID             int64  `json:"id"`
	UID            string `json:"uid"`
	FileName       string `json:"file_name"`
	MediaType      string `json:"media_type"`
	ContentHash    string `json:"content_hash"`
	PerceptualHash string `json:"perceptual_hash,omitempty"`
	FileSize       int64  `json:"file_size"`
	Source         string `json:"source,omitempty"`
	IsDuplicate    bool   `json:"is_duplicate"`
	DuplicateOfID  *int64 `json:"duplicate_of_id,omitempty"`
	DuplicateType  string `json:"duplicate_type,omitempty"`
	UploadedAt     string `json:"uploaded_at"`
}

func mediaToResponse(m *database.MediaItem) MediaResponse {
	return MediaResponse{
		ID:             m.ID,
		UID:            m.UID,
		FileName:       m.FileName,
		MediaType:      string(m.MediaType),
		ContentHash:    m.ContentHash,
		PerceptualHash: m.PerceptualHash,
		FileSize:       m.FileSize,
		Source:         m.Source,
		IsDuplicate:    m.IsDuplicate,
		DuplicateOfID:  m.DuplicateOfID,
		DuplicateType:  string(m.DuplicateType),
		UploadedAt:     m.UploadedAt.Format(time.RFC3339),
	}
}

// UploadResponse is the result of a processed upload.
type UploadResponse struct {
	Media     MediaResponse `json:"media"`
	Duplicate *dedup.Result `json:"duplicate"`
	Frames    int           `json:"frames"`
	Faces     int           `json:"faces"`
}

// Upload ingests a single uploaded file through the full pipeline.
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	data, fileName, ok := readUploadedFile(w, r)
	if !ok {
		return
	}

	mediaType := resolveMediaType(r.FormValue("media_type"), fileName)

	result, err := h.pipeline.Ingest(r.Context(), pipeline.Upload{
		FileName:  fileName,
		MediaType: mediaType,
		Source:    r.FormValue("source"),
		Data:      data,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to process upload")
		return
	}

	respondJSON(w, http.StatusCreated, UploadResponse{
		Media:     mediaToResponse(result.Media),
		Duplicate: result.Duplicate,
		Frames:    result.Frames,
		Faces:     result.Faces,
	})
}

// CheckResponse is the dry-run duplicate check result: the verdict together
// with the fingerprints it was computed from.
type CheckResponse struct {
	IsDuplicate     bool   `json:"is_duplicate"`
	DuplicateType   string `json:"duplicate_type,omitempty"`
	OriginalID      int64  `json:"original_id,omitempty"`
	ContentHash     string `json:"content_hash"`
	PerceptualHash  string `json:"perceptual_hash,omitempty"`
	FileSize        int64  `json:"file_size"`
	SimilarityScore int    `json:"similarity_score,omitempty"`
}

// Check runs the duplicate gate against a file without storing anything.
func (h *MediaHandler) Check(w http.ResponseWriter, r *http.Request) {
	data, fileName, ok := readUploadedFile(w, r)
	if !ok {
		return
	}

	mediaType := resolveMediaType(r.FormValue("media_type"), fileName)

	var fp *fingerprint.Fingerprint
	var err error
	if mediaType == database.MediaTypeVideo {
		// No frame extraction on a dry-run check; content hash only.
		fp, err = fingerprint.Video(bytes.NewReader(data), nil)
	} else {
		fp, err = fingerprint.Image(data)
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to fingerprint file")
		return
	}

	result, err := h.index.FindDuplicate(r.Context(), fp, mediaType)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to check for duplicates")
		return
	}

	respondJSON(w, http.StatusOK, CheckResponse{
		IsDuplicate:     result.IsDuplicate,
		DuplicateType:   string(result.Type),
		OriginalID:      result.OriginalID,
		ContentHash:     fp.ContentHash,
		PerceptualHash:  fp.PerceptualHash,
		FileSize:        fp.Size,
		SimilarityScore: result.Distance,
	})
}

// Get returns a single media item by its public UID.
func (h *MediaHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if uid == "" {
		respondError(w, http.StatusBadRequest, "uid is required")
		return
	}

	item, err := h.media.GetByUID(r.Context(), uid)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "media item not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get media item")
		return
	}

	respondJSON(w, http.StatusOK, mediaToResponse(item))
}

// Appearances returns all officer sightings detected in one media item.
func (h *MediaHandler) Appearances(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if uid == "" {
		respondError(w, http.StatusBadRequest, "uid is required")
		return
	}

	item, err := h.media.GetByUID(r.Context(), uid)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "media item not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get media item")
		return
	}

	appearances, err := h.appearances.ListByMedia(r.Context(), item.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list appearances")
		return
	}

	response := make([]AppearanceResponse, len(appearances))
	for i := range appearances {
		response[i] = appearanceToResponse(appearances[i])
	}
	respondJSON(w, http.StatusOK, response)
}

// readUploadedFile pulls the single "file" part out of a multipart request.
func readUploadedFile(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return nil, "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "no file provided")
		return nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read file")
		return nil, "", false
	}
	return data, filepath.Base(header.Filename), true
}

// resolveMediaType uses the explicit form value when present, otherwise the
// file extension.
func resolveMediaType(explicit, fileName string) database.MediaType {
	switch explicit {
	case string(database.MediaTypeImage):
		return database.MediaTypeImage
	case string(database.MediaTypeVideo):
		return database.MediaTypeVideo
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".mp4", ".mov", ".avi", ".mkv", ".webm":
		return database.MediaTypeVideo
	}
	return database.MediaTypeImage
}

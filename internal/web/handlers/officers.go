package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/copwatch-uk/copwatch/internal/database"
)

// defaultPageSize is the officer list page size when none is requested.
const defaultPageSize = 50

// OfficerStore is the persistence surface the officer endpoints need.
type OfficerStore interface {
	database.OfficerWriter
	database.AppearanceReader
}

// OfficerHandler handles officer registry endpoints.
type OfficerHandler struct {
	store OfficerStore
}

// NewOfficerHandler creates a new officer handler.
func NewOfficerHandler(store OfficerStore) *OfficerHandler {
	return &OfficerHandler{store: store}
}

// OfficerResponse represents an officer in API responses. Badge, force, rank
// and name are the effective values with manual overrides applied; the raw
// detected values and the overrides are exposed separately.
type OfficerResponse struct {
	ID             int64  `json:"id"`
	Badge          string `json:"badge,omitempty"`
	ShoulderNumber string `json:"shoulder_number,omitempty"`
	Force          string `json:"force,omitempty"`
	Rank           string `json:"rank,omitempty"`
	Name           string `json:"name,omitempty"`

	DetectedBadge string `json:"detected_badge,omitempty"`
	DetectedForce string `json:"detected_force,omitempty"`
	DetectedRank  string `json:"detected_rank,omitempty"`
	DetectedName  string `json:"detected_name,omitempty"`

	BadgeOverride string `json:"badge_override,omitempty"`
	ForceOverride string `json:"force_override,omitempty"`
	RankOverride  string `json:"rank_override,omitempty"`
	NameOverride  string `json:"name_override,omitempty"`

	HasEmbedding   bool   `json:"has_embedding"`
	EmbeddingModel string `json:"embedding_model,omitempty"`

	MergedIntoID    *int64   `json:"merged_into_id,omitempty"`
	MergeConfidence *float64 `json:"merge_confidence,omitempty"`

	Appearances int `json:"appearances"`

	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func officerToResponse(o *database.Officer, appearances int) OfficerResponse {
	resp := OfficerResponse{
		ID:             o.ID,
		Badge:          o.EffectiveBadge(),
		ShoulderNumber: o.ShoulderNumber,
		Force:          o.EffectiveForce(),
		Rank:           o.EffectiveRank(),
		Name:           o.EffectiveName(),

		DetectedBadge: o.BadgeNumber,
		DetectedForce: o.Force,
		DetectedRank:  o.Rank,
		DetectedName:  o.Name,

		BadgeOverride: o.BadgeOverride,
		ForceOverride: o.ForceOverride,
		RankOverride:  o.RankOverride,
		NameOverride:  o.NameOverride,

		HasEmbedding:   o.HasEmbedding(),
		EmbeddingModel: o.EmbeddingModel,

		MergedIntoID:    o.MergedIntoID,
		MergeConfidence: o.MergeConfidence,

		Appearances: appearances,
	}
	if !o.CreatedAt.IsZero() {
		resp.CreatedAt = o.CreatedAt.Format(time.RFC3339)
	}
	if !o.UpdatedAt.IsZero() {
		resp.UpdatedAt = o.UpdatedAt.Format(time.RFC3339)
	}
	return resp
}

// AppearanceResponse represents one sighting in API responses.
type AppearanceResponse struct {
	ID          int64     `json:"id"`
	OfficerID   int64     `json:"officer_id"`
	MediaItemID int64     `json:"media_item_id"`
	FrameNumber int       `json:"frame_number"`
	FrameTime   float64   `json:"frame_time"`
	BBox        []float64 `json:"bbox,omitempty"`
	DetScore    float64   `json:"det_score"`

	OCRBadge     string  `json:"ocr_badge,omitempty"`
	OCRBadgeConf float64 `json:"ocr_badge_conf,omitempty"`
	OCRName      string  `json:"ocr_name,omitempty"`
	OCRNameConf  float64 `json:"ocr_name_conf,omitempty"`

	Confidence float64         `json:"confidence"`
	Breakdown  json.RawMessage `json:"breakdown,omitempty"`
	CreatedAt  string          `json:"created_at,omitempty"`
}

func appearanceToResponse(a database.OfficerAppearance) AppearanceResponse {
	resp := AppearanceResponse{
		ID:           a.ID,
		OfficerID:    a.OfficerID,
		MediaItemID:  a.MediaItemID,
		FrameNumber:  a.FrameNumber,
		FrameTime:    a.FrameTime,
		BBox:         a.BBox,
		DetScore:     a.DetScore,
		OCRBadge:     a.OCRBadge,
		OCRBadgeConf: a.OCRBadgeConf,
		OCRName:      a.OCRName,
		OCRNameConf:  a.OCRNameConf,
		Confidence:   a.Confidence,
		Breakdown:    a.Breakdown,
	}
	if !a.CreatedAt.IsZero() {
		resp.CreatedAt = a.CreatedAt.Format(time.RFC3339)
	}
	return resp
}

// List returns active officers with appearance counts, paginated.
func (h *OfficerHandler) List(w http.ResponseWriter, r *http.Request) {
	count, _ := strconv.Atoi(r.URL.Query().Get("count"))
	if count <= 0 {
		count = defaultPageSize
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	officers, err := h.store.ListActive(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list officers")
		return
	}

	if offset > len(officers) {
		offset = len(officers)
	}
	end := offset + count
	if end > len(officers) {
		end = len(officers)
	}
	page := officers[offset:end]

	response := make([]OfficerResponse, len(page))
	for i := range page {
		appearances, err := h.store.CountByOfficer(r.Context(), page[i].ID, true)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to count appearances")
			return
		}
		response[i] = officerToResponse(&page[i], appearances)
	}

	respondJSON(w, http.StatusOK, response)
}

// Get returns a single officer by ID.
func (h *OfficerHandler) Get(w http.ResponseWriter, r *http.Request) {
	officer, ok := h.loadOfficer(w, r)
	if !ok {
		return
	}

	appearances, err := h.store.CountByOfficer(r.Context(), officer.ID, true)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count appearances")
		return
	}

	respondJSON(w, http.StatusOK, officerToResponse(officer, appearances))
}

// OfficerUpdateRequest carries manual override updates. A nil field is left
// untouched; an empty string clears the override.
type OfficerUpdateRequest struct {
	BadgeOverride *string `json:"badge_override,omitempty"`
	ForceOverride *string `json:"force_override,omitempty"`
	RankOverride  *string `json:"rank_override,omitempty"`
	NameOverride  *string `json:"name_override,omitempty"`
}

// Update sets manual overrides on an officer. Detected values are never
// modified through the API; operators correct the record by overriding it.
func (h *OfficerHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req OfficerUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	officer, ok := h.loadOfficer(w, r)
	if !ok {
		return
	}

	if req.BadgeOverride != nil {
		officer.BadgeOverride = *req.BadgeOverride
	}
	if req.ForceOverride != nil {
		officer.ForceOverride = *req.ForceOverride
	}
	if req.RankOverride != nil {
		officer.RankOverride = *req.RankOverride
	}
	if req.NameOverride != nil {
		officer.NameOverride = *req.NameOverride
	}

	if err := h.store.Save(r.Context(), officer); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update officer")
		return
	}

	appearances, err := h.store.CountByOfficer(r.Context(), officer.ID, true)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count appearances")
		return
	}

	respondJSON(w, http.StatusOK, officerToResponse(officer, appearances))
}

// Appearances returns an officer's sightings, including appearances of
// merged-in officers unless own_only is set.
func (h *OfficerHandler) Appearances(w http.ResponseWriter, r *http.Request) {
	officer, ok := h.loadOfficer(w, r)
	if !ok {
		return
	}

	includeMerged := r.URL.Query().Get("own_only") != "true"
	appearances, err := h.store.ListByOfficer(r.Context(), officer.ID, includeMerged)
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

// loadOfficer parses the {id} URL parameter and loads the officer.
func (h *OfficerHandler) loadOfficer(w http.ResponseWriter, r *http.Request) (*database.Officer, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid officer id")
		return nil, false
	}

	officer, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "officer not found")
			return nil, false
		}
		respondError(w, http.StatusInternalServerError, "failed to get officer")
		return nil, false
	}
	return officer, true
}

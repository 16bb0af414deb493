package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/copwatch-uk/copwatch/internal/database"
	"github.com/copwatch-uk/copwatch/internal/merge"
)

// MergeHandler handles the merge workflow endpoints.
type MergeHandler struct {
	manager *merge.Manager
	merges  database.MergeReader
}

// NewMergeHandler creates a new merge handler.
func NewMergeHandler(manager *merge.Manager, merges database.MergeReader) *MergeHandler {
	return &MergeHandler{manager: manager, merges: merges}
}

// MergeResponse represents a merge audit record in API responses.
type MergeResponse struct {
	ID         int64   `json:"id"`
	PrimaryID  int64   `json:"primary_id"`
	MergedID   int64   `json:"merged_id"`
	Confidence float64 `json:"confidence"`
	Automatic  bool    `json:"automatic"`
	Actor      string  `json:"actor,omitempty"`
	CreatedAt  string  `json:"created_at,omitempty"`
	Unmerged   bool    `json:"unmerged"`
	UnmergedAt string  `json:"unmerged_at,omitempty"`
	UnmergedBy string  `json:"unmerged_by,omitempty"`
}

func mergeToResponse(m *database.OfficerMerge) MergeResponse {
	resp := MergeResponse{
		ID:         m.ID,
		PrimaryID:  m.PrimaryID,
		MergedID:   m.MergedID,
		Confidence: m.Confidence,
		Automatic:  m.Automatic,
		Actor:      m.Actor,
		Unmerged:   m.Unmerged,
		UnmergedBy: m.UnmergedBy,
	}
	if !m.CreatedAt.IsZero() {
		resp.CreatedAt = m.CreatedAt.Format(time.RFC3339)
	}
	if m.UnmergedAt != nil {
		resp.UnmergedAt = m.UnmergedAt.Format(time.RFC3339)
	}
	return resp
}

// Candidates returns merge proposals from a pairwise similarity scan over
// the active officer pool.
func (h *MergeHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.manager.FindCandidates(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to find merge candidates")
		return
	}
	if candidates == nil {
		candidates = []merge.Candidate{}
	}
	respondJSON(w, http.StatusOK, candidates)
}

// MergeRequest asks to fold one officer identity into another.
type MergeRequest struct {
	PrimaryID   int64   `json:"primary_id"`
	CandidateID int64   `json:"candidate_id"`
	Confidence  float64 `json:"confidence"`
	Automatic   bool    `json:"automatic"`
	Actor       string  `json:"actor"`
}

// Create performs a merge.
func (h *MergeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req MergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.PrimaryID <= 0 || req.CandidateID <= 0 {
		respondError(w, http.StatusBadRequest, "primary_id and candidate_id are required")
		return
	}

	record, err := h.manager.Merge(r.Context(), req.PrimaryID, req.CandidateID, req.Confidence, req.Automatic, req.Actor)
	if err != nil {
		switch {
		case errors.Is(err, merge.ErrSelfMerge):
			respondError(w, http.StatusBadRequest, "an officer cannot be merged into itself")
		case errors.Is(err, merge.ErrAlreadyMerged):
			respondError(w, http.StatusConflict, "officer is already merged")
		case errors.Is(err, merge.ErrApprovalRequired):
			respondError(w, http.StatusConflict, "confidence too low for automatic merge, manual approval required")
		case errors.Is(err, database.ErrNotFound):
			respondError(w, http.StatusNotFound, "officer not found")
		default:
			respondError(w, http.StatusInternalServerError, "failed to merge officers")
		}
		return
	}

	respondJSON(w, http.StatusCreated, mergeToResponse(record))
}

// UnmergeRequest carries the actor reversing a merge.
type UnmergeRequest struct {
	Actor string `json:"actor"`
}

// Unmerge reverses a previous merge. The audit record stays; the merged
// officer returns to the active pool.
func (h *MergeHandler) Unmerge(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid merge id")
		return
	}

	var req UnmergeRequest
	if r.Body != nil {
		// Body is optional; a bare unmerge has no actor.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if err := h.manager.Unmerge(r.Context(), id, req.Actor); err != nil {
		switch {
		case errors.Is(err, merge.ErrAlreadyUnmerged):
			respondError(w, http.StatusConflict, "merge has already been reversed")
		case errors.Is(err, database.ErrNotFound):
			respondError(w, http.StatusNotFound, "merge not found")
		default:
			respondError(w, http.StatusInternalServerError, "failed to unmerge")
		}
		return
	}

	record, err := h.merges.GetMerge(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load merge record")
		return
	}

	respondJSON(w, http.StatusOK, mergeToResponse(record))
}

// ListForOfficer returns the merge history involving one officer, on either
// side of the merge.
func (h *MergeHandler) ListForOfficer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid officer id")
		return
	}

	records, err := h.merges.ListMerges(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list merges")
		return
	}

	response := make([]MergeResponse, len(records))
	for i := range records {
		response[i] = mergeToResponse(&records[i])
	}
	respondJSON(w, http.StatusOK, response)
}

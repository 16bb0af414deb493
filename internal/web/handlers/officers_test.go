package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/copwatch-uk/copwatch/internal/database"
	"github.com/copwatch-uk/copwatch/internal/database/mock"
)

func TestOfficerGet(t *testing.T) {
	store := mock.NewOfficerStore()
	officer := seedOfficer(t, store, "J Smith", "AB1234", embedding512(1))
	officer.NameOverride = "John Smith"
	if err := store.Save(context.Background(), officer); err != nil {
		t.Fatalf("failed to save override: %v", err)
	}

	handler := NewOfficerHandler(store)
	req := requestWithChiParams(
		httptest.NewRequest(http.MethodGet, "/officers/1", nil),
		map[string]string{"id": "1"},
	)
	rec := httptest.NewRecorder()
	handler.Get(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var resp OfficerResponse
	parseJSONResponse(t, rec, &resp)

	if resp.Name != "John Smith" {
		t.Errorf("expected effective name from override, got %q", resp.Name)
	}
	if resp.DetectedName != "J Smith" {
		t.Errorf("detected name should be preserved, got %q", resp.DetectedName)
	}
	if resp.Badge != "AB1234" {
		t.Errorf("expected badge AB1234, got %q", resp.Badge)
	}
	if !resp.HasEmbedding {
		t.Error("expected has_embedding true")
	}
}

func TestOfficerGetNotFound(t *testing.T) {
	handler := NewOfficerHandler(mock.NewOfficerStore())
	req := requestWithChiParams(
		httptest.NewRequest(http.MethodGet, "/officers/42", nil),
		map[string]string{"id": "42"},
	)
	rec := httptest.NewRecorder()
	handler.Get(rec, req)

	assertStatusCode(t, rec, http.StatusNotFound)
	assertJSONError(t, rec, "officer not found")
}

func TestOfficerGetInvalidID(t *testing.T) {
	handler := NewOfficerHandler(mock.NewOfficerStore())
	req := requestWithChiParams(
		httptest.NewRequest(http.MethodGet, "/officers/abc", nil),
		map[string]string{"id": "abc"},
	)
	rec := httptest.NewRecorder()
	handler.Get(rec, req)

	assertStatusCode(t, rec, http.StatusBadRequest)
}

func TestOfficerListPagination(t *testing.T) {
	store := mock.NewOfficerStore()
	for i := 0; i < 5; i++ {
		seedOfficer(t, store, "", "", embedding512(float32(i+1)))
	}

	handler := NewOfficerHandler(store)
	req := httptest.NewRequest(http.MethodGet, "/officers?count=2&offset=2", nil)
	rec := httptest.NewRecorder()
	handler.List(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var resp []OfficerResponse
	parseJSONResponse(t, rec, &resp)
	if len(resp) != 2 {
		t.Errorf("expected page of 2 officers, got %d", len(resp))
	}
}

func TestOfficerListExcludesMerged(t *testing.T) {
	store := mock.NewOfficerStore()
	seedOfficer(t, store, "", "", embedding512(1))
	merged := seedOfficer(t, store, "", "", embedding512(2))
	if err := store.SetMergeState(context.Background(), merged.ID, 1, 0.97); err != nil {
		t.Fatalf("failed to set merge state: %v", err)
	}

	handler := NewOfficerHandler(store)
	req := httptest.NewRequest(http.MethodGet, "/officers", nil)
	rec := httptest.NewRecorder()
	handler.List(rec, req)

	var resp []OfficerResponse
	parseJSONResponse(t, rec, &resp)
	if len(resp) != 1 {
		t.Errorf("expected only the active officer, got %d", len(resp))
	}
}

func TestOfficerUpdateOverrides(t *testing.T) {
	store := mock.NewOfficerStore()
	seedOfficer(t, store, "J Smith", "AB1234", nil)

	handler := NewOfficerHandler(store)
	body := []byte(`{"name_override": "John Smith", "rank_override": "Sergeant"}`)
	req := requestWithChiParams(
		httptest.NewRequest(http.MethodPatch, "/officers/1", bytes.NewReader(body)),
		map[string]string{"id": "1"},
	)
	rec := httptest.NewRecorder()
	handler.Update(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var resp OfficerResponse
	parseJSONResponse(t, rec, &resp)
	if resp.Name != "John Smith" || resp.Rank != "Sergeant" {
		t.Errorf("expected overrides applied, got name=%q rank=%q", resp.Name, resp.Rank)
	}
	if resp.DetectedName != "J Smith" {
		t.Error("detected name must not be modified by an override")
	}

	// Clearing an override falls back to the detected value.
	body = []byte(`{"name_override": ""}`)
	req = requestWithChiParams(
		httptest.NewRequest(http.MethodPatch, "/officers/1", bytes.NewReader(body)),
		map[string]string{"id": "1"},
	)
	rec = httptest.NewRecorder()
	handler.Update(rec, req)

	parseJSONResponse(t, rec, &resp)
	if resp.Name != "J Smith" {
		t.Errorf("expected detected name after clearing override, got %q", resp.Name)
	}
	if resp.Rank != "Sergeant" {
		t.Error("untouched override should survive a partial update")
	}
}

func TestOfficerUpdateInvalidBody(t *testing.T) {
	handler := NewOfficerHandler(mock.NewOfficerStore())
	req := requestWithChiParams(
		httptest.NewRequest(http.MethodPatch, "/officers/1", bytes.NewReader([]byte("not json"))),
		map[string]string{"id": "1"},
	)
	rec := httptest.NewRecorder()
	handler.Update(rec, req)

	assertStatusCode(t, rec, http.StatusBadRequest)
	assertJSONError(t, rec, errInvalidRequestBody)
}

func TestOfficerAppearancesIncludeMerged(t *testing.T) {
	store := mock.NewOfficerStore()
	primary := seedOfficer(t, store, "", "", embedding512(1))
	merged := seedOfficer(t, store, "", "", embedding512(2))

	saveAppearance := func(officer *database.Officer, mediaID int64) {
		err := store.SaveSighting(context.Background(), officer, &database.OfficerAppearance{
			MediaItemID: mediaID,
			BBox:        []float64{1, 2, 3, 4},
			DetScore:    0.9,
		})
		if err != nil {
			t.Fatalf("failed to save sighting: %v", err)
		}
	}
	saveAppearance(primary, 10)
	saveAppearance(merged, 11)

	if err := store.SetMergeState(context.Background(), merged.ID, primary.ID, 0.97); err != nil {
		t.Fatalf("failed to set merge state: %v", err)
	}

	handler := NewOfficerHandler(store)

	req := requestWithChiParams(
		httptest.NewRequest(http.MethodGet, "/officers/1/appearances", nil),
		map[string]string{"id": "1"},
	)
	rec := httptest.NewRecorder()
	handler.Appearances(rec, req)

	var resp []AppearanceResponse
	parseJSONResponse(t, rec, &resp)
	if len(resp) != 2 {
		t.Errorf("expected merged appearances included, got %d", len(resp))
	}

	req = requestWithChiParams(
		httptest.NewRequest(http.MethodGet, "/officers/1/appearances?own_only=true", nil),
		map[string]string{"id": "1"},
	)
	rec = httptest.NewRecorder()
	handler.Appearances(rec, req)

	parseJSONResponse(t, rec, &resp)
	if len(resp) != 1 {
		t.Errorf("expected only own appearances, got %d", len(resp))
	}
}

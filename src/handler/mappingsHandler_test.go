package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"investpipeline/src/model"
	"investpipeline/src/repository"
)

type mockMappingSearcher struct {
	mappings    []model.Mapping
	err         error
	options     repository.MappingSearchOptions
	calledCount int
}

func (m *mockMappingSearcher) Search(ctx context.Context, options repository.MappingSearchOptions) ([]model.Mapping, error) {
	m.calledCount++
	m.options = options
	return m.mappings, m.err
}

type mockMappingFinder struct {
	mapping *model.Mapping
	err     error
}

func (m *mockMappingFinder) FindByID(ctx context.Context, id uint) (*model.Mapping, error) {
	return m.mapping, m.err
}

type mockFillFinder struct {
	fill *model.PurchaseFill
	err  error
}

func (m *mockFillFinder) FindByMapping(ctx context.Context, mappingID uint) (*model.PurchaseFill, error) {
	return m.fill, m.err
}

func TestSearchMappingsHandler_InvalidPage(t *testing.T) {
	handler := SearchMappingsHandler(&mockMappingSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/mappings?page=abc", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestSearchMappingsHandler_RepoError(t *testing.T) {
	mockRepo := &mockMappingSearcher{err: assert.AnError}
	handler := SearchMappingsHandler(mockRepo)

	req := httptest.NewRequest(http.MethodGet, "/mappings", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}

	if mockRepo.calledCount != 1 {
		t.Fatalf("expected repository to be called once, got %d", mockRepo.calledCount)
	}
}

func TestSearchMappingsHandler_Success(t *testing.T) {
	mockRepo := &mockMappingSearcher{mappings: []model.Mapping{
		{ID: 2, MerchantName: "NETFLIX.COM", Status: model.MappingStatusPendingReview},
		{ID: 1, MerchantName: "STARBUCKS #9911", Status: model.MappingStatusPendingReview},
	}}
	handler := SearchMappingsHandler(mockRepo)

	req := httptest.NewRequest(http.MethodGet, "/mappings?status=pending_review&page=2&pageSize=10", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	if mockRepo.options.Status != model.MappingStatusPendingReview {
		t.Fatalf("status filter not passed: %+v", mockRepo.options)
	}
	if mockRepo.options.Limit != 10 || mockRepo.options.Offset != 10 {
		t.Fatalf("pagination not translated: %+v", mockRepo.options)
	}

	var decoded []model.Mapping
	if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(decoded) != 2 || decoded[0].ID != 2 {
		t.Fatalf("unexpected response body: %+v", decoded)
	}
}

func routedGet(t *testing.T, handler http.HandlerFunc, pattern, url string) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	r.Get(pattern, handler)

	req := httptest.NewRequest(http.MethodGet, url, nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestGetMappingHandler_InvalidID(t *testing.T) {
	handler := GetMappingHandler(&mockMappingFinder{}, &mockFillFinder{})

	rr := routedGet(t, handler, "/mappings/{id}", "/mappings/abc")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestGetMappingHandler_NotFound(t *testing.T) {
	handler := GetMappingHandler(&mockMappingFinder{}, &mockFillFinder{})

	rr := routedGet(t, handler, "/mappings/{id}", "/mappings/7")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestGetMappingHandler_Success(t *testing.T) {
	mapping := &model.Mapping{
		ID:           7,
		MerchantName: "STARBUCKS #9911",
		Ticker:       "SBUX",
		Status:       model.MappingStatusInvested,
		Attempts: []model.ClassificationAttempt{
			{ID: 1, MappingID: 7, Ticker: "SBUX", Confidence: 0.97},
		},
	}
	fill := &model.PurchaseFill{ID: 3, MappingID: 7, Ticker: "SBUX", ExecutionID: "exec-123"}

	handler := GetMappingHandler(&mockMappingFinder{mapping: mapping}, &mockFillFinder{fill: fill})

	rr := routedGet(t, handler, "/mappings/{id}", "/mappings/7")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var decoded mappingDetail
	if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if decoded.Mapping == nil || decoded.Mapping.ID != 7 {
		t.Fatalf("mapping missing from detail: %+v", decoded)
	}
	if len(decoded.Mapping.Attempts) != 1 {
		t.Fatalf("attempt history missing: %+v", decoded.Mapping)
	}
	if decoded.Fill == nil || decoded.Fill.ExecutionID != "exec-123" {
		t.Fatalf("fill missing from detail: %+v", decoded)
	}
}

func TestGetMappingHandler_NoFill(t *testing.T) {
	mapping := &model.Mapping{ID: 8, MerchantName: "UNKNOWN VENDOR", Status: model.MappingStatusPendingReview}
	handler := GetMappingHandler(&mockMappingFinder{mapping: mapping}, &mockFillFinder{})

	rr := routedGet(t, handler, "/mappings/{id}", "/mappings/8")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var decoded mappingDetail
	if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if decoded.Fill != nil {
		t.Fatalf("expected no fill, got %+v", decoded.Fill)
	}
}

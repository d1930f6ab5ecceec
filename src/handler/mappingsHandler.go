package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"investpipeline/src/model"
	"investpipeline/src/repository"
)

type mappingSearcher interface {
	Search(ctx context.Context, options repository.MappingSearchOptions) ([]model.Mapping, error)
}

type mappingFinder interface {
	FindByID(ctx context.Context, id uint) (*model.Mapping, error)
}

type fillFinder interface {
	FindByMapping(ctx context.Context, mappingID uint) (*model.PurchaseFill, error)
}

// SearchMappingsHandler returns a handler that lists mappings.
// Supports pagination and filters (status, source).
func SearchMappingsHandler(repo mappingSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if pageParam := r.URL.Query().Get("page"); pageParam != "" {
			parsedPage, err := strconv.Atoi(pageParam)
			if err != nil || parsedPage <= 0 {
				http.Error(w, "invalid page", http.StatusBadRequest)
				return
			}
			page = parsedPage
		}

		pageSize := 20
		if sizeParam := r.URL.Query().Get("pageSize"); sizeParam != "" {
			parsedSize, err := strconv.Atoi(sizeParam)
			if err != nil || parsedSize <= 0 {
				http.Error(w, "invalid pageSize", http.StatusBadRequest)
				return
			}
			pageSize = parsedSize
		}

		offset := (page - 1) * pageSize

		mappings, err := repo.Search(r.Context(), repository.MappingSearchOptions{
			Status: r.URL.Query().Get("status"),
			Source: r.URL.Query().Get("source"),
			Limit:  pageSize,
			Offset: offset,
		})
		if err != nil {
			logger.WithError(err).Error("failed to search mappings")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(mappings); err != nil {
			logger.WithError(err).Error("failed to encode mapping search response")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}
}

// mappingDetail joins a mapping with its purchase fill for the detail view.
// The attempt history rides along on the mapping itself.
type mappingDetail struct {
	Mapping *model.Mapping      `json:"mapping"`
	Fill    *model.PurchaseFill `json:"fill,omitempty"`
}

// GetMappingHandler returns a handler serving a single mapping with its
// classification attempts and fill, if any.
func GetMappingHandler(mappings mappingFinder, fills fillFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawID := chi.URLParam(r, "id")
		id, err := strconv.ParseUint(rawID, 10, 64)
		if err != nil {
			http.Error(w, "invalid mapping id", http.StatusBadRequest)
			return
		}

		mapping, err := mappings.FindByID(r.Context(), uint(id))
		if err != nil {
			logger.WithError(err).Error("failed to fetch mapping")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if mapping == nil {
			http.Error(w, "mapping not found", http.StatusNotFound)
			return
		}

		fill, err := fills.FindByMapping(r.Context(), mapping.ID)
		if err != nil {
			logger.WithError(err).Error("failed to fetch fill for mapping")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(mappingDetail{Mapping: mapping, Fill: fill}); err != nil {
			logger.WithError(err).Error("failed to encode mapping detail response")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}
}

// DefaultSearchMappingsHandler wires the handler to the production repository implementation.
func DefaultSearchMappingsHandler() http.HandlerFunc {
	return SearchMappingsHandler(repository.NewMappingRepository())
}

// DefaultGetMappingHandler wires the handler to the production repository implementations.
func DefaultGetMappingHandler() http.HandlerFunc {
	return GetMappingHandler(repository.NewMappingRepository(), repository.NewFillRepository())
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	logger "github.com/sirupsen/logrus"

	"investpipeline/src/model"
	"investpipeline/src/repository"
)

type journalLister interface {
	ListPosted(ctx context.Context, limit int) ([]model.JournalEntry, error)
}

type statsReader interface {
	Stats(ctx context.Context) (*repository.PipelineStats, error)
}

// ListJournalHandler returns a handler serving posted journal entries,
// newest first.
func ListJournalHandler(repo journalLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
			parsed, err := strconv.Atoi(limitParam)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		entries, err := repo.ListPosted(r.Context(), limit)
		if err != nil {
			logger.WithError(err).Error("failed to list journal entries")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			logger.WithError(err).Error("failed to encode journal response")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}
}

// StatsHandler returns a handler serving pipeline aggregates: counts by
// status, average confidence, auto-approval rate.
func StatsHandler(repo statsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := repo.Stats(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to compute pipeline stats")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			logger.WithError(err).Error("failed to encode stats response")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}
}

// DefaultListJournalHandler wires the handler to the production repository implementation.
func DefaultListJournalHandler() http.HandlerFunc {
	return ListJournalHandler(repository.NewJournalRepository())
}

// DefaultStatsHandler wires the handler to the production repository implementation.
func DefaultStatsHandler() http.HandlerFunc {
	return StatsHandler(repository.NewMappingRepository())
}

package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"orderdesk/internal/cache"
)

const maxBody = 1 << 20

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response failed", "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func orderID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid order id")
	}
	return id, nil
}

// mutationError maps a rejected dispatch to a response. Remote failures never
// get here: they arrive later as notices.
func mutationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cache.ErrUnknownOrder):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, cache.ErrClosed):
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
	default:
		slog.Error("mutation dispatch failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"orderdesk/internal/model"
	"orderdesk/internal/notice"
)

type JournalLister interface {
	List(ctx context.Context, limit int) ([]model.JournalEntry, error)
}

func ListJournalHandler(journal JournalLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		entries, err := journal.List(r.Context(), limit)
		if err != nil {
			slog.Error("list journal failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		if len(entries) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

type NoticeReader interface {
	Since(seq uint64) []notice.Notice
}

func ListNoticesHandler(board NoticeReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var since uint64
		if raw := r.URL.Query().Get("since"); raw != "" {
			n, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				http.Error(w, "invalid since", http.StatusBadRequest)
				return
			}
			since = n
		}
		writeJSON(w, http.StatusOK, board.Since(since))
	}
}

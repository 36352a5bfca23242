package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/mind-engage/mindengage-training/internal/events"
)

type EventReader interface {
	Since(ctx context.Context, after int64, limit int) ([]events.Record, error)
}

// GET /events?after=<seq>&limit=100
// Audit feed of attempt lifecycle events, oldest first. Clients page by
// passing the last seq they saw as after.
func ListEventsHandler(log EventReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after, err := parseIntDefault(r.URL.Query().Get("after"), 0)
		if err != nil || after < 0 {
			http.Error(w, "bad after", http.StatusBadRequest)
			return
		}
		limit, err := parseIntDefault(r.URL.Query().Get("limit"), 100)
		if err != nil || limit <= 0 || limit > 1000 {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		recs, err := log.Since(r.Context(), int64(after), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		if recs == nil {
			recs = []events.Record{}
		}
		respondJSON(w, http.StatusOK, recs)
	}
}

func parseIntDefault(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

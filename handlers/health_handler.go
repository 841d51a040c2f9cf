package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db       Pinger
	sessions func() []int
}

func NewHealthHandler(db Pinger, sessions func() []int) *HealthHandler {
	return &HealthHandler{db: db, sessions: sessions}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			status, code = "database unavailable", http.StatusServiceUnavailable
		}
	}

	active := []int{}
	if h.sessions != nil {
		active = h.sessions()
	}
	if err := writeJSON(w, code, jsonResponse{"status": status, "active_games": active}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

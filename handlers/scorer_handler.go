package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iderdiyok/basketball-tourney/middleware"
	"github.com/iderdiyok/basketball-tourney/scorer"
)

// GameForgetter сбрасывает кэш последнего счета у зрителей закрытой игры.
type GameForgetter interface {
	Forget(gameID int)
}

type ScorerHandler struct {
	manager *scorer.Manager
	live    GameForgetter
	logger  *slog.Logger
}

func NewScorerHandler(manager *scorer.Manager, live GameForgetter, logger *slog.Logger) *ScorerHandler {
	return &ScorerHandler{manager: manager, live: live, logger: logger}
}

// audit пишет, кто из Kampfgericht открыл, сохранил или закрыл игру.
func (h *ScorerHandler) audit(r *http.Request, msg string, gameID int) {
	attrs := []any{slog.Int("game_id", gameID)}
	if userID, err := middleware.GetUserIDFromContext(r.Context()); err == nil {
		attrs = append(attrs, slog.Int("user_id", userID))
	}
	h.logger.InfoContext(r.Context(), msg, attrs...)
}

type addPointsInput struct {
	PlayerID int `json:"player_id"`
	Points   int `json:"points"`
}

var errNoSession = errors.New("no open scorer session for this game")

// Open POST /scorer/games/{gameID}
func (h *ScorerHandler) Open(w http.ResponseWriter, r *http.Request) {
	gameID, err := getIDFromURL(r, "gameID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	session, err := h.manager.Open(r.Context(), gameID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	snap, err := session.Snapshot(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.audit(r, "scorer session opened", gameID)
	h.respond(w, r, http.StatusCreated, snap)
}

// Get GET /scorer/games/{gameID}
func (h *ScorerHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(ctx context.Context, s *scorer.Session) (scorer.Snapshot, error) {
		return s.Snapshot(ctx)
	})
}

// Close DELETE /scorer/games/{gameID}
func (h *ScorerHandler) Close(w http.ResponseWriter, r *http.Request) {
	gameID, err := getIDFromURL(r, "gameID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if !h.manager.Close(gameID) {
		errorResponse(w, r, http.StatusNotFound, errNoSession.Error())
		return
	}
	if h.live != nil {
		h.live.Forget(gameID)
	}
	h.audit(r, "scorer session closed", gameID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScorerHandler) StartClock(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(ctx context.Context, s *scorer.Session) (scorer.Snapshot, error) {
		return s.Start(ctx)
	})
}

func (h *ScorerHandler) PauseClock(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(ctx context.Context, s *scorer.Session) (scorer.Snapshot, error) {
		return s.Pause(ctx)
	})
}

func (h *ScorerHandler) ResetClock(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(ctx context.Context, s *scorer.Session) (scorer.Snapshot, error) {
		return s.Reset(ctx)
	})
}

// AddPoints POST /scorer/games/{gameID}/points {"player_id": 1, "points": 2}
func (h *ScorerHandler) AddPoints(w http.ResponseWriter, r *http.Request) {
	var input addPointsInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.PlayerID <= 0 {
		badRequestResponse(w, r, errors.New("player_id is required"))
		return
	}

	h.withSession(w, r, func(ctx context.Context, s *scorer.Session) (scorer.Snapshot, error) {
		return s.AddPoints(ctx, input.PlayerID, input.Points)
	})
}

func (h *ScorerHandler) Undo(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(ctx context.Context, s *scorer.Session) (scorer.Snapshot, error) {
		return s.UndoLast(ctx)
	})
}

// Save POST /scorer/games/{gameID}/save ждет завершения записи результата.
func (h *ScorerHandler) Save(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(ctx context.Context, s *scorer.Session) (scorer.Snapshot, error) {
		if err := s.Save(ctx); err != nil {
			return scorer.Snapshot{}, err
		}
		h.audit(r, "game result saved", s.GameID())
		return s.Snapshot(ctx)
	})
}

func (h *ScorerHandler) withSession(w http.ResponseWriter, r *http.Request, fn func(context.Context, *scorer.Session) (scorer.Snapshot, error)) {
	gameID, err := getIDFromURL(r, "gameID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	session, ok := h.manager.Get(gameID)
	if !ok {
		errorResponse(w, r, http.StatusNotFound, errNoSession.Error())
		return
	}

	snap, err := fn(r.Context(), session)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, snap)
}

func (h *ScorerHandler) respond(w http.ResponseWriter, r *http.Request, status int, snap scorer.Snapshot) {
	if err := writeJSON(w, status, jsonResponse{"scorer": snap}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/iderdiyok/basketball-tourney/livescore"
)

type WebSocketHandler struct {
	hub      *livescore.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler принимает те же origins, что и CORS. "*" разрешает всех.
func NewWebSocketHandler(hub *livescore.Hub, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		// без списка ведем себя как gorilla по умолчанию: только свой host
		if len(allowed) == 0 {
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		}
		return false
	}
}

// ServeWs обрабатывает /ws/games/{gameID}. Зритель получает последний счет сразу после подключения.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	gameID, err := getIDFromURL(r, "gameID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отправляет HTTP ошибку клиенту.
		h.logger.Warn("failed to upgrade spectator connection", slog.Int("game_id", gameID), slog.Any("error", err))
		return
	}

	client := livescore.NewClient(h.hub, conn, livescore.RoomForGame(gameID))
	if err := h.hub.Register(r.Context(), client); err != nil {
		h.logger.Warn("failed to register spectator", slog.Int("game_id", gameID), slog.Any("error", err))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

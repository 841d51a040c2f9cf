package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"

	"github.com/iderdiyok/basketball-tourney/handlers"
	"github.com/iderdiyok/basketball-tourney/middleware"
	"github.com/iderdiyok/basketball-tourney/models"
)

type Handlers struct {
	Scorer    *handlers.ScorerHandler
	Game      *handlers.GameHandler
	WebSocket *handlers.WebSocketHandler
	Health    *handlers.HealthHandler
}

func SetupRoutes(router *chi.Mux, h Handlers, jwtSecret []byte, corsOrigins []string) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/healthz", h.Health.Health)
	router.Get("/games/{gameID}", h.Game.GetGame)
	router.Get("/ws/games/{gameID}", h.WebSocket.ServeWs)

	// Kampfgericht: только admin и scorer
	router.Route("/scorer/games/{gameID}", func(r chi.Router) {
		r.Use(middleware.Authenticate(jwtSecret))
		r.Use(middleware.RequireRole(models.RoleAdmin, models.RoleScorer))
		r.Use(chiMiddleware.Timeout(30 * time.Second))

		r.Post("/", h.Scorer.Open)
		r.Get("/", h.Scorer.Get)
		r.Delete("/", h.Scorer.Close)

		r.Route("/clock", func(r chi.Router) {
			r.Post("/start", h.Scorer.StartClock)
			r.Post("/pause", h.Scorer.PauseClock)
			r.Post("/reset", h.Scorer.ResetClock)
		})

		r.Post("/points", h.Scorer.AddPoints)
		r.Post("/undo", h.Scorer.Undo)
		r.Post("/save", h.Scorer.Save)
	})
}

package http

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterConfig struct {
	AllowedOrigins []string
	SecureCookies  bool
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
}

func NewHandler(itemHandler *ItemHandler, voteHandler *VoteHandler, live *LiveHub, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(cfg.AllowedOrigins) > 0 {
		// cookies carry the participant id, so a wildcard gets no credentials
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", participantHeader},
			AllowCredentials: !slices.Contains(cfg.AllowedOrigins, "*"),
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(Identity(cfg.SecureCookies))

		r.Get("/me", itemHandler.Me)

		r.Route("/items", func(r chi.Router) {
			r.Get("/", itemHandler.ListItems)
			r.Post("/", itemHandler.CreateItem)
			r.Get("/live", live.Stream)
			r.Post("/{id}/votes", voteHandler.CastVote)
		})
	})

	return r
}

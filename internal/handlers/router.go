package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the public and authenticated routes.
func NewRouter(auth *AuthHandler, sync *SyncHandler, tokens TokenVerifier) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.Route("/v1", func(r chi.Router) {
		r.Post("/auth/token", auth.Token)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(tokens))
			sync.Routes(r)
		})
	})

	return router
}

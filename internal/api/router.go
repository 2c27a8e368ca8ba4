package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/scimark/internal/service"
	"github.com/starford/scimark/internal/storage"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// sources, if non-nil, enables POST /sources.
func NewRouter(svc *service.Service, authEnabled bool, token string, sseHandler http.Handler, sources storage.Provider) chi.Router {
	h := NewHandler(svc)
	ah := NewAssetHandler(svc, sources)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/status", h.Status)
	r.Post("/build", h.Build)

	r.Get("/fragments", h.ListFragments)
	r.Post("/render", h.Render)

	r.Get("/references", h.ListReferences)
	r.Get("/references/{ns}/{label}", h.GetReference)

	if sources != nil {
		r.Post("/sources", ah.Upload)
	}

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

// NewAssetRouter serves rendered artifacts without authentication, since
// browsers load them through <object> tags.
func NewAssetRouter(svc *service.Service) chi.Router {
	ah := NewAssetHandler(svc, nil)
	r := chi.NewRouter()
	r.Get("/{filename}", ah.ServeFile)
	return r
}

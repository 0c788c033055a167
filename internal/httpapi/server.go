// Package httpapi is the HTTP surface of the Mini App host: the HTML proxy
// endpoint, the asset pass-through, the WebSocket bridge, and session
// management.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/nounspace/miniapp-host/internal/channel"
	"github.com/nounspace/miniapp-host/internal/host"
	"github.com/nounspace/miniapp-host/internal/miniapp"
	"github.com/nounspace/miniapp-host/internal/proxy"
	"github.com/nounspace/miniapp-host/internal/quickauth"
	"github.com/nounspace/miniapp-host/internal/rpc"
	"github.com/nounspace/miniapp-host/internal/session"
)

// Server wires the host's collaborators into HTTP handlers.
type Server struct {
	Sessions *session.Registry
	Tokens   *quickauth.Service
	Exposer  *rpc.Exposer
	Bus      *channel.Source
	Fetcher  *proxy.Fetcher

	// HostContext is the embedding client's own Farcaster context, when one
	// exists. Per-request user params act as fallback on top of it.
	HostContext *miniapp.Context

	// HostOrigin is the origin the proxied documents are served from;
	// bridge connections carry it as their Origin header.
	HostOrigin string

	HostOpts        host.Options
	RateLimitConfig RateLimitConfig

	AssetClient *http.Client
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	limiter := NewRateLimiter(s.RateLimitConfig)

	r.Use(CorrelationMiddleware)
	r.Use(RequestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)

		r.Get("/api/proxy", s.ProxyMiniApp)
		r.HandleFunc("/api/proxy/{origin}/*", s.ProxyAsset)
		r.Get("/api/bridge/{session}", s.Bridge)
		r.Get("/api/sessions/{id}", s.GetSession)
		r.Delete("/api/sessions/{id}", s.DestroySession)
	})

	return r
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// writeError writes the JSON error shape every non-HTML failure uses.
func writeError(w http.ResponseWriter, r *http.Request, status int, errTag, message string) {
	log.Ctx(r.Context()).Warn().
		Int("status", status).
		Str("error", errTag).
		Str("path", r.URL.Path).
		Msg(message)

	body := map[string]string{"error": errTag}
	if message != "" {
		body["message"] = message
	}
	writeJSON(w, status, body)
}

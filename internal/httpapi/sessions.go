package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// sessionView is the debug representation of an iframe session. The target
// URL is included; auth tokens never are.
type sessionView struct {
	ID           string    `json:"id"`
	TargetURL    string    `json:"targetUrl"`
	TargetOrigin string    `json:"targetOrigin"`
	ProxyRoot    string    `json:"proxyRoot"`
	Fid          uint64    `json:"fid,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// GetSession handles GET /api/sessions/{id}
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, ok := s.Sessions.Get(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "session_not_found", "")
		return
	}

	view := sessionView{
		ID:           sess.ID,
		TargetURL:    sess.TargetURL,
		TargetOrigin: sess.TargetOrigin,
		ProxyRoot:    sess.ProxyRoot,
		CreatedAt:    sess.CreatedAt,
		ExpiresAt:    sess.ExpiresAt,
	}
	if sess.User != nil {
		view.Fid = sess.User.Fid
	}

	writeJSON(w, http.StatusOK, view)
}

// DestroySession handles DELETE /api/sessions/{id}. Destroying a session
// releases its RPC binding and evicts its cached auth token.
func (s *Server) DestroySession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, ok := s.Sessions.Get(id); !ok {
		writeError(w, r, http.StatusNotFound, "session_not_found", "")
		return
	}

	s.Sessions.Destroy(id)
	log.Ctx(r.Context()).Info().Str("session", id).Msg("session destroyed")

	writeJSON(w, http.StatusOK, map[string]string{"status": "destroyed"})
}

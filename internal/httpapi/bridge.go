package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"

	"github.com/nounspace/miniapp-host/internal/channel"
	"github.com/nounspace/miniapp-host/internal/host"
	"github.com/nounspace/miniapp-host/internal/miniapp"
)

const bridgeWriteTimeout = 10 * time.Second

// wsSender adapts a websocket connection to the channel.Sender the scoped
// channel posts host->app messages through.
type wsSender struct {
	conn *websocket.Conn
}

func (s wsSender) Send(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), bridgeWriteTimeout)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// Bridge handles GET /api/bridge/{session}: the WebSocket carrying SDK RPC
// frames between the proxied document and the host API.
//
// The rewritten document is served from this host's own origin, so a
// legitimate bridge connection carries that origin. A direct (unproxied)
// embed carries the app's target origin instead; both are accepted, anything
// else is refused before the upgrade.
func (s *Server) Bridge(w http.ResponseWriter, r *http.Request) {
	sessID := chi.URLParam(r, "session")
	sess, ok := s.Sessions.Get(sessID)
	if !ok {
		writeError(w, r, http.StatusNotFound, "session_not_found", "")
		return
	}

	if !s.bridgeOriginAllowed(r.Header.Get("Origin"), sess.TargetOrigin) {
		writeError(w, r, http.StatusForbidden, "origin_not_allowed", "")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin validated above
	})
	if err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	connID := uuid.New().String()
	ch := channel.NewOriginScoped(s.Bus, connID, wsSender{conn: conn})

	// The embedding client's context wins; session params fill the gaps.
	mctx := miniapp.Transform(s.HostContext, sess.User, &miniapp.Client{
		PlatformType: "web",
		Version:      host.HostVersion,
	})

	api := host.New(sess, mctx, s.Tokens, s.HostOpts)

	binding, err := s.Exposer.Bind(sess, api, ch, sess.TargetOrigin, sess.TargetURL)
	if err != nil {
		ch.Close()
		conn.Close(websocket.StatusPolicyViolation, "bind failed")
		return
	}

	logger := log.Ctx(r.Context()).With().
		Str("session", sess.ID).
		Str("conn", connID).
		Logger()
	logger.Info().Msg("bridge connected")

	origin := r.Header.Get("Origin")
	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			break
		}
		s.Bus.Dispatch(channel.Event{
			SourceID: connID,
			Origin:   origin,
			Data:     data,
		})
	}

	binding.Close()
	ch.Close()
	conn.Close(websocket.StatusNormalClosure, "")
	logger.Info().Msg("bridge disconnected")
}

func (s *Server) bridgeOriginAllowed(origin, targetOrigin string) bool {
	switch origin {
	case "":
		// Non-browser clients (tests, curl) send no Origin header.
		return true
	case targetOrigin:
		return true
	case s.HostOrigin:
		return s.HostOrigin != ""
	default:
		return false
	}
}

package httpapi

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/nounspace/miniapp-host/internal/miniapp"
	"github.com/nounspace/miniapp-host/internal/proxy"
)

// ProxyMiniApp handles GET /api/proxy?url=...
//
// It creates an iframe session for the target, fetches the app's HTML, and
// serves it rewritten against the session's proxy root with the bridge
// bootstrap injected. Optional fid/username/displayName/pfpUrl params seed
// the session's fallback user.
func (s *Server) ProxyMiniApp(w http.ResponseWriter, r *http.Request) {
	targetURL := r.URL.Query().Get("url")
	if targetURL == "" {
		writeError(w, r, http.StatusBadRequest, "missing_url", "url query parameter is required")
		return
	}
	if !strings.HasPrefix(targetURL, "http://") && !strings.HasPrefix(targetURL, "https://") {
		writeError(w, r, http.StatusBadRequest, "invalid_url", "url must be absolute http or https")
		return
	}

	user := userFromQuery(r.URL.Query())

	sess, err := s.Sessions.Create(targetURL, user)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_url", err.Error())
		return
	}

	// A destroyed session takes its RPC binding and cached token with it.
	s.Sessions.OnDestroy(sess.ID, func() {
		s.Exposer.Release(sess.ID)
		s.Tokens.Evict(sess.ID)
	})

	htmlSrc, err := s.Fetcher.FetchHTML(r.Context(), targetURL)
	if err != nil {
		s.Sessions.Destroy(sess.ID)

		var upstream proxy.UpstreamError
		if errors.As(err, &upstream) {
			writeError(w, r, upstream.Status, "upstream_error", err.Error())
			return
		}
		writeError(w, r, http.StatusBadGateway, "fetch_failed", err.Error())
		return
	}

	rewritten, err := proxy.Rewrite(htmlSrc, sess)
	if err != nil {
		s.Sessions.Destroy(sess.ID)
		writeError(w, r, http.StatusInternalServerError, "rewrite_failed", err.Error())
		return
	}

	log.Ctx(r.Context()).Info().
		Str("session", sess.ID).
		Str("targetOrigin", sess.TargetOrigin).
		Msg("mini app session created")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Miniapp-Session", sess.ID)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, rewritten)
}

// userFromQuery builds a fallback user from query params. A user exists only
// when a positive fid was supplied.
func userFromQuery(q url.Values) *miniapp.User {
	fid, err := strconv.ParseUint(q.Get("fid"), 10, 64)
	if err != nil || fid == 0 {
		return nil
	}
	return &miniapp.User{
		Fid:         fid,
		Username:    q.Get("username"),
		DisplayName: q.Get("displayName"),
		PfpURL:      q.Get("pfpUrl"),
	}
}

// hop-by-hop headers never forwarded in either direction.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ProxyAsset handles any method on /api/proxy/{origin}/* — the pass-through
// for subresources and API calls the rewritten document makes. {origin} is
// the query-escaped target origin the rewriter prefixed onto root-relative
// paths.
func (s *Server) ProxyAsset(w http.ResponseWriter, r *http.Request) {
	escapedOrigin := chi.URLParam(r, "origin")
	origin, err := url.QueryUnescape(escapedOrigin)
	if err != nil || (!strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://")) {
		writeError(w, r, http.StatusBadRequest, "invalid_origin", "origin segment is not a valid http origin")
		return
	}

	rest := chi.URLParam(r, "*")
	target := origin + "/" + rest
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_target", err.Error())
		return
	}

	copyHeaders(req.Header, r.Header)
	req.Header.Del("Cookie")
	req.Header.Set("Origin", origin)
	req.Header.Del("Referer")

	resp, err := s.assetClient().Do(req)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "upstream_unreachable", err.Error())
		return
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Ctx(r.Context()).Debug().Err(err).Str("target", target).Msg("asset copy interrupted")
	}
}

func (s *Server) assetClient() *http.Client {
	if s.AssetClient != nil {
		return s.AssetClient
	}
	return defaultAssetClient
}

var defaultAssetClient = &http.Client{Timeout: 30 * time.Second}

func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		dst[name] = append([]string(nil), values...)
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
}

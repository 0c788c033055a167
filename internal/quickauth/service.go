// Package quickauth turns a Farcaster signer into a domain-scoped bearer
// token for embedded Mini Apps. The token lets an app call its own backend
// authenticated as the current user without implementing Farcaster's own
// signature scheme.
package quickauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/nounspace/miniapp-host/internal/session"
)

const (
	// ExpiryBuffer keeps a cached token from being handed out so close to
	// expiry that it dies mid-flight.
	ExpiryBuffer = 60 * time.Second

	// DefaultTokenTTL applies when the minted token carries no readable
	// expiry of its own.
	DefaultTokenTTL = time.Hour
)

var (
	// ErrNoUser means no Farcaster user is signed in to the host.
	ErrNoUser = errors.New("no current user fid")

	// ErrNoAuthenticator means no signing capability was configured.
	ErrNoAuthenticator = errors.New("no authenticator available")
)

// Issuer abstracts the Quick Auth issuing service for testing.
type Issuer interface {
	GenerateNonce(ctx context.Context) (string, error)
	VerifySIWF(ctx context.Context, domain, message, signature string) (string, error)
}

// HostTokenSource supplies tokens already managed by the host platform's own
// Quick Auth. Only usable for requests targeting the host's own domain.
type HostTokenSource interface {
	Token(ctx context.Context) (string, error)
}

// SignInOptions are the parameters an embedded app passes to signIn.
type SignInOptions struct {
	Nonce             string
	NotBefore         *time.Time
	ExpirationTime    *time.Time
	AcceptAuthAddress bool
}

// SignedMessage is the successful outcome of a standalone sign-in: the SIWE
// message, its signature, and which key class produced it.
type SignedMessage struct {
	Signature  string
	Message    string
	AuthMethod string // "custody" or "authAddress"
}

// Config wires a Service's collaborators.
type Config struct {
	Issuer            Issuer
	Authenticator     Authenticator // nil when no signing capability exists
	AuthenticatorCall MethodCall    // base addressing for authenticator calls
	HostDomain        string        // the host page's own domain
	HostTokens        HostTokenSource
}

type tokenEntry struct {
	token     string
	expiresAt time.Time
}

// Service mints and caches Quick Auth tokens per iframe session. Each cache
// entry is owned exclusively by the session it was issued for and is evicted
// when that session is destroyed.
type Service struct {
	issuer     Issuer
	auth       Authenticator
	authCall   MethodCall
	hostDomain string
	hostTokens HostTokenSource
	httpClient *http.Client

	mu     sync.Mutex
	cache  map[string]tokenEntry
	flight singleflight.Group
}

// NewService creates a token service from cfg.
func NewService(cfg Config) *Service {
	issuer := cfg.Issuer
	if issuer == nil {
		issuer = NewIssuerClient(DefaultIssuerURL)
	}
	return &Service{
		issuer:     issuer,
		auth:       cfg.Authenticator,
		authCall:   cfg.AuthenticatorCall,
		hostDomain: cfg.HostDomain,
		hostTokens: cfg.HostTokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      make(map[string]tokenEntry),
	}
}

// SignMessage performs the standalone sign-in: builds a SIWE message for the
// session's target domain using the caller-supplied nonce, and signs it
// through the authenticator. No verification happens here; the embedded app
// submits the result to its own verifier.
func (s *Service) SignMessage(ctx context.Context, sess session.Session, opts SignInOptions) (*SignedMessage, error) {
	if sess.User == nil || sess.User.Fid == 0 {
		return nil, ErrNoUser
	}
	if s.auth == nil {
		return nil, ErrNoAuthenticator
	}
	if opts.Nonce == "" {
		return nil, fmt.Errorf("sign-in requires a nonce")
	}

	address, err := custodyAddress(ctx, s.auth, s.authCall)
	if err != nil {
		return nil, err
	}

	msg := NewSIWEMessage(domainOf(sess.TargetOrigin), sess.TargetOrigin, address, opts.Nonce, sess.User.Fid)
	msg.NotBefore = opts.NotBefore
	msg.ExpirationTime = opts.ExpirationTime
	rendered := msg.String()

	call := s.authCall
	call.MethodName = methodSignMessage
	signature, err := signMessage(ctx, s.auth, call, []byte(rendered))
	if err != nil {
		return nil, err
	}

	method := "custody"
	if opts.AcceptAuthAddress {
		method = "authAddress"
	}

	return &SignedMessage{
		Signature:  signature,
		Message:    rendered,
		AuthMethod: method,
	}, nil
}

// GetToken returns a bearer token for the session's target domain, serving
// from cache while the cached token stays outside the expiry buffer.
// Concurrent calls for the same session share one in-flight mint.
func (s *Service) GetToken(ctx context.Context, sess session.Session, opts SignInOptions) (string, error) {
	if token, ok := s.cachedToken(sess.ID); ok {
		return token, nil
	}

	v, err, _ := s.flight.Do(sess.ID, func() (any, error) {
		// Another caller may have populated the cache while we queued
		if token, ok := s.cachedToken(sess.ID); ok {
			return token, nil
		}
		return s.mintToken(ctx, sess, opts)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// CanSign reports whether a signing capability is configured. Drives the
// host's capability negotiation.
func (s *Service) CanSign() bool {
	return s.auth != nil
}

// Evict drops the cached token for a session. Called on session destroy and
// on 401-style rejections.
func (s *Service) Evict(sessionID string) {
	s.mu.Lock()
	delete(s.cache, sessionID)
	s.mu.Unlock()
}

// Fetch performs req with an Authorization bearer token attached. Requests
// targeting the host's own domain use the host platform's token source when
// one is configured; everything else goes through the standalone flow, since
// host-managed tokens are scoped to the host's domain only.
func (s *Service) Fetch(ctx context.Context, sess session.Session, req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") == "" {
		token, err := s.tokenFor(ctx, sess, req.URL.Hostname())
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.httpClient.Do(req.WithContext(ctx))
}

func (s *Service) tokenFor(ctx context.Context, sess session.Session, targetHost string) (string, error) {
	if s.hostTokens != nil && s.hostDomain != "" && targetHost == s.hostDomain {
		token, err := s.hostTokens.Token(ctx)
		if err == nil {
			return token, nil
		}
		log.Warn().Err(err).Msg("host token source failed, falling back to standalone quick auth")
	}
	return s.GetToken(ctx, sess, SignInOptions{})
}

func (s *Service) cachedToken(sessionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.cache[sessionID]
	if !ok {
		return "", false
	}
	if !time.Now().Add(ExpiryBuffer).Before(entry.expiresAt) {
		delete(s.cache, sessionID)
		return "", false
	}
	return entry.token, true
}

// mintToken runs the full nonce/sign/verify chain. Every failure is logged
// with its step so a broken sign-in is diagnosable from server logs alone.
func (s *Service) mintToken(ctx context.Context, sess session.Session, opts SignInOptions) (string, error) {
	logger := log.With().Str("sessionId", sess.ID).Str("targetOrigin", sess.TargetOrigin).Logger()

	if sess.User == nil || sess.User.Fid == 0 {
		logger.Warn().Msg("quick auth requested with no user")
		return "", ErrNoUser
	}
	if s.auth == nil {
		logger.Warn().Msg("quick auth requested with no authenticator")
		return "", ErrNoAuthenticator
	}

	nonce, err := s.issuer.GenerateNonce(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("quick auth nonce fetch failed")
		return "", fmt.Errorf("nonce fetch failed: %w", err)
	}

	signed, err := s.SignMessage(ctx, sess, SignInOptions{
		Nonce:             nonce,
		NotBefore:         opts.NotBefore,
		ExpirationTime:    opts.ExpirationTime,
		AcceptAuthAddress: opts.AcceptAuthAddress,
	})
	if err != nil {
		logger.Error().Err(err).Msg("quick auth signing failed")
		return "", fmt.Errorf("signing failed: %w", err)
	}

	// Defensive re-parse: verify against the domain the signed message
	// actually carries, not the one we think we put there
	parsed, err := ParseSIWEMessage(signed.Message)
	if err != nil {
		logger.Error().Err(err).Msg("quick auth produced unparseable siwe message")
		return "", fmt.Errorf("siwe re-parse failed: %w", err)
	}

	token, err := s.issuer.VerifySIWF(ctx, parsed.Domain, signed.Message, signed.Signature)
	if err != nil {
		logger.Error().Err(err).Str("domain", parsed.Domain).Msg("quick auth verification failed")
		return "", fmt.Errorf("verification failed: %w", err)
	}

	expiresAt := tokenExpiry(token)
	s.mu.Lock()
	s.cache[sess.ID] = tokenEntry{token: token, expiresAt: expiresAt}
	s.mu.Unlock()

	logger.Info().
		Str("domain", parsed.Domain).
		Time("expiresAt", expiresAt).
		Msg("quick auth token minted")

	return token, nil
}

// tokenExpiry reads the exp claim when the token is a JWT. The signature is
// not checked: the token is opaque to us and expiry only drives cache reuse.
func tokenExpiry(token string) time.Time {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if claims.ExpiresAt != nil {
			return claims.ExpiresAt.Time
		}
	}
	return time.Now().Add(DefaultTokenTTL)
}

// domainOf strips the scheme from an origin, leaving the SIWE domain.
func domainOf(origin string) string {
	if rest, ok := strings.CutPrefix(origin, "https://"); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(origin, "http://"); ok {
		return rest
	}
	return origin
}

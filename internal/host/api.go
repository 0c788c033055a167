// Package host implements the API surface a genuine Farcaster client offers
// to an embedded Mini App. Third-party apps written against the public Mini
// App SDK call these operations without knowing they are talking to an
// impersonating host.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/nounspace/miniapp-host/internal/miniapp"
	"github.com/nounspace/miniapp-host/internal/quickauth"
	"github.com/nounspace/miniapp-host/internal/session"
)

// HostVersion is reported to embedded apps as the client version.
const HostVersion = "1.0.0"

// supportedChains is the fixed CAIP-2 chain list this host reports.
var supportedChains = []string{
	"eip155:1",
	"eip155:10",
	"eip155:137",
	"eip155:8453",
	"eip155:42161",
}

// SignInResult is the discriminated result of a sign-in attempt. Exactly one
// of Result or Error is set; no other shape may ever be produced.
type SignInResult struct {
	Result *SignInSuccess `json:"result,omitempty"`
	Error  *SignInError   `json:"error,omitempty"`
}

// SignInSuccess carries the signed SIWE message back to the embedded app.
type SignInSuccess struct {
	Signature  string `json:"signature"`
	Message    string `json:"message"`
	AuthMethod string `json:"authMethod"`
}

// SignInError is the failure arm of SignInResult.
type SignInError struct {
	Type string `json:"type"` // "rejected_by_user"
}

// SignInOptions mirror the public SDK's signIn parameters.
type SignInOptions struct {
	Nonce             string `json:"nonce"`
	NotBefore         string `json:"notBefore,omitempty"`
	ExpirationTime    string `json:"expirationTime,omitempty"`
	AcceptAuthAddress bool   `json:"acceptAuthAddress,omitempty"`
}

// ComposeCastOptions mirror the public SDK's composeCast parameters.
type ComposeCastOptions struct {
	Text           string   `json:"text,omitempty"`
	Embeds         []string `json:"embeds,omitempty"`
	ParentCastHash string   `json:"parentCastHash,omitempty"`
}

// EthRequest is an EIP-1193 request envelope.
type EthRequest struct {
	ID      any    `json:"id,omitempty"`
	JSONRPC string `json:"jsonrpc,omitempty"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// EthResponseV2 is the JSON-RPC-shaped envelope ethProviderRequestV2 always
// returns, errors included, for protocol compatibility.
type EthResponseV2 struct {
	ID      any           `json:"id"`
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

// JSONRPCError is the error member of a JSON-RPC response.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// EthProvider is an externally-supplied EIP-1193 Ethereum provider.
type EthProvider interface {
	Request(ctx context.Context, method string, params []any) (any, error)
}

// SolanaProvider is an externally-supplied Solana wallet provider.
type SolanaProvider interface {
	Request(ctx context.Context, method string, params []any) (any, error)
}

// Navigator routes best-effort navigation requests from embedded apps.
type Navigator interface {
	OpenURL(ctx context.Context, url string) error
	ViewProfile(ctx context.Context, fid uint64) error
	ViewCast(ctx context.Context, hash string) error
	ComposeCast(ctx context.Context, opts ComposeCastOptions) error
}

// Haptics triggers platform vibration feedback.
type Haptics interface {
	Trigger(kind, style string) error
}

// API is the concrete host object exposed to one embedded Mini App. All state
// it reads is an immutable per-session snapshot; concurrent RPC calls are safe.
type API struct {
	sess    session.Session
	context *miniapp.Context
	tokens  *quickauth.Service
	eth     EthProvider
	sol     SolanaProvider
	nav     Navigator
	haptics Haptics
}

// Options wires the optional collaborators of an API instance.
type Options struct {
	EthProvider    EthProvider
	SolanaProvider SolanaProvider
	Navigator      Navigator
	Haptics        Haptics
}

// New builds the host API for one session. ctx is the context object the
// transformer produced for this embedding; it may be nil in anonymous mode,
// in which case Context() reports it as unavailable.
func New(sess session.Session, ctx *miniapp.Context, tokens *quickauth.Service, opts Options) *API {
	return &API{
		sess:    sess,
		context: ctx,
		tokens:  tokens,
		eth:     opts.EthProvider,
		sol:     opts.SolanaProvider,
		nav:     opts.Navigator,
		haptics: opts.Haptics,
	}
}

// Context returns the context object for the embedded app. A context without
// a client is never delivered.
func (a *API) Context(ctx context.Context) (*miniapp.Context, error) {
	if !a.context.Deliverable() {
		return nil, fmt.Errorf("no deliverable context for this session")
	}
	return a.context, nil
}

// Ready acknowledges the app's ready signal. The embedding page has no splash
// screen to dismiss, so this must resolve as a no-op rather than fail.
func (a *API) Ready(ctx context.Context) error {
	log.Debug().Str("sessionId", a.sess.ID).Msg("mini app signaled ready")
	return nil
}

// Close acknowledges a close request. No-op: there is no window to close.
func (a *API) Close(ctx context.Context) error {
	log.Debug().Str("sessionId", a.sess.ID).Msg("mini app requested close")
	return nil
}

// SignIn performs a SIWE sign-in through the standalone signer. Every failure
// path collapses into the rejected_by_user arm; this method never returns a
// third shape and never returns an error.
func (a *API) SignIn(ctx context.Context, opts SignInOptions) SignInResult {
	qopts := quickauth.SignInOptions{
		Nonce:             opts.Nonce,
		AcceptAuthAddress: opts.AcceptAuthAddress,
	}
	if t, err := parseOptionalTime(opts.NotBefore); err == nil && t != nil {
		qopts.NotBefore = t
	}
	if t, err := parseOptionalTime(opts.ExpirationTime); err == nil && t != nil {
		qopts.ExpirationTime = t
	}

	signed, err := a.tokens.SignMessage(ctx, a.sess, qopts)
	if err != nil {
		reason := "sign-in failed"
		switch {
		case errors.Is(err, quickauth.ErrNoUser):
			reason = "no signed-in user"
		case errors.Is(err, quickauth.ErrNoAuthenticator):
			reason = "no signing capability"
		}
		log.Warn().Err(err).Str("sessionId", a.sess.ID).Str("reason", reason).Msg("sign-in rejected")
		return SignInResult{Error: &SignInError{Type: "rejected_by_user"}}
	}

	return SignInResult{Result: &SignInSuccess{
		Signature:  signed.Signature,
		Message:    signed.Message,
		AuthMethod: signed.AuthMethod,
	}}
}

// OpenURL opens a URL in a new top-level browsing context. Returns whether
// the open succeeded.
func (a *API) OpenURL(ctx context.Context, url string) (bool, error) {
	if a.nav == nil {
		return false, nil
	}
	if err := a.nav.OpenURL(ctx, url); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("openUrl failed")
		return false, nil
	}
	return true, nil
}

// ViewProfile navigates to a public profile view, best effort.
func (a *API) ViewProfile(ctx context.Context, fid uint64) error {
	if a.nav == nil {
		return nil
	}
	if err := a.nav.ViewProfile(ctx, fid); err != nil {
		log.Warn().Err(err).Uint64("fid", fid).Msg("viewProfile failed")
	}
	return nil
}

// ViewCast navigates to a public cast view, best effort.
func (a *API) ViewCast(ctx context.Context, hash string) error {
	if a.nav == nil {
		return nil
	}
	if err := a.nav.ViewCast(ctx, hash); err != nil {
		log.Warn().Err(err).Str("hash", hash).Msg("viewCast failed")
	}
	return nil
}

// ComposeCast opens an external compose flow. The created cast's hash is
// unknowable from here (composition happens in a separate top-level context),
// so the result is always nil; that is a documented limitation.
func (a *API) ComposeCast(ctx context.Context, opts ComposeCastOptions) (any, error) {
	if a.nav != nil {
		if err := a.nav.ComposeCast(ctx, opts); err != nil {
			log.Warn().Err(err).Msg("composeCast navigation failed")
		}
	}
	return nil, nil
}

// SendToken is a stub: token sending routes through a wallet collaborator in
// a full deployment and resolves to nil here.
func (a *API) SendToken(ctx context.Context, opts map[string]any) (any, error) {
	return nil, nil
}

// SwapToken is a stub, like SendToken.
func (a *API) SwapToken(ctx context.Context, opts map[string]any) (any, error) {
	return nil, nil
}

// ViewToken is a stub, like SendToken.
func (a *API) ViewToken(ctx context.Context, opts map[string]any) (any, error) {
	return nil, nil
}

// EthProviderRequest forwards an EIP-1193 call to the configured provider.
func (a *API) EthProviderRequest(ctx context.Context, req EthRequest) (any, error) {
	if a.eth == nil {
		return nil, fmt.Errorf("Ethereum provider not available")
	}
	return a.eth.Request(ctx, req.Method, req.Params)
}

// EthProviderRequestV2 is the protocol-compatible variant: failures are
// wrapped into a JSON-RPC error envelope instead of surfacing as errors.
func (a *API) EthProviderRequestV2(ctx context.Context, req EthRequest) EthResponseV2 {
	resp := EthResponseV2{ID: req.ID, JSONRPC: "2.0"}
	if a.eth == nil {
		resp.Error = &JSONRPCError{Code: 4200, Message: "Ethereum provider not available"}
		return resp
	}

	result, err := a.eth.Request(ctx, req.Method, req.Params)
	if err != nil {
		resp.Error = &JSONRPCError{Code: -32603, Message: err.Error()}
		return resp
	}
	resp.Result = result
	return resp
}

// SolanaProviderRequest forwards a call to the Solana provider when wired.
func (a *API) SolanaProviderRequest(ctx context.Context, req EthRequest) (any, error) {
	if a.sol == nil {
		return nil, fmt.Errorf("Solana provider not available")
	}
	return a.sol.Request(ctx, req.Method, req.Params)
}

// ImpactOccurred triggers impact haptic feedback, silently no-op where
// unsupported.
func (a *API) ImpactOccurred(ctx context.Context, style string) error {
	a.vibrate("impact", style)
	return nil
}

// NotificationOccurred triggers notification haptic feedback.
func (a *API) NotificationOccurred(ctx context.Context, kind string) error {
	a.vibrate("notification", kind)
	return nil
}

// SelectionChanged triggers selection haptic feedback.
func (a *API) SelectionChanged(ctx context.Context) error {
	a.vibrate("selection", "")
	return nil
}

func (a *API) vibrate(kind, style string) {
	if a.haptics == nil {
		return
	}
	if err := a.haptics.Trigger(kind, style); err != nil {
		log.Debug().Err(err).Str("kind", kind).Msg("haptic feedback unavailable")
	}
}

// GetChains returns the fixed CAIP-2 chain list.
func (a *API) GetChains(ctx context.Context) ([]string, error) {
	chains := make([]string, len(supportedChains))
	copy(chains, supportedChains)
	return chains, nil
}

// SignManifest is not supported by this host.
func (a *API) SignManifest(ctx context.Context, opts map[string]any) (any, error) {
	return nil, fmt.Errorf("signManifest is not supported")
}

// GetQuickAuthToken mints (or reuses) a Quick Auth token for this session.
func (a *API) GetQuickAuthToken(ctx context.Context) (string, error) {
	return a.tokens.GetToken(ctx, a.sess, quickauth.SignInOptions{})
}

// QuickAuthFetchResult is the serializable outcome of a proxied fetch.
type QuickAuthFetchResult struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// QuickAuthFetch performs an authenticated request on the app's behalf,
// attaching the session's bearer token.
func (a *API) QuickAuthFetch(ctx context.Context, url, method string, headers map[string]string, body string) (*QuickAuthFetchResult, error) {
	if method == "" {
		method = http.MethodGet
	}

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("invalid quickAuth.fetch request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.tokens.Fetch(ctx, a.sess, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read quickAuth.fetch response: %w", err)
	}

	out := &QuickAuthFetchResult{
		Status:  resp.StatusCode,
		Headers: make(map[string]string, len(resp.Header)),
		Body:    string(respBody),
	}
	for k := range resp.Header {
		out.Headers[k] = resp.Header.Get(k)
	}
	return out, nil
}

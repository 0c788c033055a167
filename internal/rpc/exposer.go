// Package rpc exposes a host API object over a message channel so an embedded
// Mini App can invoke its methods as if they were local. The exposer is the
// trust boundary: it refuses to bind without a concrete target origin, and no
// internal panic or error ever crosses to the remote side as anything but a
// well-formed error frame.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/nounspace/miniapp-host/internal/channel"
	"github.com/nounspace/miniapp-host/internal/host"
	"github.com/nounspace/miniapp-host/internal/session"
)

// Binding is one live exposure of a host API on a channel.
type Binding struct {
	api          *host.API
	ch           *channel.OriginScoped
	targetOrigin string
	listener     *channel.Listener

	mu     sync.Mutex
	closed bool
}

// Exposer tracks bindings per session so a re-bind for the same session tears
// down the previous one instead of accumulating duplicate listeners.
type Exposer struct {
	mu       sync.Mutex
	bindings map[string]*Binding
}

// NewExposer creates an empty exposer.
func NewExposer() *Exposer {
	return &Exposer{bindings: make(map[string]*Binding)}
}

// resolveOrigin picks the postMessage target origin. Priority: the explicit
// origin, else the origin of the frame's current src. Wildcard and empty
// origins are configuration errors: binding with "*" would let any page
// receive user context.
func resolveOrigin(explicit, frameSrc string) (string, error) {
	origin := explicit
	if origin == "" && frameSrc != "" {
		derived, err := session.TargetOrigin(frameSrc)
		if err != nil {
			return "", fmt.Errorf("cannot derive target origin from frame src: %w", err)
		}
		origin = derived
	}
	if origin == "" {
		return "", fmt.Errorf("no target origin available for binding")
	}
	if origin == "*" {
		return "", fmt.Errorf("wildcard target origin is not allowed")
	}
	return origin, nil
}

// Bind exposes api for the given session over ch. explicitOrigin may be empty
// when frameSrc carries a resolvable origin; the bind fails before any
// listener is registered otherwise. An existing binding for the session is
// closed first.
func (e *Exposer) Bind(sess session.Session, api *host.API, ch *channel.OriginScoped, explicitOrigin, frameSrc string) (*Binding, error) {
	origin, err := resolveOrigin(explicitOrigin, frameSrc)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	prev := e.bindings[sess.ID]
	e.mu.Unlock()
	if prev != nil {
		// The embedded document's SDK state is lost on navigation; the
		// old listeners must not survive into the new binding
		prev.Close()
	}

	b := &Binding{api: api, ch: ch, targetOrigin: origin}
	b.listener = channel.NewListener(b.handleFrame)
	ch.AddListener(b.listener)

	e.mu.Lock()
	e.bindings[sess.ID] = b
	e.mu.Unlock()

	log.Debug().
		Str("sessionId", sess.ID).
		Str("targetOrigin", origin).
		Msg("host api bound to channel")

	return b, nil
}

// Release closes and forgets the binding for a session, if any.
func (e *Exposer) Release(sessionID string) {
	e.mu.Lock()
	b := e.bindings[sessionID]
	delete(e.bindings, sessionID)
	e.mu.Unlock()

	if b != nil {
		b.Close()
	}
}

// TargetOrigin returns the origin this binding posts to.
func (b *Binding) TargetOrigin() string {
	return b.targetOrigin
}

// Close removes the binding's listeners. Idempotent.
func (b *Binding) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.ch.RemoveListener(b.listener)
}

// handleFrame runs for every inbound frame on the bound channel. Each request
// is handled on its own goroutine; independently-issued calls from the app
// are not serialized against each other.
func (b *Binding) handleFrame(ev channel.Event) {
	var frame Frame
	if err := json.Unmarshal(ev.Data, &frame); err != nil {
		log.Warn().Err(err).Msg("dropping malformed bridge frame")
		return
	}
	if frame.Type != TypeRequest {
		return
	}

	go b.handleRequest(frame)
}

// handleRequest invokes the API method and posts exactly one response frame.
// Panics inside a handler become error frames; a raw panic must never take
// down the bridge or leak across it.
func (b *Binding) handleRequest(frame Frame) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("method", frame.Method).
				Interface("panic", r).
				Msg("host api handler panicked")
			b.respondError(frame.ID, fmt.Sprintf("internal error in %s", frame.Method))
		}
	}()

	result, err := b.dispatch(context.Background(), frame)
	if err != nil {
		b.respondError(frame.ID, err.Error())
		return
	}
	b.respond(Frame{Type: TypeResponse, ID: frame.ID, Result: result})
}

func (b *Binding) respondError(id, message string) {
	b.respond(Frame{Type: TypeResponse, ID: id, Error: &FrameError{Message: message}})
}

func (b *Binding) respond(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Str("id", frame.ID).Msg("failed to marshal response frame")
		return
	}
	if err := b.ch.PostMessage(data); err != nil {
		log.Warn().Err(err).Str("id", frame.ID).Msg("failed to deliver response frame")
	}
}

// dispatch maps a request frame onto the host API surface. Params are
// positional JSON arguments, matching the SDK's call convention.
func (b *Binding) dispatch(ctx context.Context, frame Frame) (any, error) {
	api := b.api

	switch frame.Method {
	case "context":
		return api.Context(ctx)

	case "ready":
		return nil, api.Ready(ctx)

	case "close":
		return nil, api.Close(ctx)

	case "signIn":
		var opts host.SignInOptions
		if err := decodeArg(frame.Params, 0, &opts); err != nil {
			return nil, fmt.Errorf("signIn: %w", err)
		}
		return api.SignIn(ctx, opts), nil

	case "openUrl":
		url, err := stringArg(frame.Params, 0)
		if err != nil {
			return nil, fmt.Errorf("openUrl: %w", err)
		}
		return api.OpenURL(ctx, url)

	case "viewProfile":
		var fid uint64
		if err := decodeArg(frame.Params, 0, &fid); err != nil {
			return nil, fmt.Errorf("viewProfile: %w", err)
		}
		return nil, api.ViewProfile(ctx, fid)

	case "viewCast":
		hash, err := stringArg(frame.Params, 0)
		if err != nil {
			return nil, fmt.Errorf("viewCast: %w", err)
		}
		return nil, api.ViewCast(ctx, hash)

	case "composeCast":
		var opts host.ComposeCastOptions
		if err := decodeArg(frame.Params, 0, &opts); err != nil {
			return nil, fmt.Errorf("composeCast: %w", err)
		}
		return api.ComposeCast(ctx, opts)

	case "sendToken":
		return api.SendToken(ctx, objectArg(frame.Params))

	case "swapToken":
		return api.SwapToken(ctx, objectArg(frame.Params))

	case "viewToken":
		return api.ViewToken(ctx, objectArg(frame.Params))

	case "ethProviderRequest":
		var req host.EthRequest
		if err := decodeArg(frame.Params, 0, &req); err != nil {
			return nil, fmt.Errorf("ethProviderRequest: %w", err)
		}
		return api.EthProviderRequest(ctx, req)

	case "ethProviderRequestV2":
		var req host.EthRequest
		if err := decodeArg(frame.Params, 0, &req); err != nil {
			return nil, fmt.Errorf("ethProviderRequestV2: %w", err)
		}
		return api.EthProviderRequestV2(ctx, req), nil

	case "solanaProviderRequest":
		var req host.EthRequest
		if err := decodeArg(frame.Params, 0, &req); err != nil {
			return nil, fmt.Errorf("solanaProviderRequest: %w", err)
		}
		return api.SolanaProviderRequest(ctx, req)

	case "impactOccurred":
		style, _ := stringArg(frame.Params, 0)
		return nil, api.ImpactOccurred(ctx, style)

	case "notificationOccurred":
		kind, _ := stringArg(frame.Params, 0)
		return nil, api.NotificationOccurred(ctx, kind)

	case "selectionChanged":
		return nil, api.SelectionChanged(ctx)

	case "getCapabilities":
		return api.GetCapabilities(ctx)

	case "getChains":
		return api.GetChains(ctx)

	case "signManifest":
		return api.SignManifest(ctx, objectArg(frame.Params))

	case "quickAuth.getToken":
		token, err := api.GetQuickAuthToken(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]string{"token": token}, nil

	case "quickAuth.fetch":
		url, err := stringArg(frame.Params, 0)
		if err != nil {
			return nil, fmt.Errorf("quickAuth.fetch: %w", err)
		}
		var init struct {
			Method  string            `json:"method"`
			Headers map[string]string `json:"headers"`
			Body    string            `json:"body"`
		}
		// init is optional
		_ = decodeArg(frame.Params, 1, &init)
		return api.QuickAuthFetch(ctx, url, init.Method, init.Headers, init.Body)

	default:
		return nil, fmt.Errorf("unknown method %q", frame.Method)
	}
}

// decodeArg unmarshals the idx-th positional param into v.
func decodeArg(params json.RawMessage, idx int, v any) error {
	if len(params) == 0 {
		return fmt.Errorf("missing argument %d", idx)
	}
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil {
		return fmt.Errorf("params are not an argument list: %w", err)
	}
	if idx >= len(args) {
		return fmt.Errorf("missing argument %d", idx)
	}
	if err := json.Unmarshal(args[idx], v); err != nil {
		return fmt.Errorf("argument %d: %w", idx, err)
	}
	return nil
}

func stringArg(params json.RawMessage, idx int) (string, error) {
	var s string
	if err := decodeArg(params, idx, &s); err != nil {
		return "", err
	}
	return s, nil
}

func objectArg(params json.RawMessage) map[string]any {
	var m map[string]any
	if decodeArg(params, 0, &m) != nil {
		return nil
	}
	return m
}

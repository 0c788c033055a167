// Package channel provides the message transport the host RPC layer runs on.
// A process-wide Source carries every frame arriving from every bridge
// connection; an OriginScoped view filters that stream down to the single
// connection owned by one iframe session, mirroring how a browser host filters
// window messages by event source.
package channel

import "sync"

// Event is one inbound frame from a bridge connection.
type Event struct {
	// SourceID identifies the connection the frame arrived on.
	SourceID string
	// Origin is the origin the connection authenticated with.
	Origin string
	// Data is the raw frame payload.
	Data []byte
}

// Handler consumes events. Implementations must be comparable (use a pointer
// type); listener removal is keyed by handler identity.
type Handler interface {
	HandleMessage(Event)
}

// Listener adapts a plain function into a comparable Handler.
type Listener struct {
	fn func(Event)
}

// NewListener wraps fn in a Listener. Each call returns a distinct identity.
func NewListener(fn func(Event)) *Listener {
	return &Listener{fn: fn}
}

// HandleMessage implements Handler.
func (l *Listener) HandleMessage(ev Event) {
	l.fn(ev)
}

// Source is the process-wide inbound message stream. All bridge connections
// dispatch into one Source; scoped channels subscribe filtered views.
type Source struct {
	mu       sync.RWMutex
	handlers map[Handler]struct{}
}

// NewSource creates an empty message source.
func NewSource() *Source {
	return &Source{handlers: make(map[Handler]struct{})}
}

// Subscribe registers a handler for every dispatched event.
func (s *Source) Subscribe(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[h] = struct{}{}
}

// Unsubscribe removes a handler. Unknown handlers are a no-op.
func (s *Source) Unsubscribe(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, h)
}

// Dispatch delivers an event to every subscribed handler synchronously.
func (s *Source) Dispatch(ev Event) {
	s.mu.RLock()
	handlers := make([]Handler, 0, len(s.handlers))
	for h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.RUnlock()

	for _, h := range handlers {
		h.HandleMessage(ev)
	}
}

// Sender delivers outbound frames to one connection.
type Sender interface {
	Send(data []byte) error
}

// OriginScoped presents an add/remove-listener surface over a Source while
// transparently filtering to events from a single source ID. It remembers the
// wrapper registered for each original handler so removal by the original
// handler identity works.
type OriginScoped struct {
	source   *Source
	sourceID string

	mu       sync.Mutex
	sender   Sender
	wrappers map[Handler]*scopedHandler
}

type scopedHandler struct {
	sourceID string
	inner    Handler
}

func (w *scopedHandler) HandleMessage(ev Event) {
	if ev.SourceID != w.sourceID {
		return
	}
	w.inner.HandleMessage(ev)
}

// NewOriginScoped binds a scoped channel to one connection's events on source.
// Outbound messages go through sender.
func NewOriginScoped(source *Source, sourceID string, sender Sender) *OriginScoped {
	return &OriginScoped{
		source:   source,
		sourceID: sourceID,
		sender:   sender,
		wrappers: make(map[Handler]*scopedHandler),
	}
}

// AddListener registers h for events from this channel's connection only.
// Registering the same handler twice keeps a single registration.
func (c *OriginScoped) AddListener(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.wrappers[h]; exists {
		return
	}
	w := &scopedHandler{sourceID: c.sourceID, inner: h}
	c.wrappers[h] = w
	c.source.Subscribe(w)
}

// RemoveListener unregisters h. Best-effort cleanup: unknown handlers are
// silently ignored, never an error.
func (c *OriginScoped) RemoveListener(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, exists := c.wrappers[h]
	if !exists {
		return
	}
	delete(c.wrappers, h)
	c.source.Unsubscribe(w)
}

// PostMessage sends data to this channel's connection.
func (c *OriginScoped) PostMessage(data []byte) error {
	c.mu.Lock()
	sender := c.sender
	c.mu.Unlock()
	return sender.Send(data)
}

// Close removes every listener registered through this channel.
func (c *OriginScoped) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for h, w := range c.wrappers {
		c.source.Unsubscribe(w)
		delete(c.wrappers, h)
	}
}

// SourceID returns the connection ID this channel is scoped to.
func (c *OriginScoped) SourceID() string {
	return c.sourceID
}

package channel

import (
	"testing"
)

type captureSender struct {
	sent [][]byte
}

func (s *captureSender) Send(data []byte) error {
	s.sent = append(s.sent, data)
	return nil
}

func TestOriginScoped_FiltersBySource(t *testing.T) {
	source := NewSource()
	ch := NewOriginScoped(source, "frame-a", &captureSender{})

	var got []string
	l := NewListener(func(ev Event) {
		got = append(got, string(ev.Data))
	})
	ch.AddListener(l)

	source.Dispatch(Event{SourceID: "frame-a", Data: []byte("mine")})
	source.Dispatch(Event{SourceID: "frame-b", Data: []byte("other")})
	source.Dispatch(Event{SourceID: "frame-a", Data: []byte("mine-again")})

	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d: %v", len(got), got)
	}
	if got[0] != "mine" || got[1] != "mine-again" {
		t.Errorf("unexpected events: %v", got)
	}
}

func TestOriginScoped_RemoveByOriginalIdentity(t *testing.T) {
	source := NewSource()
	ch := NewOriginScoped(source, "frame-a", &captureSender{})

	count := 0
	l := NewListener(func(Event) { count++ })
	ch.AddListener(l)

	source.Dispatch(Event{SourceID: "frame-a"})
	ch.RemoveListener(l)
	source.Dispatch(Event{SourceID: "frame-a"})

	if count != 1 {
		t.Fatalf("expected 1 delivery after removal, got %d", count)
	}
}

func TestOriginScoped_RemoveUnknownIsNoop(t *testing.T) {
	source := NewSource()
	ch := NewOriginScoped(source, "frame-a", &captureSender{})

	// Must not panic or error for a handler that was never added
	ch.RemoveListener(NewListener(func(Event) {}))
}

func TestOriginScoped_DuplicateAddIsSingleRegistration(t *testing.T) {
	source := NewSource()
	ch := NewOriginScoped(source, "frame-a", &captureSender{})

	count := 0
	l := NewListener(func(Event) { count++ })
	ch.AddListener(l)
	ch.AddListener(l)

	source.Dispatch(Event{SourceID: "frame-a"})
	if count != 1 {
		t.Fatalf("expected single delivery for duplicate add, got %d", count)
	}
}

func TestOriginScoped_CloseRemovesAllListeners(t *testing.T) {
	source := NewSource()
	ch := NewOriginScoped(source, "frame-a", &captureSender{})

	count := 0
	ch.AddListener(NewListener(func(Event) { count++ }))
	ch.AddListener(NewListener(func(Event) { count++ }))
	ch.Close()

	source.Dispatch(Event{SourceID: "frame-a"})
	if count != 0 {
		t.Fatalf("expected no deliveries after Close, got %d", count)
	}
}

func TestOriginScoped_PostMessage(t *testing.T) {
	sender := &captureSender{}
	ch := NewOriginScoped(NewSource(), "frame-a", sender)

	if err := ch.PostMessage([]byte("hello")); err != nil {
		t.Fatalf("PostMessage failed: %v", err)
	}
	if len(sender.sent) != 1 || string(sender.sent[0]) != "hello" {
		t.Errorf("unexpected sent frames: %v", sender.sent)
	}
}

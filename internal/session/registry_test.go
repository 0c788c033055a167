package session

import (
	"testing"
	"time"

	"github.com/nounspace/miniapp-host/internal/miniapp"
)

func TestCreate_DerivesOriginAndProxyRoot(t *testing.T) {
	reg := NewRegistry(30 * time.Minute)

	sess, err := reg.Create("https://example.com/app?tab=1", &miniapp.User{Fid: 6909})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if sess.TargetOrigin != "https://example.com" {
		t.Errorf("unexpected origin: %s", sess.TargetOrigin)
	}
	if sess.ProxyRoot != "/api/proxy/https%3A%2F%2Fexample.com" {
		t.Errorf("unexpected proxy root: %s", sess.ProxyRoot)
	}
	if sess.User == nil || sess.User.Fid != 6909 {
		t.Errorf("user not carried: %+v", sess.User)
	}

	got, ok := reg.Get(sess.ID)
	if !ok {
		t.Fatal("session not retrievable after create")
	}
	if got.TargetURL != "https://example.com/app?tab=1" {
		t.Errorf("unexpected target url: %s", got.TargetURL)
	}
}

func TestCreate_RejectsNonHTTPURLs(t *testing.T) {
	reg := NewRegistry(time.Minute)

	for _, raw := range []string{"ftp://example.com/x", "javascript:alert(1)", "not a url at all", "/relative"} {
		if _, err := reg.Create(raw, nil); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestGet_ExpiredSessionIsGone(t *testing.T) {
	reg := NewRegistry(-time.Second) // already expired at creation

	sess, err := reg.Create("https://example.com/app", nil)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, ok := reg.Get(sess.ID); ok {
		t.Error("expired session should not be retrievable")
	}
}

func TestDestroy_RunsCleanups(t *testing.T) {
	reg := NewRegistry(time.Minute)
	sess, _ := reg.Create("https://example.com/app", nil)

	ran := 0
	reg.OnDestroy(sess.ID, func() { ran++ })
	reg.OnDestroy(sess.ID, func() { ran++ })

	if !reg.Destroy(sess.ID) {
		t.Fatal("destroy should report existing session")
	}
	if ran != 2 {
		t.Errorf("expected 2 cleanups, got %d", ran)
	}
	if reg.Destroy(sess.ID) {
		t.Error("second destroy should report missing session")
	}
}

func TestOnDestroy_MissingSessionRunsImmediately(t *testing.T) {
	reg := NewRegistry(time.Minute)

	ran := false
	reg.OnDestroy("no-such-session", func() { ran = true })
	if !ran {
		t.Error("cleanup for missing session should run immediately")
	}
}

func TestProxyRoot_Deterministic(t *testing.T) {
	a := ProxyRoot("https://miniapp.example.com:8443")
	b := ProxyRoot("https://miniapp.example.com:8443")
	if a != b {
		t.Fatalf("proxy root not deterministic: %s vs %s", a, b)
	}
	if a != "/api/proxy/https%3A%2F%2Fminiapp.example.com%3A8443" {
		t.Errorf("unexpected encoding: %s", a)
	}
}

package proxy

import (
	"strings"
	"testing"

	"github.com/nounspace/miniapp-host/internal/miniapp"
	"github.com/nounspace/miniapp-host/internal/session"
)

func testRewriteSession() session.Session {
	origin := "https://example.com"
	return session.Session{
		ID:           "sess-rw",
		TargetURL:    "https://example.com/app",
		TargetOrigin: origin,
		ProxyRoot:    session.ProxyRoot(origin),
		User:         &miniapp.User{Fid: 6909, Username: "nounspace"},
	}
}

func TestRewrite_RootRelativePaths(t *testing.T) {
	sess := testRewriteSession()
	in := `<html><head><link rel="stylesheet" href="/styles/app.css"></head>` +
		`<body><img src="/logo.png"><form action="/submit"></form>` +
		`<video poster="/poster.jpg"></video>` +
		`<a href="https://other.example/x">out</a>` +
		`<img src="//cdn.example.com/i.png"></body></html>`

	out, err := Rewrite(in, sess)
	if err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}

	root := sess.ProxyRoot
	for _, want := range []string{
		root + "/styles/app.css",
		root + "/logo.png",
		root + "/submit",
		root + "/poster.jpg",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing rewritten path %s in:\n%s", want, out)
		}
	}
	if !strings.Contains(out, `href="https://other.example/x"`) {
		t.Error("absolute URL must pass through untouched")
	}
	if !strings.Contains(out, `src="//cdn.example.com/i.png"`) {
		t.Error("protocol-relative URL must pass through untouched")
	}
}

func TestRewrite_Srcset(t *testing.T) {
	sess := testRewriteSession()
	in := `<html><body><img srcset="/img/a.png 1x, /img/b.png 2x, https://cdn.example/c.png 3x"></body></html>`

	out, err := Rewrite(in, sess)
	if err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}

	root := sess.ProxyRoot
	if !strings.Contains(out, root+"/img/a.png 1x") {
		t.Errorf("first srcset candidate not rewritten:\n%s", out)
	}
	if !strings.Contains(out, root+"/img/b.png 2x") {
		t.Errorf("second srcset candidate not rewritten:\n%s", out)
	}
	if !strings.Contains(out, "https://cdn.example/c.png 3x") {
		t.Error("absolute srcset candidate must keep its descriptor untouched")
	}
}

func TestRewrite_CSSURLs(t *testing.T) {
	sess := testRewriteSession()
	in := `<html><head><style>body { background: url('/bg.png'); } .x { mask: url("https://cdn.example/m.svg"); }</style></head>` +
		`<body><div style="background-image: url(/inline.png)"></div></body></html>`

	out, err := Rewrite(in, sess)
	if err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}

	root := sess.ProxyRoot
	if !strings.Contains(out, "url('"+root+"/bg.png')") {
		t.Errorf("style-element url not rewritten:\n%s", out)
	}
	if !strings.Contains(out, "https://cdn.example/m.svg") {
		t.Error("absolute css url must pass through")
	}
	if !strings.Contains(out, "url("+root+"/inline.png)") {
		t.Errorf("style-attribute url not rewritten:\n%s", out)
	}
}

func TestRewrite_InjectsBaseAndBootstrap(t *testing.T) {
	sess := testRewriteSession()
	in := `<html><head><title>x</title></head><body></body></html>`

	out, err := Rewrite(in, sess)
	if err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}

	if !strings.Contains(out, `<base href="`+sess.ProxyRoot+`/"`) {
		t.Errorf("base tag missing:\n%s", out)
	}
	if !strings.Contains(out, BootstrapMarker) {
		t.Error("bootstrap script missing")
	}

	// Bootstrap must come before the app's own head content
	if strings.Index(out, BootstrapMarker) > strings.Index(out, "<title>") {
		t.Error("bootstrap script must precede the app's own scripts")
	}
}

func TestRewrite_NoHeadDocument(t *testing.T) {
	sess := testRewriteSession()
	in := `<html><body><img src="/logo.png"></body></html>`

	out, err := Rewrite(in, sess)
	if err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}

	// base + bootstrap end up immediately after <html>, before the body
	htmlIdx := strings.Index(out, "<html")
	baseIdx := strings.Index(out, "<base")
	markerIdx := strings.Index(out, BootstrapMarker)
	bodyIdx := strings.Index(out, "<body")
	if baseIdx < htmlIdx || markerIdx < htmlIdx || baseIdx > bodyIdx || markerIdx > bodyIdx {
		t.Errorf("injection out of position (html=%d base=%d marker=%d body=%d):\n%s",
			htmlIdx, baseIdx, markerIdx, bodyIdx, out)
	}
	if !strings.Contains(out, sess.ProxyRoot+"/logo.png") {
		t.Errorf("img src not rewritten:\n%s", out)
	}
}

func TestRewrite_Idempotent(t *testing.T) {
	sess := testRewriteSession()
	in := `<html><head><link href="/a.css" rel="stylesheet"><style>.x{background:url(/b.png)}</style></head>` +
		`<body><img src="/logo.png" srcset="/s.png 1x"></body></html>`

	once, err := Rewrite(in, sess)
	if err != nil {
		t.Fatalf("first rewrite failed: %v", err)
	}
	twice, err := Rewrite(once, sess)
	if err != nil {
		t.Fatalf("second rewrite failed: %v", err)
	}

	if once != twice {
		t.Errorf("rewrite is not idempotent:\n--- once ---\n%s\n--- twice ---\n%s", once, twice)
	}
	if strings.Count(twice, BootstrapMarker) != strings.Count(once, BootstrapMarker) {
		t.Error("bootstrap injected twice")
	}
	if strings.Count(twice, "<base ") != 1 {
		t.Errorf("expected exactly one base tag, got %d", strings.Count(twice, "<base "))
	}
	if strings.Contains(twice, sess.ProxyRoot+sess.ProxyRoot) {
		t.Error("proxy root double-prefixed")
	}
}

func TestRewrite_PreservesExistingBaseTarget(t *testing.T) {
	sess := testRewriteSession()
	in := `<html><head><base href="/old/" target="_blank"></head><body></body></html>`

	out, err := Rewrite(in, sess)
	if err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}

	if strings.Count(out, "<base") != 1 {
		t.Errorf("existing base must be reused, not duplicated:\n%s", out)
	}
	if !strings.Contains(out, `target="_blank"`) {
		t.Error("pre-existing base target attribute lost")
	}
	if !strings.Contains(out, `href="`+sess.ProxyRoot+`/"`) {
		t.Errorf("base href not repointed:\n%s", out)
	}
}

func TestTargetBasePath(t *testing.T) {
	cases := []struct {
		url, want string
	}{
		{"https://example.com", "/"},
		{"https://example.com/", "/"},
		{"https://example.com/app", "/"},
		{"https://example.com/app/", "/app/"},
		{"https://example.com/app/index.html", "/app/"},
		{"https://example.com/a/b/c.html?q=1", "/a/b/"},
	}
	for _, tc := range cases {
		if got := targetBasePath(tc.url); got != tc.want {
			t.Errorf("targetBasePath(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestRewritePath_Identity(t *testing.T) {
	root := "/api/proxy/https%3A%2F%2Fexample.com"
	cases := []struct {
		in, want string
	}{
		{"/logo.png", root + "/logo.png"},
		{root + "/logo.png", root + "/logo.png"}, // already proxied
		{"//cdn.example.com/x.png", "//cdn.example.com/x.png"},
		{"https://example.com/x.png", "https://example.com/x.png"},
		{"relative/path.png", "relative/path.png"},
		{"#anchor", "#anchor"},
	}
	for _, tc := range cases {
		if got := rewritePath(tc.in, root); got != tc.want {
			t.Errorf("rewritePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBootstrapScript_CarriesSessionConfig(t *testing.T) {
	sess := testRewriteSession()

	script, err := BootstrapScript(sess)
	if err != nil {
		t.Fatalf("bootstrap render failed: %v", err)
	}
	for _, want := range []string{
		BootstrapMarker,
		sess.ID,
		`"fid":6909`,
		"/api/bridge/" + sess.ID,
	} {
		if !strings.Contains(script, want) {
			t.Errorf("bootstrap missing %q", want)
		}
	}
	if !strings.HasPrefix(script, "(function(){") {
		t.Error("bootstrap must be IIFE-wrapped")
	}
}

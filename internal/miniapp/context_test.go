package miniapp

import "testing"

func TestTransform_NilWithoutClient(t *testing.T) {
	host := &Context{
		User: &User{Fid: 6909, Username: "nounspace"},
	}

	// Neither host context nor fallback supplies a client
	got := Transform(host, nil, nil)
	if got != nil {
		t.Fatalf("expected nil context without client, got %+v", got)
	}
}

func TestTransform_NilWithoutUser(t *testing.T) {
	host := &Context{
		Client: &Client{PlatformType: "web", Version: "1"},
	}

	got := Transform(host, nil, &Client{PlatformType: "web"})
	if got != nil {
		t.Fatalf("expected nil context without user, got %+v", got)
	}
}

func TestTransform_FallbacksFillGaps(t *testing.T) {
	fallbackUser := &User{Fid: 42, Username: "fallback"}
	fallbackClient := &Client{PlatformType: "web", Version: "0.1.0"}

	got := Transform(nil, fallbackUser, fallbackClient)
	if got == nil {
		t.Fatal("expected context from fallbacks, got nil")
	}
	if got.User.Fid != 42 {
		t.Errorf("expected fallback user fid 42, got %d", got.User.Fid)
	}
	if got.Client.Version != "0.1.0" {
		t.Errorf("expected fallback client version, got %q", got.Client.Version)
	}
	if !got.Deliverable() {
		t.Error("transformed context must be deliverable")
	}
}

func TestTransform_HostFieldsWin(t *testing.T) {
	host := &Context{
		User:     &User{Fid: 6909, Username: "nounspace"},
		Client:   &Client{PlatformType: "web", Version: "2"},
		Location: &Location{Type: "launcher"},
		Features: map[string]bool{"haptics": true},
	}

	got := Transform(host, &User{Fid: 1}, &Client{Version: "0"})
	if got == nil {
		t.Fatal("expected context, got nil")
	}
	if got.User.Fid != 6909 {
		t.Errorf("host user should win over fallback, got fid %d", got.User.Fid)
	}
	if got.Client.Version != "2" {
		t.Errorf("host client should win over fallback, got %q", got.Client.Version)
	}
	if got.Location == nil || got.Location.Type != "launcher" {
		t.Errorf("location not carried through: %+v", got.Location)
	}
	if !got.Features["haptics"] {
		t.Error("features not carried through")
	}
}

func TestDeliverable(t *testing.T) {
	var nilCtx *Context
	if nilCtx.Deliverable() {
		t.Error("nil context must not be deliverable")
	}
	if (&Context{}).Deliverable() {
		t.Error("context without client must not be deliverable")
	}
	if !(&Context{Client: &Client{PlatformType: "web"}}).Deliverable() {
		t.Error("context with client must be deliverable")
	}
}

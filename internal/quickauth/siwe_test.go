package quickauth

import (
	"strings"
	"testing"
	"time"
)

func TestSIWEMessage_RenderAndReparse(t *testing.T) {
	exp := time.Now().UTC().Add(10 * time.Minute).Truncate(time.Second)
	nbf := time.Now().UTC().Truncate(time.Second)

	msg := NewSIWEMessage("miniapp.example.com", "https://miniapp.example.com", "0xabc123", "n0nce", 6909)
	msg.ExpirationTime = &exp
	msg.NotBefore = &nbf

	rendered := msg.String()

	if !strings.HasPrefix(rendered, "miniapp.example.com wants you to sign in with your Ethereum account:\n0xabc123\n") {
		t.Fatalf("unexpected preamble:\n%s", rendered)
	}
	if !strings.Contains(rendered, "Chain ID: 1\n") {
		t.Error("chain id must be 1")
	}
	if !strings.Contains(rendered, "Nonce: n0nce\n") {
		t.Error("nonce missing")
	}
	if !strings.Contains(rendered, "- farcaster://fid/6909") {
		t.Error("fid resource missing")
	}

	parsed, err := ParseSIWEMessage(rendered)
	if err != nil {
		t.Fatalf("re-parse failed: %v", err)
	}
	if parsed.Domain != "miniapp.example.com" {
		t.Errorf("parsed domain: %q", parsed.Domain)
	}
	if parsed.Address != "0xabc123" {
		t.Errorf("parsed address: %q", parsed.Address)
	}
	if parsed.Nonce != "n0nce" {
		t.Errorf("parsed nonce: %q", parsed.Nonce)
	}
	if parsed.ChainID != 1 {
		t.Errorf("parsed chain id: %d", parsed.ChainID)
	}
	if parsed.ExpirationTime == nil || !parsed.ExpirationTime.Equal(exp) {
		t.Errorf("parsed expiration: %v, want %v", parsed.ExpirationTime, exp)
	}
	if parsed.NotBefore == nil || !parsed.NotBefore.Equal(nbf) {
		t.Errorf("parsed not-before: %v, want %v", parsed.NotBefore, nbf)
	}
	if len(parsed.Resources) != 1 || parsed.Resources[0] != "farcaster://fid/6909" {
		t.Errorf("parsed resources: %v", parsed.Resources)
	}
}

func TestParseSIWEMessage_Rejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"no preamble", "hello\nworld\nURI: x"},
		{"no nonce", "example.com wants you to sign in with your Ethereum account:\n0xabc\n\nURI: https://example.com"},
	}
	for _, tc := range cases {
		if _, err := ParseSIWEMessage(tc.raw); err == nil {
			t.Errorf("%s: expected parse error", tc.name)
		}
	}
}

func TestDecodeSignature_Shapes(t *testing.T) {
	// Numeric array
	sig, err := decodeSignature([]byte(`[222, 173, 190, 239]`))
	if err != nil {
		t.Fatalf("array decode failed: %v", err)
	}
	if got := string(sig); got != "\xde\xad\xbe\xef" {
		t.Errorf("array decode produced % x", sig)
	}

	// Byte-keyed object, deliberately out of key order
	sig, err = decodeSignature([]byte(`{"1": 173, "0": 222, "3": 239, "2": 190}`))
	if err != nil {
		t.Fatalf("object decode failed: %v", err)
	}
	if got := string(sig); got != "\xde\xad\xbe\xef" {
		t.Errorf("object decode produced % x", sig)
	}

	// Rejections
	for _, raw := range []string{``, `"nope"`, `{"a": 1}`, `{"0": 300}`, `{"0": 1, "2": 2}`, `[256]`} {
		if _, err := decodeSignature([]byte(raw)); err == nil {
			t.Errorf("expected error for %s", raw)
		}
	}
}

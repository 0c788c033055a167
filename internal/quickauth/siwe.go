package quickauth

import (
	"fmt"
	"strings"
	"time"
)

// siweStatement is the fixed statement line of a Sign In With Farcaster
// message. Verifiers require it verbatim.
const siweStatement = "Farcaster Auth"

// SIWEMessage is a Sign-In-With-Ethereum (EIP-4361) message in its structured
// form. Domain and URI belong to the embedded app, not the host: the token the
// verifier mints is scoped to the app's own backend.
type SIWEMessage struct {
	Domain         string
	Address        string
	Statement      string
	URI            string
	Version        string
	ChainID        int
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime *time.Time
	NotBefore      *time.Time
	Resources      []string
}

// NewSIWEMessage builds the message for fid signing in to domain. The
// farcaster://fid/ resource binds the Ethereum signature to the Farcaster
// identity being asserted.
func NewSIWEMessage(domain, uri, address, nonce string, fid uint64) SIWEMessage {
	return SIWEMessage{
		Domain:    domain,
		Address:   address,
		Statement: siweStatement,
		URI:       uri,
		Version:   "1",
		ChainID:   1,
		Nonce:     nonce,
		IssuedAt:  time.Now().UTC(),
		Resources: []string{fmt.Sprintf("farcaster://fid/%d", fid)},
	}
}

// String renders the message in the canonical EIP-4361 plaintext layout.
// This exact byte sequence is what gets signed.
func (m SIWEMessage) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s wants you to sign in with your Ethereum account:\n", m.Domain)
	fmt.Fprintf(&b, "%s\n", m.Address)
	b.WriteString("\n")
	if m.Statement != "" {
		fmt.Fprintf(&b, "%s\n", m.Statement)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "URI: %s\n", m.URI)
	fmt.Fprintf(&b, "Version: %s\n", m.Version)
	fmt.Fprintf(&b, "Chain ID: %d\n", m.ChainID)
	fmt.Fprintf(&b, "Nonce: %s\n", m.Nonce)
	fmt.Fprintf(&b, "Issued At: %s", m.IssuedAt.Format(time.RFC3339))
	if m.ExpirationTime != nil {
		fmt.Fprintf(&b, "\nExpiration Time: %s", m.ExpirationTime.Format(time.RFC3339))
	}
	if m.NotBefore != nil {
		fmt.Fprintf(&b, "\nNot Before: %s", m.NotBefore.Format(time.RFC3339))
	}
	if len(m.Resources) > 0 {
		b.WriteString("\nResources:")
		for _, r := range m.Resources {
			fmt.Fprintf(&b, "\n- %s", r)
		}
	}

	return b.String()
}

// ParseSIWEMessage re-parses a rendered message back into structured form.
// The token service uses this as a defensive re-parse before verification: the
// domain sent to the verifier is extracted from the message actually signed,
// not from whatever the caller thinks it built.
func ParseSIWEMessage(raw string) (SIWEMessage, error) {
	lines := strings.Split(raw, "\n")
	if len(lines) < 2 {
		return SIWEMessage{}, fmt.Errorf("siwe message too short: %d lines", len(lines))
	}

	const marker = " wants you to sign in with your Ethereum account:"
	if !strings.HasSuffix(lines[0], marker) {
		return SIWEMessage{}, fmt.Errorf("siwe message missing preamble line")
	}

	msg := SIWEMessage{
		Domain:  strings.TrimSuffix(lines[0], marker),
		Address: strings.TrimSpace(lines[1]),
	}
	if msg.Domain == "" {
		return SIWEMessage{}, fmt.Errorf("siwe message has empty domain")
	}

	inResources := false
	for _, line := range lines[2:] {
		if inResources {
			if rest, ok := strings.CutPrefix(line, "- "); ok {
				msg.Resources = append(msg.Resources, rest)
				continue
			}
			inResources = false
		}

		switch {
		case line == "Resources:":
			inResources = true
		case strings.HasPrefix(line, "URI: "):
			msg.URI = strings.TrimPrefix(line, "URI: ")
		case strings.HasPrefix(line, "Version: "):
			msg.Version = strings.TrimPrefix(line, "Version: ")
		case strings.HasPrefix(line, "Chain ID: "):
			fmt.Sscanf(strings.TrimPrefix(line, "Chain ID: "), "%d", &msg.ChainID)
		case strings.HasPrefix(line, "Nonce: "):
			msg.Nonce = strings.TrimPrefix(line, "Nonce: ")
		case strings.HasPrefix(line, "Issued At: "):
			if t, err := time.Parse(time.RFC3339, strings.TrimPrefix(line, "Issued At: ")); err == nil {
				msg.IssuedAt = t
			}
		case strings.HasPrefix(line, "Expiration Time: "):
			if t, err := time.Parse(time.RFC3339, strings.TrimPrefix(line, "Expiration Time: ")); err == nil {
				msg.ExpirationTime = &t
			}
		case strings.HasPrefix(line, "Not Before: "):
			if t, err := time.Parse(time.RFC3339, strings.TrimPrefix(line, "Not Before: ")); err == nil {
				msg.NotBefore = &t
			}
		}
	}

	if msg.Nonce == "" {
		return SIWEMessage{}, fmt.Errorf("siwe message missing nonce")
	}

	return msg, nil
}

package host

import (
	"context"
	"time"
)

// GetCapabilities reports what this host instance actually supports, computed
// from the collaborators that were wired in. Capabilities for absent
// collaborators are omitted rather than advertised and broken.
func (a *API) GetCapabilities(ctx context.Context) ([]string, error) {
	caps := []string{
		"actions.ready",
		"actions.close",
		"actions.openUrl",
		"actions.viewProfile",
		"actions.viewCast",
		"actions.composeCast",
	}

	if a.tokens != nil && a.tokens.CanSign() {
		caps = append(caps, "actions.signIn", "quickAuth.getToken", "quickAuth.fetch")
	}
	if a.eth != nil {
		caps = append(caps, "wallet.getEthereumProvider")
	}
	if a.sol != nil {
		caps = append(caps, "wallet.getSolanaProvider")
	}
	if a.haptics != nil {
		caps = append(caps,
			"haptics.impactOccurred",
			"haptics.notificationOccurred",
			"haptics.selectionChanged",
		)
	}

	return caps, nil
}

// parseOptionalTime parses an RFC3339 timestamp, treating empty as absent.
func parseOptionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

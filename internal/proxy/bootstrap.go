package proxy

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/nounspace/miniapp-host/internal/session"
)

// BootstrapMarker uniquely identifies an injected bootstrap script. Its
// presence in a document means the document was already rewritten; injecting
// again would duplicate listeners inside the app.
const BootstrapMarker = "__nounspaceMiniAppBridge"

//go:embed bootstrap.js
var bootstrapJS string

// BootstrapScript renders the SDK bootstrap payload for one session, wrapped
// in an immediately-invoked function so nothing leaks into the app's scope
// except the host surface itself.
func BootstrapScript(sess session.Session) (string, error) {
	cfg := map[string]any{
		"sessionId":    sess.ID,
		"targetOrigin": sess.TargetOrigin,
		"proxyRoot":    sess.ProxyRoot,
		"bridgeUrl":    "/api/bridge/" + sess.ID,
	}
	if sess.User != nil {
		cfg["user"] = sess.User
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// Keep HTML escaping on: config values end up inside a <script> element
	enc.SetEscapeHTML(true)
	if err := enc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode bridge config: %w", err)
	}

	return fmt.Sprintf("(function(){\nwindow.%s = %s;\n%s\n})();",
		BootstrapMarker, bytes.TrimSpace(buf.Bytes()), bootstrapJS), nil
}

package miniapp

// User identifies the Farcaster user on whose behalf the host is acting.
// Fid is the only required field; the rest is profile decoration.
type User struct {
	Fid         uint64 `json:"fid"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	PfpURL      string `json:"pfpUrl,omitempty"`
}

// Client describes the hosting client to the embedded app.
type Client struct {
	PlatformType string `json:"platformType,omitempty"`
	Version      string `json:"version,omitempty"`
	ClientFid    uint64 `json:"clientFid,omitempty"`
	Added        bool   `json:"added,omitempty"`
}

// Location tells the embedded app where it was launched from.
type Location struct {
	Type string `json:"type"`
}

// Context is the object handed to an embedded Mini App. Its JSON shape must
// stay a strict subset of the public Mini App SDK context type so unmodified
// third-party apps keep working; never add host-private fields here.
type Context struct {
	User     *User           `json:"user,omitempty"`
	Client   *Client         `json:"client"`
	Location *Location       `json:"location,omitempty"`
	Features map[string]bool `json:"features,omitempty"`
}

// Deliverable reports whether the context may be handed to an embedded app.
// Client is a hard protocol requirement; user may be absent (anonymous mode).
func (c *Context) Deliverable() bool {
	return c != nil && c.Client != nil
}

// Transform maps a host-side context plus fallbacks into the context delivered
// to an embedded app. It returns nil rather than an incomplete context: a
// result missing user or client must never reach the iframe.
//
// The user requirement is the strict policy: no user signal at all means no
// embedded context, blocking Mini App functionality until sign-in.
func Transform(host *Context, fallbackUser *User, fallbackClient *Client) *Context {
	var user *User
	var location *Location
	var features map[string]bool

	if host != nil {
		user = host.User
		location = host.Location
		features = host.Features
	}
	if user == nil {
		user = fallbackUser
	}
	if user == nil {
		return nil
	}

	var client *Client
	if host != nil {
		client = host.Client
	}
	if client == nil {
		client = fallbackClient
	}
	if client == nil {
		return nil
	}

	return &Context{
		User:     user,
		Client:   client,
		Location: location,
		Features: features,
	}
}

// ABOUTME: Client configuration for the remote table store and identity provider.
// ABOUTME: An empty base URL keeps the client in local mode.

package foodlog

import (
	"strings"
	"time"
)

// RemoteConfig describes the per-user remote table store.
type RemoteConfig struct {
	BaseURL string
	APIKey  string        // sent as the apikey header on every request
	Timeout time.Duration // zero uses 15s
}

// Configured reports whether enough settings are present to talk to the
// remote store. An unconfigured store keeps the app in local mode.
func (c RemoteConfig) Configured() bool {
	return strings.TrimSpace(c.BaseURL) != ""
}

// AuthConfig describes the identity provider token endpoint.
type AuthConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Configured reports whether sign-in is possible at all.
func (c AuthConfig) Configured() bool {
	return strings.TrimSpace(c.BaseURL) != ""
}

// DefaultNoticeTTL is how long a "logged" confirmation stays visible.
const DefaultNoticeTTL = 2500 * time.Millisecond

// tokenRefreshSkew refreshes access tokens this long before they expire.
const tokenRefreshSkew = 60 * time.Second

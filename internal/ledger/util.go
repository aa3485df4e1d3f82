package ledger

import (
	"net/url"
	"strings"
)

// DefaultWSEndpoint derives the websocket endpoint of a node from its JSON-RPC URL.
// Public nodes serve JSON-RPC on 51234 and websocket on 51233.
func DefaultWSEndpoint(rpc string) string {
	if strings.HasPrefix(rpc, "ws://") || strings.HasPrefix(rpc, "wss://") {
		return strings.TrimRight(rpc, "/")
	}
	u, err := url.Parse(strings.TrimRight(rpc, "/"))
	if err != nil || u.Host == "" {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return ""
	}
	if u.Port() == "51234" {
		u.Host = u.Hostname() + ":51233"
	}
	return u.String()
}

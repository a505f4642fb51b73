// Package proxy translates heterogeneous proxy and VPN node descriptors into
// tunnel configuration stanzas. Untranslatable input is never an error: every
// entry point logs and returns nil so callers can fall back to a plain
// forward proxy or no tunnel at all.
package proxy

import "strconv"

// Descriptor is the per-job proxy record handed to the worker. Either NodeURL
// (a VPN URI) or the flat (Protocol, Server, Port[, credentials]) tuple is
// authoritative; NodeURL wins when both parse.
type Descriptor struct {
	Protocol string `json:"protocol,omitempty"`
	Server   string `json:"server,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	NodeURL  string `json:"nodeUrl,omitempty"`
}

// ForwardProxyURL returns a plain forward-proxy URL for http/https tuples, or
// "". Used when translation yields no tunnel stanza but the descriptor still
// names a usable forward proxy.
func (d *Descriptor) ForwardProxyURL() string {
	if d == nil || d.Server == "" || d.Port == 0 {
		return ""
	}
	scheme := d.Protocol
	switch scheme {
	case "http", "https":
	case "socks5", "socks4":
		scheme = "socks5"
	default:
		return ""
	}
	auth := ""
	if d.Username != "" {
		auth = d.Username
		if d.Password != "" {
			auth += ":" + d.Password
		}
		auth += "@"
	}
	return scheme + "://" + auth + d.Server + ":" + strconv.Itoa(d.Port)
}

// Stanza is one proxy entry in the tunnel configuration. The tunnel binary's
// schema varies per proxy type, so the stanza stays an open document rather
// than a struct per type.
type Stanza map[string]any

// Name returns the stanza's display name.
func (s Stanza) Name() string {
	name, _ := s["name"].(string)
	return name
}

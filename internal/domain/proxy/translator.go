package proxy

import (
	"log/slog"
	"strconv"
	"strings"
)

// Translate converts a descriptor into a tunnel stanza. A recognized VPN URI
// takes precedence over the flat tuple; unsupported or unparseable input
// returns nil after a warning, never an error.
func Translate(desc *Descriptor, logger *slog.Logger) Stanza {
	if logger == nil {
		logger = slog.Default()
	}
	if desc == nil {
		return nil
	}

	if desc.NodeURL != "" {
		for _, p := range schemeParsers {
			if !strings.HasPrefix(desc.NodeURL, p.prefix) {
				continue
			}
			stanza := p.parse(desc.NodeURL, desc)
			if stanza == nil {
				logger.Warn("proxy node url did not parse",
					"scheme", strings.TrimSuffix(p.prefix, "://"))
			}
			return stanza
		}
		logger.Warn("unsupported proxy node url scheme", "url_prefix", schemeOf(desc.NodeURL))
		// A flat tuple may still be present alongside an unusable node url.
	}

	return translateTuple(desc, logger)
}

func translateTuple(desc *Descriptor, logger *slog.Logger) Stanza {
	if desc.Server == "" || desc.Port == 0 || desc.Protocol == "" {
		return nil
	}

	name := desc.Server + ":" + strconv.Itoa(desc.Port)
	switch strings.ToLower(desc.Protocol) {
	case "http", "https":
		stanza := Stanza{
			"name":   name,
			"type":   "http",
			"server": desc.Server,
			"port":   desc.Port,
			"tls":    strings.EqualFold(desc.Protocol, "https"),
		}
		setCredentials(stanza, desc)
		return stanza
	case "socks4", "socks5":
		stanza := Stanza{
			"name":   name,
			"type":   "socks5",
			"server": desc.Server,
			"port":   desc.Port,
		}
		setCredentials(stanza, desc)
		return stanza
	case "trojan":
		secret := desc.Password
		if secret == "" {
			secret = desc.Username
		}
		if secret == "" {
			logger.Warn("trojan tuple without a secret", "server", desc.Server)
			return nil
		}
		return Stanza{
			"name":             name,
			"type":             "trojan",
			"server":           desc.Server,
			"port":             desc.Port,
			"password":         secret,
			"skip-cert-verify": true,
		}
	default:
		logger.Warn("unsupported proxy protocol", "protocol", desc.Protocol)
		return nil
	}
}

func setCredentials(stanza Stanza, desc *Descriptor) {
	if desc.Username != "" {
		stanza["username"] = desc.Username
	}
	if desc.Password != "" {
		stanza["password"] = desc.Password
	}
}

func schemeOf(raw string) string {
	if idx := strings.Index(raw, "://"); idx >= 0 {
		return raw[:idx]
	}
	if len(raw) > 12 {
		return raw[:12]
	}
	return raw
}

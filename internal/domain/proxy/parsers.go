package proxy

import (
	"encoding/base64"
	"net/url"
	"strconv"
	"strings"
)

// schemeParser turns one VPN URI into a stanza, or nil when the URI is
// malformed for its scheme. The descriptor supplies fallback credentials.
type schemeParser struct {
	prefix string
	parse  func(raw string, desc *Descriptor) Stanza
}

// Adding a scheme means appending here; dispatch never changes.
var schemeParsers = []schemeParser{
	{prefix: "ssr://", parse: parseSSR},
	{prefix: "trojan://", parse: parseTrojan},
	{prefix: "vless://", parse: parseVLESS},
}

// decodeBase64URL decodes url-safe base64 with or without padding.
func decodeBase64URL(s string) (string, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		// Some generators emit standard-alphabet base64 in node links.
		b, err = base64.RawStdEncoding.DecodeString(s)
		if err != nil {
			return "", err
		}
	}
	return string(b), nil
}

// parseSSR handles ssr:// links: a base64url body of
// server:port:protocol:method:obfs:password_b64 followed by an optional
// /?key=value query segment whose values are themselves base64url.
func parseSSR(raw string, _ *Descriptor) Stanza {
	body, err := decodeBase64URL(strings.TrimPrefix(raw, "ssr://"))
	if err != nil {
		return nil
	}

	main := body
	query := ""
	if idx := strings.Index(body, "/?"); idx >= 0 {
		main = body[:idx]
		query = body[idx+2:]
	}

	parts := strings.Split(main, ":")
	if len(parts) < 6 {
		return nil
	}
	server := strings.Join(parts[:len(parts)-5], ":")
	tail := parts[len(parts)-5:]
	port, err := strconv.Atoi(tail[0])
	if err != nil || server == "" {
		return nil
	}
	password, err := decodeBase64URL(tail[4])
	if err != nil {
		return nil
	}

	stanza := Stanza{
		"name":     server + ":" + tail[0],
		"type":     "ssr",
		"server":   server,
		"port":     port,
		"protocol": tail[1],
		"cipher":   tail[2],
		"obfs":     tail[3],
		"password": password,
	}

	if query != "" {
		values, parseErr := url.ParseQuery(query)
		if parseErr == nil {
			setDecodedParam(stanza, values, "obfsparam", "obfs-param")
			setDecodedParam(stanza, values, "protoparam", "protocol-param")
			if remarks, ok := decodedParam(values, "remarks"); ok && remarks != "" {
				stanza["name"] = remarks
			}
			if group, ok := decodedParam(values, "group"); ok && group != "" {
				stanza["group"] = group
			}
		}
	}
	return stanza
}

func decodedParam(values url.Values, key string) (string, bool) {
	if !values.Has(key) {
		return "", false
	}
	decoded, err := decodeBase64URL(values.Get(key))
	if err != nil {
		return "", false
	}
	return decoded, true
}

func setDecodedParam(stanza Stanza, values url.Values, key, field string) {
	if v, ok := decodedParam(values, key); ok && v != "" {
		stanza[field] = v
	}
}

// parseTrojan handles trojan:// links. The password comes from the URI
// userinfo, falling back to descriptor credentials; with neither the link is
// unusable and translation fails.
func parseTrojan(raw string, desc *Descriptor) Stanza {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return nil
	}

	password := u.User.Username()
	if password == "" && desc != nil {
		password = desc.Password
		if password == "" {
			password = desc.Username
		}
	}
	if password == "" {
		return nil
	}

	port := 443
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil
		}
	}

	q := u.Query()
	stanza := Stanza{
		"name":             stanzaName(u),
		"type":             "trojan",
		"server":           u.Hostname(),
		"port":             port,
		"password":         password,
		"skip-cert-verify": q.Get("allowInsecure") != "0" && !strings.EqualFold(q.Get("allowInsecure"), "false"),
	}
	if sni := q.Get("sni"); sni != "" {
		stanza["sni"] = sni
	}
	if alpn := q.Get("alpn"); alpn != "" {
		stanza["alpn"] = strings.Split(alpn, ",")
	}

	switch q.Get("type") {
	case "ws":
		stanza["network"] = "ws"
		opts := map[string]any{"path": pathOr(q.Get("path"), "/")}
		if host := q.Get("host"); host != "" {
			opts["headers"] = map[string]any{"Host": host}
		}
		stanza["ws-opts"] = opts
	case "grpc":
		stanza["network"] = "grpc"
		opts := map[string]any{"grpc-service-name": q.Get("serviceName")}
		if mode := q.Get("mode"); mode != "" {
			opts["grpc-mode"] = mode
		}
		stanza["grpc-opts"] = opts
	}
	return stanza
}

// parseVLESS handles vless:// links. The uuid userinfo is mandatory; the
// security parameter drives the TLS stanza, including Reality key material.
func parseVLESS(raw string, _ *Descriptor) Stanza {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return nil
	}

	uuid := u.User.Username()
	if uuid == "" {
		return nil
	}

	q := u.Query()
	security := q.Get("security")
	secured := security == "tls" || security == "reality"

	port := 0
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil
		}
	} else if secured {
		port = 443
	} else {
		return nil
	}

	stanza := Stanza{
		"name":   stanzaName(u),
		"type":   "vless",
		"server": u.Hostname(),
		"port":   port,
		"uuid":   uuid,
		"tls":    secured,
	}
	if sni := q.Get("sni"); sni != "" {
		stanza["servername"] = sni
	}
	if flow := q.Get("flow"); flow != "" {
		stanza["flow"] = flow
	}
	if security == "reality" {
		reality := map[string]any{"public-key": q.Get("pbk")}
		if sid := q.Get("sid"); sid != "" {
			reality["short-id"] = sid
		}
		if spx := q.Get("spx"); spx != "" {
			reality["spider-x"] = spx
		}
		stanza["reality-opts"] = reality
	}

	network := q.Get("type")
	if network == "" {
		network = "tcp"
	}
	switch network {
	case "tcp":
		stanza["network"] = "tcp"
	case "ws":
		stanza["network"] = "ws"
		opts := map[string]any{"path": pathOr(q.Get("path"), "/")}
		headers := map[string]any{}
		if host := q.Get("host"); host != "" {
			headers["Host"] = host
		}
		if ed := q.Get("ed"); ed != "" {
			if n, convErr := strconv.Atoi(ed); convErr == nil {
				opts["max-early-data"] = n
				opts["early-data-header-name"] = "Sec-WebSocket-Protocol"
			}
		}
		if len(headers) > 0 {
			opts["headers"] = headers
		}
		stanza["ws-opts"] = opts
	case "grpc":
		stanza["network"] = "grpc"
		opts := map[string]any{"grpc-service-name": q.Get("serviceName")}
		if mode := q.Get("mode"); mode != "" {
			opts["grpc-mode"] = mode
		}
		stanza["grpc-opts"] = opts
	case "http", "h2":
		stanza["network"] = "h2"
		opts := map[string]any{}
		if path := q.Get("path"); path != "" {
			opts["path"] = strings.Split(path, ",")
		}
		if host := q.Get("host"); host != "" {
			opts["host"] = []string{host}
		}
		stanza["h2-opts"] = opts
	default:
		stanza["network"] = network
	}
	return stanza
}

func stanzaName(u *url.URL) string {
	if u.Fragment != "" {
		return u.Fragment
	}
	return u.Hostname()
}

func pathOr(path, fallback string) string {
	if path == "" {
		return fallback
	}
	return path
}

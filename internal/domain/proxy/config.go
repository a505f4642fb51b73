package proxy

import "gopkg.in/yaml.v3"

// Group and provider names are fixed: the supervisor and the worker's HTTP
// client never need to discover them.
const (
	selectGroupName  = "PROXY"
	providerName     = "subscription"
	directMember     = "DIRECT"
	healthCheckURL   = "http://www.gstatic.com/generate_204"
	providerInterval = 3600
	healthInterval   = 300
)

// Group is the selection group listing every usable egress by name.
type Group struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"`
	Proxies []string `yaml:"proxies,omitempty"`
	Use     []string `yaml:"use,omitempty"`
}

// HealthCheck configures periodic probing of provider-sourced proxies.
type HealthCheck struct {
	Enable   bool   `yaml:"enable"`
	URL      string `yaml:"url"`
	Interval int    `yaml:"interval"`
}

// Provider is a remote subscription source of additional proxies.
type Provider struct {
	Type        string      `yaml:"type"`
	URL         string      `yaml:"url"`
	Path        string      `yaml:"path"`
	Interval    int         `yaml:"interval"`
	HealthCheck HealthCheck `yaml:"health-check"`
}

// Config is the full tunnel configuration document written once per worker
// process start and discarded at teardown.
type Config struct {
	Port           int                 `yaml:"port"`
	SocksPort      int                 `yaml:"socks-port"`
	AllowLAN       bool                `yaml:"allow-lan"`
	Mode           string              `yaml:"mode"`
	Proxies        []Stanza            `yaml:"proxies,omitempty"`
	ProxyProviders map[string]Provider `yaml:"proxy-providers,omitempty"`
	ProxyGroups    []Group             `yaml:"proxy-groups"`
	Rules          []string            `yaml:"rules"`
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// BuildOptions carry the fixed listen ports and the optional remote
// subscription source.
type BuildOptions struct {
	HTTPPort        int
	SocksPort       int
	Mode            string
	SubscriptionURL string
}

// BuildConfig assembles a complete tunnel configuration: every translated
// stanza plus a DIRECT fallback in one selection group, and a subscription
// provider with health checking when a source URL is configured. Returns nil
// when there is nothing to route through, in which case the caller must skip
// tunnel startup entirely.
func BuildConfig(stanzas []Stanza, opts BuildOptions) *Config {
	if len(stanzas) == 0 && opts.SubscriptionURL == "" {
		return nil
	}

	mode := opts.Mode
	if mode == "" {
		mode = "rule"
	}

	group := Group{Name: selectGroupName, Type: "select"}
	for _, s := range stanzas {
		group.Proxies = append(group.Proxies, s.Name())
	}
	group.Proxies = append(group.Proxies, directMember)

	cfg := &Config{
		Port:        opts.HTTPPort,
		SocksPort:   opts.SocksPort,
		Mode:        mode,
		Proxies:     stanzas,
		ProxyGroups: []Group{group},
		Rules:       []string{"MATCH," + selectGroupName},
	}

	if opts.SubscriptionURL != "" {
		cfg.ProxyProviders = map[string]Provider{
			providerName: {
				Type:     "http",
				URL:      opts.SubscriptionURL,
				Path:     "./" + providerName + ".yaml",
				Interval: providerInterval,
				HealthCheck: HealthCheck{
					Enable:   true,
					URL:      healthCheckURL,
					Interval: healthInterval,
				},
			},
		}
		cfg.ProxyGroups[0].Use = []string{providerName}
	}

	return cfg
}

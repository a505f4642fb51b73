package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestBuildConfigNilWhenEmpty(t *testing.T) {
	assert.Nil(t, BuildConfig(nil, BuildOptions{HTTPPort: 7890}))
	assert.Nil(t, BuildConfig([]Stanza{}, BuildOptions{HTTPPort: 7890}))
}

func TestBuildConfigGroupMembers(t *testing.T) {
	stanzas := []Stanza{
		{"name": "node-a", "type": "trojan"},
		{"name": "node-b", "type": "vless"},
	}
	cfg := BuildConfig(stanzas, BuildOptions{HTTPPort: 7890, SocksPort: 7891})
	require.NotNil(t, cfg)

	assert.Equal(t, 7890, cfg.Port)
	assert.Equal(t, 7891, cfg.SocksPort)
	assert.Equal(t, "rule", cfg.Mode)
	assert.Equal(t, []string{"MATCH,PROXY"}, cfg.Rules)

	require.Len(t, cfg.ProxyGroups, 1)
	group := cfg.ProxyGroups[0]
	assert.Equal(t, "PROXY", group.Name)
	assert.Equal(t, "select", group.Type)
	assert.Equal(t, []string{"node-a", "node-b", "DIRECT"}, group.Proxies)
	assert.Empty(t, group.Use)
	assert.Empty(t, cfg.ProxyProviders)
}

func TestBuildConfigModeOverride(t *testing.T) {
	cfg := BuildConfig([]Stanza{{"name": "n"}}, BuildOptions{Mode: "global"})
	require.NotNil(t, cfg)
	assert.Equal(t, "global", cfg.Mode)
}

func TestBuildConfigSubscriptionProvider(t *testing.T) {
	cfg := BuildConfig(nil, BuildOptions{
		HTTPPort:        7890,
		SubscriptionURL: "https://sub.example.com/nodes",
	})
	require.NotNil(t, cfg)

	provider, ok := cfg.ProxyProviders["subscription"]
	require.True(t, ok)
	assert.Equal(t, "http", provider.Type)
	assert.Equal(t, "https://sub.example.com/nodes", provider.URL)
	assert.Equal(t, 3600, provider.Interval)
	assert.True(t, provider.HealthCheck.Enable)
	assert.Equal(t, 300, provider.HealthCheck.Interval)

	require.Len(t, cfg.ProxyGroups, 1)
	assert.Equal(t, []string{"subscription"}, cfg.ProxyGroups[0].Use)
	assert.Equal(t, []string{"DIRECT"}, cfg.ProxyGroups[0].Proxies)
}

func TestConfigMarshalRoundTrip(t *testing.T) {
	cfg := BuildConfig([]Stanza{
		{"name": "node-a", "type": "trojan", "server": "t.example.com", "port": 443},
	}, BuildOptions{HTTPPort: 7890, SocksPort: 7891, SubscriptionURL: "https://sub.example.com/nodes"})
	require.NotNil(t, cfg)

	data, err := cfg.Marshal()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(data, &decoded))

	assert.Equal(t, 7890, decoded["port"])
	assert.Equal(t, 7891, decoded["socks-port"])
	assert.Contains(t, decoded, "proxies")
	assert.Contains(t, decoded, "proxy-groups")
	assert.Contains(t, decoded, "proxy-providers")
	assert.Contains(t, decoded, "rules")
}

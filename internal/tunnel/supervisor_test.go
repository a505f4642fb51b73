package tunnel

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/medialoom/coordinator/internal/domain/proxy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildConfigDataRawOverride(t *testing.T) {
	raw := "port: 9999\nmode: global\n"
	data, ok := buildConfigData(nil, Options{RawConfig: raw}, testLogger())
	require.True(t, ok)
	assert.Equal(t, raw, string(data))
}

func TestBuildConfigDataFromDescriptor(t *testing.T) {
	desc := &proxy.Descriptor{NodeURL: "trojan://secret@node.example.com:443"}
	data, ok := buildConfigData(desc, Options{HTTPPort: 7890, SocksPort: 7891}, testLogger())
	require.True(t, ok)

	var cfg map[string]any
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, 7890, cfg["port"])
	assert.Equal(t, 7891, cfg["socks-port"])

	proxies, isList := cfg["proxies"].([]any)
	require.True(t, isList)
	require.Len(t, proxies, 1)
	stanza, isMap := proxies[0].(map[string]any)
	require.True(t, isMap)
	assert.Equal(t, "trojan", stanza["type"])
	assert.Equal(t, "node.example.com", stanza["server"])
}

func TestBuildConfigDataNothingToRoute(t *testing.T) {
	_, ok := buildConfigData(nil, Options{HTTPPort: 7890}, testLogger())
	assert.False(t, ok)

	// An untranslatable descriptor with no subscription is the same dead end.
	_, ok = buildConfigData(&proxy.Descriptor{Protocol: "ftp", Server: "x", Port: 21}, Options{}, testLogger())
	assert.False(t, ok)
}

func TestBuildConfigDataSubscriptionOnly(t *testing.T) {
	data, ok := buildConfigData(nil, Options{
		HTTPPort:        7890,
		SubscriptionURL: "https://sub.example.com/nodes",
	}, testLogger())
	require.True(t, ok)

	var cfg map[string]any
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Contains(t, cfg, "proxy-providers")
}

func TestWaitReady(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	port := listener.Addr().(*net.TCPAddr).Port

	opts := Options{HTTPPort: port, ReadyAttempts: 3, ReadyBackoff: 50 * time.Millisecond}
	assert.True(t, waitReady(context.Background(), opts, testLogger()))
}

func TestWaitReadyGivesUp(t *testing.T) {
	// Grab a free port and close it so nothing is listening.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	opts := Options{HTTPPort: port, ReadyAttempts: 2, ReadyBackoff: 20 * time.Millisecond}
	assert.False(t, waitReady(context.Background(), opts, testLogger()))
}

func TestWaitReadyHonorsContext(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := Options{HTTPPort: port, ReadyAttempts: 100, ReadyBackoff: 10 * time.Millisecond}

	start := time.Now()
	assert.False(t, waitReady(ctx, opts, testLogger()))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestStartSkipsWithoutUsableConfig(t *testing.T) {
	tun, err := Start(context.Background(), nil, Options{WorkDir: t.TempDir()})
	assert.NoError(t, err)
	assert.Nil(t, tun)
}

func TestStartSkipsWithoutBinary(t *testing.T) {
	desc := &proxy.Descriptor{NodeURL: "trojan://secret@node.example.com:443"}
	tun, err := Start(context.Background(), desc, Options{WorkDir: t.TempDir(), HTTPPort: 7890})
	assert.NoError(t, err)
	assert.Nil(t, tun)
}

func TestStartSpawnFailureIsNotFatal(t *testing.T) {
	desc := &proxy.Descriptor{NodeURL: "trojan://secret@node.example.com:443"}
	tun, err := Start(context.Background(), desc, Options{
		BinaryPath:    "/nonexistent/tunnel-binary",
		WorkDir:       t.TempDir(),
		HTTPPort:      7890,
		ReadyAttempts: 1,
		ReadyBackoff:  10 * time.Millisecond,
		Logger:        testLogger(),
	})
	assert.NoError(t, err)
	assert.Nil(t, tun)
}

func TestTunnelProxyURL(t *testing.T) {
	tun := &Tunnel{proxyURL: "http://127.0.0.1:" + strconv.Itoa(7890)}
	assert.Equal(t, "http://127.0.0.1:7890", tun.ProxyURL())
}

func TestCloseNilSafe(t *testing.T) {
	var tun *Tunnel
	tun.Close()
	(&Tunnel{}).Close()
}

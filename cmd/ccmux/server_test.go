package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elidickinson/ccmux-go/internal/config"
)

func testGatewayConfig() *config.AppConfig {
	return &config.AppConfig{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0, LogLevel: "info"},
		Router: config.RouterConfig{Default: "claude-sonnet-4"},
	}
}

func TestGatewayServerStartAndStop(t *testing.T) {
	dir := t.TempDir()
	cfgPath := dir + "/config.toml"
	cfg := testGatewayConfig()
	require.NoError(t, config.Save(cfgPath, cfg))

	gw, err := newGatewayServer(cfg, cfgPath, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, gw.Start())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	resp, err := http.Get("http://" + gw.main.ListenAddr() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not shut down in time")
	}
}

func TestResolveConfigPathUsesFlagWhenSet(t *testing.T) {
	explicit := "/tmp/custom-ccmux-config.toml"
	assert.Equal(t, explicit, resolveConfigPath(&explicit))
}

func TestResolveConfigPathFallsBackToDefault(t *testing.T) {
	empty := ""
	got := resolveConfigPath(&empty)
	assert.Contains(t, got, ".ccmux")
	assert.Contains(t, got, "config.toml")
}

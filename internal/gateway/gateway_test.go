// ABOUTME: Tests for gateway construction, the Run loop and shutdown
// ABOUTME: Uses a temp SQLite database and a free loopback port

package gateway

import (
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/support-gateway/internal/config"
	"github.com/2389/support-gateway/internal/routing"
)

const testSecret = "gateway-test-secret-at-least-32-bytes"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("SUPPORT_DB_PATH", "")

	return &config.Config{
		Server:   config.ServerConfig{HTTPAddr: availableAddr(t)},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "support.db")},
		Auth:     config.AuthConfig{JWTSecret: testSecret, TokenTTL: time.Hour},
		Routing:  config.RoutingConfig{Policy: "shared"},
		Realtime: config.RealtimeConfig{
			WriteTimeout:   time.Second,
			PingInterval:   time.Second,
			ReadTimeout:    5 * time.Second,
			SendBuffer:     32,
			MaxMessageSize: 64 * 1024,
		},
		Dedupe:  config.DedupeConfig{TTL: time.Minute, MaxSize: 100},
		Events:  config.EventsConfig{Exchange: config.DefaultExchange},
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
	}
}

// availableAddr reserves a loopback port and releases it for the gateway.
func availableAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func newTestGateway(t *testing.T, cfg *config.Config) *Gateway {
	t.Helper()
	gw, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })
	return gw
}

func TestNew_WiresPolicyFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Routing.Policy = "exclusive"

	gw := newTestGateway(t, cfg)
	assert.Equal(t, routing.PolicyExclusive, gw.Engine().Router().Policy())
	assert.NotNil(t, gw.verifier)
}

func TestNew_RejectsUnknownPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Routing.Policy = "round-robin"

	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestNew_WithoutSecretDisablesVerifier(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = ""

	gw := newTestGateway(t, cfg)
	assert.Nil(t, gw.verifier)
}

func TestNew_UnreachableEventBus(t *testing.T) {
	cfg := testConfig(t)
	cfg.Events.AMQPURL = "amqp://guest:guest@" + availableAddr(t) + "/"

	_, err := New(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event bus")
}

func TestNew_DatabasePathOverride(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Path = filepath.Join(t.TempDir(), "missing-dir", "nested", "ignored.db")
	t.Setenv("SUPPORT_DB_PATH", filepath.Join(t.TempDir(), "override.db"))

	gw := newTestGateway(t, cfg)
	require.NoError(t, gw.store.Ping(t.Context()))
}

func TestRun_ServesUntilCanceled(t *testing.T) {
	cfg := testConfig(t)
	gw, err := New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	url := "http://" + cfg.Server.HTTPAddr + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && string(body) == "OK"
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig(t)
	cfg.Server.HTTPAddr = ln.Addr().String()
	gw, err := New(cfg, nil)
	require.NoError(t, err)

	err = gw.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listening")
}

func TestAppendCloseError(t *testing.T) {
	var errs []error
	errs = appendCloseError(errs, "store close", nil)
	assert.Empty(t, errs)

	errs = appendCloseError(errs, "store close", io.ErrClosedPipe)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], io.ErrClosedPipe)
	assert.Contains(t, errs[0].Error(), "store close")
}

// ABOUTME: Tests for the admin API subcommands against a stub admin server
// ABOUTME: Also covers sample config writing and token signing

package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/onebot-gateway/internal/auth"
	"github.com/2389/onebot-gateway/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func stubAdmin(t *testing.T, token string) *adminClient {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /health/ready", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ready (1 bridges)"))
	})
	mux.HandleFunc("GET /api/connections", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		_, _ = w.Write([]byte(`{"connections":[{"id":"c1","self_id":10001,"role":"Universal",` +
			`"remote_addr":"127.0.0.1:5000","state":"open","connected_at":"2026-01-02T03:04:05Z",` +
			`"queued_events":0}],"pending_actions":2}`))
	})
	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"max_queue":4,"sessions":[{"key":"qq_42","active":true,"queued":1}]}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &adminClient{baseURL: srv.URL, token: token, http: srv.Client()}
}

func TestNewAdminClient(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{AdminAddr: "0.0.0.0:6701", AccessToken: "s3cret"}}
	c, err := newAdminClient(cfg)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:6701", c.baseURL)
	assert.Equal(t, "s3cret", c.token)

	cfg.Server.AdminAddr = "10.0.0.5:9000"
	c, err = newAdminClient(cfg)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:9000", c.baseURL)

	cfg.Server.AdminAddr = "-"
	_, err = newAdminClient(cfg)
	assert.ErrorContains(t, err, "disabled")

	cfg.Server.AdminAddr = "nonsense"
	_, err = newAdminClient(cfg)
	assert.Error(t, err)
}

func TestRunHealth(t *testing.T) {
	c := stubAdmin(t, "")
	var out bytes.Buffer

	require.NoError(t, runHealth(context.Background(), c, &out))
	assert.Equal(t, "healthy: ready (1 bridges)\n", out.String())
}

func TestRunHealth_NotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health/ready" {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("no bridges connected"))
			return
		}
		_, _ = w.Write([]byte("OK"))
	}))
	defer srv.Close()

	c := &adminClient{baseURL: srv.URL, http: srv.Client()}
	err := runHealth(context.Background(), c, &bytes.Buffer{})
	assert.ErrorContains(t, err, "no bridges connected")
}

func TestRunConnections(t *testing.T) {
	c := stubAdmin(t, "s3cret")
	var out bytes.Buffer

	require.NoError(t, runConnections(context.Background(), c, &out))
	assert.Contains(t, out.String(), "c1")
	assert.Contains(t, out.String(), "10001")
	assert.Contains(t, out.String(), "Universal")
	assert.Contains(t, out.String(), "2 pending actions")
}

func TestRunConnections_Unauthorized(t *testing.T) {
	c := stubAdmin(t, "s3cret")
	c.token = "wrong"

	err := runConnections(context.Background(), c, &bytes.Buffer{})
	assert.ErrorContains(t, err, "status 401: unauthorized")
}

func TestRunSessions(t *testing.T) {
	c := stubAdmin(t, "")
	var out bytes.Buffer

	require.NoError(t, runSessions(context.Background(), c, &out))
	assert.Contains(t, out.String(), "max queue: 4")
	assert.Contains(t, out.String(), "qq_42")
	assert.Contains(t, out.String(), "true")
}

func TestWriteSampleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "gateway.yaml")

	require.NoError(t, writeSampleConfig(path, false))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.Sample, string(data))

	err = writeSampleConfig(path, false)
	assert.ErrorContains(t, err, "already exists")

	require.NoError(t, writeSampleConfig(path, true))
}

func TestSignToken(t *testing.T) {
	token, err := signToken(testSecret, "bridge-1", time.Hour)
	require.NoError(t, err)

	verifier, err := auth.NewJWTVerifier([]byte(testSecret))
	require.NoError(t, err)
	sub, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "bridge-1", sub)

	_, err = signToken("", "bridge-1", 0)
	assert.ErrorContains(t, err, "jwt_secret")

	_, err = signToken("short", "bridge-1", 0)
	assert.ErrorIs(t, err, auth.ErrSecretTooShort)
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "/etc/onebot/gateway.yaml")

	cfgFile = ""
	assert.Equal(t, "/etc/onebot/gateway.yaml", getConfigPath())

	cfgFile = "/tmp/override.toml"
	t.Cleanup(func() { cfgFile = "" })
	assert.Equal(t, "/tmp/override.toml", getConfigPath())
}

// ABOUTME: Tests for Gateway construction, Run and Shutdown
// ABOUTME: Starts a real HTTP listener to exercise the full server lifecycle

package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/2389/codex-http-server/internal/codex"
	"github.com/2389/codex-http-server/internal/codex/codextest"
	"github.com/2389/codex-http-server/internal/config"
)

// testConfig creates a minimal config for testing with an available port.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	httpListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available HTTP port: %v", err)
	}
	httpAddr := httpListener.Addr().String()
	httpListener.Close()

	cfg := config.Default()
	cfg.Server.HTTPAddr = httpAddr
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Database.Path = ":memory:"
	cfg.Codex.Home = t.TempDir()
	return cfg
}

func TestGatewayNew(t *testing.T) {
	cfg := testConfig(t)

	gw, err := New(cfg, &codextest.Engine{}, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.Shutdown(context.Background())

	if gw.config != cfg {
		t.Error("gateway config mismatch")
	}
	if gw.store == nil {
		t.Error("store should not be nil when database.path is set")
	}
	if gw.resolver.Home() != cfg.Codex.Home {
		t.Errorf("codex home = %q, want %q", gw.resolver.Home(), cfg.Codex.Home)
	}
}

func TestGatewayNew_LedgerDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Path = ""

	gw, err := New(cfg, &codextest.Engine{}, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.Shutdown(context.Background())

	if gw.store != nil {
		t.Error("store should be nil when database.path is empty")
	}
}

func TestGatewayNew_DefaultCodexHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("CODEX_HOME", home)

	cfg := testConfig(t)
	cfg.Codex.Home = ""

	gw, err := New(cfg, &codextest.Engine{}, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.Shutdown(context.Background())

	if gw.resolver.Home() != home {
		t.Errorf("codex home = %q, want %q", gw.resolver.Home(), home)
	}
}

func TestGatewayRunAndShutdown(t *testing.T) {
	cfg := testConfig(t)

	gw, err := New(cfg, &codextest.Engine{}, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Run(ctx)
	}()

	time.Sleep(100 * time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("gateway did not shutdown in time")
	}
}

func TestGatewayRun_AddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	cfg := testConfig(t)
	cfg.Server.HTTPAddr = ln.Addr().String()

	gw, err := New(cfg, &codextest.Engine{}, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.Shutdown(context.Background())

	err = gw.Run(t.Context())
	if err == nil || !strings.Contains(err.Error(), "listening on HTTP address") {
		t.Errorf("Run() error = %v, want listen failure", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	cfg := testConfig(t)

	gw, err := New(cfg, &codextest.Engine{}, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	go func() {
		_ = gw.Run(t.Context())
	}()

	time.Sleep(100 * time.Millisecond)

	resp, err := http.Post("http://"+cfg.Server.HTTPAddr+"/health", "application/json", nil)
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestResponsesEndpoint_OverRealListener(t *testing.T) {
	cfg := testConfig(t)
	last := "done"
	engine := &codextest.Engine{Events: []codex.Event{
		{Msg: codex.SessionConfigured{SessionID: "s"}},
		{ID: "1", Msg: codex.TaskComplete{LastAgentMessage: &last}},
	}}

	gw, err := New(cfg, engine, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	go func() {
		_ = gw.Run(t.Context())
	}()

	time.Sleep(100 * time.Millisecond)

	resp, err := http.Post("http://"+cfg.Server.HTTPAddr+"/v1/responses", "application/json", strings.NewReader(`{"input":"hi"}`))
	if err != nil {
		t.Fatalf("responses request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("responses status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
}

func TestResolveTailscaleStateDir(t *testing.T) {
	if got, err := resolveTailscaleStateDir("/var/lib/codex-ts"); err != nil || got != "/var/lib/codex-ts" {
		t.Errorf("resolveTailscaleStateDir(configured) = %q, %v", got, err)
	}

	t.Setenv("HOME", "/home/someone")
	got, err := resolveTailscaleStateDir("")
	if err != nil {
		t.Fatalf("resolveTailscaleStateDir() error = %v", err)
	}
	want := filepath.Join("/home/someone", ".local", "share", "codex-http", "tailscale")
	if got != want {
		t.Errorf("resolveTailscaleStateDir() = %q, want %q", got, want)
	}
}

func TestResolveTailscaleAuthKey(t *testing.T) {
	t.Setenv("TS_AUTHKEY", "")

	if _, err := resolveTailscaleAuthKey(""); err == nil {
		t.Error("expected error with no auth key configured")
	}

	if got, _ := resolveTailscaleAuthKey("tskey-config"); got != "tskey-config" {
		t.Errorf("resolveTailscaleAuthKey(configured) = %q", got)
	}

	t.Setenv("TS_AUTHKEY", "tskey-env")
	if got, _ := resolveTailscaleAuthKey(""); got != "tskey-env" {
		t.Errorf("resolveTailscaleAuthKey(env) = %q, want tskey-env", got)
	}
}

func TestGatewayNew_LedgerPathUnderHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := testConfig(t)
	cfg.Database.Path = "~/turns.db"

	gw, err := New(cfg, &codextest.Engine{}, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.Shutdown(context.Background())

	if _, err := os.Stat(filepath.Join(home, "turns.db")); err != nil {
		t.Errorf("ledger not created under home: %v", err)
	}
}

package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/dgellow/authbridge/internal/server"
	"github.com/stretchr/testify/require"
)

const (
	gateAddr      = ":3000"
	gateBaseURL   = "http://localhost:3000"
	satelliteAddr = ":3015"
	satelliteURL  = "http://localhost:3015"
	testSecret    = "integration-session-secret-0123456789"
)

// writeTestConfig writes a config map to a temporary JSON file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTestConfig(t *testing.T, cfg map[string]any) string {
	t.Helper()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal test config: %v", err)
	}
	f, err := os.CreateTemp(t.TempDir(), "config-*.json")
	if err != nil {
		t.Fatalf("Failed to create temp config file: %v", err)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Failed to close temp config: %v", err)
	}
	return f.Name()
}

// gateConfig builds the origin site's config. allowedOrigins is left to
// its default, which includes the local satellite.
func gateConfig() map[string]any {
	return map[string]any{
		"version": "v0.0.1",
		"server": map[string]any{
			"baseURL": gateBaseURL,
			"addr":    gateAddr,
		},
		"gate": map[string]any{
			"sessionSecret": map[string]string{"$env": "SESSION_SECRET"},
			"pollInterval":  "200ms",
		},
	}
}

// satelliteConfig builds the satellite's config.
func satelliteConfig() map[string]any {
	return map[string]any{
		"version": "v0.0.1",
		"server": map[string]any{
			"baseURL": satelliteURL,
			"addr":    satelliteAddr,
		},
		"satellite": map[string]any{
			"gateURL":      map[string]string{"$env": "ORIGIN_AUTH_GATE_URL"},
			"clientID":     "satellite-web",
			"tokenURL":     fakeAuthURL + "/token",
			"revokeURL":    fakeAuthURL + "/revoke",
			"probeTimeout": "5s",
		},
	}
}

// trace logs a message if TRACE environment variable is set
func trace(t *testing.T, format string, args ...any) {
	if os.Getenv("TRACE") == "1" {
		t.Logf("TRACE: "+format, args...)
	}
}

// startAuthBridge starts the authbridge server with the given config
func startAuthBridge(t *testing.T, configPath string, extraEnv ...string) {
	cmd := exec.Command(binaryPath, "serve", "--config", configPath)

	cmd.Env = os.Environ()
	cmd.Env = append(cmd.Env,
		"SESSION_SECRET="+testSecret,
		"ORIGIN_AUTH_GATE_URL="+gateBaseURL+"/auth-gate",
		// Plain http on localhost: session cookies cannot be Secure
		"AUTHBRIDGE_ENV=development",
	)
	cmd.Env = append(cmd.Env, extraEnv...)

	// Capture output to log file if AUTHBRIDGE_LOG_FILE is set
	if logFile := os.Getenv("AUTHBRIDGE_LOG_FILE"); logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			cmd.Stderr = f
			cmd.Stdout = f
			t.Cleanup(func() { f.Close() })
		}
	}

	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start authbridge: %v", err)
	}
	trace(t, "started authbridge pid=%d config=%s", cmd.Process.Pid, configPath)

	// Register cleanup that runs even if test is killed
	t.Cleanup(func() {
		stopAuthBridge(cmd)
	})
}

// stopAuthBridge stops the authbridge server gracefully
func stopAuthBridge(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}

	// Try graceful shutdown first (SIGINT)
	if err := cmd.Process.Signal(syscall.SIGINT); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-done:
		return
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
}

// waitForAuthBridge waits for the server at baseURL to be ready
func waitForAuthBridge(t *testing.T, baseURL string) {
	t.Helper()
	for range 20 {
		resp, err := http.Get(baseURL + "/health")
		if err == nil && resp.StatusCode == 200 {
			resp.Body.Close()
			return
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("authbridge at %s failed to become ready after 10 seconds", baseURL)
}

// startGate starts an origin site and waits for it.
func startGate(t *testing.T) {
	t.Helper()
	startAuthBridge(t, writeTestConfig(t, gateConfig()))
	waitForAuthBridge(t, gateBaseURL)
}

// startSatellite starts a satellite and waits for it.
func startSatellite(t *testing.T) {
	t.Helper()
	startAuthBridge(t, writeTestConfig(t, satelliteConfig()))
	waitForAuthBridge(t, satelliteURL)
}

// originBrowser is a cookie-keeping client for the origin site, standing in
// for the user's browser.
type originBrowser struct {
	t      *testing.T
	client *http.Client
}

func newOriginBrowser(t *testing.T) *originBrowser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &originBrowser{t: t, client: &http.Client{Jar: jar, Timeout: 5 * time.Second}}
}

func (b *originBrowser) csrf() string {
	b.t.Helper()
	resp, err := b.client.Get(gateBaseURL + "/api/session/csrf")
	require.NoError(b.t, err)
	defer resp.Body.Close()
	require.Equal(b.t, http.StatusOK, resp.StatusCode)

	var body server.CSRFResponse
	require.NoError(b.t, json.NewDecoder(resp.Body).Decode(&body))
	return body.CSRFToken
}

func (b *originBrowser) do(method, body string) *http.Response {
	b.t.Helper()
	req, err := http.NewRequest(method, gateBaseURL+"/api/session", strings.NewReader(body))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", gateBaseURL)
	req.Header.Set(server.CSRFHeader, b.csrf())
	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	return resp
}

// signIn stores a session on the origin the way the origin's login flow does.
func (b *originBrowser) signIn(refreshToken, email string) {
	b.t.Helper()
	resp := b.do(http.MethodPost, fmt.Sprintf(`{"refresh_token": %q, "email": %q}`, refreshToken, email))
	defer resp.Body.Close()
	require.Equal(b.t, http.StatusOK, resp.StatusCode)
}

func (b *originBrowser) signOut() {
	b.t.Helper()
	resp := b.do(http.MethodDelete, "")
	defer resp.Body.Close()
	require.Equal(b.t, http.StatusNoContent, resp.StatusCode)
}

package integration

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityScenarios(t *testing.T) {
	startGate(t)

	t.Run("GateFramingPolicy", func(t *testing.T) {
		resp, err := http.Get(gateBaseURL + "/auth-gate")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		csp := resp.Header.Get("Content-Security-Policy")
		assert.True(t, strings.HasSuffix(csp, "frame-ancestors https://satellite.vercel.app http://localhost:3015"), csp)
		assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	})

	t.Run("CrossSiteSessionRead", func(t *testing.T) {
		req, _ := http.NewRequest("GET", gateBaseURL+"/api/session", nil)
		req.Header.Set("Origin", satelliteURL)
		req.Header.Set("Sec-Fetch-Site", "same-site")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"), "session API never answers CORS")
	})

	t.Run("SessionWriteWithoutCSRF", func(t *testing.T) {
		req, _ := http.NewRequest("POST", gateBaseURL+"/api/session", strings.NewReader(`{"refresh_token": "stolen"}`))
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("ForgedSessionCookie", func(t *testing.T) {
		req, _ := http.NewRequest("GET", gateBaseURL+"/api/session", nil)
		req.AddCookie(&http.Cookie{Name: "authbridge_session", Value: "eyJmb3JnZWQiOnRydWV9.c2ln"})

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"user": null}`, string(body))
	})

	t.Run("DiscoveryCORS", func(t *testing.T) {
		for origin, want := range map[string]string{
			satelliteURL:                   satelliteURL,
			"https://evil.example":         "",
			"https://satellite.vercel.app": "https://satellite.vercel.app",
		} {
			req, _ := http.NewRequest("GET", gateBaseURL+"/.well-known/auth-bridge", nil)
			req.Header.Set("Origin", origin)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, want, resp.Header.Get("Access-Control-Allow-Origin"), "origin %s", origin)
		}
	})
}

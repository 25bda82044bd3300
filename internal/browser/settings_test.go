package browser

import (
	"testing"
	"time"

	"github.com/dgellow/authbridge/internal/origin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGateSettings(t *testing.T) {
	settings, err := ParseGateSettings(map[string]string{
		"allowedOrigins": "https://satellite.example,http://localhost:3015",
		"sessionUrl":     "https://origin.example/api/session",
		"pollInterval":   "2s",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, settings.Allowed.Len())
	assert.True(t, settings.Allowed.Contains(origin.MustParse("http://localhost:3015")))
	assert.Equal(t, "https://origin.example/api/session", settings.SessionURL)
	assert.Equal(t, 2*time.Second, settings.PollInterval)
}

func TestParseGateSettings_Errors(t *testing.T) {
	valid := func() map[string]string {
		return map[string]string{
			"allowedOrigins": "https://satellite.example",
			"sessionUrl":     "/api/session",
			"pollInterval":   "2s",
		}
	}

	tests := []struct {
		name   string
		mutate func(map[string]string)
		want   string
	}{
		{name: "bad origin", mutate: func(m map[string]string) { m["allowedOrigins"] = "https://a.example/path" }, want: "allowed origins"},
		{name: "no session url", mutate: func(m map[string]string) { delete(m, "sessionUrl") }, want: "session URL"},
		{name: "bad interval", mutate: func(m map[string]string) { m["pollInterval"] = "often" }, want: "poll interval"},
		{name: "zero interval", mutate: func(m map[string]string) { m["pollInterval"] = "0s" }, want: "poll interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := valid()
			tt.mutate(data)
			_, err := ParseGateSettings(data)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseBridgeSettings(t *testing.T) {
	settings := ParseBridgeSettings(map[string]string{
		"gateUrl":  " https://origin.example/auth-gate ",
		"tokenUrl": "https://auth.example/oauth/token",
		"clientId": "satellite-web",
	})

	assert.Equal(t, BridgeSettings{
		GateURL:  "https://origin.example/auth-gate",
		TokenURL: "https://auth.example/oauth/token",
		ClientID: "satellite-web",
	}, settings)
}

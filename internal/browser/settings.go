// Package browser adapts the DOM to the gate and bridge controllers. The
// DOM bindings only build for js/wasm; page settings and the session
// fetcher are plain Go so they can be tested anywhere.
package browser

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgellow/authbridge/internal/origin"
)

// Element ids and the data-* attributes the server pages render.
const (
	GateElementID         = "auth-gate"
	GateStatusElementID   = "auth-gate-status"
	BridgeElementID       = "auth-bridge"
	BridgeStatusElementID = "auth-bridge-status"
)

// GateSettings are read from the gate page's dataset.
type GateSettings struct {
	Allowed      origin.AllowList
	SessionURL   string
	PollInterval time.Duration
}

// ParseGateSettings reads the dataset of the #auth-gate element. Keys are
// in DOMStringMap form, so data-session-url is "sessionUrl".
func ParseGateSettings(data map[string]string) (GateSettings, error) {
	allowed, err := origin.ParseAllowList(data["allowedOrigins"])
	if err != nil {
		return GateSettings{}, fmt.Errorf("allowed origins: %w", err)
	}

	sessionURL := strings.TrimSpace(data["sessionUrl"])
	if sessionURL == "" {
		return GateSettings{}, fmt.Errorf("session URL is missing")
	}

	interval, err := time.ParseDuration(data["pollInterval"])
	if err != nil || interval <= 0 {
		return GateSettings{}, fmt.Errorf("poll interval %q is not a positive duration", data["pollInterval"])
	}

	return GateSettings{
		Allowed:      allowed,
		SessionURL:   sessionURL,
		PollInterval: interval,
	}, nil
}

// BridgeSettings are read from the satellite page's dataset. They are not
// validated here: the bridge disables itself on a bad gate URL and the
// store reports a missing token endpoint.
type BridgeSettings struct {
	GateURL   string
	TokenURL  string
	RevokeURL string
	ClientID  string
}

// ParseBridgeSettings reads the dataset of the #auth-bridge element.
func ParseBridgeSettings(data map[string]string) BridgeSettings {
	return BridgeSettings{
		GateURL:   strings.TrimSpace(data["gateUrl"]),
		TokenURL:  strings.TrimSpace(data["tokenUrl"]),
		RevokeURL: strings.TrimSpace(data["revokeUrl"]),
		ClientID:  strings.TrimSpace(data["clientId"]),
	}
}

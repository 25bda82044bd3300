//go:build js && wasm

// Command bridge-wasm runs in the satellite page: it mounts the gate iframe
// and applies relayed tokens to the satellite's session.
package main

import (
	"github.com/dgellow/authbridge/internal/bridge"
	"github.com/dgellow/authbridge/internal/browser"
	"github.com/dgellow/authbridge/internal/log"
	"github.com/dgellow/authbridge/internal/session"
)

func statusText(s session.State) string {
	switch {
	case s.IsLoading:
		return "Signing in..."
	case s.Err != nil:
		return "Sign-in failed: " + s.Err.Error()
	case s.User == nil:
		return "Not signed in."
	case s.User.Email != "":
		return "Signed in as " + s.User.Email + "."
	default:
		return "Signed in."
	}
}

func main() {
	win := browser.NewWindow()
	status := win.StatusLine(browser.BridgeStatusElementID)
	settings := browser.ParseBridgeSettings(win.Dataset(browser.BridgeElementID))

	store, err := session.NewOAuth2Store(session.OAuth2Config{
		ClientID:  settings.ClientID,
		TokenURL:  settings.TokenURL,
		RevokeURL: settings.RevokeURL,
	})
	if err != nil {
		log.LogErrorWithFields("bridge", "Auth bridge disabled", map[string]any{
			"error": err.Error(),
		})
		select {}
	}
	store.Subscribe(func(s session.State) {
		status(statusText(s))
	})

	bridge.Setup(settings.GateURL, store, win, win)

	select {}
}

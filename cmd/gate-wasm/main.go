//go:build js && wasm

// Command gate-wasm is the script of the hidden gate page served by the
// origin site.
package main

import (
	"context"

	"github.com/dgellow/authbridge/internal/browser"
	"github.com/dgellow/authbridge/internal/gate"
	"github.com/dgellow/authbridge/internal/log"
	"github.com/dgellow/authbridge/internal/session"
)

func main() {
	win := browser.NewWindow()
	status := win.StatusLine(browser.GateStatusElementID)

	settings, err := browser.ParseGateSettings(win.Dataset(browser.GateElementID))
	if err != nil {
		log.LogErrorWithFields("gate", "Invalid gate page settings", map[string]any{
			"error": err.Error(),
		})
		status("Auth error: " + err.Error())
		select {}
	}

	store := session.NewMemoryStore(session.State{IsLoading: true})
	ctrl := gate.New(settings.Allowed, win, store, gate.WithStatusHook(status))

	if ctrl.Start() == gate.Ready {
		poller := session.NewPoller(store, browser.NewSessionFetcher(nil, settings.SessionURL), settings.PollInterval)
		poller.Start(context.Background())
	}

	select {}
}

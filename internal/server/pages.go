package server

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/dgellow/authbridge/internal/log"
	"github.com/dgellow/authbridge/internal/origin"
)

// GatePageHandler serves the page loaded into the satellite's hidden iframe.
type GatePageHandler struct {
	allowed      origin.AllowList
	sessionURL   string
	pollInterval time.Duration
	assetsPath   string
}

// NewGatePageHandler creates the gate page handler
func NewGatePageHandler(allowed origin.AllowList, sessionURL string, pollInterval time.Duration, assetsPath string) *GatePageHandler {
	return &GatePageHandler{
		allowed:      allowed,
		sessionURL:   sessionURL,
		pollInterval: pollInterval,
		assetsPath:   assetsPath,
	}
}

// ContentSecurityPolicy returns the gate page policy. frame-ancestors makes
// the browser refuse to render the gate inside anything but an allowed
// satellite.
func (h *GatePageHandler) ContentSecurityPolicy(nonce string) string {
	ancestors := "'none'"
	if h.allowed.Len() > 0 {
		ancestors = strings.Join(h.allowed.Strings(), " ")
	}
	return fmt.Sprintf(
		"default-src 'none'; script-src 'nonce-%s' 'wasm-unsafe-eval'; style-src 'nonce-%s'; connect-src 'self'; base-uri 'none'; form-action 'none'; frame-ancestors %s",
		nonce, nonce, ancestors,
	)
}

func (h *GatePageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	nonce := Nonce(r.Context())
	data := GatePageData{
		Nonce:          nonce,
		AssetsPath:     h.assetsPath,
		AllowedOrigins: strings.Join(h.allowed.Strings(), ","),
		SessionURL:     h.sessionURL,
		PollInterval:   h.pollInterval.String(),
	}

	w.Header().Set("Content-Security-Policy", h.ContentSecurityPolicy(nonce))
	w.Header().Set("Referrer-Policy", "same-origin")
	w.Header().Set("Cache-Control", "no-store")
	renderPage(w, r, gatePageTemplate, data)
}

// SatellitePageConfig is what the satellite page hands to its bridge.
type SatellitePageConfig struct {
	GateURL    string
	TokenURL   string
	RevokeURL  string
	ClientID   string
	AssetsPath string
}

// SatellitePageHandler serves the satellite page that embeds the gate.
type SatellitePageHandler struct {
	cfg SatellitePageConfig
}

// NewSatellitePageHandler creates the satellite page handler
func NewSatellitePageHandler(cfg SatellitePageConfig) *SatellitePageHandler {
	return &SatellitePageHandler{cfg: cfg}
}

// ContentSecurityPolicy returns the satellite page policy. Only the gate's
// origin may be framed, and only the token endpoints may be fetched.
func (h *SatellitePageHandler) ContentSecurityPolicy(nonce string) string {
	frameSrc := "'none'"
	if gate, err := origin.Parse(h.cfg.GateURL); err == nil {
		frameSrc = gate.String()
	}

	connect := []string{"'self'"}
	for _, raw := range []string{h.cfg.TokenURL, h.cfg.RevokeURL} {
		if o, err := origin.Parse(raw); err == nil && !slices.Contains(connect, o.String()) {
			connect = append(connect, o.String())
		}
	}

	return fmt.Sprintf(
		"default-src 'none'; script-src 'nonce-%s' 'wasm-unsafe-eval'; style-src 'nonce-%s'; connect-src %s; frame-src %s; base-uri 'none'; frame-ancestors 'self'",
		nonce, nonce, strings.Join(connect, " "), frameSrc,
	)
}

func (h *SatellitePageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	nonce := Nonce(r.Context())
	data := SatellitePageData{
		Nonce:      nonce,
		AssetsPath: h.cfg.AssetsPath,
		GateURL:    h.cfg.GateURL,
		TokenURL:   h.cfg.TokenURL,
		RevokeURL:  h.cfg.RevokeURL,
		ClientID:   h.cfg.ClientID,
	}

	w.Header().Set("Content-Security-Policy", h.ContentSecurityPolicy(nonce))
	// The gate checks document.referrer, so the iframe request must carry
	// at least this page's origin.
	w.Header().Set("Referrer-Policy", "origin")
	renderPage(w, r, satellitePageTemplate, data)
}

func renderPage(w http.ResponseWriter, r *http.Request, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.LogErrorWithFields("http", "Failed to render page", map[string]any{
			"template":   tmpl.Name(),
			"error":      err.Error(),
			"request_id": RequestID(r.Context()),
		})
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

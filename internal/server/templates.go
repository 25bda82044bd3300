package server

import (
	_ "embed"
	"html/template"
)

//go:embed templates/gate.html
var gatePageTemplateHTML string

//go:embed templates/satellite.html
var satellitePageTemplateHTML string

var gatePageTemplate = template.Must(template.New("gate").Parse(gatePageTemplateHTML))
var satellitePageTemplate = template.Must(template.New("satellite").Parse(satellitePageTemplateHTML))

// GatePageData represents the data for the hidden gate page
type GatePageData struct {
	Nonce          string
	AssetsPath     string
	AllowedOrigins string // comma-separated, read by the gate at startup
	SessionURL     string
	PollInterval   string
}

// SatellitePageData represents the data for the satellite page
type SatellitePageData struct {
	Nonce      string
	AssetsPath string
	GateURL    string
	TokenURL   string
	RevokeURL  string
	ClientID   string
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dgellow/authbridge/internal/origin"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

const (
	DefaultAddr         = ":3000"
	DefaultGatePath     = "/auth-gate"
	DefaultPollInterval = 2 * time.Second
	DefaultSessionTTL   = 30 * 24 * time.Hour
	DefaultProbeTimeout = 30 * time.Second
	MinSessionSecretLen = 32
)

// DefaultAllowedOrigins applies when the gate's allow-list is left empty.
var DefaultAllowedOrigins = []string{
	"https://satellite.vercel.app",
	"http://localhost:3015",
}

// ServerConfig is the HTTP surface shared by both roles
type ServerConfig struct {
	Addr      string `json:"addr"`
	BaseURL   string `json:"baseURL"`
	AssetsDir string `json:"assetsDir,omitempty"`
	LogLevel  string `json:"logLevel,omitempty"`
	LogFormat string `json:"logFormat,omitempty"`
}

// GateConfig enables the origin role: the auth gate page and the session
// endpoints it polls.
type GateConfig struct {
	Path           string        `json:"path"`
	AllowedOrigins []string      `json:"allowedOrigins"`
	SessionSecret  Secret        `json:"sessionSecret"`
	SessionTTL     time.Duration `json:"sessionTtl"`
	PollInterval   time.Duration `json:"pollInterval"`
}

// AllowList parses AllowedOrigins.
func (g *GateConfig) AllowList() (origin.AllowList, error) {
	return origin.ParseAllowListEntries(g.AllowedOrigins)
}

// SatelliteConfig enables the satellite role: the page that embeds the gate
// and applies relayed tokens. Everything here is rendered into the page, so
// the satellite is a public OAuth client with no secret.
type SatelliteConfig struct {
	GateURL      string        `json:"gateURL"`
	ClientID     string        `json:"clientID"`
	TokenURL     string        `json:"tokenURL"`
	RevokeURL    string        `json:"revokeURL,omitempty"`
	ProbeTimeout time.Duration `json:"probeTimeout"`
}

// GateOrigin parses the origin of GateURL.
func (s *SatelliteConfig) GateOrigin() (origin.Origin, error) {
	return origin.Parse(s.GateURL)
}

// Config represents the config structure with resolved values
type Config struct {
	Version   string           `json:"version"`
	Server    ServerConfig     `json:"server"`
	Gate      *GateConfig      `json:"gate,omitempty"`
	Satellite *SatelliteConfig `json:"satellite,omitempty"`
}

// ConfigValue is a resolved string that may have come from an env reference.
// This is only used during parsing, not in the final config
type ConfigValue struct {
	value   string
	fromEnv string
}

// ParseConfigValue parses a JSON value that could be a string or an
// {"$env": "NAME"} reference. An unset variable is an error.
func ParseConfigValue(raw json.RawMessage) (*ConfigValue, error) {
	v, err := parseConfigValue(raw)
	if err != nil {
		return nil, err
	}
	if v.fromEnv != "" && v.value == "" {
		return nil, fmt.Errorf("environment variable %s not set", v.fromEnv)
	}
	return v, nil
}

// ParseOptionalConfigValue is like ParseConfigValue but resolves an unset
// variable to "" so the caller can apply a default.
func ParseOptionalConfigValue(raw json.RawMessage) (*ConfigValue, error) {
	return parseConfigValue(raw)
}

func parseConfigValue(raw json.RawMessage) (*ConfigValue, error) {
	// Try plain string first
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return &ConfigValue{value: str}, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return nil, fmt.Errorf("unknown reference type in config value")
	}

	value := os.Getenv(envVar)
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return &ConfigValue{value: value, fromEnv: envVar}, nil
}

// String returns the resolved value
func (v *ConfigValue) String() string {
	return v.value
}

package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// UnmarshalJSON implements custom unmarshaling for ServerConfig
func (s *ServerConfig) UnmarshalJSON(data []byte) error {
	type rawServer struct {
		Addr      json.RawMessage `json:"addr"`
		BaseURL   json.RawMessage `json:"baseURL"`
		AssetsDir string          `json:"assetsDir,omitempty"`
		LogLevel  json.RawMessage `json:"logLevel,omitempty"`
		LogFormat string          `json:"logFormat,omitempty"`
	}

	var raw rawServer
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.AssetsDir = raw.AssetsDir
	s.LogFormat = raw.LogFormat

	if raw.Addr != nil {
		parsed, err := ParseConfigValue(raw.Addr)
		if err != nil {
			return fmt.Errorf("parsing addr: %w", err)
		}
		s.Addr = parsed.value
	}
	if s.Addr == "" {
		s.Addr = DefaultAddr
	}

	if raw.BaseURL != nil {
		parsed, err := ParseConfigValue(raw.BaseURL)
		if err != nil {
			return fmt.Errorf("parsing baseURL: %w", err)
		}
		s.BaseURL = strings.TrimSuffix(parsed.value, "/")
	}

	if raw.LogLevel != nil {
		parsed, err := ParseOptionalConfigValue(raw.LogLevel)
		if err != nil {
			return fmt.Errorf("parsing logLevel: %w", err)
		}
		s.LogLevel = parsed.value
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for GateConfig
func (g *GateConfig) UnmarshalJSON(data []byte) error {
	type rawGate struct {
		Path           string          `json:"path"`
		AllowedOrigins json.RawMessage `json:"allowedOrigins"`
		SessionSecret  json.RawMessage `json:"sessionSecret"`
		SessionTTL     string          `json:"sessionTtl"`
		PollInterval   string          `json:"pollInterval"`
	}

	var raw rawGate
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	g.Path = raw.Path
	if g.Path == "" {
		g.Path = DefaultGatePath
	}

	origins, err := parseOriginList(raw.AllowedOrigins)
	if err != nil {
		return fmt.Errorf("parsing allowedOrigins: %w", err)
	}
	if len(origins) == 0 {
		origins = append([]string(nil), DefaultAllowedOrigins...)
	}
	g.AllowedOrigins = origins

	if raw.SessionSecret != nil {
		parsed, err := ParseConfigValue(raw.SessionSecret)
		if err != nil {
			return fmt.Errorf("parsing sessionSecret: %w", err)
		}
		g.SessionSecret = Secret(parsed.value)
	}

	if g.SessionTTL, err = parseDuration(raw.SessionTTL, DefaultSessionTTL); err != nil {
		return fmt.Errorf("parsing sessionTtl: %w", err)
	}
	if g.PollInterval, err = parseDuration(raw.PollInterval, DefaultPollInterval); err != nil {
		return fmt.Errorf("parsing pollInterval: %w", err)
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for SatelliteConfig
func (s *SatelliteConfig) UnmarshalJSON(data []byte) error {
	type rawSatellite struct {
		GateURL      json.RawMessage `json:"gateURL"`
		ClientID     json.RawMessage `json:"clientID"`
		TokenURL     json.RawMessage `json:"tokenURL"`
		RevokeURL    json.RawMessage `json:"revokeURL,omitempty"`
		ProbeTimeout string          `json:"probeTimeout"`
	}

	var raw rawSatellite
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	fields := []struct {
		name string
		raw  json.RawMessage
		dst  *string
	}{
		{"gateURL", raw.GateURL, &s.GateURL},
		{"clientID", raw.ClientID, &s.ClientID},
		{"tokenURL", raw.TokenURL, &s.TokenURL},
		{"revokeURL", raw.RevokeURL, &s.RevokeURL},
	}
	for _, f := range fields {
		if f.raw == nil {
			continue
		}
		parsed, err := ParseConfigValue(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", f.name, err)
		}
		*f.dst = parsed.value
	}

	var err error
	if s.ProbeTimeout, err = parseDuration(raw.ProbeTimeout, DefaultProbeTimeout); err != nil {
		return fmt.Errorf("parsing probeTimeout: %w", err)
	}

	return nil
}

// parseOriginList accepts a comma-separated string, an env reference to one,
// or an array of either. An unset env reference yields an empty list.
func parseOriginList(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		items = []json.RawMessage{raw}
	}

	var origins []string
	for i, item := range items {
		parsed, err := ParseOptionalConfigValue(item)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		for _, part := range strings.Split(parsed.value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				origins = append(origins, part)
			}
		}
	}
	return origins, nil
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

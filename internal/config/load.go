package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dgellow/authbridge/internal/log"
	"github.com/dgellow/authbridge/internal/origin"
)

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates config bytes.
func Parse(data []byte) (Config, error) {
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, VersionPrefix) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if config.Server.Addr == "" {
		config.Server.Addr = DefaultAddr
	}

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	for _, w := range Warnings(&config) {
		log.LogWarnWithFields("config", w.Message, map[string]any{
			"path": w.Path,
		})
	}

	return config, nil
}

// validateRawConfig validates the config structure before environment resolution
func validateRawConfig(rawConfig map[string]any) error {
	if gate, ok := rawConfig["gate"].(map[string]any); ok {
		if value, exists := gate["sessionSecret"]; exists {
			if verr := validateEnvVarReference(value, "sessionSecret", "gate.sessionSecret"); verr != nil {
				return fmt.Errorf("%s: %s", verr.Path, verr.Message)
			}
		}
	}
	if satellite, ok := rawConfig["satellite"].(map[string]any); ok {
		if _, exists := satellite["clientSecret"]; exists {
			return fmt.Errorf("satellite.clientSecret must not be set: the satellite is a public client")
		}
	}
	return nil
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Server.BaseURL == "" {
		return fmt.Errorf("server.baseURL is required")
	}
	if _, err := origin.Parse(config.Server.BaseURL); err != nil {
		return fmt.Errorf("server.baseURL: %w", err)
	}
	if config.Server.LogFormat != "" && config.Server.LogFormat != "json" && config.Server.LogFormat != "text" {
		return fmt.Errorf("server.logFormat must be json or text, got %q", config.Server.LogFormat)
	}

	if config.Gate == nil && config.Satellite == nil {
		return fmt.Errorf("at least one of gate or satellite must be configured")
	}

	if gate := config.Gate; gate != nil {
		if err := validateGateConfig(gate); err != nil {
			return fmt.Errorf("gate config: %w", err)
		}
	}
	if satellite := config.Satellite; satellite != nil {
		if err := validateSatelliteConfig(satellite); err != nil {
			return fmt.Errorf("satellite config: %w", err)
		}
	}
	return nil
}

func validateGateConfig(gate *GateConfig) error {
	if len(gate.SessionSecret) < MinSessionSecretLen {
		return fmt.Errorf("sessionSecret must be at least %d characters (got %d). Generate with: openssl rand -base64 32", MinSessionSecretLen, len(gate.SessionSecret))
	}
	if _, err := gate.AllowList(); err != nil {
		return fmt.Errorf("allowedOrigins: %w", err)
	}
	if !strings.HasPrefix(gate.Path, "/") {
		return fmt.Errorf("path must start with '/'")
	}
	if gate.PollInterval <= 0 {
		return fmt.Errorf("pollInterval must be positive")
	}
	if gate.SessionTTL <= 0 {
		return fmt.Errorf("sessionTtl must be positive")
	}
	return nil
}

func validateSatelliteConfig(satellite *SatelliteConfig) error {
	if satellite.TokenURL == "" {
		return fmt.Errorf("tokenURL is required")
	}
	if satellite.ClientID == "" {
		return fmt.Errorf("clientID is required")
	}
	if satellite.ProbeTimeout < 0 {
		return fmt.Errorf("probeTimeout cannot be negative")
	}
	return nil
}

// Warnings reports problems in a resolved config that do not stop startup.
func Warnings(config *Config) []ValidationError {
	var warnings []ValidationError
	if satellite := config.Satellite; satellite != nil {
		if _, err := satellite.GateOrigin(); err != nil {
			warnings = append(warnings, ValidationError{
				Path:    "satellite.gateURL",
				Message: fmt.Sprintf("gateURL is not usable (%v) - the auth bridge will be disabled", err),
			})
		}
	}
	if gate := config.Gate; gate != nil && config.Satellite != nil {
		if allowed, err := gate.AllowList(); err == nil {
			if self, err := origin.Parse(config.Server.BaseURL); err == nil && !allowed.Contains(self) {
				warnings = append(warnings, ValidationError{
					Path:    "gate.allowedOrigins",
					Message: fmt.Sprintf("this server's own origin %s is not an allowed satellite", self),
				})
			}
		}
	}
	return warnings
}

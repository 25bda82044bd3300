package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/dgellow/authbridge/internal/origin"
)

// VersionPrefix is the config version this build understands.
const VersionPrefix = "v0.0.1"

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Check JSON syntax
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Message: fmt.Sprintf("invalid JSON: %v", err),
		})
		return result, nil
	}

	// Check for bash-style syntax
	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": \"%s\"", VersionPrefix)
	} else if !strings.HasPrefix(version, VersionPrefix) {
		result.addError("version", "unsupported version '%s' - use '%s' or '%s-<variant>'", version, VersionPrefix, VersionPrefix)
	}

	validateServerStructure(rawConfig, result)

	gate, hasGate := rawConfig["gate"].(map[string]any)
	satellite, hasSatellite := rawConfig["satellite"].(map[string]any)
	if !hasGate && !hasSatellite {
		result.addError("", "at least one of gate or satellite must be configured")
	}
	if hasGate {
		validateGateStructure(gate, result)
	}
	if hasSatellite {
		validateSatelliteStructure(satellite, result)
	}

	return result, nil
}

// validateServerStructure checks the server configuration structure
func validateServerStructure(rawConfig map[string]any, result *ValidationResult) {
	server, ok := rawConfig["server"].(map[string]any)
	if !ok {
		result.addError("server", "server field is required and must be an object")
		return
	}

	if _, ok := server["baseURL"]; !ok {
		result.addError("server.baseURL", "baseURL is required. Example: \"https://auth.example.com\"")
	} else if s, ok := server["baseURL"].(string); ok {
		if _, err := origin.Parse(s); err != nil {
			result.addError("server.baseURL", "baseURL must be an absolute http(s) URL: %v", err)
		}
	}
	if _, ok := server["addr"]; !ok {
		result.addWarning("server.addr", "addr is not set, defaulting to %q", DefaultAddr)
	}
	if format, ok := server["logFormat"].(string); ok && format != "json" && format != "text" {
		result.addError("server.logFormat", "unknown logFormat '%s' - use 'json' or 'text'", format)
	}
}

// validateGateStructure checks the origin role configuration
func validateGateStructure(gate map[string]any, result *ValidationResult) {
	secret, ok := gate["sessionSecret"]
	if !ok {
		result.addError("gate.sessionSecret", "sessionSecret is required. Hint: Must be at least %d bytes, generate with: openssl rand -base64 32", MinSessionSecretLen)
	} else if verr := validateEnvVarReference(secret, "sessionSecret", "gate.sessionSecret"); verr != nil {
		result.Errors = append(result.Errors, *verr)
	}

	switch v := gate["allowedOrigins"].(type) {
	case nil:
		result.addWarning("gate.allowedOrigins", "allowedOrigins is not set, defaulting to %s", strings.Join(DefaultAllowedOrigins, ","))
	case string:
		validateOriginEntries(strings.Split(v, ","), "gate.allowedOrigins", result)
	case []any:
		for i, item := range v {
			if s, ok := item.(string); ok {
				validateOriginEntries(strings.Split(s, ","), fmt.Sprintf("gate.allowedOrigins[%d]", i), result)
			} else if m, ok := item.(map[string]any); !ok || m["$env"] == nil {
				result.addError(fmt.Sprintf("gate.allowedOrigins[%d]", i), "origin must be a string or {\"$env\": \"VAR\"}")
			}
		}
	case map[string]any:
		if _, ok := v["$env"]; !ok {
			result.addError("gate.allowedOrigins", "allowedOrigins must be a string, a list, or {\"$env\": \"VAR\"}")
		}
	default:
		result.addError("gate.allowedOrigins", "allowedOrigins must be a string, a list, or {\"$env\": \"VAR\"}, not %T", v)
	}

	if p, ok := gate["path"].(string); ok && !strings.HasPrefix(p, "/") {
		result.addError("gate.path", "path must start with '/'")
	}
	validateDurationField(gate, "pollInterval", "gate", result)
	validateDurationField(gate, "sessionTtl", "gate", result)
}

// validateSatelliteStructure checks the satellite role configuration
func validateSatelliteStructure(satellite map[string]any, result *ValidationResult) {
	// The bridge disables itself on an unusable gate URL, so the page still
	// works without cross-origin sign-in.
	switch v := satellite["gateURL"].(type) {
	case nil:
		result.addWarning("satellite.gateURL", "gateURL is not set - the auth bridge will be disabled")
	case string:
		if _, err := origin.Parse(v); err != nil {
			result.addWarning("satellite.gateURL", "gateURL %q is not an absolute http(s) URL (%v) - the auth bridge will be disabled", v, err)
		}
	}

	for _, field := range []string{"tokenURL", "clientID"} {
		if _, ok := satellite[field]; !ok {
			result.addError("satellite."+field, "%s is required to redeem relayed refresh tokens", field)
		}
	}
	for _, field := range []string{"tokenURL", "revokeURL"} {
		if s, ok := satellite[field].(string); ok {
			if u, err := url.Parse(s); err != nil || !u.IsAbs() {
				result.addError("satellite."+field, "%s must be an absolute URL", field)
			}
		}
	}
	if _, ok := satellite["clientSecret"]; ok {
		result.addError("satellite.clientSecret", "clientSecret must not be set - satellite settings are rendered into the page, so it must be a public client")
	}
	validateDurationField(satellite, "probeTimeout", "satellite", result)
}

func validateOriginEntries(entries []string, path string, result *ValidationResult) {
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" || strings.Contains(entry, "$") {
			continue
		}
		if _, err := origin.ParseAllowListEntries([]string{entry}); err != nil {
			result.addError(path, "invalid origin %q: %v", entry, err)
		}
	}
}

func validateDurationField(m map[string]any, field, parent string, result *ValidationResult) {
	raw, ok := m[field]
	if !ok {
		return
	}
	s, ok := raw.(string)
	if !ok {
		result.addError(parent+"."+field, "%s must be a duration string like \"2s\"", field)
		return
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		result.addError(parent+"."+field, "invalid duration %q: %v", s, err)
		return
	}
	if d <= 0 {
		result.addError(parent+"."+field, "%s must be positive", field)
	}
}

func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		// Check if it looks like a bash-style env var
		bashStyleRegex := regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			varName := matches[1]
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion and ensures security", v, varName),
			}
		}
		// Plain string value
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This prevents secrets from being stored in config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format", fieldName),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	bashStyleRegex := regexp.MustCompile(`\$\{?[A-Z_][A-Z0-9_]*\}?`)

	switch v := value.(type) {
	case string:
		if matches := bashStyleRegex.FindAllString(v, -1); len(matches) > 0 {
			for _, match := range matches {
				varName := strings.Trim(match, "${}")
				result.Warnings = append(result.Warnings, ValidationError{
					Path:    path,
					Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion in scripts/CI and ensures unambiguous parsing", match, varName),
				})
			}
		}
	case map[string]any:
		// Skip if this is already an env ref
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}

		for key, val := range v {
			newPath := path
			if newPath == "" {
				newPath = key
			} else {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			newPath := fmt.Sprintf("%s[%d]", path, i)
			checkBashStyleSyntax(item, newPath, result)
		}
	}
}

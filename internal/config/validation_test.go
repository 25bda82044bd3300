package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name          string
		config        string
		wantErrors    []string
		wantWarnings  []string
		wantErrCount  int
		wantWarnCount int
	}{
		{
			name: "valid_gate_config",
			config: `{
				"version": "v0.0.1",
				"server": {"baseURL": "https://origin.example", "addr": ":3000"},
				"gate": {
					"allowedOrigins": "https://a.example,http://localhost:3015",
					"sessionSecret": {"$env": "SESSION_SECRET"},
					"pollInterval": "2s"
				}
			}`,
			wantErrCount:  0,
			wantWarnCount: 0,
		},
		{
			name: "valid_satellite_config",
			config: `{
				"version": "v0.0.1",
				"server": {"baseURL": "https://satellite.example", "addr": ":3015"},
				"satellite": {
					"gateURL": {"$env": "ORIGIN_AUTH_GATE_URL"},
					"clientID": "satellite-web",
					"tokenURL": "https://auth.example/oauth/token"
				}
			}`,
			wantErrCount:  0,
			wantWarnCount: 0,
		},
		{
			name: "missing_version",
			config: `{
				"server": {"baseURL": "https://origin.example", "addr": ":3000"},
				"gate": {"sessionSecret": {"$env": "SESSION_SECRET"}, "allowedOrigins": "https://a.example"}
			}`,
			wantErrors:    []string{"version field is required"},
			wantErrCount:  1,
			wantWarnCount: 0,
		},
		{
			name: "no_role",
			config: `{
				"version": "v0.0.1",
				"server": {"baseURL": "https://origin.example", "addr": ":3000"}
			}`,
			wantErrors:    []string{"at least one of gate or satellite must be configured"},
			wantErrCount:  1,
			wantWarnCount: 0,
		},
		{
			name: "plain_text_secret",
			config: `{
				"version": "v0.0.1",
				"server": {"baseURL": "https://origin.example", "addr": ":3000"},
				"gate": {"sessionSecret": "hunter2", "allowedOrigins": "https://a.example"}
			}`,
			wantErrors:    []string{"sessionSecret must use environment variable reference"},
			wantErrCount:  1,
			wantWarnCount: 0,
		},
		{
			name: "bash_style_secret",
			config: `{
				"version": "v0.0.1",
				"server": {"baseURL": "https://origin.example", "addr": ":3000"},
				"gate": {"sessionSecret": "${SESSION_SECRET}", "allowedOrigins": "https://a.example"}
			}`,
			wantErrors:    []string{"found bash-style syntax '${SESSION_SECRET}'"},
			wantWarnings:  []string{"found bash-style syntax '${SESSION_SECRET}'"},
			wantErrCount:  1,
			wantWarnCount: 1,
		},
		{
			name: "default_origins_and_addr",
			config: `{
				"version": "v0.0.1",
				"server": {"baseURL": "https://origin.example"},
				"gate": {"sessionSecret": {"$env": "SESSION_SECRET"}}
			}`,
			wantWarnings:  []string{"allowedOrigins is not set", "addr is not set"},
			wantErrCount:  0,
			wantWarnCount: 2,
		},
		{
			name: "invalid_origin_entries",
			config: `{
				"version": "v0.0.1",
				"server": {"baseURL": "https://origin.example", "addr": ":3000"},
				"gate": {
					"sessionSecret": {"$env": "SESSION_SECRET"},
					"allowedOrigins": ["https://a.example/app", "ftp://b.example", 42]
				}
			}`,
			wantErrors:    []string{"invalid origin \"https://a.example/app\"", "invalid origin \"ftp://b.example\"", "origin must be a string"},
			wantErrCount:  3,
			wantWarnCount: 0,
		},
		{
			name: "bad_gate_url_is_warning",
			config: `{
				"version": "v0.0.1",
				"server": {"baseURL": "https://satellite.example", "addr": ":3015"},
				"satellite": {
					"gateURL": "/auth-gate",
					"clientID": "satellite-web",
					"tokenURL": "https://auth.example/oauth/token"
				}
			}`,
			wantWarnings:  []string{"the auth bridge will be disabled"},
			wantErrCount:  0,
			wantWarnCount: 1,
		},
		{
			name: "satellite_missing_fields",
			config: `{
				"version": "v0.0.1",
				"server": {"baseURL": "https://satellite.example", "addr": ":3015"},
				"satellite": {"gateURL": "https://origin.example/auth-gate", "revokeURL": "revoke"}
			}`,
			wantErrors:    []string{"tokenURL is required", "clientID is required", "revokeURL must be an absolute URL"},
			wantErrCount:  3,
			wantWarnCount: 0,
		},
		{
			name: "bad_durations",
			config: `{
				"version": "v0.0.1",
				"server": {"baseURL": "https://origin.example", "addr": ":3000"},
				"gate": {
					"sessionSecret": {"$env": "SESSION_SECRET"},
					"allowedOrigins": "https://a.example",
					"pollInterval": "fast",
					"sessionTtl": "-1h"
				}
			}`,
			wantErrors:    []string{"invalid duration \"fast\"", "sessionTtl must be positive"},
			wantErrCount:  2,
			wantWarnCount: 0,
		},
		{
			name: "bad_base_url",
			config: `{
				"version": "v0.0.1",
				"server": {"baseURL": "origin.example", "addr": ":3000"},
				"gate": {"sessionSecret": {"$env": "SESSION_SECRET"}, "allowedOrigins": "https://a.example"}
			}`,
			wantErrors:    []string{"baseURL must be an absolute http(s) URL"},
			wantErrCount:  1,
			wantWarnCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.json")
			err := os.WriteFile(configPath, []byte(tt.config), 0644)
			require.NoError(t, err)

			result, err := ValidateFile(configPath)
			assert.NoError(t, err)
			assert.NotNil(t, result)

			assert.Equal(t, tt.wantErrCount, len(result.Errors),
				"expected %d errors but got %d: %v", tt.wantErrCount, len(result.Errors), result.Errors)
			assert.Equal(t, tt.wantWarnCount, len(result.Warnings),
				"expected %d warnings but got %d: %v", tt.wantWarnCount, len(result.Warnings), result.Warnings)
			assert.Equal(t, tt.wantErrCount == 0, result.IsValid())

			for _, wantErr := range tt.wantErrors {
				assert.True(t, containsMessage(result.Errors, wantErr),
					"expected error '%s' not found in %v", wantErr, result.Errors)
			}
			for _, wantWarn := range tt.wantWarnings {
				assert.True(t, containsMessage(result.Warnings, wantWarn),
					"expected warning '%s' not found in %v", wantWarn, result.Warnings)
			}
		})
	}
}

func TestValidateFile_InvalidJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"version": `), 0644))

	result, err := ValidateFile(configPath)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "invalid JSON")
}

func TestValidateFile_MissingFile(t *testing.T) {
	_, err := ValidateFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func containsMessage(issues []ValidationError, substr string) bool {
	for _, issue := range issues {
		if strings.Contains(issue.Message, substr) {
			return true
		}
	}
	return false
}

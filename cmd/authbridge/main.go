package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dgellow/authbridge/internal"
	"github.com/dgellow/authbridge/internal/config"
	"github.com/dgellow/authbridge/internal/log"
	"github.com/spf13/cobra"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": config.VersionPrefix,
		"server": map[string]any{
			"addr":      ":3000",
			"baseURL":   "https://origin.yourcompany.com",
			"assetsDir": "./web",
			"logFormat": "json",
		},
		"gate": map[string]any{
			"allowedOrigins": map[string]string{"$env": "SATELLITE_ORIGINS"},
			"sessionSecret":  map[string]string{"$env": "SESSION_SECRET"},
			"sessionTtl":     "720h",
			"pollInterval":   "2s",
		},
		"satellite": map[string]any{
			"gateURL":   map[string]string{"$env": "ORIGIN_AUTH_GATE_URL"},
			"clientID":  "satellite-web",
			"tokenURL":  "https://auth.yourcompany.com/oauth/token",
			"revokeURL": "https://auth.yourcompany.com/oauth/revoke",
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(out io.Writer, path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Fprintf(out, "Validating: %s\n", path)

	printIssues := func(title string, issues []config.ValidationError) {
		if len(issues) == 0 {
			return
		}
		fmt.Fprintf(out, "\n%s (%d):\n", title, len(issues))
		for _, issue := range issues {
			if issue.Path != "" {
				fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
			} else {
				fmt.Fprintf(out, "  - %s\n", issue.Message)
			}
		}
	}
	printIssues("Errors", result.Errors)
	printIssues("Warnings", result.Warnings)

	fmt.Fprintln(out)
	switch {
	case len(result.Errors) == 0 && len(result.Warnings) == 0:
		fmt.Fprintln(out, "Result: PASS")
	case len(result.Errors) == 0:
		fmt.Fprintln(out, "Result: PASS (warnings present)")
	default:
		fmt.Fprintln(out, "Result: FAIL")
	}

	if len(result.Errors) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "authbridge",
		Short:         "Cross-origin auth bridge: origin gate and satellite server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gate and/or satellite server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := log.Configure(cfg.Server.LogLevel, cfg.Server.LogFormat); err != nil {
				return fmt.Errorf("failed to configure logging: %w", err)
			}

			log.LogInfoWithFields("main", "Starting authbridge", map[string]any{
				"version": BuildVersion,
				"config":  configPath,
			})

			app, err := internal.NewAuthBridge(cfg)
			if err != nil {
				return fmt.Errorf("failed to create auth bridge: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	_ = serveCmd.MarkFlagRequired("config")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file without resolving environment variables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cmd.OutOrStdout(), configPath)
		},
	}
	validateCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	_ = validateCmd.MarkFlagRequired("config")

	configInitCmd := &cobra.Command{
		Use:   "config-init <path>",
		Short: "Generate a default config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := generateDefaultConfig(args[0]); err != nil {
				return fmt.Errorf("failed to generate config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated default config at: %s\n", args[0])
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), BuildVersion)
		},
	}

	root.AddCommand(serveCmd, validateCmd, configInitCmd, versionCmd)
	return root
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.LogError("%v", err)
		os.Exit(1)
	}
}

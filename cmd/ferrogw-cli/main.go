// Package main provides the ferrogw-cli command-line tool for managing the FerroGateway.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	aigateway "github.com/ferro-labs/ai-gateway"
	"github.com/ferro-labs/ai-gateway/internal/version"
	"github.com/ferro-labs/ai-gateway/plugin"
	"github.com/ferro-labs/ai-gateway/providers"
	"github.com/spf13/cobra"

	// Register built-in plugins so they appear in the plugin list.
	_ "github.com/ferro-labs/ai-gateway/internal/plugins/cache"
	_ "github.com/ferro-labs/ai-gateway/internal/plugins/logger"
	_ "github.com/ferro-labs/ai-gateway/internal/plugins/maxtoken"
	_ "github.com/ferro-labs/ai-gateway/internal/plugins/ratelimit"
	_ "github.com/ferro-labs/ai-gateway/internal/plugins/wordfilter"
)

func main() {
	root := &cobra.Command{
		Use:   "ferrogw-cli",
		Short: "FerroGateway command line tool",
	}
	root.AddCommand(
		newValidateCmd(),
		newPluginsCmd(),
		newVersionCmd(),
		newRouteCmd(),
	)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a gateway configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := aigateway.LoadConfig(args[0])
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := aigateway.ValidateConfig(*cfg); err != nil {
				return fmt.Errorf("validation error: %w", err)
			}

			fmt.Printf("✓ Config is valid\n")
			fmt.Printf("  Strategy:  %s\n", cfg.Strategy.Mode)
			fmt.Printf("  Targets:   %d\n", len(cfg.Targets))

			var targetNames []string
			for _, t := range cfg.Targets {
				targetNames = append(targetNames, t.VirtualKey)
			}
			fmt.Printf("  Providers: %s\n", strings.Join(targetNames, ", "))

			if len(cfg.Plugins) > 0 {
				var pluginNames []string
				for _, p := range cfg.Plugins {
					status := "disabled"
					if p.Enabled {
						status = "enabled"
					}
					pluginNames = append(pluginNames, fmt.Sprintf("%s (%s)", p.Name, status))
				}
				fmt.Printf("  Plugins:   %s\n", strings.Join(pluginNames, ", "))
			}
			return nil
		},
	}
}

func newPluginsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List all registered plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := plugin.RegisteredPlugins()
			if len(names) == 0 {
				fmt.Println("No plugins registered.")
				return nil
			}
			fmt.Println("Registered plugins:")
			for _, name := range names {
				factory, _ := plugin.GetFactory(name)
				p := factory()
				fmt.Printf("  %-20s type=%s\n", name, p.Type())
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("ferrogw-cli %s\n", version.String())
			return nil
		},
	}
}

// newRouteCmd builds a target tree from a config file, sends a JSON request
// body (from a file or stdin) through the full Target Resolver / Request
// Processor pipeline via aigateway.PortkeyEngine, and prints the resulting
// status and body — the CLI equivalent of a "dry run" through the routing
// engine with no HTTP server involved.
func newRouteCmd() *cobra.Command {
	var bodyPath, endpoint, method string

	cmd := &cobra.Command{
		Use:   "route <config-file>",
		Short: "Route a request body through a gateway config without starting a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := aigateway.LoadConfig(args[0])
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := aigateway.ValidateConfig(*cfg); err != nil {
				return fmt.Errorf("validation error: %w", err)
			}

			var raw []byte
			if bodyPath != "" && bodyPath != "-" {
				raw, err = os.ReadFile(bodyPath)
			} else {
				raw, err = io.ReadAll(os.Stdin)
			}
			if err != nil {
				return fmt.Errorf("reading request body: %w", err)
			}

			var body any
			if len(raw) > 0 {
				var decoded map[string]any
				if err := json.Unmarshal(raw, &decoded); err != nil {
					return fmt.Errorf("request body is not valid JSON: %w", err)
				}
				body = decoded
			}

			registry := autoRegisterProviders()
			if len(registry.List()) == 0 {
				return fmt.Errorf("no providers configured; set at least one provider API key (e.g. OPENAI_API_KEY) or OLLAMA_HOST")
			}

			engine := aigateway.NewPortkeyEngine(registry, nil, nil, nil, nil, cfg.Aliases)
			resp, err := engine.ExecuteTarget(context.Background(), cfg.Tree(), map[string]string{}, body, endpoint, method)
			if err != nil {
				return fmt.Errorf("routing request: %w", err)
			}

			fmt.Printf("status: %d\n", resp.Status)
			fmt.Println(string(resp.Body))
			return nil
		},
	}

	cmd.Flags().StringVar(&bodyPath, "body", "-", "path to a JSON request body file, or - for stdin")
	cmd.Flags().StringVar(&endpoint, "endpoint", "/chat/completions", "virtual endpoint path passed to the routing engine")
	cmd.Flags().StringVar(&method, "method", "POST", "HTTP method passed to the routing engine")
	return cmd
}

// autoRegisterProviders mirrors cmd/ferrogw's environment-variable-driven
// provider registration, so `route` can resolve the same virtual keys a
// running gateway would.
func autoRegisterProviders() *providers.Registry {
	registry := providers.NewRegistry()

	type providerEntry struct {
		envKey string
		name   string
		create func(key, baseURL string) (providers.Provider, error)
	}
	autoProviders := []providerEntry{
		{"OPENAI_API_KEY", "openai", func(k, b string) (providers.Provider, error) { return providers.NewOpenAI(k, b) }},
		{"ANTHROPIC_API_KEY", "anthropic", func(k, b string) (providers.Provider, error) { return providers.NewAnthropic(k, b) }},
		{"GROQ_API_KEY", "groq", func(k, b string) (providers.Provider, error) { return providers.NewGroq(k, b) }},
		{"TOGETHER_API_KEY", "together", func(k, b string) (providers.Provider, error) { return providers.NewTogether(k, b) }},
		{"GEMINI_API_KEY", "gemini", func(k, b string) (providers.Provider, error) { return providers.NewGemini(k, b) }},
		{"MISTRAL_API_KEY", "mistral", func(k, b string) (providers.Provider, error) { return providers.NewMistral(k, b) }},
		{"COHERE_API_KEY", "cohere", func(k, b string) (providers.Provider, error) { return providers.NewCohere(k, b) }},
		{"DEEPSEEK_API_KEY", "deepseek", func(k, b string) (providers.Provider, error) { return providers.NewDeepSeek(k, b) }},
	}
	for _, pe := range autoProviders {
		if key := os.Getenv(pe.envKey); key != "" {
			if p, err := pe.create(key, ""); err == nil {
				registry.Register(p)
			}
		}
	}

	if ollamaURL := os.Getenv("OLLAMA_HOST"); ollamaURL != "" {
		var models []string
		if m := os.Getenv("OLLAMA_MODELS"); m != "" {
			models = strings.Split(m, ",")
		}
		if p, err := providers.NewOllama(ollamaURL, models); err == nil {
			registry.Register(p)
		}
	}

	return registry
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/railguard/pkg/cli"
	"mercator-hq/railguard/pkg/config"
	"mercator-hq/railguard/pkg/rails"
	"mercator-hq/railguard/pkg/secrets"
	"mercator-hq/railguard/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile      string
	verbose      bool
	outputFormat string
	secretsDir   string
)

// hostedKeySecret is the secret holding the hosted API key. It is read from
// OPENAI_API_KEY, or from a file of that name under --secrets-dir.
const hostedKeySecret = "openai-api-key"

// Local NIM endpoint used by --nim.
const (
	nimModelName = "meta/llama-3.1-8b-instruct"
	nimBaseURL   = "http://localhost:8000/v1"
)

// nimFlags are shared by the commands that talk to a model.
var nimFlags struct {
	enabled bool
	url     string
}

var rootCmd = &cobra.Command{
	Use:   "railguard",
	Short: "Railguard - guarded LLM conversations",
	Long: `Railguard runs every conversation turn through an ordered pipeline of
policy stages before and after the model answers:
  - Input sanitizing and jailbreak detection
  - Topical restriction to allowed subjects
  - Fact verification against a knowledge base
  - Local actions the model can call for live data

Pipelines are described by rail bundles: a directory holding railguard.yaml
and any knowledge files it references.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "bundle file or directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text, json")
	rootCmd.PersistentFlags().StringVar(&secretsDir, "secrets-dir", os.Getenv("RAILGUARD_SECRETS_DIR"), "directory of mounted secret files")
	_ = rootCmd.RegisterFlagCompletionFunc("output", completeOutputFormat)
}

func addNIMFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&nimFlags.enabled, "nim", "n", false, "use a local NIM model endpoint instead of the bundle's model")
	cmd.Flags().StringVar(&nimFlags.url, "nim-url", nimBaseURL, "base URL of the NIM endpoint")
}

// bundlePath returns the --config value, or fallback when it is unset.
func bundlePath(fallback string) string {
	if cfgFile != "" {
		return cfgFile
	}
	return fallback
}

// loadOptions returns the options every command loads bundles with:
//   - ${secret:name} references in api_key are resolved
//   - a missing hosted key is filled from the openai-api-key secret
//   - with --nim, the NIM endpoint replaces the bundle's model
func loadOptions(ctx context.Context) ([]config.Option, error) {
	providers := []secrets.Provider{secrets.NewEnvProvider("")}
	if secretsDir != "" {
		fp, err := secrets.NewFileProvider(secretsDir)
		if err != nil {
			return nil, cli.NewCommandError("secrets", rails.NewError(rails.ErrConfigurationInvalid, "secrets.file", secretsDir, err))
		}
		providers = append(providers, fp)
	}
	manager := secrets.NewManager(providers, secrets.DefaultCacheTTL)

	if _, err := manager.GetSecret(ctx, hostedKeySecret); err != nil && !errors.Is(err, secrets.ErrNotFound) {
		return nil, cli.NewCommandError("secrets", rails.NewError(rails.ErrConfigurationInvalid, "secrets.get", hostedKeySecret, err))
	}

	// Both options consult the manager on every load so reloads see
	// rotated secret files once the cache entry expires.
	opts := []config.Option{
		config.WithSecretResolver(func(s string) (string, error) {
			return manager.ResolveReferences(ctx, s)
		}),
		func(b *config.Bundle) {
			if key, err := manager.GetSecret(ctx, hostedKeySecret); err == nil {
				config.WithAPIKey(key)(b)
			}
		},
	}
	if nimFlags.enabled {
		opts = append(opts, config.WithMainModel(config.ModelConfig{
			Type:   "main",
			Engine: "nim",
			Model:  nimModelName,
			Parameters: config.ModelParameters{
				BaseURL: nimFlags.url,
			},
		}))
	}
	return opts, nil
}

// announceEndpoint tells the user which endpoint a command talks to, and
// warns when the hosted API has no key.
func announceEndpoint(w io.Writer) {
	if nimFlags.enabled {
		fmt.Fprintln(w, "Using local NIM model endpoint")
		return
	}
	fmt.Fprintln(w, "Using OpenAI model endpoint")
	if os.Getenv("OPENAI_API_KEY") == "" && os.Getenv("RAILGUARD_MODEL_API_KEY") == "" && secretsDir == "" {
		fmt.Fprintln(w, "Warning: OPENAI_API_KEY environment variable is not set.")
		fmt.Fprintln(w, "Set it in your environment, mount it under --secrets-dir, or pass --nim to use a local model.")
	}
}

// newLogger builds a logger from the bundle's logging settings. Interactive
// commands pass quiet so only warnings reach the terminal; --verbose always
// logs at debug.
func newLogger(b *config.Bundle, w io.Writer, quiet bool) (*slog.Logger, error) {
	cfg := b.Telemetry.Logging
	switch {
	case verbose:
		cfg.Level = "debug"
	case quiet:
		cfg.Level = "warn"
	}
	logger, err := logging.FromConfig(cfg, w)
	if err != nil {
		return nil, cli.NewCommandError("logging", err)
	}
	return logger, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

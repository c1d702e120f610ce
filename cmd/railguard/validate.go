package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mercator-hq/railguard/pkg/cli"
	"mercator-hq/railguard/pkg/config"
	"mercator-hq/railguard/pkg/engine"
	"mercator-hq/railguard/pkg/telemetry/logging"
)

// placeholderAPIKey stands in for the hosted credential under
// --skip-credentials. It is never sent anywhere.
const placeholderAPIKey = "railguard-validate"

var validateFlags struct {
	skipCredentials bool
}

// bundleReport is the validation result for one bundle.
type bundleReport struct {
	Path             string   `json:"path"`
	Name             string   `json:"name,omitempty"`
	Valid            bool     `json:"valid"`
	Error            string   `json:"error,omitempty"`
	Endpoint         string   `json:"endpoint,omitempty"`
	Input            []string `json:"input,omitempty"`
	Output           []string `json:"output,omitempty"`
	Actions          int      `json:"actions"`
	KnowledgeEntries int      `json:"knowledge_entries"`
}

var validateCmd = &cobra.Command{
	Use:   "validate [bundle...]",
	Short: "Validate rail bundles",
	Long: `Load and build each bundle without calling a model.

Validation covers the YAML itself, stage names and parameters, jailbreak
patterns, the knowledge base, action names and schema overrides, and the
model endpoint. All problems in a bundle are reported together.

Without arguments the --config bundle, or the current directory, is checked.

Examples:
  railguard validate configs/topical
  railguard validate configs/* --skip-credentials
  railguard validate configs/* -o json`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	addNIMFlags(validateCmd)
	validateCmd.Flags().BoolVar(&validateFlags.skipCredentials, "skip-credentials", false, "accept hosted models without an API key")
}

func runValidate(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	paths := args
	if len(paths) == 0 {
		paths = []string{bundlePath(".")}
	}

	ctx := commandContext(cmd)
	opts, err := loadOptions(ctx)
	if err != nil {
		return err
	}
	if validateFlags.skipCredentials {
		opts = append(opts, config.WithAPIKey(placeholderAPIKey))
	}

	reports := make([]bundleReport, 0, len(paths))
	var firstErr error
	invalid := 0
	for _, path := range paths {
		report, err := validateBundle(ctx, path, opts)
		reports = append(reports, report)
		if err != nil {
			invalid++
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		if err := cli.NewFormatter(format).FormatTo(out, reports); err != nil {
			return err
		}
	} else {
		printReports(out, reports)
	}

	if firstErr != nil {
		return cli.NewCommandError("validate", fmt.Errorf("%d of %d bundles invalid: %w", invalid, len(paths), firstErr))
	}
	return nil
}

func validateBundle(ctx context.Context, path string, opts []config.Option) (bundleReport, error) {
	report := bundleReport{Path: path}

	b, err := config.Load(path, opts...)
	if err != nil {
		report.Error = err.Error()
		return report, err
	}
	report.Name = b.Name
	report.Input = b.Rails.Input
	report.Output = b.Rails.Output

	snap, err := engine.Build(ctx, b, engine.WithLogger(logging.Discard()))
	if err != nil {
		report.Error = err.Error()
		return report, err
	}
	defer snap.Gateway.Close()

	report.Valid = true
	report.Endpoint = snap.Gateway.Endpoint().String()
	report.Actions = snap.Registry.Len()
	report.KnowledgeEntries = snap.Store.Len()
	return report, nil
}

func printReports(w io.Writer, reports []bundleReport) {
	for _, r := range reports {
		if !r.Valid {
			fmt.Fprintf(w, "✗ %s\n  %s\n", r.Path, r.Error)
			continue
		}
		fmt.Fprintf(w, "✓ %s (%s)\n", r.Path, r.Name)
		fmt.Fprintf(w, "  endpoint:  %s\n", r.Endpoint)
		fmt.Fprintf(w, "  input:     %v\n", r.Input)
		fmt.Fprintf(w, "  output:    %v\n", r.Output)
		fmt.Fprintf(w, "  actions:   %d\n", r.Actions)
		fmt.Fprintf(w, "  knowledge: %d entries\n", r.KnowledgeEntries)
	}
}

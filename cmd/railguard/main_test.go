package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
)

// executeCommand runs the root command with args and returns what it wrote
// to stdout and stderr. Flag variables are reset first because cobra keeps
// them between executions.
func executeCommand(t *testing.T, stdin io.Reader, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("RAILGUARD_MODEL_API_KEY", "")

	t.Setenv("RAILGUARD_SECRETS_DIR", "")

	cfgFile, verbose, outputFormat, secretsDir = "", false, "text", ""
	nimFlags.enabled, nimFlags.url = false, nimBaseURL
	demoFlags.configsDir, demoFlags.concurrency, demoFlags.progress = "../../configs", 3, false
	validateFlags.skipCredentials = false

	if stdin == nil {
		stdin = strings.NewReader("")
	}
	var stdout, stderr bytes.Buffer
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

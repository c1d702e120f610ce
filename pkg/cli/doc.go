/*
Package cli provides helpers shared by the railguard command.

Output Formatting:

Commands print exchanges either as a short transcript or as JSON:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, exchanges); err != nil {
		return err
	}

Progress Reporting:

The demo command sends its prompts concurrently and reports completion
with a progress reporter that is safe to share between goroutines:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(int64(len(prompts)))
	// in each worker
	progress.Increment()
	progress.Finish()

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, cancel := cli.SetupSignalHandler(context.Background())
	defer cancel()

Exit Codes:

ExitCode maps errors to process exit codes: 2 for invalid bundles, 3 for
unreachable model endpoints, and 1 for anything else.
*/
package cli

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"mercator-hq/railguard/pkg/cli"
	"mercator-hq/railguard/pkg/config"
	"mercator-hq/railguard/pkg/engine"
	"mercator-hq/railguard/pkg/reload"
	"mercator-hq/railguard/pkg/server"
	"mercator-hq/railguard/pkg/telemetry/metrics"
)

var serveFlags struct {
	listenAddress string
	watch         bool
	schedule      string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a bundle over HTTP",
	Long: `Start the HTTP server for a bundle.

Routes:
  POST /v1/generate   run one guarded request
  GET  /healthz       liveness
  GET  /readyz        readiness (probes the model endpoint)
  GET  /metrics       Prometheus metrics

With --watch the bundle is rebuilt when its files change, and with
--schedule on a cron schedule. A bundle that fails to load or build is
logged and the previous one stays in effect.

Examples:
  # Serve the bundle in the current directory
  railguard serve

  # Serve a bundle with hot reload
  railguard serve --config configs/fact_checking --watch

  # Refresh the knowledge base every 15 minutes
  railguard serve --config configs/fact_checking --schedule "*/15 * * * *"

  # Validate config without starting the server
  railguard serve --dry-run`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	addNIMFlags(serveCmd)
	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().BoolVar(&serveFlags.watch, "watch", false, "reload the bundle when its files change")
	serveCmd.Flags().StringVar(&serveFlags.schedule, "schedule", "", "cron schedule for periodic reloads")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "load and build the bundle, then exit")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := cli.SetupSignalHandler(commandContext(cmd))
	defer cancel()

	path := bundlePath(".")
	opts, err := loadOptions(ctx)
	if err != nil {
		return err
	}
	b, err := config.Load(path, opts...)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}

	if serveFlags.listenAddress != "" {
		b.Server.ListenAddress = serveFlags.listenAddress
	}
	if cmd.Flags().Changed("watch") {
		b.Reload.Watch = serveFlags.watch
	}
	if serveFlags.schedule != "" {
		b.Reload.Schedule = serveFlags.schedule
	}

	logger, err := newLogger(b, cmd.ErrOrStderr(), false)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	collector := metrics.NewCollector(b.Telemetry.Metrics, nil)
	eng, err := engine.New(ctx, b, engine.WithLogger(logger), engine.WithMetrics(collector))
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	defer eng.Close()

	if serveFlags.dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Bundle %q valid\n", b.Name)
		return nil
	}

	srv := server.NewServer(b.Server, eng,
		server.WithLogger(logger),
		server.WithMetrics(collector, b.Telemetry.Metrics.Path),
	)
	reloader := reload.NewReloader(path, eng, logger, collector, opts...)

	g := pool.New().WithContext(ctx).WithCancelOnError()
	g.Go(func(ctx context.Context) error {
		return reloader.Run(ctx, b.Reload)
	})
	g.Go(func(ctx context.Context) error {
		return srv.Start(ctx)
	})

	if err := g.Wait(); err != nil {
		return cli.NewCommandError("serve", err)
	}
	return nil
}

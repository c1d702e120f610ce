package reload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/conc/pool"

	"mercator-hq/railguard/pkg/config"
	"mercator-hq/railguard/pkg/telemetry/metrics"
)

// Target accepts a freshly loaded bundle. *engine.Engine implements it.
type Target interface {
	Reload(ctx context.Context, b *config.Bundle) error
}

// Reloader loads the bundle at a path and hands it to a target.
type Reloader struct {
	path    string
	target  Target
	opts    []config.Option
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewReloader creates a reloader. opts are applied on every load, so
// command-line overrides survive reloads.
func NewReloader(path string, target Target, logger *slog.Logger, collector *metrics.Collector, opts ...config.Option) *Reloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{
		path:    path,
		target:  target,
		opts:    opts,
		logger:  logger,
		metrics: collector,
	}
}

// Reload loads and applies the bundle once. A bundle that fails to load
// or build leaves the target unchanged.
func (r *Reloader) Reload(ctx context.Context) error {
	b, err := config.Load(r.path, r.opts...)
	if err != nil {
		r.metrics.RecordReload("error")
		return fmt.Errorf("reload %s: %w", r.path, err)
	}
	return r.target.Reload(ctx, b)
}

// Run starts the watcher and scheduler that settings enables, and blocks
// until ctx is cancelled. It returns immediately when neither is enabled.
func (r *Reloader) Run(ctx context.Context, settings config.ReloadConfig) error {
	if !settings.Watch && settings.Schedule == "" {
		return nil
	}

	path, err := config.ResolvePath(r.path)
	if err != nil {
		return err
	}

	g := pool.New().WithContext(ctx).WithCancelOnError()

	if settings.Watch {
		w, err := NewWatcher(WatcherConfig{Path: path, Debounce: settings.Debounce}, r.logger)
		if err != nil {
			return err
		}
		g.Go(func(ctx context.Context) error {
			defer w.Stop()
			return w.Watch(ctx, r.Reload)
		})
	}

	if settings.Schedule != "" {
		s := NewScheduler(settings.Schedule, r.Reload, r.logger)
		g.Go(func(ctx context.Context) error {
			if err := s.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			s.Stop()
			return nil
		})
	}

	return g.Wait()
}

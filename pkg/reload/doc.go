// Package reload keeps a running engine in step with its bundle on disk.
//
// A Watcher follows the bundle directory with fsnotify and debounces bursts
// of writes; a Scheduler reloads on a cron expression for knowledge bases
// refreshed by external jobs. Both call a Reloader, which loads the bundle
// and hands it to a Target such as *engine.Engine. A bundle that fails to
// load, validate or build is logged and the running snapshot stays in
// effect.
//
//	r := reload.NewReloader("configs/fact_checking", eng, logger, collector)
//	go r.Run(ctx, bundle.Reload)
package reload

// Package watcher keeps repository indexes fresh while kdex watch runs.
// It subscribes to every repository root recursively with fsnotify,
// attributes events to repositories, coalesces bursts per (repository,
// path) over the configured debounce window, and hands each flushed
// window to the indexer as a path-scoped incremental run.
//
// Usage:
//
//	w, err := watcher.New(cfg, indexer)
//	if err != nil {
//	    return err
//	}
//	for _, repo := range repos {
//	    if err := w.Add(repo); err != nil {
//	        // WatcherLimitExceeded means partial coverage, not failure.
//	        warn(err)
//	    }
//	}
//	return w.Run(ctx) // blocks until ctx is cancelled
package watcher

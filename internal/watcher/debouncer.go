package watcher

import (
	"sort"
	"sync"
	"time"
)

// Debouncer coalesces filesystem changes per (repository, path) over a
// sliding window so an editor save burst becomes one indexing run.
//
// Within a window the latest kind wins, with one exception: a delete
// followed by a create is a replacement and collapses to modify. A
// create followed by a delete stays a delete, so a file that briefly
// existed is still removed from the index.
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[changeKey]Change
	timer   *time.Timer
	stopped bool

	// kick carries "a window closed" signals; capacity one because Take
	// drains everything pending regardless of how many windows elapsed.
	kick chan struct{}
}

type changeKey struct {
	repoID  int64
	relPath string
}

// NewDebouncer creates a debouncer flushing after window of quiet.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[changeKey]Change),
		kick:    make(chan struct{}, 1),
	}
}

// Add records a change, coalescing it with any pending change for the
// same (repository, path), and restarts the window.
func (d *Debouncer) Add(ch Change) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	k := changeKey{repoID: ch.Repo.ID, relPath: ch.RelPath}
	if prev, ok := d.pending[k]; ok {
		ch.Kind = mergeKinds(prev.Kind, ch.Kind)
	}
	d.pending[k] = ch

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.ready)
}

// mergeKinds applies the coalescing rules: delete then create is a
// replacement, everything else keeps the later kind.
func mergeKinds(old, next Kind) Kind {
	if old == KindDelete && next == KindCreate {
		return KindModify
	}
	return next
}

func (d *Debouncer) ready() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Ready signals that a window has closed and changes await Take.
func (d *Debouncer) Ready() <-chan struct{} {
	return d.kick
}

// Take removes and returns the pending change set, ordered by repository
// then path. Returns nil when nothing is pending.
func (d *Debouncer) Take() []Change {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return nil
	}
	changes := make([]Change, 0, len(d.pending))
	for _, ch := range d.pending {
		changes = append(changes, ch)
	}
	d.pending = make(map[changeKey]Change)

	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Repo.ID != changes[j].Repo.ID {
			return changes[i].Repo.ID < changes[j].Repo.ID
		}
		return changes[i].RelPath < changes[j].RelPath
	})
	return changes
}

// Stop halts scheduling and returns the in-flight window so the caller
// can process it before shutting down. Further Adds are ignored.
func (d *Debouncer) Stop() []Change {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	return d.Take()
}

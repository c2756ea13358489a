package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdex-dev/kdex/internal/store"
)

func change(repo *store.Repository, rel string, kind Kind) Change {
	return Change{Repo: repo, RelPath: rel, Kind: kind}
}

func waitReady(t *testing.T, d *Debouncer) {
	t.Helper()
	select {
	case <-d.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("debounce window never closed")
	}
}

func TestDebouncer_LatestKindWins(t *testing.T) {
	repo := &store.Repository{ID: 1, Name: "notes"}
	d := NewDebouncer(10 * time.Millisecond)

	d.Add(change(repo, "a.md", KindCreate))
	d.Add(change(repo, "a.md", KindModify))
	d.Add(change(repo, "a.md", KindDelete))

	waitReady(t, d)
	got := d.Take()
	require.Len(t, got, 1)
	assert.Equal(t, KindDelete, got[0].Kind)
	assert.Equal(t, "a.md", got[0].RelPath)
}

func TestDebouncer_DeleteThenCreateIsModify(t *testing.T) {
	repo := &store.Repository{ID: 1, Name: "notes"}
	d := NewDebouncer(10 * time.Millisecond)

	d.Add(change(repo, "a.md", KindDelete))
	d.Add(change(repo, "a.md", KindCreate))

	waitReady(t, d)
	got := d.Take()
	require.Len(t, got, 1)
	assert.Equal(t, KindModify, got[0].Kind)
}

func TestDebouncer_CreateThenDeleteStaysDelete(t *testing.T) {
	repo := &store.Repository{ID: 1, Name: "notes"}
	d := NewDebouncer(10 * time.Millisecond)

	// A short-lived file must still produce a deletion so any previously
	// indexed row under that path goes away.
	d.Add(change(repo, "tmp.md", KindCreate))
	d.Add(change(repo, "tmp.md", KindDelete))

	waitReady(t, d)
	got := d.Take()
	require.Len(t, got, 1)
	assert.Equal(t, KindDelete, got[0].Kind)
}

func TestDebouncer_KeysByRepoAndPath(t *testing.T) {
	alpha := &store.Repository{ID: 1, Name: "alpha"}
	beta := &store.Repository{ID: 2, Name: "beta"}
	d := NewDebouncer(10 * time.Millisecond)

	d.Add(change(alpha, "same.md", KindModify))
	d.Add(change(beta, "same.md", KindDelete))
	d.Add(change(alpha, "other.md", KindCreate))

	waitReady(t, d)
	got := d.Take()
	require.Len(t, got, 3)

	// Deterministic order: repository, then path.
	assert.Equal(t, "other.md", got[0].RelPath)
	assert.Equal(t, "same.md", got[1].RelPath)
	assert.Equal(t, int64(1), got[0].Repo.ID)
	assert.Equal(t, int64(2), got[2].Repo.ID)
	assert.Equal(t, KindDelete, got[2].Kind)
}

func TestDebouncer_SlidingWindow(t *testing.T) {
	repo := &store.Repository{ID: 1, Name: "notes"}
	d := NewDebouncer(50 * time.Millisecond)

	d.Add(change(repo, "a.md", KindModify))
	time.Sleep(20 * time.Millisecond)
	// Still inside the window: nothing flushed yet.
	select {
	case <-d.Ready():
		t.Fatal("window closed early")
	default:
	}
	d.Add(change(repo, "b.md", KindModify))

	waitReady(t, d)
	assert.Len(t, d.Take(), 2)
}

func TestDebouncer_StopReturnsInFlightWindow(t *testing.T) {
	repo := &store.Repository{ID: 1, Name: "notes"}
	d := NewDebouncer(time.Hour) // window would never close on its own

	d.Add(change(repo, "a.md", KindModify))
	d.Add(change(repo, "b.md", KindDelete))

	got := d.Stop()
	require.Len(t, got, 2)

	// Stopped debouncers ignore further changes.
	d.Add(change(repo, "c.md", KindCreate))
	assert.Nil(t, d.Take())
	assert.Nil(t, d.Stop())
}

func TestDebouncer_TakeEmpty(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	assert.Nil(t, d.Take())
}

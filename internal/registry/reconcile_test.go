package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/svcreg-labs/svcreg/internal/watcher"
)

var _ watcher.Reconciler = (*Store)(nil)

func TestFileChanged_IndexesNewFile(t *testing.T) {
	rec := &eventRecorder{}
	store, dir := newTestStore(t, Options{Publisher: rec})

	path := writeFile(t, dir, "late-4.json", defJSON(4, "late", "^l$", 1))
	store.FileChanged(path)

	if _, ok := store.FindByID(4); !ok {
		t.Fatal("changed file was not indexed")
	}
	if got := rec.byKind(EventLoaded); len(got) != 1 || got[0].ID != 4 {
		t.Errorf("expected one loaded event, got %v", got)
	}
}

func TestFileChanged_ParseFailureKeepsPreviousEntry(t *testing.T) {
	store, dir := newTestStore(t, Options{})
	path := writeFile(t, dir, "app-1.json", defJSON(1, "app", "^a$", 5))
	if _, err := store.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	// Simulate a truncated write landing on disk.
	if err := os.WriteFile(path, []byte(`{"id": 1, "name": "app", "serviceIdPat`), 0644); err != nil {
		t.Fatalf("truncating: %v", err)
	}
	store.FileChanged(path)

	def, ok := store.FindByID(1)
	if !ok {
		t.Fatal("a transient bad write must not evict a good definition")
	}
	if def.EvaluationOrder != 5 || def.ServiceIDPattern != "^a$" {
		t.Errorf("previous entry was altered: %+v", def)
	}
}

func TestFileChanged_NoOpEventSuppressed(t *testing.T) {
	rec := &eventRecorder{}
	store, dir := newTestStore(t, Options{Publisher: rec})
	path := writeFile(t, dir, "app-1.json", defJSON(1, "app", "^a$", 5))
	store.Load()
	before := len(rec.byKind(EventLoaded))

	// Same bytes, new event: the fingerprint check must discard it.
	store.FileChanged(path)

	if after := len(rec.byKind(EventLoaded)); after != before {
		t.Errorf("no-op change produced %d extra events", after-before)
	}
}

func TestFileChanged_UpdatesDefinition(t *testing.T) {
	store, dir := newTestStore(t, Options{})
	path := writeFile(t, dir, "app-1.json", defJSON(1, "app", `^https://a\..*`, 5))
	store.Load()

	writeFile(t, dir, "app-1.json", defJSON(1, "app", `^https://a\..*`, 1))
	store.FileChanged(path)

	def, ok := store.FindByID(1)
	if !ok || def.EvaluationOrder != 1 {
		t.Errorf("expected updated evaluation order 1, got %+v", def)
	}
}

func TestFileChanged_MissingFileBehavesAsRemoval(t *testing.T) {
	store, dir := newTestStore(t, Options{})
	path := writeFile(t, dir, "app-1.json", defJSON(1, "app", "^a$", 1))
	store.Load()

	os.Remove(path)
	store.FileChanged(path)

	if _, ok := store.FindByID(1); ok {
		t.Error("entry for a vanished file must be removed")
	}
}

func TestFileRemoved(t *testing.T) {
	rec := &eventRecorder{}
	store, dir := newTestStore(t, Options{Publisher: rec})
	path := writeFile(t, dir, "app-1.json", defJSON(1, "app", "^a$", 1))
	store.Load()

	store.FileRemoved(path)
	if _, ok := store.FindByID(1); ok {
		t.Error("entry must be removed")
	}
	if got := rec.byKind(EventDeleted); len(got) != 1 {
		t.Errorf("expected one deleted event, got %v", got)
	}

	// Unknown paths are silent.
	store.FileRemoved(filepath.Join(dir, "never-existed.json"))
	if got := rec.byKind(EventDeleted); len(got) != 1 {
		t.Errorf("unknown path must not publish, got %v", got)
	}
}

// End-to-end: an external edit through the real watcher converges the index
// after the debounce interval.
func TestWatcherConvergence(t *testing.T) {
	store, dir := newTestStore(t, Options{})
	path := writeFile(t, dir, "app-1.json", defJSON(1, "app", `^https://a\..*`, 5))
	if _, err := store.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	w := watcher.New(dir, store.Extensions(), 50*time.Millisecond, store, nil)
	if err := w.Start(); err != nil {
		t.Fatalf("starting watcher: %v", err)
	}
	defer w.Stop()

	// External edit: lower the evaluation order.
	if err := os.WriteFile(path, []byte(defJSON(1, "app", `^https://a\..*`, 1)), 0644); err != nil {
		t.Fatalf("editing file: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if def, ok := store.FindService("https://a.example.com"); ok && def.EvaluationOrder == 1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	def, _ := store.FindService("https://a.example.com")
	t.Fatalf("index did not converge after external edit, still %+v", def)
}

func TestWatcherConvergence_ExternalDelete(t *testing.T) {
	store, dir := newTestStore(t, Options{})
	path := writeFile(t, dir, "app-1.json", defJSON(1, "app", "^a$", 1))
	if _, err := store.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	w := watcher.New(dir, store.Extensions(), 50*time.Millisecond, store, nil)
	if err := w.Start(); err != nil {
		t.Fatalf("starting watcher: %v", err)
	}
	defer w.Stop()

	if err := os.Remove(path); err != nil {
		t.Fatalf("removing file: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := store.FindByID(1); !ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("index did not drop the definition after its file was deleted")
}

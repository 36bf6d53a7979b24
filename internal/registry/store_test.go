package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/svcreg-labs/svcreg/internal/naming"
	"github.com/svcreg-labs/svcreg/internal/service"
)

// eventRecorder collects published lifecycle events.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) byKind(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// replicationSpy records hook invocations and can be told to fail.
type replicationSpy struct {
	mu         sync.Mutex
	saves      []int64
	deletes    []int64
	reconciles int
	failSave   error
	failDelete error
}

func (s *replicationSpy) OnSave(def *service.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, def.ID)
	return s.failSave
}

func (s *replicationSpy) OnDelete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, id)
	return s.failDelete
}

func (s *replicationSpy) OnStartupReconcile(defs []*service.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconciles++
	return nil
}

func (s *replicationSpy) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func defJSON(id int64, name, pattern string, order int) string {
	return fmt.Sprintf(`{"id": %d, "name": %q, "serviceIdPattern": %q, "evaluationOrder": %d}`,
		id, name, pattern, order)
}

func timeout(t *testing.T) <-chan time.Time {
	t.Helper()
	return time.After(5 * time.Second)
}

func newTestStore(t *testing.T, opts Options) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := New(dir, opts)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	return store, dir
}

func TestLoad_PartialFailureTolerance(t *testing.T) {
	store, dir := newTestStore(t, Options{})
	writeFile(t, dir, "a-1.json", defJSON(1, "a", "^https://a", 1))
	writeFile(t, dir, "b-2.json", defJSON(2, "b", "^https://b", 2))
	writeFile(t, dir, "c-3.yaml", "id: 3\nname: c\nserviceIdPattern: \"^https://c\"\n")
	writeFile(t, dir, "broken.json", `{"id": 4, "name": "trunc`)
	writeFile(t, dir, "nopattern.json", `{"id": 5, "name": "incomplete"}`)

	report, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if report.Loaded != 3 {
		t.Errorf("loaded %d, want 3", report.Loaded)
	}
	if len(report.Failures) != 2 {
		t.Errorf("got %d failures, want 2: %+v", len(report.Failures), report.Failures)
	}
	for _, id := range []int64{1, 2, 3} {
		if _, ok := store.FindByID(id); !ok {
			t.Errorf("valid definition %d was affected by invalid neighbors", id)
		}
	}
}

func TestLoad_IgnoresUnsupportedExtensions(t *testing.T) {
	store, dir := newTestStore(t, Options{})
	writeFile(t, dir, "a-1.json", defJSON(1, "a", "^x$", 1))
	writeFile(t, dir, "notes.txt", "not a definition")
	writeFile(t, dir, ".svcreg-123.tmp", "half-written")

	report, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if report.Loaded != 1 || len(report.Failures) != 0 {
		t.Errorf("unsupported extensions must be invisible: %+v", report)
	}
}

func TestLoad_RecursesSubdirectories(t *testing.T) {
	store, dir := newTestStore(t, Options{})
	writeFile(t, dir, "top-1.json", defJSON(1, "top", "^a$", 1))
	writeFile(t, dir, filepath.Join("nested", "deep", "low-2.json"), defJSON(2, "low", "^b$", 2))

	report, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if report.Loaded != 2 {
		t.Errorf("loaded %d, want 2", report.Loaded)
	}
}

func TestLoad_ReloadIsIdempotent(t *testing.T) {
	repl := &replicationSpy{}
	store, dir := newTestStore(t, Options{Replication: repl})
	writeFile(t, dir, "a-1.json", defJSON(1, "a", "^x$", 1))
	writeFile(t, dir, "b-2.json", defJSON(2, "b", "^y$", 2))

	if _, err := store.Load(); err != nil {
		t.Fatalf("first load: %v", err)
	}
	first := store.Definitions()

	if _, err := store.Load(); err != nil {
		t.Fatalf("second load: %v", err)
	}
	second := store.Definitions()

	if len(first) != len(second) {
		t.Fatalf("reload changed index size: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Name != second[i].Name {
			t.Errorf("reload changed entry %d: %+v vs %+v", i, first[i], second[i])
		}
	}
	if repl.saveCount() != 0 {
		t.Errorf("reload must not trigger replication saves, got %d", repl.saveCount())
	}
}

func TestSave_WritesCanonicalFile(t *testing.T) {
	store, dir := newTestStore(t, Options{})

	saved, err := store.Save(&service.Definition{
		ID: 1, Name: "portal", ServiceIDPattern: "^https://portal", EvaluationOrder: 10,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID != 1 {
		t.Errorf("returned definition id %d", saved.ID)
	}

	path := filepath.Join(dir, "portal-1.json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected canonical file at %s: %v", path, err)
	}

	// No temp files may survive a save.
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}

	if _, ok := store.FindByID(1); !ok {
		t.Error("saved definition not indexed")
	}
}

func TestSave_RejectsInvalidDefinition(t *testing.T) {
	store, _ := newTestStore(t, Options{})

	if _, err := store.Save(&service.Definition{ID: 1}); err == nil {
		t.Fatal("expected error for missing pattern")
	}
	if _, err := store.Save(nil); err == nil {
		t.Fatal("expected error for nil definition")
	}
	if store.Size() != 0 {
		t.Errorf("failed saves must leave the index unchanged, size %d", store.Size())
	}
}

func TestSave_RenameRetiresOldFile(t *testing.T) {
	store, dir := newTestStore(t, Options{})

	if _, err := store.Save(&service.Definition{ID: 1, Name: "alpha", ServiceIDPattern: "^a$"}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if _, err := store.Save(&service.Definition{ID: 1, Name: "beta", ServiceIDPattern: "^a$"}); err != nil {
		t.Fatalf("renaming save: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "beta-1.json")); err != nil {
		t.Errorf("new file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "alpha-1.json")); !errors.Is(err, os.ErrNotExist) {
		t.Error("old file must be retired after the new one is durable")
	}
	if store.Size() != 1 {
		t.Errorf("id must stay unique across renames, size %d", store.Size())
	}
}

func TestSave_KeepsExistingExtension(t *testing.T) {
	store, dir := newTestStore(t, Options{})
	writeFile(t, dir, "app-7.yaml", "id: 7\nname: app\nserviceIdPattern: \"^x$\"\n")
	if _, err := store.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	if _, err := store.Save(&service.Definition{ID: 7, Name: "app", ServiceIDPattern: "^y$"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "app-7.yaml")); err != nil {
		t.Errorf("definition should keep its YAML backing file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "app-7.json")); !errors.Is(err, os.ErrNotExist) {
		t.Error("save must not silently switch formats")
	}
}

// constantNaming maps every definition to the same file, provoking collisions.
type constantNaming struct{}

func (constantNaming) FileName(def *service.Definition, ext string) (string, error) {
	return "everything." + ext, nil
}

func TestSave_NamingCollision(t *testing.T) {
	store, _ := newTestStore(t, Options{Naming: constantNaming{}})

	if _, err := store.Save(&service.Definition{ID: 1, Name: "a", ServiceIDPattern: "^a$"}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	_, err := store.Save(&service.Definition{ID: 2, Name: "b", ServiceIDPattern: "^b$"})
	if !errors.Is(err, ErrNamingCollision) {
		t.Fatalf("expected ErrNamingCollision, got %v", err)
	}

	if _, ok := store.FindByID(2); ok {
		t.Error("colliding save must not proceed")
	}
	if got, _ := store.FindByID(1); got.Name != "a" {
		t.Error("colliding save must not clobber the existing definition")
	}
}

func TestSave_ReplicationFailureIsWarning(t *testing.T) {
	repl := &replicationSpy{failSave: errors.New("peer unreachable")}
	store, dir := newTestStore(t, Options{Replication: repl})

	saved, err := store.Save(&service.Definition{ID: 1, Name: "a", ServiceIDPattern: "^a$"})
	if !errors.Is(err, ErrReplication) {
		t.Fatalf("expected error wrapping ErrReplication, got %v", err)
	}
	if saved == nil || saved.ID != 1 {
		t.Fatal("local mutation must stand despite the replication failure")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "a-1.json")); statErr != nil {
		t.Errorf("file must exist despite replication failure: %v", statErr)
	}
	if _, ok := store.FindByID(1); !ok {
		t.Error("index must hold the definition despite replication failure")
	}
}

func TestSave_ReplicationInvokedOncePerMutation(t *testing.T) {
	repl := &replicationSpy{}
	store, _ := newTestStore(t, Options{Replication: repl})

	store.Save(&service.Definition{ID: 1, Name: "a", ServiceIDPattern: "^a$"})
	store.Save(&service.Definition{ID: 1, Name: "a2", ServiceIDPattern: "^a$"})
	store.Save(&service.Definition{ID: 2, Name: "b", ServiceIDPattern: "^b$"})

	if repl.saveCount() != 3 {
		t.Errorf("expected 3 OnSave calls, got %d", repl.saveCount())
	}
}

func TestDelete(t *testing.T) {
	repl := &replicationSpy{}
	rec := &eventRecorder{}
	store, dir := newTestStore(t, Options{Replication: repl, Publisher: rec})

	store.Save(&service.Definition{ID: 1, Name: "a", ServiceIDPattern: "^a$"})

	removed, err := store.Delete(1)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !removed {
		t.Fatal("expected delete to report removal")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "a-1.json")); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("backing file must be removed")
	}
	if _, ok := store.FindByID(1); ok {
		t.Error("index entry must be removed")
	}
	if len(repl.deletes) != 1 || repl.deletes[0] != 1 {
		t.Errorf("expected one tombstone for id 1, got %v", repl.deletes)
	}
	if got := rec.byKind(EventDeleted); len(got) != 1 || got[0].ID != 1 {
		t.Errorf("expected one deleted event for id 1, got %v", got)
	}
}

func TestDelete_AbsentIDIsNoOp(t *testing.T) {
	repl := &replicationSpy{}
	store, _ := newTestStore(t, Options{Replication: repl})

	removed, err := store.Delete(99)
	if err != nil {
		t.Fatalf("deleting unknown id must not fail: %v", err)
	}
	if removed {
		t.Error("expected not-found result")
	}
	if len(repl.deletes) != 0 {
		t.Error("no tombstone for a no-op delete")
	}
}

func TestFindService_OrderDecides(t *testing.T) {
	store, dir := newTestStore(t, Options{})
	writeFile(t, dir, "app1-1.json", defJSON(1, "app1", `^https://a\..*`, 10))
	writeFile(t, dir, "app2-2.json", defJSON(2, "app2", `^https://.*`, 20))
	if _, err := store.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	// Both patterns match; the lower evaluation order wins.
	for i := 0; i < 25; i++ {
		def, ok := store.FindService("https://a.example.com")
		if !ok {
			t.Fatal("expected a match")
		}
		if def.ID != 1 {
			t.Fatalf("iteration %d: got id %d, want 1", i, def.ID)
		}
	}

	// Only the broad pattern matches this one.
	def, ok := store.FindService("https://b.example.com")
	if !ok || def.ID != 2 {
		t.Errorf("expected id 2, got %+v", def)
	}
}

func TestFindService_TieBrokenByID(t *testing.T) {
	store, dir := newTestStore(t, Options{})
	writeFile(t, dir, "b-9.json", defJSON(9, "b", `^https://.*`, 5))
	writeFile(t, dir, "a-3.json", defJSON(3, "a", `^https://.*`, 5))
	if _, err := store.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	for i := 0; i < 25; i++ {
		def, ok := store.FindService("https://anything")
		if !ok || def.ID != 3 {
			t.Fatalf("tie must resolve to the lowest id, got %+v", def)
		}
	}
}

func TestFindService_NoMatch(t *testing.T) {
	store, dir := newTestStore(t, Options{})
	writeFile(t, dir, "a-1.json", defJSON(1, "a", `^https://only\.this$`, 1))
	store.Load()

	if _, ok := store.FindService("https://something.else"); ok {
		t.Error("expected no match")
	}
}

func TestLookupsReturnDefensiveCopies(t *testing.T) {
	store, _ := newTestStore(t, Options{})
	store.Save(&service.Definition{
		ID: 1, Name: "a", ServiceIDPattern: "^a$",
		Body: map[string]any{"k": "v"},
	})

	got, _ := store.FindByID(1)
	got.Name = "mutated"
	got.Body["k"] = "mutated"

	again, _ := store.FindByID(1)
	if again.Name != "a" || again.Body["k"] != "v" {
		t.Error("callers must never receive a mutable reference into the index")
	}
}

func TestEvents_LifecycleKinds(t *testing.T) {
	rec := &eventRecorder{}
	store, dir := newTestStore(t, Options{Publisher: rec})
	writeFile(t, dir, "a-1.json", defJSON(1, "a", "^a$", 1))

	store.Load()
	store.Save(&service.Definition{ID: 2, Name: "b", ServiceIDPattern: "^b$"})
	store.Delete(2)

	if got := rec.byKind(EventLoaded); len(got) != 1 || got[0].ID != 1 {
		t.Errorf("loaded events: %v", got)
	}
	if got := rec.byKind(EventSaved); len(got) != 1 || got[0].ID != 2 {
		t.Errorf("saved events: %v", got)
	}
	if got := rec.byKind(EventDeleted); len(got) != 1 || got[0].ID != 2 {
		t.Errorf("deleted events: %v", got)
	}
}

func TestEvents_PanickingListenerDoesNotAffectState(t *testing.T) {
	store, _ := newTestStore(t, Options{
		Publisher: PublisherFunc(func(Event) { panic("listener bug") }),
	})

	if _, err := store.Save(&service.Definition{ID: 1, Name: "a", ServiceIDPattern: "^a$"}); err != nil {
		t.Fatalf("listener panic must not fail the save: %v", err)
	}
	if _, ok := store.FindByID(1); !ok {
		t.Error("definition must be indexed despite the listener panic")
	}
}

// A listener that reads back from the store would deadlock if events were
// published while the index lock is held.
func TestEvents_ListenerMayReadTheStore(t *testing.T) {
	var store *Store
	var err error
	store, err = New(t.TempDir(), Options{
		Publisher: PublisherFunc(func(e Event) {
			store.FindByID(e.ID)
			store.FindService("https://x")
		}),
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	done := make(chan struct{})
	go func() {
		store.Save(&service.Definition{ID: 1, Name: "a", ServiceIDPattern: "^a$"})
		store.Delete(1)
		close(done)
	}()
	select {
	case <-done:
	case <-timeout(t):
		t.Fatal("publishing appears to hold the index lock")
	}
}

func TestConcurrentSavesAndReads(t *testing.T) {
	store, _ := newTestStore(t, Options{})

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		id := int64(i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for rev := 0; rev < 10; rev++ {
				store.Save(&service.Definition{
					ID:               id,
					Name:             fmt.Sprintf("app%d", id),
					ServiceIDPattern: fmt.Sprintf("^https://app%d", id),
					EvaluationOrder:  rev,
				})
			}
		}()
		go func() {
			defer wg.Done()
			for rev := 0; rev < 50; rev++ {
				if def, ok := store.FindByID(id); ok {
					if def.ServiceIDPattern == "" {
						t.Error("reader observed an incomplete definition")
					}
				}
				store.FindService(fmt.Sprintf("https://app%d", id))
			}
		}()
	}
	wg.Wait()

	if store.Size() != 8 {
		t.Errorf("expected 8 unique definitions, got %d", store.Size())
	}

	// Every backing file must hold a complete definition.
	report, err := store.Load()
	if err != nil {
		t.Fatalf("verification load: %v", err)
	}
	if report.Loaded != 8 || len(report.Failures) != 0 {
		t.Errorf("disk state inconsistent after concurrent saves: %+v", report)
	}
}

func TestUniqueness_AfterAnySequenceOfSaves(t *testing.T) {
	store, _ := newTestStore(t, Options{Naming: naming.Default{}})

	names := []string{"a", "b", "a", "c", "b"}
	for _, n := range names {
		if _, err := store.Save(&service.Definition{ID: 1, Name: n, ServiceIDPattern: "^x$"}); err != nil {
			t.Fatalf("save %q: %v", n, err)
		}
	}

	defs := store.Definitions()
	seen := make(map[int64]bool)
	for _, d := range defs {
		if seen[d.ID] {
			t.Fatalf("duplicate id %d in index", d.ID)
		}
		seen[d.ID] = true
	}
	if len(defs) != 1 {
		t.Errorf("expected a single definition, got %d", len(defs))
	}
}

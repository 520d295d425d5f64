package record

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lucasnoah/fixloop/internal/remedy"
)

func testEvent(pr int) remedy.Event {
	return remedy.Event{
		PR:        pr,
		Commit:    "a1b2c3d4e5f6789012345678",
		RunID:     100,
		Job:       "unit-tests",
		CreatedAt: time.Now().UTC(),
	}
}

func TestCreateAndGet(t *testing.T) {
	s := NewStore(t.TempDir())
	rec := remedy.NewRecord(testEvent(7))

	if err := s.Create(rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Get(rec.Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected record, got nil")
	}
	if got.Phase != remedy.PhaseReceived {
		t.Errorf("phase = %s, want received", got.Phase)
	}
	if got.PR != 7 || got.RunID != 100 {
		t.Errorf("event fields not round-tripped: %+v", got)
	}
}

func TestCreate_DuplicateKeyRejected(t *testing.T) {
	s := NewStore(t.TempDir())
	rec := remedy.NewRecord(testEvent(7))

	if err := s.Create(rec); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := s.Create(remedy.NewRecord(testEvent(7))); err == nil {
		t.Fatal("expected duplicate create to fail")
	}
}

func TestCreate_ExistingFileRejected(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	rec := remedy.NewRecord(testEvent(7))

	// Another writer already put a file at the active path.
	if err := os.WriteFile(filepath.Join(dir, rec.Key+".json"), []byte(`{"key":"stale"}`), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	if err := s.Create(rec); err == nil {
		t.Fatal("expected create over existing file to fail")
	}
	data, err := os.ReadFile(filepath.Join(dir, rec.Key+".json"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != `{"key":"stale"}` {
		t.Errorf("existing file was clobbered: %s", data)
	}
}

func TestCreate_ArchivedKeyRejected(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	rec := remedy.NewRecord(testEvent(7))
	rec.Phase = remedy.PhasePublished
	if err := s.Create(rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Archive(rec.Key); err != nil {
		t.Fatalf("archive: %v", err)
	}

	// A key that already finished cannot be re-created, and the attempt
	// must not leave a fresh active file behind.
	if err := s.Create(remedy.NewRecord(testEvent(7))); err == nil {
		t.Fatal("expected create of archived key to fail")
	}
	if _, err := os.Stat(filepath.Join(dir, rec.Key+".json")); !os.IsNotExist(err) {
		t.Errorf("active file left behind after rejected create: %v", err)
	}
}

func TestGet_UnknownKey(t *testing.T) {
	s := NewStore(t.TempDir())
	got, err := s.Get("pr1-ffffffffffff-nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for unknown key, got %+v", got)
	}
}

func TestUpdate(t *testing.T) {
	s := NewStore(t.TempDir())
	rec := remedy.NewRecord(testEvent(7))
	if err := s.Create(rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := s.Update(rec.Key, func(r *remedy.Record) {
		r.Phase = remedy.PhaseContextCollected
		r.LogTail = "AssertionError: expected 4 got 3"
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Phase != remedy.PhaseContextCollected {
		t.Errorf("phase = %s, want context-collected", updated.Phase)
	}

	got, _ := s.Get(rec.Key)
	if got.LogTail != "AssertionError: expected 4 got 3" {
		t.Errorf("log tail not persisted: %q", got.LogTail)
	}
}

func TestListNonTerminal(t *testing.T) {
	s := NewStore(t.TempDir())

	active := remedy.NewRecord(testEvent(1))
	active.Phase = remedy.PhaseDiagnosed
	if err := s.Create(active); err != nil {
		t.Fatalf("create active: %v", err)
	}

	done := remedy.NewRecord(testEvent(2))
	done.Phase = remedy.PhasePublished
	if err := s.Create(done); err != nil {
		t.Fatalf("create done: %v", err)
	}

	records, err := s.ListNonTerminal()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 non-terminal record, got %d", len(records))
	}
	if records[0].Key != active.Key {
		t.Errorf("wrong record listed: %s", records[0].Key)
	}
}

func TestArchive(t *testing.T) {
	s := NewStore(t.TempDir())
	rec := remedy.NewRecord(testEvent(7))
	rec.Phase = remedy.PhasePublished
	if err := s.Create(rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.Archive(rec.Key); err != nil {
		t.Fatalf("archive: %v", err)
	}

	// Archived records stay visible to Get (dedup depends on this).
	got, err := s.Get(rec.Key)
	if err != nil {
		t.Fatalf("get after archive: %v", err)
	}
	if got == nil || got.Phase != remedy.PhasePublished {
		t.Fatalf("archived record not readable: %+v", got)
	}

	// But they no longer show up in active listings.
	records, _ := s.List("")
	if len(records) != 0 {
		t.Errorf("expected no active records after archive, got %d", len(records))
	}

	// Archiving twice is a no-op.
	if err := s.Archive(rec.Key); err != nil {
		t.Errorf("second archive: %v", err)
	}
}

func TestArchive_NonTerminalRejected(t *testing.T) {
	s := NewStore(t.TempDir())
	rec := remedy.NewRecord(testEvent(7))
	if err := s.Create(rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Archive(rec.Key); err == nil {
		t.Fatal("expected archive of non-terminal record to fail")
	}
}

func TestList_SkipsBrokenEntries(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	rec := remedy.NewRecord(testEvent(7))
	if err := s.Create(rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := WriteAtomic(filepath.Join(dir, "broken.json"), []byte("{not json")); err != nil {
		t.Fatalf("write broken: %v", err)
	}

	records, err := s.List("")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected broken entry to be skipped, got %d records", len(records))
	}
}

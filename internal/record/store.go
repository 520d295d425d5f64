package record

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lucasnoah/fixloop/internal/remedy"
)

// Store persists remediation records on disk, one JSON file per idempotency
// key. Terminal records are archived under archive/, never deleted, so a
// key that already published (or failed) stays visible to dedup checks.
type Store struct {
	baseDir string // defaults to ~/.fixloop/records
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// DefaultStore returns a Store at ~/.fixloop/records, creating the
// directory if needed.
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".fixloop", "records")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Store{baseDir: dir}, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

func (s *Store) activePath(key string) string {
	return filepath.Join(s.baseDir, key+".json")
}

func (s *Store) archivePath(key string) string {
	return filepath.Join(s.baseDir, "archive", key+".json")
}

// Create persists a brand-new record. It fails if the key already exists,
// active or archived. The active file is created with O_EXCL so two
// racing creators cannot both win, and the archive is re-checked after
// the exclusive create so a slow creator cannot resurrect a key that
// finished in the meantime.
func (s *Store) Create(rec *remedy.Record) error {
	if rec.Key == "" {
		return fmt.Errorf("record has no key")
	}

	if err := WriteJSONNew(s.activePath(rec.Key), rec); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("record %s already exists", rec.Key)
		}
		return fmt.Errorf("create record %s: %w", rec.Key, err)
	}

	if _, err := os.Stat(s.archivePath(rec.Key)); err == nil {
		os.Remove(s.activePath(rec.Key))
		return fmt.Errorf("record %s already exists (archived)", rec.Key)
	}
	return nil
}

// Get reads the record for a key, checking the active directory first and
// the archive second. Returns (nil, nil) when the key is unknown.
func (s *Store) Get(key string) (*remedy.Record, error) {
	for _, path := range []string{s.activePath(key), s.archivePath(key)} {
		var rec remedy.Record
		err := ReadJSON(path, &rec)
		if err == nil {
			return &rec, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read record %s: %w", key, err)
		}
	}
	return nil, nil
}

// Upsert writes the record, stamping UpdatedAt.
func (s *Store) Upsert(rec *remedy.Record) error {
	if rec.Key == "" {
		return fmt.Errorf("record has no key")
	}
	rec.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return WriteJSON(s.activePath(rec.Key), rec)
}

// Update performs a read-modify-write of the record for key.
func (s *Store) Update(key string, fn func(*remedy.Record)) (*remedy.Record, error) {
	rec, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("record %s not found", key)
	}
	fn(rec)
	if err := s.Upsert(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListNonTerminal returns all active records that have not reached a
// terminal phase, sorted by key. Used by restart recovery.
func (s *Store) ListNonTerminal() ([]remedy.Record, error) {
	return s.list(func(r *remedy.Record) bool { return !r.Terminal() })
}

// List returns all active records, optionally filtered by phase.
// Pass "" to return everything.
func (s *Store) List(phase remedy.Phase) ([]remedy.Record, error) {
	return s.list(func(r *remedy.Record) bool {
		return phase == "" || r.Phase == phase
	})
}

func (s *Store) list(keep func(*remedy.Record) bool) ([]remedy.Record, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}

	var records []remedy.Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var rec remedy.Record
		if err := ReadJSON(filepath.Join(s.baseDir, entry.Name()), &rec); err != nil {
			continue // skip broken entries
		}
		if keep(&rec) {
			records = append(records, rec)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Key < records[j].Key
	})
	return records, nil
}

// Archive moves a terminal record into the archive directory. Archiving a
// non-terminal record is an error.
func (s *Store) Archive(key string) error {
	rec, err := s.Get(key)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("record %s not found", key)
	}
	if !rec.Terminal() {
		return fmt.Errorf("record %s is in phase %s, not terminal", key, rec.Phase)
	}

	src := s.activePath(key)
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil // already archived
	}
	dst := s.archivePath(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir archive: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	return nil
}

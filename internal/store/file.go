package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/clintariac/frontdesk/internal/model"
)

// Snapshot is the full persisted dataset. Reservations are derived from
// tickets and are never stored.
type Snapshot struct {
	Users   map[string]model.User   `json:"users"`
	Tickets map[string]model.Ticket `json:"tickets"`
}

// EmptySnapshot returns a snapshot with no records, used to bootstrap a
// fresh installation.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Users:   make(map[string]model.User),
		Tickets: make(map[string]model.Ticket),
	}
}

// StorageError wraps any read/write/corruption failure from a DataStore.
// Storage failures are fatal to the session: the engine reports them once
// and keeps the last consistent in-memory snapshot.
type StorageError struct {
	Op  string // "load" or "save"
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// DataStore persists the whole dataset. The format is opaque to the engine
// beyond "round-trips Users and Tickets losslessly".
type DataStore interface {
	// Load reads the full dataset. Called once at startup.
	Load() (Snapshot, error)
	// Save writes the full dataset, synchronously, before the caller
	// notifies consumers. A failed save must leave the previous file
	// content readable.
	Save(Snapshot) error
}

// FileStore persists the dataset as a single JSON document. Writes go
// through a temp file and rename so a crashed save never truncates the
// previous dataset.
type FileStore struct {
	path string
}

// NewFileStore creates a file store at the given path. The file is created
// on the first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the dataset. A missing file is not an error: it yields an
// empty snapshot (first run).
func (f *FileStore) Load() (Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return EmptySnapshot(), nil
		}
		return Snapshot{}, &StorageError{Op: "load", Err: err}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, &StorageError{Op: "load", Err: fmt.Errorf("corrupt dataset %s: %w", f.path, err)}
	}
	if snap.Users == nil {
		snap.Users = make(map[string]model.User)
	}
	if snap.Tickets == nil {
		snap.Tickets = make(map[string]model.Ticket)
	}
	return snap, nil
}

// Save writes the dataset atomically.
func (f *FileStore) Save(snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return &StorageError{Op: "save", Err: err}
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &StorageError{Op: "save", Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".frontdesk-*.json")
	if err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &StorageError{Op: "save", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &StorageError{Op: "save", Err: err}
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return &StorageError{Op: "save", Err: err}
	}
	return nil
}

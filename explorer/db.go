package explorer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/sarchlab/arraytuner/record"
)

// DB is the results database: a JSON object mapping task signatures to
// records. It is read once when opened and written once by Save. There is
// no file locking, so concurrent runs against one file may lose updates.
type DB struct {
	path string

	mu      sync.Mutex
	records map[string]*record.Record
	added   map[string]bool
}

// OpenDB loads the database at path. A missing file gives an empty
// database.
func OpenDB(path string) (*DB, error) {
	db := &DB{path: path, records: map[string]*record.Record{}, added: map[string]bool{}}

	recs, err := readRecords(path)
	if err != nil {
		return nil, err
	}

	db.records = recs

	return db, nil
}

func readRecords(path string) (map[string]*record.Record, error) {
	recs := map[string]*record.Record{}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return recs, nil
	}

	if err != nil {
		return nil, fmt.Errorf("reading results database: %w", err)
	}

	if len(data) == 0 {
		return recs, nil
	}

	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("parsing results database %s: %w", path, err)
	}

	return recs, nil
}

// Get returns a copy of the record stored under sig.
func (db *DB) Get(sig string) (*record.Record, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	r, ok := db.records[sig]
	if !ok {
		return nil, false
	}

	return r.Clone(), true
}

// Put stores a copy of r under sig.
func (db *DB) Put(sig string, r *record.Record) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.records[sig] = r.Clone()
	db.added[sig] = true
}

// Len returns the number of stored records.
func (db *DB) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()

	return len(db.records)
}

// Save merges the records added in this session into the file: entries
// written by others since the database was opened are kept unless this
// session wrote the same signature.
func (db *DB) Save() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	onDisk, err := readRecords(db.path)
	if err != nil {
		return err
	}

	for sig := range db.added {
		onDisk[sig] = db.records[sig]
	}

	data, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding results database: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(db.path), ".arraytuner-db-*")
	if err != nil {
		return fmt.Errorf("writing results database: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("writing results database: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing results database: %w", err)
	}

	if err := os.Rename(tmp.Name(), db.path); err != nil {
		return fmt.Errorf("writing results database: %w", err)
	}

	for sig, r := range onDisk {
		db.records[sig] = r
	}
	db.added = map[string]bool{}

	return nil
}

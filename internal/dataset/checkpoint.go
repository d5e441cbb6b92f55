package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// ReadFile loads a dataset file. A missing file yields no records and no error.
func ReadFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return records, nil
}

// WriteFile replaces the file at path with records as indented JSON. The
// data is written to a temporary file in the same directory and renamed
// into place so readers never observe a partial file.
func WriteFile(path string, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Checkpoint is an append-only record accumulator persisted to one file.
type Checkpoint struct {
	path string

	mu      sync.Mutex
	records []Record
	index   Set
}

// OpenCheckpoint loads the checkpoint at path. A missing file starts empty;
// an unreadable or corrupt file is reported as a warning and also starts
// empty, so the next save overwrites it.
func OpenCheckpoint(path string) *Checkpoint {
	records, err := ReadFile(path)
	if err != nil {
		log.Printf("[Checkpoint] Warning: could not load previous progress, starting empty: %v", err)
		records = nil
	}
	return &Checkpoint{
		path:    path,
		records: records,
		index:   NewSet(records),
	}
}

// Path returns the file backing the checkpoint.
func (c *Checkpoint) Path() string { return c.path }

// Len returns the number of accumulated records.
func (c *Checkpoint) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Records returns a copy of the accumulated records.
func (c *Checkpoint) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.records...)
}

// Append adds a record to the accumulator without saving.
func (c *Checkpoint) Append(r Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
	c.index.Add(r.Instruction)
}

// Contains implements Seen.
func (c *Checkpoint) Contains(instruction string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Contains(instruction)
}

// Save writes the full accumulator to disk.
func (c *Checkpoint) Save() error {
	c.mu.Lock()
	records := append([]Record(nil), c.records...)
	c.mu.Unlock()
	return WriteFile(c.path, records)
}

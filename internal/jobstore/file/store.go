// Package file persists the job list as a JSON document on disk.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/JakeFAU/article-binder/internal/binder"
)

// Store implements binder.JobStore over a JSON file. Every update rewrites
// the whole file through a temp file and rename.
type Store struct {
	path string

	mu     sync.Mutex
	loaded bool
	coll   binder.JobCollection
}

// New returns a Store for path. The file is read on first use.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("job file path is required")
	}
	return &Store{path: path}, nil
}

// Load reads the job list from disk.
func (s *Store) Load(_ context.Context) (binder.JobCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readLocked(); err != nil {
		return binder.JobCollection{}, err
	}
	return clone(s.coll), nil
}

// UpdateJob replaces the job at index and flushes the whole list.
func (s *Store) UpdateJob(_ context.Context, index int, job binder.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		if err := s.readLocked(); err != nil {
			return err
		}
	}
	if index < 0 || index >= len(s.coll.Jobs) {
		return fmt.Errorf("job index %d out of range [0,%d)", index, len(s.coll.Jobs))
	}
	prev := s.coll.Jobs[index]
	s.coll.Jobs[index] = job
	if err := s.writeLocked(s.coll); err != nil {
		s.coll.Jobs[index] = prev
		return err
	}
	return nil
}

func (s *Store) readLocked() error {
	// #nosec G304 -- the job file path is operator configuration.
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("job file %s does not exist: %w", s.path, err)
	}
	if err != nil {
		return fmt.Errorf("read job file: %w", err)
	}
	var coll binder.JobCollection
	if err := json.Unmarshal(data, &coll); err != nil {
		return fmt.Errorf("decode job file %s: %w", s.path, err)
	}
	s.coll = coll
	s.loaded = true
	return nil
}

func (s *Store) writeLocked(coll binder.JobCollection) error {
	data, err := Encode(coll)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp job file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write job file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync job file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close job file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("commit job file: %w", err)
	}
	committed = true
	return nil
}

// Encode renders coll with four-space indentation and without escaping
// non-ASCII or HTML characters.
func Encode(coll binder.JobCollection) ([]byte, error) {
	if coll.Jobs == nil {
		coll.Jobs = []binder.Job{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(coll); err != nil {
		return nil, fmt.Errorf("encode job file: %w", err)
	}
	return buf.Bytes(), nil
}

func clone(coll binder.JobCollection) binder.JobCollection {
	out := coll
	out.Jobs = append([]binder.Job(nil), coll.Jobs...)
	return out
}

// Package memory provides an in-memory job store for tests and dry runs.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/article-binder/internal/binder"
)

// Update records one UpdateJob call.
type Update struct {
	Index int
	Job   binder.Job
}

// Store implements binder.JobStore in memory.
type Store struct {
	mu      sync.RWMutex
	coll    binder.JobCollection
	updates []Update
	failAt  map[int]error
}

// New seeds a Store with coll.
func New(coll binder.JobCollection) *Store {
	coll.Jobs = append([]binder.Job(nil), coll.Jobs...)
	return &Store{coll: coll, failAt: make(map[int]error)}
}

// FailUpdate makes UpdateJob for index return err.
func (s *Store) FailUpdate(index int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAt[index] = err
}

// Load returns a copy of the collection.
func (s *Store) Load(_ context.Context) (binder.JobCollection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.coll
	out.Jobs = append([]binder.Job(nil), s.coll.Jobs...)
	return out, nil
}

// UpdateJob replaces the job at index.
func (s *Store) UpdateJob(_ context.Context, index int, job binder.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failAt[index]; err != nil {
		return fmt.Errorf("update job %d: %w", index, err)
	}
	if index < 0 || index >= len(s.coll.Jobs) {
		return errors.New("job not found")
	}
	s.coll.Jobs[index] = job
	s.updates = append(s.updates, Update{Index: index, Job: job})
	return nil
}

// Updates returns the recorded UpdateJob calls in order.
func (s *Store) Updates() []Update {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Update(nil), s.updates...)
}

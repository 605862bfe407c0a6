// Package inmemstore implements recording.Store entirely in memory. It is
// the default backend for `live` harness runs and for tests; it implements
// the ephemeral, ":memory:"-style variant spec.md §4.2 explicitly allows.
package inmemstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"goa.design/harness/recording"
	"goa.design/harness/signal"
)

type entry struct {
	rec recording.Recording
}

// Store is a concurrency-safe in-memory recording.Store.
type Store struct {
	mu      sync.RWMutex
	records map[string]*entry
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{records: make(map[string]*entry)}
}

func (s *Store) Create(_ context.Context, opts recording.CreateOptions) (string, error) {
	id := uuid.NewString()
	s.mu.Lock()
	s.records[id] = &entry{rec: recording.Recording{
		ID:          id,
		HarnessType: opts.HarnessType,
		Tags:        append([]string(nil), opts.Tags...),
		Metadata:    opts.Metadata,
		CreatedAt:   time.Now(),
	}}
	s.mu.Unlock()
	return id, nil
}

func (s *Store) Append(_ context.Context, id string, sig signal.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[id]
	if !ok {
		return recording.ErrNotFound
	}
	if e.rec.FinalizedAt != nil {
		return recording.ErrFinalized
	}
	e.rec.Signals = append(e.rec.Signals, sig)
	return nil
}

func (s *Store) AppendBatch(_ context.Context, id string, signals []signal.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[id]
	if !ok {
		return recording.ErrNotFound
	}
	if e.rec.FinalizedAt != nil {
		return recording.ErrFinalized
	}
	e.rec.Signals = append(e.rec.Signals, signals...)
	return nil
}

func (s *Store) Checkpoint(_ context.Context, id string, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[id]
	if !ok {
		return recording.ErrNotFound
	}
	if e.rec.FinalizedAt != nil {
		return recording.ErrFinalized
	}
	e.rec.Checkpoints = append(e.rec.Checkpoints, recording.Checkpoint{Name: name, Index: len(e.rec.Signals)})
	return nil
}

func (s *Store) Finalize(_ context.Context, id string, durationMS int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[id]
	if !ok {
		return recording.ErrNotFound
	}
	if e.rec.FinalizedAt != nil {
		return recording.ErrFinalized
	}
	now := time.Now()
	e.rec.FinalizedAt = &now
	e.rec.DurationMS = durationMS
	return nil
}

func (s *Store) Load(_ context.Context, id string) (recording.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.records[id]
	if !ok {
		return recording.Recording{}, recording.ErrNotFound
	}
	return cloneRecording(e.rec), nil
}

func (s *Store) LoadSignals(_ context.Context, id string, opts recording.LoadSignalsOptions) ([]signal.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.records[id]
	if !ok {
		return nil, recording.ErrNotFound
	}
	return recording.FilterSignals(e.rec.Signals, opts), nil
}

func (s *Store) List(_ context.Context, filter recording.ListFilter) ([]recording.Recording, error) {
	s.mu.RLock()
	all := make([]recording.Recording, 0, len(s.records))
	for _, e := range s.records {
		all = append(all, e.rec)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	out := make([]recording.Recording, 0, len(all))
	for _, r := range all {
		if filter.HarnessType != "" && r.HarnessType != filter.HarnessType {
			continue
		}
		if len(filter.Tags) > 0 && !hasAllTags(r.Tags, filter.Tags) {
			continue
		}
		out = append(out, cloneRecording(r))
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.records, id)
	s.mu.Unlock()
	return nil
}

func (s *Store) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	_, ok := s.records[id]
	s.mu.RUnlock()
	return ok, nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	s.records = make(map[string]*entry)
	s.mu.Unlock()
	return nil
}

func hasAllTags(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if !set[t] {
			return false
		}
	}
	return true
}

func cloneRecording(r recording.Recording) recording.Recording {
	out := r
	out.Tags = append([]string(nil), r.Tags...)
	out.Signals = append([]signal.Signal(nil), r.Signals...)
	out.Checkpoints = append([]recording.Checkpoint(nil), r.Checkpoints...)
	return out
}

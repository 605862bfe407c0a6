// Package filestore implements recording.Store by writing one JSON file per
// recording under a base directory. It is the simplest durable backend
// (spec.md §4.2's "storage must survive process restarts") for local CLI
// use, where standing up Mongo or Redis is overkill. Stdlib-only
// (encoding/json, os): justified because a single JSON document per
// recording, guarded by an in-process mutex, is the entire problem — no
// pack library adds anything a dozen os/json calls don't already cover,
// and every real durable backend the pack exercises (Mongo, Redis) is
// reserved for the stores that actually need query/index support.
package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"goa.design/harness/recording"
	"goa.design/harness/signal"
)

// Store persists one JSON file per recording under Dir.
type Store struct {
	mu  sync.Mutex
	dir string
}

// New constructs a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) read(id string) (recording.Recording, error) {
	raw, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return recording.Recording{}, recording.ErrNotFound
	}
	if err != nil {
		return recording.Recording{}, err
	}
	var rec recording.Recording
	if err := json.Unmarshal(raw, &rec); err != nil {
		return recording.Recording{}, err
	}
	return rec, nil
}

func (s *Store) write(rec recording.Recording) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	tmp := s.path(rec.ID) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(rec.ID))
}

func (s *Store) Create(_ context.Context, opts recording.CreateOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := recording.Recording{
		ID:          uuid.NewString(),
		HarnessType: opts.HarnessType,
		Tags:        opts.Tags,
		Metadata:    opts.Metadata,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.write(rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (s *Store) Append(ctx context.Context, id string, sig signal.Signal) error {
	return s.AppendBatch(ctx, id, []signal.Signal{sig})
}

func (s *Store) AppendBatch(_ context.Context, id string, signals []signal.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.read(id)
	if err != nil {
		return err
	}
	if rec.FinalizedAt != nil {
		return recording.ErrFinalized
	}
	rec.Signals = append(rec.Signals, signals...)
	return s.write(rec)
}

func (s *Store) Checkpoint(_ context.Context, id string, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.read(id)
	if err != nil {
		return err
	}
	if rec.FinalizedAt != nil {
		return recording.ErrFinalized
	}
	rec.Checkpoints = append(rec.Checkpoints, recording.Checkpoint{Name: name, Index: len(rec.Signals)})
	return s.write(rec)
}

func (s *Store) Finalize(_ context.Context, id string, durationMS int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.read(id)
	if err != nil {
		return err
	}
	if rec.FinalizedAt != nil {
		return recording.ErrFinalized
	}
	now := time.Now().UTC()
	rec.FinalizedAt = &now
	rec.DurationMS = durationMS
	return s.write(rec)
}

func (s *Store) Load(_ context.Context, id string) (recording.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(id)
}

func (s *Store) LoadSignals(_ context.Context, id string, opts recording.LoadSignalsOptions) ([]signal.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.read(id)
	if err != nil {
		return nil, err
	}
	return recording.FilterSignals(rec.Signals, opts), nil
}

func (s *Store) List(_ context.Context, filter recording.ListFilter) ([]recording.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var all []recording.Recording
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := e.Name()[:len(e.Name())-len(".json")]
		rec, err := s.read(id)
		if err != nil {
			continue
		}
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	out := make([]recording.Recording, 0, len(all))
	for _, rec := range all {
		if filter.HarnessType != "" && rec.HarnessType != filter.HarnessType {
			continue
		}
		if len(filter.Tags) > 0 && !hasAllTags(rec.Tags, filter.Tags) {
			continue
		}
		out = append(out, rec)
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
	defer s.mu.Unlock()
	err := os.Remove(s.path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *Store) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := os.Stat(s.path(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return err
		}
	}
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

package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"punchclock.service/internal/core/model"
)

type memStore struct {
	mu        sync.Mutex
	entries   map[string]model.QueuedPunch
	delivered map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{entries: map[string]model.QueuedPunch{}, delivered: map[string]time.Time{}}
}

func (s *memStore) Enqueue(_ context.Context, e model.QueuedPunch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.delivered[e.Fingerprint]; ok {
		return false, nil
	}
	if _, ok := s.entries[e.Fingerprint]; ok {
		return false, nil
	}
	s.entries[e.Fingerprint] = e
	return true, nil
}

func (s *memStore) MarkDelivered(_ context.Context, fp, _ string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.delivered[fp]; !ok {
		s.delivered[fp] = at
	}
	delete(s.entries, fp)
	return nil
}

func (s *memStore) list(terminal bool) []model.QueuedPunch {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.QueuedPunch
	for _, e := range s.entries {
		if e.Terminal == terminal {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.EmployeeID != b.EmployeeID {
			return a.EmployeeID < b.EmployeeID
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out
}

func (s *memStore) Pending(context.Context) ([]model.QueuedPunch, error) { return s.list(false), nil }

func (s *memStore) HasPending(_ context.Context, employeeID string) (bool, error) {
	for _, e := range s.list(false) {
		if e.EmployeeID == employeeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) Terminal(context.Context) ([]model.QueuedPunch, error) { return s.list(true), nil }

func (s *memStore) RecordFailure(_ context.Context, f Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[f.Fingerprint]
	if !ok {
		return fmt.Errorf("queued punch %s not found", f.Fingerprint)
	}
	last := f.LastRetryAt
	e.RetryCount = f.RetryCount
	e.LastRetryAt = &last
	e.NextAttemptAt = f.NextAttemptAt
	e.ErrorMessage = f.ErrorMessage
	e.Terminal = f.Terminal
	s.entries[f.Fingerprint] = e
	return nil
}

func (s *memStore) PruneDelivered(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for fp, at := range s.delivered {
		if at.Before(before) {
			delete(s.delivered, fp)
			n++
		}
	}
	return n, nil
}

// Package punchtest provides an in-memory punch.Store for tests.
package punchtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"punchclock.service/internal/core/model"
	"punchclock.service/internal/core/punch"
)

// Store keeps every employee's log in memory. Fail, when set, is returned
// from WithEmployee before fn runs, simulating an unreachable database.
type Store struct {
	mu     sync.Mutex
	events map[string][]model.PunchEvent
	prints map[string]bool
	Fail   error
}

func NewStore() *Store {
	return &Store{events: make(map[string][]model.PunchEvent), prints: make(map[string]bool)}
}

func (s *Store) WithEmployee(ctx context.Context, employeeID string, fn func(tx punch.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	tx := &tx{store: s, employeeID: employeeID}
	if err := fn(tx); err != nil {
		return err
	}
	for _, ev := range tx.pending {
		s.events[employeeID] = append(s.events[employeeID], ev)
		s.prints[ev.Fingerprint] = true
	}
	return nil
}

// Events returns a copy of an employee's committed log.
func (s *Store) Events(employeeID string) []model.PunchEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.PunchEvent(nil), s.events[employeeID]...)
}

// All returns every committed event ordered by employee then timestamp.
func (s *Store) All() []model.PunchEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PunchEvent
	for _, evs := range s.events {
		out = append(out, evs...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EmployeeID != out[j].EmployeeID {
			return out[i].EmployeeID < out[j].EmployeeID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

type tx struct {
	store      *Store
	employeeID string
	pending    []model.PunchEvent
}

func (t *tx) LastPunch(context.Context) (*model.PunchEvent, error) {
	evs := t.store.events[t.employeeID]
	if len(t.pending) > 0 {
		ev := t.pending[len(t.pending)-1]
		return &ev, nil
	}
	if len(evs) == 0 {
		return nil, nil
	}
	ev := evs[len(evs)-1]
	return &ev, nil
}

func (t *tx) FingerprintExists(_ context.Context, fp string) (bool, error) {
	if t.store.prints[fp] {
		return true, nil
	}
	for _, ev := range t.pending {
		if ev.Fingerprint == fp {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) InsertPunch(_ context.Context, ev model.PunchEvent) error {
	if ev.EmployeeID != t.employeeID {
		return fmt.Errorf("punch for %s inserted under %s", ev.EmployeeID, t.employeeID)
	}
	t.pending = append(t.pending, ev)
	return nil
}

// Package punch validates and records the next event in an employee's
// daily punch sequence.
package punch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"punchclock.service/internal/core/keylock"
	"punchclock.service/internal/core/model"
)

// Store is the system of record for punch events.
type Store interface {
	// WithEmployee runs fn inside a unit of work that excludes every other
	// unit of work for the same employee. Writes made through tx become
	// visible only if fn returns nil.
	WithEmployee(ctx context.Context, employeeID string, fn func(tx Tx) error) error
}

// Tx is the view of one employee's log inside Store.WithEmployee.
type Tx interface {
	LastPunch(ctx context.Context) (*model.PunchEvent, error)
	FingerprintExists(ctx context.Context, fingerprint string) (bool, error)
	InsertPunch(ctx context.Context, event model.PunchEvent) error
}

type Machine struct {
	store  Store
	policy Policy
	locks  *keylock.Locker
	now    func() time.Time
}

func NewMachine(store Store, policy Policy) *Machine {
	return &Machine{
		store:  store,
		policy: policy,
		locks:  keylock.New(),
		now:    time.Now,
	}
}

// Policy returns the rules the machine enforces.
func (m *Machine) Policy() Policy { return m.policy }

// Accept validates p against the employee's cursor and appends it. Reading
// the cursor and writing the event happen as one step per employee.
func (m *Machine) Accept(ctx context.Context, p model.Punch) (model.PunchEvent, error) {
	if p.Fingerprint == "" {
		p.Fingerprint = model.Fingerprint(p.EmployeeID, p.Kind, p.Timestamp, p.Credential)
	}

	unlock := m.locks.Lock(p.EmployeeID)
	defer unlock()

	var event model.PunchEvent
	err := m.store.WithEmployee(ctx, p.EmployeeID, func(tx Tx) error {
		exists, err := tx.FingerprintExists(ctx, p.Fingerprint)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", model.ErrDuplicatePunch, p.Fingerprint)
		}

		last, err := tx.LastPunch(ctx)
		if err != nil {
			return err
		}
		if err := m.policy.Check(last, p); err != nil {
			return err
		}

		event = model.PunchEvent{
			ID:          uuid.NewString(),
			EmployeeID:  p.EmployeeID,
			Kind:        p.Kind,
			Timestamp:   p.Timestamp.UTC(),
			Credential:  p.Credential,
			Scheme:      p.Scheme,
			Device:      p.Device,
			Fingerprint: p.Fingerprint,
			RecordedAt:  m.now().UTC(),
		}
		return tx.InsertPunch(ctx, event)
	})
	if err != nil {
		return model.PunchEvent{}, err
	}

	log.Ctx(ctx).Debug().
		Str("employee_id", event.EmployeeID).
		Str("kind", string(event.Kind)).
		Time("timestamp", event.Timestamp).
		Msg("Punch accepted")
	return event, nil
}

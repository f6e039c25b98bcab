// Package queue holds punches the system of record could not confirm and
// replays them, oldest first per employee, until they land or are flagged
// for manual review.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"punchclock.service/internal/core/model"
)

// Store is the durable storage behind the queue. Entries are keyed by
// fingerprint; the delivered ledger remembers fingerprints the system of
// record has confirmed.
type Store interface {
	// Enqueue inserts entry unless its fingerprint is already queued or
	// delivered, and reports whether a row was written.
	Enqueue(ctx context.Context, entry model.QueuedPunch) (bool, error)
	// MarkDelivered records fingerprint in the ledger and removes any
	// queued entry with it.
	MarkDelivered(ctx context.Context, fingerprint, employeeID string, at time.Time) error
	// Pending lists non-terminal entries ordered by employee, timestamp,
	// then enqueue time.
	Pending(ctx context.Context) ([]model.QueuedPunch, error)
	// HasPending reports whether employeeID has non-terminal entries.
	HasPending(ctx context.Context, employeeID string) (bool, error)
	// RecordFailure updates the bookkeeping fields of an entry.
	RecordFailure(ctx context.Context, f Failure) error
	// Terminal lists entries flagged for manual review.
	Terminal(ctx context.Context) ([]model.QueuedPunch, error)
	// PruneDelivered drops ledger rows delivered before cutoff.
	PruneDelivered(ctx context.Context, before time.Time) (int64, error)
}

// Failure is the bookkeeping written after an unsuccessful replay.
type Failure struct {
	Fingerprint   string
	RetryCount    int
	LastRetryAt   time.Time
	NextAttemptAt time.Time
	ErrorMessage  string
	Terminal      bool
}

type Queue struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Queue {
	return &Queue{store: store, now: time.Now}
}

// Enqueue durably captures p. Enqueueing a fingerprint that is already
// queued or already delivered is a successful no-op; queued reports
// whether a new entry was written.
func (q *Queue) Enqueue(ctx context.Context, p model.Punch) (queued bool, err error) {
	if p.Fingerprint == "" {
		p.Fingerprint = model.Fingerprint(p.EmployeeID, p.Kind, p.Timestamp, p.Credential)
	}
	now := q.now().UTC()
	queued, err = q.store.Enqueue(ctx, model.QueuedPunch{
		Punch:         p,
		NextAttemptAt: now,
		CreatedAt:     now,
	})
	if err != nil {
		return false, fmt.Errorf("enqueue punch %s: %w", p.Fingerprint, err)
	}
	log.Ctx(ctx).Info().
		Str("employee_id", p.EmployeeID).
		Str("fingerprint", p.Fingerprint).
		Bool("new_entry", queued).
		Msg("Punch captured in offline queue")
	return queued, nil
}

// MarkDelivered records that the system of record confirmed p.
func (q *Queue) MarkDelivered(ctx context.Context, p model.Punch) error {
	return q.store.MarkDelivered(ctx, p.Fingerprint, p.EmployeeID, q.now().UTC())
}

// HasPending reports whether employeeID still has taps waiting for replay.
// New taps for that employee must queue behind them.
func (q *Queue) HasPending(ctx context.Context, employeeID string) (bool, error) {
	return q.store.HasPending(ctx, employeeID)
}

// Terminal lists entries that need an operator.
func (q *Queue) Terminal(ctx context.Context) ([]model.QueuedPunch, error) {
	return q.store.Terminal(ctx)
}

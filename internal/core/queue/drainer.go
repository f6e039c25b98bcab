package queue

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"punchclock.service/internal/core/keylock"
	"punchclock.service/internal/core/model"
)

// Submitter hands a punch to the system of record. Errors are classified
// with the model sentinels.
type Submitter interface {
	Submit(ctx context.Context, p model.Punch) error
}

// SubmitFunc adapts a function to Submitter.
type SubmitFunc func(ctx context.Context, p model.Punch) error

func (f SubmitFunc) Submit(ctx context.Context, p model.Punch) error { return f(ctx, p) }

type Options struct {
	Interval           time.Duration
	SubmitTimeout      time.Duration
	Concurrency        int
	MaxAttempts        int
	DeliveredRetention time.Duration
}

func DefaultOptions() Options {
	return Options{
		Interval:           15 * time.Second,
		SubmitTimeout:      10 * time.Second,
		Concurrency:        4,
		MaxAttempts:        8,
		DeliveredRetention: 30 * 24 * time.Hour,
	}
}

// Stats counts the outcomes of one drain pass.
type Stats struct {
	Delivered  int
	Duplicates int
	Retried    int
	Terminal   int
	Deferred   int
}

func (s *Stats) add(o Stats) {
	s.Delivered += o.Delivered
	s.Duplicates += o.Duplicates
	s.Retried += o.Retried
	s.Terminal += o.Terminal
	s.Deferred += o.Deferred
}

// Drainer replays queued punches. At most one pass per employee is in
// flight; different employees drain concurrently.
type Drainer struct {
	store  Store
	submit Submitter
	opts   Options
	locks  *keylock.Locker
	cb     *gobreaker.CircuitBreaker
	now    func() time.Time
}

func NewDrainer(store Store, submit Submitter, opts Options) *Drainer {
	defaults := DefaultOptions()
	if opts.Interval <= 0 {
		opts.Interval = defaults.Interval
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = defaults.SubmitTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaults.Concurrency
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaults.MaxAttempts
	}

	settings := gobreaker.Settings{
		Name:        "System-Of-Record",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Rejections are answers from a healthy system of record.
		IsSuccessful: func(err error) bool {
			return err == nil || model.IsTerminal(err) || errors.Is(err, model.ErrDuplicatePunch)
		},
	}

	return &Drainer{
		store:  store,
		submit: submit,
		opts:   opts,
		locks:  keylock.New(),
		cb:     gobreaker.NewCircuitBreaker(settings),
		now:    time.Now,
	}
}

// Run drains on every tick until ctx is canceled. Queue rows are the only
// checkpoint, so a stopped drainer resumes where it left off.
func (d *Drainer) Run(ctx context.Context) {
	log.Info().Dur("interval", d.opts.Interval).Msg("Queue drainer started")
	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()

	for {
		stats, err := d.Pass(ctx)
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Drain pass failed")
		} else if stats != (Stats{}) {
			log.Info().
				Int("delivered", stats.Delivered).
				Int("duplicates", stats.Duplicates).
				Int("retried", stats.Retried).
				Int("terminal", stats.Terminal).
				Int("deferred", stats.Deferred).
				Msg("Drain pass finished")
		}
		if d.opts.DeliveredRetention > 0 {
			if n, err := d.store.PruneDelivered(ctx, d.now().Add(-d.opts.DeliveredRetention)); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("Pruning delivered ledger failed")
			} else if n > 0 {
				log.Debug().Int64("rows", n).Msg("Pruned delivered ledger")
			}
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Queue drainer shutting down...")
			return
		case <-ticker.C:
		}
	}
}

// Pass makes one attempt over every pending entry.
func (d *Drainer) Pass(ctx context.Context) (Stats, error) {
	pending, err := d.store.Pending(ctx)
	if err != nil {
		return Stats{}, err
	}

	var (
		mu    sync.Mutex
		total Stats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)
	for _, entries := range groupByEmployee(pending) {
		g.Go(func() error {
			stats, err := d.drainEmployee(gctx, entries)
			mu.Lock()
			total.add(stats)
			mu.Unlock()
			return err
		})
	}
	err = g.Wait()
	return total, err
}

func groupByEmployee(pending []model.QueuedPunch) [][]model.QueuedPunch {
	var groups [][]model.QueuedPunch
	for i, entry := range pending {
		if i == 0 || entry.EmployeeID != pending[i-1].EmployeeID {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], entry)
	}
	return groups
}

// drainEmployee replays one employee's entries strictly in order and stops
// at the first entry that has to wait, so later taps never overtake it.
func (d *Drainer) drainEmployee(ctx context.Context, entries []model.QueuedPunch) (Stats, error) {
	var stats Stats
	employeeID := entries[0].EmployeeID

	unlock, ok := d.locks.TryLock(employeeID)
	if !ok {
		stats.Deferred += len(entries)
		return stats, nil
	}
	defer unlock()

	logger := log.With().Str("employee_id", employeeID).Logger()

	for i, entry := range entries {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if entry.NextAttemptAt.After(d.now()) {
			stats.Deferred += len(entries) - i
			return stats, nil
		}

		err := d.submitOne(ctx, entry.Punch)
		now := d.now().UTC()

		switch {
		case err == nil || errors.Is(err, model.ErrDuplicatePunch):
			if err := d.store.MarkDelivered(ctx, entry.Fingerprint, entry.EmployeeID, now); err != nil {
				return stats, err
			}
			if err == nil {
				stats.Delivered++
			} else {
				stats.Duplicates++
			}

		case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
			stats.Deferred += len(entries) - i
			return stats, nil

		case ctx.Err() != nil:
			return stats, ctx.Err()

		case model.IsTerminal(err):
			logger.Warn().Err(err).Str("fingerprint", entry.Fingerprint).Msg("Queued punch rejected, flagged for review")
			if err := d.store.RecordFailure(ctx, Failure{
				Fingerprint:   entry.Fingerprint,
				RetryCount:    entry.RetryCount,
				LastRetryAt:   now,
				NextAttemptAt: entry.NextAttemptAt,
				ErrorMessage:  err.Error(),
				Terminal:      true,
			}); err != nil {
				return stats, err
			}
			stats.Terminal++

		default:
			retries := entry.RetryCount + 1
			terminal := retries >= d.opts.MaxAttempts
			if err := d.store.RecordFailure(ctx, Failure{
				Fingerprint:   entry.Fingerprint,
				RetryCount:    retries,
				LastRetryAt:   now,
				NextAttemptAt: now.Add(calculateBackoff(retries)),
				ErrorMessage:  err.Error(),
				Terminal:      terminal,
			}); err != nil {
				return stats, err
			}
			if terminal {
				logger.Error().Err(err).Int("retries", retries).Str("fingerprint", entry.Fingerprint).Msg("Queued punch exhausted retries")
				stats.Terminal++
				continue
			}
			logger.Warn().Err(err).Int("retries", retries).Msg("Replay failed, will retry")
			stats.Retried++
			stats.Deferred += len(entries) - i - 1
			return stats, nil
		}
	}
	return stats, nil
}

func (d *Drainer) submitOne(ctx context.Context, p model.Punch) error {
	ctx, cancel := context.WithTimeout(ctx, d.opts.SubmitTimeout)
	defer cancel()
	_, err := d.cb.Execute(func() (interface{}, error) {
		return nil, d.submit.Submit(ctx, p)
	})
	return err
}

// calculateBackoff determines how long to wait before retrying a failed
// replay. It doubles with each retry and is capped at one hour.
func calculateBackoff(retryCount int) time.Duration {
	backoff := math.Pow(2, float64(retryCount)) * 10
	if backoff > 3600 {
		return time.Hour
	}
	return time.Duration(backoff) * time.Second
}

// Package payrun fans a finalized payroll period out to the payroll queue,
// one message per active employee, and previews a period in process.
package payrun

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"punchclock.service/internal/core/model"
	"punchclock.service/internal/core/payroll"
	"punchclock.service/internal/ports/messaging"
)

type Store interface {
	ListActiveEmployees(ctx context.Context) ([]model.Employee, error)
	ListPunches(ctx context.Context, employeeID string, from, to time.Time) ([]model.PunchEvent, error)
}

// Summary reports what a finalize call queued.
type Summary struct {
	RunID     string `json:"runId"`
	Period    string `json:"period"`
	Employees int    `json:"employees"`
}

// PreviewLine is one employee's result, or the reason it could not be
// computed.
type PreviewLine struct {
	EmployeeID string                     `json:"employeeId"`
	Result     *payroll.MonthlyWageResult `json:"result,omitempty"`
	Error      string                     `json:"error,omitempty"`
}

type Scheduler struct {
	store    Store
	producer messaging.QueueProducer
	cfg      payroll.Config
	now      func() time.Time
}

func NewScheduler(store Store, producer messaging.QueueProducer, cfg payroll.Config) *Scheduler {
	return &Scheduler{store: store, producer: producer, cfg: cfg, now: time.Now}
}

// Finalize publishes a PayrollRunEvent for every active employee. Workers
// skip employees already exported for the period, so finalizing twice is
// safe.
func (s *Scheduler) Finalize(ctx context.Context, period payroll.Period) (Summary, error) {
	employees, err := s.store.ListActiveEmployees(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list active employees: %w", err)
	}

	summary := Summary{RunID: uuid.NewString(), Period: period.String()}
	requested := s.now().UTC()
	for _, emp := range employees {
		event := messaging.PayrollRunEvent{
			RunID:       summary.RunID,
			EmployeeID:  emp.ID,
			Period:      summary.Period,
			RequestedAt: requested,
		}
		if err := s.producer.PublishPayrollRun(ctx, event); err != nil {
			return summary, fmt.Errorf("publish payroll run for %s: %w", emp.ID, err)
		}
		summary.Employees++
	}

	log.Ctx(ctx).Info().
		Str("run_id", summary.RunID).
		Str("period", summary.Period).
		Int("employees", summary.Employees).
		Msg("Payroll period finalized")
	return summary, nil
}

// Preview computes the period for every active employee without exporting.
// One employee's missing configuration shows up on its line only.
func (s *Scheduler) Preview(ctx context.Context, period payroll.Period) ([]PreviewLine, error) {
	employees, err := s.store.ListActiveEmployees(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active employees: %w", err)
	}

	from, to := period.Bounds(s.cfg.DayRule())
	jobs := make([]payroll.EmployeePeriod, 0, len(employees))
	for _, emp := range employees {
		events, err := s.store.ListPunches(ctx, emp.ID, from, to)
		if err != nil {
			return nil, fmt.Errorf("list punches for %s: %w", emp.ID, err)
		}
		jobs = append(jobs, payroll.EmployeePeriod{Employee: emp, Events: events, Period: period})
	}

	results := payroll.CalculateBatch(ctx, jobs, s.cfg, runtime.GOMAXPROCS(0))
	lines := make([]PreviewLine, len(results))
	for i, r := range results {
		lines[i] = PreviewLine{EmployeeID: r.EmployeeID}
		if r.Err != nil {
			lines[i].Error = r.Err.Error()
			continue
		}
		lines[i].Result = &r.Result
	}
	return lines, ctx.Err()
}

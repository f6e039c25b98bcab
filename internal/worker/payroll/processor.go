// Package payroll consumes payroll run messages: it computes one employee's
// month and exports it to the payroll system.
package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"punchclock.service/internal/core/model"
	calc "punchclock.service/internal/core/payroll"
	"punchclock.service/internal/ports/messaging"
	"punchclock.service/internal/ports/repository"
	"punchclock.service/internal/worker"
	"punchclock.service/internal/worker/export"
)

type Store interface {
	GetEmployee(ctx context.Context, id string) (model.Employee, error)
	ListPunches(ctx context.Context, employeeID string, from, to time.Time) ([]model.PunchEvent, error)
	GetExport(ctx context.Context, employeeID, period string) (model.PayrollExport, error)
	SaveExport(ctx context.Context, export model.PayrollExport) error
}

// Processor exports through a circuit breaker so a struggling payroll
// system is not hammered by every queued employee.
type Processor struct {
	repo     Store
	exporter export.Client
	cfg      calc.Config
	cb       *gobreaker.CircuitBreaker
}

func NewProcessor(repo Store, exporter export.Client, cfg calc.Config) *Processor {
	settings := gobreaker.Settings{
		Name:        "Payroll-Export",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Trip if failure rate is bigger then 50% after at least 10 requests
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
		IsSuccessful: func(err error) bool {
			// A rejected payload says nothing about the health of the payroll system.
			return err == nil || errors.Is(err, export.ErrRejected)
		},
	}

	return &Processor{
		repo:     repo,
		exporter: exporter,
		cfg:      cfg,
		cb:       gobreaker.NewCircuitBreaker(settings),
	}
}

func (p *Processor) Process(ctx context.Context, msg types.Message) (bool, int32, error) {
	if err := worker.CheckEventType(msg, messaging.TypePayrollRun); err != nil {
		return false, 0, err
	}

	var event messaging.PayrollRunEvent
	if err := json.Unmarshal([]byte(*msg.Body), &event); err != nil {
		return false, 0, fmt.Errorf("unmarshal payroll run event: %w", err)
	}
	period, err := calc.ParsePeriod(event.Period)
	if err != nil {
		return false, 0, err
	}

	logger := log.Ctx(ctx).With().Str("employee_id", event.EmployeeID).Str("period", event.Period).Logger()

	record, err := p.repo.GetExport(ctx, event.EmployeeID, event.Period)
	if err != nil {
		return true, 10, fmt.Errorf("failed to get export record: %w", err)
	}
	if record.Status == model.StatusCompleted {
		logger.Info().Msg("Period already exported. Skipping.")
		return false, 0, nil
	}

	employee, err := p.repo.GetEmployee(ctx, event.EmployeeID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, 0, err
	}
	if err != nil {
		return true, 10, fmt.Errorf("failed to get employee: %w", err)
	}

	from, to := period.Bounds(p.cfg.DayRule())
	events, err := p.repo.ListPunches(ctx, event.EmployeeID, from, to)
	if err != nil {
		return true, 10, fmt.Errorf("failed to list punches: %w", err)
	}

	result, err := calc.CalculateMonth(employee, events, period, p.cfg)
	if err != nil {
		p.save(ctx, record, model.StatusFailed, record.RetryCount, nil)
		return false, 0, fmt.Errorf("calculate month: %w", err)
	}
	body, err := json.Marshal(result)
	if err != nil {
		return false, 0, err
	}
	if result.IssueCount > 0 {
		logger.Warn().Int("issues", result.IssueCount).Msg("Month contains unpaired punches")
	}

	_, err = p.cb.Execute(func() (interface{}, error) {
		return nil, p.exporter.Export(ctx, result)
	})
	if errors.Is(err, export.ErrRejected) {
		p.save(ctx, record, model.StatusFailed, record.RetryCount, body)
		return false, 0, err
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logger.Warn().Msg("Circuit breaker is open; skipping payroll export")
		}
		newCount := record.RetryCount + 1
		p.save(ctx, record, model.StatusPending, newCount, body)
		return true, worker.Backoff(newCount), err
	}

	if err := p.repo.SaveExport(ctx, exportRecord(record, model.StatusCompleted, 0, body)); err != nil {
		// Exported but not recorded: the idempotency key covers the redelivery.
		return true, 10, fmt.Errorf("failed to record export: %w", err)
	}
	logger.Info().Str("net", result.Net.String()).Msg("Payroll period exported")
	return false, 0, nil
}

func (p *Processor) save(ctx context.Context, record model.PayrollExport, status model.JobStatus, retries int, body []byte) {
	if err := p.repo.SaveExport(ctx, exportRecord(record, status, retries, body)); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("status", string(status)).Msg("Failed to update export status")
	}
}

func exportRecord(record model.PayrollExport, status model.JobStatus, retries int, body []byte) model.PayrollExport {
	record.Status = status
	record.RetryCount = retries
	record.Result = body
	return record
}

// Package summary consumes shift-closed messages and emails the employee
// the summary of that business day.
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"

	"punchclock.service/internal/core/model"
	"punchclock.service/internal/core/notify"
	"punchclock.service/internal/core/payroll"
	"punchclock.service/internal/ports/messaging"
	"punchclock.service/internal/ports/repository"
	"punchclock.service/internal/worker"
)

type Store interface {
	GetEmployee(ctx context.Context, id string) (model.Employee, error)
	ListPunches(ctx context.Context, employeeID string, from, to time.Time) ([]model.PunchEvent, error)
	GetNotification(ctx context.Context, eventID string) (model.Notification, error)
	SaveNotification(ctx context.Context, n model.Notification) error
}

type Processor struct {
	emailService notify.EmailService
	repo         Store
	cfg          payroll.Config
	// domain builds a fallback address for employees without one on file.
	domain string
}

func NewProcessor(emailService notify.EmailService, repo Store, cfg payroll.Config, domain string) *Processor {
	return &Processor{
		emailService: emailService,
		repo:         repo,
		cfg:          cfg,
		domain:       domain,
	}
}

func (p *Processor) Process(ctx context.Context, msg types.Message) (bool, int32, error) {
	if err := worker.CheckEventType(msg, messaging.TypeShiftClosed); err != nil {
		return false, 0, err
	}

	var event messaging.ShiftClosedEvent
	if err := json.Unmarshal([]byte(*msg.Body), &event); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to unmarshal shift closed event")
		return false, 0, err
	}
	rule := p.cfg.DayRule()
	day, err := time.ParseInLocation(time.DateOnly, event.BusinessDay, rule.Loc())
	if err != nil {
		return false, 0, fmt.Errorf("business day %q: %w", event.BusinessDay, err)
	}

	record, err := p.repo.GetNotification(ctx, event.EventID)
	if err != nil {
		return true, 10, fmt.Errorf("failed to get notification record: %w", err)
	}
	if record.Status == model.StatusCompleted {
		log.Ctx(ctx).Info().Str("event_id", event.EventID).Msg("Summary already sent. Skipping.")
		return false, 0, nil
	}
	record.EmployeeID = event.EmployeeID

	employee, err := p.repo.GetEmployee(ctx, event.EmployeeID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, 0, err
	}
	if err != nil {
		return true, 10, fmt.Errorf("failed to get employee: %w", err)
	}

	events, err := p.repo.ListPunches(ctx, event.EmployeeID, rule.DayStart(day), rule.DayStart(day.AddDate(0, 0, 1)))
	if err != nil {
		return true, 10, fmt.Errorf("failed to list punches: %w", err)
	}
	summary, err := payroll.CalculateDay(day, events, employee, p.cfg)
	if err != nil {
		return false, 0, fmt.Errorf("calculate day: %w", err)
	}

	if err := p.emailService.SendDailySummary(ctx, p.recipient(employee), summary); err != nil {
		record.Status = model.StatusPending
		record.RetryCount++
		if serr := p.repo.SaveNotification(ctx, record); serr != nil {
			log.Ctx(ctx).Error().Err(serr).Msg("Failed to update notification status")
		}
		return true, worker.Backoff(record.RetryCount), err
	}

	record.Status = model.StatusCompleted
	record.RetryCount = 0
	return false, 0, p.repo.SaveNotification(ctx, record)
}

func (p *Processor) recipient(e model.Employee) string {
	if e.Email != "" {
		return e.Email
	}
	return e.ID + "@" + p.domain
}

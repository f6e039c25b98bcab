package repository

import (
	"context"
	"time"

	"punchclock.service/internal/core/identity"
	"punchclock.service/internal/core/model"
	"punchclock.service/internal/core/punch"
)

// Repository contract
type Repository interface {
	identity.CredentialStore
	punch.Store

	GetEmployee(ctx context.Context, id string) (model.Employee, error)
	ListActiveEmployees(ctx context.Context) ([]model.Employee, error)
	// ListPunches returns an employee's committed punches in [from, to)
	// ordered by timestamp.
	ListPunches(ctx context.Context, employeeID string, from, to time.Time) ([]model.PunchEvent, error)

	GetExport(ctx context.Context, employeeID, period string) (model.PayrollExport, error)
	SaveExport(ctx context.Context, export model.PayrollExport) error
	GetNotification(ctx context.Context, eventID string) (model.Notification, error)
	SaveNotification(ctx context.Context, n model.Notification) error
}

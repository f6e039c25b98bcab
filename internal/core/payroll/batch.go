package payroll

import (
	"context"

	"golang.org/x/sync/errgroup"

	"punchclock.service/internal/core/model"
)

// EmployeePeriod is one unit of a batch: an employee and their punches
// for the period.
type EmployeePeriod struct {
	Employee model.Employee
	Events   []model.PunchEvent
	Period   Period
}

// BatchResult carries either a result or the error for one employee.
type BatchResult struct {
	EmployeeID string
	Result     MonthlyWageResult
	Err        error
}

// CalculateBatch runs CalculateMonth for every job with at most parallelism
// in flight. One employee's error never stops the others. Results are in
// job order.
func CalculateBatch(ctx context.Context, jobs []EmployeePeriod, cfg Config, parallelism int) []BatchResult {
	results := make([]BatchResult, len(jobs))
	var g errgroup.Group
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i, job := range jobs {
		results[i].EmployeeID = job.Employee.ID
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Result, results[i].Err = CalculateMonth(job.Employee, job.Events, job.Period, cfg)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

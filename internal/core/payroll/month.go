package payroll

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"punchclock.service/internal/core/model"
)

// Period is a payroll month.
type Period struct {
	Year  int
	Month time.Month
}

// ParsePeriod reads "2006-01".
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", s, err)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

func (p Period) String() string { return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month)) }

// Bounds returns the half-open range of instants whose business day falls
// in p.
func (p Period) Bounds(rule model.DayRule) (from, to time.Time) {
	first := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, rule.Loc())
	return rule.DayStart(first), rule.DayStart(first.AddDate(0, 1, 0))
}

// DeductionLine is one applied deduction.
type DeductionLine struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

type MonthlyWageResult struct {
	EmployeeID string          `json:"employeeId"`
	Period     string          `json:"period"`
	WageType   model.WageType  `json:"wageType"`
	HourlyRate decimal.Decimal `json:"hourlyRate"`
	// DayMinutes is the sum of the daily rounded worked minutes.
	DayMinutes    int `json:"dayMinutes"`
	WorkedMinutes int `json:"workedMinutes"`
	// Minutes holds each category's aggregate after monthly rounding.
	Minutes Minutes `json:"minutes"`
	// Wages.Regular is the base: regular pay for HOURLY, the fixed salary
	// for MONTHLY.
	Wages           Wages              `json:"wages"`
	Gross           decimal.Decimal    `json:"gross"`
	Deductions      []DeductionLine    `json:"deductions"`
	TotalDeductions decimal.Decimal    `json:"totalDeductions"`
	Net             decimal.Decimal    `json:"net"`
	Days            []DailyWorkSummary `json:"days"`
	IssueCount      int                `json:"issueCount"`
}

// CalculateMonth computes employee's wage for period from their punch log.
// Punches outside the period are ignored.
func CalculateMonth(employee model.Employee, events []model.PunchEvent, period Period, cfg Config) (MonthlyWageResult, error) {
	if err := cfg.Validate(); err != nil {
		return MonthlyWageResult{}, err
	}
	rate, err := cfg.HourlyRate(employee)
	if err != nil {
		return MonthlyWageResult{}, err
	}

	rule := cfg.DayRule()
	from, to := period.Bounds(rule)
	byDay := make(map[time.Time][]model.PunchEvent)
	var days []time.Time
	for _, ev := range events {
		if ev.EmployeeID != "" && ev.EmployeeID != employee.ID {
			return MonthlyWageResult{}, fmt.Errorf("punch %s belongs to %s, not %s", ev.ID, ev.EmployeeID, employee.ID)
		}
		if ev.Timestamp.Before(from) || !ev.Timestamp.Before(to) {
			continue
		}
		day := rule.BusinessDay(ev.Timestamp)
		if _, ok := byDay[day]; !ok {
			days = append(days, day)
		}
		byDay[day] = append(byDay[day], ev)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	result := MonthlyWageResult{
		EmployeeID: employee.ID,
		Period:     period.String(),
		WageType:   employee.WageType,
		HourlyRate: rate.Round(cfg.CurrencyScale + 2),
		Days:       make([]DailyWorkSummary, 0, len(days)),
		Deductions: make([]DeductionLine, 0, len(cfg.Deductions)),
	}

	var sum Minutes
	for _, day := range days {
		summary := calculateDay(day, sortedDay(day, byDay[day], rule), employee, rate, cfg)
		result.Days = append(result.Days, summary)
		result.DayMinutes += summary.WorkedMinutes
		result.IssueCount += len(summary.Issues)
		sum = sum.add(summary.Minutes)
	}

	g := cfg.MonthlyRoundMinutes
	result.WorkedMinutes = RoundMinutes(result.DayMinutes, g)
	result.Minutes = Minutes{
		Regular:        RoundMinutes(sum.Regular, g),
		OvertimeNormal: RoundMinutes(sum.OvertimeNormal, g),
		OvertimeLate:   RoundMinutes(sum.OvertimeLate, g),
		Night:          RoundMinutes(sum.Night, g),
		Holiday:        RoundMinutes(sum.Holiday, g),
	}
	result.Wages = price(result.Minutes, rate, cfg)
	if employee.WageType == model.WageMonthly {
		result.Wages.Regular = employee.MonthlySalary.Round(cfg.CurrencyScale)
	}
	result.Gross = result.Wages.Total()

	result.TotalDeductions = decimal.Zero
	for _, d := range cfg.Deductions {
		amount := d.Amount
		if !d.Rate.IsZero() {
			amount = result.Gross.Mul(d.Rate)
		}
		amount = amount.Round(cfg.CurrencyScale)
		result.Deductions = append(result.Deductions, DeductionLine{Name: d.Name, Amount: amount})
		result.TotalDeductions = result.TotalDeductions.Add(amount)
	}
	result.Net = result.Gross.Sub(result.TotalDeductions)
	return result, nil
}

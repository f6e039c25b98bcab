// Package payroll turns an employee's committed punch log into work-time and
// wage figures. Every function here is pure: no I/O, no clocks, no shared
// state, so the same events and Config always give the same result.
package payroll

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"punchclock.service/internal/core/model"
)

// ClockRange is a daily wall-clock range given as offsets from local
// midnight. An End at or before Start wraps past midnight.
type ClockRange struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// ParseClockRange reads "HH:MM-HH:MM". An empty string is the zero range.
func ParseClockRange(s string) (ClockRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ClockRange{}, nil
	}
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return ClockRange{}, fmt.Errorf("clock range %q: want HH:MM-HH:MM", s)
	}
	start, err := parseClock(from)
	if err != nil {
		return ClockRange{}, fmt.Errorf("clock range %q: %w", s, err)
	}
	end, err := parseClock(to)
	if err != nil {
		return ClockRange{}, fmt.Errorf("clock range %q: %w", s, err)
	}
	return ClockRange{Start: start, End: end}, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (r ClockRange) IsZero() bool { return r.Start == r.End }

func (r ClockRange) wraps() bool { return r.End <= r.Start }

// Minutes is the length of the range.
func (r ClockRange) Minutes() int {
	if r.IsZero() {
		return 0
	}
	end := r.End
	if r.wraps() {
		end += 24 * time.Hour
	}
	return int((end - r.Start) / time.Minute)
}

// On returns the instance of r that starts on the calendar date of day.
func (r ClockRange) On(day time.Time) (time.Time, time.Time) {
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	from := midnight.Add(r.Start)
	if r.wraps() {
		return from, midnight.AddDate(0, 0, 1).Add(r.End)
	}
	return from, midnight.Add(r.End)
}

func (r ClockRange) String() string {
	return fmt.Sprintf("%s-%s", clock(r.Start), clock(r.End))
}

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

// Deduction is taken from gross pay. A non-zero Rate is a fraction of
// gross; otherwise Amount is taken as is.
type Deduction struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
	Rate   decimal.Decimal `json:"rate"`
}

// Config pins every rule the engine applies. Rates are multipliers of the
// hourly rate; NightRate is a premium paid on top of the minute's other
// category.
type Config struct {
	DailyRoundMinutes        int
	MonthlyRoundMinutes      int
	StandardWindow           ClockRange
	BreakWindow              ClockRange
	OvertimeThresholdMinutes int
	OvertimeRateNormal       decimal.Decimal
	OvertimeRateLate         decimal.Decimal
	NightWindow              ClockRange
	NightRate                decimal.Decimal
	HolidayRate              decimal.Decimal
	StandardMonthlyMinutes   int
	// Holidays are business dates formatted as 2006-01-02.
	Holidays      []string
	Deductions    []Deduction
	Location      *time.Location
	DayBoundary   time.Duration
	CurrencyScale int32
}

// DefaultConfig is a common Monday-to-Friday 09:00-18:00 setup.
func DefaultConfig() Config {
	return Config{
		DailyRoundMinutes:        15,
		MonthlyRoundMinutes:      30,
		StandardWindow:           ClockRange{Start: 9 * time.Hour, End: 18 * time.Hour},
		BreakWindow:              ClockRange{Start: 12 * time.Hour, End: 13 * time.Hour},
		OvertimeThresholdMinutes: 120,
		OvertimeRateNormal:       decimal.RequireFromString("1.25"),
		OvertimeRateLate:         decimal.RequireFromString("1.5"),
		NightWindow:              ClockRange{Start: 22 * time.Hour, End: 5 * time.Hour},
		NightRate:                decimal.RequireFromString("0.25"),
		HolidayRate:              decimal.RequireFromString("1.35"),
		StandardMonthlyMinutes:   160 * 60,
		Location:                 time.UTC,
		CurrencyScale:            2,
	}
}

// DayRule is the business-day rule shared with the punch state machine.
func (c Config) DayRule() model.DayRule {
	return model.DayRule{Location: c.Location, Boundary: c.DayBoundary}
}

// IsHoliday reports whether the business day is flagged as a holiday.
func (c Config) IsHoliday(day time.Time) bool {
	date := day.Format(time.DateOnly)
	for _, h := range c.Holidays {
		if h == date {
			return true
		}
	}
	return false
}

// StandardMinutes is the standard daily span: the standard window less the
// part of it covered by the break window.
func (c Config) StandardMinutes() int {
	return c.StandardWindow.Minutes() - overlapMinutes(c.StandardWindow, c.BreakWindow)
}

// Validate checks the rules that apply to every employee.
func (c Config) Validate() error {
	switch {
	case c.DailyRoundMinutes <= 0:
		return fmt.Errorf("%w: daily_round_minutes must be positive", model.ErrMissingConfig)
	case c.MonthlyRoundMinutes <= 0:
		return fmt.Errorf("%w: monthly_round_minutes must be positive", model.ErrMissingConfig)
	case c.StandardWindow.IsZero():
		return fmt.Errorf("%w: standard_business_window is empty", model.ErrMissingConfig)
	case !c.OvertimeRateNormal.IsPositive():
		return fmt.Errorf("%w: overtime_rate_normal must be positive", model.ErrMissingConfig)
	case !c.OvertimeRateLate.IsPositive():
		return fmt.Errorf("%w: overtime_rate_late must be positive", model.ErrMissingConfig)
	case !c.HolidayRate.IsPositive():
		return fmt.Errorf("%w: holiday_rate must be positive", model.ErrMissingConfig)
	case c.NightRate.IsNegative():
		return fmt.Errorf("%w: night_rate must not be negative", model.ErrMissingConfig)
	case c.OvertimeThresholdMinutes < 0:
		return fmt.Errorf("%w: overtime_threshold must not be negative", model.ErrMissingConfig)
	case c.CurrencyScale < 0:
		return fmt.Errorf("%w: currency scale must not be negative", model.ErrMissingConfig)
	}
	for _, h := range c.Holidays {
		if _, err := time.Parse(time.DateOnly, h); err != nil {
			return fmt.Errorf("%w: holiday %q: %v", model.ErrMissingConfig, h, err)
		}
	}
	return nil
}

// HourlyRate derives the rate every category is paid against.
func (c Config) HourlyRate(e model.Employee) (decimal.Decimal, error) {
	switch e.WageType {
	case model.WageHourly:
		if !e.HourlyRate.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: employee %s has no hourly rate", model.ErrMissingConfig, e.ID)
		}
		return e.HourlyRate, nil
	case model.WageMonthly:
		if !e.MonthlySalary.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: employee %s has no monthly salary", model.ErrMissingConfig, e.ID)
		}
		if c.StandardMonthlyMinutes <= 0 {
			return decimal.Zero, fmt.Errorf("%w: standard_monthly_minutes must be positive", model.ErrMissingConfig)
		}
		return e.MonthlySalary.Mul(sixty).Div(decimal.NewFromInt(int64(c.StandardMonthlyMinutes))), nil
	}
	return decimal.Zero, fmt.Errorf("%w: employee %s has wage type %q", model.ErrMissingConfig, e.ID, e.WageType)
}

// overlapMinutes is the overlap of two clock ranges over one day, counting
// wrapped instances on either side.
func overlapMinutes(a, b ClockRange) int {
	if a.IsZero() || b.IsZero() {
		return 0
	}
	aFrom, aTo := a.Start, a.Start+time.Duration(a.Minutes())*time.Minute
	total := time.Duration(0)
	for _, shift := range []time.Duration{-24 * time.Hour, 0, 24 * time.Hour} {
		bFrom := b.Start + shift
		bTo := bFrom + time.Duration(b.Minutes())*time.Minute
		total += max(0, min(aTo, bTo)-max(aFrom, bFrom))
	}
	return int(total / time.Minute)
}

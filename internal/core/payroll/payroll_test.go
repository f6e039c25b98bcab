package payroll_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"punchclock.service/internal/core/model"
	"punchclock.service/internal/core/payroll"
)

var monday = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func hourly(id string) model.Employee {
	return model.Employee{ID: id, Active: true, WageType: model.WageHourly, HourlyRate: decimal.NewFromInt(1000)}
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msg ...interface{}) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s %v", want, got, msg)
}

// day builds a punch log from "HH:MM KIND" entries relative to day.
func day(emp string, d time.Time, taps ...string) []model.PunchEvent {
	var out []model.PunchEvent
	for i, tap := range taps {
		var hh, mm int
		var kind string
		if _, err := fmt.Sscanf(tap, "%d:%d %s", &hh, &mm, &kind); err != nil {
			panic(err)
		}
		ts := d.Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute)
		out = append(out, model.PunchEvent{
			ID:         fmt.Sprintf("%s-%s-%d", emp, d.Format("0102"), i),
			EmployeeID: emp,
			Kind:       model.PunchKind(kind),
			Timestamp:  ts,
		})
	}
	return out
}

func TestRoundMinutes(t *testing.T) {
	tests := []struct {
		m, g, want int
	}{
		{532, 15, 540},
		{9560, 30, 9570},
		{526, 15, 525},
		{527, 15, 525},
		{480, 15, 480},
		{0, 15, 0},
		{44, 30, 30},
		{45, 30, 60},
		{481, 1, 481},
		{17, 0, 17},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, payroll.RoundMinutes(tt.m, tt.g), "RoundMinutes(%d, %d)", tt.m, tt.g)
	}
}

func TestStandardDay(t *testing.T) {
	events := day("emp-1", monday, "09:00 IN", "12:00 OUTSIDE", "13:00 RETURN", "18:00 OUT")

	s, err := payroll.CalculateDay(monday, events, hourly("emp-1"), payroll.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, "2025-03-03", s.Date)
	assert.Equal(t, 480, s.RawMinutes)
	assert.Equal(t, 480, s.WorkedMinutes)
	assert.Equal(t, payroll.Minutes{Regular: 480}, s.Minutes)
	assert.Empty(t, s.Issues)
	assertMoney(t, "8000", s.Wages.Regular)
	assertMoney(t, "8000", s.Total)
}

func TestDailyRoundingAppliesToRawMinutes(t *testing.T) {
	events := day("emp-1", monday, "09:00 IN", "17:52 OUT")

	s, err := payroll.CalculateDay(monday, events, hourly("emp-1"), payroll.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 532, s.RawMinutes)
	assert.Equal(t, 540, s.WorkedMinutes)
	assert.Equal(t, 480, s.Minutes.Regular)
	assert.Equal(t, 60, s.Minutes.OvertimeNormal)
}

func TestOvertimeTiersAndNightStack(t *testing.T) {
	events := day("emp-1", monday, "09:00 IN", "22:30 OUT")

	s, err := payroll.CalculateDay(monday, events, hourly("emp-1"), payroll.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 810, s.WorkedMinutes)
	assert.Equal(t, payroll.Minutes{Regular: 480, OvertimeNormal: 120, OvertimeLate: 210, Night: 30}, s.Minutes)
	assertMoney(t, "8000", s.Wages.Regular)
	assertMoney(t, "2500", s.Wages.OvertimeNormal)
	assertMoney(t, "5250", s.Wages.OvertimeLate)
	assertMoney(t, "125", s.Wages.Night)
	assertMoney(t, "15875", s.Total)
}

func TestRegularMinutesFollowTheWindow(t *testing.T) {
	noNight := payroll.DefaultConfig()
	noNight.NightWindow = payroll.ClockRange{}

	tests := []struct {
		name   string
		taps   []string
		worked int
		want   payroll.Minutes
	}{
		{"evening only", []string{"19:00 IN", "23:00 OUT"}, 240, payroll.Minutes{OvertimeNormal: 120, OvertimeLate: 120}},
		{"early start", []string{"07:00 IN", "12:00 OUTSIDE", "13:00 RETURN", "16:00 OUT"}, 480, payroll.Minutes{Regular: 360, OvertimeNormal: 120}},
		{"break off the break window", []string{"09:00 IN", "12:30 OUTSIDE", "13:30 RETURN", "18:00 OUT"}, 480, payroll.Minutes{Regular: 450, OvertimeNormal: 30}},
		{"short day inside", []string{"10:00 IN", "12:00 OUT"}, 120, payroll.Minutes{Regular: 120}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := payroll.CalculateDay(monday, day("emp-1", monday, tt.taps...), hourly("emp-1"), noNight)
			require.NoError(t, err)
			assert.Equal(t, tt.worked, s.WorkedMinutes)
			assert.Equal(t, tt.want, s.Minutes)
		})
	}

	s, err := payroll.CalculateDay(monday, day("emp-1", monday, "19:00 IN", "23:00 OUT"), hourly("emp-1"), noNight)
	require.NoError(t, err)
	assertMoney(t, "0", s.Wages.Regular)
	assertMoney(t, "2500", s.Wages.OvertimeNormal)
	assertMoney(t, "3000", s.Wages.OvertimeLate)
}

func TestHolidayReplacesRegularAndOvertime(t *testing.T) {
	cfg := payroll.DefaultConfig()
	cfg.Holidays = []string{"2025-03-03"}
	events := day("emp-1", monday, "20:00 IN", "23:00 OUT")

	s, err := payroll.CalculateDay(monday, events, hourly("emp-1"), cfg)
	require.NoError(t, err)
	assert.True(t, s.Holiday)
	assert.Equal(t, payroll.Minutes{Holiday: 180, Night: 60}, s.Minutes)
	assertMoney(t, "4050", s.Wages.Holiday)
	assertMoney(t, "250", s.Wages.Night)
	assertMoney(t, "0", s.Wages.Regular)
}

func TestShiftAcrossMidnightWithDayBoundary(t *testing.T) {
	cfg := payroll.DefaultConfig()
	cfg.DayBoundary = 5 * time.Hour
	events := day("emp-1", monday, "21:00 IN", "26:00 OUT")

	s, err := payroll.CalculateDay(monday, events, hourly("emp-1"), cfg)
	require.NoError(t, err)
	assert.Empty(t, s.Issues)
	assert.Equal(t, 300, s.WorkedMinutes)
	assert.Equal(t, payroll.Minutes{OvertimeNormal: 120, OvertimeLate: 180, Night: 240}, s.Minutes)

	cfg.DayBoundary = 0
	s, err = payroll.CalculateDay(monday, events, hourly("emp-1"), cfg)
	require.NoError(t, err)
	assert.Zero(t, s.WorkedMinutes)
	require.Len(t, s.Issues, 1)
	assert.Equal(t, payroll.IssueUnterminatedShift, s.Issues[0].Kind)
}

func TestUnterminatedSpansAreReportedNotEstimated(t *testing.T) {
	tests := []struct {
		name   string
		taps   []string
		worked int
		issue  payroll.IssueKind
		at     string
	}{
		{"open shift", []string{"09:00 IN", "12:00 OUT", "13:00 IN"}, 180, payroll.IssueUnterminatedShift, "13:00"},
		{"open break", []string{"09:00 IN", "12:00 OUTSIDE", "18:00 OUT"}, 0, payroll.IssueUnterminatedBreak, "12:00"},
		{"stray return", []string{"08:00 RETURN", "09:00 IN", "10:00 OUT"}, 60, payroll.IssueUnexpectedPunch, "08:00"},
		{"stray out", []string{"09:00 IN", "10:00 OUT", "11:00 OUT"}, 60, payroll.IssueUnexpectedPunch, "11:00"},
		{"in twice", []string{"09:00 IN", "10:00 IN", "11:00 OUT"}, 60, payroll.IssueUnterminatedShift, "09:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := payroll.CalculateDay(monday, day("emp-1", monday, tt.taps...), hourly("emp-1"), payroll.DefaultConfig())
			require.NoError(t, err)
			assert.Equal(t, tt.worked, s.WorkedMinutes)
			require.Len(t, s.Issues, 1)
			assert.Equal(t, tt.issue, s.Issues[0].Kind)
			assert.Equal(t, tt.at, s.Issues[0].At.Format("15:04"))
		})
	}
}

func TestCalculateDayIgnoresOtherDays(t *testing.T) {
	events := append(day("emp-1", monday, "09:00 IN", "10:00 OUT"), day("emp-1", monday.AddDate(0, 0, 1), "09:00 IN")...)

	s, err := payroll.CalculateDay(monday.Add(15*time.Hour), events, hourly("emp-1"), payroll.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 60, s.WorkedMinutes)
	assert.Empty(t, s.Issues)
}

func TestMonthHourlyWithDeductions(t *testing.T) {
	cfg := payroll.DefaultConfig()
	cfg.Deductions = []payroll.Deduction{
		{Name: "union", Amount: decimal.NewFromInt(1000)},
		{Name: "tax", Rate: decimal.RequireFromString("0.1")},
	}
	var events []model.PunchEvent
	for i := 0; i < 20; i++ {
		events = append(events, day("emp-1", monday.AddDate(0, 0, i), "09:00 IN", "12:00 OUTSIDE", "13:00 RETURN", "18:00 OUT")...)
	}
	// Outside the period.
	events = append(events, day("emp-1", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), "09:00 IN", "18:00 OUT")...)

	period, err := payroll.ParsePeriod("2025-03")
	require.NoError(t, err)
	r, err := payroll.CalculateMonth(hourly("emp-1"), events, period, cfg)
	require.NoError(t, err)

	assert.Equal(t, "2025-03", r.Period)
	assert.Len(t, r.Days, 20)
	assert.Equal(t, 9600, r.DayMinutes)
	assert.Equal(t, 9600, r.WorkedMinutes)
	assert.Equal(t, payroll.Minutes{Regular: 9600}, r.Minutes)
	assertMoney(t, "160000", r.Wages.Regular)
	assertMoney(t, "160000", r.Gross)
	require.Len(t, r.Deductions, 2)
	assertMoney(t, "1000", r.Deductions[0].Amount)
	assertMoney(t, "16000", r.Deductions[1].Amount)
	assertMoney(t, "17000", r.TotalDeductions)
	assertMoney(t, "143000", r.Net)
}

func TestMonthRoundsAggregatesNotDays(t *testing.T) {
	var events []model.PunchEvent
	for i := 0; i < 3; i++ {
		events = append(events, day("emp-1", monday.AddDate(0, 0, i), "09:00 IN", "12:00 OUTSIDE", "13:00 RETURN", "18:15 OUT")...)
	}

	r, err := payroll.CalculateMonth(hourly("emp-1"), events, payroll.Period{Year: 2025, Month: time.March}, payroll.DefaultConfig())
	require.NoError(t, err)
	for _, d := range r.Days {
		assert.Equal(t, 15, d.Minutes.OvertimeNormal)
	}
	assert.Equal(t, 1485, r.DayMinutes)
	assert.Equal(t, 1500, r.WorkedMinutes)
	assert.Equal(t, 1440, r.Minutes.Regular)
	assert.Equal(t, 60, r.Minutes.OvertimeNormal)
	assertMoney(t, "1250", r.Wages.OvertimeNormal)
}

func TestMonthMonthlySalaryIsBase(t *testing.T) {
	emp := model.Employee{ID: "emp-2", Active: true, WageType: model.WageMonthly, MonthlySalary: decimal.NewFromInt(320000)}
	events := day("emp-2", monday, "09:00 IN", "12:00 OUTSIDE", "13:00 RETURN", "19:00 OUT")

	r, err := payroll.CalculateMonth(emp, events, payroll.Period{Year: 2025, Month: time.March}, payroll.DefaultConfig())
	require.NoError(t, err)
	assertMoney(t, "2000", r.HourlyRate)
	assert.Equal(t, payroll.Minutes{Regular: 480, OvertimeNormal: 60}, r.Minutes)
	assertMoney(t, "320000", r.Wages.Regular)
	assertMoney(t, "2500", r.Wages.OvertimeNormal)
	assertMoney(t, "322500", r.Gross)
	assertMoney(t, "322500", r.Net)

	empty, err := payroll.CalculateMonth(emp, nil, payroll.Period{Year: 2025, Month: time.March}, payroll.DefaultConfig())
	require.NoError(t, err)
	assertMoney(t, "320000", empty.Gross, "salary is paid regardless of minutes")
}

func TestMissingConfiguration(t *testing.T) {
	period := payroll.Period{Year: 2025, Month: time.March}
	tests := []struct {
		name   string
		emp    model.Employee
		mutate func(*payroll.Config)
	}{
		{"no daily granularity", hourly("e"), func(c *payroll.Config) { c.DailyRoundMinutes = 0 }},
		{"no monthly granularity", hourly("e"), func(c *payroll.Config) { c.MonthlyRoundMinutes = 0 }},
		{"no standard window", hourly("e"), func(c *payroll.Config) { c.StandardWindow = payroll.ClockRange{} }},
		{"no overtime rate", hourly("e"), func(c *payroll.Config) { c.OvertimeRateLate = decimal.Zero }},
		{"bad holiday", hourly("e"), func(c *payroll.Config) { c.Holidays = []string{"03/03/2025"} }},
		{"no hourly rate", model.Employee{ID: "e", WageType: model.WageHourly}, func(*payroll.Config) {}},
		{"no monthly base", model.Employee{ID: "e", WageType: model.WageMonthly, MonthlySalary: decimal.NewFromInt(1)}, func(c *payroll.Config) { c.StandardMonthlyMinutes = 0 }},
		{"no wage type", model.Employee{ID: "e"}, func(*payroll.Config) {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := payroll.DefaultConfig()
			tt.mutate(&cfg)
			_, err := payroll.CalculateMonth(tt.emp, nil, period, cfg)
			assert.ErrorIs(t, err, model.ErrMissingConfig)
			_, err = payroll.CalculateDay(monday, nil, tt.emp, cfg)
			assert.ErrorIs(t, err, model.ErrMissingConfig)
		})
	}
}

func TestCalculationIsPure(t *testing.T) {
	cfg := payroll.DefaultConfig()
	cfg.Holidays = []string{"2025-03-05"}
	cfg.Deductions = []payroll.Deduction{{Name: "tax", Rate: decimal.RequireFromString("0.0815")}}

	var events []model.PunchEvent
	for i := 6; i >= 0; i-- {
		events = append(events, day("emp-1", monday.AddDate(0, 0, i), "18:00 OUT", "08:47 IN", "12:01 OUTSIDE", "12:58 RETURN")...)
	}
	events = append(events, day("emp-1", monday.AddDate(0, 0, 8), "23:00 IN")...)
	snapshot := append([]model.PunchEvent(nil), events...)

	period := payroll.Period{Year: 2025, Month: time.March}
	first, err := payroll.CalculateMonth(hourly("emp-1"), events, period, cfg)
	require.NoError(t, err)
	second, err := payroll.CalculateMonth(hourly("emp-1"), events, period, cfg)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, snapshot, events, "inputs are not reordered")
	assert.Equal(t, 1, first.IssueCount)
	assert.Len(t, first.Days, 8)
}

func TestCalculateBatchIsolatesFailures(t *testing.T) {
	period := payroll.Period{Year: 2025, Month: time.March}
	jobs := []payroll.EmployeePeriod{
		{Employee: hourly("emp-1"), Events: day("emp-1", monday, "09:00 IN", "18:00 OUT"), Period: period},
		{Employee: model.Employee{ID: "emp-2", WageType: model.WageHourly}, Events: day("emp-2", monday, "09:00 IN", "18:00 OUT"), Period: period},
		{Employee: hourly("emp-3"), Events: day("emp-3", monday, "09:00 IN"), Period: period},
	}

	results := payroll.CalculateBatch(context.Background(), jobs, payroll.DefaultConfig(), 2)
	require.Len(t, results, 3)

	assert.Equal(t, "emp-1", results[0].EmployeeID)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 540, results[0].Result.WorkedMinutes)

	assert.Equal(t, "emp-2", results[1].EmployeeID)
	assert.ErrorIs(t, results[1].Err, model.ErrMissingConfig)

	require.NoError(t, results[2].Err)
	assert.Equal(t, 1, results[2].Result.IssueCount)
}

func TestCalculateBatchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := payroll.CalculateBatch(ctx, []payroll.EmployeePeriod{{Employee: hourly("emp-1")}}, payroll.DefaultConfig(), 1)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
}

func TestClockRanges(t *testing.T) {
	r, err := payroll.ParseClockRange("22:00-05:00")
	require.NoError(t, err)
	assert.Equal(t, 420, r.Minutes())
	assert.Equal(t, "22:00-05:00", r.String())

	from, to := r.On(monday)
	assert.Equal(t, monday.Add(22*time.Hour), from)
	assert.Equal(t, monday.Add(29*time.Hour), to)

	_, err = payroll.ParseClockRange("9-18")
	assert.Error(t, err)
	empty, err := payroll.ParseClockRange("")
	require.NoError(t, err)
	assert.True(t, empty.IsZero())

	cfg := payroll.DefaultConfig()
	assert.Equal(t, 480, cfg.StandardMinutes())
	cfg.StandardWindow = payroll.ClockRange{Start: 22 * time.Hour, End: 6 * time.Hour}
	cfg.BreakWindow = payroll.ClockRange{Start: time.Hour, End: 2 * time.Hour}
	assert.Equal(t, 420, cfg.StandardMinutes())
}

func TestPeriodBounds(t *testing.T) {
	p, err := payroll.ParsePeriod("2025-12")
	require.NoError(t, err)
	from, to := p.Bounds(model.DayRule{Boundary: 5 * time.Hour})
	assert.Equal(t, time.Date(2025, 12, 1, 5, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 1, 1, 5, 0, 0, 0, time.UTC), to)

	_, err = payroll.ParsePeriod("2025-13")
	assert.Error(t, err)
}

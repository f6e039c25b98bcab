package payroll

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"punchclock.service/internal/core/model"
)

var (
	sixty = decimal.NewFromInt(60)
	one   = decimal.NewFromInt(1)
)

// IssueKind names a data condition the engine refused to estimate.
type IssueKind string

const (
	IssueUnterminatedShift IssueKind = "UNTERMINATED_SHIFT"
	IssueUnterminatedBreak IssueKind = "UNTERMINATED_BREAK"
	IssueUnexpectedPunch   IssueKind = "UNEXPECTED_PUNCH"
)

// Issue points at the punch that left a span open or out of place. The
// affected attendance span is left out of the day's minutes.
type Issue struct {
	Kind   IssueKind       `json:"kind"`
	Punch  model.PunchKind `json:"punch"`
	At     time.Time       `json:"at"`
	Detail string          `json:"detail"`
}

// Minutes splits worked minutes by category. Night minutes overlap the
// other categories; the rest partition WorkedMinutes.
type Minutes struct {
	Regular        int `json:"regular"`
	OvertimeNormal int `json:"overtimeNormal"`
	OvertimeLate   int `json:"overtimeLate"`
	Night          int `json:"night"`
	Holiday        int `json:"holiday"`
}

func (m Minutes) add(o Minutes) Minutes {
	return Minutes{
		Regular:        m.Regular + o.Regular,
		OvertimeNormal: m.OvertimeNormal + o.OvertimeNormal,
		OvertimeLate:   m.OvertimeLate + o.OvertimeLate,
		Night:          m.Night + o.Night,
		Holiday:        m.Holiday + o.Holiday,
	}
}

// Wages is the money owed per category.
type Wages struct {
	Regular        decimal.Decimal `json:"regular"`
	OvertimeNormal decimal.Decimal `json:"overtimeNormal"`
	OvertimeLate   decimal.Decimal `json:"overtimeLate"`
	Night          decimal.Decimal `json:"night"`
	Holiday        decimal.Decimal `json:"holiday"`
}

// Premiums is everything paid on top of regular time.
func (w Wages) Premiums() decimal.Decimal {
	return w.OvertimeNormal.Add(w.OvertimeLate).Add(w.Night).Add(w.Holiday)
}

func (w Wages) Total() decimal.Decimal { return w.Regular.Add(w.Premiums()) }

type DailyWorkSummary struct {
	EmployeeID    string          `json:"employeeId"`
	Date          string          `json:"date"`
	Holiday       bool            `json:"holiday"`
	RawMinutes    int             `json:"rawMinutes"`
	WorkedMinutes int             `json:"workedMinutes"`
	Minutes       Minutes         `json:"minutes"`
	Wages         Wages           `json:"wages"`
	Total         decimal.Decimal `json:"total"`
	Issues        []Issue         `json:"issues,omitempty"`
}

type interval struct{ from, to time.Time }

func (i interval) duration() time.Duration { return i.to.Sub(i.from) }

func (i interval) intersect(o interval) (interval, bool) {
	if o.from.After(i.from) {
		i.from = o.from
	}
	if o.to.Before(i.to) {
		i.to = o.to
	}
	return i, i.to.After(i.from)
}

func (i interval) overlap(o interval) time.Duration {
	if seg, ok := i.intersect(o); ok {
		return seg.duration()
	}
	return 0
}

// instances lists the occurrences of r that can touch the business day
// starting on day, including a shift running past the day boundary.
func instances(r ClockRange, day time.Time) []interval {
	if r.IsZero() {
		return nil
	}
	out := make([]interval, 0, 4)
	for offset := -1; offset <= 2; offset++ {
		from, to := r.On(day.AddDate(0, 0, offset))
		out = append(out, interval{from, to})
	}
	return out
}

// shift is one closed IN..OUT span and the breaks taken inside it.
type shift struct {
	gross  interval
	breaks []interval
}

// presence is the gross span with its breaks cut out.
func (s shift) presence() []interval {
	var out []interval
	cursor := s.gross.from
	for _, b := range s.breaks {
		if b.from.After(cursor) {
			out = append(out, interval{cursor, b.from})
		}
		if b.to.After(cursor) {
			cursor = b.to
		}
	}
	if s.gross.to.After(cursor) {
		out = append(out, interval{cursor, s.gross.to})
	}
	return out
}

// pairSpans walks one business day's punches in timestamp order. Only
// shifts closed by an OUT with no open break count towards the day.
func pairSpans(events []model.PunchEvent) ([]shift, []Issue) {
	var (
		shifts     []shift
		issues     []Issue
		open       *model.PunchEvent
		breakStart *model.PunchEvent
		breaks     []interval
	)
	unexpected := func(ev model.PunchEvent, detail string) {
		issues = append(issues, Issue{Kind: IssueUnexpectedPunch, Punch: ev.Kind, At: ev.Timestamp, Detail: detail})
	}

	for i := range events {
		ev := events[i]
		switch ev.Kind {
		case model.KindIn:
			if open != nil {
				issues = append(issues, Issue{Kind: IssueUnterminatedShift, Punch: open.Kind, At: open.Timestamp, Detail: "IN without OUT before next IN"})
			}
			open, breakStart, breaks = &events[i], nil, nil
		case model.KindOutside:
			switch {
			case open == nil:
				unexpected(ev, "OUTSIDE outside a shift")
			case breakStart != nil:
				unexpected(ev, "OUTSIDE during a break")
			default:
				breakStart = &events[i]
			}
		case model.KindReturn:
			if open == nil || breakStart == nil {
				unexpected(ev, "RETURN without OUTSIDE")
				continue
			}
			breaks = append(breaks, interval{breakStart.Timestamp, ev.Timestamp})
			breakStart = nil
		case model.KindOut:
			switch {
			case open == nil:
				unexpected(ev, "OUT without IN")
			case breakStart != nil:
				issues = append(issues, Issue{Kind: IssueUnterminatedBreak, Punch: breakStart.Kind, At: breakStart.Timestamp, Detail: "OUTSIDE without RETURN before OUT"})
			default:
				shifts = append(shifts, shift{gross: interval{open.Timestamp, ev.Timestamp}, breaks: breaks})
			}
			open, breakStart, breaks = nil, nil, nil
		default:
			unexpected(ev, fmt.Sprintf("unknown punch kind %q", ev.Kind))
		}
	}
	if breakStart != nil {
		issues = append(issues, Issue{Kind: IssueUnterminatedBreak, Punch: breakStart.Kind, At: breakStart.Timestamp, Detail: "OUTSIDE without RETURN"})
	} else if open != nil {
		issues = append(issues, Issue{Kind: IssueUnterminatedShift, Punch: open.Kind, At: open.Timestamp, Detail: "IN without OUT"})
	}
	return shifts, issues
}

// sortedDay copies the events that belong to day and orders them.
func sortedDay(day time.Time, events []model.PunchEvent, rule model.DayRule) []model.PunchEvent {
	var out []model.PunchEvent
	for _, ev := range events {
		if rule.BusinessDay(ev.Timestamp).Equal(day) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// CalculateDay computes one business day for employee. Events from other
// days are ignored.
func CalculateDay(day time.Time, events []model.PunchEvent, employee model.Employee, cfg Config) (DailyWorkSummary, error) {
	if err := cfg.Validate(); err != nil {
		return DailyWorkSummary{}, err
	}
	rate, err := cfg.HourlyRate(employee)
	if err != nil {
		return DailyWorkSummary{}, err
	}
	rule := cfg.DayRule()
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, rule.Loc())
	return calculateDay(day, sortedDay(day, events, rule), employee, rate, cfg), nil
}

func calculateDay(day time.Time, events []model.PunchEvent, employee model.Employee, rate decimal.Decimal, cfg Config) DailyWorkSummary {
	shifts, issues := pairSpans(events)

	var worked, standard, night time.Duration
	for _, s := range shifts {
		for _, p := range s.presence() {
			worked += p.duration()
			standard += standardOverlap(p, day, cfg)
			night += nightOverlap(p, day, cfg.NightWindow)
		}
	}

	summary := DailyWorkSummary{
		EmployeeID: employee.ID,
		Date:       day.Format(time.DateOnly),
		Holiday:    cfg.IsHoliday(day),
		RawMinutes: int(worked / time.Minute),
		Issues:     issues,
	}
	summary.WorkedMinutes = RoundMinutes(summary.RawMinutes, cfg.DailyRoundMinutes)
	inWindow := RoundMinutes(int(standard/time.Minute), cfg.DailyRoundMinutes)
	summary.Minutes = classify(summary.WorkedMinutes, inWindow, int(night/time.Minute), summary.Holiday, cfg)
	summary.Wages = price(summary.Minutes, rate, cfg)
	summary.Total = summary.Wages.Total()
	return summary
}

// classify splits rounded worked minutes. Only minutes worked inside the
// standard window and outside the break window are regular, up to the
// standard daily span; everything else is overtime. Holiday minutes replace
// the regular/overtime split; night minutes stack on either.
func classify(worked, inWindow, night int, holiday bool, cfg Config) Minutes {
	m := Minutes{Night: min(night, worked)}
	if holiday {
		m.Holiday = worked
		return m
	}
	m.Regular = min(inWindow, worked, cfg.StandardMinutes())
	overtime := worked - m.Regular
	m.OvertimeNormal = overtime
	if cfg.OvertimeThresholdMinutes > 0 && overtime > cfg.OvertimeThresholdMinutes {
		m.OvertimeNormal = cfg.OvertimeThresholdMinutes
		m.OvertimeLate = overtime - cfg.OvertimeThresholdMinutes
	}
	return m
}

func price(m Minutes, rate decimal.Decimal, cfg Config) Wages {
	return Wages{
		Regular:        wage(m.Regular, rate, one, cfg.CurrencyScale),
		OvertimeNormal: wage(m.OvertimeNormal, rate, cfg.OvertimeRateNormal, cfg.CurrencyScale),
		OvertimeLate:   wage(m.OvertimeLate, rate, cfg.OvertimeRateLate, cfg.CurrencyScale),
		Night:          wage(m.Night, rate, cfg.NightRate, cfg.CurrencyScale),
		Holiday:        wage(m.Holiday, rate, cfg.HolidayRate, cfg.CurrencyScale),
	}
}

// wage is minutes/60 × rate × multiplier, rounded half up to scale.
func wage(minutes int, rate, multiplier decimal.Decimal, scale int32) decimal.Decimal {
	return decimal.NewFromInt(int64(minutes)).Mul(rate).Mul(multiplier).Div(sixty).Round(scale)
}

// standardOverlap is the part of p inside the standard window and outside
// the break window.
func standardOverlap(p interval, day time.Time, cfg Config) time.Duration {
	var total time.Duration
	for _, w := range instances(cfg.StandardWindow, day) {
		seg, ok := p.intersect(w)
		if !ok {
			continue
		}
		total += seg.duration()
		for _, b := range instances(cfg.BreakWindow, day) {
			total -= seg.overlap(b)
		}
	}
	return total
}

// nightOverlap is the part of p inside any night window instance around day.
func nightOverlap(p interval, day time.Time, night ClockRange) time.Duration {
	var total time.Duration
	for _, w := range instances(night, day) {
		total += p.overlap(w)
	}
	return total
}

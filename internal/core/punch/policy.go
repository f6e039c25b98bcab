package punch

import (
	"fmt"
	"time"

	"punchclock.service/internal/core/model"
)

const DefaultDebounceWindow = 3 * time.Second

// Policy holds the sequence rules applied to every punch.
type Policy struct {
	// DebounceWindow rejects a repeated kind arriving this soon after the
	// previous accepted punch.
	DebounceWindow time.Duration
	// AllowDirectOut permits IN -> OUT without a break.
	AllowDirectOut bool
	// AllowRepeatBreaks permits RETURN -> OUTSIDE.
	AllowRepeatBreaks bool
	// Day decides when the per-day cursor resets.
	Day model.DayRule
}

func DefaultPolicy() Policy {
	return Policy{
		DebounceWindow:    DefaultDebounceWindow,
		AllowDirectOut:    true,
		AllowRepeatBreaks: true,
		Day:               model.DayRule{Location: time.UTC},
	}
}

// Next lists the kinds accepted after prev. A nil prev is the start of a
// business day.
func (p Policy) Next(prev *model.PunchKind) []model.PunchKind {
	if prev == nil {
		return []model.PunchKind{model.KindIn}
	}
	switch *prev {
	case model.KindOut:
		return []model.PunchKind{model.KindIn}
	case model.KindIn:
		if p.AllowDirectOut {
			return []model.PunchKind{model.KindOutside, model.KindOut}
		}
		return []model.PunchKind{model.KindOutside}
	case model.KindOutside:
		return []model.PunchKind{model.KindReturn}
	case model.KindReturn:
		if p.AllowRepeatBreaks {
			return []model.PunchKind{model.KindOutside, model.KindOut}
		}
		return []model.PunchKind{model.KindOut}
	}
	return nil
}

// Allows reports whether next may follow prev.
func (p Policy) Allows(prev *model.PunchKind, next model.PunchKind) bool {
	for _, k := range p.Next(prev) {
		if k == next {
			return true
		}
	}
	return false
}

// Check validates p against the last accepted punch of the same employee.
// last is nil when the employee has no history.
func (p Policy) Check(last *model.PunchEvent, next model.Punch) error {
	if !next.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", model.ErrInvalidTransition, next.Kind)
	}
	if last == nil {
		if !p.Allows(nil, next.Kind) {
			return fmt.Errorf("%w: %s as first punch", model.ErrInvalidTransition, next.Kind)
		}
		return nil
	}

	gap := next.Timestamp.Sub(last.Timestamp)
	if gap < 0 {
		gap = -gap
	}
	if last.Kind == next.Kind && gap < p.DebounceWindow {
		return fmt.Errorf("%w: repeated %s within %s", model.ErrConflict, next.Kind, p.DebounceWindow)
	}
	if !next.Timestamp.After(last.Timestamp) {
		return fmt.Errorf("%w: %w", model.ErrConflict, model.ErrOutOfOrder)
	}

	var prev *model.PunchKind
	if p.Day.SameDay(last.Timestamp, next.Timestamp) {
		prev = &last.Kind
	}
	if !p.Allows(prev, next.Kind) {
		from := "start of day"
		if prev != nil {
			from = string(*prev)
		}
		return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, from, next.Kind)
	}
	return nil
}

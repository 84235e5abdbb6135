// Package schedule computes the calendar dates on which a recurring
// transaction is due. All functions are pure: the same rule and window
// always produce the same ordered sequence of dates, so callers may safely
// recompute instead of holding cursor state.
package schedule

import (
	"fmt"
	"time"

	"financas/internal/core"
)

// Rule is the recurrence rule extracted from a validated definition:
// frequency, anchor and validity window.
type Rule struct {
	Frequency  core.Frequency
	Start      core.Date
	End        core.Date // zero = open-ended
	DayOfMonth int       // MONTHLY only
	DayOfWeek  time.Weekday // WEEKLY only
}

// InvariantViolation signals that an invalid rule reached the calculator.
// Definitions are validated before persistence, so hitting this is an
// integration bug, not user error; the caller must fail loudly instead of
// producing wrong dates.
type InvariantViolation struct {
	Reason string
}

func (e *InvariantViolation) Error() string {
	return "recurrence rule invariant violated: " + e.Reason
}

func violation(format string, args ...any) *InvariantViolation {
	return &InvariantViolation{Reason: fmt.Sprintf(format, args...)}
}

// FromDefinition builds a Rule from a definition, re-checking the
// invariants the validator guarantees.
func FromDefinition(rt core.RecurringTransaction) (Rule, error) {
	r := Rule{
		Frequency: rt.Frequency,
		Start:     rt.StartDate,
		End:       rt.EndDate,
	}
	if r.Start.IsZero() {
		return Rule{}, violation("start date is zero")
	}
	if !r.End.IsZero() && r.End.Before(r.Start) {
		return Rule{}, violation("end date %s before start date %s", r.End, r.Start)
	}

	switch rt.Frequency {
	case core.Daily, core.Yearly:
		if rt.DayOfMonth != nil || rt.DayOfWeek != nil {
			return Rule{}, violation("%s rule carries an anchor", rt.Frequency)
		}
	case core.Monthly:
		if rt.DayOfMonth == nil {
			return Rule{}, violation("MONTHLY rule without dayOfMonth")
		}
		if d := *rt.DayOfMonth; d < 1 || d > 31 {
			return Rule{}, violation("dayOfMonth %d out of range", d)
		}
		r.DayOfMonth = *rt.DayOfMonth
	case core.Weekly:
		if rt.DayOfWeek == nil {
			return Rule{}, violation("WEEKLY rule without dayOfWeek")
		}
		if d := *rt.DayOfWeek; d < 0 || d > 6 {
			return Rule{}, violation("dayOfWeek %d out of range", d)
		}
		r.DayOfWeek = time.Weekday(*rt.DayOfWeek)
	default:
		return Rule{}, violation("unknown frequency %q", string(rt.Frequency))
	}
	return r, nil
}

// generator produces the due dates of one frequency inside an already
// clamped, non-empty window. Same registry shape for every frequency so
// new ones slot in without touching Occurrences.
type generator interface {
	dates(r Rule, from, to core.Date) []core.Date
}

var generators = map[core.Frequency]generator{
	core.Daily:   dailyGenerator{},
	core.Weekly:  weeklyGenerator{},
	core.Monthly: monthlyGenerator{},
	core.Yearly:  yearlyGenerator{},
}

// Occurrences returns the ordered, duplicate-free due dates of the rule
// within [from, to], both inclusive. The window is clamped to the rule's
// own validity window first; an empty intersection yields no dates.
func Occurrences(r Rule, from, to core.Date) ([]core.Date, error) {
	if from.IsZero() || to.IsZero() {
		return nil, violation("query window [%s, %s] has a zero bound", from, to)
	}
	if to.Before(from) {
		return nil, violation("query window end %s before start %s", to, from)
	}

	gen, ok := generators[r.Frequency]
	if !ok {
		return nil, violation("unknown frequency %q", string(r.Frequency))
	}

	lo := core.MaxDate(from, r.Start)
	hi := to
	if !r.End.IsZero() {
		hi = core.MinDate(to, r.End)
	}
	if hi.Before(lo) {
		return nil, nil
	}
	return gen.dates(r, lo, hi), nil
}

type dailyGenerator struct{}

func (dailyGenerator) dates(_ Rule, from, to core.Date) []core.Date {
	var out []core.Date
	for d := from; !d.After(to); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

type weeklyGenerator struct{}

func (weeklyGenerator) dates(r Rule, from, to core.Date) []core.Date {
	// Jump to the first date in the window on the anchor weekday, then
	// step a week at a time.
	offset := (int(r.DayOfWeek) - int(from.Weekday()) + 7) % 7
	var out []core.Date
	for d := from.AddDays(offset); !d.After(to); d = d.AddDays(7) {
		out = append(out, d)
	}
	return out
}

type monthlyGenerator struct{}

func (monthlyGenerator) dates(r Rule, from, to core.Date) []core.Date {
	// Months that do not have the anchor day produce no occurrence: a
	// day-31 rule skips February and 30-day months rather than clamping
	// to the last day.
	var out []core.Date
	year, month := from.Year(), from.Month()
	for {
		candidate := core.NewDate(year, month, 1)
		if candidate.After(to) {
			return out
		}
		if r.DayOfMonth <= core.DaysInMonth(year, month) {
			d := core.NewDate(year, month, r.DayOfMonth)
			if !d.Before(from) && !d.After(to) {
				out = append(out, d)
			}
		}
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
}

type yearlyGenerator struct{}

func (yearlyGenerator) dates(r Rule, from, to core.Date) []core.Date {
	// The anchor is the start date's month and day. A Feb-29 anchor only
	// fires on leap years, consistent with the monthly skip policy.
	month, day := r.Start.Month(), r.Start.Day()
	var out []core.Date
	for year := from.Year(); year <= to.Year(); year++ {
		if day > core.DaysInMonth(year, month) {
			continue
		}
		d := core.NewDate(year, month, day)
		if !d.Before(from) && !d.After(to) {
			out = append(out, d)
		}
	}
	return out
}

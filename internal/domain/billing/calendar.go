package billing

import (
	"time"

	"github.com/schoolhub/schoolhub/internal/domain/student"
	"github.com/schoolhub/schoolhub/pkg/timeutil"
)

// Calendar is the ordered list of billing periods in one academic cycle and
// the policy that decides which of them are due at a given instant.
type Calendar struct {
	// Periods in cycle order. Month names ("March") let the current period
	// follow the clock; any other identifiers need Pinned.
	Periods []string

	// Pinned, when set, is taken as the current period regardless of time.
	Pinned string

	// Grace shifts the due index back: with Grace 1 the current period is
	// not yet required for "paid".
	Grace int
}

// DefaultCalendar bills January through December.
func DefaultCalendar() Calendar {
	return Calendar{Periods: timeutil.MonthNames()}
}

// Index returns the position of period, or -1.
func (c Calendar) Index(period string) int {
	for i, p := range c.Periods {
		if key(p) == key(period) {
			return i
		}
	}
	return -1
}

// CurrentIndex is the last period that has started at now, minus Grace.
//
// Month-named periods are placed on a cycle beginning at Periods[0]'s month,
// so a February..November cycle evaluated in January treats the whole
// previous cycle as due. When Periods are not month names and nothing is
// pinned, every period counts as due.
func (c Calendar) CurrentIndex(now time.Time) int {
	if len(c.Periods) == 0 {
		return -1
	}

	idx := -1
	switch {
	case c.Pinned != "":
		idx = c.Index(c.Pinned)
	default:
		start, ok := timeutil.ParseMonth(c.Periods[0])
		if !ok {
			idx = len(c.Periods) - 1
			break
		}
		elapsed := timeutil.MonthsSince(start, now.Month())
		for i, p := range c.Periods {
			m, ok := timeutil.ParseMonth(p)
			if !ok {
				continue
			}
			if timeutil.MonthsSince(start, m) <= elapsed {
				idx = i
			}
		}
	}

	if idx < 0 {
		return -1
	}
	return idx - c.Grace
}

// Classifier binds Classify to a calendar and a clock.
type Classifier struct {
	calendar Calendar
	clock    timeutil.Clock
}

func NewClassifier(cal Calendar, clock timeutil.Clock) *Classifier {
	if len(cal.Periods) == 0 {
		cal = DefaultCalendar()
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &Classifier{calendar: cal, clock: clock}
}

// Classify evaluates paid against the periods due now.
func (c *Classifier) Classify(paid []string) student.FinancialStatus {
	return Classify(paid, c.calendar.Periods, c.DueIndex())
}

// DueIndex is the index of the last period due now, or -1 when none is.
func (c *Classifier) DueIndex() int {
	return c.calendar.CurrentIndex(c.clock.Now())
}

func (c *Classifier) Calendar() Calendar {
	return c.calendar
}
